package store

import (
	"context"
	"fmt"
	"time"

	"github.com/arangodb/go-driver/v2/arangodb"

	adb "ampara.app/soporte/common/arangodb"
	"ampara.app/soporte/internal/model"
)

type arangoConversationStore struct {
	db arangodb.Database
}

// NewConversationStore creates an ArangoDB-backed conversation store
func NewConversationStore(db arangodb.Database) ConversationStore {
	return &arangoConversationStore{db: db}
}

func (s *arangoConversationStore) Get(ctx context.Context, id string) (*model.Conversation, error) {
	query := `
		FOR c IN ` + adb.CollectionConversations + `
			FILTER c._key == @id
			RETURN c
	`
	cursor, err := s.db.Query(ctx, query, &arangodb.QueryOptions{
		BindVars: map[string]any{"id": id},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query conversation: %w", err)
	}
	defer cursor.Close()

	if !cursor.HasMore() {
		return nil, ErrNotFound
	}

	var conv model.Conversation
	if _, err := cursor.ReadDocument(ctx, &conv); err != nil {
		return nil, fmt.Errorf("failed to read conversation document: %w", err)
	}
	return &conv, nil
}

func (s *arangoConversationStore) Merge(ctx context.Context, id string, patch Patch) error {
	if len(patch) == 0 {
		return nil
	}

	// keepNull:false drops fields patched to null, which is how callers clear
	// intervened_by and the escalation/watchdog timestamps.
	query := `
		UPDATE @id WITH @patch IN ` + adb.CollectionConversations + `
			OPTIONS { keepNull: false, mergeObjects: false }
	`
	cursor, err := s.db.Query(ctx, query, &arangodb.QueryOptions{
		BindVars: map[string]any{
			"id":    id,
			"patch": map[string]any(patch),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to merge conversation %s: %w", id, err)
	}
	return cursor.Close()
}

func (s *arangoConversationStore) TouchOnUserMessage(ctx context.Context, id, language string, at time.Time) (*model.Conversation, error) {
	// A single upsert covers first contact, the steady state and reactivation
	// of closed or archived conversations. Intervention flags are deliberately
	// untouched so an owning agent survives an archive/reactivate cycle.
	query := `
		UPSERT { _key: @id }
			INSERT {
				_key: @id,
				state: @open,
				intervened: false,
				language: @language,
				started_at: @at,
				last_message_at: @at,
				unseen_count: 1
			}
			UPDATE {
				state: @open,
				language: @language,
				last_message_at: @at,
				unseen_count: NOT_NULL(OLD.unseen_count, 0) + 1
			}
			IN ` + adb.CollectionConversations + `
		RETURN NEW
	`
	cursor, err := s.db.Query(ctx, query, &arangodb.QueryOptions{
		BindVars: map[string]any{
			"id":       id,
			"open":     string(model.ConversationOpen),
			"language": language,
			"at":       at,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to touch conversation %s: %w", id, err)
	}
	defer cursor.Close()

	var conv model.Conversation
	if _, err := cursor.ReadDocument(ctx, &conv); err != nil {
		return nil, fmt.Errorf("failed to read touched conversation: %w", err)
	}
	return &conv, nil
}

func (s *arangoConversationStore) List(ctx context.Context, state model.ConversationState, limit int) ([]model.Conversation, error) {
	query := `
		FOR c IN ` + adb.CollectionConversations + `
			FILTER c.state == @state
			SORT c.last_message_at DESC
			LIMIT @limit
			RETURN c
	`
	cursor, err := s.db.Query(ctx, query, &arangodb.QueryOptions{
		BindVars: map[string]any{
			"state": string(state),
			"limit": limit,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer cursor.Close()

	conversations := make([]model.Conversation, 0)
	for cursor.HasMore() {
		var conv model.Conversation
		if _, err := cursor.ReadDocument(ctx, &conv); err != nil {
			return nil, fmt.Errorf("failed to read conversation document: %w", err)
		}
		conversations = append(conversations, conv)
	}
	return conversations, nil
}

func (s *arangoConversationStore) ArchiveIdle(ctx context.Context, cutoff time.Time) (int, error) {
	// The service writes whole-second UTC timestamps, so every stored value
	// marshals to the same fixed-width RFC 3339 form and the string comparison
	// below orders them correctly.
	query := `
		FOR c IN ` + adb.CollectionConversations + `
			FILTER c.state == @open
			FILTER c.last_message_at != null AND c.last_message_at < @cutoff
			UPDATE c WITH { state: @archived } IN ` + adb.CollectionConversations + `
			COLLECT WITH COUNT INTO archived
			RETURN archived
	`
	cursor, err := s.db.Query(ctx, query, &arangodb.QueryOptions{
		BindVars: map[string]any{
			"open":     string(model.ConversationOpen),
			"archived": string(model.ConversationArchived),
			"cutoff":   cutoff,
		},
	})
	if err != nil {
		return 0, fmt.Errorf("failed to archive idle conversations: %w", err)
	}
	defer cursor.Close()

	var archived int
	if cursor.HasMore() {
		if _, err := cursor.ReadDocument(ctx, &archived); err != nil {
			return 0, fmt.Errorf("failed to read archive count: %w", err)
		}
	}
	return archived, nil
}
