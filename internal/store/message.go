package store

import (
	"context"
	"fmt"
	"time"

	"github.com/arangodb/go-driver/v2/arangodb"

	adb "ampara.app/soporte/common/arangodb"
	"ampara.app/soporte/internal/model"
)

type arangoMessageStore struct {
	db arangodb.Database
}

// NewMessageStore creates an ArangoDB-backed message store
func NewMessageStore(db arangodb.Database) MessageStore {
	return &arangoMessageStore{db: db}
}

func (s *arangoMessageStore) Append(ctx context.Context, msg *model.Message) error {
	query := `INSERT @message IN ` + adb.CollectionMessages
	cursor, err := s.db.Query(ctx, query, &arangodb.QueryOptions{
		BindVars: map[string]any{"message": msg},
	})
	if err != nil {
		return fmt.Errorf("failed to append message to conversation %s: %w", msg.ConversationID, err)
	}
	return cursor.Close()
}

func (s *arangoMessageStore) ListByConversation(ctx context.Context, conversationID string, limit, offset int) ([]model.Message, error) {
	// Snowflake IDs break ties between messages sharing a sent_at instant.
	query := `
		FOR m IN ` + adb.CollectionMessages + `
			FILTER m.conversation_id == @conversationID
			SORT m.sent_at ASC, m.id ASC
			LIMIT @offset, @limit
			RETURN m
	`
	cursor, err := s.db.Query(ctx, query, &arangodb.QueryOptions{
		BindVars: map[string]any{
			"conversationID": conversationID,
			"limit":          limit,
			"offset":         offset,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer cursor.Close()

	messages := make([]model.Message, 0)
	for cursor.HasMore() {
		var msg model.Message
		if _, err := cursor.ReadDocument(ctx, &msg); err != nil {
			return nil, fmt.Errorf("failed to read message document: %w", err)
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

func (s *arangoMessageStore) ListRecent(ctx context.Context, conversationID string, limit int) ([]model.Message, error) {
	query := `
		FOR m IN ` + adb.CollectionMessages + `
			FILTER m.conversation_id == @conversationID
			SORT m.sent_at DESC, m.id DESC
			LIMIT @limit
			RETURN m
	`
	cursor, err := s.db.Query(ctx, query, &arangodb.QueryOptions{
		BindVars: map[string]any{
			"conversationID": conversationID,
			"limit":          limit,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list recent messages: %w", err)
	}
	defer cursor.Close()

	messages := make([]model.Message, 0)
	for cursor.HasMore() {
		var msg model.Message
		if _, err := cursor.ReadDocument(ctx, &msg); err != nil {
			return nil, fmt.Errorf("failed to read message document: %w", err)
		}
		messages = append(messages, msg)
	}

	// Query order is newest first; flip to chronological for the caller.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

func (s *arangoMessageStore) CountManualSince(ctx context.Context, conversationID string, after time.Time) (int, error) {
	query := `
		RETURN LENGTH(
			FOR m IN ` + adb.CollectionMessages + `
				FILTER m.conversation_id == @conversationID
				FILTER m.manual == true
				FILTER m.sent_at >= @after
				RETURN 1
		)
	`
	cursor, err := s.db.Query(ctx, query, &arangodb.QueryOptions{
		BindVars: map[string]any{
			"conversationID": conversationID,
			"after":          after,
		},
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count manual messages: %w", err)
	}
	defer cursor.Close()

	var count int
	if cursor.HasMore() {
		if _, err := cursor.ReadDocument(ctx, &count); err != nil {
			return 0, fmt.Errorf("failed to read manual message count: %w", err)
		}
	}
	return count, nil
}
