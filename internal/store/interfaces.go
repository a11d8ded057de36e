package store

import (
	"context"
	"errors"
	"time"

	"ampara.app/soporte/internal/model"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// Patch is a partial conversation document for merge writes. Values merge
// last-write-wins into the stored document; a nil value removes the field.
type Patch map[string]any

// Conversation document field names used in patches.
const (
	FieldState                 = "state"
	FieldIntervened            = "intervened"
	FieldIntervenedBy          = "intervened_by"
	FieldLanguage              = "language"
	FieldLastMessageAt         = "last_message_at"
	FieldEscalationRequestedAt = "escalation_requested_at"
	FieldLastWatchdogAlertAt   = "last_watchdog_alert_at"
	FieldLastSeenAt            = "last_seen_at"
	FieldUnseenCount           = "unseen_count"
)

// ConversationStore defines the contract for conversation document access.
// All writes are merges, not transactions; callers serialize writers per
// conversation themselves.
type ConversationStore interface {
	Get(ctx context.Context, id string) (*model.Conversation, error)
	// Merge applies a partial update to an existing conversation document.
	Merge(ctx context.Context, id string, patch Patch) error
	// TouchOnUserMessage creates the conversation on first contact and on
	// every inbound user message reopens it, bumps last_message_at and
	// increments the unseen counter. Returns the post-write document.
	TouchOnUserMessage(ctx context.Context, id, language string, at time.Time) (*model.Conversation, error)
	List(ctx context.Context, state model.ConversationState, limit int) ([]model.Conversation, error)
	// ArchiveIdle demotes open conversations whose last message predates
	// cutoff. Returns the number archived; already-archived rows are untouched.
	ArchiveIdle(ctx context.Context, cutoff time.Time) (int, error)
}

// MessageStore defines the contract for the append-only message log.
type MessageStore interface {
	Append(ctx context.Context, msg *model.Message) error
	ListByConversation(ctx context.Context, conversationID string, limit, offset int) ([]model.Message, error)
	// ListRecent returns the newest messages in chronological order, for
	// building assistant context windows.
	ListRecent(ctx context.Context, conversationID string, limit int) ([]model.Message, error)
	// CountManualSince reports how many agent-authored messages landed in the
	// conversation at or after the given instant.
	CountManualSince(ctx context.Context, conversationID string, after time.Time) (int, error)
}

// AgentStore defines the contract for the agent roster.
type AgentStore interface {
	GetByID(ctx context.Context, id int64) (*model.Agent, error)
	UpsertByWorkOSID(ctx context.Context, agent *model.Agent) error
	ListActive(ctx context.Context) ([]model.Agent, error)
}

// SessionStore defines the contract for panel session data access.
type SessionStore interface {
	GetValid(ctx context.Context, id int64) (*model.Session, error) // checks expiry
	Create(ctx context.Context, session *model.Session) error
	Delete(ctx context.Context, id int64) error
	DeleteExpired(ctx context.Context) error
}
