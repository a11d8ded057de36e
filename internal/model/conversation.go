package model

import "time"

type ConversationState string

const (
	ConversationOpen     ConversationState = "open"
	ConversationArchived ConversationState = "archived"
	ConversationClosed   ConversationState = "closed"
)

// Conversation is the single mutable document per visitor. The key is the
// visitor's stable user ID; all writes to it are last-write-wins merges
// serialized by the lifecycle service's per-conversation lock.
//
// State is orthogonal to intervention: an intervened conversation can be
// archived and reactivated without the agent losing ownership.
type Conversation struct {
	ID                    string            `json:"_key"`
	State                 ConversationState `json:"state"`
	Intervened            bool              `json:"intervened"`
	IntervenedBy          *AgentRef         `json:"intervened_by,omitempty"`
	Language              string            `json:"language,omitempty"`
	StartedAt             time.Time         `json:"started_at"`
	LastMessageAt         *time.Time        `json:"last_message_at,omitempty"`
	EscalationRequestedAt *time.Time        `json:"escalation_requested_at,omitempty"`
	LastWatchdogAlertAt   *time.Time        `json:"last_watchdog_alert_at,omitempty"`
	LastSeenAt            *time.Time        `json:"last_seen_at,omitempty"`
	UnseenCount           int               `json:"unseen_count"`
}

// AgentRef is the slice of an agent embedded in a conversation document while
// the agent owns the reply channel.
type AgentRef struct {
	ID        int64   `json:"id"`
	Name      string  `json:"name"`
	AvatarURL *string `json:"avatar_url,omitempty"`
}
