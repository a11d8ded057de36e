package model

import "time"

type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleSystem    MessageRole = "system"
)

type MessageKind string

const (
	KindText   MessageKind = "text"
	KindImage  MessageKind = "image"
	KindStatus MessageKind = "status"
)

// Status message bodies appended by lifecycle transitions. The panel
// localizes them for display.
const (
	StatusIntervened = "Intervened"
	StatusReleased   = "Released"
	StatusClosed     = "Closed"
)

// Message is append-only: one document per inbound/outbound event, never
// mutated. Content is normalized to the reference language for the agent
// panel; Original keeps the text exactly as authored.
type Message struct {
	ID             int64       `json:"id"`
	ConversationID string      `json:"conversation_id"`
	Role           MessageRole `json:"role"`
	Kind           MessageKind `json:"kind"`
	Content        string      `json:"content"`
	Original       string      `json:"original,omitempty"`
	Language       string      `json:"language,omitempty"`
	Manual         bool        `json:"manual"`
	SentAt         time.Time   `json:"sent_at"`
}
