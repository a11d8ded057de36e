package dto

import (
	"strconv"
	"time"

	"ampara.app/soporte/internal/model"
)

type AgentRefResponse struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	AvatarURL *string `json:"avatar_url,omitempty"`
}

type ConversationResponse struct {
	ID            string            `json:"id"`
	State         string            `json:"state"`
	Intervened    bool              `json:"intervened"`
	IntervenedBy  *AgentRefResponse `json:"intervened_by,omitempty"`
	Language      string            `json:"language,omitempty"`
	StartedAt     time.Time         `json:"started_at"`
	LastMessageAt *time.Time        `json:"last_message_at,omitempty"`
	LastSeenAt    *time.Time        `json:"last_seen_at,omitempty"`
	UnseenCount   int               `json:"unseen_count"`
}

type MessageResponse struct {
	ID       string    `json:"id"`
	Role     string    `json:"role"`
	Kind     string    `json:"kind"`
	Content  string    `json:"content"`
	Original string    `json:"original,omitempty"`
	Language string    `json:"language,omitempty"`
	Manual   bool      `json:"manual"`
	SentAt   time.Time `json:"sent_at"`
}

type SendMessageRequest struct {
	Message string `json:"message" binding:"required"`
}

func FromConversation(conv *model.Conversation) ConversationResponse {
	resp := ConversationResponse{
		ID:            conv.ID,
		State:         string(conv.State),
		Intervened:    conv.Intervened,
		Language:      conv.Language,
		StartedAt:     conv.StartedAt,
		LastMessageAt: conv.LastMessageAt,
		LastSeenAt:    conv.LastSeenAt,
		UnseenCount:   conv.UnseenCount,
	}
	if conv.IntervenedBy != nil {
		resp.IntervenedBy = &AgentRefResponse{
			ID:        strconv.FormatInt(conv.IntervenedBy.ID, 10),
			Name:      conv.IntervenedBy.Name,
			AvatarURL: conv.IntervenedBy.AvatarURL,
		}
	}
	return resp
}

func FromMessage(msg *model.Message) MessageResponse {
	return MessageResponse{
		ID:       strconv.FormatInt(msg.ID, 10),
		Role:     string(msg.Role),
		Kind:     string(msg.Kind),
		Content:  msg.Content,
		Original: msg.Original,
		Language: msg.Language,
		Manual:   msg.Manual,
		SentAt:   msg.SentAt,
	}
}
