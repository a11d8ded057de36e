package model

import "time"

// Agent is a human support agent on the notification roster.
type Agent struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	AvatarURL *string   `json:"avatar_url,omitempty"`
	Phone     *string   `json:"phone,omitempty"`
	Active    bool      `json:"active"`
	WorkOSID  *string   `json:"-"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Ref returns the embeddable slice of the agent stored on a conversation
// while it is intervened.
func (a *Agent) Ref() *AgentRef {
	return &AgentRef{
		ID:        a.ID,
		Name:      a.Name,
		AvatarURL: a.AvatarURL,
	}
}
