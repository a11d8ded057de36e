package model

import "time"

// Session is a panel login session for an agent.
type Session struct {
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
	ID        int64     `json:"id"`
	AgentID   int64     `json:"agent_id"`
}
