package dto

// ChatRequest is an inbound message from the visitor widget.
type ChatRequest struct {
	UserID  string `json:"user_id" binding:"required"`
	Message string `json:"message" binding:"required"`
}

// ChatResponse carries the automated reply. Reply is null while a human agent
// owns the conversation.
type ChatResponse struct {
	Reply     *string `json:"reply"`
	Escalated bool    `json:"escalated"`
}
