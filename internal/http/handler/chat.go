package handler

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"ampara.app/soporte/internal/http/dto"
	"ampara.app/soporte/internal/service"
)

// ChatHandler is the public widget endpoint.
type ChatHandler struct {
	conversations service.ConversationService
}

func NewChatHandler(conversations service.ConversationService) *ChatHandler {
	return &ChatHandler{conversations: conversations}
}

func (h *ChatHandler) Send(c *gin.Context) {
	ctx := c.Request.Context()

	var req dto.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id and message are required"})
		return
	}

	reply, err := h.conversations.HandleUserMessage(ctx, req.UserID, req.Message)
	if err != nil {
		slog.ErrorContext(ctx, "failed to handle user message", "error", err, "conversation_id", req.UserID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to process message"})
		return
	}

	resp := dto.ChatResponse{Escalated: reply.Escalated}
	if reply.Message != nil {
		resp.Reply = &reply.Message.Content
	}

	c.JSON(http.StatusOK, resp)
}
