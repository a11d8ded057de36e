package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"ampara.app/soporte/internal/http/dto"
	"ampara.app/soporte/internal/http/middleware"
	"ampara.app/soporte/internal/model"
	"ampara.app/soporte/internal/service"
)

const (
	defaultListLimit    = 50
	defaultMessageLimit = 100
)

// ConversationHandler serves the agent panel.
type ConversationHandler struct {
	conversations service.ConversationService
}

func NewConversationHandler(conversations service.ConversationService) *ConversationHandler {
	return &ConversationHandler{conversations: conversations}
}

func (h *ConversationHandler) List(c *gin.Context) {
	ctx := c.Request.Context()

	state := model.ConversationState(c.DefaultQuery("state", string(model.ConversationOpen)))
	switch state {
	case model.ConversationOpen, model.ConversationArchived, model.ConversationClosed:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid state"})
		return
	}

	limit := intQuery(c, "limit", defaultListLimit)

	conversations, err := h.conversations.List(ctx, state, limit)
	if err != nil {
		slog.ErrorContext(ctx, "failed to list conversations", "error", err, "state", state)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list conversations"})
		return
	}

	resp := make([]dto.ConversationResponse, 0, len(conversations))
	for i := range conversations {
		resp = append(resp, dto.FromConversation(&conversations[i]))
	}
	c.JSON(http.StatusOK, gin.H{"conversations": resp})
}

func (h *ConversationHandler) Messages(c *gin.Context) {
	ctx := c.Request.Context()
	conversationID := c.Param("id")

	limit := intQuery(c, "limit", defaultMessageLimit)
	offset := intQuery(c, "offset", 0)

	messages, err := h.conversations.Messages(ctx, conversationID, limit, offset)
	if err != nil {
		slog.ErrorContext(ctx, "failed to list messages", "error", err, "conversation_id", conversationID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list messages"})
		return
	}

	resp := make([]dto.MessageResponse, 0, len(messages))
	for i := range messages {
		resp = append(resp, dto.FromMessage(&messages[i]))
	}
	c.JSON(http.StatusOK, gin.H{"messages": resp})
}

func (h *ConversationHandler) Send(c *gin.Context) {
	ctx := c.Request.Context()
	conversationID := c.Param("id")

	var req dto.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message is required"})
		return
	}

	agent := middleware.GetAgent(ctx)
	if agent == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}

	msg, err := h.conversations.HandleAgentReply(ctx, conversationID, agent, req.Message)
	if err != nil {
		if errors.Is(err, service.ErrConversationNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
			return
		}
		slog.ErrorContext(ctx, "failed to send agent reply", "error", err, "conversation_id", conversationID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to send message"})
		return
	}

	c.JSON(http.StatusOK, dto.FromMessage(msg))
}

func (h *ConversationHandler) Release(c *gin.Context) {
	h.transition(c, h.conversations.Release)
}

func (h *ConversationHandler) Close(c *gin.Context) {
	h.transition(c, h.conversations.Close)
}

func (h *ConversationHandler) Seen(c *gin.Context) {
	h.transition(c, h.conversations.MarkSeen)
}

func (h *ConversationHandler) transition(c *gin.Context, fn func(ctx context.Context, conversationID string) error) {
	ctx := c.Request.Context()
	conversationID := c.Param("id")

	if err := fn(ctx, conversationID); err != nil {
		if errors.Is(err, service.ErrConversationNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
			return
		}
		slog.ErrorContext(ctx, "conversation transition failed", "error", err, "conversation_id", conversationID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "transition failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func intQuery(c *gin.Context, key string, fallback int) int {
	raw := c.Query(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return fallback
	}
	return value
}
