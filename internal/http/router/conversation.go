package router

import (
	"github.com/gin-gonic/gin"

	"ampara.app/soporte/internal/http/handler"
)

func ConversationRouter(rg *gin.RouterGroup, h *handler.ConversationHandler) {
	rg.GET("", h.List)
	rg.GET("/:id/messages", h.Messages)
	rg.POST("/:id/messages", h.Send)
	rg.POST("/:id/release", h.Release)
	rg.POST("/:id/close", h.Close)
	rg.POST("/:id/seen", h.Seen)
}
