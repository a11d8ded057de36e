package router

import (
	"github.com/gin-gonic/gin"

	"ampara.app/soporte/internal/http/handler"
	"ampara.app/soporte/internal/http/middleware"
	"ampara.app/soporte/internal/service"
)

type RouterConfig struct {
	PanelURL     string
	IsProduction bool
}

func SetupRoutes(router *gin.Engine, services *service.Services, cfg RouterConfig) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	authService := services.Auth()

	authHandler := handler.NewAuthHandler(authService, cfg.PanelURL, cfg.IsProduction)
	AuthRouter(router.Group("/auth"), authHandler)

	chatHandler := handler.NewChatHandler(services.Conversations())
	router.POST("/api/chat", chatHandler.Send)

	v1 := router.Group("/api/v1")
	{
		conversationHandler := handler.NewConversationHandler(services.Conversations())
		conversations := v1.Group("/conversations")
		conversations.Use(middleware.RequireAuth(authService))
		ConversationRouter(conversations, conversationHandler)
	}
}
