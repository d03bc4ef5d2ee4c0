package api

import (
	"time"

	"github.com/labstack/echo/v4"
	"github.com/victorivanov/courier/internal/auth"
	"github.com/victorivanov/courier/internal/gateway"
	"github.com/victorivanov/courier/internal/redis"
)

// Dependencies holds all handler instances and middleware for route wiring.
type Dependencies struct {
	Conversations *ConversationHandler
	Messages      *MessageHandler
	ReadStates    *ReadStateHandler
	Uploads       *UploadHandler
	Gateway       *gateway.Manager

	TokenService *auth.TokenService
	Redis        *redis.Client
}

// SetupRouter registers all API routes on the Echo instance.
func SetupRouter(e *echo.Echo, deps *Dependencies) {
	// Health check
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(200, map[string]string{"status": "ok"})
	})

	// WebSocket gateway
	e.GET("/gateway", deps.Gateway.HandleWebSocket)

	v1 := e.Group("/api/v1")

	// All messaging routes require identity + general rate limit.
	authMw := deps.TokenService.Middleware()
	protected := v1.Group("", authMw,
		RateLimitMiddleware(deps.Redis, 50, time.Minute),
	)

	// Conversations
	protected.POST("/conversations", deps.Conversations.Resolve)
	protected.GET("/conversations", deps.Conversations.List)

	// Messages
	protected.POST("/conversations/:id/messages", deps.Messages.Send)
	protected.GET("/conversations/:id/messages", deps.Messages.List)
	protected.GET("/conversations/:id/thread", deps.Messages.OpenThread)
	protected.POST("/conversations/:id/typing", deps.Messages.Typing)

	// Read state
	protected.PUT("/conversations/:id/ack", deps.ReadStates.Ack)
	protected.GET("/conversations/:id/unread", deps.ReadStates.Unread)
	protected.GET("/users/@me/unread", deps.ReadStates.TotalUnread)

	// Uploads
	protected.POST("/uploads", deps.Uploads.Upload)
}
