package router

import (
	"github.com/labstack/echo/v4"

	"supportchat/internal/adapter/api/handler"
	"supportchat/internal/adapter/api/middleware"
	"supportchat/internal/infrastructure/ratelimit"
)

// Handlers groups every HTTP entry point of the gateway.
type Handlers struct {
	Auth      *handler.AuthHandler
	Chat      *handler.ChatHandler
	Presence  *handler.PresenceHandler
	Payment   *handler.PaymentHandler
	WebSocket *handler.WebSocketHandler
	Health    *handler.HealthHandler
}

func Setup(e *echo.Echo, h Handlers, authMiddleware *middleware.AuthMiddleware, rateLimiter *ratelimit.RateLimiter) {
	SetupHealthRouter(e, h.Health)
	SetupAuthRouter(e, h.Auth, authMiddleware, rateLimiter)
	SetupChatRouter(e, h.Chat, authMiddleware)
	SetupPresenceRouter(e, h.Presence, authMiddleware)
	SetupPaymentRouter(e, h.Payment, authMiddleware, rateLimiter)
	SetupWebSocketRouter(e, h.WebSocket, authMiddleware)
}
