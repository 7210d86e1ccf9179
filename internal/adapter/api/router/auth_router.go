package router

import (
	"github.com/labstack/echo/v4"

	"supportchat/internal/adapter/api/handler"
	"supportchat/internal/adapter/api/middleware"
	"supportchat/internal/infrastructure/ratelimit"
)

func SetupAuthRouter(e *echo.Echo, authHandler *handler.AuthHandler, authMiddleware *middleware.AuthMiddleware, rateLimiter *ratelimit.RateLimiter) {
	// Public routes
	e.POST("/v1/auth/login", authHandler.Login, middleware.RateLimit(rateLimiter, ratelimit.ActionLogin))

	// Protected routes
	protected := e.Group("/v1/auth")
	protected.Use(authMiddleware.Authenticate)

	protected.POST("/logout", authHandler.Logout)
	protected.GET("/me", authHandler.Me)
}
