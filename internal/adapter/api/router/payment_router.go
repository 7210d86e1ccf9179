package router

import (
	"github.com/labstack/echo/v4"

	"supportchat/internal/adapter/api/handler"
	"supportchat/internal/adapter/api/middleware"
	"supportchat/internal/infrastructure/ratelimit"
)

func SetupPaymentRouter(e *echo.Echo, paymentHandler *handler.PaymentHandler, authMiddleware *middleware.AuthMiddleware, rateLimiter *ratelimit.RateLimiter) {
	paymentGroup := e.Group("/v1/payments")

	paymentGroup.POST("", paymentHandler.InitiatePayment, authMiddleware.Authenticate, middleware.RateLimit(rateLimiter, ratelimit.ActionPayment))

	// The provider redirects the browser here, so there is no bearer token.
	// The pending payment cookie identifies the payer.
	paymentGroup.POST("/callback", paymentHandler.Callback)
	paymentGroup.GET("/callback", paymentHandler.Callback)
}
