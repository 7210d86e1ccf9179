package router

import (
	"github.com/labstack/echo/v4"

	"supportchat/internal/adapter/api/handler"
	"supportchat/internal/adapter/api/middleware"
)

func SetupPresenceRouter(e *echo.Echo, presenceHandler *handler.PresenceHandler, authMiddleware *middleware.AuthMiddleware) {
	e.GET("/v1/presence/:username", presenceHandler.GetPresence, authMiddleware.Authenticate)
}
