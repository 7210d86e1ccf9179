package router

import (
	"github.com/labstack/echo/v4"

	"supportchat/internal/adapter/api/handler"
	"supportchat/internal/adapter/api/middleware"
)

// SetupChatRouter sets up the REST chat routes. Live updates go over /v1/ws.
func SetupChatRouter(e *echo.Echo, chatHandler *handler.ChatHandler, authMiddleware *middleware.AuthMiddleware) {
	chatGroup := e.Group("/v1/chats")
	chatGroup.Use(authMiddleware.Authenticate)

	chatGroup.GET("", chatHandler.ListChats, authMiddleware.RequireSupport) // GET /v1/chats - previews, newest first

	chatGroup.GET("/:key/messages", chatHandler.GetMessages)       // GET /v1/chats/:key/messages
	chatGroup.POST("/:key/messages", chatHandler.SendMessage)      // POST /v1/chats/:key/messages
	chatGroup.PUT("/:key/messages/:id/seen", chatHandler.MarkSeen) // PUT /v1/chats/:key/messages/:id/seen
}
