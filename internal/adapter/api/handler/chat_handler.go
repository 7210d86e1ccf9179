package handler

import (
	"github.com/labstack/echo/v4"

	"supportchat/internal/adapter/api/middleware"
	"supportchat/internal/infrastructure/websocket"
	"supportchat/internal/usecase"
	"supportchat/pkg/errors"
	"supportchat/pkg/response"
)

// ChatHandler is the one-shot REST surface of the chat engine, for clients
// that cannot hold a websocket open.
type ChatHandler struct {
	messages *usecase.MessageStreamUseCase
	chatList *usecase.ChatListUseCase
}

func NewChatHandler(messages *usecase.MessageStreamUseCase, chatList *usecase.ChatListUseCase) *ChatHandler {
	return &ChatHandler{
		messages: messages,
		chatList: chatList,
	}
}

type sendMessageRequest struct {
	Text string `json:"text" validate:"required"`
}

// ListChats returns the preview list once. Support only.
func (h *ChatHandler) ListChats(c echo.Context) error {
	identity := middleware.IdentityFrom(c)

	previews, err := h.chatList.List(c.Request().Context(), identity.Username)
	if err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, previews)
}

func (h *ChatHandler) GetMessages(c echo.Context) error {
	key, err := conversationKey(c)
	if err != nil {
		return response.Error(c, err)
	}

	messages, err := h.messages.History(c.Request().Context(), key)
	if err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, websocket.NewMessageViews(messages))
}

func (h *ChatHandler) SendMessage(c echo.Context) error {
	key, err := conversationKey(c)
	if err != nil {
		return response.Error(c, err)
	}

	var req sendMessageRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, errors.BadRequest("Invalid request body", err))
	}
	if err := c.Validate(&req); err != nil {
		return response.Error(c, err)
	}

	identity := middleware.IdentityFrom(c)
	msg, err := h.messages.Send(c.Request().Context(), key, req.Text, identity.Username)
	if err != nil {
		return response.Error(c, err)
	}

	return response.Created(c, websocket.NewMessageView(msg))
}

func (h *ChatHandler) MarkSeen(c echo.Context) error {
	key, err := conversationKey(c)
	if err != nil {
		return response.Error(c, err)
	}

	identity := middleware.IdentityFrom(c)
	if err := h.messages.MarkSeen(c.Request().Context(), key, c.Param("id"), identity.Username); err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, map[string]bool{"seen": true})
}

// conversationKey reads :key and enforces that clients only reach their own
// conversation.
func conversationKey(c echo.Context) (string, error) {
	key := c.Param("key")
	if key == "" {
		return "", errors.BadRequest("Conversation key is required", nil)
	}

	identity := middleware.IdentityFrom(c)
	if identity == nil {
		return "", errors.Unauthorized("Authentication required", nil)
	}
	if !identity.CanAccessConversation(key) {
		return "", errors.Forbidden("You cannot access this conversation", nil)
	}
	return key, nil
}
