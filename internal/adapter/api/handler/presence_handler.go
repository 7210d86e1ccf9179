package handler

import (
	"github.com/labstack/echo/v4"

	"supportchat/internal/usecase"
	"supportchat/pkg/errors"
	"supportchat/pkg/response"
)

type PresenceHandler struct {
	presence *usecase.PresenceUseCase
}

func NewPresenceHandler(presence *usecase.PresenceUseCase) *PresenceHandler {
	return &PresenceHandler{presence: presence}
}

// GetPresence resolves a user's status with the same staleness rule the live
// watch applies.
func (h *PresenceHandler) GetPresence(c echo.Context) error {
	username := c.Param("username")
	if username == "" {
		return response.Error(c, errors.BadRequest("Username is required", nil))
	}

	status, err := h.presence.GetPresence(c.Request().Context(), username)
	if err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, status)
}
