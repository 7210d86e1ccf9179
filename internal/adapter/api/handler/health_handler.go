package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	ws "supportchat/internal/infrastructure/websocket"
)

type HealthHandler struct {
	manager *ws.Manager
	backend string
}

func NewHealthHandler(manager *ws.Manager, backend string) *HealthHandler {
	return &HealthHandler{
		manager: manager,
		backend: backend,
	}
}

func (h *HealthHandler) CheckHealth(c echo.Context) error {
	body := map[string]interface{}{
		"status":  "Server is running",
		"time":    time.Now().Format(time.RFC3339),
		"backend": h.backend,
	}
	if h.manager != nil {
		body["sockets"] = h.manager.Count()
	}
	return c.JSON(http.StatusOK, body)
}
