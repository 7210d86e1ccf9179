package handler

import (
	"net/http"

	gorillaws "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"supportchat/internal/adapter/api/middleware"
	ws "supportchat/internal/infrastructure/websocket"
	"supportchat/pkg/errors"
	"supportchat/pkg/logger"
	"supportchat/pkg/response"
)

type WebSocketHandler struct {
	manager  *ws.Manager
	upgrader gorillaws.Upgrader
}

func NewWebSocketHandler(manager *ws.Manager, allowedOrigins []string) *WebSocketHandler {
	return &WebSocketHandler{
		manager: manager,
		upgrader: gorillaws.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin(allowedOrigins),
		},
	}
}

// HandleWebSocket upgrades an authenticated request and serves the session
// until the socket closes.
func (h *WebSocketHandler) HandleWebSocket(c echo.Context) error {
	identity := middleware.IdentityFrom(c)
	if identity == nil {
		return response.Error(c, errors.Unauthorized("Authentication required", nil))
	}

	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// The upgrader has already answered the request.
		logger.Warn("WebSocket upgrade for %s failed: %v", identity.Username, err)
		return nil
	}

	h.manager.Serve(conn, *identity)
	return nil
}

// checkOrigin allows every origin when none are configured.
func checkOrigin(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}

	set := make(map[string]struct{}, len(allowed))
	for _, origin := range allowed {
		set[origin] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}
