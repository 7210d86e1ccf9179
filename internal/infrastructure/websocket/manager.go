package websocket

import (
	"context"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"supportchat/internal/domain/entity"
	"supportchat/internal/infrastructure/metrics"
	"supportchat/internal/infrastructure/ratelimit"
	"supportchat/internal/usecase"
	"supportchat/pkg/logger"
)

// Services are the engine entry points a session drives on its viewer's behalf.
type Services struct {
	Messages    *usecase.MessageStreamUseCase
	ChatList    *usecase.ChatListUseCase
	Presence    *usecase.PresenceUseCase
	RateLimiter *ratelimit.RateLimiter
}

// Manager tracks every connected session. One session is one viewer.
type Manager struct {
	services Services
	log      zerolog.Logger

	ctx      context.Context
	sessions map[string]*Session
	mutex    sync.RWMutex
}

func NewManager(services Services) *Manager {
	return &Manager{
		services: services,
		log:      logger.Component("websocket"),
		ctx:      context.Background(),
		sessions: make(map[string]*Session),
	}
}

// Start binds new sessions to ctx. Once ctx ends every session is closed.
func (m *Manager) Start(ctx context.Context) {
	m.mutex.Lock()
	m.ctx = ctx
	m.mutex.Unlock()

	go func() {
		<-ctx.Done()
		m.CloseAll()
	}()
}

// Serve runs a session on conn and blocks until the peer goes away or the
// manager stops. Everything the session opened is released before it returns.
func (m *Manager) Serve(conn *websocket.Conn, identity entity.Identity) {
	m.mutex.RLock()
	parent := m.ctx
	m.mutex.RUnlock()

	s := newSession(parent, m, conn, identity)
	m.register(s)
	defer m.unregister(s)

	go s.writePump()
	s.tracker.Start()
	s.readPump()
	s.Close()
}

func (m *Manager) register(s *Session) {
	m.mutex.Lock()
	m.sessions[s.ID] = s
	m.mutex.Unlock()

	metrics.ActiveSockets.Inc()
	m.log.Info().Str("session", s.ID).Str("user", s.Identity.Username).Str("role", string(s.Identity.Role)).Msg("client registered")
}

func (m *Manager) unregister(s *Session) {
	m.mutex.Lock()
	_, ok := m.sessions[s.ID]
	delete(m.sessions, s.ID)
	m.mutex.Unlock()

	if ok {
		metrics.ActiveSockets.Dec()
		m.log.Info().Str("session", s.ID).Str("user", s.Identity.Username).Msg("client unregistered")
	}
}

// Count returns the number of connected sessions.
func (m *Manager) Count() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.sessions)
}

func (m *Manager) CloseAll() {
	m.mutex.RLock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mutex.RUnlock()

	for _, s := range sessions {
		s.Close()
	}
}
