package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"supportchat/internal/domain/entity"
	"supportchat/internal/domain/repository"
	"supportchat/internal/usecase"
	"supportchat/pkg/errors"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxFrameSize   = 16 * 1024
	sendBufferSize = 256
)

// Session is one connected viewer. It owns every live query and presence timer
// opened on the viewer's behalf and releases them all on Close.
type Session struct {
	ID       string
	Identity entity.Identity

	manager *Manager
	conn    *websocket.Conn
	send    chan []byte
	ctx     context.Context
	cancel  context.CancelFunc
	tracker *usecase.PresenceTracker
	log     zerolog.Logger

	mutex    sync.Mutex
	closed   bool
	thread   *threadSubscription
	chatList repository.Subscription
	watches  map[string]repository.Subscription
}

// threadSubscription is the single open conversation of a session.
type threadSubscription struct {
	key     string
	sub     repository.Subscription
	cancel  context.CancelFunc
	pending chan []*entity.Message
}

func newSession(parent context.Context, m *Manager, conn *websocket.Conn, identity entity.Identity) *Session {
	ctx, cancel := context.WithCancel(parent)
	id := uuid.NewString()

	return &Session{
		ID:       id,
		Identity: identity,
		manager:  m,
		conn:     conn,
		send:     make(chan []byte, sendBufferSize),
		ctx:      ctx,
		cancel:   cancel,
		tracker:  m.services.Presence.NewTracker(identity.Username),
		log:      m.log.With().Str("session", id).Str("user", identity.Username).Logger(),
		watches:  make(map[string]repository.Subscription),
	}
}

func (s *Session) readPump() {
	s.conn.SetReadLimit(maxFrameSize)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) && s.ctx.Err() == nil {
				s.log.Warn().Err(err).Msg("read failed")
			}
			return
		}
		s.manager.handleFrame(s, data)
	}
}

// writePump is the only writer on conn. It closes conn when the session ends,
// which in turn unblocks readPump.
func (s *Session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case payload := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				s.log.Debug().Err(err).Msg("write failed")
				s.Close()
				return
			}

		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.Close()
				return
			}

		case <-s.ctx.Done():
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// enqueue never blocks. A viewer that cannot keep up is disconnected.
func (s *Session) enqueue(frameType string, data interface{}) {
	payload, err := json.Marshal(WSMessage{
		Type:      frameType,
		Data:      data,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		s.log.Error().Err(err).Str("type", frameType).Msg("encode frame")
		return
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.closed {
		return
	}

	select {
	case s.send <- payload:
	default:
		s.log.Warn().Msg("send buffer full, closing session")
		go s.Close()
	}
}

func (s *Session) sendError(request string, err error, detail ErrorData) {
	detail.Code = errors.CodeOf(err)
	detail.Message = errors.MessageOf(err, "Internal server error")
	detail.Request = request
	s.enqueue(TypeError, detail)
}

func (s *Session) sendSubscriptionError(scope string, err error, detail ErrorData) {
	detail.Code = errors.CodeOf(err)
	detail.Message = errors.MessageOf(err, "Live updates stopped")
	detail.Scope = scope
	s.enqueue(TypeSubscriptionError, detail)
}

func (s *Session) authorize(conversationKey string) error {
	if !s.Identity.CanAccessConversation(conversationKey) {
		return errors.Forbidden("You cannot access this conversation", nil)
	}
	return nil
}

// openThread replaces the open conversation. Every snapshot is pushed to the
// viewer and then marked seen on the viewer's behalf.
func (s *Session) openThread(conversationKey string) error {
	s.closeThread()

	ctx, cancel := context.WithCancel(s.ctx)
	t := &threadSubscription{
		key:     conversationKey,
		cancel:  cancel,
		pending: make(chan []*entity.Message, 1),
	}
	go s.markLoop(ctx, t)

	sub, err := s.manager.services.Messages.Subscribe(ctx, conversationKey, func(messages []*entity.Message, err error) {
		if err != nil {
			s.sendSubscriptionError(scopeMessages, err, ErrorData{ConversationKey: conversationKey})
			s.dropThread(t)
			return
		}

		s.enqueue(TypeMessages, MessagesData{ConversationKey: conversationKey, Messages: NewMessageViews(messages)})

		// Latest snapshot wins.
		select {
		case <-t.pending:
		default:
		}
		select {
		case t.pending <- messages:
		default:
		}
	})
	if err != nil {
		cancel()
		return err
	}
	t.sub = sub

	s.mutex.Lock()
	if s.closed || ctx.Err() != nil {
		s.mutex.Unlock()
		sub.Unsubscribe()
		cancel()
		return nil
	}
	s.thread = t
	s.mutex.Unlock()
	return nil
}

func (s *Session) markLoop(ctx context.Context, t *threadSubscription) {
	viewer := s.Identity.Username
	for {
		select {
		case <-ctx.Done():
			return
		case messages := <-t.pending:
			if n := s.manager.services.Messages.MarkAllSeen(ctx, t.key, viewer, messages); n > 0 {
				s.log.Debug().Str("conversation", t.key).Int("marked", n).Msg("marked seen")
			}
		}
	}
}

// dropThread forgets a thread whose stream ended on its own.
func (s *Session) dropThread(t *threadSubscription) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.thread == t {
		s.thread = nil
	}
	t.cancel()
}

func (s *Session) closeThread() {
	s.mutex.Lock()
	t := s.thread
	s.thread = nil
	s.mutex.Unlock()

	if t != nil {
		t.sub.Unsubscribe()
		t.cancel()
	}
}

func (s *Session) openChatList() error {
	if !s.Identity.IsSupport() {
		return errors.Forbidden("Only support can list conversations", nil)
	}
	s.closeChatList()

	sub, err := s.manager.services.ChatList.Subscribe(s.ctx, s.Identity.Username, func(previews []*entity.ChatPreview, err error) {
		if err != nil {
			s.sendSubscriptionError(scopeChatList, err, ErrorData{})
			return
		}
		s.enqueue(TypeChatList, ChatListData{Chats: previews})
	})
	if err != nil {
		return err
	}

	s.mutex.Lock()
	if s.closed {
		s.mutex.Unlock()
		sub.Unsubscribe()
		return nil
	}
	s.chatList = sub
	s.mutex.Unlock()
	return nil
}

func (s *Session) closeChatList() {
	s.mutex.Lock()
	sub := s.chatList
	s.chatList = nil
	s.mutex.Unlock()

	if sub != nil {
		sub.Unsubscribe()
	}
}

// watchPresence (re)opens a presence watch, so the viewer always gets the
// current status back.
func (s *Session) watchPresence(username string) error {
	s.unwatchPresence(username)

	sub, err := s.manager.services.Presence.WatchPresence(s.ctx, username, func(status entity.PresenceStatus, err error) {
		if err != nil {
			s.sendSubscriptionError(scopePresence, err, ErrorData{Username: username})
			return
		}
		s.enqueue(TypePresence, status)
	})
	if err != nil {
		return err
	}

	s.mutex.Lock()
	if s.closed {
		s.mutex.Unlock()
		sub.Unsubscribe()
		return nil
	}
	s.watches[username] = sub
	s.mutex.Unlock()
	return nil
}

func (s *Session) unwatchPresence(username string) {
	s.mutex.Lock()
	sub := s.watches[username]
	delete(s.watches, username)
	s.mutex.Unlock()

	if sub != nil {
		sub.Unsubscribe()
	}
}

// Close releases everything the session opened and writes the viewer offline.
// It is safe to call more than once and from any goroutine.
func (s *Session) Close() {
	s.mutex.Lock()
	if s.closed {
		s.mutex.Unlock()
		return
	}
	s.closed = true

	var subs []repository.Subscription
	var thread *threadSubscription
	if s.thread != nil {
		thread = s.thread
		subs = append(subs, s.thread.sub)
		s.thread = nil
	}
	if s.chatList != nil {
		subs = append(subs, s.chatList)
		s.chatList = nil
	}
	for username, sub := range s.watches {
		subs = append(subs, sub)
		delete(s.watches, username)
	}
	s.mutex.Unlock()

	for _, sub := range subs {
		sub.Unsubscribe()
	}
	if thread != nil {
		thread.cancel()
	}
	s.tracker.Stop()
	s.cancel()
	s.log.Debug().Int("released", len(subs)).Msg("session closed")
}
