package websocket

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"supportchat/internal/domain/entity"
	"supportchat/internal/infrastructure/ratelimit"
	"supportchat/pkg/errors"
)

// Inbound frame types
const (
	TypePing             = "ping"
	TypeJoinChat         = "join_chat"
	TypeLeaveChat        = "leave_chat"
	TypeSendMessage      = "send_message"
	TypeMarkSeen         = "mark_seen"
	TypeTyping           = "typing"
	TypeVisibility       = "visibility"
	TypeSubscribeChats   = "subscribe_chats"
	TypeUnsubscribeChats = "unsubscribe_chats"
	TypeWatchPresence    = "watch_presence"
	TypeUnwatchPresence  = "unwatch_presence"
)

// Outbound frame types
const (
	TypePong              = "pong"
	TypeMessages          = "messages"
	TypeChatList          = "chat_list"
	TypePresence          = "presence"
	TypeMessageSent       = "message_sent"
	TypeError             = "error"
	TypeSubscriptionError = "subscription_error"
)

const (
	scopeMessages = "messages"
	scopeChatList = "chat_list"
	scopePresence = "presence"
)

// WSMessage is the envelope of every outbound frame.
type WSMessage struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp string      `json:"timestamp"`
}

type inboundMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type ConversationData struct {
	ConversationKey string `json:"conversation_key" validate:"required"`
}

type SendMessageData struct {
	TempID          string `json:"temp_id"`
	ConversationKey string `json:"conversation_key" validate:"required"`
	Text            string `json:"text"`
}

type MarkSeenData struct {
	ConversationKey string `json:"conversation_key" validate:"required"`
	MessageID       string `json:"message_id" validate:"required"`
}

// TypingData carries the current input. Empty text ends typing at once.
type TypingData struct {
	ConversationKey string `json:"conversation_key" validate:"required"`
	Text            string `json:"text"`
}

type VisibilityData struct {
	Visible *bool `json:"visible" validate:"required"`
}

type PresenceTargetData struct {
	Username string `json:"username" validate:"required"`
}

// MessageView is a stored message plus its decoded payment payload, if any.
type MessageView struct {
	*entity.Message
	Payment *entity.PaymentPayload `json:"payment,omitempty"`
}

type MessagesData struct {
	ConversationKey string        `json:"conversation_key"`
	Messages        []MessageView `json:"messages"`
}

type ChatListData struct {
	Chats []*entity.ChatPreview `json:"chats"`
}

type MessageSentData struct {
	TempID  string      `json:"temp_id,omitempty"`
	Message MessageView `json:"message"`
}

type ErrorData struct {
	Code            string `json:"code"`
	Message         string `json:"message"`
	Request         string `json:"request,omitempty"`
	Scope           string `json:"scope,omitempty"`
	TempID          string `json:"temp_id,omitempty"`
	ConversationKey string `json:"conversation_key,omitempty"`
	Username        string `json:"username,omitempty"`
}

var validate = validator.New()

func NewMessageView(m *entity.Message) MessageView {
	view := MessageView{Message: m}
	if body, err := m.Body(); err == nil {
		if payment, ok := body.(entity.PaymentBody); ok {
			view.Payment = &payment.Payment
		}
	}
	return view
}

func NewMessageViews(messages []*entity.Message) []MessageView {
	views := make([]MessageView, len(messages))
	for i, m := range messages {
		views[i] = NewMessageView(m)
	}
	return views
}

func decodeData(raw json.RawMessage, v interface{}) error {
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, v); err != nil {
			return errors.BadRequest("Invalid frame data", err)
		}
	}
	if err := validate.Struct(v); err != nil {
		return errors.BadRequest("Missing required fields", err)
	}
	return nil
}

// handleFrame dispatches one inbound frame. Failures go back to the sender as
// an error frame and never end the session.
func (m *Manager) handleFrame(s *Session, raw []byte) {
	var msg inboundMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		s.sendError("", errors.BadRequest("Invalid message format", err), ErrorData{})
		return
	}

	s.log.Debug().Str("type", msg.Type).Msg("frame received")

	var err error
	switch msg.Type {
	case TypePing:
		s.enqueue(TypePong, map[string]string{"status": "alive"})

	case TypeJoinChat:
		err = m.handleJoinChat(s, msg.Data)

	case TypeLeaveChat:
		s.closeThread()
		s.tracker.StopTyping()

	case TypeSendMessage:
		err = m.handleSendMessage(s, msg.Data)

	case TypeMarkSeen:
		err = m.handleMarkSeen(s, msg.Data)

	case TypeTyping:
		err = m.handleTyping(s, msg.Data)

	case TypeVisibility:
		var data VisibilityData
		if err = decodeData(msg.Data, &data); err == nil {
			s.tracker.SetVisible(*data.Visible)
		}

	case TypeSubscribeChats:
		err = s.openChatList()

	case TypeUnsubscribeChats:
		s.closeChatList()

	case TypeWatchPresence:
		var data PresenceTargetData
		if err = decodeData(msg.Data, &data); err == nil {
			err = s.watchPresence(data.Username)
		}

	case TypeUnwatchPresence:
		var data PresenceTargetData
		if err = decodeData(msg.Data, &data); err == nil {
			s.unwatchPresence(data.Username)
		}

	default:
		err = errors.BadRequest(fmt.Sprintf("Unknown message type %q", msg.Type), nil)
	}

	if err != nil {
		s.sendError(msg.Type, err, ErrorData{})
	}
}

func (m *Manager) handleJoinChat(s *Session, raw json.RawMessage) error {
	var data ConversationData
	if err := decodeData(raw, &data); err != nil {
		return err
	}
	if err := s.authorize(data.ConversationKey); err != nil {
		return err
	}
	return s.openThread(data.ConversationKey)
}

// handleSendMessage answers with message_sent, or an error frame carrying the
// temp id so the client can mark its optimistic copy as failed.
func (m *Manager) handleSendMessage(s *Session, raw json.RawMessage) error {
	var data SendMessageData
	if err := decodeData(raw, &data); err != nil {
		return err
	}

	detail := ErrorData{TempID: data.TempID, ConversationKey: data.ConversationKey}
	if err := s.authorize(data.ConversationKey); err != nil {
		s.sendError(TypeSendMessage, err, detail)
		return nil
	}

	msg, err := m.services.Messages.Send(s.ctx, data.ConversationKey, data.Text, s.Identity.Username)
	if err != nil {
		s.sendError(TypeSendMessage, err, detail)
		return nil
	}

	s.tracker.StopTyping()
	s.enqueue(TypeMessageSent, MessageSentData{TempID: data.TempID, Message: NewMessageView(msg)})
	return nil
}

func (m *Manager) handleMarkSeen(s *Session, raw json.RawMessage) error {
	var data MarkSeenData
	if err := decodeData(raw, &data); err != nil {
		return err
	}
	if err := s.authorize(data.ConversationKey); err != nil {
		return err
	}

	if rl := m.services.RateLimiter; rl != nil {
		if allowed, _ := rl.Allow(s.Identity.Username, ratelimit.ActionMarkSeen); !allowed {
			return errors.TooManyRequests("Too many seen marks")
		}
	}

	return m.services.Messages.MarkSeen(s.ctx, data.ConversationKey, data.MessageID, s.Identity.Username)
}

// handleTyping drops keystrokes over the rate limit without telling the
// client; the next allowed one re-arms the debounce.
func (m *Manager) handleTyping(s *Session, raw json.RawMessage) error {
	var data TypingData
	if err := decodeData(raw, &data); err != nil {
		return err
	}
	if err := s.authorize(data.ConversationKey); err != nil {
		return err
	}

	if strings.TrimSpace(data.Text) == "" {
		s.tracker.StopTyping()
		return nil
	}

	if rl := m.services.RateLimiter; rl != nil {
		if allowed, _ := rl.Allow(s.Identity.Username, ratelimit.ActionTyping); !allowed {
			return nil
		}
	}

	s.tracker.Keystroke(data.ConversationKey)
	return nil
}
