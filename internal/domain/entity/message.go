package entity

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

type MessageKind string

const (
	MessageKindPlain   MessageKind = "plain"
	MessageKindPayment MessageKind = "payment"
)

type Message struct {
	ID              string `json:"id" firestore:"-"`
	ConversationKey string `json:"conversation_key" firestore:"-"`
	Text            string `json:"text" firestore:"text"`
	User            string `json:"user" firestore:"user"`
	// CreatedAt is assigned by the store. It is monotonic per writer only.
	CreatedAt time.Time   `json:"created_at" firestore:"createdAt,serverTimestamp"`
	SeenBy    []string    `json:"seen_by" firestore:"seenBy"`
	Kind      MessageKind `json:"kind" firestore:"kind,omitempty"`
	// LegacyType is the discriminator written by older web clients ("type": "payment").
	LegacyType string `json:"-" firestore:"type,omitempty"`
}

// Normalize fills Kind for documents that predate the kind field.
func (m *Message) Normalize() {
	if m.Kind != "" {
		return
	}
	if m.LegacyType == string(MessageKindPayment) {
		m.Kind = MessageKindPayment
		return
	}
	m.Kind = MessageKindPlain
}

func (m *Message) SeenByUser(username string) bool {
	for _, u := range m.SeenBy {
		if u == username {
			return true
		}
	}
	return false
}

// IsUnreadFor reports whether the message counts towards viewer's unread total.
func (m *Message) IsUnreadFor(viewer string) bool {
	return m.User != viewer && !m.SeenByUser(viewer)
}

// MessageBody is the decoded form of a message, discriminated by Kind.
type MessageBody interface {
	isMessageBody()
}

type PlainBody struct {
	Text string
}

type PaymentBody struct {
	Payment PaymentPayload
}

func (PlainBody) isMessageBody()   {}
func (PaymentBody) isMessageBody() {}

// Body decodes the message by its kind. Plain text is never parsed.
func (m *Message) Body() (MessageBody, error) {
	switch m.Kind {
	case MessageKindPayment:
		var payload PaymentPayload
		if err := json.Unmarshal([]byte(m.Text), &payload); err != nil {
			return nil, fmt.Errorf("decode payment payload of message %s: %w", m.ID, err)
		}
		if payload.Type != PaymentPayloadType {
			return nil, fmt.Errorf("message %s: unexpected payload type %q", m.ID, payload.Type)
		}
		return PaymentBody{Payment: payload}, nil
	case MessageKindPlain, "":
		return PlainBody{Text: m.Text}, nil
	default:
		return nil, fmt.Errorf("message %s: unknown kind %q", m.ID, m.Kind)
	}
}

// MessageBefore orders by createdAt, then by id so concurrent writers sort stably.
func MessageBefore(a, b *Message) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}

// SortMessages sorts ascending by createdAt in place.
func SortMessages(messages []*Message) {
	sort.SliceStable(messages, func(i, j int) bool {
		return MessageBefore(messages[i], messages[j])
	})
}
