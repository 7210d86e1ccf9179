package repository

import "supportchat/internal/domain/entity"

// Subscription is a live query handle. Every delivery is the complete current
// result set, never a delta.
type Subscription interface {
	// Unsubscribe detaches the listener. It never blocks, may be called more
	// than once, and may be called from inside the listener's own callback.
	Unsubscribe()
	// Done is closed once no further callback can run.
	Done() <-chan struct{}
}

// Handlers receive either a snapshot or a terminal error. After an error the
// subscription is finished; subscribing again restarts it.
type (
	MessagesHandler      func(messages []*entity.Message, err error)
	ConversationsHandler func(conversations []*entity.Conversation, err error)
	PresenceHandler      func(record *entity.PresenceRecord, err error)
)
