package repository

import (
	"context"

	"supportchat/internal/domain/entity"
)

type ChatRepository interface {
	// SendMessage upserts chats/{key}.updatedAt, then appends the message with a
	// store-assigned id and createdAt. Implementations without multi-document
	// transactions may leave the conversation touched if the append fails.
	SendMessage(ctx context.Context, conversationKey string, message *entity.Message) error
	// MarkSeen adds viewer to the message's seenBy with set-union semantics.
	MarkSeen(ctx context.Context, conversationKey, messageID, viewer string) error

	GetMessages(ctx context.Context, conversationKey string) ([]*entity.Message, error)
	ListConversations(ctx context.Context) ([]*entity.Conversation, error)

	// WatchMessages pushes the conversation's messages ascending by createdAt.
	WatchMessages(ctx context.Context, conversationKey string, fn MessagesHandler) (Subscription, error)
	// WatchConversations pushes every conversation document.
	WatchConversations(ctx context.Context, fn ConversationsHandler) (Subscription, error)
	// WatchRecentMessages pushes the newest limit messages across all
	// conversations, newest first, each with ConversationKey set.
	WatchRecentMessages(ctx context.Context, limit int, fn MessagesHandler) (Subscription, error)
}
