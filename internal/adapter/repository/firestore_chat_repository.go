package repository

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"supportchat/internal/domain/entity"
	"supportchat/internal/domain/repository"
	"supportchat/pkg/errors"
	"supportchat/pkg/logger"
)

const (
	chatsCollection    = "chats"
	messagesCollection = "messages"
)

type firestoreChatRepository struct {
	client *firestore.Client
}

func NewFirestoreChatRepository(client *firestore.Client) repository.ChatRepository {
	return &firestoreChatRepository{
		client: client,
	}
}

func (r *firestoreChatRepository) chatRef(conversationKey string) *firestore.DocumentRef {
	return r.client.Collection(chatsCollection).Doc(conversationKey)
}

func (r *firestoreChatRepository) messagesRef(conversationKey string) *firestore.CollectionRef {
	return r.chatRef(conversationKey).Collection(messagesCollection)
}

// SendMessage touches the conversation and appends the message in one
// transaction, so a listener never observes one without the other.
func (r *firestoreChatRepository) SendMessage(ctx context.Context, conversationKey string, message *entity.Message) error {
	chatRef := r.chatRef(conversationKey)
	msgRef := r.messagesRef(conversationKey).NewDoc()

	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		if err := tx.Set(chatRef, map[string]interface{}{
			"clientUsername": conversationKey,
			"updatedAt":      firestore.ServerTimestamp,
		}, firestore.MergeAll); err != nil {
			return err
		}
		return tx.Create(msgRef, message)
	})
	if err != nil {
		return fmt.Errorf("send message to %s: %w", conversationKey, err)
	}

	message.ID = msgRef.ID
	message.ConversationKey = conversationKey

	// Read back the server-assigned createdAt. The write already succeeded, so
	// a failure here only leaves the timestamp empty.
	doc, err := msgRef.Get(ctx)
	if err != nil {
		logger.Debug("Read back of message %s/%s failed: %v", conversationKey, msgRef.ID, err)
		return nil
	}
	var stored entity.Message
	if err := doc.DataTo(&stored); err == nil {
		message.CreatedAt = stored.CreatedAt
	}
	return nil
}

func (r *firestoreChatRepository) MarkSeen(ctx context.Context, conversationKey, messageID, viewer string) error {
	_, err := r.messagesRef(conversationKey).Doc(messageID).Update(ctx, []firestore.Update{
		{Path: "seenBy", Value: firestore.ArrayUnion(viewer)},
	})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return errors.NotFound("Message", err)
		}
		return fmt.Errorf("mark %s/%s seen: %w", conversationKey, messageID, err)
	}
	return nil
}

func (r *firestoreChatRepository) GetMessages(ctx context.Context, conversationKey string) ([]*entity.Message, error) {
	iter := r.messagesRef(conversationKey).OrderBy("createdAt", firestore.Asc).Documents(ctx)
	defer iter.Stop()

	var docs []*firestore.DocumentSnapshot
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list messages of %s: %w", conversationKey, err)
		}
		docs = append(docs, doc)
	}

	return decodeMessages(docs)
}

func (r *firestoreChatRepository) ListConversations(ctx context.Context) ([]*entity.Conversation, error) {
	docs, err := r.client.Collection(chatsCollection).Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	return decodeConversations(docs)
}

func (r *firestoreChatRepository) WatchMessages(ctx context.Context, conversationKey string, fn repository.MessagesHandler) (repository.Subscription, error) {
	q := r.messagesRef(conversationKey).OrderBy("createdAt", firestore.Asc)
	return watchQuery(ctx, q, decodeMessages, fn), nil
}

func (r *firestoreChatRepository) WatchConversations(ctx context.Context, fn repository.ConversationsHandler) (repository.Subscription, error) {
	return watchQuery(ctx, r.client.Collection(chatsCollection).Query, decodeConversations, fn), nil
}

func (r *firestoreChatRepository) WatchRecentMessages(ctx context.Context, limit int, fn repository.MessagesHandler) (repository.Subscription, error) {
	if limit <= 0 {
		return nil, errors.BadRequest("recent message window must be positive", nil)
	}
	q := r.client.CollectionGroup(messagesCollection).OrderBy("createdAt", firestore.Desc).Limit(limit)
	return watchQuery(ctx, q, decodeMessages, fn), nil
}

// decodeMessages keeps the store's order. The conversation key comes from the
// parent chat document, which also serves collection-group results.
func decodeMessages(docs []*firestore.DocumentSnapshot) ([]*entity.Message, error) {
	messages := make([]*entity.Message, 0, len(docs))
	for _, doc := range docs {
		var message entity.Message
		if err := doc.DataTo(&message); err != nil {
			return nil, fmt.Errorf("decode message %s: %w", doc.Ref.Path, err)
		}
		message.ID = doc.Ref.ID
		if parent := doc.Ref.Parent.Parent; parent != nil {
			message.ConversationKey = parent.ID
		}
		message.Normalize()
		messages = append(messages, &message)
	}
	return messages, nil
}

func decodeConversations(docs []*firestore.DocumentSnapshot) ([]*entity.Conversation, error) {
	conversations := make([]*entity.Conversation, 0, len(docs))
	for _, doc := range docs {
		var conversation entity.Conversation
		if err := doc.DataTo(&conversation); err != nil {
			return nil, fmt.Errorf("decode conversation %s: %w", doc.Ref.ID, err)
		}
		// Older documents only carry updatedAt; the document id is the key.
		conversation.ClientUsername = doc.Ref.ID
		conversations = append(conversations, &conversation)
	}
	return conversations, nil
}
