package usecase

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"supportchat/internal/domain/entity"
	"supportchat/internal/domain/repository"
	"supportchat/internal/infrastructure/metrics"
	"supportchat/internal/infrastructure/ratelimit"
	"supportchat/pkg/errors"
	"supportchat/pkg/logger"
)

const maxMessageLength = 4000

type MessageStreamUseCase struct {
	chatRepo    repository.ChatRepository
	userRepo    repository.UserRepository
	rateLimiter *ratelimit.RateLimiter

	// clientKeys caches usernames confirmed as clients. Roles never change
	// after provisioning.
	clientKeys sync.Map
}

// NewMessageStreamUseCase builds the stream. With a nil userRepo writes skip
// the conversation owner check.
func NewMessageStreamUseCase(chatRepo repository.ChatRepository, userRepo repository.UserRepository, rateLimiter *ratelimit.RateLimiter) *MessageStreamUseCase {
	return &MessageStreamUseCase{
		chatRepo:    chatRepo,
		userRepo:    userRepo,
		rateLimiter: rateLimiter,
	}
}

// Subscribe streams the full ordered message list of one conversation. A store
// error is delivered once as SUBSCRIPTION_FAILED and ends the stream.
func (uc *MessageStreamUseCase) Subscribe(ctx context.Context, conversationKey string, fn repository.MessagesHandler) (repository.Subscription, error) {
	if conversationKey == "" {
		return nil, errors.BadRequest("Conversation key is required", nil)
	}

	sub, err := uc.chatRepo.WatchMessages(ctx, conversationKey, func(messages []*entity.Message, err error) {
		if err != nil {
			metrics.RecordSubscriptionError(metrics.SubscriptionMessages)
			logger.Warn("Message stream for %s ended: %v", conversationKey, err)
			fn(nil, errors.SubscriptionFailed("messages", err))
			return
		}
		fn(messages, nil)
	})
	if err != nil {
		return nil, errors.SubscriptionFailed("messages", err)
	}

	trackSubscription(metrics.SubscriptionMessages, sub)
	return sub, nil
}

// History reads a conversation once, in stream order.
func (uc *MessageStreamUseCase) History(ctx context.Context, conversationKey string) ([]*entity.Message, error) {
	if conversationKey == "" {
		return nil, errors.BadRequest("Conversation key is required", nil)
	}

	messages, err := uc.chatRepo.GetMessages(ctx, conversationKey)
	if err != nil {
		logger.Error("Failed to read messages of %s: %v", conversationKey, err)
		return nil, errors.ConnectionError(err)
	}
	entity.SortMessages(messages)
	return messages, nil
}

// Send appends a plain message authored by author. The conversation document
// is touched first so discovery can see the conversation.
func (uc *MessageStreamUseCase) Send(ctx context.Context, conversationKey, text, author string) (*entity.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, errors.BadRequest("Message text cannot be empty", nil)
	}
	if utf8.RuneCountInString(text) > maxMessageLength {
		return nil, errors.BadRequest(fmt.Sprintf("Message text cannot exceed %d characters", maxMessageLength), nil)
	}

	if uc.rateLimiter != nil {
		if allowed, wait := uc.rateLimiter.Allow(author, ratelimit.ActionSendMessage); !allowed {
			return nil, errors.TooManyRequests(fmt.Sprintf("Too many messages. Try again in %s", wait.Round(time.Second)))
		}
	}

	message := &entity.Message{
		Text:   text,
		User:   author,
		SeenBy: []string{author},
		Kind:   entity.MessageKindPlain,
	}
	return uc.write(ctx, conversationKey, message)
}

// SendPayment appends a payment message through the same write path as Send.
func (uc *MessageStreamUseCase) SendPayment(ctx context.Context, conversationKey, author string, payload entity.PaymentPayload) (*entity.Message, error) {
	text, err := payload.Encode()
	if err != nil {
		return nil, errors.Internal("Failed to encode payment payload", err)
	}

	message := &entity.Message{
		Text:       text,
		User:       author,
		SeenBy:     []string{author},
		Kind:       entity.MessageKindPayment,
		LegacyType: string(entity.MessageKindPayment),
	}
	return uc.write(ctx, conversationKey, message)
}

func (uc *MessageStreamUseCase) write(ctx context.Context, conversationKey string, message *entity.Message) (*entity.Message, error) {
	if conversationKey == "" {
		return nil, errors.BadRequest("Conversation key is required", nil)
	}
	if err := uc.requireClientKey(ctx, conversationKey); err != nil {
		return nil, err
	}

	timer := metricsTimer()
	err := uc.chatRepo.SendMessage(ctx, conversationKey, message)
	timer()
	if err != nil {
		metrics.SendFailures.Inc()
		logger.Error("Failed to send %s message to %s: %v", message.Kind, conversationKey, err)
		return nil, errors.SendFailed(err)
	}

	metrics.MessagesSent.WithLabelValues(string(message.Kind)).Inc()
	return message, nil
}

// requireClientKey rejects writes to a key that is not a client username, so no
// conversation is ever created under a support name or an unknown one.
func (uc *MessageStreamUseCase) requireClientKey(ctx context.Context, conversationKey string) error {
	if uc.userRepo == nil {
		return nil
	}
	if _, ok := uc.clientKeys.Load(conversationKey); ok {
		return nil
	}

	user, err := uc.userRepo.GetByUsername(ctx, conversationKey)
	if err != nil {
		if errors.Is(err, errors.CodeNotFound) {
			return errors.BadRequest("Conversation key must be a client username", nil)
		}
		logger.Error("Failed to look up owner of %s: %v", conversationKey, err)
		return errors.SendFailed(err)
	}
	if user.Role != entity.RoleClient {
		return errors.Forbidden("Conversations belong to clients only", nil)
	}

	uc.clientKeys.Store(conversationKey, struct{}{})
	return nil
}

// MarkSeen adds viewer to seenBy. Repeating it has no further effect.
func (uc *MessageStreamUseCase) MarkSeen(ctx context.Context, conversationKey, messageID, viewer string) error {
	if conversationKey == "" || messageID == "" {
		return errors.BadRequest("Conversation key and message id are required", nil)
	}

	if err := uc.chatRepo.MarkSeen(ctx, conversationKey, messageID, viewer); err != nil {
		metrics.MarkSeenFailures.Inc()
		return errors.MarkSeenFailed(err)
	}
	return nil
}

// MarkAllSeen marks every message in the snapshot that viewer did not author
// and has not seen. Failures are logged and skipped. It returns how many
// marks succeeded.
func (uc *MessageStreamUseCase) MarkAllSeen(ctx context.Context, conversationKey, viewer string, messages []*entity.Message) int {
	marked := 0
	for _, msg := range messages {
		if !msg.IsUnreadFor(viewer) {
			continue
		}
		if err := uc.MarkSeen(ctx, conversationKey, msg.ID, viewer); err != nil {
			logger.Warn("Failed to mark message %s/%s seen by %s: %v", conversationKey, msg.ID, viewer, err)
			continue
		}
		marked++
	}
	return marked
}
