package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"

	"supportchat/internal/domain/entity"
	"supportchat/internal/domain/repository"
	"supportchat/internal/infrastructure/listener"
	"supportchat/pkg/errors"
)

const (
	topicChats          = "chats"
	topicAllMessages    = "messages:*"
	topicMessagesPrefix = "messages:"
	topicPresencePrefix = "presence:"
)

// MemoryStore is a process-local document store with the same live-query
// behaviour as the Firestore adapters: every listener receives the complete
// current result set, first immediately and then after each relevant write.
type MemoryStore struct {
	clock clock.Clock

	mu       sync.Mutex
	users    map[string]*entity.User
	chats    map[string]*entity.Conversation
	messages map[string][]*entity.Message
	presence map[string]*entity.PresenceRecord
	watchers map[string]map[*memWatcher]struct{}
}

func NewMemoryStore(clk clock.Clock) *MemoryStore {
	return &MemoryStore{
		clock:    clk,
		users:    make(map[string]*entity.User),
		chats:    make(map[string]*entity.Conversation),
		messages: make(map[string][]*entity.Message),
		presence: make(map[string]*entity.PresenceRecord),
		watchers: make(map[string]map[*memWatcher]struct{}),
	}
}

type memWatcher struct {
	notify chan struct{}
}

// publish wakes every watcher of the given topics. Callers hold s.mu.
func (s *MemoryStore) publish(topics ...string) {
	for _, topic := range topics {
		for w := range s.watchers[topic] {
			select {
			case w.notify <- struct{}{}:
			default:
			}
		}
	}
}

func (s *MemoryStore) addWatcher(topic string) *memWatcher {
	w := &memWatcher{notify: make(chan struct{}, 1)}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.watchers[topic] == nil {
		s.watchers[topic] = make(map[*memWatcher]struct{})
	}
	s.watchers[topic][w] = struct{}{}
	return w
}

func (s *MemoryStore) removeWatcher(topic string, w *memWatcher) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.watchers[topic], w)
	if len(s.watchers[topic]) == 0 {
		delete(s.watchers, topic)
	}
}

// memSource re-runs its query each time the topic is published. Several writes
// between two reads collapse into one snapshot.
type memSource[T any] struct {
	ctx     context.Context
	store   *MemoryStore
	topic   string
	watcher *memWatcher
	query   func() T
	primed  bool
}

func (src *memSource[T]) Next() (T, error) {
	if src.primed {
		select {
		case <-src.watcher.notify:
		case <-src.ctx.Done():
			var zero T
			return zero, src.ctx.Err()
		}
	}
	src.primed = true

	if err := src.ctx.Err(); err != nil {
		var zero T
		return zero, err
	}
	return src.query(), nil
}

func (src *memSource[T]) Stop() {
	src.store.removeWatcher(src.topic, src.watcher)
}

func watch[T any](ctx context.Context, s *MemoryStore, topic string, query func() T, fn func(T, error)) repository.Subscription {
	w := s.addWatcher(topic)
	return listener.Start(ctx, func(ctx context.Context) listener.Source[T] {
		return &memSource[T]{ctx: ctx, store: s, topic: topic, watcher: w, query: query}
	}, fn)
}

func copyMessage(m *entity.Message) *entity.Message {
	c := *m
	c.SeenBy = append([]string(nil), m.SeenBy...)
	return &c
}

func copyMessages(messages []*entity.Message) []*entity.Message {
	out := make([]*entity.Message, len(messages))
	for i, m := range messages {
		out[i] = copyMessage(m)
	}
	return out
}

// TouchConversation creates or refreshes chats/{key} without adding a message.
func (s *MemoryStore) TouchConversation(conversationKey string) error {
	if conversationKey == "" {
		return errors.BadRequest("Conversation key is required", nil)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	chat, ok := s.chats[conversationKey]
	if !ok {
		chat = &entity.Conversation{ClientUsername: conversationKey}
		s.chats[conversationKey] = chat
	}
	chat.UpdatedAt = s.clock.Now()
	s.publish(topicChats)
	return nil
}

// Users

type memoryUserRepository struct {
	store *MemoryStore
}

func NewMemoryUserRepository(store *MemoryStore) repository.UserRepository {
	return &memoryUserRepository{store: store}
}

func (r *memoryUserRepository) GetByUsername(ctx context.Context, username string) (*entity.User, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	user, ok := r.store.users[username]
	if !ok {
		return nil, errors.NotFound("User", nil)
	}
	c := *user
	return &c, nil
}

func (r *memoryUserRepository) Create(ctx context.Context, user *entity.User) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if _, exists := r.store.users[user.Username]; exists {
		return errors.Conflict(fmt.Sprintf("user %q already exists", user.Username))
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = r.store.clock.Now()
	}
	c := *user
	r.store.users[user.Username] = &c
	return nil
}

// Chats and messages

type memoryChatRepository struct {
	store *MemoryStore
}

func NewMemoryChatRepository(store *MemoryStore) repository.ChatRepository {
	return &memoryChatRepository{store: store}
}

func (r *memoryChatRepository) SendMessage(ctx context.Context, conversationKey string, message *entity.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	id, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("generate message id: %w", err)
	}

	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	chat, ok := s.chats[conversationKey]
	if !ok {
		chat = &entity.Conversation{ClientUsername: conversationKey}
		s.chats[conversationKey] = chat
	}
	chat.UpdatedAt = now

	message.ID = id.String()
	message.ConversationKey = conversationKey
	message.CreatedAt = now
	s.messages[conversationKey] = append(s.messages[conversationKey], copyMessage(message))

	s.publish(topicChats, topicAllMessages, topicMessagesPrefix+conversationKey)
	return nil
}

func (r *memoryChatRepository) MarkSeen(ctx context.Context, conversationKey, messageID, viewer string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, m := range s.messages[conversationKey] {
		if m.ID != messageID {
			continue
		}
		if m.SeenByUser(viewer) {
			return nil
		}
		m.SeenBy = append(m.SeenBy, viewer)
		s.publish(topicAllMessages, topicMessagesPrefix+conversationKey)
		return nil
	}
	return errors.NotFound("Message", nil)
}

func (r *memoryChatRepository) GetMessages(ctx context.Context, conversationKey string) ([]*entity.Message, error) {
	return r.messagesOf(conversationKey), nil
}

func (r *memoryChatRepository) ListConversations(ctx context.Context) ([]*entity.Conversation, error) {
	return r.conversations(), nil
}

func (r *memoryChatRepository) WatchMessages(ctx context.Context, conversationKey string, fn repository.MessagesHandler) (repository.Subscription, error) {
	query := func() []*entity.Message { return r.messagesOf(conversationKey) }
	return watch(ctx, r.store, topicMessagesPrefix+conversationKey, query, fn), nil
}

func (r *memoryChatRepository) WatchConversations(ctx context.Context, fn repository.ConversationsHandler) (repository.Subscription, error) {
	return watch(ctx, r.store, topicChats, r.conversations, fn), nil
}

func (r *memoryChatRepository) WatchRecentMessages(ctx context.Context, limit int, fn repository.MessagesHandler) (repository.Subscription, error) {
	query := func() []*entity.Message { return r.recent(limit) }
	return watch(ctx, r.store, topicAllMessages, query, fn), nil
}

func (r *memoryChatRepository) messagesOf(conversationKey string) []*entity.Message {
	r.store.mu.Lock()
	out := copyMessages(r.store.messages[conversationKey])
	r.store.mu.Unlock()

	entity.SortMessages(out)
	return out
}

func (r *memoryChatRepository) conversations() []*entity.Conversation {
	r.store.mu.Lock()
	out := make([]*entity.Conversation, 0, len(r.store.chats))
	for _, c := range r.store.chats {
		cc := *c
		out = append(out, &cc)
	}
	r.store.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ClientUsername < out[j].ClientUsername })
	return out
}

func (r *memoryChatRepository) recent(limit int) []*entity.Message {
	r.store.mu.Lock()
	var all []*entity.Message
	for _, msgs := range r.store.messages {
		all = append(all, copyMessages(msgs)...)
	}
	r.store.mu.Unlock()

	sort.SliceStable(all, func(i, j int) bool { return entity.MessageBefore(all[j], all[i]) })
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all
}

// Presence

type memoryPresenceRepository struct {
	store *MemoryStore
}

func NewMemoryPresenceRepository(store *MemoryStore) repository.PresenceRepository {
	return &memoryPresenceRepository{store: store}
}

func (r *memoryPresenceRepository) UpdatePresence(ctx context.Context, username string, update entity.PresenceUpdate) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.presence[username]
	if !ok {
		record = &entity.PresenceRecord{Username: username}
		s.presence[username] = record
	}
	if update.IsOnline != nil {
		record.IsOnline = *update.IsOnline
	}
	if update.IsTyping != nil {
		record.IsTyping = *update.IsTyping
	}
	if update.TypingIn != nil {
		record.TypingIn = *update.TypingIn
	}
	record.LastSeen = s.clock.Now()

	s.publish(topicPresencePrefix + username)
	return nil
}

func (r *memoryPresenceRepository) GetPresence(ctx context.Context, username string) (*entity.PresenceRecord, error) {
	return r.record(username), nil
}

func (r *memoryPresenceRepository) WatchPresence(ctx context.Context, username string, fn repository.PresenceHandler) (repository.Subscription, error) {
	query := func() *entity.PresenceRecord { return r.record(username) }
	return watch(ctx, r.store, topicPresencePrefix+username, query, fn), nil
}

func (r *memoryPresenceRepository) record(username string) *entity.PresenceRecord {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	record, ok := r.store.presence[username]
	if !ok {
		return nil
	}
	c := *record
	return &c
}
