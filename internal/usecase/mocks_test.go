package usecase

import (
	"context"
	"io"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/mock"

	"supportchat/internal/adapter/repository"
	"supportchat/internal/domain/entity"
	domainrepo "supportchat/internal/domain/repository"
	"supportchat/internal/domain/service"
	"supportchat/pkg/logger"
)

func TestMain(m *testing.M) {
	logger.SetOutput(io.Discard)
	os.Exit(m.Run())
}

var testNow = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

func newMockClock() *clock.Mock {
	clk := clock.NewMock()
	clk.Set(testNow)
	return clk
}

type memoryRepos struct {
	store    *repository.MemoryStore
	chats    domainrepo.ChatRepository
	users    domainrepo.UserRepository
	presence domainrepo.PresenceRepository
}

func newMemoryRepos(clk clock.Clock) memoryRepos {
	store := repository.NewMemoryStore(clk)
	return memoryRepos{
		store:    store,
		chats:    repository.NewMemoryChatRepository(store),
		users:    repository.NewMemoryUserRepository(store),
		presence: repository.NewMemoryPresenceRepository(store),
	}
}

// fakeSubscription lets a test drive a callback by hand.
type fakeSubscription struct {
	once sync.Once
	done chan struct{}
}

func newFakeSubscription() *fakeSubscription {
	return &fakeSubscription{done: make(chan struct{})}
}

func (s *fakeSubscription) Unsubscribe() {
	s.once.Do(func() { close(s.done) })
}

func (s *fakeSubscription) Done() <-chan struct{} {
	return s.done
}

type mockChatRepository struct {
	mock.Mock
}

func (m *mockChatRepository) SendMessage(ctx context.Context, conversationKey string, message *entity.Message) error {
	args := m.Called(ctx, conversationKey, message)
	return args.Error(0)
}

func (m *mockChatRepository) MarkSeen(ctx context.Context, conversationKey, messageID, viewer string) error {
	args := m.Called(ctx, conversationKey, messageID, viewer)
	return args.Error(0)
}

func (m *mockChatRepository) GetMessages(ctx context.Context, conversationKey string) ([]*entity.Message, error) {
	args := m.Called(ctx, conversationKey)
	msgs, _ := args.Get(0).([]*entity.Message)
	return msgs, args.Error(1)
}

func (m *mockChatRepository) ListConversations(ctx context.Context) ([]*entity.Conversation, error) {
	args := m.Called(ctx)
	convs, _ := args.Get(0).([]*entity.Conversation)
	return convs, args.Error(1)
}

func (m *mockChatRepository) WatchMessages(ctx context.Context, conversationKey string, fn domainrepo.MessagesHandler) (domainrepo.Subscription, error) {
	args := m.Called(ctx, conversationKey, fn)
	sub, _ := args.Get(0).(domainrepo.Subscription)
	return sub, args.Error(1)
}

func (m *mockChatRepository) WatchConversations(ctx context.Context, fn domainrepo.ConversationsHandler) (domainrepo.Subscription, error) {
	args := m.Called(ctx, fn)
	sub, _ := args.Get(0).(domainrepo.Subscription)
	return sub, args.Error(1)
}

func (m *mockChatRepository) WatchRecentMessages(ctx context.Context, limit int, fn domainrepo.MessagesHandler) (domainrepo.Subscription, error) {
	args := m.Called(ctx, limit, fn)
	sub, _ := args.Get(0).(domainrepo.Subscription)
	return sub, args.Error(1)
}

type mockUserRepository struct {
	mock.Mock
}

func (m *mockUserRepository) GetByUsername(ctx context.Context, username string) (*entity.User, error) {
	args := m.Called(ctx, username)
	user, _ := args.Get(0).(*entity.User)
	return user, args.Error(1)
}

func (m *mockUserRepository) Create(ctx context.Context, user *entity.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

type mockPaymentGateway struct {
	mock.Mock
}

func (m *mockPaymentGateway) CreateSession(ctx context.Context, req service.PaymentSessionRequest) (*entity.PaymentSession, error) {
	args := m.Called(ctx, req)
	session, _ := args.Get(0).(*entity.PaymentSession)
	return session, args.Error(1)
}

func (m *mockPaymentGateway) DecodeResult(encResponse string) (*entity.PaymentResult, error) {
	args := m.Called(encResponse)
	result, _ := args.Get(0).(*entity.PaymentResult)
	return result, args.Error(1)
}

// presenceRecorder wraps a presence repository and records every update in order.
type presenceRecorder struct {
	domainrepo.PresenceRepository

	mu      sync.Mutex
	updates []entity.PresenceUpdate
	fail    bool
}

func (r *presenceRecorder) UpdatePresence(ctx context.Context, username string, update entity.PresenceUpdate) error {
	r.mu.Lock()
	r.updates = append(r.updates, update)
	fail := r.fail
	r.mu.Unlock()

	if fail {
		return io.ErrUnexpectedEOF
	}
	return r.PresenceRepository.UpdatePresence(ctx, username, update)
}

func (r *presenceRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.updates)
}

func (r *presenceRecorder) all() []entity.PresenceUpdate {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]entity.PresenceUpdate(nil), r.updates...)
}
