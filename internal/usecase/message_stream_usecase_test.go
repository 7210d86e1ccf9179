package usecase

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"supportchat/internal/domain/entity"
	domainrepo "supportchat/internal/domain/repository"
	"supportchat/internal/infrastructure/ratelimit"
	"supportchat/pkg/errors"
)

func newMessageStream(clk clock.Clock) (*MessageStreamUseCase, memoryRepos) {
	repos := newMemoryRepos(clk)
	return NewMessageStreamUseCase(repos.chats, nil, ratelimit.NewRateLimiter(clk)), repos
}

func TestSend_TrimsAndAppends(t *testing.T) {
	uc, repos := newMessageStream(newMockClock())
	ctx := context.Background()

	msg, err := uc.Send(ctx, "alice", "  hello  ", "alice")
	require.NoError(t, err)
	assert.Equal(t, "hello", msg.Text)
	assert.Equal(t, []string{"alice"}, msg.SeenBy)
	assert.Equal(t, entity.MessageKindPlain, msg.Kind)

	chats, err := repos.chats.ListConversations(ctx)
	require.NoError(t, err)
	require.Len(t, chats, 1)
	assert.Equal(t, "alice", chats[0].ClientUsername)
}

func TestSend_RejectsEmptyText(t *testing.T) {
	uc, repos := newMessageStream(newMockClock())
	ctx := context.Background()

	for _, text := range []string{"", "   ", "\n\t"} {
		_, err := uc.Send(ctx, "alice", text, "alice")
		assert.True(t, errors.Is(err, errors.CodeBadRequest), "text %q", text)
	}

	chats, _ := repos.chats.ListConversations(ctx)
	assert.Empty(t, chats)
}

func TestSend_RejectsOverlongText(t *testing.T) {
	uc, _ := newMessageStream(newMockClock())

	_, err := uc.Send(context.Background(), "alice", strings.Repeat("x", maxMessageLength+1), "alice")
	assert.True(t, errors.Is(err, errors.CodeBadRequest))
}

func TestSend_CountsCharactersNotBytes(t *testing.T) {
	uc, _ := newMessageStream(newMockClock())

	_, err := uc.Send(context.Background(), "alice", strings.Repeat("é", maxMessageLength), "alice")
	assert.NoError(t, err)
}

func TestSend_KeyMustBeClient(t *testing.T) {
	clk := newMockClock()
	repos := newMemoryRepos(clk)
	ctx := context.Background()
	require.NoError(t, repos.users.Create(ctx, &entity.User{Username: "alice", Role: entity.RoleClient}))
	require.NoError(t, repos.users.Create(ctx, &entity.User{Username: "agent", Role: entity.RoleSupport}))
	uc := NewMessageStreamUseCase(repos.chats, repos.users, nil)

	_, err := uc.Send(ctx, "agent", "hi", "agent")
	assert.True(t, errors.Is(err, errors.CodeForbidden))

	_, err = uc.Send(ctx, "ghost", "hi", "agent")
	assert.True(t, errors.Is(err, errors.CodeBadRequest))

	_, err = uc.Send(ctx, "alice", "hi", "agent")
	require.NoError(t, err)

	chats, err := repos.chats.ListConversations(ctx)
	require.NoError(t, err)
	require.Len(t, chats, 1)
	assert.Equal(t, "alice", chats[0].ClientUsername)
}

func TestSend_RateLimited(t *testing.T) {
	clk := newMockClock()
	uc, _ := newMessageStream(clk)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		_, err := uc.Send(ctx, "alice", fmt.Sprintf("m%d", i), "alice")
		require.NoError(t, err)
	}
	_, err := uc.Send(ctx, "alice", "one too many", "alice")
	assert.True(t, errors.Is(err, errors.CodeTooManyRequests))

	clk.Add(6 * time.Second)
	_, err = uc.Send(ctx, "alice", "again", "alice")
	assert.NoError(t, err)
}

func TestSend_StoreFailureIsSendFailed(t *testing.T) {
	repo := &mockChatRepository{}
	repo.On("SendMessage", mock.Anything, "alice", mock.Anything).Return(fmt.Errorf("unavailable"))
	uc := NewMessageStreamUseCase(repo, nil, nil)

	_, err := uc.Send(context.Background(), "alice", "hi", "alice")
	assert.True(t, errors.Is(err, errors.CodeSendFailed))
	repo.AssertExpectations(t)
}

func TestSendPayment_WritesPaymentKind(t *testing.T) {
	uc, repos := newMessageStream(newMockClock())
	ctx := context.Background()

	payload := entity.PaymentPayload{
		Type:        entity.PaymentPayloadType,
		Amount:      "100",
		ClientTxnID: "TXN_alice_1_abcdef",
		BankTxnID:   "SP1",
		PaymentMode: "UPI",
		Status:      entity.PaymentStatusSuccess,
	}
	_, err := uc.SendPayment(ctx, "alice", "alice", payload)
	require.NoError(t, err)

	msgs, err := repos.chats.GetMessages(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, entity.MessageKindPayment, msgs[0].Kind)

	body, err := msgs[0].Body()
	require.NoError(t, err)
	assert.Equal(t, entity.PaymentBody{Payment: payload}, body)
}

func TestMarkAllSeen_OnlyOthersUnseen(t *testing.T) {
	clk := newMockClock()
	uc, repos := newMessageStream(clk)
	ctx := context.Background()

	_, err := uc.Send(ctx, "alice", "from alice", "alice")
	require.NoError(t, err)
	clk.Add(time.Second)
	_, err = uc.Send(ctx, "alice", "from support", "support1")
	require.NoError(t, err)

	msgs, _ := repos.chats.GetMessages(ctx, "alice")
	assert.Equal(t, 1, uc.MarkAllSeen(ctx, "alice", "support1", msgs))

	msgs, _ = repos.chats.GetMessages(ctx, "alice")
	assert.Equal(t, []string{"alice", "support1"}, msgs[0].SeenBy)
	assert.Equal(t, []string{"support1"}, msgs[1].SeenBy)

	// Nothing left to mark.
	assert.Equal(t, 0, uc.MarkAllSeen(ctx, "alice", "support1", msgs))
}

func TestMarkAllSeen_SwallowsFailures(t *testing.T) {
	repo := &mockChatRepository{}
	repo.On("MarkSeen", mock.Anything, "alice", "m1", "support1").Return(fmt.Errorf("denied"))
	repo.On("MarkSeen", mock.Anything, "alice", "m2", "support1").Return(nil)
	uc := NewMessageStreamUseCase(repo, nil, nil)

	msgs := []*entity.Message{
		{ID: "m1", User: "alice"},
		{ID: "m2", User: "alice"},
	}
	assert.Equal(t, 1, uc.MarkAllSeen(context.Background(), "alice", "support1", msgs))
	repo.AssertExpectations(t)
}

func TestMarkSeen_FailureCode(t *testing.T) {
	uc, _ := newMessageStream(newMockClock())

	err := uc.MarkSeen(context.Background(), "alice", "missing", "support1")
	assert.True(t, errors.Is(err, errors.CodeMarkSeenFailed))
}

func TestSubscribe_DeliversOrderedSnapshots(t *testing.T) {
	clk := newMockClock()
	uc, _ := newMessageStream(clk)
	ctx := context.Background()

	var mu sync.Mutex
	var last []*entity.Message
	sub, err := uc.Subscribe(ctx, "alice", func(msgs []*entity.Message, err error) {
		assert.NoError(t, err)
		mu.Lock()
		last = msgs
		mu.Unlock()
	})
	require.NoError(t, err)
	defer sub.Unsubscribe()

	_, err = uc.Send(ctx, "alice", "first", "alice")
	require.NoError(t, err)
	clk.Add(time.Second)
	_, err = uc.Send(ctx, "alice", "second", "support1")
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(last) == 2 && last[0].Text == "first" && last[1].Text == "second"
	}, time.Second, 5*time.Millisecond)
}

func TestSubscribe_ErrorIsSubscriptionFailed(t *testing.T) {
	repo := &mockChatRepository{}
	fake := newFakeSubscription()
	var handler domainrepo.MessagesHandler
	repo.On("WatchMessages", mock.Anything, "alice", mock.Anything).
		Run(func(args mock.Arguments) { handler = args.Get(2).(domainrepo.MessagesHandler) }).
		Return(fake, nil)
	uc := NewMessageStreamUseCase(repo, nil, nil)

	var got error
	sub, err := uc.Subscribe(context.Background(), "alice", func(msgs []*entity.Message, err error) {
		got = err
	})
	require.NoError(t, err)
	defer sub.Unsubscribe()

	handler(nil, fmt.Errorf("permission denied"))
	assert.True(t, errors.Is(got, errors.CodeSubscriptionFailed))
}
