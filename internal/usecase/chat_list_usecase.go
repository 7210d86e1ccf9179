package usecase

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"golang.org/x/sync/errgroup"

	"supportchat/internal/domain/entity"
	"supportchat/internal/domain/repository"
	"supportchat/internal/infrastructure/metrics"
	"supportchat/pkg/config"
	"supportchat/pkg/errors"
	"supportchat/pkg/logger"
)

// PreviewsHandler receives the complete sorted preview list, or a terminal error.
type PreviewsHandler func(previews []*entity.ChatPreview, err error)

// DefaultReadyTimeout bounds how long a fan-out list waits for every known
// conversation before its first emission.
const DefaultReadyTimeout = 5 * time.Second

type ChatListUseCase struct {
	chatRepo     repository.ChatRepository
	strategy     string
	fanInLimit   int
	clock        clock.Clock
	readyTimeout time.Duration
}

func NewChatListUseCase(chatRepo repository.ChatRepository, strategy string, fanInLimit int) *ChatListUseCase {
	if strategy == "" {
		strategy = config.DiscoveryFanOut
	}
	return &ChatListUseCase{
		chatRepo:     chatRepo,
		strategy:     strategy,
		fanInLimit:   fanInLimit,
		clock:        clock.New(),
		readyTimeout: DefaultReadyTimeout,
	}
}

// WithReadyTimeout replaces the clock and the first-emission bound. A
// non-positive timeout waits for every conversation however long it takes.
func (uc *ChatListUseCase) WithReadyTimeout(clk clock.Clock, timeout time.Duration) *ChatListUseCase {
	uc.clock = clk
	uc.readyTimeout = timeout
	return uc
}

// Subscribe keeps viewer's preview list live. Every emission is the whole list
// sorted by most recent activity.
func (uc *ChatListUseCase) Subscribe(ctx context.Context, viewer string, fn PreviewsHandler) (repository.Subscription, error) {
	var (
		sub repository.Subscription
		err error
	)
	switch uc.strategy {
	case config.DiscoveryFanIn:
		sub, err = uc.subscribeFanIn(ctx, viewer, fn)
	default:
		sub, err = newFanOutEngine(ctx, uc.chatRepo, viewer, fn, uc.clock, uc.readyTimeout).start()
	}
	if err != nil {
		return nil, err
	}

	trackSubscription(metrics.SubscriptionChatList, sub)
	return sub, nil
}

// List computes the preview list once.
func (uc *ChatListUseCase) List(ctx context.Context, viewer string) ([]*entity.ChatPreview, error) {
	conversations, err := uc.chatRepo.ListConversations(ctx)
	if err != nil {
		return nil, errors.SubscriptionFailed("conversations", err)
	}

	previews := make([]*entity.ChatPreview, len(conversations))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i, conv := range conversations {
		i, key := i, conv.ClientUsername
		g.Go(func() error {
			messages, err := uc.chatRepo.GetMessages(gctx, key)
			if err != nil {
				return err
			}
			previews[i] = entity.BuildPreview(key, messages, viewer)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, errors.SubscriptionFailed("conversations", err)
	}

	entity.SortPreviews(previews)
	return previews, nil
}

// subscribeFanIn derives previews from one collection-group window. A
// conversation whose newest message falls outside the window is not listed,
// and unread counts only cover messages inside it.
func (uc *ChatListUseCase) subscribeFanIn(ctx context.Context, viewer string, fn PreviewsHandler) (repository.Subscription, error) {
	sub, err := uc.chatRepo.WatchRecentMessages(ctx, uc.fanInLimit, func(messages []*entity.Message, err error) {
		if err != nil {
			metrics.RecordSubscriptionError(metrics.SubscriptionChatList)
			logger.Warn("Chat list for %s ended: %v", viewer, err)
			fn(nil, errors.SubscriptionFailed("conversations", err))
			return
		}
		fn(groupPreviews(messages, viewer), nil)
	})
	if err != nil {
		return nil, errors.SubscriptionFailed("conversations", err)
	}
	return sub, nil
}

func groupPreviews(messages []*entity.Message, viewer string) []*entity.ChatPreview {
	byKey := make(map[string][]*entity.Message)
	var order []string
	for _, msg := range messages {
		if msg.ConversationKey == "" {
			continue
		}
		if _, ok := byKey[msg.ConversationKey]; !ok {
			order = append(order, msg.ConversationKey)
		}
		byKey[msg.ConversationKey] = append(byKey[msg.ConversationKey], msg)
	}

	previews := make([]*entity.ChatPreview, 0, len(order))
	for _, key := range order {
		previews = append(previews, entity.BuildPreview(key, byKey[key], viewer))
	}
	entity.SortPreviews(previews)
	return previews
}

// fanOutEngine follows the conversation collection live and keeps one message
// subscription per conversation. All of them belong to this engine and are
// released with it.
//
// Lock order is emitMu then mu. Unsubscribe takes only mu so it can run from
// inside fn.
type fanOutEngine struct {
	ctx    context.Context
	cancel context.CancelFunc
	repo   repository.ChatRepository
	viewer string
	fn     PreviewsHandler

	clock        clock.Clock
	readyTimeout time.Duration

	emitMu sync.Mutex

	mu         sync.Mutex
	closed     bool
	ready      bool
	listed     bool
	readyTimer *clock.Timer
	root       repository.Subscription
	entries    map[string]*fanOutEntry
	previews   map[string]*entity.ChatPreview
	opened     []repository.Subscription
	done       chan struct{}
}

type fanOutEntry struct {
	sub       repository.Subscription
	delivered bool
}

func newFanOutEngine(ctx context.Context, repo repository.ChatRepository, viewer string, fn PreviewsHandler, clk clock.Clock, readyTimeout time.Duration) *fanOutEngine {
	ctx, cancel := context.WithCancel(ctx)
	return &fanOutEngine{
		ctx:          ctx,
		cancel:       cancel,
		repo:         repo,
		viewer:       viewer,
		fn:           fn,
		clock:        clk,
		readyTimeout: readyTimeout,
		entries:      make(map[string]*fanOutEntry),
		previews:     make(map[string]*entity.ChatPreview),
		done:         make(chan struct{}),
	}
}

func (e *fanOutEngine) start() (repository.Subscription, error) {
	// Hold mu so the first conversations snapshot waits until root is recorded.
	e.mu.Lock()
	defer e.mu.Unlock()

	root, err := e.repo.WatchConversations(e.ctx, e.onConversations)
	if err != nil {
		e.cancel()
		return nil, errors.SubscriptionFailed("conversations", err)
	}
	e.root = root
	e.opened = append(e.opened, root)
	return e, nil
}

// forceReady opens the gate when some conversation is slow to deliver. The
// list goes out without it and the conversation joins on its first snapshot.
func (e *fanOutEngine) forceReady() {
	e.emitMu.Lock()
	defer e.emitMu.Unlock()

	e.mu.Lock()
	if e.closed || e.ready {
		e.mu.Unlock()
		return
	}
	waiting := 0
	for _, entry := range e.entries {
		if !entry.delivered {
			waiting++
		}
	}
	e.ready = true
	previews, emit := e.snapshotLocked()
	e.mu.Unlock()

	logger.Warn("Chat list for %s: emitting without %d slow conversation(s)", e.viewer, waiting)
	if emit {
		e.fn(previews, nil)
	}
}

func (e *fanOutEngine) onConversations(conversations []*entity.Conversation, err error) {
	if err != nil {
		e.fail(err)
		return
	}

	e.emitMu.Lock()
	defer e.emitMu.Unlock()

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}

	live := make(map[string]struct{}, len(conversations))
	for _, conv := range conversations {
		live[conv.ClientUsername] = struct{}{}
	}

	for key, entry := range e.entries {
		if _, ok := live[key]; !ok {
			entry.sub.Unsubscribe()
			delete(e.entries, key)
			delete(e.previews, key)
		}
	}

	for key := range live {
		if _, ok := e.entries[key]; !ok {
			e.openLocked(key)
		}
	}

	// The bound starts with the first conversations snapshot.
	if !e.listed {
		e.listed = true
		if e.readyTimeout > 0 {
			e.readyTimer = e.clock.AfterFunc(e.readyTimeout, e.forceReady)
		}
	}

	previews, emit := e.snapshotLocked()
	e.mu.Unlock()

	if emit {
		e.fn(previews, nil)
	}
}

// openLocked starts the message subscription for key. A key whose
// subscription cannot be opened is retried on the next conversations snapshot.
func (e *fanOutEngine) openLocked(key string) {
	entry := &fanOutEntry{}
	sub, err := e.repo.WatchMessages(e.ctx, key, func(messages []*entity.Message, err error) {
		e.onMessages(key, entry, messages, err)
	})
	if err != nil {
		logger.Warn("Chat list for %s: cannot watch %s: %v", e.viewer, key, err)
		return
	}

	entry.sub = sub
	e.entries[key] = entry
	e.opened = append(pruneDone(e.opened), sub)
}

func (e *fanOutEngine) onMessages(key string, entry *fanOutEntry, messages []*entity.Message, err error) {
	e.emitMu.Lock()
	defer e.emitMu.Unlock()

	e.mu.Lock()
	if e.closed || e.entries[key] != entry {
		e.mu.Unlock()
		return
	}

	if err != nil {
		metrics.RecordSubscriptionError(metrics.SubscriptionMessages)
		logger.Warn("Chat list for %s: messages of %s failed: %v", e.viewer, key, err)
		delete(e.entries, key)
		delete(e.previews, key)
	} else {
		entry.delivered = true
		e.previews[key] = entity.BuildPreview(key, messages, e.viewer)
	}

	previews, emit := e.snapshotLocked()
	e.mu.Unlock()

	if emit {
		e.fn(previews, nil)
	}
}

// snapshotLocked returns the sorted list. Until every conversation known at
// startup has delivered once, or the ready timer fires, nothing is emitted so
// the first list is complete.
func (e *fanOutEngine) snapshotLocked() ([]*entity.ChatPreview, bool) {
	if !e.ready {
		for _, entry := range e.entries {
			if !entry.delivered {
				return nil, false
			}
		}
		e.ready = true
	}

	previews := make([]*entity.ChatPreview, 0, len(e.previews))
	for _, p := range e.previews {
		previews = append(previews, p)
	}
	entity.SortPreviews(previews)
	return previews, true
}

func (e *fanOutEngine) fail(err error) {
	metrics.RecordSubscriptionError(metrics.SubscriptionChatList)
	logger.Warn("Chat list for %s ended: %v", e.viewer, err)

	e.emitMu.Lock()
	defer e.emitMu.Unlock()

	if !e.closeOnce() {
		return
	}
	e.fn(nil, errors.SubscriptionFailed("conversations", err))
}

// closeOnce releases every subscription. It reports false if the engine was
// already closed.
func (e *fanOutEngine) closeOnce() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return false
	}
	e.closed = true
	if e.readyTimer != nil {
		e.readyTimer.Stop()
	}

	for key, entry := range e.entries {
		entry.sub.Unsubscribe()
		delete(e.entries, key)
	}
	if e.root != nil {
		e.root.Unsubscribe()
	}
	e.cancel()

	closeAfter(e.done, e.opened, &e.emitMu)
	return true
}

func (e *fanOutEngine) Unsubscribe() {
	e.closeOnce()
}

func (e *fanOutEngine) Done() <-chan struct{} {
	return e.done
}

func pruneDone(subs []repository.Subscription) []repository.Subscription {
	live := subs[:0]
	for _, sub := range subs {
		select {
		case <-sub.Done():
		default:
			live = append(live, sub)
		}
	}
	return live
}
