package usecase

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"

	"supportchat/internal/domain/entity"
	"supportchat/internal/domain/repository"
	"supportchat/internal/infrastructure/metrics"
	"supportchat/pkg/errors"
	"supportchat/pkg/logger"
)

const (
	presenceWriteQueue   = 64
	presenceWriteTimeout = 10 * time.Second
)

type PresenceState int

const (
	PresenceOffline PresenceState = iota
	PresenceOnline
	PresenceTyping
)

func (s PresenceState) String() string {
	switch s {
	case PresenceOnline:
		return "online"
	case PresenceTyping:
		return "typing"
	default:
		return "offline"
	}
}

type PresenceUseCase struct {
	presenceRepo repository.PresenceRepository
	clock        clock.Clock
	heartbeat    time.Duration
	liveness     time.Duration
	debounce     time.Duration
}

func NewPresenceUseCase(presenceRepo repository.PresenceRepository, clk clock.Clock, heartbeat, liveness, debounce time.Duration) *PresenceUseCase {
	return &PresenceUseCase{
		presenceRepo: presenceRepo,
		clock:        clk,
		heartbeat:    heartbeat,
		liveness:     liveness,
		debounce:     debounce,
	}
}

// GetPresence resolves the subject's current status once.
func (uc *PresenceUseCase) GetPresence(ctx context.Context, subject string) (entity.PresenceStatus, error) {
	record, err := uc.presenceRepo.GetPresence(ctx, subject)
	if err != nil {
		return entity.PresenceStatus{}, errors.SubscriptionFailed("presence", err)
	}
	return entity.ResolvePresence(subject, record, uc.clock.Now(), uc.liveness), nil
}

// NewTracker returns an idle tracker for username. Call Start to go online.
func (uc *PresenceUseCase) NewTracker(username string) *PresenceTracker {
	t := &PresenceTracker{
		repo:       uc.presenceRepo,
		clock:      uc.clock,
		username:   username,
		heartbeat:  uc.heartbeat,
		debounce:   uc.debounce,
		log:        logger.Component("presence").With().Str("user", username).Logger(),
		writes:     make(chan entity.PresenceUpdate, presenceWriteQueue),
		writerDone: make(chan struct{}),
	}
	go t.writeLoop()
	return t
}

// PresenceTracker publishes one user's presence. Writes go out in the order
// they were decided, from a single goroutine, and are never retried; the next
// heartbeat repairs a lost one.
type PresenceTracker struct {
	repo      repository.PresenceRepository
	clock     clock.Clock
	username  string
	heartbeat time.Duration
	debounce  time.Duration
	log       zerolog.Logger

	mu          sync.Mutex
	state       PresenceState
	stopped     bool
	typingIn    string
	typingGen   uint64
	typingTimer *clock.Timer
	ticker      *clock.Ticker
	tickerStop  chan struct{}

	writes     chan entity.PresenceUpdate
	writerDone chan struct{}
}

func (t *PresenceTracker) State() PresenceState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Start goes online and starts the heartbeat.
func (t *PresenceTracker) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stopped || t.state != PresenceOffline {
		return
	}
	t.goOnlineLocked()
}

// SetVisible mirrors page visibility. Hidden means offline: no heartbeat runs
// while hidden.
func (t *PresenceTracker) SetVisible(visible bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stopped {
		return
	}
	if visible {
		if t.state == PresenceOffline {
			t.goOnlineLocked()
		}
		return
	}
	if t.state != PresenceOffline {
		t.goOfflineLocked()
	}
}

// Keystroke marks the user typing in conversationKey and re-arms the debounce.
// Only the first keystroke of a burst is written.
func (t *PresenceTracker) Keystroke(conversationKey string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stopped || t.state == PresenceOffline {
		return
	}

	if t.state != PresenceTyping || t.typingIn != conversationKey {
		t.state = PresenceTyping
		t.typingIn = conversationKey
		t.enqueueLocked(entity.PresenceUpdate{
			IsOnline: entity.BoolPtr(true),
			IsTyping: entity.BoolPtr(true),
			TypingIn: entity.StringPtr(conversationKey),
		})
	}

	t.typingGen++
	gen := t.typingGen
	if t.typingTimer != nil {
		t.typingTimer.Stop()
	}
	t.typingTimer = t.clock.AfterFunc(t.debounce, func() {
		t.expireTyping(gen)
	})
}

// StopTyping ends a typing burst now. Used when the input is cleared or a
// message is sent.
func (t *PresenceTracker) StopTyping() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stopped {
		return
	}
	t.stopTypingLocked()
}

// Stop cancels the timers and writes offline without waiting for it.
func (t *PresenceTracker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stopped {
		return
	}
	if t.state != PresenceOffline {
		t.goOfflineLocked()
	}
	t.stopped = true
	close(t.writes)
}

// Flushed is closed once every queued write has been attempted after Stop.
func (t *PresenceTracker) Flushed() <-chan struct{} {
	return t.writerDone
}

func (t *PresenceTracker) expireTyping(gen uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stopped || gen != t.typingGen {
		return
	}
	t.stopTypingLocked()
}

func (t *PresenceTracker) stopTypingLocked() {
	t.cancelTypingLocked()
	if t.state != PresenceTyping {
		return
	}
	t.state = PresenceOnline
	t.typingIn = ""
	t.enqueueLocked(entity.PresenceUpdate{
		IsTyping: entity.BoolPtr(false),
		TypingIn: entity.StringPtr(""),
	})
}

func (t *PresenceTracker) cancelTypingLocked() {
	t.typingGen++
	if t.typingTimer != nil {
		t.typingTimer.Stop()
		t.typingTimer = nil
	}
}

func (t *PresenceTracker) goOnlineLocked() {
	t.state = PresenceOnline
	t.typingIn = ""
	t.enqueueLocked(entity.PresenceUpdate{
		IsOnline: entity.BoolPtr(true),
		IsTyping: entity.BoolPtr(false),
		TypingIn: entity.StringPtr(""),
	})
	t.startHeartbeatLocked()
}

func (t *PresenceTracker) goOfflineLocked() {
	t.cancelTypingLocked()
	t.stopHeartbeatLocked()
	t.state = PresenceOffline
	t.typingIn = ""
	t.enqueueLocked(entity.PresenceUpdate{
		IsOnline: entity.BoolPtr(false),
		IsTyping: entity.BoolPtr(false),
		TypingIn: entity.StringPtr(""),
	})
}

func (t *PresenceTracker) startHeartbeatLocked() {
	t.stopHeartbeatLocked()

	ticker := t.clock.Ticker(t.heartbeat)
	stop := make(chan struct{})
	t.ticker = ticker
	t.tickerStop = stop

	go func() {
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				t.beat()
			}
		}
	}()
}

func (t *PresenceTracker) stopHeartbeatLocked() {
	if t.ticker == nil {
		return
	}
	t.ticker.Stop()
	close(t.tickerStop)
	t.ticker = nil
	t.tickerStop = nil
}

func (t *PresenceTracker) beat() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stopped || t.state == PresenceOffline {
		return
	}
	t.enqueueLocked(entity.PresenceUpdate{IsOnline: entity.BoolPtr(true)})
}

func (t *PresenceTracker) enqueueLocked(update entity.PresenceUpdate) {
	select {
	case t.writes <- update:
	default:
		metrics.PresenceWriteFailures.Inc()
		t.log.Warn().Msg("presence write queue full, dropping update")
	}
}

func (t *PresenceTracker) writeLoop() {
	defer close(t.writerDone)

	for update := range t.writes {
		ctx, cancel := context.WithTimeout(context.Background(), presenceWriteTimeout)
		err := t.repo.UpdatePresence(ctx, t.username, update)
		cancel()
		if err != nil {
			metrics.PresenceWriteFailures.Inc()
			t.log.Warn().Err(err).Msg("presence write failed")
		}
	}
}

// WatchPresence reports subject's resolved status whenever it changes. Besides
// record changes, a timer re-evaluates at lastSeen+liveness so a writer that
// went silent turns offline without another push.
func (uc *PresenceUseCase) WatchPresence(ctx context.Context, subject string, fn func(entity.PresenceStatus, error)) (repository.Subscription, error) {
	w := &presenceWatch{
		clock:    uc.clock,
		liveness: uc.liveness,
		subject:  subject,
		fn:       fn,
		done:     make(chan struct{}),
	}

	w.mu.Lock()
	sub, err := uc.presenceRepo.WatchPresence(ctx, subject, w.onRecord)
	if err != nil {
		w.mu.Unlock()
		return nil, errors.SubscriptionFailed("presence", err)
	}
	w.sub = sub
	w.mu.Unlock()

	trackSubscription(metrics.SubscriptionPresence, w)
	return w, nil
}

type presenceWatch struct {
	clock    clock.Clock
	liveness time.Duration
	subject  string
	fn       func(entity.PresenceStatus, error)

	emitMu sync.Mutex

	mu       sync.Mutex
	sub      repository.Subscription
	closed   bool
	record   *entity.PresenceRecord
	last     *entity.PresenceStatus
	timer    *clock.Timer
	timerGen uint64
	done     chan struct{}
}

func (w *presenceWatch) onRecord(record *entity.PresenceRecord, err error) {
	w.emitMu.Lock()
	defer w.emitMu.Unlock()

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}

	if err != nil {
		w.closeLocked()
		w.mu.Unlock()
		metrics.RecordSubscriptionError(metrics.SubscriptionPresence)
		logger.Warn("Presence watch of %s ended: %v", w.subject, err)
		w.fn(entity.PresenceStatus{Username: w.subject}, errors.SubscriptionFailed("presence", err))
		return
	}

	w.record = record
	status, changed := w.evaluateLocked()
	w.mu.Unlock()

	if changed {
		w.fn(status, nil)
	}
}

func (w *presenceWatch) onExpire(gen uint64) {
	w.emitMu.Lock()
	defer w.emitMu.Unlock()

	w.mu.Lock()
	if w.closed || gen != w.timerGen {
		w.mu.Unlock()
		return
	}
	status, changed := w.evaluateLocked()
	w.mu.Unlock()

	if changed {
		w.fn(status, nil)
	}
}

// evaluateLocked resolves the record against the clock and re-arms the
// staleness timer. It reports whether the status differs from the last one.
func (w *presenceWatch) evaluateLocked() (entity.PresenceStatus, bool) {
	now := w.clock.Now()
	status := entity.ResolvePresence(w.subject, w.record, now, w.liveness)

	w.timerGen++
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	if status.IsOnline {
		gen := w.timerGen
		w.timer = w.clock.AfterFunc(w.record.ExpiresAt(w.liveness).Sub(now), func() {
			w.onExpire(gen)
		})
	}

	if w.last != nil && sameVisibleStatus(*w.last, status) {
		return status, false
	}
	w.last = &status
	return status, true
}

// sameVisibleStatus ignores lastSeen so heartbeats alone do not re-emit.
func sameVisibleStatus(a, b entity.PresenceStatus) bool {
	return a.IsOnline == b.IsOnline && a.IsTyping == b.IsTyping && a.TypingIn == b.TypingIn
}

func (w *presenceWatch) closeLocked() {
	if w.closed {
		return
	}
	w.closed = true
	w.timerGen++
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	if w.sub != nil {
		w.sub.Unsubscribe()
		closeAfter(w.done, []repository.Subscription{w.sub}, &w.emitMu)
	} else {
		closeAfter(w.done, nil, &w.emitMu)
	}
}

func (w *presenceWatch) Unsubscribe() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closeLocked()
}

func (w *presenceWatch) Done() <-chan struct{} {
	return w.done
}
