package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"golang.org/x/time/rate"
)

const (
	ActionSendMessage = "send_message"
	ActionTyping      = "typing"
	ActionMarkSeen    = "mark_seen"
	ActionLogin       = "login"
	ActionPayment     = "payment"
)

// Policy is the bucket shape for one action.
type Policy struct {
	Burst int
	Every time.Duration
}

var defaultPolicies = map[string]Policy{
	// 10 messages per minute
	ActionSendMessage: {Burst: 10, Every: 6 * time.Second},
	// 30 typing events per minute
	ActionTyping: {Burst: 30, Every: 2 * time.Second},
	// seen-marks arrive in bursts when a thread is opened
	ActionMarkSeen: {Burst: 200, Every: 100 * time.Millisecond},
	// 5 attempts, then one every 12 seconds
	ActionLogin:   {Burst: 5, Every: 12 * time.Second},
	ActionPayment: {Burst: 3, Every: 20 * time.Second},
}

var fallbackPolicy = Policy{Burst: 20, Every: 3 * time.Second}

type bucket struct {
	limiter  *rate.Limiter
	lastUsed time.Time
}

// RateLimiter keeps one token bucket per subject and action.
type RateLimiter struct {
	clock    clock.Clock
	policies map[string]Policy
	buckets  map[string]*bucket
	mutex    sync.Mutex
}

func NewRateLimiter(clk clock.Clock) *RateLimiter {
	policies := make(map[string]Policy, len(defaultPolicies))
	for action, p := range defaultPolicies {
		policies[action] = p
	}

	return &RateLimiter{
		clock:    clk,
		policies: policies,
		buckets:  make(map[string]*bucket),
	}
}

// SetPolicy overrides the bucket shape for an action. Existing buckets keep
// their old shape until they are cleaned up.
func (rl *RateLimiter) SetPolicy(action string, p Policy) {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()
	rl.policies[action] = p
}

// Allow consumes a token for subject:action. When the bucket is empty it
// returns the time until the next token.
func (rl *RateLimiter) Allow(subject, action string) (bool, time.Duration) {
	key := subject + ":" + action
	now := rl.clock.Now()

	rl.mutex.Lock()
	b, exists := rl.buckets[key]
	if !exists {
		p, ok := rl.policies[action]
		if !ok {
			p = fallbackPolicy
		}
		b = &bucket{limiter: rate.NewLimiter(rate.Every(p.Every), p.Burst)}
		rl.buckets[key] = b
	}
	b.lastUsed = now
	rl.mutex.Unlock()

	r := b.limiter.ReserveN(now, 1)
	if !r.OK() {
		return false, 0
	}
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return false, delay
	}
	return true, 0
}

// Cleanup drops buckets idle for longer than maxIdle.
func (rl *RateLimiter) Cleanup(maxIdle time.Duration) {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	now := rl.clock.Now()
	for key, b := range rl.buckets {
		if now.Sub(b.lastUsed) > maxIdle {
			delete(rl.buckets, key)
		}
	}
}

// Run cleans up idle buckets until ctx is canceled.
func (rl *RateLimiter) Run(ctx context.Context) {
	ticker := rl.clock.Ticker(30 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rl.Cleanup(time.Hour)
		}
	}
}

func (rl *RateLimiter) size() int {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()
	return len(rl.buckets)
}
