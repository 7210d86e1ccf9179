package usecase

import (
	"sync"
	"time"

	"supportchat/internal/domain/repository"
	"supportchat/internal/infrastructure/metrics"
)

// trackSubscription keeps the open live query gauge in step with sub.
func trackSubscription(kind string, sub repository.Subscription) {
	metrics.RecordSubscriptionOpened(kind)
	go func() {
		<-sub.Done()
		metrics.RecordSubscriptionClosed(kind)
	}()
}

func metricsTimer() func() {
	start := time.Now()
	return func() {
		metrics.SendDuration.Observe(time.Since(start).Seconds())
	}
}

// closeAfter closes done after every subscription is done and no emit
// holding the emitting lock is still running.
func closeAfter(done chan struct{}, subs []repository.Subscription, emitting sync.Locker) {
	go func() {
		for _, sub := range subs {
			<-sub.Done()
		}
		emitting.Lock()
		emitting.Unlock()
		close(done)
	}()
}
