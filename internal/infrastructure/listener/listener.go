package listener

import (
	"context"
	"sync"
	"sync/atomic"
)

// Source yields successive full snapshots of a live query. Next blocks until
// the next snapshot or until the context it was opened with is canceled.
// Stop is only ever called from the goroutine that calls Next.
type Source[T any] interface {
	Next() (T, error)
	Stop()
}

// Handle is the Subscription returned by Start.
type Handle struct {
	cancel  context.CancelFunc
	stopped atomic.Bool
	done    chan struct{}
	once    sync.Once
}

// Start runs one goroutine that pulls snapshots from the source and hands them
// to fn. Callbacks for one handle never overlap. A source error is delivered
// once and ends the loop; cancellation ends it silently.
func Start[T any](ctx context.Context, open func(ctx context.Context) Source[T], fn func(T, error)) *Handle {
	ctx, cancel := context.WithCancel(ctx)
	h := &Handle{
		cancel: cancel,
		done:   make(chan struct{}),
	}

	src := open(ctx)
	go run(ctx, h, src, fn)
	return h
}

func run[T any](ctx context.Context, h *Handle, src Source[T], fn func(T, error)) {
	defer close(h.done)
	defer src.Stop()
	defer h.cancel()

	for {
		v, err := src.Next()
		if h.stopped.Load() || ctx.Err() != nil {
			return
		}
		if err != nil {
			var zero T
			fn(zero, err)
			return
		}
		fn(v, nil)
	}
}

// Unsubscribe never blocks and is safe to call from inside the callback.
// A callback already running when it is called may still finish; wait on Done
// to know that none is left.
func (h *Handle) Unsubscribe() {
	h.once.Do(func() {
		h.stopped.Store(true)
		h.cancel()
	})
}

func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Closed is a Subscription that has already finished. Adapters return it when
// a live query cannot even be opened.
type Closed struct{}

var closedCh = func() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}()

func (Closed) Unsubscribe() {}

func (Closed) Done() <-chan struct{} {
	return closedCh
}
