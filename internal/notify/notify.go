// Package notify delivers best-effort desktop notifications for captures.
//
// Nothing here may affect capture: Async never blocks its caller and every
// delivery error ends in a log line.
package notify

import (
	"log/slog"
	"sync"
)

// Notifier shows one notification.
type Notifier interface {
	Notify(title, body string) error
}

// Nop discards notifications.
type Nop struct{}

func (Nop) Notify(_, _ string) error { return nil }

type note struct {
	title, body string
}

// AsyncNotifier queues notifications for a single worker goroutine.
type AsyncNotifier struct {
	next   Notifier
	queue  chan note
	done   chan struct{}
	once   sync.Once
	mu     sync.RWMutex
	closed bool
}

// Async wraps n so that Notify returns immediately. At most queue
// notifications wait for delivery; more are dropped.
func Async(n Notifier, queue int) *AsyncNotifier {
	if queue < 1 {
		queue = 1
	}
	a := &AsyncNotifier{
		next:  n,
		queue: make(chan note, queue),
		done:  make(chan struct{}),
	}
	go a.run()
	return a
}

// Notify enqueues a notification. It always returns nil.
func (a *AsyncNotifier) Notify(title, body string) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return nil
	}
	select {
	case a.queue <- note{title, body}:
	default:
		slog.Warn("notification queue full, dropping")
	}
	return nil
}

// Close stops accepting notifications and waits for queued ones to be
// delivered.
func (a *AsyncNotifier) Close() {
	a.once.Do(func() {
		a.mu.Lock()
		a.closed = true
		close(a.queue)
		a.mu.Unlock()
		<-a.done
	})
}

func (a *AsyncNotifier) run() {
	defer close(a.done)
	for n := range a.queue {
		if err := a.next.Notify(n.title, n.body); err != nil {
			slog.Warn("desktop notification failed", "err", err)
		}
	}
}
