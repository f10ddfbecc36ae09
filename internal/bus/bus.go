// Package bus is the change bus between the capture pipeline and whatever
// displays history.
//
// A pulse carries no data. It means "the store changed, re-query it".
// Publish never blocks: every subscription owns a one-slot channel and a
// pulse arriving while one is already pending is folded into it. Consumers
// are therefore guaranteed at least one pulse after each change, never one
// per change, and must treat every pulse as an idempotent refresh trigger.
package bus

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Bus fans pulses out to subscriptions. Safe for concurrent use by any
// number of publishers and subscribers.
type Bus struct {
	mu     sync.RWMutex
	subs   map[uint64]*Subscription
	nextID uint64

	published atomic.Uint64
}

// New returns a Bus with no subscribers.
func New() *Bus {
	return &Bus{subs: make(map[uint64]*Subscription)}
}

// SubscriberInfo describes a subscription for status output.
type SubscriberInfo struct {
	ID           uint64
	Name         string
	SubscribedAt time.Time
	Pulses       uint64 // pulses actually queued, after coalescing
}

// Subscribe registers a new subscription. name is only used in logs and
// status output.
func (b *Bus) Subscribe(name string) *Subscription {
	b.mu.Lock()
	b.nextID++
	s := &Subscription{
		id:           b.nextID,
		name:         name,
		ch:           make(chan struct{}, 1),
		bus:          b,
		subscribedAt: time.Now(),
	}
	b.subs[s.id] = s
	total := len(b.subs)
	b.mu.Unlock()

	slog.Debug("bus subscriber added", "id", s.id, "name", name, "total", total)
	return s
}

func (b *Bus) remove(s *Subscription) {
	b.mu.Lock()
	delete(b.subs, s.id)
	total := len(b.subs)
	b.mu.Unlock()

	slog.Debug("bus subscriber removed", "id", s.id, "name", s.name, "total", total)
}

// Publish sends one pulse to every subscription without blocking.
func (b *Bus) Publish() {
	b.published.Add(1)

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, s := range b.subs {
		s.signal()
	}
}

// Published returns how many times Publish was called.
func (b *Bus) Published() uint64 { return b.published.Load() }

// Subscribers returns a snapshot of current subscriptions.
func (b *Bus) Subscribers() []SubscriberInfo {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]SubscriberInfo, 0, len(b.subs))
	for _, s := range b.subs {
		out = append(out, SubscriberInfo{
			ID:           s.id,
			Name:         s.name,
			SubscribedAt: s.subscribedAt,
			Pulses:       s.pulses.Load(),
		})
	}
	return out
}

// Subscription receives pulses from a Bus.
type Subscription struct {
	id           uint64
	name         string
	ch           chan struct{}
	bus          *Bus
	subscribedAt time.Time
	pulses       atomic.Uint64
	closeOnce    sync.Once
}

// C returns the pulse channel. It is never closed; stop selecting on it
// after calling Close.
func (s *Subscription) C() <-chan struct{} { return s.ch }

// Drain consumes any pending pulse and reports whether there was one.
func (s *Subscription) Drain() bool {
	select {
	case <-s.ch:
		return true
	default:
		return false
	}
}

// Close unregisters the subscription. Safe to call more than once.
func (s *Subscription) Close() {
	s.closeOnce.Do(func() { s.bus.remove(s) })
}

func (s *Subscription) signal() {
	select {
	case s.ch <- struct{}{}:
		s.pulses.Add(1)
	default:
		// already pending
	}
}
