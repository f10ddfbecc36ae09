// Package pipeline connects captured clipboard values to the store and the
// change bus.
//
// The Coordinator is the only component that touches both. It persists
// first and publishes second, so a consumer woken by a pulse always finds the
// triggering record in the store. A failed write publishes nothing.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.klb.dev/cliptrack/internal/logging"
	"go.klb.dev/cliptrack/internal/notify"
	"go.klb.dev/cliptrack/internal/store"
)

const (
	defaultAttempts = 3
	defaultStep     = 100 * time.Millisecond

	notifyTitle = "Copied to Clipboard"
)

// Recorder is the write side of the store.
type Recorder interface {
	Insert(ctx context.Context, content string) (store.Record, error)
	Clear(ctx context.Context) (int64, error)
}

// Publisher is the producer side of the change bus.
type Publisher interface {
	Publish()
}

// Forgetter resets deduplication state upstream of the coordinator.
type Forgetter interface {
	Forget()
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithNotifier sets the desktop notifier. It should not block; wrap slow
// notifiers with notify.Async.
func WithNotifier(n notify.Notifier) Option {
	return func(c *Coordinator) { c.notifier = n }
}

// WithResetOnClear makes Clear also reset f, so the value that was on the
// clipboard before the clear is captured again.
func WithResetOnClear(f Forgetter) Option {
	return func(c *Coordinator) { c.forget = f }
}

// WithRetry sets how many times a busy insert is attempted and the linear
// back-off step between attempts.
func WithRetry(attempts int, step time.Duration) Option {
	return func(c *Coordinator) {
		c.attempts = max(attempts, 1)
		c.step = step
	}
}

// Coordinator sequences persist-then-notify for every capture.
type Coordinator struct {
	rec      Recorder
	pub      Publisher
	notifier notify.Notifier
	forget   Forgetter
	attempts int
	step     time.Duration
	logger   *slog.Logger
}

// New returns a Coordinator writing to rec and signalling pub.
func New(rec Recorder, pub Publisher, opts ...Option) *Coordinator {
	c := &Coordinator{
		rec:      rec,
		pub:      pub,
		notifier: notify.Nop{},
		attempts: defaultAttempts,
		step:     defaultStep,
		logger:   slog.Default().With("component", "pipeline"),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// OnCapture stores content and, once it is stored, publishes a pulse and
// queues a desktop notification. The insert is not cancelled with ctx: a
// capture that reached the coordinator is written or reported, never
// abandoned halfway.
func (c *Coordinator) OnCapture(ctx context.Context, content string) error {
	rec, err := c.insert(context.WithoutCancel(ctx), content)
	if err != nil {
		c.logger.Error("capture dropped", "err", err, "bytes", len(content))
		return err
	}

	c.pub.Publish()
	c.logger.Info("clipboard captured", "id", rec.ID, "bytes", len(rec.Content))
	c.logger.Debug("clipboard captured", "id", rec.ID, "preview", logging.Preview(rec.Content))

	if err := c.notifier.Notify(notifyTitle, logging.Preview(rec.Content)); err != nil {
		c.logger.Warn("notification failed", "err", err)
	}
	return nil
}

func (c *Coordinator) insert(ctx context.Context, content string) (store.Record, error) {
	var err error
	for i := range c.attempts {
		var rec store.Record
		rec, err = c.rec.Insert(ctx, content)
		if err == nil {
			return rec, nil
		}
		if !errors.Is(err, store.ErrBusy) || i == c.attempts-1 {
			break
		}
		c.logger.Debug("store busy, retrying", "attempt", i+1)
		time.Sleep(time.Duration(i+1) * c.step)
	}
	return store.Record{}, fmt.Errorf("insert: %w", err)
}

// Clear removes all history on behalf of a consumer and publishes a pulse so
// every consumer re-reads the (now empty) store.
func (c *Coordinator) Clear(ctx context.Context) (int64, error) {
	n, err := c.rec.Clear(ctx)
	if err != nil {
		return 0, fmt.Errorf("clear: %w", err)
	}
	if c.forget != nil {
		c.forget.Forget()
	}
	c.pub.Publish()
	return n, nil
}
