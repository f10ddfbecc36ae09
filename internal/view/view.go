// Package view runs the consumer side of the change bus: re-query the store
// when something changed, on the consumer's own schedule.
//
// Pulses only mark the view dirty. The re-query happens on the next tick, so
// any number of pulses between two ticks costs one query. A slower fallback
// refresh runs regardless, which repairs a view that missed a pulse.
package view

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

const (
	DefaultTick     = 250 * time.Millisecond
	DefaultFallback = 3 * time.Second
)

// Refresher re-runs Query and hands the result to Render.
type Refresher[T any] struct {
	// Pulses carries change notifications. May be nil; a closed channel is
	// treated as "no more pulses" and only the fallback keeps running.
	Pulses <-chan struct{}
	Query  func(ctx context.Context) (T, error)
	Render func(T)

	Tick     time.Duration // zero means DefaultTick
	Fallback time.Duration // zero means DefaultFallback; negative disables

	queries  atomic.Uint64
	failures atomic.Uint64
}

// Queries reports how many times Query has been called.
func (r *Refresher[T]) Queries() uint64 { return r.queries.Load() }

// Failures reports how many Query calls returned an error.
func (r *Refresher[T]) Failures() uint64 { return r.failures.Load() }

// Run renders once immediately and then keeps the view fresh until ctx is
// done. Query errors are logged and the loop carries on.
func (r *Refresher[T]) Run(ctx context.Context) error {
	tick := r.Tick
	if tick <= 0 {
		tick = DefaultTick
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	var fallback <-chan time.Time
	switch {
	case r.Fallback == 0:
		t := time.NewTicker(DefaultFallback)
		defer t.Stop()
		fallback = t.C
	case r.Fallback > 0:
		t := time.NewTicker(r.Fallback)
		defer t.Stop()
		fallback = t.C
	}

	pulses := r.Pulses
	r.refresh(ctx)
	dirty := false

	for {
		select {
		case <-ctx.Done():
			return nil
		case _, ok := <-pulses:
			if !ok {
				pulses = nil
				continue
			}
			dirty = true
		case <-ticker.C:
			if dirty {
				dirty = false
				r.refresh(ctx)
			}
		case <-fallback:
			dirty = false
			r.refresh(ctx)
		}
	}
}

func (r *Refresher[T]) refresh(ctx context.Context) {
	r.queries.Add(1)
	v, err := r.Query(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		r.failures.Add(1)
		slog.Warn("view refresh failed", "component", "view", "err", err)
		return
	}
	if r.Render != nil {
		r.Render(v)
	}
}
