package view

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func start[T any](t *testing.T, r *Refresher[T]) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Error("refresher did not stop")
		}
	})
}

func TestRun_InitialRender(t *testing.T) {
	var rendered atomic.Int32
	r := &Refresher[int]{
		Query:    func(context.Context) (int, error) { return 7, nil },
		Render:   func(v int) { rendered.Store(int32(v)) },
		Fallback: -1,
	}
	start(t, r)
	require.Eventually(t, func() bool { return rendered.Load() == 7 }, time.Second, time.Millisecond)
	assert.EqualValues(t, 1, r.Queries())
}

func TestRun_PulsesCoalesce(t *testing.T) {
	pulses := make(chan struct{}, 1)
	// Ticks are slow enough that the whole burst lands between two of them.
	r := &Refresher[struct{}]{
		Pulses:   pulses,
		Query:    func(context.Context) (struct{}, error) { return struct{}{}, nil },
		Tick:     100 * time.Millisecond,
		Fallback: -1,
	}
	start(t, r)
	require.Eventually(t, func() bool { return r.Queries() == 1 }, time.Second, time.Millisecond)

	for range 20 {
		select {
		case pulses <- struct{}{}:
		default:
		}
	}
	require.Eventually(t, func() bool { return r.Queries() == 2 }, time.Second, time.Millisecond)
	time.Sleep(300 * time.Millisecond)
	assert.EqualValues(t, 2, r.Queries(), "one burst must cost one query")
}

func TestRun_NoPulseNoQuery(t *testing.T) {
	r := &Refresher[int]{
		Pulses:   make(chan struct{}),
		Query:    func(context.Context) (int, error) { return 0, nil },
		Tick:     time.Millisecond,
		Fallback: -1,
	}
	start(t, r)
	time.Sleep(50 * time.Millisecond)
	assert.EqualValues(t, 1, r.Queries())
}

func TestRun_FallbackRefreshes(t *testing.T) {
	r := &Refresher[int]{
		Query:    func(context.Context) (int, error) { return 0, nil },
		Tick:     time.Hour,
		Fallback: 5 * time.Millisecond,
	}
	start(t, r)
	require.Eventually(t, func() bool { return r.Queries() >= 3 }, time.Second, time.Millisecond)
}

func TestRun_QueryErrorIsIsolated(t *testing.T) {
	var (
		mu    sync.Mutex
		calls int
		got   []string
	)
	pulses := make(chan struct{}, 1)
	r := &Refresher[string]{
		Pulses: pulses,
		Query: func(context.Context) (string, error) {
			mu.Lock()
			defer mu.Unlock()
			calls++
			if calls == 1 {
				return "", errors.New("database is locked")
			}
			return "fresh", nil
		},
		Render: func(v string) {
			mu.Lock()
			got = append(got, v)
			mu.Unlock()
		},
		Tick:     time.Millisecond,
		Fallback: -1,
	}
	start(t, r)
	require.Eventually(t, func() bool { return r.Failures() == 1 }, time.Second, time.Millisecond)

	pulses <- struct{}{}
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	}, time.Second, time.Millisecond)
	mu.Lock()
	assert.Equal(t, []string{"fresh"}, got)
	mu.Unlock()
}

func TestRun_ClosedPulsesKeepsFallback(t *testing.T) {
	pulses := make(chan struct{})
	close(pulses)
	r := &Refresher[int]{
		Pulses:   pulses,
		Query:    func(context.Context) (int, error) { return 0, nil },
		Tick:     time.Millisecond,
		Fallback: 5 * time.Millisecond,
	}
	start(t, r)
	require.Eventually(t, func() bool { return r.Queries() >= 3 }, time.Second, time.Millisecond)
}
