// Package poller samples a clipboard source on a fixed interval and emits
// each genuine change exactly once.
//
// The last observed value lives only inside the Run goroutine. It starts
// empty, so whatever is on the clipboard at startup is captured on the first
// tick. Read failures are expected (clipboard busy, no display) and simply
// skip the tick.
package poller

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"
)

// DefaultInterval is the sampling period.
const DefaultInterval = 100 * time.Millisecond

// ErrRunning is returned by Run when the poller is already running.
var ErrRunning = errors.New("poller: already running")

// Source is the watched resource.
type Source interface {
	Read() (string, error)
}

// Handler receives each deduplicated change, synchronously, in detection
// order. Its error is logged; the poller keeps going regardless.
type Handler interface {
	OnCapture(ctx context.Context, content string) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, content string) error

func (f HandlerFunc) OnCapture(ctx context.Context, content string) error { return f(ctx, content) }

// Stats are cumulative counters since New.
type Stats struct {
	Ticks        uint64
	ReadFailures uint64
	Emitted      uint64
	Interval     time.Duration
}

// Option configures a Poller.
type Option func(*Poller)

// WithInterval sets the sampling period. Non-positive values are ignored.
func WithInterval(d time.Duration) Option {
	return func(p *Poller) {
		if d > 0 {
			p.interval = d
		}
	}
}

// Poller is a deduplicating clipboard sampler.
type Poller struct {
	src      Source
	interval time.Duration
	forget   chan struct{}
	running  atomic.Bool
	logger   *slog.Logger

	ticks        atomic.Uint64
	readFailures atomic.Uint64
	emitted      atomic.Uint64
}

// New creates a poller over src. It does not start it.
func New(src Source, opts ...Option) *Poller {
	p := &Poller{
		src:      src,
		interval: DefaultInterval,
		forget:   make(chan struct{}, 1),
		logger:   slog.Default().With("component", "poller"),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Interval returns the configured sampling period.
func (p *Poller) Interval() time.Duration { return p.interval }

// Stats returns a snapshot of the counters.
func (p *Poller) Stats() Stats {
	return Stats{
		Ticks:        p.ticks.Load(),
		ReadFailures: p.readFailures.Load(),
		Emitted:      p.emitted.Load(),
		Interval:     p.interval,
	}
}

// Forget asks the running loop to drop its last observed value, so the next
// non-empty read is emitted even if it equals the previous one. It never
// blocks; repeated calls before the loop gets to them collapse into one.
func (p *Poller) Forget() {
	select {
	case p.forget <- struct{}{}:
	default:
	}
}

// Run samples the source until ctx is cancelled. The first sample is taken
// immediately. A tick in progress when ctx is cancelled is completed, the
// handler included, before Run returns nil.
func (p *Poller) Run(ctx context.Context, h Handler) error {
	if !p.running.CompareAndSwap(false, true) {
		return ErrRunning
	}
	defer p.running.Store(false)

	p.logger.Info("poller started", "interval", p.interval)
	defer p.logger.Info("poller stopped")

	t := time.NewTicker(p.interval)
	defer t.Stop()

	var last string
	last = p.tick(ctx, h, last)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-p.forget:
			last = ""
			p.logger.Debug("dedup state reset")
		case <-t.C:
			last = p.tick(ctx, h, last)
		}
	}
}

// tick performs one sample and returns the new last observed value.
func (p *Poller) tick(ctx context.Context, h Handler, last string) string {
	p.ticks.Add(1)

	current, err := p.src.Read()
	if err != nil {
		p.readFailures.Add(1)
		p.logger.Debug("clipboard read skipped", "err", err)
		return last
	}
	if current == last || current == "" {
		return last
	}

	p.emitted.Add(1)
	if err := h.OnCapture(ctx, current); err != nil {
		p.logger.Warn("capture not recorded", "err", err)
	}
	return current
}
