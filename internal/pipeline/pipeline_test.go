package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.klb.dev/cliptrack/internal/bus"
	"go.klb.dev/cliptrack/internal/poller"
	"go.klb.dev/cliptrack/internal/store"
)

type fakeRecorder struct {
	mu       sync.Mutex
	errs     []error // returned by successive Insert calls, then nil
	inserted []string
	calls    int
	nextID   int64
}

func (f *fakeRecorder) Insert(_ context.Context, content string) (store.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return store.Record{}, err
		}
	}
	f.nextID++
	f.inserted = append(f.inserted, content)
	return store.Record{ID: f.nextID, Content: content, CapturedAt: time.Now()}, nil
}

func (f *fakeRecorder) Clear(_ context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := int64(len(f.inserted))
	f.inserted = nil
	return n, nil
}

type countingPublisher struct {
	mu sync.Mutex
	n  int
}

func (p *countingPublisher) Publish() {
	p.mu.Lock()
	p.n++
	p.mu.Unlock()
}

func (p *countingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.n
}

type recordingNotifier struct {
	mu     sync.Mutex
	bodies []string
	err    error
}

func (r *recordingNotifier) Notify(_, body string) error {
	r.mu.Lock()
	r.bodies = append(r.bodies, body)
	r.mu.Unlock()
	return r.err
}

type forgetCounter struct{ n int }

func (f *forgetCounter) Forget() { f.n++ }

func TestOnCapture_PersistsThenPublishes(t *testing.T) {
	rec := &fakeRecorder{}
	pub := &countingPublisher{}
	n := &recordingNotifier{}
	c := New(rec, pub, WithNotifier(n))

	require.NoError(t, c.OnCapture(context.Background(), "hello"))
	assert.Equal(t, []string{"hello"}, rec.inserted)
	assert.Equal(t, 1, pub.count())
	assert.Equal(t, []string{"hello"}, n.bodies)
}

func TestOnCapture_WriteFailureSuppressesPulse(t *testing.T) {
	rec := &fakeRecorder{errs: []error{errors.New("disk full")}}
	pub := &countingPublisher{}
	n := &recordingNotifier{}
	c := New(rec, pub, WithNotifier(n))

	err := c.OnCapture(context.Background(), "lost")
	require.Error(t, err)
	assert.Equal(t, 1, rec.calls, "non-busy errors are not retried")
	assert.Zero(t, pub.count())
	assert.Empty(t, n.bodies)
}

func TestOnCapture_RetriesBusy(t *testing.T) {
	busy := fmt.Errorf("insert: %w", store.ErrBusy)
	rec := &fakeRecorder{errs: []error{busy, busy}}
	pub := &countingPublisher{}
	c := New(rec, pub, WithRetry(3, time.Millisecond))

	require.NoError(t, c.OnCapture(context.Background(), "x"))
	assert.Equal(t, 3, rec.calls)
	assert.Equal(t, 1, pub.count())
}

func TestOnCapture_GivesUpAfterAttempts(t *testing.T) {
	busy := fmt.Errorf("insert: %w", store.ErrBusy)
	rec := &fakeRecorder{errs: []error{busy, busy, busy}}
	pub := &countingPublisher{}
	c := New(rec, pub, WithRetry(2, time.Millisecond))

	err := c.OnCapture(context.Background(), "x")
	assert.ErrorIs(t, err, store.ErrBusy)
	assert.Equal(t, 2, rec.calls)
	assert.Zero(t, pub.count())
}

func TestOnCapture_NotifierFailureIsIgnored(t *testing.T) {
	rec := &fakeRecorder{}
	pub := &countingPublisher{}
	c := New(rec, pub, WithNotifier(&recordingNotifier{err: errors.New("no bus")}))

	assert.NoError(t, c.OnCapture(context.Background(), "x"))
	assert.Equal(t, 1, pub.count())
}

func TestOnCapture_CancelledContextStillWrites(t *testing.T) {
	rec := &fakeRecorder{}
	pub := &countingPublisher{}
	c := New(rec, pub)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, c.OnCapture(ctx, "last words"))
	assert.Equal(t, []string{"last words"}, rec.inserted)
}

func TestClear_PublishesAndOptionallyForgets(t *testing.T) {
	rec := &fakeRecorder{}
	pub := &countingPublisher{}
	c := New(rec, pub)
	require.NoError(t, c.OnCapture(context.Background(), "a"))

	n, err := c.Clear(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	assert.Equal(t, 2, pub.count())

	f := &forgetCounter{}
	c = New(rec, pub, WithResetOnClear(f))
	_, err = c.Clear(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, f.n)
}

// switchSource is a clipboard whose value the test sets.
type switchSource struct {
	mu   sync.Mutex
	text string
}

func (s *switchSource) set(v string) {
	s.mu.Lock()
	s.text = v
	s.mu.Unlock()
}

func (s *switchSource) Read() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.text, nil
}

type harness struct {
	src   *switchSource
	st    *store.Store
	bus   *bus.Bus
	poll  *poller.Poller
	coord *Coordinator
	stop  func()
}

func newHarness(t *testing.T, initial string, resetOnClear bool) *harness {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "cliptrack.db"))
	require.NoError(t, err)

	h := &harness{src: &switchSource{text: initial}, st: st, bus: bus.New()}
	h.poll = poller.New(h.src, poller.WithInterval(time.Millisecond))
	var opts []Option
	if resetOnClear {
		opts = append(opts, WithResetOnClear(h.poll))
	}
	h.coord = New(st, h.bus, opts...)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = h.poll.Run(ctx, h.coord)
	}()
	h.stop = func() {
		cancel()
		<-done
		_ = st.Close()
	}
	t.Cleanup(h.stop)
	return h
}

func (h *harness) contents(t *testing.T) []string {
	t.Helper()
	recs, err := h.st.Recent(context.Background(), 100)
	require.NoError(t, err)
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.Content
	}
	return out
}

// waitTicks lets the poller run at least n more ticks.
func (h *harness) waitTicks(t *testing.T, n uint64) {
	t.Helper()
	start := h.poll.Stats().Ticks
	require.Eventually(t, func() bool { return h.poll.Stats().Ticks >= start+n },
		2*time.Second, time.Millisecond)
}

func TestScenario_CaptureDedupClear(t *testing.T) {
	h := newHarness(t, "A", false)
	ctx := context.Background()

	require.Eventually(t, func() bool { return len(h.contents(t)) == 1 }, 2*time.Second, time.Millisecond)
	assert.Equal(t, []string{"A"}, h.contents(t))

	h.waitTicks(t, 5)
	assert.Equal(t, []string{"A"}, h.contents(t), "unchanged clipboard must not add records")

	h.src.set("B")
	require.Eventually(t, func() bool { return len(h.contents(t)) == 2 }, 2*time.Second, time.Millisecond)
	assert.Equal(t, []string{"B", "A"}, h.contents(t))

	n, err := h.coord.Clear(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
	assert.Empty(t, h.contents(t))

	h.waitTicks(t, 5)
	assert.Empty(t, h.contents(t), "same value after clear is not re-captured by default")
}

func TestScenario_ResetOnClearRecaptures(t *testing.T) {
	h := newHarness(t, "A", true)
	ctx := context.Background()

	require.Eventually(t, func() bool { return len(h.contents(t)) == 1 }, 2*time.Second, time.Millisecond)
	_, err := h.coord.Clear(ctx)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return len(h.contents(t)) == 1 }, 2*time.Second, time.Millisecond)
	assert.Equal(t, []string{"A"}, h.contents(t))
}

func TestScenario_PulseImpliesRecordVisible(t *testing.T) {
	h := newHarness(t, "", false)
	sub := h.bus.Subscribe("test")
	defer sub.Close()

	values := []string{"one", "two", "three", "four"}
	for i, v := range values {
		h.src.set(v)
		select {
		case <-sub.C():
		case <-time.After(2 * time.Second):
			t.Fatalf("no pulse for %q", v)
		}
		// Everything up to and including v is already in the store.
		got := h.contents(t)
		require.GreaterOrEqual(t, len(got), i+1)
		assert.Contains(t, got, v)
	}
}

func TestScenario_NoAdjacentDuplicates(t *testing.T) {
	h := newHarness(t, "", false)
	seq := []string{"A", "A", "B", "B", "B", "A", "C", "C", "A"}
	for _, v := range seq {
		h.src.set(v)
		h.waitTicks(t, 3)
	}

	got := h.contents(t)
	for i := 1; i < len(got); i++ {
		assert.NotEqual(t, got[i-1], got[i], "adjacent duplicate at %d", i)
	}
	assert.Equal(t, []string{"A", "C", "A", "B", "A"}, got)
}
