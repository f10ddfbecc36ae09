// Package grpcservice implements the HistoryService served on the local
// socket: history queries, clear, restore, status, and a pulse stream that
// relays the change bus to out-of-process consumers.
package grpcservice

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"go.klb.dev/cliptrack/internal/bus"
	"go.klb.dev/cliptrack/internal/clip"
	"go.klb.dev/cliptrack/internal/poller"
	"go.klb.dev/cliptrack/internal/store"
)

// History is the read side of the store.
type History interface {
	Recent(ctx context.Context, limit int) ([]store.Record, error)
	Get(ctx context.Context, id int64) (store.Record, error)
	Stats(ctx context.Context) (store.Stats, error)
}

// Clearer clears history. The pipeline coordinator implements it so that a
// clear is followed by a pulse.
type Clearer interface {
	Clear(ctx context.Context) (int64, error)
}

// Clipboard is where Restore writes.
type Clipboard interface {
	Name() string
	Write(text string) error
}

// PollerStats reports poller counters.
type PollerStats interface {
	Stats() poller.Stats
}

// Deps are the collaborators a Service needs.
type Deps struct {
	History   History
	Clearer   Clearer
	Clipboard Clipboard
	Bus       *bus.Bus
	Poller    PollerStats
}

// Info is static daemon metadata reported by Status.
type Info struct {
	Version string
	DBPath  string
	Socket  string
}

// Service implements HistoryServer.
type Service struct {
	deps    Deps
	info    Info
	started time.Time

	stopOnce sync.Once
	stop     chan struct{}
}

// New returns a Service.
func New(deps Deps, info Info) *Service {
	return &Service{deps: deps, info: info, started: time.Now(), stop: make(chan struct{})}
}

// Close ends every open Watch stream.
func (s *Service) Close() {
	s.stopOnce.Do(func() { close(s.stop) })
}

// Recent implements HistoryService.Recent.
func (s *Service) Recent(ctx context.Context, req *wrapperspb.UInt32Value) (*structpb.ListValue, error) {
	recs, err := s.deps.History.Recent(ctx, int(req.GetValue()))
	if err != nil {
		return nil, toStatus(err)
	}
	return encodeRecords(recs), nil
}

// Clear implements HistoryService.Clear.
func (s *Service) Clear(ctx context.Context, _ *emptypb.Empty) (*wrapperspb.Int64Value, error) {
	n, err := s.deps.Clearer.Clear(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	slog.Info("history cleared by request", "peer", addrFromCtx(ctx), "removed", n)
	return wrapperspb.Int64(n), nil
}

// Restore implements HistoryService.Restore.
func (s *Service) Restore(ctx context.Context, req *wrapperspb.Int64Value) (*emptypb.Empty, error) {
	if req.GetValue() <= 0 {
		return nil, status.Error(codes.InvalidArgument, "id must be positive")
	}
	rec, err := s.deps.History.Get(ctx, req.GetValue())
	if err != nil {
		return nil, toStatus(err)
	}
	if err := s.deps.Clipboard.Write(rec.Content); err != nil {
		return nil, toStatus(err)
	}
	slog.Debug("record restored to clipboard", "id", rec.ID)
	return &emptypb.Empty{}, nil
}

// Status implements HistoryService.Status.
func (s *Service) Status(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	st, err := s.deps.History.Stats(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	ps := s.deps.Poller.Stats()

	subs := s.deps.Bus.Subscribers()
	subList := make([]any, 0, len(subs))
	for _, sub := range subs {
		subList = append(subList, map[string]any{
			"name":          sub.Name,
			"subscribed_at": sub.SubscribedAt.UTC().Format(time.RFC3339),
			"pulses":        sub.Pulses,
		})
	}

	return structpb.NewStruct(map[string]any{
		"version":    s.info.Version,
		"db":         s.info.DBPath,
		"socket":     s.info.Socket,
		"backend":    s.deps.Clipboard.Name(),
		"started_at": s.started.UTC().Format(time.RFC3339),
		"records":    st.Count,
		"last_id":    st.LastID,
		"poller": map[string]any{
			"interval":      ps.Interval.String(),
			"ticks":         ps.Ticks,
			"read_failures": ps.ReadFailures,
			"emitted":       ps.Emitted,
		},
		"pulses_published": s.deps.Bus.Published(),
		"subscribers":      subList,
	})
}

// Watch implements HistoryService.Watch: one empty message per pulse, with
// pending pulses coalesced exactly as on the in-process bus.
func (s *Service) Watch(_ *emptypb.Empty, stream WatchStream) error {
	ctx := stream.Context()
	sub := s.deps.Bus.Subscribe("watch:" + addrFromCtx(ctx))
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.stop:
			return status.Error(codes.Unavailable, "daemon shutting down")
		case <-sub.C():
			if err := stream.Send(&emptypb.Empty{}); err != nil {
				return err
			}
		}
	}
}

// toStatus maps domain errors onto gRPC codes.
func toStatus(err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, clip.ErrUnavailable):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return status.FromContextError(err).Err()
	default:
		return status.Error(codes.Unavailable, err.Error())
	}
}

func addrFromCtx(ctx context.Context) string {
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil && p.Addr.String() != "" {
		return p.Addr.String()
	}
	return "local"
}
