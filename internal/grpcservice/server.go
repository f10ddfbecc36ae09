package grpcservice

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/soheilhy/cmux"
	"google.golang.org/grpc"
)

// gracePeriod bounds how long Shutdown waits for in-flight calls.
const gracePeriod = 2 * time.Second

// Server multiplexes gRPC and the HTTP/JSON gateway on one listener.
type Server struct {
	svc  *Service
	grpc *grpc.Server
	http *http.Server

	mu sync.Mutex
	ln net.Listener
}

// NewServer builds a Server for svc. Call Serve to start it.
func NewServer(svc *Service) (*Server, error) {
	gw, err := NewGateway(svc)
	if err != nil {
		return nil, err
	}
	gs := grpc.NewServer()
	RegisterHistoryServer(gs, svc)
	return &Server{
		svc:  svc,
		grpc: gs,
		http: &http.Server{Handler: gw, ReadHeaderTimeout: 5 * time.Second},
	}, nil
}

// Serve accepts connections on ln until Shutdown is called or a listener
// fails. It returns nil after a Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	m := cmux.New(ln)
	grpcL := m.MatchWithWriters(cmux.HTTP2MatchHeaderFieldSendSettings("content-type", "application/grpc"))
	httpL := m.Match(cmux.Any())
	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()

	errc := make(chan error, 2)
	go func() { errc <- s.grpc.Serve(grpcL) }()
	go func() { errc <- s.http.Serve(httpL) }()

	err := m.Serve()
	if isClosed(err) {
		return nil
	}
	select {
	case e := <-errc:
		if !isClosed(e) {
			err = errors.Join(err, e)
		}
	default:
	}
	return err
}

// Shutdown ends Watch streams, lets in-flight calls finish for up to
// gracePeriod, and closes the listener.
func (s *Server) Shutdown(ctx context.Context) {
	s.svc.Close()

	ctx, cancel := context.WithTimeout(ctx, gracePeriod)
	defer cancel()

	done := make(chan struct{})
	go func() {
		s.grpc.GracefulStop()
		close(done)
	}()
	if err := s.http.Shutdown(ctx); err != nil {
		slog.Debug("http gateway shutdown", "err", err)
	}
	select {
	case <-done:
	case <-ctx.Done():
		s.grpc.Stop()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln != nil {
		_ = s.ln.Close()
	}
}

func isClosed(err error) bool {
	return err == nil ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, cmux.ErrListenerClosed) ||
		errors.Is(err, grpc.ErrServerStopped) ||
		errors.Is(err, http.ErrServerClosed)
}
