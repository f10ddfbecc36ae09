package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"go.klb.dev/cliptrack/internal/grpcservice"
	"go.klb.dev/cliptrack/internal/logging"
	"go.klb.dev/cliptrack/internal/store"
	"go.klb.dev/cliptrack/internal/view"
)

const clearScreen = "\x1b[H\x1b[2J"

func newWatchCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Live view of recent captures",
		Long: `Shows the most recent captures and redraws whenever the daemon records or
clears something. Redraws are rate-limited to --tick; a full refresh also runs
every --fallback in case a change notification was missed.`,
		Args:    cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error { return bindViper(cmd, v) },
		RunE:    func(cmd *cobra.Command, _ []string) error { return runWatch(cmd, v) },
	}

	f := cmd.Flags()
	f.IntP("limit", "n", 20, "number of records shown")
	f.Duration("tick", view.DefaultTick, "minimum time between redraws")
	f.Duration("fallback", view.DefaultFallback, "unconditional refresh period (0 disables)")
	addLoggingFlags(cmd)
	addConfigFlag(cmd)

	return cmd
}

func runWatch(cmd *cobra.Command, v *viper.Viper) error {
	setupLogging(v)

	client, closeConn, err := dialDaemon()
	if err != nil {
		return err
	}
	defer closeConn()

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	stream, err := client.Watch(ctx)
	if err != nil {
		return fmt.Errorf("watch: %w", err)
	}

	out := cmd.OutOrStdout()
	redraw := logging.IsTTY(out)
	limit := v.GetInt("limit")

	fallback := v.GetDuration("fallback")
	if fallback == 0 {
		fallback = -1
	}

	relay := newPulseRelay(stream, cancel)
	r := &view.Refresher[[]store.Record]{
		Pulses: relay.C(),
		Query: func(ctx context.Context) ([]store.Record, error) {
			ctx, cancel := context.WithTimeout(ctx, callTimeout)
			defer cancel()
			return client.Recent(ctx, limit)
		},
		Render:   func(recs []store.Record) { render(out, recs, redraw) },
		Tick:     v.GetDuration("tick"),
		Fallback: fallback,
	}
	if err := r.Run(ctx); err != nil {
		return err
	}
	cancel()
	if err := relay.Err(); err != nil {
		return fmt.Errorf("watch: %w", err)
	}
	return nil
}

// pulseRelay turns a Watch stream into a coalescing pulse channel and cancels
// the view when the stream ends.
type pulseRelay struct {
	ch   chan struct{}
	done chan struct{}
	err  error
}

func newPulseRelay(stream *grpcservice.WatchClient, stop context.CancelFunc) *pulseRelay {
	r := &pulseRelay{ch: make(chan struct{}, 1), done: make(chan struct{})}
	go func() {
		defer close(r.done)
		defer stop()
		for {
			err := stream.Recv()
			if err != nil {
				if status.Code(err) != codes.Canceled && !errors.Is(err, io.EOF) {
					r.err = err
				}
				return
			}
			select {
			case r.ch <- struct{}{}:
			default:
			}
		}
	}()
	return r
}

func (r *pulseRelay) C() <-chan struct{} { return r.ch }

// Err waits for the stream to end and reports why, or nil for a normal end.
func (r *pulseRelay) Err() error {
	<-r.done
	return r.err
}

func render(w io.Writer, recs []store.Record, redraw bool) {
	if redraw {
		fmt.Fprint(w, clearScreen)
		fmt.Fprintf(w, "cliptrack: %d most recent (updated %s)\n\n", len(recs), time.Now().Format("15:04:05"))
	}
	printHistory(w, recs)
	if !redraw {
		fmt.Fprintln(w)
	}
}
