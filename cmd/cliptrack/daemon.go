package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"go.klb.dev/cliptrack/internal/bus"
	"go.klb.dev/cliptrack/internal/clip"
	"go.klb.dev/cliptrack/internal/grpcservice"
	"go.klb.dev/cliptrack/internal/ipc"
	"go.klb.dev/cliptrack/internal/notify"
	"go.klb.dev/cliptrack/internal/pipeline"
	"go.klb.dev/cliptrack/internal/poller"
	"go.klb.dev/cliptrack/internal/store"
)

// notifyQueue is how many notifications may wait for the desktop before new
// ones are dropped.
const notifyQueue = 16

func newDaemonCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Record clipboard history and serve it on the local socket",
		Long: `Starts the recorder. The clipboard is polled at --interval; every distinct
text value is stored in the history database, a desktop notification is shown,
and connected viewers are told to refresh.

Config file search order:
  /etc/cliptrack/cliptrack.toml
  $HOME/.config/cliptrack/cliptrack.toml
  path supplied via --config

Precedence (lowest → highest): defaults → config file → CLIPTRACK_* env vars → flags`,
		Args:    cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error { return bindViper(cmd, v) },
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runDaemon(ctx, v)
		},
	}

	f := cmd.Flags()
	f.String("db", defaultDBPath(), "history database path")
	f.Duration("interval", poller.DefaultInterval, "clipboard polling interval")
	f.Bool("notify", true, "show a desktop notification for each capture")
	f.String("icon", "", "notification icon (path or theme icon name)")
	f.Bool("reset-on-clear", false, "after a clear, record the current clipboard value again")
	addLoggingFlags(cmd)
	addConfigFlag(cmd)

	return cmd
}

func runDaemon(ctx context.Context, v *viper.Viper) error {
	setupLogging(v)

	dbPath := v.GetString("db")
	st, err := store.Open(dbPath)
	if err != nil {
		slog.Error("cannot open history database", "path", dbPath, "err", err)
		return fmt.Errorf("open store: %w", err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			slog.Warn("closing store", "err", err)
		}
	}()

	b := bus.New()

	var notifier notify.Notifier = notify.Nop{}
	if v.GetBool("notify") {
		an := notify.Async(notify.NewDesktop("cliptrack", v.GetString("icon")), notifyQueue)
		defer an.Close()
		notifier = an
	}

	backend := clip.New()
	defer backend.Close()

	p := poller.New(backend, poller.WithInterval(v.GetDuration("interval")))

	opts := []pipeline.Option{pipeline.WithNotifier(notifier)}
	if v.GetBool("reset-on-clear") {
		opts = append(opts, pipeline.WithResetOnClear(p))
	}
	coord := pipeline.New(st, b, opts...)

	slog.Info("cliptrack daemon starting",
		"version", Version,
		"db", dbPath,
		"backend", backend.Name(),
		"interval", p.Interval(),
		"notify", v.GetBool("notify"),
	)

	svc := grpcservice.New(grpcservice.Deps{
		History:   st,
		Clearer:   coord,
		Clipboard: backend,
		Bus:       b,
		Poller:    p,
	}, grpcservice.Info{Version: Version, DBPath: dbPath, Socket: ipc.SocketPath()})

	srv, err := grpcservice.NewServer(svc)
	if err != nil {
		return err
	}

	var wg sync.WaitGroup
	ln, err := ipc.Listen()
	if errors.Is(err, ipc.ErrInUse) {
		return err
	}
	if err != nil {
		// History is still recorded; only the viewers are cut off.
		slog.Warn("local socket unavailable", "err", err)
	} else {
		slog.Info("local socket listening", "path", ipc.SocketPath())
		wg.Go(func() {
			if err := srv.Serve(ln); err != nil {
				slog.Error("socket server failed", "err", err)
			}
		})
	}

	err = p.Run(ctx, coord)
	slog.Info("cliptrack daemon stopping")

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	srv.Shutdown(shutdownCtx)
	wg.Wait()

	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
