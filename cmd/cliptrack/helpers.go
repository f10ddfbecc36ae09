package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"go.klb.dev/cliptrack/internal/grpcservice"
	"go.klb.dev/cliptrack/internal/ipc"
)

// callTimeout bounds a single unary call to the daemon.
const callTimeout = 5 * time.Second

var envKeys = strings.NewReplacer("-", "_")

var errNoDaemon = errors.New("cliptrack daemon is not running (start it with \"cliptrack daemon\")")

// dialDaemon returns a client for the daemon on the local socket. No auth is
// needed: the socket is local and owner-restricted by the OS.
func dialDaemon() (*grpcservice.Client, func(), error) {
	if !ipc.IsRunning() {
		return nil, nil, errNoDaemon
	}
	conn, err := grpc.NewClient(
		"passthrough:///cliptrack",
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return ipc.Dial(ctx)
		}),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("dial %s: %w", ipc.SocketPath(), err)
	}
	return grpcservice.NewClient(conn), func() { _ = conn.Close() }, nil
}

// defaultDBPath is $XDG_DATA_HOME/cliptrack/cliptrack.db, falling back to
// ~/.local/share and finally the working directory.
func defaultDBPath() string {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return filepath.Join(dir, "cliptrack", "cliptrack.db")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".local", "share", "cliptrack", "cliptrack.db")
	}
	return "cliptrack.db"
}

func fmtAge(t time.Time) string {
	age := time.Since(t).Round(time.Second)
	if age < time.Minute {
		return fmt.Sprintf("%ds ago", int(age.Seconds()))
	}
	if age < time.Hour {
		return fmt.Sprintf("%dm ago", int(age.Minutes()))
	}
	if age < 24*time.Hour {
		return t.Local().Format("15:04:05")
	}
	return t.Local().Format("2006-01-02 15:04")
}

// oneLine flattens text for a table cell and cuts it to width runes.
func oneLine(text string, width int) string {
	s := strings.Join(strings.Fields(text), " ")
	r := []rune(s)
	if width > 0 && len(r) > width {
		return string(r[:width-1]) + "…"
	}
	return s
}
