// Package ipc locates and opens the local socket that cliptrack CLI commands
// use to reach a running daemon.
//
// On Unix it is a Unix domain socket, on Windows a named pipe. Nothing is
// ever exposed on a network interface.
package ipc

import (
	"context"
	"errors"
	"net"
	"os"
	"time"
)

// ErrInUse is returned by Listen when a live daemon already owns the socket.
var ErrInUse = errors.New("ipc: another daemon is listening")

// SocketPath returns the socket path. $CLIPTRACK_SOCKET overrides the
// platform default:
//
//   - Linux / BSD: $XDG_RUNTIME_DIR/cliptrack.sock, else $TMPDIR/cliptrack.sock
//   - macOS:       $TMPDIR/cliptrack.sock
//   - Windows:     \\.\pipe\cliptrack
func SocketPath() string {
	if s := os.Getenv("CLIPTRACK_SOCKET"); s != "" {
		return s
	}
	return socketPath()
}

// IsRunning reports whether a daemon appears to be listening. It does a
// cheap dial-and-close; no data is exchanged.
func IsRunning() bool {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	c, err := Dial(ctx)
	if err != nil {
		return false
	}
	_ = c.Close()
	return true
}

// Listen creates a listener on SocketPath.
func Listen() (net.Listener, error) {
	return listenIPC(SocketPath())
}

// Dial connects to SocketPath.
func Dial(ctx context.Context) (net.Conn, error) {
	return dialIPC(ctx, SocketPath())
}
