// Package clip reads and writes the system clipboard as text.
//
// The text backend uses golang.design/x/clipboard on every platform it
// supports. When the library cannot initialise (a headless Linux server, a
// container without X11/Wayland) New falls back to a headless backend whose
// reads always fail with ErrUnavailable. Callers treat that the same as any
// other transient read failure.
package clip

import (
	"errors"
	"log/slog"

	"golang.design/x/clipboard"
)

// ErrUnavailable is returned by Read when no clipboard can be accessed.
var ErrUnavailable = errors.New("clip: clipboard unavailable")

// Backend is the interface that clipboard implementations satisfy.
type Backend interface {
	// Name returns a human-readable name for the backend.
	Name() string

	// Read returns the current clipboard text. An empty string means the
	// clipboard is empty or holds only non-text data.
	Read() (string, error)

	// Write replaces the clipboard contents with text.
	Write(text string) error

	// Close releases any resources held by the backend.
	Close()
}

// New returns the system clipboard backend, or a headless backend if the
// display environment is unavailable. clipboard.Init is called here rather
// than in init() so that CLI sub-commands that never construct a Backend
// don't log spurious warnings.
func New() Backend {
	if err := clipboard.Init(); err != nil {
		slog.Warn("clipboard unavailable, running headless", "err", err)
		return Headless{}
	}
	return textBackend{}
}

type textBackend struct{}

func (textBackend) Name() string { return "system clipboard (text)" }

func (textBackend) Read() (string, error) {
	return string(clipboard.Read(clipboard.FmtText)), nil
}

func (textBackend) Write(text string) error {
	// The returned channel fires when another program takes ownership; the
	// poller notices that on its own.
	clipboard.Write(clipboard.FmtText, []byte(text))
	return nil
}

func (textBackend) Close() {}

// Headless is a backend for environments without a display server. Reads
// fail with ErrUnavailable and writes are rejected.
type Headless struct{}

func (Headless) Name() string          { return "headless (no clipboard)" }
func (Headless) Read() (string, error) { return "", ErrUnavailable }
func (Headless) Write(_ string) error  { return ErrUnavailable }
func (Headless) Close()                {}
