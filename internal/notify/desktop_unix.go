//go:build linux || freebsd || openbsd || netbsd || dragonfly

package notify

import (
	"fmt"
	"sync"

	"github.com/godbus/dbus/v5"
)

const (
	busName    = "org.freedesktop.Notifications"
	objectPath = "/org/freedesktop/Notifications"
	method     = busName + ".Notify"
)

// Desktop sends notifications through the freedesktop notification service
// on the session bus. The bus connection is opened on first use.
type Desktop struct {
	AppName string
	Icon    string
	// ExpireMs is the display time; -1 leaves it to the server.
	ExpireMs int32

	mu   sync.Mutex
	conn *dbus.Conn
}

// NewDesktop returns a Desktop notifier for appName.
func NewDesktop(appName, icon string) *Desktop {
	return &Desktop{AppName: appName, Icon: icon, ExpireMs: -1}
}

func (d *Desktop) Notify(title, body string) error {
	conn, err := d.session()
	if err != nil {
		return err
	}
	call := conn.Object(busName, objectPath).Call(method, 0,
		d.AppName,
		uint32(0), // replaces_id
		d.Icon,
		title,
		body,
		[]string{},                // actions
		map[string]dbus.Variant{}, // hints
		d.ExpireMs,
	)
	if call.Err != nil {
		return fmt.Errorf("notify: %w", call.Err)
	}
	return nil
}

func (d *Desktop) session() (*dbus.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.conn != nil && d.conn.Connected() {
		return d.conn, nil
	}
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("notify: session bus: %w", err)
	}
	d.conn = conn
	return conn, nil
}
