//go:build !(linux || freebsd || openbsd || netbsd || dragonfly)

package notify

import "log/slog"

// Desktop logs notifications on platforms without a freedesktop
// notification service.
type Desktop struct {
	AppName string
	Icon    string
}

// NewDesktop returns a Desktop notifier for appName.
func NewDesktop(appName, icon string) *Desktop {
	return &Desktop{AppName: appName, Icon: icon}
}

func (d *Desktop) Notify(title, _ string) error {
	slog.Debug("desktop notifications unsupported on this platform", "title", title)
	return nil
}
