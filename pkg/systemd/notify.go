// Package systemd sends sd_notify state updates to the service manager.
// Outside systemd (NOTIFY_SOCKET unset) every call is a no-op.
package systemd

import (
	"github.com/coreos/go-systemd/v22/daemon"
)

// Notifier sends state strings to the service manager.
type Notifier interface {
	Notify(state string) (bool, error)
}

// Daemon notifies through $NOTIFY_SOCKET.
type Daemon struct{}

func (Daemon) Notify(state string) (bool, error) {
	return daemon.SdNotify(false, state)
}

// Nop never notifies.
type Nop struct{}

func (Nop) Notify(string) (bool, error) { return false, nil }

// Ready reports that startup has finished.
func Ready(n Notifier) (bool, error) { return notify(n, daemon.SdNotifyReady) }

// Stopping reports that shutdown has begun.
func Stopping(n Notifier) (bool, error) { return notify(n, daemon.SdNotifyStopping) }

// Status sets the free-form status line shown by systemctl.
func Status(n Notifier, status string) (bool, error) { return notify(n, "STATUS="+status) }

func notify(n Notifier, state string) (bool, error) {
	if n == nil {
		n = Daemon{}
	}
	return n.Notify(state)
}
