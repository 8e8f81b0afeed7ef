package systemd

import (
	"fmt"
	"net"

	"github.com/coreos/go-systemd/v22/activation"
	"github.com/coreos/go-systemd/v22/daemon"
)

// Listener names expected in autotrackr.socket via FileDescriptorName=.
const (
	ListenerAPI     = "api"
	ListenerMetrics = "metrics"
)

// Listeners holds the systemd-activated sockets, if any.
type Listeners struct {
	API       net.Listener
	Metrics   net.Listener
	Activated bool
}

// GetListeners retrieves socket-activated file descriptors.
// Returns empty listeners when not running under socket activation.
func GetListeners() (*Listeners, error) {
	listeners := &Listeners{}

	if len(activation.Files(false)) == 0 {
		return listeners, nil
	}
	listeners.Activated = true

	named, err := activation.ListenersWithNames()
	if err != nil {
		return nil, fmt.Errorf("failed to get systemd listeners: %w", err)
	}
	listeners.API = first(named, ListenerAPI)
	listeners.Metrics = first(named, ListenerMetrics)
	return listeners, nil
}

func first(named map[string][]net.Listener, name string) net.Listener {
	if lns, ok := named[name]; ok && len(lns) > 0 {
		return lns[0]
	}
	return nil
}

// NotifyReady sends READY=1. A missing notify socket is not an error.
func NotifyReady() error {
	return notify(daemon.SdNotifyReady)
}

// NotifyStopping sends STOPPING=1.
func NotifyStopping() error {
	return notify(daemon.SdNotifyStopping)
}

// NotifyReloading sends RELOADING=1; follow with NotifyReady once done.
func NotifyReloading() error {
	return notify(daemon.SdNotifyReloading)
}

// NotifyStatus publishes a free-form status line shown by systemctl status.
func NotifyStatus(status string) error {
	return notify("STATUS=" + status)
}

func notify(state string) error {
	if _, err := daemon.SdNotify(false, state); err != nil {
		return fmt.Errorf("failed to send sd_notify %q: %w", state, err)
	}
	return nil
}
