// Package systemd integrates the daemon with systemd: readiness and
// watchdog notifications over NOTIFY_SOCKET, and unit status lookups over
// D-Bus for the CLI.
package systemd

import (
	"context"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	logx "todox/pkg/logx"
)

// Notifier sends sd_notify messages. Outside systemd (no NOTIFY_SOCKET)
// every call is a silent no-op.
type Notifier struct {
	log logx.Logger
}

func NewNotifier(log logx.Logger) *Notifier {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Notifier{log: log}
}

func (n *Notifier) send(state string) bool {
	ok, err := daemon.SdNotify(false, state)
	if err != nil {
		n.log.Warn("sd_notify failed", logx.String("state", state), logx.Err(err))
		return false
	}
	return ok
}

// Ready reports startup completion.
func (n *Notifier) Ready() bool { return n.send(daemon.SdNotifyReady) }

// Stopping reports that shutdown began.
func (n *Notifier) Stopping() bool { return n.send(daemon.SdNotifyStopping) }

// Reloading reports a configuration reload in progress.
func (n *Notifier) Reloading() bool { return n.send(daemon.SdNotifyReloading) }

// Status sets the free-form status line shown by systemctl status.
func (n *Notifier) Status(msg string) bool { return n.send("STATUS=" + msg) }

// RunWatchdog pings the watchdog at half the configured interval until ctx
// is done. Without WatchdogSec it returns immediately.
func (n *Notifier) RunWatchdog(ctx context.Context) error {
	every, err := daemon.SdWatchdogEnabled(false)
	if err != nil {
		n.log.Warn("watchdog config invalid", logx.Err(err))
		return nil
	}
	if every <= 0 {
		return nil
	}
	tick := every / 2
	if tick < time.Second {
		tick = time.Second
	}
	n.log.Debug("watchdog enabled", logx.Duration("interval", every))
	t := time.NewTicker(tick)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			n.send(daemon.SdNotifyWatchdog)
		}
	}
}
