package infra

import (
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"go.uber.org/zap"
)

// SystemdNotifier reports daemon lifecycle over the sd_notify socket.
// Outside systemd every call is a no-op.
type SystemdNotifier struct {
	notify  func(unsetEnv bool, state string) (bool, error)
	enabled func(unsetEnv bool) (time.Duration, error)
	logger  *zap.Logger
}

// NewSystemdNotifier creates a notifier bound to the process environment.
func NewSystemdNotifier(logger *zap.Logger) *SystemdNotifier {
	return &SystemdNotifier{
		notify:  daemon.SdNotify,
		enabled: daemon.SdWatchdogEnabled,
		logger:  logger,
	}
}

func (n *SystemdNotifier) Ready()    { n.send(daemon.SdNotifyReady) }
func (n *SystemdNotifier) Stopping() { n.send(daemon.SdNotifyStopping) }
func (n *SystemdNotifier) Watchdog() { n.send(daemon.SdNotifyWatchdog) }

// WatchdogInterval returns WATCHDOG_USEC, or 0 when the unit has no watchdog.
func (n *SystemdNotifier) WatchdogInterval() time.Duration {
	d, err := n.enabled(false)
	if err != nil {
		n.logDebug("systemd watchdog check failed", zap.Error(err))
		return 0
	}
	return d
}

func (n *SystemdNotifier) send(state string) {
	sent, err := n.notify(false, state)
	if err != nil {
		n.logDebug("sd_notify failed", zap.String("state", state), zap.Error(err))
		return
	}
	if sent {
		n.logDebug("sd_notify", zap.String("state", state))
	}
}

func (n *SystemdNotifier) logDebug(msg string, fields ...zap.Field) {
	if n.logger != nil {
		n.logger.Debug(msg, fields...)
	}
}
