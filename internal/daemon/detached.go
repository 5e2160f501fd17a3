package daemon

import (
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/relaunchd/internal/domain"
)

// SessionReader finds the daemon's active session.
type SessionReader interface {
	ActiveSession() (*domain.SessionRecord, error)
}

// Spawner starts the daemon process and returns its pid.
type Spawner func() (int, error)

// DetachedConfig controls how long the CLI waits for the daemon.
type DetachedConfig struct {
	PollInterval time.Duration
	MaxPolls     uint64
}

// DefaultDetachedConfig waits up to 5 seconds.
func DefaultDetachedConfig() DetachedConfig {
	return DetachedConfig{
		PollInterval: 100 * time.Millisecond,
		MaxPolls:     50,
	}
}

var errStillWaiting = errors.New("daemon not in expected state yet")

// DetachedContext is the CLI-side execution context: the watchdog runs in a
// separate daemon process that survives the CLI.
type DetachedContext struct {
	config   DetachedConfig
	sessions SessionReader
	pm       domain.ProcessManager
	lock     domain.InstanceLock
	spawn    Spawner
	logger   *zap.Logger
}

// NewDetachedContext creates the CLI-side context.
func NewDetachedContext(
	config DetachedConfig,
	sessions SessionReader,
	pm domain.ProcessManager,
	lock domain.InstanceLock,
	spawn Spawner,
	logger *zap.Logger,
) *DetachedContext {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DetachedContext{
		config:   config,
		sessions: sessions,
		pm:       pm,
		lock:     lock,
		spawn:    spawn,
		logger:   logger,
	}
}

// Start spawns the daemon unless one already holds the instance lock, then
// waits until it is up.
func (d *DetachedContext) Start() error {
	running, err := d.daemonHoldsLock()
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrContextUnavailable, err)
	}
	if running {
		d.logger.Info("daemon already running", zap.String("lock", d.lock.Path()))
		return nil
	}

	pid, err := d.spawn()
	if err != nil {
		return fmt.Errorf("failed to start daemon: %w", err)
	}
	d.logger.Info("daemon spawned", zap.Int("pid", pid))

	err = d.poll(func() error {
		if !d.pm.IsRunning(pid) {
			return backoff.Permanent(fmt.Errorf("daemon (pid %d) exited during startup", pid))
		}
		held, err := d.daemonHoldsLock()
		if err != nil {
			return err
		}
		if !held {
			return errStillWaiting
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrContextUnavailable, err)
	}
	return nil
}

// Stop interrupts the daemon and waits for it to exit.
// wasRunning is false when no live daemon was recorded.
func (d *DetachedContext) Stop() (bool, error) {
	rec, err := d.sessions.ActiveSession()
	if err != nil {
		return false, fmt.Errorf("failed to read session: %w", err)
	}
	if rec == nil || !d.pm.IsRunning(rec.PID) {
		return false, nil
	}

	if err := d.pm.Interrupt(rec.PID); err != nil {
		return true, fmt.Errorf("failed to signal daemon (pid %d): %w", rec.PID, err)
	}

	err = d.poll(func() error {
		if d.pm.IsRunning(rec.PID) {
			return errStillWaiting
		}
		return nil
	})
	if err != nil {
		return true, fmt.Errorf("daemon (pid %d) did not exit: %w", rec.PID, err)
	}

	d.logger.Info("daemon stopped", zap.Int("pid", rec.PID), zap.String("session", rec.ID))
	return true, nil
}

// Status returns the active session if its daemon is alive.
func (d *DetachedContext) Status() (*domain.SessionRecord, error) {
	rec, err := d.sessions.ActiveSession()
	if err != nil || rec == nil {
		return nil, err
	}
	if !d.pm.IsRunning(rec.PID) {
		return nil, nil
	}
	return rec, nil
}

// daemonHoldsLock probes the instance lock without keeping it.
func (d *DetachedContext) daemonHoldsLock() (bool, error) {
	ok, err := d.lock.TryLock()
	if err != nil {
		return false, err
	}
	if !ok {
		return true, nil
	}
	if err := d.lock.Unlock(); err != nil {
		return false, err
	}
	return false, nil
}

func (d *DetachedContext) poll(op func() error) error {
	b := backoff.WithMaxRetries(backoff.NewConstantBackOff(d.config.PollInterval), d.config.MaxPolls)
	return backoff.Retry(op, b)
}

// Ensure DetachedContext can host the watchdog.
var _ domain.ExecutionContext = (*DetachedContext)(nil)
