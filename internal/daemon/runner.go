package daemon

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/relaunchd/internal/domain"
)

// ServiceNotifier reports lifecycle to a service manager.
type ServiceNotifier interface {
	Ready()
	Stopping()
	Watchdog()
	// WatchdogInterval is how often the manager expects a ping; 0 disables pings.
	WatchdogInterval() time.Duration
}

// Waiter blocks until background recovery work is done.
type Waiter interface {
	Wait()
}

// Runner hosts the watchdog inside the daemon process.
//
// Signals:
//   - os.Interrupt: disable the watchdog (intentional stop) and exit.
//   - anything else: the host is killing us; abort the session so the
//     recovery path relaunches the target, wait for it, then exit.
type Runner struct {
	controller *Controller
	session    *Session
	recovery   Waiter
	notifier   ServiceNotifier
	clock      clock.Clock
	logger     *zap.Logger
}

// NewRunner creates the daemon host.
func NewRunner(
	controller *Controller,
	session *Session,
	recovery Waiter,
	notifier ServiceNotifier,
	logger *zap.Logger,
) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		controller: controller,
		session:    session,
		recovery:   recovery,
		notifier:   notifier,
		clock:      clock.New(),
		logger:     logger,
	}
}

// WithClock replaces the wall clock used for service-manager pings.
func (r *Runner) WithClock(clk clock.Clock) *Runner {
	r.clock = clk
	return r
}

// Run enables the watchdog and blocks until ctx is done or a signal arrives.
func (r *Runner) Run(ctx context.Context, signals <-chan os.Signal) error {
	if err := r.controller.Enable(); err != nil {
		r.logger.Error("failed to enable watchdog", zap.Error(err))
		return err
	}

	r.notify(func(n ServiceNotifier) { n.Ready() })
	r.logger.Info("daemon started", zap.Int("pid", os.Getpid()))

	var pings <-chan time.Time
	if r.notifier != nil {
		if iv := r.notifier.WatchdogInterval(); iv > 0 {
			ticker := r.clock.Ticker(iv / 2)
			defer ticker.Stop()
			pings = ticker.C
		}
	}

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("daemon stopping")
			r.disable()
			return nil

		case sig := <-signals:
			r.logger.Info("received signal", zap.String("signal", sig.String()))
			if sig == os.Interrupt {
				r.disable()
				return nil
			}
			r.abort("signal: " + sig.String())
			return nil

		case <-pings:
			r.notify(func(n ServiceNotifier) { n.Watchdog() })
		}
	}
}

func (r *Runner) disable() {
	r.notify(func(n ServiceNotifier) { n.Stopping() })
	if err := r.controller.Disable(); err != nil && !errors.Is(err, domain.ErrNotRunning) {
		r.logger.Warn("disable failed", zap.Error(err))
	}
}

func (r *Runner) abort(reason string) {
	r.notify(func(n ServiceNotifier) { n.Stopping() })
	r.session.Abort(reason)
	if r.recovery != nil {
		r.recovery.Wait()
	}
}

func (r *Runner) notify(fn func(ServiceNotifier)) {
	if r.notifier != nil {
		fn(r.notifier)
	}
}
