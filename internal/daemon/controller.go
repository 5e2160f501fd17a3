package daemon

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/relaunchd/internal/domain"
	"github.com/eliteGoblin/focusd/relaunchd/internal/metrics"
)

// Controller owns the watchdog's Enabled/Disabled state.
// IsEnabled is lock-free; Enable and Disable are serialized.
type Controller struct {
	state atomic.Int32
	opMu  sync.Mutex

	ec      domain.ExecutionContext
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// NewController creates a disabled controller.
func NewController(logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Controller{logger: logger}
	c.state.Store(int32(domain.StateDisabled))
	return c
}

// SetExecutionContext binds the context Enable starts.
func (c *Controller) SetExecutionContext(ec domain.ExecutionContext) {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	c.ec = ec
}

func (c *Controller) WithMetrics(m *metrics.Metrics) *Controller {
	c.metrics = m
	return c
}

// IsEnabled reports the current state.
func (c *Controller) IsEnabled() bool {
	return c.State() == domain.StateEnabled
}

// State returns the current state.
func (c *Controller) State() domain.WatchdogState {
	return domain.WatchdogState(c.state.Load())
}

// Enable starts the execution context. Enabling twice is a no-op.
func (c *Controller) Enable() error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	if c.IsEnabled() {
		return nil
	}
	if c.ec == nil {
		return fmt.Errorf("%w: no execution context bound", domain.ErrContextUnavailable)
	}

	// Enabled before Start so the first tick never observes Disabled.
	c.setState(domain.StateEnabled)

	if err := c.ec.Start(); err != nil {
		c.setState(domain.StateDisabled)
		err = classifyStartError(err)
		c.logger.Warn("failed to enable watchdog", zap.Error(err))
		return err
	}

	c.logger.Info("watchdog enabled")
	return nil
}

// Disable sets Disabled and stops the execution context. It returns an
// ErrNotRunning error when nothing was running; the state is Disabled either way.
func (c *Controller) Disable() error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.setState(domain.StateDisabled)

	if c.ec == nil {
		return fmt.Errorf("%w: no execution context bound", domain.ErrNotRunning)
	}

	wasRunning, err := c.ec.Stop()
	if err != nil {
		c.logger.Warn("execution context refused stop", zap.Error(err))
		return fmt.Errorf("%w: %w: %w", domain.ErrNotRunning, domain.ErrStopRefused, err)
	}
	if !wasRunning {
		c.logger.Info("watchdog disabled, execution context was not running")
		return domain.ErrNotRunning
	}

	c.logger.Info("watchdog disabled")
	return nil
}

func (c *Controller) setState(s domain.WatchdogState) {
	c.state.Store(int32(s))
	c.metrics.SetEnabled(s == domain.StateEnabled)
}

// classifyStartError maps host failures onto the controller's rejection kinds.
func classifyStartError(err error) error {
	switch {
	case errors.Is(err, domain.ErrPermissionDenied),
		errors.Is(err, domain.ErrInvalidState),
		errors.Is(err, domain.ErrContextUnavailable):
		return err
	case errors.Is(err, os.ErrPermission):
		return fmt.Errorf("%w: %w", domain.ErrPermissionDenied, err)
	default:
		return fmt.Errorf("%w: %w", domain.ErrContextUnavailable, err)
	}
}

// Ensure Controller can gate background work.
var _ domain.Gate = (*Controller)(nil)
