// Package usecase contains application business logic.
package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/relaunchd/internal/domain"
	"github.com/eliteGoblin/focusd/relaunchd/internal/metrics"
)

// RecoveryConfig holds coordinator settings.
type RecoveryConfig struct {
	Target      domain.TargetIdentity
	SettleDelay time.Duration
}

// DefaultRecoveryConfig returns the default settle delay.
func DefaultRecoveryConfig(target domain.TargetIdentity) RecoveryConfig {
	return RecoveryConfig{
		Target:      target,
		SettleDelay: 3 * time.Second,
	}
}

// RecoveryCoordinator relaunches the target once per detected failure and
// schedules a delayed relaunch when the execution context is torn down.
type RecoveryCoordinator struct {
	cfg      RecoveryConfig
	gate     domain.Gate
	launcher domain.Launcher
	sink     domain.NotificationSink
	history  domain.RelaunchRecorder
	clock    clock.Clock
	logger   *zap.Logger
	metrics  *metrics.Metrics

	// mu serializes relaunch attempts.
	mu sync.Mutex

	settleMu sync.Mutex
	settle   *clock.Timer
	pending  sync.WaitGroup
}

// NewRecoveryCoordinator creates a coordinator.
func NewRecoveryCoordinator(
	cfg RecoveryConfig,
	gate domain.Gate,
	launcher domain.Launcher,
	sink domain.NotificationSink,
	logger *zap.Logger,
) *RecoveryCoordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RecoveryCoordinator{
		cfg:      cfg,
		gate:     gate,
		launcher: launcher,
		sink:     sink,
		clock:    clock.New(),
		logger:   logger,
	}
}

// WithClock replaces the wall clock. Used by tests.
func (c *RecoveryCoordinator) WithClock(clk clock.Clock) *RecoveryCoordinator {
	c.clock = clk
	return c
}

// WithHistory records every relaunch attempt.
func (c *RecoveryCoordinator) WithHistory(h domain.RelaunchRecorder) *RecoveryCoordinator {
	c.history = h
	return c
}

// WithMetrics sets the metrics collectors.
func (c *RecoveryCoordinator) WithMetrics(m *metrics.Metrics) *RecoveryCoordinator {
	c.metrics = m
	return c
}

// Target returns the monitored identity.
func (c *RecoveryCoordinator) Target() domain.TargetIdentity {
	return c.cfg.Target
}

// Relaunch attempts to start the target. Returned errors are informational.
func (c *RecoveryCoordinator) Relaunch(ctx context.Context) (domain.RelaunchOutcome, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	sessionID := domain.SessionFromContext(ctx)

	if !c.gate.IsEnabled() {
		c.logger.Debug("relaunch skipped, watchdog disabled",
			zap.String("target", c.cfg.Target.String()))
		c.metrics.Relaunch(string(domain.OutcomeSkipped))
		return domain.OutcomeSkipped, nil
	}

	ep := c.resolve(ctx)
	if ep == nil {
		err := fmt.Errorf("%w: %s", domain.ErrUnresolvable, c.cfg.Target)
		c.record(sessionID, domain.OutcomeUnresolvable, err)
		return domain.OutcomeUnresolvable, err
	}

	intent := domain.RelaunchIntent{
		Identity:   c.cfg.Target,
		EntryPoint: *ep,
		Flags:      domain.SeamlessResume,
	}

	if err := c.launcher.Launch(ctx, intent); err != nil {
		if errors.Is(err, domain.ErrUnresolvable) {
			// The host has no way to start this entry point.
			c.logger.Warn("entry point cannot be launched on this host",
				zap.String("target", c.cfg.Target.String()),
				zap.String("entry_point", ep.Ref),
				zap.Error(err))
			c.record(sessionID, domain.OutcomeUnresolvable, err)
			return domain.OutcomeUnresolvable, err
		}
		err = fmt.Errorf("%w: %w", domain.ErrLaunchFailed, err)
		c.logger.Warn("relaunch failed",
			zap.String("target", c.cfg.Target.String()),
			zap.String("entry_point", ep.Ref),
			zap.Error(err))
		c.record(sessionID, domain.OutcomeLaunchFailed, err)
		return domain.OutcomeLaunchFailed, err
	}

	c.logger.Info("target relaunched",
		zap.String("target", c.cfg.Target.String()),
		zap.String("entry_point", ep.Ref),
		zap.String("flags", intent.Flags.String()))
	c.record(sessionID, domain.OutcomeRelaunched, nil)
	c.emit(ctx, domain.NewRelaunchEvent(c.cfg.Target, sessionID, c.clock.Now()))

	return domain.OutcomeRelaunched, nil
}

// resolve asks the launcher, then falls back to the naming convention.
func (c *RecoveryCoordinator) resolve(ctx context.Context) *domain.EntryPoint {
	ep, err := c.launcher.ResolveEntryPoint(ctx, c.cfg.Target)
	if err != nil {
		c.logger.Debug("entry point lookup failed, using convention",
			zap.String("target", c.cfg.Target.String()),
			zap.Error(err))
	}
	if err == nil && ep != nil {
		return ep
	}
	return domain.ConventionEntryPoint(c.cfg.Target)
}

func (c *RecoveryCoordinator) record(sessionID string, outcome domain.RelaunchOutcome, cause error) {
	c.metrics.Relaunch(string(outcome))
	if c.history == nil {
		return
	}

	rec := domain.RelaunchRecord{
		SessionID: sessionID,
		Target:    c.cfg.Target,
		Outcome:   outcome,
		At:        c.clock.Now(),
	}
	if cause != nil {
		rec.Detail = cause.Error()
	}
	if err := c.history.RecordRelaunch(rec); err != nil {
		c.logger.Warn("failed to record relaunch", zap.Error(err))
	}
}

// emit delivers the event without letting the sink affect the outcome.
func (c *RecoveryCoordinator) emit(ctx context.Context, ev domain.RelaunchEvent) {
	if c.sink == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("notification sink panicked", zap.Any("panic", r))
		}
	}()
	if err := c.sink.Emit(ctx, ev); err != nil {
		c.logger.Warn("failed to deliver relaunch event", zap.Error(err))
	}
}

// OnTeardown schedules one relaunch after the settle delay if the watchdog is
// still enabled. Intent and the enabled flag are re-checked when it fires.
func (c *RecoveryCoordinator) OnTeardown(t domain.Teardown) {
	if !c.gate.IsEnabled() {
		c.logger.Debug("teardown while disabled, no recovery",
			zap.String("session", t.SessionID()))
		return
	}

	c.settleMu.Lock()
	defer c.settleMu.Unlock()

	if c.settle != nil && c.settle.Stop() {
		c.pending.Done()
	}

	c.logger.Info("execution context torn down, relaunch scheduled",
		zap.String("session", t.SessionID()),
		zap.Duration("settle_delay", c.cfg.SettleDelay))
	c.metrics.Settle("scheduled")

	c.pending.Add(1)
	c.settle = c.clock.AfterFunc(c.cfg.SettleDelay, func() {
		defer c.pending.Done()
		c.settleFire(t)
	})
}

func (c *RecoveryCoordinator) settleFire(t domain.Teardown) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("settle relaunch panicked", zap.Any("panic", r))
		}
	}()

	if t.Intentional() {
		c.logger.Info("teardown was intentional, relaunch cancelled",
			zap.String("session", t.SessionID()))
		c.metrics.Settle("skipped")
		return
	}
	if !c.gate.IsEnabled() {
		c.logger.Info("watchdog disabled during settle delay, relaunch cancelled",
			zap.String("session", t.SessionID()))
		c.metrics.Settle("skipped")
		return
	}

	c.metrics.Settle("fired")
	ctx := domain.ContextWithSession(context.Background(), t.SessionID())
	if _, err := c.Relaunch(ctx); err != nil {
		c.logger.Warn("settle relaunch did not succeed", zap.Error(err))
	}
}

// Wait blocks until no settle relaunch is pending.
func (c *RecoveryCoordinator) Wait() {
	c.pending.Wait()
}

// Close cancels a pending settle relaunch.
func (c *RecoveryCoordinator) Close() {
	c.settleMu.Lock()
	defer c.settleMu.Unlock()
	if c.settle != nil && c.settle.Stop() {
		c.pending.Done()
	}
	c.settle = nil
}

// Ensure RecoveryCoordinator is notified of teardowns.
var _ domain.TeardownListener = (*RecoveryCoordinator)(nil)
