// Package daemon implements the watchdog controller, heartbeat loop and the
// execution contexts that host it.
package daemon

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/relaunchd/internal/domain"
	"github.com/eliteGoblin/focusd/relaunchd/internal/metrics"
)

// LivenessChecker answers whether the target is alive.
type LivenessChecker interface {
	IsTargetAlive(ctx context.Context, identity domain.TargetIdentity) bool
}

// Relauncher restarts the target.
type Relauncher interface {
	Relaunch(ctx context.Context) (domain.RelaunchOutcome, error)
}

// HeartbeatConfig holds heartbeat settings.
type HeartbeatConfig struct {
	Interval time.Duration // Time between ticks (default 30s)
}

// DefaultHeartbeatConfig returns default heartbeat configuration.
func DefaultHeartbeatConfig() HeartbeatConfig {
	return HeartbeatConfig{
		Interval: 30 * time.Second,
	}
}

// HeartbeatScheduler runs check-and-relaunch ticks one interval apart.
// There is at most one pending tick; each tick schedules the next from the
// time it finishes, so the schedule drifts by the tick duration.
type HeartbeatScheduler struct {
	config     HeartbeatConfig
	gate       domain.Gate
	probe      LivenessChecker
	relauncher Relauncher
	target     domain.TargetIdentity
	sessionID  string
	clock      clock.Clock
	logger     *zap.Logger
	metrics    *metrics.Metrics

	mu       sync.Mutex
	pending  *Handle
	armed    bool
	tornDown bool
}

// NewHeartbeatScheduler creates a scheduler for one session.
func NewHeartbeatScheduler(
	config HeartbeatConfig,
	gate domain.Gate,
	probe LivenessChecker,
	relauncher Relauncher,
	target domain.TargetIdentity,
	logger *zap.Logger,
) *HeartbeatScheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HeartbeatScheduler{
		config:     config,
		gate:       gate,
		probe:      probe,
		relauncher: relauncher,
		target:     target,
		clock:      clock.New(),
		logger:     logger,
	}
}

// WithClock replaces the wall clock. Used by tests.
func (s *HeartbeatScheduler) WithClock(clk clock.Clock) *HeartbeatScheduler {
	s.clock = clk
	return s
}

// WithSession tags ticks with a session id.
func (s *HeartbeatScheduler) WithSession(id string) *HeartbeatScheduler {
	s.sessionID = id
	return s
}

func (s *HeartbeatScheduler) WithMetrics(m *metrics.Metrics) *HeartbeatScheduler {
	s.metrics = m
	return s
}

// Arm schedules the first tick one interval from now.
// Arming twice, or after teardown, does nothing.
func (s *HeartbeatScheduler) Arm() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.armed || s.tornDown {
		return
	}
	s.armed = true
	s.pending = schedule(s.clock, s.config.Interval, s.fire)

	s.logger.Info("heartbeat armed",
		zap.String("target", s.target.String()),
		zap.String("session", s.sessionID),
		zap.Duration("interval", s.config.Interval))
}

// Teardown cancels the pending tick. A tick already running finishes but
// does not reschedule.
func (s *HeartbeatScheduler) Teardown() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tornDown = true
	s.pending.Cancel()
	s.pending = nil
}

// Pending reports whether a tick is scheduled.
func (s *HeartbeatScheduler) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending != nil
}

func (s *HeartbeatScheduler) fire(h *Handle) {
	s.mu.Lock()
	if h != s.pending || s.tornDown {
		s.mu.Unlock()
		return
	}
	s.pending = nil
	s.mu.Unlock()

	if !s.gate.IsEnabled() {
		s.logger.Debug("heartbeat stopped, watchdog disabled",
			zap.String("session", s.sessionID))
		return
	}

	s.tick()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.tornDown || !s.gate.IsEnabled() {
		return
	}
	s.pending = schedule(s.clock, s.config.Interval, s.fire)
	s.metrics.Reschedule()
}

// tick runs one check. Panics are logged so the schedule survives.
func (s *HeartbeatScheduler) tick() {
	defer func() {
		if r := recover(); r != nil {
			s.metrics.TickPanic()
			s.logger.Error("heartbeat tick panicked",
				zap.String("session", s.sessionID),
				zap.Any("panic", r))
		}
	}()

	s.metrics.Tick()
	ctx := domain.ContextWithSession(context.Background(), s.sessionID)

	if s.probe.IsTargetAlive(ctx, s.target) {
		return
	}

	s.logger.Info("target not running, relaunching...",
		zap.String("target", s.target.String()))

	outcome, err := s.relauncher.Relaunch(ctx)
	if err != nil {
		s.logger.Warn("relaunch did not succeed",
			zap.String("outcome", string(outcome)),
			zap.Error(err))
		return
	}
	s.logger.Debug("relaunch finished", zap.String("outcome", string(outcome)))
}
