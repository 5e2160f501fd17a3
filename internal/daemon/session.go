package daemon

import (
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/relaunchd/internal/domain"
	"github.com/eliteGoblin/focusd/relaunchd/internal/metrics"
)

// SessionLog persists session start and end.
type SessionLog interface {
	RegisterSession(rec domain.SessionRecord) error
	EndSession(id, reason string) error
}

// Session end reasons recorded in the state store.
const (
	EndReasonDisabled = "disabled"
	EndReasonKilled   = "killed"
)

// Session is the in-process execution context. Each Start begins a new
// session with its own id and heartbeat scheduler.
type Session struct {
	config     HeartbeatConfig
	target     domain.TargetIdentity
	gate       domain.Gate
	probe      LivenessChecker
	relauncher Relauncher
	listener   domain.TeardownListener
	log        SessionLog
	clock      clock.Clock
	logger     *zap.Logger
	metrics    *metrics.Metrics

	mu      sync.Mutex
	current *sessionRun
}

// sessionRun is one Start..Stop span. It doubles as the teardown report.
type sessionRun struct {
	id          string
	startedAt   time.Time
	scheduler   *HeartbeatScheduler
	intentional atomic.Bool
}

func (r *sessionRun) Intentional() bool { return r.intentional.Load() }
func (r *sessionRun) SessionID() string { return r.id }

// NewSession creates the in-process execution context.
func NewSession(
	config HeartbeatConfig,
	target domain.TargetIdentity,
	gate domain.Gate,
	probe LivenessChecker,
	relauncher Relauncher,
	logger *zap.Logger,
) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Session{
		config:     config,
		target:     target,
		gate:       gate,
		probe:      probe,
		relauncher: relauncher,
		clock:      clock.New(),
		logger:     logger,
	}
}

// WithClock replaces the wall clock for the schedulers this session creates.
func (s *Session) WithClock(clk clock.Clock) *Session {
	s.clock = clk
	return s
}

// WithTeardownListener registers the component told about teardowns.
func (s *Session) WithTeardownListener(l domain.TeardownListener) *Session {
	s.listener = l
	return s
}

// WithSessionLog persists session lifetimes.
func (s *Session) WithSessionLog(l SessionLog) *Session {
	s.log = l
	return s
}

func (s *Session) WithMetrics(m *metrics.Metrics) *Session {
	s.metrics = m
	return s
}

// Start begins a session and arms its heartbeat. Starting a running session is a no-op.
func (s *Session) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current != nil {
		return nil
	}

	run := &sessionRun{
		id:        uuid.NewString(),
		startedAt: s.clock.Now(),
	}
	run.scheduler = NewHeartbeatScheduler(s.config, s.gate, s.probe, s.relauncher, s.target, s.logger).
		WithClock(s.clock).
		WithSession(run.id).
		WithMetrics(s.metrics)

	if s.log != nil {
		rec := domain.SessionRecord{
			ID:        run.id,
			PID:       os.Getpid(),
			Target:    s.target,
			StartedAt: run.startedAt,
		}
		if err := s.log.RegisterSession(rec); err != nil {
			s.logger.Warn("failed to record session start", zap.Error(err))
		}
	}

	run.scheduler.Arm()
	s.current = run

	s.logger.Info("session started",
		zap.String("session", run.id),
		zap.String("target", s.target.String()))
	return nil
}

// Stop ends the session on request. The teardown is reported as intentional.
func (s *Session) Stop() (bool, error) {
	return s.end(true, EndReasonDisabled), nil
}

// Abort ends the session as if the host had killed it. The teardown listener
// gets a chance to relaunch the target after the settle delay.
func (s *Session) Abort(reason string) bool {
	if reason == "" {
		reason = EndReasonKilled
	}
	return s.end(false, reason)
}

// Running reports whether a session is active.
func (s *Session) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current != nil
}

// ID returns the active session id, or "".
func (s *Session) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return ""
	}
	return s.current.id
}

func (s *Session) end(intentional bool, reason string) bool {
	s.mu.Lock()
	run := s.current
	if run == nil {
		s.mu.Unlock()
		return false
	}
	s.current = nil
	run.intentional.Store(intentional)
	run.scheduler.Teardown()
	s.mu.Unlock()

	s.logger.Info("session ended",
		zap.String("session", run.id),
		zap.String("reason", reason),
		zap.Bool("intentional", intentional))

	if s.log != nil {
		if err := s.log.EndSession(run.id, reason); err != nil {
			s.logger.Warn("failed to record session end", zap.Error(err))
		}
	}
	if s.listener != nil {
		s.listener.OnTeardown(run)
	}
	return true
}

// Ensure Session can host the watchdog.
var _ domain.ExecutionContext = (*Session)(nil)
