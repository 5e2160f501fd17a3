package daemon

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/eliteGoblin/focusd/relaunchd/internal/domain"
)

const (
	target   = domain.TargetIdentity("com.example.app")
	interval = 30 * time.Second
	waitFor  = 2 * time.Second
	pollTick = 2 * time.Millisecond
)

// mockGate implements domain.Gate for testing
type mockGate struct {
	enabled atomic.Bool
}

func newGate(enabled bool) *mockGate {
	g := &mockGate{}
	g.enabled.Store(enabled)
	return g
}

func (g *mockGate) IsEnabled() bool { return g.enabled.Load() }

// scriptedProbe returns scripted verdicts, then alive.
type scriptedProbe struct {
	mu      sync.Mutex
	script  []bool
	calls   int
	panicAt int // 1-based call that panics, 0 for never
}

func (p *scriptedProbe) IsTargetAlive(ctx context.Context, id domain.TargetIdentity) bool {
	p.mu.Lock()
	p.calls++
	n := p.calls
	alive := true
	if len(p.script) > 0 {
		alive = p.script[0]
		p.script = p.script[1:]
	}
	p.mu.Unlock()

	if n == p.panicAt {
		panic("probe blew up")
	}
	return alive
}

func (p *scriptedProbe) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

// countingRelauncher records relaunch calls. If hold is set, each call
// blocks until a value is received on it.
type countingRelauncher struct {
	calls   atomic.Int32
	entered chan struct{}
	hold    chan struct{}
	during  func()
}

func (r *countingRelauncher) Relaunch(ctx context.Context) (domain.RelaunchOutcome, error) {
	r.calls.Add(1)
	if r.entered != nil {
		r.entered <- struct{}{}
	}
	if r.hold != nil {
		<-r.hold
	}
	if r.during != nil {
		r.during()
	}
	return domain.OutcomeRelaunched, nil
}

func (r *countingRelauncher) Calls() int { return int(r.calls.Load()) }

// mockExecutionContext implements domain.ExecutionContext for testing
type mockExecutionContext struct {
	mu         sync.Mutex
	running    bool
	startCalls int
	stopCalls  int
	startErr   error
	stopErr    error
}

func (m *mockExecutionContext) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.startCalls++
	if m.startErr != nil {
		return m.startErr
	}
	m.running = true
	return nil
}

func (m *mockExecutionContext) Stop() (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopCalls++
	if m.stopErr != nil {
		return false, m.stopErr
	}
	was := m.running
	m.running = false
	return was, nil
}

// recordingListener implements domain.TeardownListener for testing
type recordingListener struct {
	mu        sync.Mutex
	teardowns []domain.Teardown
}

func (l *recordingListener) OnTeardown(t domain.Teardown) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.teardowns = append(l.teardowns, t)
}

func (l *recordingListener) all() []domain.Teardown {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]domain.Teardown(nil), l.teardowns...)
}

// counterValue reads a counter (optionally one label set) from reg.
func counterValue(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)

	for _, f := range families {
		if f.GetName() != name {
			continue
		}
	metrics:
		for _, m := range f.GetMetric() {
			for _, lp := range m.GetLabel() {
				if want, ok := labels[lp.GetName()]; ok && want != lp.GetValue() {
					continue metrics
				}
			}
			return m.GetCounter().GetValue()
		}
	}
	return 0
}
