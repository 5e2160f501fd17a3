package daemon

import (
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/relaunchd/internal/metrics"
)

type heartbeatFixture struct {
	clk        *clock.Mock
	gate       *mockGate
	probe      *scriptedProbe
	relauncher *countingRelauncher
	reg        *prometheus.Registry
	scheduler  *HeartbeatScheduler
}

func newHeartbeatFixture(script ...bool) *heartbeatFixture {
	f := &heartbeatFixture{
		clk:        clock.NewMock(),
		gate:       newGate(true),
		probe:      &scriptedProbe{script: script},
		relauncher: &countingRelauncher{},
		reg:        prometheus.NewRegistry(),
	}
	f.scheduler = NewHeartbeatScheduler(
		HeartbeatConfig{Interval: interval},
		f.gate, f.probe, f.relauncher, target, zap.NewNop(),
	).WithClock(f.clk).WithSession("test-session").WithMetrics(metrics.New(f.reg))
	return f
}

// tickAndSettle advances one interval and waits until tick n has run and
// the scheduler has either rescheduled or stopped.
func (f *heartbeatFixture) tickAndSettle(t *testing.T, n int, expectPending bool) {
	t.Helper()
	f.clk.Add(interval)
	require.Eventually(t, func() bool {
		return f.probe.Calls() == n && f.scheduler.Pending() == expectPending
	}, waitFor, pollTick)
}

func (f *heartbeatFixture) reschedules(t *testing.T) float64 {
	return counterValue(t, f.reg, "relaunchd_heartbeat_reschedules_total", nil)
}

func TestDefaultHeartbeatConfig(t *testing.T) {
	assert.Equal(t, 30*time.Second, DefaultHeartbeatConfig().Interval)
}

func TestHeartbeat_FirstTickOneIntervalAfterArm(t *testing.T) {
	f := newHeartbeatFixture()
	f.scheduler.Arm()
	assert.True(t, f.scheduler.Pending())

	f.clk.Add(interval - time.Second)
	assert.Never(t, func() bool { return f.probe.Calls() > 0 }, 50*time.Millisecond, pollTick)

	f.clk.Add(time.Second)
	assert.Eventually(t, func() bool { return f.probe.Calls() == 1 }, waitFor, pollTick)
}

func TestHeartbeat_AliveTicksRescheduleWithoutRelaunch(t *testing.T) {
	const n = 5
	f := newHeartbeatFixture()
	f.scheduler.Arm()

	for i := 1; i <= n; i++ {
		f.tickAndSettle(t, i, true)
	}

	assert.Equal(t, float64(n), f.reschedules(t))
	assert.Equal(t, 0, f.relauncher.Calls())
}

func TestHeartbeat_NotAliveRelaunchesOnceAndReschedulesFromCompletion(t *testing.T) {
	f := newHeartbeatFixture(true, false, true)
	f.relauncher.entered = make(chan struct{}, 1)
	f.relauncher.hold = make(chan struct{})
	f.scheduler.Arm()

	f.tickAndSettle(t, 1, true)

	// Tick 2 reports not alive and blocks inside the relaunch.
	f.clk.Add(interval)
	select {
	case <-f.relauncher.entered:
	case <-time.After(waitFor):
		t.Fatal("relaunch not invoked")
	}

	// The relaunch takes 5s of clock time.
	f.clk.Add(5 * time.Second)
	close(f.relauncher.hold)
	require.Eventually(t, f.scheduler.Pending, waitFor, pollTick)
	assert.Equal(t, 1, f.relauncher.Calls())

	// Next tick is one full interval after the relaunch finished.
	f.clk.Add(interval - time.Second)
	assert.Never(t, func() bool { return f.probe.Calls() > 2 }, 50*time.Millisecond, pollTick)

	f.clk.Add(time.Second)
	require.Eventually(t, func() bool { return f.probe.Calls() == 3 && f.scheduler.Pending() }, waitFor, pollTick)

	assert.Equal(t, 1, f.relauncher.Calls())
	assert.Equal(t, 3.0, f.reschedules(t))
}

func TestHeartbeat_DisabledAtDecisionPointNeverRelaunches(t *testing.T) {
	f := newHeartbeatFixture(false, false, false)
	f.scheduler.Arm()
	f.gate.enabled.Store(false)

	f.clk.Add(interval)
	assert.Never(t, func() bool { return f.probe.Calls() > 0 }, 50*time.Millisecond, pollTick)
	require.Eventually(t, func() bool { return !f.scheduler.Pending() }, waitFor, pollTick)

	f.clk.Add(3 * interval)
	assert.Equal(t, 0, f.relauncher.Calls())
	assert.Equal(t, 0.0, f.reschedules(t))
}

func TestHeartbeat_DisableDuringRelaunchStopsSchedule(t *testing.T) {
	f := newHeartbeatFixture(false, false)
	f.relauncher.during = func() { f.gate.enabled.Store(false) }
	f.scheduler.Arm()

	f.tickAndSettle(t, 1, false)
	require.Eventually(t, func() bool { return f.relauncher.Calls() == 1 }, waitFor, pollTick)

	f.clk.Add(3 * interval)
	assert.Equal(t, 1, f.probe.Calls())
	assert.Equal(t, 1, f.relauncher.Calls())
	assert.Equal(t, 0.0, f.reschedules(t))
}

func TestHeartbeat_TeardownCancelsPendingTick(t *testing.T) {
	f := newHeartbeatFixture()
	f.scheduler.Arm()
	f.scheduler.Teardown()
	assert.False(t, f.scheduler.Pending())

	f.clk.Add(3 * interval)
	assert.Never(t, func() bool { return f.probe.Calls() > 0 }, 50*time.Millisecond, pollTick)

	// Re-arming after teardown does nothing.
	f.scheduler.Arm()
	assert.False(t, f.scheduler.Pending())
}

func TestHeartbeat_TeardownDuringTickPreventsReschedule(t *testing.T) {
	f := newHeartbeatFixture(false)
	f.relauncher.during = f.scheduler.Teardown
	f.scheduler.Arm()

	f.tickAndSettle(t, 1, false)
	f.clk.Add(3 * interval)
	assert.Equal(t, 1, f.probe.Calls())
}

func TestHeartbeat_PanicInTickKeepsSchedule(t *testing.T) {
	f := newHeartbeatFixture()
	f.probe.panicAt = 1
	f.scheduler.Arm()

	f.tickAndSettle(t, 1, true)
	f.tickAndSettle(t, 2, true)

	assert.Equal(t, 1.0, counterValue(t, f.reg, "relaunchd_heartbeat_tick_panics_total", nil))
}

func TestHeartbeat_ArmTwiceKeepsOneTimer(t *testing.T) {
	f := newHeartbeatFixture()
	f.scheduler.Arm()
	f.scheduler.Arm()

	f.tickAndSettle(t, 1, true)
	assert.Never(t, func() bool { return f.probe.Calls() > 1 }, 50*time.Millisecond, pollTick)
}

func TestHandle_CancelledNeverFires(t *testing.T) {
	clk := clock.NewMock()
	fired := make(chan struct{}, 1)

	h := schedule(clk, time.Second, func(*Handle) { fired <- struct{}{} })
	h.Cancel()
	h.Cancel()
	assert.True(t, h.Cancelled())

	clk.Add(time.Minute)
	select {
	case <-fired:
		t.Fatal("cancelled handle fired")
	case <-time.After(20 * time.Millisecond):
	}

	var nilHandle *Handle
	assert.NotPanics(t, nilHandle.Cancel)
	assert.False(t, nilHandle.Cancelled())
}

func TestHandle_CancelIsExact(t *testing.T) {
	clk := clock.NewMock()
	fired := make(chan string, 2)

	a := schedule(clk, time.Second, func(*Handle) { fired <- "a" })
	b := schedule(clk, time.Second, func(*Handle) { fired <- "b" })
	a.Cancel()

	clk.Add(time.Second)
	select {
	case got := <-fired:
		assert.Equal(t, "b", got)
	case <-time.After(waitFor):
		t.Fatal("uncancelled handle did not fire")
	}
	assert.False(t, b.Cancelled())
}
