package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eliteGoblin/focusd/relaunchd/internal/liveness"
)

func TestMetrics_Counters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.Tick()
	m.Tick()
	m.Reschedule()
	m.Relaunch("relaunched")
	m.Settle("scheduled")
	m.ObserveTier("process_list", liveness.Alive, nil)
	m.ObserveTier("process_list", liveness.NoSignal, errors.New("boom"))
	m.SetEnabled(true)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.ticks))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.reschedules))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.relaunches.WithLabelValues("relaunched")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.settles.WithLabelValues("scheduled")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.verdicts.WithLabelValues("process_list", "alive")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.verdicts.WithLabelValues("process_list", "failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.enabled))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Tick()
		m.Reschedule()
		m.TickPanic()
		m.Relaunch("skipped")
		m.Settle("fired")
		m.ObserveTier("foreground", liveness.Alive, nil)
		m.SetEnabled(false)
	})
}

func TestMetrics_Unregistered(t *testing.T) {
	// Two instances without a registry must not collide.
	assert.NotPanics(t, func() {
		New(nil).Tick()
		New(nil).Tick()
	})
}
