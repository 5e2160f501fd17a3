// Package metrics holds the Prometheus collectors of the watchdog loop.
// All methods are safe on a nil *Metrics so components can run without them.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/eliteGoblin/focusd/relaunchd/internal/liveness"
)

const namespace = "relaunchd"

// Metrics groups the watchdog counters.
type Metrics struct {
	ticks       prometheus.Counter
	reschedules prometheus.Counter
	tickPanics  prometheus.Counter
	relaunches  *prometheus.CounterVec
	verdicts    *prometheus.CounterVec
	settles     *prometheus.CounterVec
	enabled     prometheus.Gauge
}

// New creates the collectors and registers them on reg. A nil reg leaves them unregistered.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ticks: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "heartbeat_ticks_total",
			Help:      "Heartbeat ticks executed.",
		}),
		reschedules: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "heartbeat_reschedules_total",
			Help:      "Heartbeat ticks scheduled after a completed tick.",
		}),
		tickPanics: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "heartbeat_tick_panics_total",
			Help:      "Panics recovered inside heartbeat ticks.",
		}),
		relaunches: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relaunch_attempts_total",
			Help:      "Relaunch attempts by outcome.",
		}, []string{"outcome"}),
		verdicts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "probe_tier_results_total",
			Help:      "Liveness tier results by tier and verdict.",
		}, []string{"tier", "verdict"}),
		settles: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "settle_relaunches_total",
			Help:      "Delayed relaunches after execution context teardown, by result.",
		}, []string{"result"}),
		enabled: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "enabled",
			Help:      "1 when the watchdog is enabled.",
		}),
	}
}

func (m *Metrics) Tick() {
	if m == nil {
		return
	}
	m.ticks.Inc()
}

func (m *Metrics) Reschedule() {
	if m == nil {
		return
	}
	m.reschedules.Inc()
}

func (m *Metrics) TickPanic() {
	if m == nil {
		return
	}
	m.tickPanics.Inc()
}

// Relaunch counts one relaunch attempt with its outcome label.
func (m *Metrics) Relaunch(outcome string) {
	if m == nil {
		return
	}
	m.relaunches.WithLabelValues(outcome).Inc()
}

// Settle counts a settle-delay decision: scheduled, fired or skipped.
func (m *Metrics) Settle(result string) {
	if m == nil {
		return
	}
	m.settles.WithLabelValues(result).Inc()
}

// ObserveTier matches liveness.Observer. Failed tiers are labelled "failed".
func (m *Metrics) ObserveTier(tier string, v liveness.Verdict, err error) {
	if m == nil {
		return
	}
	verdict := v.String()
	if err != nil {
		verdict = "failed"
	}
	m.verdicts.WithLabelValues(tier, verdict).Inc()
}

func (m *Metrics) SetEnabled(on bool) {
	if m == nil {
		return
	}
	if on {
		m.enabled.Set(1)
	} else {
		m.enabled.Set(0)
	}
}
