// Package metrics exposes the gate's prometheus collectors.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	Decisions      *prometheus.CounterVec
	RiskRejections *prometheus.CounterVec
	Evaluation     prometheus.Histogram
	OpenPositions  *prometheus.GaugeVec
}

// New builds the collectors and registers them with reg. A nil reg leaves
// them unregistered, which keeps parallel tests from colliding on the
// default registry.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ordergate_decisions_total",
			Help: "Gate decisions by order action and outcome kind",
		}, []string{"action", "kind"}),
		RiskRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ordergate_risk_rejections_total",
			Help: "Risk pipeline failures by rule code and level",
		}, []string{"code", "level"}),
		Evaluation: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "ordergate_evaluation_seconds",
			Help:    "Risk pipeline evaluation latency",
			Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1},
		}),
		OpenPositions: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ordergate_open_positions",
			Help: "Open positions in a session after the last mutation",
		}, []string{"session"}),
	}
	if reg != nil {
		reg.MustRegister(m.Decisions, m.RiskRejections, m.Evaluation, m.OpenPositions)
	}
	return m
}

// The methods below are nil-safe so callers can run without metrics.

func (m *Metrics) Decision(action, kind string) {
	if m == nil {
		return
	}
	m.Decisions.WithLabelValues(action, kind).Inc()
}

func (m *Metrics) Rejection(code, level string) {
	if m == nil {
		return
	}
	m.RiskRejections.WithLabelValues(code, level).Inc()
}

func (m *Metrics) Observe(d time.Duration) {
	if m == nil {
		return
	}
	m.Evaluation.Observe(d.Seconds())
}

// SetOpen records the open position count of a session. A session with
// nothing open drops its series.
func (m *Metrics) SetOpen(session string, n int) {
	if m == nil {
		return
	}
	if n <= 0 {
		m.OpenPositions.DeleteLabelValues(session)
		return
	}
	m.OpenPositions.WithLabelValues(session).Set(float64(n))
}

// Forget drops a finished session's series.
func (m *Metrics) Forget(session string) {
	if m == nil {
		return
	}
	m.OpenPositions.DeleteLabelValues(session)
}
