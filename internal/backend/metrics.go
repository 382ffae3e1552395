package backend

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics records collaborator calls.
type Metrics struct {
	Requests *prometheus.CounterVec
	Duration *prometheus.HistogramVec
}

// NewMetrics creates the collaborator metrics and registers them when reg is
// non-nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "reportflow",
				Subsystem: "backend",
				Name:      "requests_total",
				Help:      "Backend collaborator requests by operation and outcome",
			},
			[]string{"operation", "outcome"},
		),
		Duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "reportflow",
				Subsystem: "backend",
				Name:      "request_duration_seconds",
				Help:      "Backend collaborator request latency",
				Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"operation"},
		),
	}
	if reg != nil {
		reg.MustRegister(m.Requests, m.Duration)
	}
	return m
}

func (m *Metrics) observe(op string, started time.Time, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	switch {
	case err == nil:
	case IsShape(err):
		outcome = "shape_mismatch"
	default:
		outcome = "transport_failure"
	}
	m.Requests.WithLabelValues(op, outcome).Inc()
	m.Duration.WithLabelValues(op).Observe(time.Since(started).Seconds())
}
