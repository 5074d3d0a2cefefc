package txn

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exports request outcomes through Prometheus collectors. A nil
// *Metrics records nothing.
type Metrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	rejected *prometheus.CounterVec
	history  prometheus.Gauge
}

// NewMetrics builds the collectors and registers them with reg when non-nil.
func NewMetrics(reg prometheus.Registerer, namespace string) (*Metrics, error) {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "txn",
			Name:      "requests_total",
			Help:      "Requests processed by operation, type and outcome.",
		}, []string{"op", "type", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "txn",
			Name:      "request_duration_seconds",
			Help:      "Time spent applying requests.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
		}, []string{"op"}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "txn",
			Name:      "rejected_total",
			Help:      "Requests rejected before reaching the history.",
		}, []string{"reason"}),
		history: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "txn",
			Name:      "undo_depth",
			Help:      "Committed entries available for undo.",
		}),
	}
	if reg != nil {
		for _, c := range []prometheus.Collector{m.requests, m.duration, m.rejected, m.history} {
			if err := reg.Register(c); err != nil {
				return nil, err
			}
		}
	}
	return m, nil
}

// Requests exposes the request counter.
func (m *Metrics) Requests() *prometheus.CounterVec { return m.requests }

// Rejected exposes the rejection counter.
func (m *Metrics) Rejected() *prometheus.CounterVec { return m.rejected }

// UndoDepth exposes the history depth gauge.
func (m *Metrics) UndoDepth() prometheus.Gauge { return m.history }

func (m *Metrics) observe(op, typ string, start time.Time, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.requests.WithLabelValues(op, typ, outcome).Inc()
	m.duration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

func (m *Metrics) reject(reason string) {
	if m == nil {
		return
	}
	m.rejected.WithLabelValues(reason).Inc()
}

func (m *Metrics) depth(n int) {
	if m == nil {
		return
	}
	m.history.Set(float64(n))
}
