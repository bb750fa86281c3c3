package render

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the render counters exported on /metrics
type Metrics struct {
	renders  *prometheus.CounterVec
	duration *prometheus.HistogramVec
	inFlight prometheus.Gauge
}

// NewMetrics creates the render metrics and registers them with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		renders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "compositor",
			Name:      "renders_total",
			Help:      "Renders finished, by outcome.",
		}, []string{"outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "compositor",
			Name:      "render_duration_seconds",
			Help:      "Wall time of a render from submission to result.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
		}, []string{"outcome"}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "compositor",
			Name:      "renders_in_flight",
			Help:      "Renders currently running.",
		}),
	}
	reg.MustRegister(m.renders, m.duration, m.inFlight)
	return m
}

func (m *Metrics) start() func(outcome string) {
	if m == nil {
		return func(string) {}
	}

	began := time.Now()
	m.inFlight.Inc()
	return func(outcome string) {
		m.inFlight.Dec()
		m.renders.WithLabelValues(outcome).Inc()
		m.duration.WithLabelValues(outcome).Observe(time.Since(began).Seconds())
	}
}
