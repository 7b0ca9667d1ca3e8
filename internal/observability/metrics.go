// Package observability exposes Prometheus metrics and the diagnostics HTTP
// server (health, metrics, pprof, schedules).
package observability

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"memewrangler/internal/eventbus"
)

const namespace = "memewrangler"

// Metrics owns a private registry so tests and reloads never collide with
// the global default.
type Metrics struct {
	reg *prometheus.Registry

	sendAttempts *prometheus.CounterVec
	cycleSeconds prometheus.Histogram
	due          prometheus.Gauge
	pending      prometheus.Gauge
	events       *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		sendAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "send_attempts_total",
			Help:      "Channel send attempts by method and result.",
		}, []string{"method", "result"}),
		cycleSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "post_cycle_seconds",
			Help:      "Duration of posting cycles.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60},
		}),
		due: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "post_cycle_due",
			Help:      "Memes due in the last posting cycle.",
		}),
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "memes_pending",
			Help:      "Memes scheduled and not yet posted.",
		}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Domain events by type.",
		}, []string{"type"}),
	}
	m.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.sendAttempts, m.cycleSeconds, m.due, m.pending, m.events,
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

func (m *Metrics) ObservePost(method string, ok bool) {
	result := "ok"
	if !ok {
		result = "error"
	}
	m.sendAttempts.WithLabelValues(method, result).Inc()
}

func (m *Metrics) ObserveCycle(took time.Duration, due int) {
	m.cycleSeconds.Observe(took.Seconds())
	m.due.Set(float64(due))
}

func (m *Metrics) SetPending(n int) { m.pending.Set(float64(n)) }

// Watch counts bus events by type until ctx is done.
func (m *Metrics) Watch(ctx context.Context, bus eventbus.Bus) {
	if bus == nil {
		return
	}
	ch, unsub := bus.Subscribe(64)
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			m.events.WithLabelValues(ev.Type).Inc()
		}
	}
}
