package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/maltedev/restock-monitor/internal/models"
)

// Metrics exposes check and alert counters for Prometheus.
type Metrics struct {
	registry      *prometheus.Registry
	checks        *prometheus.CounterVec
	checkDuration prometheus.Histogram
	notifications *prometheus.CounterVec
	passes        prometheus.Counter
	lastPass      prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		checks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "restock_monitor",
			Name:      "checks_total",
			Help:      "Availability checks by outcome.",
		}, []string{"outcome"}),
		checkDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "restock_monitor",
			Name:      "check_duration_seconds",
			Help:      "Time spent loading and classifying one page.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 30, 60},
		}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "restock_monitor",
			Name:      "notifications_total",
			Help:      "Alert delivery attempts by result.",
		}, []string{"result"}),
		passes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "restock_monitor",
			Name:      "passes_total",
			Help:      "Completed passes over the item list.",
		}),
		lastPass: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "restock_monitor",
			Name:      "last_pass_timestamp_seconds",
			Help:      "Unix time the last pass finished.",
		}),
	}

	m.registry.MustRegister(m.checks, m.checkDuration, m.notifications, m.passes, m.lastPass)

	for _, s := range models.Statuses() {
		m.checks.WithLabelValues(s.String())
	}

	return m
}

func (m *Metrics) ObserveResult(res models.Result) {
	m.checks.WithLabelValues(res.Outcome.Status.String()).Inc()
	m.checkDuration.Observe(res.Duration.Seconds())

	if !res.Notified {
		return
	}
	if res.Delivered {
		m.notifications.WithLabelValues("delivered").Inc()
	} else {
		m.notifications.WithLabelValues("failed").Inc()
	}
}

func (m *Metrics) ObservePass(report *models.Report) {
	m.passes.Inc()
	m.lastPass.Set(float64(report.FinishedAt.Unix()))
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
