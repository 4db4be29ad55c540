package controller

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusMetrics exports controller statistics.
type PrometheusMetrics struct {
	reconcileTotal    *prometheus.CounterVec
	reconcileDuration *prometheus.HistogramVec
	itemsProcessed    *prometheus.CounterVec
	running           *prometheus.GaugeVec
	lastReconcile     *prometheus.GaugeVec
}

// NewPrometheusMetrics registers the controller collectors with reg.
func NewPrometheusMetrics(namespace string, reg prometheus.Registerer) *PrometheusMetrics {
	if namespace == "" {
		namespace = "reposcan"
	}
	f := promauto.With(reg)

	return &PrometheusMetrics{
		reconcileTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "controller",
			Name:      "reconcile_total",
			Help:      "Reconciliations by controller and result.",
		}, []string{"controller", "result"}),
		reconcileDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "controller",
			Name:      "reconcile_duration_seconds",
			Help:      "Duration of a reconciliation.",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
		}, []string{"controller"}),
		itemsProcessed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "controller",
			Name:      "items_processed_total",
			Help:      "Items touched by reconciliations.",
		}, []string{"controller"}),
		running: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "controller",
			Name:      "running",
			Help:      "1 while the controller loop is running.",
		}, []string{"controller"}),
		lastReconcile: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "controller",
			Name:      "last_reconcile_timestamp_seconds",
			Help:      "Unix time of the last reconciliation.",
		}, []string{"controller"}),
	}
}

// RecordReconcile records one pass.
func (m *PrometheusMetrics) RecordReconcile(controller string, items int, duration time.Duration, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	m.reconcileTotal.WithLabelValues(controller, result).Inc()
	m.reconcileDuration.WithLabelValues(controller).Observe(duration.Seconds())
	if items > 0 {
		m.itemsProcessed.WithLabelValues(controller).Add(float64(items))
	}
}

// SetControllerRunning toggles the running gauge.
func (m *PrometheusMetrics) SetControllerRunning(controller string, running bool) {
	v := 0.0
	if running {
		v = 1
	}
	m.running.WithLabelValues(controller).Set(v)
}

// SetLastReconcileTime stores t as the last reconcile timestamp.
func (m *PrometheusMetrics) SetLastReconcileTime(controller string, t time.Time) {
	m.lastReconcile.WithLabelValues(controller).Set(float64(t.Unix()))
}

var _ Metrics = (*PrometheusMetrics)(nil)
