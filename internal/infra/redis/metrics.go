package redis

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Redis-related Prometheus metrics.
type Metrics struct {
	operationDuration *prometheus.HistogramVec
	operationErrors   *prometheus.CounterVec

	poolTotalConns prometheus.Gauge
	poolIdleConns  prometheus.Gauge
	poolTimeouts   prometheus.Gauge

	cacheHits   *prometheus.CounterVec
	cacheMisses *prometheus.CounterVec

	rateLimitAllowed *prometheus.CounterVec
	rateLimitDenied  *prometheus.CounterVec

	quotaReserved *prometheus.CounterVec
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("reposcan", prometheus.DefaultRegisterer)

// NewMetrics creates a Metrics instance registered with reg.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	counter := func(name, help string, labels ...string) *prometheus.CounterVec {
		return f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "redis",
			Name:      name,
			Help:      help,
		}, labels)
	}
	gauge := func(name, help string) prometheus.Gauge {
		return f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "redis",
			Name:      name,
			Help:      help,
		})
	}

	return &Metrics{
		operationDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "redis",
			Name:      "operation_duration_seconds",
			Help:      "Duration of Redis operations in seconds",
			Buckets:   []float64{.0001, .0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
		}, []string{"operation"}),
		operationErrors:  counter("operation_errors_total", "Total number of Redis operation errors", "operation"),
		poolTotalConns:   gauge("pool_total_connections", "Number of total connections in the pool"),
		poolIdleConns:    gauge("pool_idle_connections", "Number of idle connections in the pool"),
		poolTimeouts:     gauge("pool_timeouts_total", "Number of times a wait for a connection timed out"),
		cacheHits:        counter("cache_hits_total", "Total number of cache hits", "cache"),
		cacheMisses:      counter("cache_misses_total", "Total number of cache misses", "cache"),
		rateLimitAllowed: counter("ratelimit_allowed_total", "Requests allowed by the rate limiter", "limiter"),
		rateLimitDenied:  counter("ratelimit_denied_total", "Requests denied by the rate limiter", "limiter"),
		quotaReserved:    counter("quota_reservations_total", "Quota reservation attempts by outcome", "outcome"),
	}
}

// ObserveOperation records the duration and result of a Redis operation.
func (m *Metrics) ObserveOperation(operation string, duration time.Duration, err error) {
	m.operationDuration.WithLabelValues(operation).Observe(duration.Seconds())
	if err != nil {
		m.operationErrors.WithLabelValues(operation).Inc()
	}
}

// RecordCacheHit records a cache hit for the given cache name.
func (m *Metrics) RecordCacheHit(cacheName string) {
	m.cacheHits.WithLabelValues(cacheName).Inc()
}

// RecordCacheMiss records a cache miss for the given cache name.
func (m *Metrics) RecordCacheMiss(cacheName string) {
	m.cacheMisses.WithLabelValues(cacheName).Inc()
}

// RecordRateLimitResult records the result of a rate limit check.
func (m *Metrics) RecordRateLimitResult(limiterName string, allowed bool) {
	if allowed {
		m.rateLimitAllowed.WithLabelValues(limiterName).Inc()
	} else {
		m.rateLimitDenied.WithLabelValues(limiterName).Inc()
	}
}

// RecordQuotaReservation records whether a reservation was granted.
func (m *Metrics) RecordQuotaReservation(granted bool) {
	if granted {
		m.quotaReserved.WithLabelValues("granted").Inc()
	} else {
		m.quotaReserved.WithLabelValues("refused").Inc()
	}
}

// UpdatePoolStats updates the connection pool metrics from the client.
func (m *Metrics) UpdatePoolStats(client *Client) {
	if client == nil {
		return
	}
	stats := client.PoolStats()
	if stats == nil {
		return
	}
	m.poolTotalConns.Set(float64(stats.TotalConns))
	m.poolIdleConns.Set(float64(stats.IdleConns))
	m.poolTimeouts.Set(float64(stats.Timeouts))
}

// StartPoolStatsCollector periodically updates pool stats until ctx is done
// or the returned cancel function is called.
func StartPoolStatsCollector(ctx context.Context, client *Client, interval time.Duration) func() {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	ctx, cancel := context.WithCancel(ctx)

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				DefaultMetrics.UpdatePoolStats(client)
			}
		}
	}()

	return cancel
}
