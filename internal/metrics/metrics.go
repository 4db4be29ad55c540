// Package metrics holds the application-level Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "reposcan"

// Scan metrics
var (
	// ScansTriggeredTotal counts trigger attempts by trigger kind and outcome
	// (queued, quota_exceeded, plan_restricted, error).
	ScansTriggeredTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scans_triggered_total",
			Help:      "Scan trigger attempts by trigger and outcome",
		},
		[]string{"trigger", "outcome"},
	)

	// ScansFinishedTotal counts scans reaching a terminal status.
	ScansFinishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scans_finished_total",
			Help:      "Scans reaching a terminal status",
		},
		[]string{"status"},
	)

	// ScanExecutionDuration tracks worker execution time.
	ScanExecutionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "scan_execution_duration_seconds",
			Help:      "Scan execution duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
	)

	// ScansInProgress tracks scans currently being executed by this process.
	ScansInProgress = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "scans_in_progress",
			Help:      "Scans currently executing",
		},
	)

	// ReportsExportedTotal counts exported reports by outcome.
	ReportsExportedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reports_exported_total",
			Help:      "Report exports by outcome",
		},
		[]string{"outcome"},
	)
)

// Entitlement metrics
var (
	// EntitlementDeniedTotal counts permission checks refused by plan.
	EntitlementDeniedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "entitlement_denied_total",
			Help:      "Permission checks refused by the organization's plan",
		},
		[]string{"plan", "permission"},
	)

	// QuotaExceededTotal counts requests refused because a plan limit was reached.
	QuotaExceededTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quota_exceeded_total",
			Help:      "Requests refused by a plan limit",
		},
		[]string{"plan", "limit"},
	)

	// PlanChangesTotal counts plan changes by source and target plan.
	PlanChangesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "plan_changes_total",
			Help:      "Organization plan changes",
		},
		[]string{"from", "to"},
	)
)

// Schedule metrics
var (
	// SchedulesDispatchedTotal counts due schedules by outcome.
	SchedulesDispatchedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "schedules_dispatched_total",
			Help:      "Due schedules processed by outcome",
		},
		[]string{"outcome"},
	)
)

// Auth metrics
var (
	// LoginAttemptsTotal counts login attempts by result.
	LoginAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "login_attempts_total",
			Help:      "Login attempts by result",
		},
		[]string{"result"},
	)
)
