// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	WebhookEventsReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_webhook_events_received_total",
			Help: "Total number of webhook events received, by outcome",
		},
		[]string{"outcome"},
	)

	InteractionsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_interactions_processed_total",
			Help: "Total number of actor interactions processed",
		},
		[]string{"command", "outcome"},
	)

	SyncOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_engine_operations_total",
			Help: "Total number of engine operations by type and outcome",
		},
		[]string{"operation", "outcome"},
	)

	SyncOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "sync_engine_operation_duration_seconds",
			Help: "Duration of engine operations in seconds",
		},
		[]string{"operation"},
	)

	CollaboratorRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_collaborator_retries_total",
			Help: "Total number of retried collaborator calls",
		},
		[]string{"collaborator"},
	)

	ArchiveRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_archive_runs_total",
			Help: "Total number of archive sequence runs by outcome",
		},
		[]string{"outcome"},
	)

	ArchiveTimersPending = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sync_archive_timers_pending",
			Help: "Number of archive timers currently pending",
		},
	)
)
