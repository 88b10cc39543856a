package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	TasksEnqueuedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "traveltasks_enqueued_total",
			Help: "Total number of task envelopes enqueued, by task name and queue.",
		},
		[]string{"task", "queue"},
	)

	TaskExecutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "traveltasks_executions_total",
			Help: "Total number of task execution attempts, by task name and outcome.",
		},
		[]string{"task", "outcome"},
	)

	TaskExecutionSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "traveltasks_execution_seconds",
			Help:    "Task execution attempt latency in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"task"},
	)

	RetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "traveltasks_retries_total",
			Help: "Total number of scheduled redeliveries, by task name.",
		},
		[]string{"task"},
	)

	DeadLettersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "traveltasks_dead_letters_total",
			Help: "Total number of permanently failed tasks, by task name and reason class.",
		},
		[]string{"task", "reason"},
	)

	EmailsSentTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "traveltasks_emails_sent_total",
			Help: "Total number of notification emails handed to the transport, by kind.",
		},
		[]string{"kind"},
	)

	ReconciliationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "traveltasks_reconciliations_total",
			Help: "Total number of payment reconciliations, by terminal status.",
		},
		[]string{"status"},
	)

	DuplicateDeliveriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "traveltasks_duplicate_deliveries_total",
			Help: "Total number of deliveries skipped by envelope-id dedup.",
		},
	)

	QueueBacklog = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "traveltasks_queue_backlog",
			Help: "Messages waiting per queue and channel.",
		},
		[]string{"queue", "channel"},
	)

	QueueInflight = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "traveltasks_queue_inflight",
			Help: "In-flight messages per queue and channel.",
		},
		[]string{"queue", "channel"},
	)
)

// MustRegister registers all collectors on the given registry.
func MustRegister(reg *prometheus.Registry) {
	reg.MustRegister(
		TasksEnqueuedTotal,
		TaskExecutionsTotal,
		TaskExecutionSeconds,
		RetriesTotal,
		DeadLettersTotal,
		EmailsSentTotal,
		ReconciliationsTotal,
		DuplicateDeliveriesTotal,
		QueueBacklog,
		QueueInflight,
	)
}

// RecordEnqueue counts one enqueued envelope.
func RecordEnqueue(taskName, queue string) {
	TasksEnqueuedTotal.WithLabelValues(taskName, queue).Inc()
}

// RecordExecution counts one execution attempt with its outcome and latency.
func RecordExecution(taskName, outcome string, elapsed time.Duration) {
	TaskExecutionsTotal.WithLabelValues(taskName, outcome).Inc()
	TaskExecutionSeconds.WithLabelValues(taskName).Observe(elapsed.Seconds())
}

// RecordRetry counts one scheduled redelivery.
func RecordRetry(taskName string) {
	RetriesTotal.WithLabelValues(taskName).Inc()
}

// RecordDeadLetter counts one permanent failure.
func RecordDeadLetter(taskName, reason string) {
	DeadLettersTotal.WithLabelValues(taskName, reason).Inc()
}

// RecordEmailSent counts one email handed to the transport.
func RecordEmailSent(kind string) {
	EmailsSentTotal.WithLabelValues(kind).Inc()
}

// RecordReconciliation counts one terminal payment reconciliation.
func RecordReconciliation(status string) {
	ReconciliationsTotal.WithLabelValues(status).Inc()
}

// RecordDuplicateDelivery counts one dedup-skipped delivery.
func RecordDuplicateDelivery() {
	DuplicateDeliveriesTotal.Inc()
}

// UpdateBacklog sets the waiting-message gauge for a queue channel.
func UpdateBacklog(queue, channel string, depth float64) {
	QueueBacklog.WithLabelValues(queue, channel).Set(depth)
}

// UpdateInflight sets the in-flight gauge for a queue channel.
func UpdateInflight(queue, channel string, n float64) {
	QueueInflight.WithLabelValues(queue, channel).Set(n)
}
