package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Receiver metrics
	StatusMessagesReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "provision_status_messages_received_total",
			Help: "Status messages received by the HTTP endpoint, by outcome",
		},
		[]string{"outcome"},
	)

	// Dispatcher metrics
	StatusMessagesDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "provision_status_messages_dropped_total",
			Help: "Status messages dropped before reaching the database, by reason",
		},
		[]string{"reason"},
	)

	MailboxPending = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "provision_status_mailbox_pending",
			Help: "Status messages waiting in per-node mailboxes",
		},
	)

	BatchesDispatched = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "provision_status_batches_dispatched_total",
			Help: "Batches handed to the task scheduler, by trigger",
		},
		[]string{"trigger"},
	)

	// Applier metrics
	BatchesApplied = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "provision_status_batches_applied_total",
			Help: "Batches applied to the database, by result",
		},
		[]string{"result"},
	)

	BatchApplyDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "provision_status_batch_apply_duration_seconds",
			Help:    "Time spent applying one batch inside its transaction",
			Buckets: prometheus.DefBuckets,
		},
	)

	NodeTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "provision_node_transitions_total",
			Help: "Node lifecycle transitions driven by status messages",
		},
		[]string{"from", "to"},
	)

	// Scheduler metrics
	TaskRetries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "provision_task_retries_total",
			Help: "Task attempts that failed and were retried",
		},
	)
)

func init() {
	prometheus.MustRegister(
		StatusMessagesReceived,
		StatusMessagesDropped,
		MailboxPending,
		BatchesDispatched,
		BatchesApplied,
		BatchApplyDuration,
		NodeTransitions,
		TaskRetries,
	)
}

// Handler returns the Prometheus metrics HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer measures an operation for a histogram
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the elapsed time on the histogram
func (t *Timer) ObserveDuration(histogram prometheus.Observer) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
