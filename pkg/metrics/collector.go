package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	botCommandsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_commands_total",
			Help: "Total number of bot commands received labeled by command and status",
		},
		[]string{"command", "status"},
	)
	commandDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "command_duration_seconds",
			Help:    "Duration of bot commands in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"command"},
	)
	sweepsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "transcript_sweeps_total",
			Help: "Total number of periodic transcript sweeps",
		},
	)
	sweepChecksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "transcript_checks_total",
			Help: "Per-subscriber transcript re-checks labeled by outcome",
		},
		[]string{"outcome"},
	)
	notificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_total",
			Help: "Notifications pushed to chats labeled by kind",
		},
		[]string{"kind"},
	)
	subscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "subscribers",
			Help: "Current number of subscribed chats",
		},
	)
)

// Sweep check outcomes.
const (
	CheckUnchanged   = "unchanged"
	CheckChanged     = "changed"
	CheckFailed      = "failed"
	CheckUndecodable = "undecodable"
	CheckSuperseded  = "superseded"
)

// Notification kinds.
const (
	NotifyChange       = "change"
	NotifyUnsubscribed = "unsubscribed"
)

// RecordCommand increments command counters and records duration.
func RecordCommand(command, status string, duration time.Duration) {
	if command == "" {
		command = "unknown"
	}
	if status == "" {
		status = "unknown"
	}

	botCommandsTotal.WithLabelValues(command, status).Inc()
	commandDurationSeconds.WithLabelValues(command).Observe(duration.Seconds())
}

// RecordSweep counts one completed periodic sweep.
func RecordSweep() {
	sweepsTotal.Inc()
}

// RecordCheck counts one per-subscriber re-check by outcome.
func RecordCheck(outcome string) {
	sweepChecksTotal.WithLabelValues(outcome).Inc()
}

// RecordNotification counts one pushed notification by kind.
func RecordNotification(kind string) {
	notificationsTotal.WithLabelValues(kind).Inc()
}

// SetSubscribers updates the subscriber gauge.
func SetSubscribers(count int) {
	subscribers.Set(float64(count))
}
