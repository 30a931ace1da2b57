package metricsx

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	sweepsQueued = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scheduler_sweeps_queued_total",
			Help: "Sweep jobs successfully enqueued, by queue.",
		},
		[]string{"queue"},
	)
	sweepEnqueueFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scheduler_sweep_enqueue_failures_total",
			Help: "Sweep enqueue attempts that failed, by queue.",
		},
		[]string{"queue"},
	)
	jobDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "job_duration_seconds",
			Help:    "Job handler duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"queue", "type", "status"},
	)
	queueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "queue_depth",
			Help: "Pending plus active jobs per queue.",
		},
		[]string{"queue"},
	)
	breachesDetected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sla_breaches_detected_total",
			Help: "SLA breaches marked, by metric type.",
		},
		[]string{"metric"},
	)
	healthScoresComputed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "health_scores_computed_total",
			Help: "Health score computations persisted.",
		},
	)
	notificationsSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_sent_total",
			Help: "Successful notification deliveries, by channel.",
		},
		[]string{"channel"},
	)
	notificationFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_failures_total",
			Help: "Failed notification deliveries, by channel.",
		},
		[]string{"channel"},
	)
	cloudSyncFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cloud_sync_failures_total",
			Help: "Cloud sync phase failures, by provider and phase.",
		},
		[]string{"provider", "phase"},
	)
	breakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open).",
		},
		[]string{"name"},
	)
)

func Register() {
	prometheus.MustRegister(
		sweepsQueued, sweepEnqueueFailures, jobDuration, queueDepth,
		breachesDetected, healthScoresComputed,
		notificationsSent, notificationFailures,
		cloudSyncFailures, breakerState,
	)
}

func Handler() http.Handler {
	return promhttp.Handler()
}

func IncSweepQueued(queue string) {
	sweepsQueued.WithLabelValues(queue).Inc()
}

func IncSweepEnqueueFailure(queue string) {
	sweepEnqueueFailures.WithLabelValues(queue).Inc()
}

func ObserveJobDuration(queue string, taskType string, status string, d time.Duration) {
	jobDuration.WithLabelValues(queue, taskType, status).Observe(d.Seconds())
}

func SetQueueDepth(queue string, depth int) {
	queueDepth.WithLabelValues(queue).Set(float64(depth))
}

func IncBreachDetected(metric string) {
	breachesDetected.WithLabelValues(metric).Inc()
}

func IncHealthScoreComputed() {
	healthScoresComputed.Inc()
}

func IncNotificationSent(channel string) {
	notificationsSent.WithLabelValues(channel).Inc()
}

func IncNotificationFailure(channel string) {
	notificationFailures.WithLabelValues(channel).Inc()
}

func IncCloudSyncFailure(provider string, phase string) {
	cloudSyncFailures.WithLabelValues(provider, phase).Inc()
}

func SetBreakerState(name string, state int) {
	breakerState.WithLabelValues(name).Set(float64(state))
}
