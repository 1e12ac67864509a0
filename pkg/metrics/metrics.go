package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all application metrics
type Metrics struct {
	// Moderation metrics
	ModerationDecisions *prometheus.CounterVec
	CrisisDetections    *prometheus.CounterVec

	// Scheduling metrics
	AppointmentsCreated   *prometheus.CounterVec
	AppointmentsCancelled prometheus.Counter
	AppointmentsExpired   prometheus.Counter
	TriageAssignments     *prometheus.CounterVec

	// Meeting provider metrics
	MeetingAPIRequests *prometheus.CounterVec
	MeetingFallbacks   prometheus.Counter

	// Outbox related metrics
	OutboxEventsProcessed   prometheus.Counter
	OutboxEventsFailed      prometheus.Counter
	OutboxProcessingLatency prometheus.Histogram

	// Database metrics
	DatabaseOperations *prometheus.CounterVec
}

// NewMetrics creates and registers all application metrics
func NewMetrics(namespace, subsystem string) *Metrics {
	return &Metrics{
		ModerationDecisions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "moderation_decisions_total",
			Help:      "Moderation pipeline outcomes by action",
		}, []string{"action"}),
		CrisisDetections: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "crisis_detections_total",
			Help:      "Crisis classifications by level",
		}, []string{"level"}),

		AppointmentsCreated: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "appointments_created_total",
			Help:      "Appointments created, by scheduling path",
		}, []string{"auto"}),
		AppointmentsCancelled: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "appointments_cancelled_total",
			Help:      "Appointments cancelled",
		}),
		AppointmentsExpired: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "appointments_expired_total",
			Help:      "Appointments auto-completed by the expiry sweep",
		}),
		TriageAssignments: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "triage_assignments_total",
			Help:      "Therapist assignments by match tier",
		}, []string{"tier"}),

		MeetingAPIRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "meeting_api_requests_total",
			Help:      "Meeting provider API calls by operation and status",
		}, []string{"operation", "status"}),
		MeetingFallbacks: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "meeting_fallbacks_total",
			Help:      "Meetings synthesized locally after provider failure",
		}),

		OutboxEventsProcessed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "outbox_events_processed_total",
			Help:      "Total number of successfully processed outbox events",
		}),
		OutboxEventsFailed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "outbox_events_failed_total",
			Help:      "Total number of failed outbox events",
		}),
		OutboxProcessingLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "outbox_processing_duration_seconds",
			Help:      "Time spent processing outbox events",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}),

		DatabaseOperations: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "database_operations_total",
			Help:      "Total number of database operations",
		}, []string{"operation", "status"}),
	}
}
