package metrics

import (
	"errors"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	apperrors "github.com/jwalitptl/scheduling-api/pkg/errors"
)

// Metrics holds all application metrics
type Metrics struct {
	// Scheduling
	AppointmentOperations *prometheus.CounterVec
	WaitlistOperations    *prometheus.CounterVec
	WaitlistMatches       *prometheus.CounterVec
	SlotFreedDropped      prometheus.Counter
	NotificationFailures  prometheus.Counter
	LapsedOffersExpired   prometheus.Counter

	// Outbox related metrics
	OutboxEventsProcessed   prometheus.Counter
	OutboxEventsFailed      prometheus.Counter
	OutboxProcessingLatency prometheus.Histogram
	OutboxRetries           *prometheus.CounterVec

	// Database metrics
	DatabaseOperations *prometheus.CounterVec

	// Redis metrics
	RedisOperations *prometheus.CounterVec

	// HTTP
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPRequests        *prometheus.CounterVec
}

// NewMetrics creates and registers all application metrics on reg.
func NewMetrics(reg prometheus.Registerer, namespace, subsystem string) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		AppointmentOperations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "appointment_operations_total",
			Help:      "Appointment operations by outcome code",
		}, []string{"operation", "outcome"}),
		WaitlistOperations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "waitlist_operations_total",
			Help:      "Waitlist operations by outcome code",
		}, []string{"operation", "outcome"}),
		WaitlistMatches: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "waitlist_matches_total",
			Help:      "Freed slots processed by the waitlist matcher",
		}, []string{"result"}),
		SlotFreedDropped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "slot_freed_dropped_total",
			Help:      "Slot-freed events dropped because the dispatch queue was full",
		}),
		NotificationFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "notification_failures_total",
			Help:      "Waitlist notifications that could not be dispatched",
		}),
		LapsedOffersExpired: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "waitlist_lapsed_offers_expired_total",
			Help:      "Waitlist entries expired by the lapsed offer sweep",
		}),

		OutboxEventsProcessed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "outbox_events_processed_total",
			Help:      "Total number of successfully processed outbox events",
		}),
		OutboxEventsFailed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "outbox_events_failed_total",
			Help:      "Total number of failed outbox events",
		}),
		OutboxProcessingLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "outbox_processing_duration_seconds",
			Help:      "Time spent processing outbox events",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}),
		OutboxRetries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "outbox_retry_attempts_total",
			Help:      "Total number of retry attempts for outbox events",
		}, []string{"event_type"}),

		DatabaseOperations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "database_operations_total",
			Help:      "Total number of database operations",
		}, []string{"operation", "status"}),

		RedisOperations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "redis_operations_total",
			Help:      "Total number of Redis operations",
		}, []string{"operation", "status"}),

		HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
	}
}

// Outcome labels err by its application code, "ok" for nil.
func Outcome(err error) string {
	if err == nil {
		return "ok"
	}
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return strings.ToLower(string(appErr.Code))
	}
	return "error"
}

func (m *Metrics) AppointmentOutcome(operation string, err error) {
	if m == nil {
		return
	}
	m.AppointmentOperations.WithLabelValues(operation, Outcome(err)).Inc()
}

func (m *Metrics) WaitlistOutcome(operation string, err error) {
	if m == nil {
		return
	}
	m.WaitlistOperations.WithLabelValues(operation, Outcome(err)).Inc()
}

func (m *Metrics) MatchResult(result string) {
	if m == nil {
		return
	}
	m.WaitlistMatches.WithLabelValues(result).Inc()
}

func (m *Metrics) SlotFreedDrop() {
	if m == nil {
		return
	}
	m.SlotFreedDropped.Inc()
}

func (m *Metrics) NotificationFailure() {
	if m == nil {
		return
	}
	m.NotificationFailures.Inc()
}
