// Package metrics provides Prometheus metrics collection for the API
// front-end and the worker pool.
package metrics

import (
	"os"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus collectors for the service.
type Metrics struct {
	// HTTP metrics
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RequestsInFlight prometheus.Gauge

	// Error metrics
	ErrorsTotal *prometheus.CounterVec

	// Rate limiting
	RateLimitRejections *prometheus.CounterVec

	// Task queue / worker metrics
	TasksClaimedTotal   *prometheus.CounterVec
	TasksCompletedTotal *prometheus.CounterVec
	TasksErroredTotal   *prometheus.CounterVec
	TaskExecutionSeconds *prometheus.HistogramVec
	QueueDepth          prometheus.Gauge
	WorkersActive       prometheus.Gauge

	// Database metrics
	DatabaseQueriesTotal  *prometheus.CounterVec
	DatabaseQueryDuration *prometheus.HistogramVec

	// Webhook delivery
	WebhookDeliveriesTotal *prometheus.CounterVec

	ServiceUptime prometheus.Gauge
	ServiceInfo   *prometheus.GaugeVec
}

// New creates a new Metrics instance registered with the default registerer.
func New(serviceName string) *Metrics {
	return NewWithRegistry(serviceName, prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a new Metrics instance with a custom registry.
func NewWithRegistry(serviceName string, registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"service", "method", "path", "status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"service", "method", "path"},
		),
		RequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Current number of HTTP requests being processed",
			},
		),
		ErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "errors_total",
				Help: "Total number of errors",
			},
			[]string{"service", "type", "operation"},
		),
		RateLimitRejections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rate_limit_rejections_total",
				Help: "Total number of requests rejected by the per-account rate limiter",
			},
			[]string{"service"},
		),
		TasksClaimedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tasks_claimed_total",
				Help: "Total number of tasks claimed by a worker",
			},
			[]string{"service", "kind"},
		),
		TasksCompletedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tasks_completed_total",
				Help: "Total number of tasks completed successfully",
			},
			[]string{"service", "kind"},
		),
		TasksErroredTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tasks_errored_total",
				Help: "Total number of tasks that ended in task_error",
			},
			[]string{"service", "kind"},
		),
		TaskExecutionSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "task_execution_duration_seconds",
				Help:    "Task execution duration in seconds, from claim to publish",
				Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"service", "kind"},
		),
		QueueDepth: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "queue_depth",
				Help: "Number of pending tasks observed on the last scan",
			},
		),
		WorkersActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "workers_active",
				Help: "Number of workers currently registered with a live heartbeat",
			},
		),
		DatabaseQueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "database_queries_total",
				Help: "Total number of database queries",
			},
			[]string{"service", "operation", "status"},
		),
		DatabaseQueryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "database_query_duration_seconds",
				Help:    "Database query duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"service", "operation"},
		),
		WebhookDeliveriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "webhook_deliveries_total",
				Help: "Total number of notification webhook delivery attempts",
			},
			[]string{"service", "status"},
		),
		ServiceUptime: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "service_uptime_seconds",
				Help: "Service uptime in seconds",
			},
		),
		ServiceInfo: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "service_info",
				Help: "Service information",
			},
			[]string{"service", "version", "environment"},
		),
	}

	if registerer != nil {
		registerer.MustRegister(
			m.RequestsTotal,
			m.RequestDuration,
			m.RequestsInFlight,
			m.ErrorsTotal,
			m.RateLimitRejections,
			m.TasksClaimedTotal,
			m.TasksCompletedTotal,
			m.TasksErroredTotal,
			m.TaskExecutionSeconds,
			m.QueueDepth,
			m.WorkersActive,
			m.DatabaseQueriesTotal,
			m.DatabaseQueryDuration,
			m.WebhookDeliveriesTotal,
			m.ServiceUptime,
			m.ServiceInfo,
		)
	}

	m.ServiceInfo.WithLabelValues(serviceName, "1.0.0", environment()).Set(1)

	return m
}

// RecordHTTPRequest records an HTTP request.
func (m *Metrics) RecordHTTPRequest(service, method, path, status string, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(service, method, path, status).Inc()
	m.RequestDuration.WithLabelValues(service, method, path).Observe(duration.Seconds())
}

// RecordError records an error.
func (m *Metrics) RecordError(service, errorType, operation string) {
	m.ErrorsTotal.WithLabelValues(service, errorType, operation).Inc()
}

// RecordRateLimitRejection records a request_limit_exceeded response.
func (m *Metrics) RecordRateLimitRejection(service string) {
	m.RateLimitRejections.WithLabelValues(service).Inc()
}

// RecordTaskClaimed records a successful task claim.
func (m *Metrics) RecordTaskClaimed(service, kind string) {
	m.TasksClaimedTotal.WithLabelValues(service, kind).Inc()
}

// RecordTaskCompleted records a task_completed terminal event with its
// end-to-end execution duration.
func (m *Metrics) RecordTaskCompleted(service, kind string, duration time.Duration) {
	m.TasksCompletedTotal.WithLabelValues(service, kind).Inc()
	m.TaskExecutionSeconds.WithLabelValues(service, kind).Observe(duration.Seconds())
}

// RecordTaskErrored records a task_error terminal event.
func (m *Metrics) RecordTaskErrored(service, kind string, duration time.Duration) {
	m.TasksErroredTotal.WithLabelValues(service, kind).Inc()
	m.TaskExecutionSeconds.WithLabelValues(service, kind).Observe(duration.Seconds())
}

// SetQueueDepth records the last-observed count of pending tasks.
func (m *Metrics) SetQueueDepth(depth int) {
	m.QueueDepth.Set(float64(depth))
}

// SetWorkersActive records the number of workers with a live heartbeat.
func (m *Metrics) SetWorkersActive(count int) {
	m.WorkersActive.Set(float64(count))
}

// RecordDatabaseQuery records a database query.
func (m *Metrics) RecordDatabaseQuery(service, operation, status string, duration time.Duration) {
	m.DatabaseQueriesTotal.WithLabelValues(service, operation, status).Inc()
	m.DatabaseQueryDuration.WithLabelValues(service, operation).Observe(duration.Seconds())
}

// RecordWebhookDelivery records a notification delivery attempt outcome.
func (m *Metrics) RecordWebhookDelivery(service, status string) {
	m.WebhookDeliveriesTotal.WithLabelValues(service, status).Inc()
}

// UpdateUptime updates the service uptime gauge.
func (m *Metrics) UpdateUptime(startTime time.Time) {
	m.ServiceUptime.Set(time.Since(startTime).Seconds())
}

// IncrementInFlight increments the in-flight requests counter.
func (m *Metrics) IncrementInFlight() { m.RequestsInFlight.Inc() }

// DecrementInFlight decrements the in-flight requests counter.
func (m *Metrics) DecrementInFlight() { m.RequestsInFlight.Dec() }

func environment() string {
	if env := strings.TrimSpace(os.Getenv("ENVIRONMENT")); env != "" {
		return env
	}
	return "development"
}

// Enabled returns whether Prometheus metrics should be exposed.
func Enabled() bool {
	raw := strings.ToLower(strings.TrimSpace(os.Getenv("METRICS_ENABLED")))
	if raw == "" {
		return true
	}
	switch raw {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

var (
	globalMetrics *Metrics
	globalMu      sync.Mutex
)

// Init initializes the global metrics instance.
func Init(serviceName string) *Metrics {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalMetrics == nil {
		globalMetrics = New(serviceName)
	}
	return globalMetrics
}

// Global returns the global metrics instance.
func Global() *Metrics {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalMetrics == nil {
		globalMetrics = New("h51")
	}
	return globalMetrics
}
