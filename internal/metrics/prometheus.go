package metrics

import (
	"runtime"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusMetrics contains all Prometheus metrics for the tracker
type PrometheusMetrics struct {
	// Projection metrics
	EventsAppliedTotal   prometheus.Counter
	EventsStaleTotal     prometheus.Counter
	EventsMalformedTotal prometheus.Counter
	ProjectedItems       prometheus.Gauge
	ItemsCheckedOut      prometheus.Gauge
	ItemsOverdue         prometheus.Gauge

	// Feed metrics
	FeedPollsTotal      prometheus.Counter
	FeedPollErrorsTotal prometheus.Counter
	FeedCursor          prometheus.Gauge

	// Notification metrics
	NotificationsSentTotal   prometheus.Counter
	NotificationsFailedTotal prometheus.Counter

	// API metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Application health metrics
	ApplicationUptime prometheus.Gauge
	ComponentHealth   *prometheus.GaugeVec
	GoroutineCount    prometheus.Gauge

	startTime time.Time
}

var (
	metricsOnce     sync.Once
	metricsInstance *PrometheusMetrics
)

// GetMetrics returns the process-wide metrics instance. Metrics register in
// the default registry, so there is exactly one.
func GetMetrics() *PrometheusMetrics {
	metricsOnce.Do(func() {
		metricsInstance = newPrometheusMetrics()
	})
	return metricsInstance
}

// newPrometheusMetrics creates and registers all Prometheus metrics
func newPrometheusMetrics() *PrometheusMetrics {
	return &PrometheusMetrics{
		startTime: time.Now(),

		EventsAppliedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "geartrack_events_applied_total",
			Help: "Total number of log entries folded into the projection",
		}),
		EventsStaleTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "geartrack_events_stale_total",
			Help: "Total number of entries dropped as equal or older than the stored projection",
		}),
		EventsMalformedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "geartrack_events_malformed_total",
			Help: "Total number of entries rejected for missing or invalid fields",
		}),
		ProjectedItems: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "geartrack_projected_items",
			Help: "Number of distinct items in the projection",
		}),
		ItemsCheckedOut: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "geartrack_items_checked_out",
			Help: "Number of items currently checked out",
		}),
		ItemsOverdue: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "geartrack_items_overdue",
			Help: "Number of checked-out items past their due date",
		}),

		FeedPollsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "geartrack_feed_polls_total",
			Help: "Total number of feed poll cycles",
		}),
		FeedPollErrorsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "geartrack_feed_poll_errors_total",
			Help: "Total number of failed feed polls",
		}),
		FeedCursor: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "geartrack_feed_cursor",
			Help: "Greatest log entry id delivered by the feed",
		}),

		NotificationsSentTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "geartrack_notifications_sent_total",
			Help: "Total number of notifications delivered",
		}),
		NotificationsFailedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "geartrack_notifications_failed_total",
			Help: "Total number of notification deliveries that failed",
		}),

		HTTPRequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "geartrack_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		HTTPRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "geartrack_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),

		ApplicationUptime: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "geartrack_uptime_seconds",
			Help: "Seconds since the application started",
		}),
		ComponentHealth: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "geartrack_component_health",
			Help: "Component health (1 healthy, 0 unhealthy)",
		}, []string{"component"}),
		GoroutineCount: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "geartrack_goroutines",
			Help: "Number of goroutines",
		}),
	}
}

// RecordHTTPRequest records metrics for an HTTP request
func (m *PrometheusMetrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// UpdateSystemMetrics refreshes uptime and runtime gauges
func (m *PrometheusMetrics) UpdateSystemMetrics() {
	m.ApplicationUptime.Set(time.Since(m.startTime).Seconds())
	m.GoroutineCount.Set(float64(runtime.NumGoroutine()))
}

// UpdateComponentHealth records whether a component is healthy
func (m *PrometheusMetrics) UpdateComponentHealth(component string, healthy bool) {
	value := 0.0
	if healthy {
		value = 1.0
	}
	m.ComponentHealth.WithLabelValues(component).Set(value)
}
