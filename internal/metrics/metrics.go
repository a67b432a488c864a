// Package metrics provides Prometheus instrumentation for the ShareMart platform.
package metrics

import (
	"context"
	"database/sql"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sharemart",
			Name:      "http_requests_total",
			Help:      "Total HTTP requests by method, path pattern, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration observes request latency by method and path.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "sharemart",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// QuotesPlacedTotal counts quotes placed by exchange type.
	QuotesPlacedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sharemart",
			Name:      "quotes_placed_total",
			Help:      "Total quotes placed by exchange type.",
		},
		[]string{"exchange_type"},
	)

	// QuoteTransitionsTotal counts quote status transitions.
	QuoteTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sharemart",
			Name:      "quote_transitions_total",
			Help:      "Total quote status transitions by resulting status.",
		},
		[]string{"status"},
	)

	// SettlementsTotal counts wallet settlements by kind (rent, deposit).
	SettlementsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sharemart",
			Name:      "settlements_total",
			Help:      "Total escrow settlements released to wallets by kind.",
		},
		[]string{"kind"},
	)

	// PaymentLinksTotal counts payment links by provider and final status.
	PaymentLinksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sharemart",
			Name:      "payment_links_total",
			Help:      "Total payment links created by provider and status.",
		},
		[]string{"provider", "status"},
	)

	// WebhookEventsTotal counts provider webhook deliveries by result.
	WebhookEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sharemart",
			Name:      "webhook_events_total",
			Help:      "Total payment webhook deliveries by processing result.",
		},
		[]string{"result"},
	)

	// NotificationsTotal counts notification sends by channel and result.
	NotificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sharemart",
			Name:      "notifications_total",
			Help:      "Total notifications dispatched by channel and result.",
		},
		[]string{"channel", "result"},
	)

	// ActiveWebSocketClients tracks connected WebSocket clients.
	ActiveWebSocketClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "sharemart",
			Name:      "active_websocket_clients",
			Help:      "Number of currently connected WebSocket clients.",
		},
	)

	// NotifyQueueDepth tracks pending notification jobs.
	NotifyQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "sharemart",
			Name:      "notify_queue_depth",
			Help:      "Number of queued notification jobs awaiting dispatch.",
		},
	)

	// DBOpenConnections tracks open database connections.
	DBOpenConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "sharemart", Name: "db_open_connections",
		Help: "Number of open database connections.",
	})
	// DBIdleConnections tracks idle database connections.
	DBIdleConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "sharemart", Name: "db_idle_connections",
		Help: "Number of idle database connections.",
	})
	// DBInUseConnections tracks in-use database connections.
	DBInUseConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "sharemart", Name: "db_in_use_connections",
		Help: "Number of in-use database connections.",
	})
	// DBWaitCount tracks the total number of connections waited for.
	DBWaitCount = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "sharemart", Name: "db_wait_count_total",
		Help: "Total number of connections waited for.",
	})
	// DBWaitDuration tracks total time waited for connections.
	DBWaitDuration = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "sharemart", Name: "db_wait_duration_seconds_total",
		Help: "Total time waited for connections in seconds.",
	})
	// GoroutineCount tracks the current number of goroutines.
	GoroutineCount = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "sharemart", Name: "goroutines",
		Help: "Current number of goroutines.",
	})

	// QuoteApprovalDuration observes time from placement to full approval.
	QuoteApprovalDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "sharemart",
		Name:      "quote_approval_duration_seconds",
		Help:      "Time from quote placement to approval by both parties in seconds.",
		Buckets:   []float64{60, 300, 1800, 3600, 21600, 86400, 259200, 604800},
	})
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		QuotesPlacedTotal,
		QuoteTransitionsTotal,
		SettlementsTotal,
		PaymentLinksTotal,
		WebhookEventsTotal,
		NotificationsTotal,
		ActiveWebSocketClients,
		NotifyQueueDepth,
		DBOpenConnections,
		DBIdleConnections,
		DBInUseConnections,
		DBWaitCount,
		DBWaitDuration,
		GoroutineCount,
		QuoteApprovalDuration,
	)
}

// StartDBStatsCollector periodically samples sql.DBStats and runtime goroutine
// count into Prometheus gauges. Call in a goroutine; exits when ctx is done.
func StartDBStatsCollector(ctx context.Context, db *sql.DB, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := db.Stats()
			DBOpenConnections.Set(float64(stats.OpenConnections))
			DBIdleConnections.Set(float64(stats.Idle))
			DBInUseConnections.Set(float64(stats.InUse))
			DBWaitCount.Set(float64(stats.WaitCount))
			DBWaitDuration.Set(stats.WaitDuration.Seconds())
			GoroutineCount.Set(float64(runtime.NumGoroutine()))
		}
	}
}

// Middleware returns a gin middleware that records request metrics.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		timer := prometheus.NewTimer(HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(), // Uses route pattern, not actual path (avoids cardinality explosion)
		))

		c.Next()

		timer.ObserveDuration()
		HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			statusBucket(c.Writer.Status()),
		).Inc()
	}
}

// Handler returns the Prometheus metrics HTTP handler for /metrics endpoint.
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// statusBucket groups HTTP status codes into buckets (2xx, 3xx, 4xx, 5xx).
func statusBucket(code int) string {
	switch {
	case code < 200:
		return "1xx"
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
