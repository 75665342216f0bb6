// Package telemetry provides application-level observability for the catalog
// server.
//
// # Prometheus Metrics Endpoint
//
// All metrics are registered against the default Prometheus registry and are
// automatically available on the side-channel HTTP server started by main.go:
//
//	GET http(s)://<host>:<CT_TELEMETRY_METRICS_PROMETHEUS_PORT>/metrics
//
// Default port: 9090.  The endpoint returns data in the Prometheus text exposition
// format and is intended to be scraped every 15–60 seconds.  It is NOT served by
// the Gin router.
//
// # Metric Groups
//
//   - HTTP request counters and latency histograms (labelled by route template, not raw URL)
//   - Package search and publish counters
//   - Review creation counters
//   - Credit ledger operation counters
//   - Session sweeper counters
//   - Database connection pool gauge (polled every 30 s)
//
// # Label Cardinality
//
// HTTP metrics use c.FullPath() (route template such as /api/v1/packages/:slug)
// rather than the raw request URL to prevent unbounded label cardinality from
// user-supplied path segments such as package slugs.
package telemetry

import (
	"database/sql"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/clawtools/clawtools/internal/safego"
)

// HTTP metrics — labelled by method, route template, and status code.
//
// HTTPRequestsTotal is a CounterVec with labels {method, path, status}.
// The path label holds the Gin route template, NOT the raw URL, to prevent
// unbounded cardinality.
//
// Example PromQL queries:
//   - Request rate (req/s, 5 m window):  rate(http_requests_total[5m])
//   - Error rate (%):                    sum(rate(http_requests_total{status=~"5.."}[5m])) / sum(rate(http_requests_total[5m])) * 100
//
// HTTPRequestDuration is a HistogramVec with labels {method, path} and
// exponential-ish buckets from 5 ms to 30 s.
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests processed, by method, route template, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies, by method and route template.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "path"},
	)
)

// Catalog metrics.
//
// PackageSearchesTotal is a CounterVec with label {sort} incremented once per
// search API call.  Useful for understanding which ranking modes clients
// actually use.
//
// PackagePublishesTotal is a CounterVec with label {category} incremented on
// each successful publish.
//
// ReviewsCreatedTotal is a CounterVec with label {reviewer_type} ("agent" or
// "human") incremented on each successful review.
//
// Example PromQL queries:
//   - Search rate by sort:     sum by (sort) (rate(package_searches_total[5m]))
//   - Publishes per category:  sum by (category) (increase(package_publishes_total[24h]))
var (
	PackageSearchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "package_searches_total",
			Help: "Total number of package search requests, by sort mode.",
		},
		[]string{"sort"},
	)

	PackagePublishesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "package_publishes_total",
			Help: "Total number of packages published, by category.",
		},
		[]string{"category"},
	)

	ReviewsCreatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reviews_created_total",
			Help: "Total number of reviews created, by reviewer type.",
		},
		[]string{"reviewer_type"},
	)
)

// Credit ledger metrics.
//
// CreditOperationsTotal is a CounterVec with labels {operation, outcome}.
// operation is "spend" or "earn"; outcome is "ok", "insufficient", or "error".
// An elevated insufficient rate usually means agents are racing their own
// balance rather than a server fault.
//
// Example PromQL queries:
//   - Spend failure ratio:  sum(rate(credit_operations_total{operation="spend",outcome="insufficient"}[1h])) / sum(rate(credit_operations_total{operation="spend"}[1h]))
var CreditOperationsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "credit_operations_total",
		Help: "Total number of credit ledger operations, by operation and outcome.",
	},
	[]string{"operation", "outcome"},
)

// SessionsSweptTotal is a plain Counter (no labels) incremented by the number
// of expired org sessions each sweeper run deletes.  A stalled counter with a
// growing org_sessions table indicates the sweeper has stopped.
var SessionsSweptTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Name: "sessions_swept_total",
		Help: "Total number of expired org sessions deleted by the background sweeper.",
	},
)

// DBOpenConnections is a Gauge that tracks the number of open connections currently
// held by the sql.DB connection pool.  It is sampled every 30 seconds by
// StartDBStatsCollector rather than per-request to avoid the overhead of sql.DB.Stats().
var DBOpenConnections = promauto.NewGauge(
	prometheus.GaugeOpts{
		Name: "db_open_connections",
		Help: "Current number of open database connections in the pool.",
	},
)

// StartDBStatsCollector launches a background goroutine that samples sql.DB connection
// pool statistics every 30 seconds and updates the DBOpenConnections gauge.
// The goroutine exits cleanly when the database becomes unreachable (db.Ping fails),
// which happens automatically when the application shuts down and defers db.Close().
//
// Call this once, immediately after db.Connect() succeeds in main.go:
//
//	telemetry.StartDBStatsCollector(database)
func StartDBStatsCollector(db *sql.DB) {
	safego.Go("db-stats-collector", func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			if err := db.Ping(); err != nil {
				slog.Warn("db stats collector: database unreachable, stopping collector", "error", err)
				return
			}
			DBOpenConnections.Set(float64(db.Stats().OpenConnections))
		}
	})
}
