// Package telemetry provides structured logging setup and Prometheus metrics.
//
// All metrics are registered against the default Prometheus registry and are
// served by the side-channel HTTP server started in cmd/server:
//
//	GET http://<host>:<TSOM_TELEMETRY_METRICS_PROMETHEUS_PORT>/metrics
//
// HTTP metrics use the gin route template (c.FullPath()) for the path label so
// query strings and unknown paths cannot inflate label cardinality.
package telemetry

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics, labelled by method, route template and status code.
//
// Example PromQL queries:
//   - Error rate (%):  sum(rate(http_requests_total{status=~"5.."}[5m])) / sum(rate(http_requests_total[5m])) * 100
//   - p99 latency:     histogram_quantile(0.99, sum by (path, le) (rate(http_request_duration_seconds_bucket[5m])))
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

// Release resolution metrics. The kind label is "game" or "updater".
//
// ReleaseFetchDuration observes one full resolution against the release host,
// including every checksum request. Cache hits are not observed here; see
// ReleaseCacheRequestsTotal.
//
// ChecksumFailuresTotal counts checksum lookups that did not yield a digest, by
// reason: "transport" (tolerated, digest left empty), "malformed" or "mismatch"
// (both abort the resolution).
var (
	ReleaseFetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tsom_release_fetch_duration_seconds",
			Help:    "Duration of a release resolution against the release host, by kind.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"kind"},
	)

	ReleaseFetchErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tsom_release_fetch_errors_total",
			Help: "Total number of failed release resolutions, by kind.",
		},
		[]string{"kind"},
	)

	ChecksumFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tsom_checksum_failures_total",
			Help: "Total number of asset checksum lookups that did not produce a digest, by reason.",
		},
		[]string{"reason"},
	)

	ReleaseCacheRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tsom_release_cache_requests_total",
			Help: "Total number of release cache lookups, by cache key and result (hit or miss).",
		},
		[]string{"key", "result"},
	)
)

// Player and connection metrics.
var (
	PlayersCreatedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tsom_players_created_total",
			Help: "Total number of player accounts created.",
		},
	)

	ConnectionTokensIssuedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tsom_connection_tokens_issued_total",
			Help: "Total number of connection token generation attempts, by result.",
		},
		[]string{"result"},
	)
)

// DBOpenConnections tracks sql.DB pool size, sampled by StartDBStatsCollector.
var DBOpenConnections = promauto.NewGauge(
	prometheus.GaugeOpts{
		Name: "db_open_connections",
		Help: "Current number of open database connections in the pool.",
	},
)

// StartDBStatsCollector samples pool statistics every 30 seconds until ctx is
// cancelled or the database stops answering pings.
func StartDBStatsCollector(ctx context.Context, db *sql.DB) {
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := db.PingContext(ctx); err != nil {
					slog.Warn("db stats collector: database unreachable, stopping collector", "error", err)
					return
				}
				DBOpenConnections.Set(float64(db.Stats().OpenConnections))
			}
		}
	}()
}
