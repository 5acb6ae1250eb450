package monitor

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// CyclesTotal counts strategy cycles by outcome (ok, failed).
	CyclesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "papertrade_cycles_total",
		Help: "Total strategy cycles run",
	}, []string{"asset", "outcome"})

	// CycleDuration tracks end-to-end cycle latency.
	CycleDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "papertrade_cycle_duration_seconds",
		Help:    "Strategy cycle duration in seconds",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"asset"})

	// TradesTotal counts simulated fills, partitioned by side.
	TradesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "papertrade_trades_total",
		Help: "Total number of simulated trades",
	}, []string{"asset", "side"})

	// RiskExitsTotal counts forced exits by rule.
	RiskExitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "papertrade_risk_exits_total",
		Help: "Forced exits by rule",
	}, []string{"asset", "kind"})

	// ExternalCallDuration tracks price, prediction, sentiment and advisor calls.
	ExternalCallDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "papertrade_external_call_duration_seconds",
		Help:    "External signal call duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"source", "status"})

	// PersistenceFailures counts snapshot saves that failed.
	PersistenceFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "papertrade_persistence_failures_total",
		Help: "Ledger snapshot saves that failed",
	})

	// TotalCapital tracks uninvested cash across all assets.
	TotalCapital = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "papertrade_total_capital",
		Help: "Uninvested capital summed over assets",
	})

	// WebSocketClients tracks connected stream clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "papertrade_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, route, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "papertrade_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and route.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "papertrade_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// GinMiddleware records request metrics keyed by the route pattern.
func GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		HTTPRequestsTotal.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
		HTTPRequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}

// ObserveExternal records one external call.
func ObserveExternal(source string, d time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	ExternalCallDuration.WithLabelValues(source, status).Observe(d.Seconds())
}
