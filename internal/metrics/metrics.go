// Package metrics provides Prometheus instrumentation for the wheel tracker.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// EventsAppended counts trade events committed to a ledger.
	EventsAppended = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wheel_events_appended_total",
		Help: "Trade events committed to the ledger",
	}, []string{"mode", "kind"})

	// EventsRejected counts appends refused by validation or replay.
	EventsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wheel_events_rejected_total",
		Help: "Trade events rejected on append",
	}, []string{"mode", "reason"})

	// LedgerSize tracks the number of events in each mode's ledger.
	LedgerSize = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "wheel_ledger_events",
		Help: "Number of events in the ledger",
	}, []string{"mode"})

	// ReplayDuration tracks how long a full ledger replay takes.
	ReplayDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "wheel_replay_duration_seconds",
		Help:    "Duration of derived state rebuilds",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
	}, []string{"mode"})

	// MarketDataRequests counts upstream market data calls by endpoint and outcome.
	MarketDataRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wheel_market_data_requests_total",
		Help: "Market data provider requests",
	}, []string{"endpoint", "outcome"})

	// MarketDataCacheHits counts market data answered from cache.
	MarketDataCacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wheel_market_data_cache_hits_total",
		Help: "Market data lookups served from cache",
	}, []string{"endpoint"})

	// MarketDataBreakerOpen is 1 while upstream market data calls are being refused.
	MarketDataBreakerOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "wheel_market_data_breaker_open",
		Help: "Whether the market data circuit breaker is open",
	})

	// HTTPRequestsTotal counts HTTP requests by method, route, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wheel_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "route", "status"})

	// HTTPRequestDuration tracks request duration by method and route.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "wheel_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "route"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns an HTTP middleware that records request metrics.
// Requests are labelled with the chi route pattern rather than the raw path.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(duration)
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
