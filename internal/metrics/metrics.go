package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Counter: how many resolutions were served straight from the cache.
	CacheHitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "price_cache_hits_total",
			Help: "Total number of price resolutions served from the cache.",
		},
	)

	// Histogram: end-to-end price resolution latency in seconds,
	// split by where the answer came from.
	ResolveLatencySeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "price_resolve_latency_seconds",
			Help:    "Price resolution latency in seconds.",
			Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
		[]string{"source", "outcome"},
	)

	// Counter: per-platform secondary lookup failures.
	PlatformFetchFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "platform_fetch_failures_total",
			Help: "Total number of failed upstream platform lookups.",
		},
		[]string{"platform"},
	)

	// Counter: exchange-rate table refresh attempts by result.
	RatesRefreshTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exchange_rates_refresh_total",
			Help: "Total number of exchange rate refresh attempts.",
		},
		[]string{"result"},
	)

	// Counter: durable store failures by operation.
	StoreErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kv_store_errors_total",
			Help: "Total number of durable store operation failures.",
		},
		[]string{"op"},
	)

	// Histogram: HTTP latency in seconds.
	HTTPLatencySeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_latency_seconds",
			Help:    "HTTP request latency in seconds.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"path", "method", "status_code"},
	)
)

// Register is called once in main() to register metrics.
func Register() {
	prometheus.MustRegister(
		CacheHitsTotal,
		ResolveLatencySeconds,
		PlatformFetchFailuresTotal,
		RatesRefreshTotal,
		StoreErrorsTotal,
		HTTPLatencySeconds,
	)
}

// Handler exposes the /metrics endpoint for Prometheus to scrape.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware measures HTTP latency for each request.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// capture status code
		rec := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		next.ServeHTTP(rec, r)

		duration := time.Since(start).Seconds()

		HTTPLatencySeconds.
			WithLabelValues(r.URL.Path, r.Method, strconv.Itoa(rec.statusCode)).
			Observe(duration)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.statusCode = code
	r.ResponseWriter.WriteHeader(code)
}
