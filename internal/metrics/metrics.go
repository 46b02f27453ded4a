package metrics

import (
	"encoding/json"
	"net/http"

	"github.com/ErlanBelekov/token-ledger/internal/health"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Token operations

	OperationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tokens",
		Name:      "operations_total",
		Help:      "Total token operations, by operation and outcome.",
	}, []string{"operation", "outcome"})

	OperationDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "tokens",
		Name:      "operation_duration_seconds",
		Help:      "Duration of a token operation including retries.",
		Buckets:   []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
	}, []string{"operation"})

	TxRetriesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tokens",
		Name:      "tx_retries_total",
		Help:      "Units re-run after a serialization failure or a transaction key race.",
	}, []string{"operation"})

	// Janitor

	JanitorPrunedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "tokens",
		Name:      "janitor_pruned_transactions_total",
		Help:      "Transaction records removed by the janitor.",
	})

	JanitorCycleDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "tokens",
		Name:      "janitor_cycle_duration_seconds",
		Help:      "Time taken for one janitor cycle.",
		Buckets:   prometheus.DefBuckets,
	})

	// HTTP metrics

	RateLimitedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "tokens",
		Name:      "http_rate_limited_total",
		Help:      "Requests rejected by the per-caller rate limiter.",
	})

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "tokens",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency.",
		Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tokens",
		Name:      "http_requests_total",
		Help:      "Total HTTP requests.",
	}, []string{"method", "path", "status"})
)

func Register() {
	prometheus.MustRegister(
		OperationsTotal,
		OperationDuration,
		TxRetriesTotal,
		JanitorPrunedTotal,
		JanitorCycleDuration,
		RateLimitedTotal,
		HTTPRequestDuration,
		HTTPRequestsTotal,
	)
}

// NewServer serves /metrics, /healthz and /readyz.
func NewServer(addr string, checker *health.Checker) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeHealth(w, checker.Liveness(r.Context()))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		writeHealth(w, checker.Readiness(r.Context()))
	})
	return &http.Server{Addr: addr, Handler: mux}
}

func writeHealth(w http.ResponseWriter, res health.HealthResult) {
	w.Header().Set("Content-Type", "application/json")
	if res.Status != "up" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(res)
}
