// Package metrics provides Prometheus instrumentation for the investment engine.
package metrics

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// InvestmentsPlaced counts placements, partitioned by kind (new, topup).
	InvestmentsPlaced = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "invest_placements_total",
		Help: "Total number of investment placements",
	}, []string{"kind"})

	// InvestedVolume tracks cumulative principal placed per plan.
	InvestedVolume = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "invest_placed_volume_total",
		Help: "Cumulative principal placed into plans",
	}, []string{"plan_id"})

	// PlacementLatency tracks placement duration.
	PlacementLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "invest_placement_latency_seconds",
		Help:    "Investment placement latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"kind"})

	// ExposureRejections counts placements rejected by the exposure limiter.
	ExposureRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "invest_exposure_rejections_total",
		Help: "Placements rejected by exposure limits",
	}, []string{"limit"})

	// AccrualRecords counts per-investment accrual outcomes (updated, matured, skipped, error).
	AccrualRecords = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "invest_accrual_records_total",
		Help: "Investments processed by accrual runs",
	}, []string{"outcome"})

	// AccrualRunDuration tracks the duration of full accrual runs.
	AccrualRunDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "invest_accrual_run_duration_seconds",
		Help:    "Accrual batch run duration in seconds",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60, 300},
	})

	// AccrualRunsSkipped counts runs skipped because another run held the lock.
	AccrualRunsSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "invest_accrual_runs_skipped_total",
		Help: "Accrual runs skipped due to a concurrent run",
	})

	// InterestLogDrift observes the absolute difference between the
	// logged daily interest and the engine's yesterday interest.
	InterestLogDrift = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "invest_interest_log_drift",
		Help:    "Absolute drift between logged daily interest and engine yesterday interest",
		Buckets: []float64{0, 0.0001, 0.01, 0.1, 1, 10, 100, 1000},
	})

	// Withdrawals counts withdrawal transitions by resulting status.
	Withdrawals = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "invest_withdrawals_total",
		Help: "Withdrawal requests by status",
	}, []string{"status"})

	// Deposits counts gateway webhook deposits by outcome.
	Deposits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "invest_deposits_total",
		Help: "Payment webhook deposits by outcome",
	}, []string{"outcome"})

	// ActiveInvestments tracks active investments seen by the last accrual run.
	ActiveInvestments = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "invest_active_investments",
		Help: "Active investments at the last accrual run",
	})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "invest_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "invest_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "invest_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns an HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		HTTPRequestsTotal.WithLabelValues(r.Method, routePattern(r), strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, routePattern(r)).Observe(duration)
	})
}

// routePattern returns the matched chi pattern so user IDs do not become labels.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
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

// Hijack lets the live feed upgrade connections through the middleware.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("metrics: response writer does not support hijacking")
	}
	return h.Hijack()
}
