package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SettlementsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "settlement_requests_total",
			Help: "Settlement requests by kind and terminal outcome",
		},
		[]string{"kind", "outcome"},
	)

	SettledAmount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "settlement_credited_amount_total",
			Help: "Amount credited by approvals, by beneficiary role",
		},
		[]string{"kind", "role"},
	)

	PartialSettlements = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "settlement_partial_total",
			Help: "Settlements found credited but not archived",
		},
	)

	WithdrawalsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "withdrawal_requests_total",
			Help: "Withdrawal requests by outcome",
		},
		[]string{"outcome"},
	)

	CommissionTransfers = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "commission_transfers_total",
			Help: "Accounts whose pending commission was moved to balance",
		},
	)

	ReconcileFindings = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reconcile_findings_total",
			Help: "Reconciliation findings by problem",
		},
		[]string{"problem"},
	)

	HttpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	ResponseTimeHistogram = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_response_time_seconds",
			Help:    "Histogram of response times",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// Instrument records request counts and latency by route pattern.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			path = rctx.RoutePattern()
		}
		HttpRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(ww.Status())).Inc()
		ResponseTimeHistogram.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}
