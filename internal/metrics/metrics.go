// Package metrics exposes the Prometheus collectors of the API server.
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
	LoginAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "roomify_login_attempts_total",
		Help: "Login attempts by outcome.",
	}, []string{"outcome"})

	AccountLockouts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "roomify_account_lockouts_total",
		Help: "Accounts locked after repeated failed logins.",
	})

	AuthRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "roomify_auth_rejections_total",
		Help: "Requests rejected by the request authenticator, by reason.",
	}, []string{"reason"})

	AuthzDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "roomify_authz_decisions_total",
		Help: "Authorization decisions by outcome.",
	}, []string{"outcome"})

	AuditWriteFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "roomify_audit_write_failures_total",
		Help: "Audit entries that could not be written.",
	})

	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "roomify_http_requests_total",
		Help: "Total number of HTTP requests.",
	}, []string{"method", "route", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "roomify_http_request_duration_seconds",
		Help:    "HTTP request latencies in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})
)

// unmatchedRoute labels requests that matched no route pattern, so unknown
// paths share one series.
const unmatchedRoute = "unmatched"

// Handler serves the default Prometheus registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Instrument records request counts and latencies labelled by chi route pattern.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(sw, r)

		route := unmatchedRoute
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		status := strconv.Itoa(sw.code)
		httpRequestsTotal.WithLabelValues(r.Method, route, status).Inc()
		httpRequestDuration.WithLabelValues(r.Method, route, status).Observe(time.Since(start).Seconds())
	})
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
