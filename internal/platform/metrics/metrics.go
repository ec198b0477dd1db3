// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package metrics exposes Prometheus counters for the session lifecycle and the
HTTP surface.

Every recording method is safe on a nil [*Metrics], so domain code and tests can
run without a registry.
*/
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "haii_auth"

// # Label Values

const (
	RevokeSuperseded = "superseded"
	RevokeExpired    = "expired"
	RevokeLogout     = "logout"

	RefreshRedeemed = "redeemed"
	RefreshExpired  = "expired"
	RefreshUnknown  = "unknown"
	RefreshGuest    = "guest"
)

// Metrics groups every collector registered by the service.
type Metrics struct {
	sessionsCreated  prometheus.Counter
	sessionsRevoked  *prometheus.CounterVec
	refreshOutcomes  *prometheus.CounterVec
	identityFailures *prometheus.CounterVec
	loginsThrottled  prometheus.Counter
	requests         *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	gatherer         prometheus.Gatherer
}

// New creates the collectors and registers them on registry.
func New(registry *prometheus.Registry) *Metrics {
	metrics := &Metrics{
		sessionsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_created_total",
			Help:      "Browser sessions created.",
		}),
		sessionsRevoked: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_revoked_total",
			Help:      "Browser sessions revoked, by reason.",
		}, []string{"reason"}),
		refreshOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refresh_credentials_total",
			Help:      "Refresh credential redemption attempts, by outcome.",
		}, []string{"outcome"}),
		identityFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "identity_failures_total",
			Help:      "Rejected authentication attempts, by error code.",
		}, []string{"code"}),
		loginsThrottled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "logins_throttled_total",
			Help:      "Login attempts rejected by the failed-login limiter.",
		}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests, by route pattern and status.",
		}, []string{"method", "route", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency, by route pattern.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		gatherer: registry,
	}

	registry.MustRegister(
		metrics.sessionsCreated,
		metrics.sessionsRevoked,
		metrics.refreshOutcomes,
		metrics.identityFailures,
		metrics.loginsThrottled,
		metrics.requests,
		metrics.requestDuration,
	)

	return metrics
}

// # Recording

// SessionCreated counts one new browser session.
func (metrics *Metrics) SessionCreated() {
	if metrics == nil {
		return
	}
	metrics.sessionsCreated.Inc()
}

// SessionsRevoked counts revoked sessions for a reason.
func (metrics *Metrics) SessionsRevoked(reason string, count int) {
	if metrics == nil || count <= 0 {
		return
	}
	metrics.sessionsRevoked.WithLabelValues(reason).Add(float64(count))
}

// RefreshOutcome counts one refresh redemption attempt.
func (metrics *Metrics) RefreshOutcome(outcome string) {
	if metrics == nil {
		return
	}
	metrics.refreshOutcomes.WithLabelValues(outcome).Inc()
}

// IdentityFailure counts one rejected authentication by error code.
func (metrics *Metrics) IdentityFailure(code string) {
	if metrics == nil {
		return
	}
	metrics.identityFailures.WithLabelValues(code).Inc()
}

// LoginThrottled counts one login refused by the limiter.
func (metrics *Metrics) LoginThrottled() {
	if metrics == nil {
		return
	}
	metrics.loginsThrottled.Inc()
}

// # HTTP

// Handler serves the registry in the Prometheus exposition format. A nil
// receiver serves 404.
func (metrics *Metrics) Handler() http.Handler {
	if metrics == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(metrics.gatherer, promhttp.HandlerOpts{})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (recorder *statusRecorder) WriteHeader(code int) {
	recorder.status = code
	recorder.ResponseWriter.WriteHeader(code)
}

// Middleware records request counts and latency labelled by the chi route
// pattern, so ids in paths never explode label cardinality.
func (metrics *Metrics) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			if metrics == nil {
				next.ServeHTTP(writer, request)
				return
			}

			startTime := time.Now()
			recorder := &statusRecorder{ResponseWriter: writer, status: http.StatusOK}

			next.ServeHTTP(recorder, request)

			route := "unmatched"
			if routeContext := chi.RouteContext(request.Context()); routeContext != nil {
				if pattern := routeContext.RoutePattern(); pattern != "" {
					route = pattern
				}
			}

			metrics.requests.WithLabelValues(request.Method, route, strconv.Itoa(recorder.status)).Inc()
			metrics.requestDuration.WithLabelValues(request.Method, route).Observe(time.Since(startTime).Seconds())
		})
	}
}
