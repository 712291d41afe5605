// Package metrics exposes Prometheus counters for account and session
// operations.
package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/dmitrijs2005/erpkeeper/internal/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder owns a private registry so tests and multiple servers in one
// process do not collide on the global one.
type Recorder struct {
	registry      *prometheus.Registry
	operations    *prometheus.CounterVec
	latency       *prometheus.HistogramVec
	notifications *prometheus.CounterVec
}

func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "erpkeeper",
			Name:      "session_operations_total",
			Help:      "Session and account operations by outcome.",
		}, []string{"operation", "outcome"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "erpkeeper",
			Name:      "session_operation_duration_seconds",
			Help:      "Latency of session and account operations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "erpkeeper",
			Name:      "notifications_total",
			Help:      "Notifications handed to the gateway by kind and result.",
		}, []string{"kind", "result"}),
	}

	r.registry.MustRegister(
		r.operations,
		r.latency,
		r.notifications,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// Observe records one finished operation.
func (r *Recorder) Observe(operation string, err error, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.operations.WithLabelValues(operation, Outcome(err)).Inc()
	r.latency.WithLabelValues(operation).Observe(elapsed.Seconds())
}

// Notification records a gateway send attempt.
func (r *Recorder) Notification(kind string, err error) {
	if r == nil {
		return
	}
	result := "sent"
	if err != nil {
		result = "failed"
	}
	r.notifications.WithLabelValues(kind, result).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

var outcomes = []struct {
	err   error
	label string
}{
	{common.ErrValidation, "validation"},
	{common.ErrConflict, "conflict"},
	{common.ErrNotFound, "not_found"},
	{common.ErrInvalidCredentials, "invalid_credentials"},
	{common.ErrUnverified, "unverified"},
	{common.ErrInvalidOrExpired, "invalid_or_expired"},
	{common.ErrTokenReuse, "token_reuse"},
	{common.ErrInvalidToken, "invalid_token"},
	{common.ErrUnauthorized, "unauthorized"},
	{common.ErrRateLimited, "rate_limited"},
	{common.ErrUpload, "upload"},
}

// Outcome maps an error to a low-cardinality label.
func Outcome(err error) string {
	if err == nil {
		return "ok"
	}
	for _, o := range outcomes {
		if errors.Is(err, o.err) {
			return o.label
		}
	}
	return "internal"
}
