package main

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics tracks the login funnel (§4.9): one counter per funnel step
// (hello, encryption_requested) and terminal outcome, and a histogram
// around the session-server round trip. A nil
// *Metrics is valid and a no-op, so tests and embeddings that don't
// care about metrics can simply omit it.
type Metrics struct {
	outcomes  *prometheus.CounterVec
	authCalls prometheus.Histogram
}

// NewMetrics registers the login funnel metrics against reg. The
// metrics are only served over HTTP when the same *prometheus.Registry
// is also handed to ServeMetrics, as runServe does.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		outcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "palisade_login_total",
			Help: "Login-phase funnel steps and terminal outcomes.",
		}, []string{"outcome"}),
		authCalls: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "palisade_auth_request_duration_seconds",
			Help:    "Duration of session-server hasJoined calls.",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

func (m *Metrics) observeOutcome(outcome string) {
	if m == nil {
		return
	}
	m.outcomes.WithLabelValues(outcome).Inc()
}

type authTimer struct {
	timer *prometheus.Timer
}

func (t authTimer) observeDone() {
	if t.timer != nil {
		t.timer.ObserveDuration()
	}
}

func (m *Metrics) startAuthTimer() authTimer {
	if m == nil {
		return authTimer{}
	}
	return authTimer{timer: prometheus.NewTimer(m.authCalls)}
}

// ServeMetrics starts an HTTP server exposing reg on addr. It runs
// until the process exits or ListenAndServe returns an error, which
// the caller is expected to log — mirroring how the teacher's
// subscription server is launched as a detached goroutine in main.go.
func ServeMetrics(addr string, reg *prometheus.Registry) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return http.ListenAndServe(addr, mux)
}
