package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Chat request outcomes.
const (
	OutcomeSuccess         = "success"
	OutcomeValidationError = "validation_error"
	OutcomeUpstreamError   = "upstream_error"
)

// Recorder holds the relay's Prometheus collectors on a private registry.
// A nil *Recorder is valid and records nothing.
type Recorder struct {
	registry *prometheus.Registry

	chatRequests     *prometheus.CounterVec
	upstreamDuration *prometheus.HistogramVec
}

// NewRecorder creates a Recorder with its own registry, so several can
// coexist in one process.
func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,

		chatRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chat_relay_chat_requests_total",
				Help: "Total number of chat requests by outcome",
			},
			[]string{"outcome"},
		),

		upstreamDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "chat_relay_upstream_request_duration_seconds",
				Help:    "Latency of chat-completion calls to the upstream API",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"result"},
		),
	}
}

// RecordChat counts one chat request with the given outcome.
func (r *Recorder) RecordChat(outcome string) {
	if r == nil {
		return
	}
	r.chatRequests.WithLabelValues(outcome).Inc()
}

// ObserveUpstream records the latency of one upstream call.
func (r *Recorder) ObserveUpstream(d time.Duration, err error) {
	if r == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	r.upstreamDuration.WithLabelValues(result).Observe(d.Seconds())
}

// Handler exposes the registry in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return promhttp.HandlerFor(prometheus.NewRegistry(), promhttp.HandlerOpts{})
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
