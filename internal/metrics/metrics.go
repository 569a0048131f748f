// Package metrics collects and exposes Prometheus metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder is the interface the request path uses to record outcomes.
type Recorder interface {
	RecordChatOutcome(outcome string)
	RecordModelFailure(kind string)
	RecordRateLimitFailOpen()
	RecordPersistenceFailure()
}

// Collector implements Recorder on Prometheus counters.
type Collector struct {
	chatOutcomes        *prometheus.CounterVec
	modelFailures       *prometheus.CounterVec
	rateLimitFailOpen   prometheus.Counter
	persistenceFailures prometheus.Counter
}

// NewCollector creates a Collector and registers its metrics.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		chatOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_chat_requests_total",
			Help: "Chat requests by terminal outcome.",
		}, []string{"outcome"}),
		modelFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_model_failures_total",
			Help: "Model backend failures by taxonomy kind.",
		}, []string{"kind"}),
		rateLimitFailOpen: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gateway_ratelimit_failopen_total",
			Help: "Requests admitted because the counter store was unreachable.",
		}),
		persistenceFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gateway_persistence_failures_total",
			Help: "Chat history writes that failed (non-fatal).",
		}),
	}

	reg.MustRegister(
		c.chatOutcomes,
		c.modelFailures,
		c.rateLimitFailOpen,
		c.persistenceFailures,
	)

	return c
}

// RecordChatOutcome records one completed chat request by outcome.
func (c *Collector) RecordChatOutcome(outcome string) {
	c.chatOutcomes.WithLabelValues(outcome).Inc()
}

// RecordModelFailure records a mapped model backend failure.
func (c *Collector) RecordModelFailure(kind string) {
	c.modelFailures.WithLabelValues(kind).Inc()
}

// RecordRateLimitFailOpen records a request admitted on counter-store failure.
func (c *Collector) RecordRateLimitFailOpen() {
	c.rateLimitFailOpen.Inc()
}

// RecordPersistenceFailure records a swallowed chat-history write failure.
func (c *Collector) RecordPersistenceFailure() {
	c.persistenceFailures.Inc()
}

// Handler returns the /metrics endpoint for the given registry.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

// Nop is a Recorder that discards everything.
type Nop struct{}

func (Nop) RecordChatOutcome(string)  {}
func (Nop) RecordModelFailure(string) {}
func (Nop) RecordRateLimitFailOpen()  {}
func (Nop) RecordPersistenceFailure() {}
