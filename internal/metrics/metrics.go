// Package metrics holds the Prometheus collectors shared by the service.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	gatherer prometheus.Gatherer

	turns         *prometheus.CounterVec
	gateBlocks    *prometheus.CounterVec
	upstream      *prometheus.HistogramVec
	ownerFailures prometheus.Counter
	httpRequests  *prometheus.CounterVec
}

// New registers all collectors on reg. Passing a fresh prometheus.NewRegistry
// keeps tests isolated from the default registry.
func New(reg *prometheus.Registry) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		gatherer: reg,
		turns: f.NewCounterVec(prometheus.CounterOpts{
			Name: "mintchat_turns_total",
			Help: "Chat and analysis turns by outcome.",
		}, []string{"kind", "outcome"}),
		gateBlocks: f.NewCounterVec(prometheus.CounterOpts{
			Name: "mintchat_gate_blocks_total",
			Help: "Requests refused until a wallet is bound.",
		}, []string{"kind"}),
		upstream: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "mintchat_upstream_duration_seconds",
			Help:    "Latency of language model and chain RPC calls.",
			Buckets: prometheus.DefBuckets,
		}, []string{"upstream", "outcome"}),
		ownerFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "mintchat_holder_owner_failures_total",
			Help: "Holder owner lookups that failed soft to a null owner.",
		}),
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "mintchat_http_requests_total",
			Help: "HTTP requests by route pattern and status.",
		}, []string{"route", "status"}),
	}
}

func (m *Metrics) Turn(kind, outcome string) {
	if m == nil {
		return
	}
	m.turns.WithLabelValues(kind, outcome).Inc()
}

func (m *Metrics) GateBlocked(kind string) {
	if m == nil {
		return
	}
	m.gateBlocks.WithLabelValues(kind).Inc()
}

// ObserveUpstream records the time since start for one outbound call.
func (m *Metrics) ObserveUpstream(upstream string, start time.Time, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.upstream.WithLabelValues(upstream, outcome).Observe(time.Since(start).Seconds())
}

func (m *Metrics) OwnerLookupFailed() {
	if m == nil {
		return
	}
	m.ownerFailures.Inc()
}

func (m *Metrics) Request(route string, status int) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
