// Package metrics exposes Prometheus collectors for the server process
// and the HTTP handler that serves them.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups every collector the server updates. All fields are
// safe for concurrent use, as guaranteed by the prometheus client.
type Metrics struct {
	SessionsActive  prometheus.Gauge
	ConnectionsTotal prometheus.Counter
	PacketsTotal    *prometheus.CounterVec
	BroadcastSeconds prometheus.Histogram
	RecordingsActive prometheus.Gauge
	LoginAttemptsTotal *prometheus.CounterVec
}

// New registers every collector against a fresh registry and returns the
// grouped handles plus an http.Handler for the scrape endpoint.
func New() (*Metrics, http.Handler) {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	m := &Metrics{
		SessionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "streamdesk",
			Name:      "sessions_active",
			Help:      "Number of remote-desktop sessions currently open.",
		}),
		ConnectionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "streamdesk",
			Name:      "connections_total",
			Help:      "Total TCP connections accepted by the server.",
		}),
		PacketsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "streamdesk",
			Name:      "packets_total",
			Help:      "Total packets processed, labeled by kind.",
		}, []string{"kind"}),
		BroadcastSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "streamdesk",
			Name:      "broadcast_seconds",
			Help:      "Time spent fanning a frame out to session members.",
			Buckets:   prometheus.DefBuckets,
		}),
		RecordingsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "streamdesk",
			Name:      "recordings_active",
			Help:      "Number of host sessions currently writing a recording.",
		}),
		LoginAttemptsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "streamdesk",
			Name:      "login_attempts_total",
			Help:      "Total login/register attempts, labeled by outcome.",
		}, []string{"outcome"}),
	}

	return m, promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
