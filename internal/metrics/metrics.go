// Package metrics provides Prometheus instrumentation for the Recetario
// backend. It exposes gauges for connection and typing-presence counts,
// counters for message throughput, and histograms for latency tracking.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ConnectionsTotal tracks the current number of active WebSocket connections.
	ConnectionsTotal = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "recetario_connections_total",
		Help: "Current number of active WebSocket connections",
	})

	// MessagesTotal counts the total number of chat messages processed, labeled
	// by outcome: "sent", "received", or "blocked".
	MessagesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "recetario_messages_total",
		Help: "Total number of chat messages processed",
	}, []string{"type"}) // type = "sent", "received", "blocked"

	// MessageLatency records message send latency in seconds, from receipt of
	// the client frame to the insert-event publish.
	MessageLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "recetario_message_latency_seconds",
		Help:    "Message send latency in seconds",
		Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
	})

	// TypingEventsTotal counts typing insert-events published to the feed.
	TypingEventsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "recetario_typing_events_total",
		Help: "Total number of typing insert-events published",
	})

	// TypingUsers tracks the current size of the typing-presence set.
	TypingUsers = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "recetario_typing_users",
		Help: "Current number of users shown as typing",
	})

	// EnrichmentFailuresTotal counts insert-events whose author re-fetch
	// failed and were delivered with the placeholder author block.
	EnrichmentFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "recetario_enrichment_failures_total",
		Help: "Total number of messages delivered with a placeholder author",
	})
)

func init() {
	prometheus.MustRegister(
		ConnectionsTotal,
		MessagesTotal,
		MessageLatency,
		TypingEventsTotal,
		TypingUsers,
		EnrichmentFailuresTotal,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
