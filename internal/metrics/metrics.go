// Package metrics provides Prometheus instrumentation for the broker.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ConnectionsTotal tracks the current number of attached connections.
	ConnectionsTotal = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "supportchat_connections_total",
		Help: "Current number of active WebSocket connections",
	})

	// EventsTotal counts inbound events by type and outcome ("ok" or "error").
	EventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "supportchat_events_total",
		Help: "Total number of inbound events processed",
	}, []string{"type", "outcome"})

	// EventLatency records the time spent handling one inbound event.
	EventLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "supportchat_event_latency_seconds",
		Help:    "Inbound event processing latency in seconds",
		Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
	}, []string{"type"})

	// MessagesTotal counts chat messages accepted.
	MessagesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "supportchat_messages_total",
		Help: "Total number of chat messages stored",
	})

	// ActiveChats tracks the number of active chats.
	ActiveChats = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "supportchat_active_chats",
		Help: "Current number of active chats",
	})
)

func init() {
	prometheus.MustRegister(
		ConnectionsTotal,
		EventsTotal,
		EventLatency,
		MessagesTotal,
		ActiveChats,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
