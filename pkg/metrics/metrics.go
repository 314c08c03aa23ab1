package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "duochat",
		Name:      "conversation_sessions_active",
		Help:      "Open conversation sessions.",
	})

	PagesLoaded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "duochat",
		Name:      "pages_loaded_total",
		Help:      "Message pages fetched from the backing store.",
	}, []string{"kind", "outcome"})

	ListenerEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "duochat",
		Name:      "listener_events_total",
		Help:      "Events delivered by message listeners.",
	}, []string{"listener", "outcome"})

	ReceiptWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "duochat",
		Name:      "receipt_writes_total",
		Help:      "Batched read-receipt writes.",
	}, []string{"outcome"})

	MessagesSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "duochat",
		Name:      "messages_sent_total",
		Help:      "Messages accepted by the send path.",
	}, []string{"kind"})

	WebsocketConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "duochat",
		Name:      "websocket_connections",
		Help:      "Registered websocket connections.",
	})
)

const (
	OutcomeOK      = "ok"
	OutcomeError   = "error"
	OutcomeApplied = "applied"
	OutcomeDropped = "dropped"
)
