package broker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for the broker, scraped via the /metrics endpoint
// of the serving binary.
var (
	connectionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "aldrin_connections_total",
		Help: "Total number of client connections established",
	})

	connectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "aldrin_connections_active",
		Help: "Current number of established connections",
	})

	connectionsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "aldrin_connections_failed_total",
		Help: "Total number of connections that failed the handshake",
	})

	messagesReceived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "aldrin_messages_received_total",
		Help: "Total number of messages dispatched by the broker loop",
	})

	messagesSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "aldrin_messages_sent_total",
		Help: "Total number of messages enqueued to clients",
	})

	queueOverflows = promauto.NewCounter(prometheus.CounterOpts{
		Name: "aldrin_queue_overflow_disconnects_total",
		Help: "Total number of connections closed on outbound queue overflow",
	})

	objectsGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "aldrin_objects",
		Help: "Current number of objects",
	})

	servicesGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "aldrin_services",
		Help: "Current number of services",
	})

	channelsGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "aldrin_channels",
		Help: "Current number of channels",
	})

	busListenersGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "aldrin_bus_listeners",
		Help: "Current number of bus listeners",
	})

	callsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "aldrin_calls_in_flight",
		Help: "Function calls currently routed and awaiting a reply",
	})

	itemsRouted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "aldrin_channel_items_total",
		Help: "Total number of channel items routed",
	})

	eventsFanned = promauto.NewCounter(prometheus.CounterOpts{
		Name: "aldrin_events_fanned_out_total",
		Help: "Total number of event deliveries to subscribers",
	})

	busEventsEmitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "aldrin_bus_events_total",
		Help: "Total number of live lifecycle event deliveries",
	})

	cpuPercentGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "aldrin_cpu_percent",
		Help: "Broker process CPU usage as sampled by the resource guard",
	})
)
