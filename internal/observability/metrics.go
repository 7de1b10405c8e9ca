package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	connectionState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "rayvtt",
			Subsystem: "session",
			Name:      "connection_state",
			Help:      "1 for the current connection state, 0 otherwise.",
		},
		[]string{"state"},
	)
	reconnects = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "rayvtt",
			Subsystem: "session",
			Name:      "reconnects_scheduled_total",
			Help:      "Reconnect attempts scheduled after a lost connection.",
		},
	)
	reconnectDelay = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "rayvtt",
			Subsystem: "session",
			Name:      "reconnect_delay_seconds",
			Help:      "Backoff delay applied before each reconnect.",
			Buckets:   []float64{1, 2, 4, 8, 10, 30},
		},
	)
	livenessFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "rayvtt",
			Subsystem: "session",
			Name:      "liveness_failures_total",
			Help:      "Connections closed because no pong arrived in time.",
		},
	)
	sent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rayvtt",
			Subsystem: "session",
			Name:      "messages_sent_total",
			Help:      "Outbound messages written to the transport.",
		},
		[]string{"type"},
	)
	dropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rayvtt",
			Subsystem: "session",
			Name:      "messages_dropped_total",
			Help:      "Outbound messages dropped before reaching the transport.",
		},
		[]string{"type", "reason"},
	)
	received = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rayvtt",
			Subsystem: "session",
			Name:      "messages_received_total",
			Help:      "Inbound messages by decoded type.",
		},
		[]string{"type"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(connectionState, reconnects, reconnectDelay, livenessFailures, sent, dropped, received)
	})
}

// RecordState marks current as the only active connection state.
func RecordState(previous, current string) {
	RegisterMetrics()
	if previous != "" {
		connectionState.WithLabelValues(previous).Set(0)
	}
	connectionState.WithLabelValues(current).Set(1)
}

func RecordReconnectScheduled(delay time.Duration) {
	RegisterMetrics()
	reconnects.Inc()
	reconnectDelay.Observe(delay.Seconds())
}

func RecordLivenessFailure() {
	RegisterMetrics()
	livenessFailures.Inc()
}

func RecordSent(msgType string) {
	RegisterMetrics()
	sent.WithLabelValues(msgType).Inc()
}

func RecordDropped(msgType, reason string) {
	RegisterMetrics()
	dropped.WithLabelValues(msgType, reason).Inc()
}

// RecordReceived counts inbound payloads; use "malformed" and "unknown" for
// payloads that never became events.
func RecordReceived(msgType string) {
	RegisterMetrics()
	received.WithLabelValues(msgType).Inc()
}
