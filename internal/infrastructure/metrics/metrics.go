// Package metrics provides Prometheus metrics for the chat gateway.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ActiveSockets tracks currently connected websocket viewers.
	ActiveSockets = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "supportchat_active_sockets",
			Help: "Number of currently connected websocket viewers",
		},
	)

	// ActiveSubscriptions tracks open live queries by kind.
	ActiveSubscriptions = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "supportchat_active_subscriptions",
			Help: "Number of open live queries",
		},
		[]string{"kind"},
	)

	// SubscriptionErrors counts live queries that ended with an error.
	SubscriptionErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "supportchat_subscription_errors_total",
			Help: "Total number of live queries terminated by an error",
		},
		[]string{"kind"},
	)

	// MessagesSent counts successful sends by message kind.
	MessagesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "supportchat_messages_sent_total",
			Help: "Total number of messages appended",
		},
		[]string{"kind"},
	)

	// SendFailures counts sends rejected by the store.
	SendFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "supportchat_send_failures_total",
			Help: "Total number of message sends that failed",
		},
	)

	// MarkSeenFailures counts seen-marks the store rejected.
	MarkSeenFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "supportchat_mark_seen_failures_total",
			Help: "Total number of mark-seen writes that failed",
		},
	)

	// PresenceWriteFailures counts dropped presence writes.
	PresenceWriteFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "supportchat_presence_write_failures_total",
			Help: "Total number of presence writes that failed",
		},
	)

	// PaymentOutcomes counts payment callbacks by result.
	PaymentOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "supportchat_payment_outcomes_total",
			Help: "Total number of payment results by outcome",
		},
		[]string{"outcome"},
	)

	// SendDuration tracks the latency of the two-step send.
	SendDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "supportchat_send_duration_seconds",
			Help:    "Duration of message send writes",
			Buckets: prometheus.DefBuckets,
		},
	)
)

const (
	SubscriptionMessages = "messages"
	SubscriptionChatList = "chat_list"
	SubscriptionPresence = "presence"
)

// RecordSubscriptionOpened increments the open live query gauge.
func RecordSubscriptionOpened(kind string) {
	ActiveSubscriptions.WithLabelValues(kind).Inc()
}

// RecordSubscriptionClosed decrements the open live query gauge.
func RecordSubscriptionClosed(kind string) {
	ActiveSubscriptions.WithLabelValues(kind).Dec()
}

func RecordSubscriptionError(kind string) {
	SubscriptionErrors.WithLabelValues(kind).Inc()
}

func RecordPaymentOutcome(outcome string) {
	PaymentOutcomes.WithLabelValues(outcome).Inc()
}
