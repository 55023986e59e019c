package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	MessagesSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "messenger",
		Name:      "messages_sent_total",
		Help:      "Messages stored, by message type.",
	}, []string{"type"})

	ContactOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "messenger",
		Name:      "contact_operations_total",
		Help:      "Contact graph operations, by operation and result status.",
	}, []string{"operation", "status"})

	ChatsPurged = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "messenger",
		Name:      "chats_purged_total",
		Help:      "Chats physically removed after both sides deleted the contact.",
	})

	PresenceTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "messenger",
		Name:      "presence_transitions_total",
		Help:      "Presence online/offline transitions, by target state and cause.",
	}, []string{"state", "cause"})

	FeedSubscriptions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "messenger",
		Name:      "feed_subscriptions",
		Help:      "Live change feed subscriptions on this instance.",
	})

	EventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "messenger",
		Name:      "events_published_total",
		Help:      "Domain events handed to the broker, by action and outcome.",
	}, []string{"action", "outcome"})
)

// Handler returns an http.Handler for Prometheus scraping
func Handler() http.Handler {
	return promhttp.Handler()
}
