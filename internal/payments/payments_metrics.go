package payments

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// StripeEventsTotal counts inbound Stripe webhook deliveries by outcome.
	StripeEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sokoni",
			Subsystem: "payments",
			Name:      "stripe_events_total",
			Help:      "Total number of Stripe webhook events received",
		},
		[]string{"type", "outcome"},
	)
)

func init() {
	prometheus.MustRegister(StripeEventsTotal)
}

func observeStripeEvent(eventType, outcome string) {
	StripeEventsTotal.WithLabelValues(eventType, outcome).Inc()
}
