package order

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// TransitionsTotal counts order status transitions by edge.
	TransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sokoni",
			Subsystem: "orders",
			Name:      "transitions_total",
			Help:      "Total number of order status transitions",
		},
		[]string{"from", "to"},
	)

	// ActiveOrders tracks orders currently in non-terminal statuses.
	ActiveOrders = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "sokoni",
			Subsystem: "orders",
			Name:      "active",
			Help:      "Number of orders in non-terminal statuses",
		},
	)
)

func init() {
	prometheus.MustRegister(TransitionsTotal, ActiveOrders)
}

func observeTransition(from, to Status) {
	TransitionsTotal.WithLabelValues(string(from), string(to)).Inc()
	switch {
	case from == "":
		ActiveOrders.Inc()
	case inactive(to) && !inactive(from):
		ActiveOrders.Dec()
	}
}

func inactive(s Status) bool {
	return s.IsTerminal() || s == StatusCancelled || s == StatusFailed
}
