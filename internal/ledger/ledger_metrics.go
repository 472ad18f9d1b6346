package ledger

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// TransactionsTotal counts registered transactions by type.
	TransactionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sokoni",
			Name:      "ledger_transactions_total",
			Help:      "Total registered ledger transactions by type.",
		},
		[]string{"type"},
	)

	// TransactionDuration observes register latency by type.
	TransactionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "sokoni",
			Name:      "ledger_transaction_duration_seconds",
			Help:      "Ledger transaction registration duration in seconds.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
		},
		[]string{"type"},
	)
)

func init() {
	prometheus.MustRegister(
		TransactionsTotal,
		TransactionDuration,
	)
}

// observeOp increments the transaction counter and returns a function to observe duration.
func observeOp(opType string) func() {
	TransactionsTotal.WithLabelValues(opType).Inc()
	start := time.Now()
	return func() {
		TransactionDuration.WithLabelValues(opType).Observe(time.Since(start).Seconds())
	}
}
