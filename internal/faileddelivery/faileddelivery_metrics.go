package faileddelivery

import (
	"github.com/prometheus/client_golang/prometheus"
)

// ResolutionsTotal counts failed-delivery resolutions by fault type.
var ResolutionsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "sokoni",
		Subsystem: "failed_deliveries",
		Name:      "resolutions_total",
		Help:      "Total number of failed-delivery resolutions",
	},
	[]string{"fault_type"},
)

func init() {
	prometheus.MustRegister(ResolutionsTotal)
}

func observeResolution(fault FaultType) {
	ResolutionsTotal.WithLabelValues(string(fault)).Inc()
}
