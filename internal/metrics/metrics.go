package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Counters exported on /metrics. Registered on the default registry so
// promhttp picks them up without extra wiring.
var (
	ScansTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "attendance_scans_total",
		Help: "QR scan outcomes by scan type and result.",
	}, []string{"scan_type", "result"})

	DeliveriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notification_deliveries_total",
		Help: "Guardian notification delivery attempts by outcome.",
	}, []string{"outcome"})
)
