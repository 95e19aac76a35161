package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RidesRequested   = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_dispatch", Name: "rides_requested_total", Help: "Total ride requests admitted"})
	RidesCompleted   = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_dispatch", Name: "rides_completed_total", Help: "Total rides settled"})
	RidesCancelled   = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_dispatch", Name: "rides_cancelled_total", Help: "Total rides cancelled"})
	RidesUnserved    = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_dispatch", Name: "rides_unserved_total", Help: "Requests admitted without a driver assignment"})
	DriversAssigned  = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_dispatch", Name: "driver_assignments_total", Help: "Total successful driver assignments"})
	DriverRejections = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_dispatch", Name: "driver_rejections_total", Help: "Total simulated driver rejections during assignment"})

	DriversAvailable = promauto.NewGauge(prometheus.GaugeOpts{Namespace: "ride_dispatch", Name: "drivers_available", Help: "Drivers currently available"})
	CarpoolGroups    = promauto.NewGauge(prometheus.GaugeOpts{Namespace: "ride_dispatch", Name: "carpool_groups_active", Help: "Drivers currently carrying shared rides"})

	FareCharged = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "ride_dispatch",
		Name:      "fare_rupees",
		Help:      "Settled fare distribution in rupees",
		Buckets:   prometheus.ExponentialBuckets(10, 2, 10),
	})

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "ride_dispatch", Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ride_dispatch",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
