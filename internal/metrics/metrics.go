package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	UpstreamCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "snowtraffic_upstream_calls_total",
			Help: "Total upstream API calls",
		},
		[]string{"source", "target", "status"},
	)

	UpstreamLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "snowtraffic_upstream_latency_seconds",
			Help:    "Upstream API call latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"source", "target"},
	)

	ReadingsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "snowtraffic_readings_ingested_total",
			Help: "Total weather readings successfully ingested",
		},
		[]string{"station"},
	)

	ReadingsFlagged = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "snowtraffic_readings_flagged_total",
			Help: "Total weather readings stored with a quality flag",
		},
		[]string{"station", "flag"},
	)

	TravelTimesIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "snowtraffic_travel_times_ingested_total",
			Help: "Total travel times successfully ingested",
		},
		[]string{"route"},
	)

	ProjectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "snowtraffic_projections_total",
			Help: "Total accumulation projections served",
		},
		[]string{"station", "kind"},
	)
)
