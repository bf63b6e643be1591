package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// OutgoingLatency tracks the duration of every request made through the pooled client.
	OutgoingLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "planner_outgoing_request_duration_seconds",
		Help:    "Latency of outgoing HTTP requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"url", "method", "status"})

	// RoutingServiceStatus Routing service status (up/down)
	RoutingServiceStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "planner_routing_service_status",
		Help: "Status of the road network routing service (0 = unreachable, 1 = reachable)",
	}, []string{"routing_url"})
)

var (
	DistanceCalculations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "planner_distance_calculations_total",
		Help: "Number of distance matrices computed, by the method that produced them",
	}, []string{"method"})

	DistanceFallbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "planner_distance_fallbacks_total",
		Help: "Number of distance matrices served by the fallback method",
	}, []string{"reason"})

	DistanceMatrixCells = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "planner_distance_matrix_cells",
		Help:    "Number of origin/destination cells per distance matrix request",
		Buckets: prometheus.ExponentialBuckets(1, 4, 7),
	})
)

var (
	StopsDiscovered = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "planner_stops_discovered",
		Help:    "Number of stops returned by a discovery call",
		Buckets: []float64{0, 1, 2, 5, 10, 20, 50, 100},
	}, []string{"scope"})

	RouteSearches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "planner_route_searches_total",
		Help: "Number of bus route searches, by outcome",
	}, []string{"outcome"})

	ResultCacheRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "planner_result_cache_requests_total",
		Help: "Lookups of the filtered and sorted result cache (hit or miss)",
	}, []string{"result"})

	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "planner_active_sessions",
		Help: "Number of planner sessions currently held in memory",
	})
)

var (
	NetworkSize = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "planner_network_entities",
		Help: "Number of stops, buses and directional routes in the loaded network",
	}, []string{"feed", "kind"})

	BundleEarliestExpirationGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "planner_gtfs_days_until_earliest_expiration",
		Help: "Number of days until the earliest service in the GTFS bundle expires",
	}, []string{"feed"})

	BundleLatestExpirationGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "planner_gtfs_days_until_latest_expiration",
		Help: "Number of days until the latest service in the GTFS bundle expires",
	}, []string{"feed"})
)
