package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	// Registry is the dedicated Prometheus registry for the tracker
	Registry = prometheus.NewRegistry()
	// HTTPRequests counts requests by method, path, and status
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "http_requests_total", Help: "Total HTTP requests."},
		[]string{"method", "path", "status"},
	)
	// HTTPDuration records request durations in seconds
	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "HTTP request duration in seconds.", Buckets: prometheus.DefBuckets},
		[]string{"method", "path", "status"},
	)

	// Fixes counts location fixes by source and outcome (accepted, rejected, error)
	Fixes = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "fieldtrack_fixes_total", Help: "Location fixes received by source and outcome."},
		[]string{"source", "outcome"},
	)
	Breadcrumbs = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "fieldtrack_breadcrumbs_total", Help: "Breadcrumbs recorded by trigger."},
		[]string{"trigger"},
	)
	// ArrivalEvents counts approach and arrival transitions
	ArrivalEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "fieldtrack_arrival_events_total", Help: "Arrival engine events by kind."},
		[]string{"kind"},
	)
	Routes = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "fieldtrack_routes_total", Help: "Route sessions by outcome (started, completed, cancelled)."},
		[]string{"outcome"},
	)
	// RouteDistance observes the total distance of completed routes in meters
	RouteDistance = prometheus.NewHistogram(
		prometheus.HistogramOpts{Name: "fieldtrack_route_distance_meters", Help: "Distance of completed routes.", Buckets: []float64{100, 500, 1000, 2000, 5000, 10000, 25000, 50000, 100000}},
	)
	StoreErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "fieldtrack_store_errors_total", Help: "Persistence failures by operation."},
		[]string{"op"},
	)
	// SyncPushes counts sync attempts by status
	SyncPushes = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "fieldtrack_sync_pushes_total", Help: "Sync pushes by status."},
		[]string{"status"},
	)
	// SyncLatency tracks sync push latencies in milliseconds
	SyncLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "fieldtrack_sync_latency_ms", Help: "Sync push latency in ms.", Buckets: []float64{10, 50, 100, 200, 500, 1000, 2000, 5000}},
		[]string{"status"},
	)
	EventsPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "fieldtrack_events_published_total", Help: "Events published by sink and status."},
		[]string{"sink", "status"},
	)
)

// RegisterDefault registers collectors to the default registry.
func RegisterDefault() {
	regOnce.Do(func() {
		Registry.MustRegister(HTTPRequests)
		Registry.MustRegister(HTTPDuration)
		Registry.MustRegister(Fixes)
		Registry.MustRegister(Breadcrumbs)
		Registry.MustRegister(ArrivalEvents)
		Registry.MustRegister(Routes)
		Registry.MustRegister(RouteDistance)
		Registry.MustRegister(StoreErrors)
		Registry.MustRegister(SyncPushes)
		Registry.MustRegister(SyncLatency)
		Registry.MustRegister(EventsPublished)
		// Go/process collectors on our registry
		Registry.MustRegister(collectors.NewGoCollector())
		Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}

var regOnce sync.Once
