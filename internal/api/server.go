// Package api is the HTTP and WebSocket surface over the tracking engines and
// the route history.
package api

import (
	"bufio"
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"fieldtrack/internal/arrival"
	"fieldtrack/internal/events"
	"fieldtrack/internal/history"
	"fieldtrack/internal/location"
	"fieldtrack/internal/metrics"
	"fieldtrack/internal/tracking"
)

// Check is a readiness probe for one dependency.
type Check func(ctx context.Context) error

type Server struct {
	History  *history.History
	Tracker  *tracking.Tracker
	Detector *arrival.Detector
	Feed     *location.Feed
	Broker   events.Broker
	// Events, when set, receives events raised by API calls (route.synced).
	Events *events.Fanout
	Checks map[string]Check
	Logger *log.Logger
}

// Handler registers every route on a fresh mux wrapped in the logging and
// metrics middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Health
	mux.HandleFunc("/healthz", s.HealthHandler)
	mux.HandleFunc("/readyz", s.ReadyHandler)
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/debug/info", s.DebugJSON)

	// Location input
	mux.HandleFunc("/v1/fixes", s.FixesHandler)
	mux.HandleFunc("/v1/location", s.LocationHandler)

	// Engines
	mux.HandleFunc("/v1/tracking/", s.TrackingHandler)
	mux.HandleFunc("/v1/arrival/", s.ArrivalHandler)

	// Route history
	mux.HandleFunc("/v1/routes", s.RoutesIndexHandler)
	mux.HandleFunc("/v1/routes/", s.RouteByIDHandler) // includes stats, unsynced, synced, /geojson, /gpx
	mux.HandleFunc("/v1/export", s.ExportHandler)
	mux.HandleFunc("/v1/import", s.ImportHandler)

	mux.HandleFunc("/v1/polyline/", s.PolylineHandler)

	// Event streams
	mux.HandleFunc("/v1/events/ws", s.EventsWSHandler)
	mux.HandleFunc("/v1/events/stream", s.EventsStreamHandler)

	return logMiddleware(s.logger(), mux)
}

func (s *Server) logger() *log.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return log.Default()
}

// statusRecorder captures the response code for logging and metrics.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	if r.status == http.StatusOK {
		r.status = http.StatusSwitchingProtocols
	}
	return h.Hijack()
}

func (r *statusRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }

func logMiddleware(l *log.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		dur := time.Since(start)
		path := routeLabel(r.URL.Path)
		status := strconv.Itoa(rec.status)
		metrics.HTTPRequests.WithLabelValues(r.Method, path, status).Inc()
		metrics.HTTPDuration.WithLabelValues(r.Method, path, status).Observe(dur.Seconds())
		l.Printf("%s %s %s %d %v", r.RemoteAddr, r.Method, r.URL.Path, rec.status, dur)
	})
}

// routeLabel collapses route ids so the path label stays low-cardinality.
func routeLabel(p string) string {
	const prefix = "/v1/routes/"
	if len(p) <= len(prefix) || p[:len(prefix)] != prefix {
		return p
	}
	rest := p[len(prefix):]
	switch rest {
	case "stats", "unsynced", "synced":
		return p
	}
	for i := 0; i < len(rest); i++ {
		if rest[i] == '/' {
			return prefix + "{id}" + rest[i:]
		}
	}
	return prefix + "{id}"
}
