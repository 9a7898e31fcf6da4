package api

import (
	"context"
	"net/http"
	"runtime"
	"sort"
	"time"

	"fieldtrack/internal/buildinfo"
)

func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ReadyHandler runs every readiness check and reports each dependency.
func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
	names := make([]string, 0, len(s.Checks))
	for name := range s.Checks {
		names = append(names, name)
	}
	sort.Strings(names)
	deps := map[string]string{}
	ready := true
	for _, name := range names {
		ctx, cancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
		err := s.Checks[name](ctx)
		cancel()
		if err != nil {
			deps[name] = "unhealthy: " + err.Error()
			ready = false
			continue
		}
		deps[name] = "healthy"
	}
	if !ready {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "not ready", "dependencies": deps})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready", "dependencies": deps})
}

func (s *Server) DebugJSON(w http.ResponseWriter, r *http.Request) {
	info := map[string]any{
		"build":      buildinfo.Info(),
		"time":       time.Now().UTC().Format(time.RFC3339),
		"goroutines": runtime.NumGoroutine(),
		"tracking":   s.Tracker.Status(),
		"routes":     s.History.Stats(),
		"config": map[string]any{
			"tracking":    s.Tracker.Config(),
			"subscribers": s.Feed.Subscribers(),
			"checks":      len(s.Checks),
		},
	}
	writeJSON(w, http.StatusOK, info)
}
