package api

import (
	"net/http"
	"time"

	"fieldtrack/internal/geo"
	"fieldtrack/internal/location"
	"fieldtrack/internal/metrics"
	"fieldtrack/internal/model"
)

// FixesHandler handles POST /v1/fixes: a device (or a test harness) pushes one
// location reading, or a platform error, into the live feed.
func (s *Server) FixesHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req fixRequest
	if err := decodeBody(r, &req); err != nil {
		metrics.Fixes.WithLabelValues("http", "rejected").Inc()
		writeProblem(w, http.StatusBadRequest, "Invalid fix", err.Error(), r.URL.Path)
		return
	}
	ts := time.Now().UTC()
	if req.Timestamp != nil {
		ts = time.UnixMilli(*req.Timestamp).UTC()
	}
	if req.Error != nil {
		metrics.Fixes.WithLabelValues("http", "error").Inc()
		s.Feed.Publish(location.Update{Timestamp: ts, Err: &location.Error{Code: location.ErrorCode(req.Error.Code), Message: req.Error.Message}})
		writeJSON(w, http.StatusAccepted, map[string]any{"accepted": true})
		return
	}
	fix := model.Coordinates{
		Latitude:         *req.Latitude,
		Longitude:        *req.Longitude,
		Accuracy:         req.Accuracy,
		Altitude:         req.Altitude,
		AltitudeAccuracy: req.AltitudeAccuracy,
	}
	if err := geo.ValidateCoordinates(fix); err != nil {
		metrics.Fixes.WithLabelValues("http", "rejected").Inc()
		writeError(w, r, "Invalid fix", err)
		return
	}
	metrics.Fixes.WithLabelValues("http", "accepted").Inc()
	s.Feed.Publish(location.Update{Coords: fix, Timestamp: ts})
	writeJSON(w, http.StatusAccepted, map[string]any{"accepted": true})
}

type locationView struct {
	Coords    model.Coordinates `json:"coords"`
	Timestamp time.Time         `json:"timestamp"`
	Proximity string            `json:"proximity,omitempty"`
}

// LocationHandler handles GET /v1/location: the latest fix seen by the feed.
func (s *Server) LocationHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	u, ok := s.Feed.Last()
	if !ok {
		writeError(w, r, "No location", &location.Error{Code: location.PositionUnavailable, Message: "no fix received yet"})
		return
	}
	v := locationView{Coords: u.Coords, Timestamp: u.Timestamp}
	if st := s.Detector.Status(); st.DistanceMeters != nil {
		v.Proximity = st.Proximity
	}
	writeJSON(w, http.StatusOK, v)
}
