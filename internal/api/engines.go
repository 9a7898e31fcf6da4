package api

import (
	"errors"
	"net/http"
	"strings"

	"fieldtrack/internal/geo"
	"fieldtrack/internal/history"
	"fieldtrack/internal/model"
	"fieldtrack/internal/polyline"
	"fieldtrack/internal/tracking"
)

// TrackingHandler handles /v1/tracking/{start,stop,cancel,status}.
func (s *Server) TrackingHandler(w http.ResponseWriter, r *http.Request) {
	action := strings.TrimPrefix(r.URL.Path, "/v1/tracking/")
	switch action {
	case "status":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, http.StatusOK, s.Tracker.Status())
		return
	case "start", "stop", "cancel":
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
	default:
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
		return
	}

	switch action {
	case "start":
		var req startRequest
		if err := decodeBody(r, &req); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid start request", err.Error(), r.URL.Path)
			return
		}
		in := tracking.StartInput{JobID: req.JobID, PropertyID: req.PropertyID, Metadata: req.Metadata}
		if req.EstimatedDistanceMeters != nil {
			in.EstimatedDistanceMeters = *req.EstimatedDistanceMeters
		}
		if req.RoutePolyline != "" {
			// the planned geometry doubles as the estimate when none is given
			length, err := polyline.Length(req.RoutePolyline, polyline.DefaultPrecision)
			if err != nil {
				writeError(w, r, "Invalid routePolyline", err)
				return
			}
			if req.EstimatedDistanceMeters == nil {
				in.EstimatedDistanceMeters = length
			}
			if in.Metadata == nil {
				in.Metadata = map[string]any{}
			}
			in.Metadata["routePolyline"] = req.RoutePolyline
		}
		id, err := s.Tracker.StartTracking(r.Context(), in)
		if id == "" {
			writeError(w, r, "Start tracking failed", err)
			return
		}
		resp := map[string]any{"routeId": id, "status": s.Tracker.Status()}
		if err != nil {
			resp["warning"] = err.Error()
		}
		writeJSON(w, http.StatusCreated, resp)
	case "stop":
		var req stopRequest
		if err := decodeBody(r, &req); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid stop request", err.Error(), r.URL.Path)
			return
		}
		entry, err := s.Tracker.StopTracking(r.Context(), req.Metadata)
		if entry == nil {
			writeError(w, r, "Stop tracking failed", err)
			return
		}
		resp := map[string]any{"route": entry}
		if err != nil {
			resp["warning"] = err.Error()
		}
		writeJSON(w, http.StatusOK, resp)
	case "cancel":
		cancelled, err := s.Tracker.CancelTracking(r.Context())
		if !cancelled {
			if err == nil {
				err = history.ErrNoActiveRoute
			}
			writeError(w, r, "Cancel tracking failed", err)
			return
		}
		resp := map[string]any{"cancelled": true}
		if err != nil {
			resp["warning"] = err.Error()
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

var errNoTarget = errors.New("arrival detector has no fix to trigger on, or already arrived")

// ArrivalHandler handles /v1/arrival/{target,status,trigger,reset}.
func (s *Server) ArrivalHandler(w http.ResponseWriter, r *http.Request) {
	action := strings.TrimPrefix(r.URL.Path, "/v1/arrival/")
	if action == "status" {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, http.StatusOK, s.Detector.Status())
		return
	}
	if action != "target" && action != "trigger" && action != "reset" {
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
		return
	}
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	switch action {
	case "target":
		var req targetRequest
		if err := decodeBody(r, &req); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid target", err.Error(), r.URL.Path)
			return
		}
		target := model.Coordinates{Latitude: *req.Latitude, Longitude: *req.Longitude}
		if err := geo.ValidateCoordinates(target); err != nil {
			writeError(w, r, "Invalid target", err)
			return
		}
		s.Detector.Reset(req.JobID, target)
		// seed with the latest known fix so status is meaningful immediately
		if u, ok := s.Feed.Last(); ok {
			s.Detector.Update(u.Coords)
		}
		writeJSON(w, http.StatusOK, s.Detector.Status())
	case "trigger":
		if !s.Detector.TriggerArrival() {
			writeProblem(w, http.StatusConflict, "Trigger ignored", errNoTarget.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusOK, s.Detector.Status())
	case "reset":
		st := s.Detector.Status()
		s.Detector.Reset(st.JobID, st.Property)
		writeJSON(w, http.StatusOK, s.Detector.Status())
	}
}
