package api

import (
	"net/http"
	"strings"

	"fieldtrack/internal/geo"
	"fieldtrack/internal/model"
	"fieldtrack/internal/polyline"
)

// PolylineHandler handles POST /v1/polyline/decode and /v1/polyline/encode.
func (s *Server) PolylineHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	switch strings.TrimPrefix(r.URL.Path, "/v1/polyline/") {
	case "decode":
		var req decodeRequest
		if err := decodeBody(r, &req); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid decode request", err.Error(), r.URL.Path)
			return
		}
		if req.Precision == 0 {
			req.Precision = polyline.DefaultPrecision
		}
		points, err := polyline.DecodeWithPrecision(req.Polyline, req.Precision)
		if err != nil {
			writeError(w, r, "Decode failed", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"points":         points,
			"distanceMeters": geo.PathDistance(points),
		})
	case "encode":
		var req encodeRequest
		if err := decodeBody(r, &req); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid encode request", err.Error(), r.URL.Path)
			return
		}
		if req.Precision == 0 {
			req.Precision = polyline.DefaultPrecision
		}
		points := make([]model.Coordinates, len(req.Points))
		for i, p := range req.Points {
			points[i] = model.Coordinates{Latitude: p.Latitude, Longitude: p.Longitude}
		}
		writeJSON(w, http.StatusOK, map[string]any{"polyline": polyline.EncodeWithPrecision(points, req.Precision)})
	default:
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
	}
}
