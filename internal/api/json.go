package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"fieldtrack/internal/geo"
	"fieldtrack/internal/history"
	"fieldtrack/internal/location"
	"fieldtrack/internal/polyline"
	"fieldtrack/internal/tracking"
)

// Problem represents an RFC7807 problem details response body.
type Problem struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
	// Code carries a location error code (PERMISSION_DENIED, TIMEOUT, ...).
	Code string `json:"code,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeProblem(w http.ResponseWriter, status int, title, detail, instance string) {
	writeJSON(w, status, Problem{
		Type:     "about:blank",
		Title:    title,
		Status:   status,
		Detail:   detail,
		Instance: instance,
	})
}

// writeError maps domain errors onto problem responses.
func writeError(w http.ResponseWriter, r *http.Request, title string, err error) {
	var lerr *location.Error
	if errors.As(err, &lerr) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(Problem{
			Type: "about:blank", Title: title, Status: http.StatusServiceUnavailable,
			Detail: lerr.Message, Instance: r.URL.Path, Code: string(lerr.Code),
		})
		return
	}
	writeProblem(w, statusFor(err), title, err.Error(), r.URL.Path)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, geo.ErrInvalidCoordinates),
		errors.Is(err, history.ErrInvalidSnapshot),
		errors.Is(err, polyline.ErrMalformed):
		return http.StatusBadRequest
	case errors.Is(err, history.ErrRouteActive),
		errors.Is(err, history.ErrNoActiveRoute),
		errors.Is(err, tracking.ErrNoFix):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// decodeBody decodes a JSON request body into v and validates it. An empty body
// leaves v untouched.
func decodeBody(r *http.Request, v any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return validate.Struct(v)
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return validate.Struct(v)
}
