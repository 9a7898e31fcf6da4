package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"fieldtrack/internal/events"
	"fieldtrack/internal/export"
	"fieldtrack/internal/history"
	"fieldtrack/internal/model"
)

// RoutesIndexHandler handles GET /v1/routes?jobId=&propertyId= and DELETE /v1/routes.
func (s *Server) RoutesIndexHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		q := r.URL.Query()
		var items []model.RouteHistoryEntry
		switch {
		case q.Get("jobId") != "":
			items = s.History.ByJobID(q.Get("jobId"))
		case q.Get("propertyId") != "":
			items = s.History.ByPropertyID(q.Get("propertyId"))
		default:
			items = s.History.All()
		}
		if items == nil {
			items = []model.RouteHistoryEntry{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items})
	case http.MethodDelete:
		if err := s.History.ClearAll(r.Context()); err != nil {
			if !errors.Is(err, history.ErrPersist) {
				writeError(w, r, "Clear failed", err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"cleared": true, "warning": err.Error()})
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// RouteByIDHandler handles the /v1/routes/ subtree:
// stats, unsynced, synced, {id}, {id}/geojson and {id}/gpx.
func (s *Server) RouteByIDHandler(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/routes/")
	if rest == "" {
		writeProblem(w, http.StatusNotFound, "Not Found", "missing id", r.URL.Path)
		return
	}
	parts := strings.Split(rest, "/")
	switch parts[0] {
	case "stats":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, http.StatusOK, s.History.Stats())
		return
	case "unsynced":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		items := s.History.Unsynced()
		if items == nil {
			items = []model.RouteHistoryEntry{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items})
		return
	case "synced":
		s.markSynced(w, r)
		return
	}

	id := parts[0]
	if len(parts) > 1 {
		if r.Method != http.MethodGet || len(parts) > 2 {
			writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
			return
		}
		e, ok := s.History.Get(id)
		if !ok {
			writeProblem(w, http.StatusNotFound, "Route not found", id, r.URL.Path)
			return
		}
		switch parts[1] {
		case "geojson":
			w.Header().Set("Content-Type", "application/geo+json")
			_ = json.NewEncoder(w).Encode(export.GeoJSON(e))
		case "gpx":
			b, err := export.GPXBytes(e)
			if err != nil {
				writeError(w, r, "GPX export failed", err)
				return
			}
			w.Header().Set("Content-Type", "application/gpx+xml")
			w.Header().Set("Content-Disposition", `attachment; filename="`+id+`.gpx"`)
			_, _ = w.Write(b)
		default:
			writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
		}
		return
	}

	switch r.Method {
	case http.MethodGet:
		e, ok := s.History.Get(id)
		if !ok {
			writeProblem(w, http.StatusNotFound, "Route not found", id, r.URL.Path)
			return
		}
		writeJSON(w, http.StatusOK, e)
	case http.MethodDelete:
		deleted, err := s.History.Delete(r.Context(), id)
		if !deleted {
			writeProblem(w, http.StatusNotFound, "Route not found", id, r.URL.Path)
			return
		}
		if err != nil {
			if !errors.Is(err, history.ErrPersist) {
				writeError(w, r, "Delete failed", err)
				return
			}
			// removed in memory; the next successful write persists it
			writeJSON(w, http.StatusOK, map[string]any{"deleted": id, "warning": err.Error()})
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// markSynced handles POST /v1/routes/synced {ids}.
func (s *Server) markSynced(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req idsRequest
	if err := decodeBody(r, &req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid ids", err.Error(), r.URL.Path)
		return
	}
	n, err := s.History.MarkSynced(r.Context(), req.IDs)
	if err != nil && !errors.Is(err, history.ErrPersist) {
		writeError(w, r, "Mark synced failed", err)
		return
	}
	if n > 0 && s.Events != nil {
		s.Events.Emit(events.RouteSynced, "", map[string]any{"routeIds": req.IDs, "count": n})
	}
	resp := map[string]any{"updated": n}
	if err != nil {
		resp["warning"] = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

// ExportHandler handles GET /v1/export. format=geojson returns a feature
// collection of finalized routes instead of the full snapshot.
func (s *Server) ExportHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if r.URL.Query().Get("format") == "geojson" {
		w.Header().Set("Content-Type", "application/geo+json")
		_ = json.NewEncoder(w).Encode(export.GeoJSONCollection(s.History.All()))
		return
	}
	b, err := s.History.ExportJSON()
	if err != nil {
		writeError(w, r, "Export failed", err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(b)
}

// ImportHandler handles POST /v1/import with a snapshot produced by /v1/export.
func (s *Server) ImportHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	data, err := io.ReadAll(io.LimitReader(r.Body, 32<<20))
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid body", err.Error(), r.URL.Path)
		return
	}
	if err := s.History.ImportJSON(r.Context(), data); err != nil {
		if !errors.Is(err, history.ErrPersist) {
			writeError(w, r, "Import failed", err)
			return
		}
		// imported in memory, the store write will be retried by the next mutation
		writeJSON(w, http.StatusOK, map[string]any{"stats": s.History.Stats(), "warning": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"stats": s.History.Stats()})
}
