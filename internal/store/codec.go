package store

import (
	"encoding/json"
	"fmt"
	"time"

	"fieldtrack/internal/model"
)

// entryRecord is the persisted layout of a RouteHistoryEntry.
// Time fields are ISO-8601 strings so that any backend (file, KV, JSONB) stores plain JSON.
type entryRecord struct {
	ID                      string              `json:"id"`
	JobID                   string              `json:"jobId"`
	PropertyID              string              `json:"propertyId"`
	StartTime               string              `json:"startTime"`
	EndTime                 string              `json:"endTime,omitempty"`
	StartLocation           model.Coordinates   `json:"startLocation"`
	EndLocation             *model.Coordinates  `json:"endLocation,omitempty"`
	RoutePoints             []model.Coordinates `json:"routePoints"`
	TotalDistanceMeters     float64             `json:"totalDistanceMeters"`
	EstimatedDistanceMeters float64             `json:"estimatedDistanceMeters"`
	SyncedToServer          bool                `json:"syncedToServer"`
	Metadata                map[string]any      `json:"metadata,omitempty"`
}

const timeLayout = time.RFC3339Nano

func toRecord(e model.RouteHistoryEntry) entryRecord {
	rec := entryRecord{
		ID:                      e.ID,
		JobID:                   e.JobID,
		PropertyID:              e.PropertyID,
		StartTime:               e.StartTime.UTC().Format(timeLayout),
		StartLocation:           e.StartLocation,
		EndLocation:             e.EndLocation,
		RoutePoints:             e.RoutePoints,
		TotalDistanceMeters:     e.TotalDistanceMeters,
		EstimatedDistanceMeters: e.EstimatedDistanceMeters,
		SyncedToServer:          e.SyncedToServer,
		Metadata:                e.Metadata,
	}
	if e.EndTime != nil {
		rec.EndTime = e.EndTime.UTC().Format(timeLayout)
	}
	if rec.RoutePoints == nil {
		rec.RoutePoints = []model.Coordinates{}
	}
	return rec
}

func fromRecord(rec entryRecord) (model.RouteHistoryEntry, error) {
	start, err := time.Parse(timeLayout, rec.StartTime)
	if err != nil {
		return model.RouteHistoryEntry{}, fmt.Errorf("route %s: startTime: %w", rec.ID, err)
	}
	e := model.RouteHistoryEntry{
		ID:                      rec.ID,
		JobID:                   rec.JobID,
		PropertyID:              rec.PropertyID,
		StartTime:               start,
		StartLocation:           rec.StartLocation,
		EndLocation:             rec.EndLocation,
		RoutePoints:             rec.RoutePoints,
		TotalDistanceMeters:     rec.TotalDistanceMeters,
		EstimatedDistanceMeters: rec.EstimatedDistanceMeters,
		SyncedToServer:          rec.SyncedToServer,
		Metadata:                rec.Metadata,
	}
	if rec.EndTime != "" {
		end, err := time.Parse(timeLayout, rec.EndTime)
		if err != nil {
			return model.RouteHistoryEntry{}, fmt.Errorf("route %s: endTime: %w", rec.ID, err)
		}
		e.EndTime = &end
	}
	if e.RoutePoints == nil {
		e.RoutePoints = []model.Coordinates{}
	}
	return e, nil
}

// EncodeEntry serializes one entry.
func EncodeEntry(e model.RouteHistoryEntry) ([]byte, error) {
	return json.Marshal(toRecord(e))
}

// DecodeEntry parses one entry, rehydrating time fields.
func DecodeEntry(data []byte) (model.RouteHistoryEntry, error) {
	var rec entryRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return model.RouteHistoryEntry{}, err
	}
	return fromRecord(rec)
}

// EncodeHistory serializes the history array.
func EncodeHistory(entries []model.RouteHistoryEntry) ([]byte, error) {
	recs := make([]entryRecord, 0, len(entries))
	for _, e := range entries {
		recs = append(recs, toRecord(e))
	}
	return json.Marshal(recs)
}

// DecodeHistory parses the history array.
func DecodeHistory(data []byte) ([]model.RouteHistoryEntry, error) {
	var recs []entryRecord
	if err := json.Unmarshal(data, &recs); err != nil {
		return nil, err
	}
	out := make([]model.RouteHistoryEntry, 0, len(recs))
	for _, rec := range recs {
		e, err := fromRecord(rec)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}
