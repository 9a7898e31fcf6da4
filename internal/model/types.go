package model

import "time"

// Core domain types shared by the engines, the history store and the API.

// Coordinates is a single location fix as reported by a device.
type Coordinates struct {
	Latitude         float64  `json:"latitude"`
	Longitude        float64  `json:"longitude"`
	Accuracy         *float64 `json:"accuracy,omitempty"`
	Altitude         *float64 `json:"altitude,omitempty"`
	AltitudeAccuracy *float64 `json:"altitudeAccuracy,omitempty"`
}

// SamePosition reports whether c and o share latitude and longitude exactly.
func (c Coordinates) SamePosition(o Coordinates) bool {
	return c.Latitude == o.Latitude && c.Longitude == o.Longitude
}

// Clone returns a copy that shares no pointers with c.
func (c Coordinates) Clone() Coordinates {
	out := Coordinates{Latitude: c.Latitude, Longitude: c.Longitude}
	if c.Accuracy != nil {
		v := *c.Accuracy
		out.Accuracy = &v
	}
	if c.Altitude != nil {
		v := *c.Altitude
		out.Altitude = &v
	}
	if c.AltitudeAccuracy != nil {
		v := *c.AltitudeAccuracy
		out.AltitudeAccuracy = &v
	}
	return out
}

// GeofenceConfig is a circular region.
type GeofenceConfig struct {
	CenterLat    float64 `json:"centerLat"`
	CenterLon    float64 `json:"centerLon"`
	RadiusMeters float64 `json:"radiusMeters"`
}

// ArrivalEvent is emitted once per job session when the device enters the arrival radius.
type ArrivalEvent struct {
	JobID                string      `json:"jobId"`
	ArrivalTime          time.Time   `json:"arrivalTime"`
	DistanceFromProperty float64     `json:"distanceFromProperty"`
	ArrivalLocation      Coordinates `json:"arrivalLocation"`
	PropertyLocation     Coordinates `json:"propertyLocation"`
}

// RouteHistoryEntry is one tracking session. EndTime is nil while the session is active.
type RouteHistoryEntry struct {
	ID                      string         `json:"id"`
	JobID                   string         `json:"jobId"`
	PropertyID              string         `json:"propertyId"`
	StartTime               time.Time      `json:"startTime"`
	EndTime                 *time.Time     `json:"endTime,omitempty"`
	StartLocation           Coordinates    `json:"startLocation"`
	EndLocation             *Coordinates   `json:"endLocation,omitempty"`
	RoutePoints             []Coordinates  `json:"routePoints"`
	TotalDistanceMeters     float64        `json:"totalDistanceMeters"`
	EstimatedDistanceMeters float64        `json:"estimatedDistanceMeters"`
	SyncedToServer          bool           `json:"syncedToServer"`
	Metadata                map[string]any `json:"metadata,omitempty"`
}

// Finalized reports whether the entry has been moved into history.
func (e RouteHistoryEntry) Finalized() bool { return e.EndTime != nil }

// Clone returns a deep copy. Metadata values are copied one level deep.
func (e RouteHistoryEntry) Clone() RouteHistoryEntry {
	out := e
	out.StartLocation = e.StartLocation.Clone()
	if e.EndTime != nil {
		t := *e.EndTime
		out.EndTime = &t
	}
	if e.EndLocation != nil {
		c := e.EndLocation.Clone()
		out.EndLocation = &c
	}
	if e.RoutePoints != nil {
		out.RoutePoints = make([]Coordinates, len(e.RoutePoints))
		for i, p := range e.RoutePoints {
			out.RoutePoints[i] = p.Clone()
		}
	}
	if e.Metadata != nil {
		out.Metadata = make(map[string]any, len(e.Metadata))
		for k, v := range e.Metadata {
			out.Metadata[k] = v
		}
	}
	return out
}

// Stats aggregates the finalized history.
type Stats struct {
	TotalRoutes           int        `json:"totalRoutes"`
	TotalDistanceMeters   float64    `json:"totalDistanceMeters"`
	TotalEstimatedMeters  float64    `json:"totalEstimatedMeters"`
	AverageDistanceMeters float64    `json:"averageDistanceMeters"`
	UnsyncedCount         int        `json:"unsyncedCount"`
	FirstRouteAt          *time.Time `json:"firstRouteAt,omitempty"`
	LastRouteAt           *time.Time `json:"lastRouteAt,omitempty"`
}

// SnapshotVersion is bumped when the export layout changes incompatibly.
const SnapshotVersion = 1

// Snapshot is the full export/import payload.
type Snapshot struct {
	Version     int                 `json:"version"`
	ExportedAt  time.Time           `json:"exportedAt"`
	History     []RouteHistoryEntry `json:"history"`
	ActiveRoute *RouteHistoryEntry  `json:"activeRoute,omitempty"`
	Stats       Stats               `json:"stats"`
}
