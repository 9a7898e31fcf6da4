package export

import (
	"encoding/json"
	"math"
	"strings"
	"testing"
	"time"

	"fieldtrack/internal/model"
)

func route() model.RouteHistoryEntry {
	alt := 35.5
	start := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	end := start.Add(20 * time.Minute)
	return model.RouteHistoryEntry{
		ID:         "route_1",
		JobID:      "J1",
		PropertyID: "P1",
		StartTime:  start,
		EndTime:    &end,
		RoutePoints: []model.Coordinates{
			{Latitude: 51.5, Longitude: -0.12, Altitude: &alt},
			{Latitude: 51.501, Longitude: -0.121},
			{Latitude: 51.502, Longitude: -0.122},
		},
		TotalDistanceMeters:     260,
		EstimatedDistanceMeters: 300,
	}
}

func TestGeoJSONLineString(t *testing.T) {
	data, err := json.Marshal(GeoJSON(route()))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var doc struct {
		Type     string `json:"type"`
		ID       string `json:"id"`
		Geometry struct {
			Type        string      `json:"type"`
			Coordinates [][]float64 `json:"coordinates"`
		} `json:"geometry"`
		Properties map[string]any `json:"properties"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if doc.Type != "Feature" || doc.ID != "route_1" || doc.Geometry.Type != "LineString" {
		t.Fatalf("unexpected feature %s", data)
	}
	if len(doc.Geometry.Coordinates) != 3 || doc.Geometry.Coordinates[0][0] != -0.12 || doc.Geometry.Coordinates[0][1] != 51.5 {
		t.Fatalf("coordinates must be [lon, lat]: %v", doc.Geometry.Coordinates)
	}
	if doc.Properties["jobId"] != "J1" || doc.Properties["totalDistanceMeters"] != 260.0 {
		t.Fatalf("properties %v", doc.Properties)
	}
}

func TestGeoJSONSinglePoint(t *testing.T) {
	e := route()
	e.RoutePoints = e.RoutePoints[:1]
	f := GeoJSON(e)
	if f.Geometry.GeoJSONType() != "Point" {
		t.Fatalf("want Point geometry, got %s", f.Geometry.GeoJSONType())
	}
}

func TestGeoJSONCollection(t *testing.T) {
	fc := GeoJSONCollection([]model.RouteHistoryEntry{route(), route()})
	if len(fc.Features) != 2 {
		t.Fatalf("want 2 features, got %d", len(fc.Features))
	}
}

func TestGPXRoundTrip(t *testing.T) {
	data, err := GPXBytes(route())
	if err != nil {
		t.Fatalf("GPXBytes: %v", err)
	}
	if !strings.Contains(string(data), "<trkpt") {
		t.Fatalf("no track points in %s", data)
	}
	pts, err := PointsFromGPX(data)
	if err != nil {
		t.Fatalf("PointsFromGPX: %v", err)
	}
	want := route().RoutePoints
	if len(pts) != len(want) {
		t.Fatalf("want %d points, got %d", len(want), len(pts))
	}
	for i := range want {
		if math.Abs(pts[i].Latitude-want[i].Latitude) > 1e-9 || math.Abs(pts[i].Longitude-want[i].Longitude) > 1e-9 {
			t.Fatalf("point %d: got %+v want %+v", i, pts[i], want[i])
		}
	}
	if pts[0].Altitude == nil || math.Abs(*pts[0].Altitude-35.5) > 1e-9 {
		t.Fatalf("elevation lost: %+v", pts[0])
	}
	if pts[1].Altitude != nil {
		t.Fatalf("unexpected elevation on point without altitude")
	}
}

func TestPointsFromGPXRejectsGarbage(t *testing.T) {
	if _, err := PointsFromGPX([]byte("not xml")); err == nil {
		t.Fatalf("expected parse error")
	}
}
