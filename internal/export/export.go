// Package export renders finalized routes as GeoJSON and GPX for mapping tools.
package export

import (
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/tkrajina/gpxgo/gpx"

	"fieldtrack/internal/model"
)

// GeoJSON returns the route as a Feature: a LineString of its breadcrumbs (a Point
// for single-point routes) with the route summary as properties.
func GeoJSON(e model.RouteHistoryEntry) *geojson.Feature {
	var g orb.Geometry
	if len(e.RoutePoints) == 1 {
		g = toPoint(e.RoutePoints[0])
	} else {
		ls := make(orb.LineString, 0, len(e.RoutePoints))
		for _, p := range e.RoutePoints {
			ls = append(ls, toPoint(p))
		}
		g = ls
	}
	f := geojson.NewFeature(g)
	f.ID = e.ID
	f.Properties["jobId"] = e.JobID
	f.Properties["propertyId"] = e.PropertyID
	f.Properties["startTime"] = e.StartTime.UTC()
	if e.EndTime != nil {
		f.Properties["endTime"] = e.EndTime.UTC()
	}
	f.Properties["totalDistanceMeters"] = e.TotalDistanceMeters
	f.Properties["estimatedDistanceMeters"] = e.EstimatedDistanceMeters
	f.Properties["syncedToServer"] = e.SyncedToServer
	f.Properties["pointCount"] = len(e.RoutePoints)
	return f
}

// GeoJSONCollection renders several routes into one FeatureCollection.
func GeoJSONCollection(entries []model.RouteHistoryEntry) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, e := range entries {
		fc.Append(GeoJSON(e))
	}
	return fc
}

func toPoint(c model.Coordinates) orb.Point { return orb.Point{c.Longitude, c.Latitude} }

// GPX returns a document with one track holding the route breadcrumbs.
// Altitude becomes elevation; the first and last points carry the start and end times.
func GPX(e model.RouteHistoryEntry) *gpx.GPX {
	seg := gpx.GPXTrackSegment{}
	for i, p := range e.RoutePoints {
		pt := gpx.GPXPoint{Point: gpx.Point{Latitude: p.Latitude, Longitude: p.Longitude}}
		if p.Altitude != nil {
			pt.Elevation = *gpx.NewNullableFloat64(*p.Altitude)
		}
		switch {
		case i == 0:
			pt.Timestamp = e.StartTime.UTC()
		case i == len(e.RoutePoints)-1 && e.EndTime != nil:
			pt.Timestamp = e.EndTime.UTC()
		}
		seg.Points = append(seg.Points, pt)
	}
	start := e.StartTime.UTC()
	return &gpx.GPX{
		Creator:     "fieldtrack",
		Name:        e.ID,
		Description: fmt.Sprintf("job %s property %s", e.JobID, e.PropertyID),
		Time:        &start,
		Tracks: []gpx.GPXTrack{{
			Name:     e.ID,
			Type:     "field-visit",
			Segments: []gpx.GPXTrackSegment{seg},
		}},
	}
}

// GPXBytes renders GPX 1.1 XML.
func GPXBytes(e model.RouteHistoryEntry) ([]byte, error) {
	return GPX(e).ToXml(gpx.ToXmlParams{Version: "1.1", Indent: true})
}

// PointsFromGPX flattens every track and route in a GPX document into one point list.
// Used to feed recorded tracks to the simulator.
func PointsFromGPX(data []byte) ([]model.Coordinates, error) {
	doc, err := gpx.ParseBytes(data)
	if err != nil {
		return nil, fmt.Errorf("parse gpx: %w", err)
	}
	var out []model.Coordinates
	add := func(p gpx.GPXPoint) {
		c := model.Coordinates{Latitude: p.Latitude, Longitude: p.Longitude}
		if p.Elevation.NotNull() {
			v := p.Elevation.Value()
			c.Altitude = &v
		}
		out = append(out, c)
	}
	for _, trk := range doc.Tracks {
		for _, seg := range trk.Segments {
			for _, p := range seg.Points {
				add(p)
			}
		}
	}
	for _, rte := range doc.Routes {
		for _, p := range rte.Points {
			add(p)
		}
	}
	return out, nil
}
