package geo

import (
	"errors"
	"fmt"
	"math"

	"fieldtrack/internal/model"
)

// ErrInvalidCoordinates marks a fix outside the valid latitude/longitude range.
var ErrInvalidCoordinates = errors.New("invalid coordinates")

// Proximity tiers in meters. The arrival engine defaults reuse ArrivalThreshold and NearbyThreshold.
const (
	ExactThreshold   = 10.0
	ArrivalThreshold = 50.0
	NearbyThreshold  = 200.0
	AreaThreshold    = 500.0
	WideThreshold    = 2000.0
)

// IsValidCoordinates checks lat in [-90,90] and lon in [-180,180], rejecting NaN and Inf.
func IsValidCoordinates(c model.Coordinates) bool {
	return ValidateCoordinates(c) == nil
}

// ValidateCoordinates is IsValidCoordinates with a reason suitable for logging.
func ValidateCoordinates(c model.Coordinates) error {
	if math.IsNaN(c.Latitude) || math.IsInf(c.Latitude, 0) {
		return fmt.Errorf("%w: latitude is not a finite number", ErrInvalidCoordinates)
	}
	if math.IsNaN(c.Longitude) || math.IsInf(c.Longitude, 0) {
		return fmt.Errorf("%w: longitude is not a finite number", ErrInvalidCoordinates)
	}
	if c.Latitude < -90 || c.Latitude > 90 {
		return fmt.Errorf("%w: latitude %.6f must be between -90 and 90", ErrInvalidCoordinates, c.Latitude)
	}
	if c.Longitude < -180 || c.Longitude > 180 {
		return fmt.Errorf("%w: longitude %.6f must be between -180 and 180", ErrInvalidCoordinates, c.Longitude)
	}
	return nil
}

// Geofence is a circular region around a center point.
type Geofence struct {
	Center       model.Coordinates
	RadiusMeters float64
}

// NewGeofence builds a Geofence from its serialized config.
func NewGeofence(cfg model.GeofenceConfig) Geofence {
	return Geofence{
		Center:       model.Coordinates{Latitude: cfg.CenterLat, Longitude: cfg.CenterLon},
		RadiusMeters: cfg.RadiusMeters,
	}
}

// Config returns the serializable form of g.
func (g Geofence) Config() model.GeofenceConfig {
	return model.GeofenceConfig{CenterLat: g.Center.Latitude, CenterLon: g.Center.Longitude, RadiusMeters: g.RadiusMeters}
}

// DistanceTo returns the distance in meters from the geofence center to p.
func (g Geofence) DistanceTo(p model.Coordinates) float64 {
	return Distance(g.Center, p)
}

// Contains reports whether p is inside the geofence, boundary included.
func (g Geofence) Contains(p model.Coordinates) bool {
	return IsWithinRadius(g.Center, p, g.RadiusMeters)
}

// FormatDistance renders meters below 1000 as whole meters, otherwise kilometers to one decimal.
func FormatDistance(meters float64) string {
	if meters < 1000 {
		return fmt.Sprintf("%d m", int(math.Round(meters)))
	}
	return fmt.Sprintf("%.1f km", meters/1000)
}

// ProximityDescription maps a distance onto a human readable tier.
func ProximityDescription(meters float64) string {
	switch {
	case meters <= ExactThreshold:
		return "at location"
	case meters <= ArrivalThreshold:
		return "very close"
	case meters <= NearbyThreshold:
		return "nearby"
	case meters <= AreaThreshold:
		return "in the area"
	case meters <= WideThreshold:
		return "a few minutes away"
	default:
		return "far away"
	}
}
