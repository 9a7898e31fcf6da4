// Package geo provides great-circle distance, geofence membership and proximity helpers.
package geo

import (
	"math"

	"fieldtrack/internal/model"
)

// EarthRadiusMeters is the mean Earth radius used by every distance calculation.
const EarthRadiusMeters = 6371000.0

// CalculateDistance returns the Haversine distance in meters between two points given in degrees.
func CalculateDistance(lat1, lon1, lat2, lon2 float64) float64 {
	if lat1 == lat2 && lon1 == lon2 {
		return 0
	}
	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)
	// rounding can push a slightly past 1 for antipodal points
	a = math.Min(1, math.Max(0, a))
	return EarthRadiusMeters * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

// Distance is CalculateDistance over two fixes.
func Distance(a, b model.Coordinates) float64 {
	return CalculateDistance(a.Latitude, a.Longitude, b.Latitude, b.Longitude)
}

// PathDistance sums the distances between consecutive points.
func PathDistance(points []model.Coordinates) float64 {
	total := 0.0
	for i := 1; i < len(points); i++ {
		total += Distance(points[i-1], points[i])
	}
	return total
}

// IsWithinRadius reports whether b lies within radiusMeters of a, boundary included.
func IsWithinRadius(a, b model.Coordinates, radiusMeters float64) bool {
	return Distance(a, b) <= radiusMeters
}

// Bearing returns the initial great-circle bearing from a to b in degrees, in [0, 360).
func Bearing(a, b model.Coordinates) float64 {
	lat1 := toRad(a.Latitude)
	lat2 := toRad(b.Latitude)
	dLon := toRad(b.Longitude - a.Longitude)
	y := math.Sin(dLon) * math.Cos(lat2)
	x := math.Cos(lat1)*math.Sin(lat2) - math.Sin(lat1)*math.Cos(lat2)*math.Cos(dLon)
	deg := math.Atan2(y, x) * 180 / math.Pi
	return math.Mod(deg+360, 360)
}

func toRad(deg float64) float64 {
	return deg * math.Pi / 180
}
