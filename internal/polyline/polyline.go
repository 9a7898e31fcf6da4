// Package polyline implements Google's encoded polyline algorithm.
// The format is documented at https://developers.google.com/maps/documentation/utilities/polylinealgorithm
package polyline

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"fieldtrack/internal/geo"
	"fieldtrack/internal/model"
)

// DefaultPrecision is the number of decimal places used by Google Maps and most routing backends.
const DefaultPrecision = 5

// ErrMalformed is returned for truncated input or characters outside the encoding alphabet.
var ErrMalformed = errors.New("malformed polyline")

// Decode decodes a polyline at DefaultPrecision.
func Decode(encoded string) ([]model.Coordinates, error) {
	return DecodeWithPrecision(encoded, DefaultPrecision)
}

// DecodeWithPrecision decodes a polyline whose values were scaled by 10^precision.
// GraphHopper and Valhalla use 6.
func DecodeWithPrecision(encoded string, precision int) ([]model.Coordinates, error) {
	if encoded == "" {
		return []model.Coordinates{}, nil
	}
	factor := math.Pow10(precision)
	points := make([]model.Coordinates, 0, len(encoded)/4)
	index, lat, lon := 0, 0, 0
	for index < len(encoded) {
		dLat, next, err := decodeValue(encoded, index)
		if err != nil {
			return nil, err
		}
		dLon, next, err := decodeValue(encoded, next)
		if err != nil {
			return nil, err
		}
		index = next
		lat += dLat
		lon += dLon
		c := model.Coordinates{
			Latitude:  float64(lat) / factor,
			Longitude: float64(lon) / factor,
		}
		if math.Abs(c.Latitude) > 90 || math.Abs(c.Longitude) > 180 {
			return nil, fmt.Errorf("%w: point %d out of range (%g, %g)", ErrMalformed, len(points), c.Latitude, c.Longitude)
		}
		points = append(points, c)
	}
	return points, nil
}

// maxShift allows seven 5-bit chunks, enough for any delta of a valid coordinate.
const maxShift = 30

// decodeValue reads one zig-zag encoded delta starting at index.
func decodeValue(encoded string, index int) (int, int, error) {
	shift, result := 0, 0
	for {
		if shift > maxShift {
			return 0, index, fmt.Errorf("%w: value too long at offset %d", ErrMalformed, index)
		}
		if index >= len(encoded) {
			return 0, index, fmt.Errorf("%w: truncated at offset %d", ErrMalformed, index)
		}
		b := int(encoded[index]) - 63
		if b < 0 || b > 0x3f {
			return 0, index, fmt.Errorf("%w: invalid character %q at offset %d", ErrMalformed, encoded[index], index)
		}
		index++
		result |= (b & 0x1f) << shift
		shift += 5
		if b < 0x20 {
			break
		}
	}
	if result&1 != 0 {
		return ^(result >> 1), index, nil
	}
	return result >> 1, index, nil
}

// Encode encodes points at DefaultPrecision.
func Encode(points []model.Coordinates) string {
	return EncodeWithPrecision(points, DefaultPrecision)
}

// EncodeWithPrecision encodes points scaled by 10^precision.
func EncodeWithPrecision(points []model.Coordinates, precision int) string {
	if len(points) == 0 {
		return ""
	}
	factor := math.Pow10(precision)
	var sb strings.Builder
	sb.Grow(len(points) * 8)
	prevLat, prevLon := 0, 0
	for _, p := range points {
		lat := int(math.Round(p.Latitude * factor))
		lon := int(math.Round(p.Longitude * factor))
		encodeValue(&sb, lat-prevLat)
		encodeValue(&sb, lon-prevLon)
		prevLat, prevLon = lat, lon
	}
	return sb.String()
}

func encodeValue(sb *strings.Builder, value int) {
	v := value << 1
	if value < 0 {
		v = ^v
	}
	for v >= 0x20 {
		sb.WriteByte(byte((0x20 | (v & 0x1f)) + 63))
		v >>= 5
	}
	sb.WriteByte(byte(v + 63))
}

// Length decodes the polyline and returns its path length in meters.
func Length(encoded string, precision int) (float64, error) {
	points, err := DecodeWithPrecision(encoded, precision)
	if err != nil {
		return 0, err
	}
	return geo.PathDistance(points), nil
}
