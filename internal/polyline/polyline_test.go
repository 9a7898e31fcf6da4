package polyline

import (
	"errors"
	"math"
	"math/rand"
	"strings"
	"testing"

	"fieldtrack/internal/model"
)

// Reference vector from the algorithm documentation.
const googleSample = "_p~iF~ps|U_ulLnnqC_mqNvxq`@"

var googlePoints = []model.Coordinates{
	{Latitude: 38.5, Longitude: -120.2},
	{Latitude: 40.7, Longitude: -120.95},
	{Latitude: 43.252, Longitude: -126.453},
}

func TestDecodeReference(t *testing.T) {
	got, err := Decode(googleSample)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != len(googlePoints) {
		t.Fatalf("got %d points, want %d", len(got), len(googlePoints))
	}
	for i := range got {
		if math.Abs(got[i].Latitude-googlePoints[i].Latitude) > 1e-9 || math.Abs(got[i].Longitude-googlePoints[i].Longitude) > 1e-9 {
			t.Errorf("point %d: got %+v, want %+v", i, got[i], googlePoints[i])
		}
	}
}

func TestEncodeReference(t *testing.T) {
	if got := Encode(googlePoints); got != googleSample {
		t.Fatalf("got %q, want %q", got, googleSample)
	}
}

func TestEmptyInput(t *testing.T) {
	pts, err := Decode("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pts) != 0 {
		t.Fatalf("want empty, got %d", len(pts))
	}
	if s := Encode(nil); s != "" {
		t.Fatalf("want empty string, got %q", s)
	}
}

func TestRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for _, precision := range []int{5, 6} {
		factor := math.Pow10(precision)
		pts := make([]model.Coordinates, 200)
		for i := range pts {
			lat := math.Round((rng.Float64()*180-90)*factor) / factor
			lon := math.Round((rng.Float64()*360-180)*factor) / factor
			pts[i] = model.Coordinates{Latitude: lat, Longitude: lon}
		}
		got, err := DecodeWithPrecision(EncodeWithPrecision(pts, precision), precision)
		if err != nil {
			t.Fatalf("precision %d: decode: %v", precision, err)
		}
		if len(got) != len(pts) {
			t.Fatalf("precision %d: got %d points, want %d", precision, len(got), len(pts))
		}
		tol := 1 / factor
		for i := range pts {
			if math.Abs(got[i].Latitude-pts[i].Latitude) > tol || math.Abs(got[i].Longitude-pts[i].Longitude) > tol {
				t.Fatalf("precision %d point %d: got %+v, want %+v", precision, i, got[i], pts[i])
			}
		}
	}
}

func TestRoundTripRoundsExtraDecimals(t *testing.T) {
	pts := []model.Coordinates{{Latitude: 51.5000049, Longitude: -0.1200051}}
	got, err := Decode(Encode(pts))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if math.Abs(got[0].Latitude-51.5) > 1e-9 || math.Abs(got[0].Longitude+0.12001) > 1e-9 {
		t.Fatalf("got %+v", got[0])
	}
}

func TestDecodeMalformed(t *testing.T) {
	tests := map[string]string{
		"truncated value":   "_p~iF~ps|",
		"missing longitude": "_p~iF",
		"below alphabet":    "_p~iF ps|U",
		"overlong value":    strings.Repeat("_", 20) + "??",
		"out of range":      Encode([]model.Coordinates{{Latitude: 95, Longitude: 10}}),
	}
	for name, in := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Decode(in)
			if !errors.Is(err, ErrMalformed) {
				t.Fatalf("want ErrMalformed, got %v", err)
			}
		})
	}
}

func TestLength(t *testing.T) {
	pts := []model.Coordinates{{Latitude: 0, Longitude: 0}, {Latitude: 1, Longitude: 0}}
	l, err := Length(Encode(pts), DefaultPrecision)
	if err != nil {
		t.Fatalf("length: %v", err)
	}
	if math.Abs(l-111194.9) > 1 {
		t.Fatalf("got %f", l)
	}
}
