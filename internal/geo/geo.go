// Package geo resolves coordinates from free-text location references and measures
// great-circle distance between them.
package geo

import (
	"context"
	"math"
	"regexp"
	"strconv"
)

// EarthRadiusKm is the mean Earth radius used by Distance.
const EarthRadiusKm = 6371.0

// Point is a WGS84 coordinate pair in decimal degrees.
type Point struct {
	Lat float64
	Lng float64
}

// Valid reports whether the point lies within coordinate bounds.
func (p Point) Valid() bool {
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}

// DistanceKm is the haversine distance between two points.
func DistanceKm(a, b Point) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return EarthRadiusKm * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// Resolver turns a location reference into coordinates. ok is false when the reference
// carries no usable position.
type Resolver interface {
	Resolve(ctx context.Context, ref string) (p Point, ok bool)
}

// Map-link shapes seen in location references, most specific first.
var coordinatePatterns = []*regexp.Regexp{
	regexp.MustCompile(`@(-?\d{1,3}\.\d+),\s*(-?\d{1,3}\.\d+)`),
	regexp.MustCompile(`[?&](?:q|query|ll|destination)=(-?\d{1,3}\.\d+)(?:,|%2C)\s*(-?\d{1,3}\.\d+)`),
	regexp.MustCompile(`!3d(-?\d{1,3}\.\d+)!4d(-?\d{1,3}\.\d+)`),
	regexp.MustCompile(`(-?\d{1,3}\.\d+)\s*,\s*(-?\d{1,3}\.\d+)`),
}

// TextResolver extracts coordinates embedded in map links or "lat, lng" text.
type TextResolver struct{}

// Resolve implements Resolver.
func (TextResolver) Resolve(_ context.Context, ref string) (Point, bool) {
	return Parse(ref)
}

// Parse extracts the first coordinate pair found in ref.
func Parse(ref string) (Point, bool) {
	for _, re := range coordinatePatterns {
		m := re.FindStringSubmatch(ref)
		if m == nil {
			continue
		}
		lat, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			continue
		}
		lng, err := strconv.ParseFloat(m[2], 64)
		if err != nil {
			continue
		}
		p := Point{Lat: lat, Lng: lng}
		if p.Valid() {
			return p, true
		}
	}
	return Point{}, false
}
