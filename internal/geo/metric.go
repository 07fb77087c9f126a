// Package geo provides travel distance/time estimation between coordinates
// and the per-run distance matrix consumed by the optimizer.
package geo

import (
	"context"
	"fmt"
	"math"
)

// Point is a latitude/longitude pair in degrees.
type Point struct {
	Lat float64
	Lng float64
}

// Leg is the travel cost between two points.
type Leg struct {
	Miles   float64
	Minutes float64
}

// Metric estimates travel distance and duration between two points.
// Implementations must be safe for concurrent use.
type Metric interface {
	Leg(ctx context.Context, from, to Point) (Leg, error)
}

// TableMetric is an optional extension for providers that support batched
// many-to-many lookups in a single call.
type TableMetric interface {
	Metric
	Table(ctx context.Context, pts []Point) ([][]Leg, error)
}

// UnreachableError reports a pair the provider could not resolve. Callers
// recover with a haversine estimate rather than aborting the run.
type UnreachableError struct {
	From, To Point
	Cause    error
}

func (e *UnreachableError) Error() string {
	return fmt.Sprintf("unreachable pair (%.5f,%.5f)->(%.5f,%.5f): %v", e.From.Lat, e.From.Lng, e.To.Lat, e.To.Lng, e.Cause)
}

func (e *UnreachableError) Unwrap() error { return e.Cause }

// Haversine estimates straight-line distance with a fixed average road speed.
type Haversine struct {
	SpeedMph float64 // defaults to 30
}

func (h Haversine) speed() float64 {
	if h.SpeedMph > 0 {
		return h.SpeedMph
	}
	return 30
}

func (h Haversine) Leg(_ context.Context, from, to Point) (Leg, error) {
	mi := HaversineMiles(from, to)
	return Leg{Miles: mi, Minutes: mi / h.speed() * 60}, nil
}

// HaversineMiles returns the great-circle distance between two points.
func HaversineMiles(a, b Point) float64 {
	const earthRadiusMi = 3958.8
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180
	s := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(a.Lat*math.Pi/180)*math.Cos(b.Lat*math.Pi/180)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return earthRadiusMi * 2 * math.Atan2(math.Sqrt(s), math.Sqrt(1-s))
}
