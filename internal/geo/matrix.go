package geo

import (
	"context"
	"log"
)

// Matrix holds pairwise travel legs for one optimization run. It is built
// once per run and read-only afterwards, so concurrent reads from per-day
// workers need no locking.
type Matrix struct {
	pts  []Point
	legs [][]Leg
}

// BuildMatrix computes the N×N travel matrix over the given locations.
// Batched providers are used when available; otherwise each pair is computed
// once (self-legs are zero). A pair the provider cannot resolve falls back to
// a haversine estimate instead of failing the run.
func BuildMatrix(ctx context.Context, pts []Point, m Metric) (*Matrix, error) {
	if tm, ok := m.(TableMetric); ok && len(pts) > 1 {
		legs, err := tm.Table(ctx, pts)
		if err == nil {
			return &Matrix{pts: pts, legs: legs}, nil
		}
		log.Printf("matrix: table lookup failed, falling back to haversine: %v", err)
		m = Haversine{}
	}

	fallback := Haversine{}
	legs := make([][]Leg, len(pts))
	for i := range pts {
		legs[i] = make([]Leg, len(pts))
		for j := range pts {
			if i == j {
				continue
			}
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			lg, err := m.Leg(ctx, pts[i], pts[j])
			if err != nil {
				log.Printf("matrix: pair %d->%d unresolvable, using haversine: %v", i, j, err)
				lg, _ = fallback.Leg(ctx, pts[i], pts[j])
			}
			legs[i][j] = lg
		}
	}
	return &Matrix{pts: pts, legs: legs}, nil
}

// Size returns the number of locations in the matrix.
func (m *Matrix) Size() int { return len(m.pts) }

// Point returns the location at index i.
func (m *Matrix) Point(i int) Point { return m.pts[i] }

// Miles returns the travel distance from i to j.
func (m *Matrix) Miles(i, j int) float64 { return m.legs[i][j].Miles }

// Minutes returns the travel duration from i to j.
func (m *Matrix) Minutes(i, j int) float64 { return m.legs[i][j].Minutes }
