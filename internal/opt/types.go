// Package opt implements the route optimization engine: fleet building,
// constraint modeling, the ALNS solver, route assembly, and the scope
// orchestrator.
package opt

import (
	"fieldroute/internal/geo"
)

// Window bounds arrival at a stop, minutes of day, half-open [start,end).
type Window struct {
	StartMin float64
	EndMin   float64
}

// Stop is one customer-visit obligation for a service day.
type Stop struct {
	ID         string
	CustomerID string
	Lat, Lng   float64
	ServiceMin float64
	Window     *Window
	Locked     bool
	TechID     string // existing assignment, empty if none
	Day        string
}

// Tech is a mobile worker with a shift and a daily stop capacity.
type Tech struct {
	ID            string
	StartLat      float64
	StartLng      float64
	EndLat        float64
	EndLng        float64
	ShiftStartMin float64
	ShiftEndMin   float64
	MaxStops      int
}

// ShiftLenMin returns the length of the work window.
func (t Tech) ShiftLenMin() float64 { return t.ShiftEndMin - t.ShiftStartMin }

// Problem is the constraint model for one technician-day batch. The matrix
// rows are stops[0..n) followed by each technician's start and end location.
type Problem struct {
	Day         string
	Stops       []Stop
	Techs       []Tech
	Matrix      *geo.Matrix
	MaxStopsCap int // global sanity cap per route

	// PinAssignments fixes every stop to its current technician (refine
	// scope). PinLocked fixes only stops flagged locked.
	PinAssignments bool
	PinLocked      bool
}

func (p *Problem) stopIdx(i int) int      { return i }
func (p *Problem) techStartIdx(t int) int { return len(p.Stops) + 2*t }
func (p *Problem) techEndIdx(t int) int   { return len(p.Stops) + 2*t + 1 }

// capFor returns the effective stop capacity for a technician: their own
// limit clamped by the global sanity cap.
func (p *Problem) capFor(t Tech) int {
	c := t.MaxStops
	if c <= 0 {
		c = p.MaxStopsCap
	}
	if p.MaxStopsCap > 0 && c > p.MaxStopsCap {
		c = p.MaxStopsCap
	}
	if c <= 0 {
		c = 50
	}
	return c
}

// pinnedTech returns the only technician a stop may be served by, or empty.
func (p *Problem) pinnedTech(s Stop) string {
	if p.PinAssignments && s.TechID != "" {
		return s.TechID
	}
	if p.PinLocked && s.Locked && s.TechID != "" {
		return s.TechID
	}
	return ""
}

// Plan is one technician's ordered stop list (indices into Problem.Stops).
type Plan struct {
	TechID string
	Order  []int
}

// Cost carries the lexicographic objective terms.
type Cost struct {
	Unassigned int
	DistanceMi float64
	MaxDurMin  float64
	MinDurMin  float64
}

// Imbalance is the route-duration spread across technicians.
func (c Cost) Imbalance() float64 { return c.MaxDurMin - c.MinDurMin }

// Scalar collapses the objective for simulated-annealing acceptance. The
// unassigned penalty dwarfs any achievable distance so the solver never
// trades an additional unassigned stop for shorter routes.
func (c Cost) Scalar() float64 {
	return float64(c.Unassigned)*1e7 + c.DistanceMi + 1e-3*c.Imbalance()
}

// Solution is the solver output: per-technician plans plus leftovers.
type Solution struct {
	Plans      []Plan
	Unassigned []int
	Cost       Cost
}

// Metrics reports solver behavior for one run.
type Metrics struct {
	RemovalSelects        [2]int // random, shaw
	InsertSelects         [2]int // greedy, regret2
	Iterations            int
	Improvements          int
	AcceptedWorse         int
	BestCost              float64
	FinalCost             float64
	FinalRemovalWeights   [2]float64
	FinalInsertionWeights [2]float64
	Snapshots             []WeightSnapshot
}

type WeightSnapshot struct {
	Iteration int
	Removal   [2]float64
	Insertion [2]float64
}
