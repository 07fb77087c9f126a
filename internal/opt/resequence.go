package opt

import (
	"context"
	"fmt"

	"fieldroute/internal/geo"
	"fieldroute/internal/model"
)

// Manual edit operations for pending routes. Both validate the same
// invariants the solver honors (contiguous sequence, capacity, work window,
// time windows) and recompute the schedule; they never touch storage.

func routeProblem(ctx context.Context, metric geo.Metric, tech Tech, day string, stops []model.RouteStop, cap int, windows map[string]*Window) (*Problem, error) {
	os := make([]Stop, len(stops))
	pts := make([]geo.Point, 0, len(stops)+2)
	for i, rs := range stops {
		os[i] = Stop{
			ID:         rs.StopID,
			CustomerID: rs.CustomerID,
			Lat:        rs.Location.Lat,
			Lng:        rs.Location.Lng,
			ServiceMin: rs.ServiceMin,
			Window:     windows[rs.StopID],
			TechID:     tech.ID,
			Day:        day,
		}
		pts = append(pts, geo.Point{Lat: rs.Location.Lat, Lng: rs.Location.Lng})
	}
	pts = append(pts, geo.Point{Lat: tech.StartLat, Lng: tech.StartLng})
	pts = append(pts, geo.Point{Lat: tech.EndLat, Lng: tech.EndLng})
	if metric == nil {
		metric = geo.Haversine{}
	}
	matrix, err := geo.BuildMatrix(ctx, pts, metric)
	if err != nil {
		return nil, err
	}
	return &Problem{Day: day, Stops: os, Techs: []Tech{tech}, Matrix: matrix, MaxStopsCap: cap}, nil
}

func rebuildRoute(p *Problem, prev model.Route) (model.Route, error) {
	order := make([]int, len(p.Stops))
	for i := range order {
		order[i] = i
	}
	pl := Plan{TechID: p.Techs[0].ID, Order: order}
	if _, _, ok := schedulePlan(p, pl, 0); !ok {
		return model.Route{}, &InvalidInputError{
			Field:  "route " + prev.ID,
			Detail: "new order violates capacity, work window, or a stop time window",
		}
	}
	routes := AssembleRoutes(p, Solution{Plans: []Plan{pl}}, prev.BatchID)
	if len(routes) == 0 {
		// Route emptied out (last stop moved away); keep identity.
		return model.Route{
			ID: prev.ID, BatchID: prev.BatchID, Version: prev.Version + 1,
			Day: prev.Day, TechnicianID: prev.TechnicianID, Status: prev.Status,
			Stops: []model.RouteStop{}, ShiftStartMin: prev.ShiftStartMin,
		}, nil
	}
	r := routes[0]
	r.ID = prev.ID
	r.Version = prev.Version + 1
	r.Status = prev.Status
	return r, nil
}

// Resequence reorders a route's stops to the given ID order. Idempotent:
// applying the current order returns an equivalent route.
func Resequence(ctx context.Context, metric geo.Metric, tech Tech, route model.Route, newOrder []string, cap int, windows map[string]*Window) (model.Route, error) {
	if len(newOrder) != len(route.Stops) {
		return model.Route{}, &InvalidInputError{
			Field:  "stopIds",
			Detail: fmt.Sprintf("expected %d stop ids, got %d", len(route.Stops), len(newOrder)),
		}
	}
	byID := make(map[string]model.RouteStop, len(route.Stops))
	for _, rs := range route.Stops {
		byID[rs.StopID] = rs
	}
	ordered := make([]model.RouteStop, 0, len(newOrder))
	seen := map[string]bool{}
	for _, id := range newOrder {
		rs, ok := byID[id]
		if !ok {
			return model.Route{}, &InvalidInputError{Field: "stopIds", Detail: "unknown stop id " + id}
		}
		if seen[id] {
			return model.Route{}, &InvalidInputError{Field: "stopIds", Detail: "duplicate stop id " + id}
		}
		seen[id] = true
		ordered = append(ordered, rs)
	}
	p, err := routeProblem(ctx, metric, tech, route.Day, ordered, cap, windows)
	if err != nil {
		return model.Route{}, err
	}
	return rebuildRoute(p, route)
}

// MoveStop relocates one stop from one pending route to a position in
// another, revalidating and rescheduling both.
func MoveStop(ctx context.Context, metric geo.Metric, fromTech, toTech Tech, from, to model.Route, stopID string, pos int, cap int, windows map[string]*Window) (model.Route, model.Route, error) {
	idx := -1
	for i, rs := range from.Stops {
		if rs.StopID == stopID {
			idx = i
			break
		}
	}
	if idx == -1 {
		return model.Route{}, model.Route{}, &InvalidInputError{Field: "stopId", Detail: "stop not on source route"}
	}
	if pos < 0 || pos > len(to.Stops) {
		return model.Route{}, model.Route{}, &InvalidInputError{Field: "position", Detail: fmt.Sprintf("position %d out of range 0..%d", pos, len(to.Stops))}
	}
	moved := from.Stops[idx]
	remaining := append(append([]model.RouteStop{}, from.Stops[:idx]...), from.Stops[idx+1:]...)
	target := make([]model.RouteStop, 0, len(to.Stops)+1)
	target = append(target, to.Stops[:pos]...)
	target = append(target, moved)
	target = append(target, to.Stops[pos:]...)

	fp, err := routeProblem(ctx, metric, fromTech, from.Day, remaining, cap, windows)
	if err != nil {
		return model.Route{}, model.Route{}, err
	}
	tp, err := routeProblem(ctx, metric, toTech, to.Day, target, cap, windows)
	if err != nil {
		return model.Route{}, model.Route{}, err
	}
	newTo, err := rebuildRoute(tp, to)
	if err != nil {
		return model.Route{}, model.Route{}, err
	}
	newFrom, err := rebuildRoute(fp, from)
	if err != nil {
		return model.Route{}, model.Route{}, err
	}
	return newFrom, newTo, nil
}
