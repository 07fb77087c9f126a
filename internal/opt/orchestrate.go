package opt

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"fieldroute/internal/geo"
	"fieldroute/internal/model"
)

// Engine runs optimization requests end to end: build, matrix, solve,
// assemble. It holds no mutable state across calls; every run is a pure
// function of its inputs plus configuration.
type Engine struct {
	Metric      geo.Metric
	TimeBudget  time.Duration // default 120s
	MaxStopsCap int           // default 50
	SpeedTier   string        // default tier when a request names none

	// OnProgress, when set, receives phase events for streaming to clients.
	OnProgress func(batchID, event string, data map[string]any)
}

func (e *Engine) emit(batchID, event string, data map[string]any) {
	if e.OnProgress != nil {
		e.OnProgress(batchID, event, data)
	}
}

func (e *Engine) budget(req model.OptimizeRequest) time.Duration {
	if req.TimeBudgetSec > 0 {
		return time.Duration(req.TimeBudgetSec) * time.Second
	}
	if e.TimeBudget > 0 {
		return e.TimeBudget
	}
	return 120 * time.Second
}

func (e *Engine) solverConfig(req model.OptimizeRequest) SolverConfig {
	cfg := DefaultSolverConfig()
	cfg.TimeBudget = e.budget(req)
	cfg.Seed = req.Seed
	tier := req.SpeedTier
	if tier == "" {
		tier = e.SpeedTier
	}
	switch tier {
	case "fast":
		cfg.NoImproveLimit = 100
	case "thorough":
		cfg.NoImproveLimit = 1500
	}
	return cfg
}

func (e *Engine) cap() int {
	if e.MaxStopsCap > 0 {
		return e.MaxStopsCap
	}
	return 50
}

// filterDays drops weekend dates unless requested and normalizes order.
func filterDays(days []string, includeWeekends bool) []string {
	out := make([]string, 0, len(days))
	seen := map[string]bool{}
	for _, d := range days {
		if seen[d] {
			continue
		}
		seen[d] = true
		if !includeWeekends {
			if t, err := time.Parse("2006-01-02", d); err == nil {
				if wd := t.Weekday(); wd == time.Saturday || wd == time.Sunday {
					continue
				}
			}
		}
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

// dayOutcome is the result of one day's sub-problem.
type dayOutcome struct {
	day         string
	routes      []model.Route
	unassigned  []model.UnassignedStop
	metrics     Metrics
	timeLimited bool
	message     string
	err         error
}

// Optimize dispatches the request to its scope and aggregates per-day
// outcomes into a tagged result. Model errors (invalid input, provable
// infeasibility) surface as errors before any solving happens; a failed day
// inside a multi-day batch is isolated and reported per day.
func (e *Engine) Optimize(ctx context.Context, req model.OptimizeRequest, customers []model.CustomerOut, technicians []model.TechnicianOut) (model.Result, error) {
	batchID := uuid.New().String()
	days := filterDays(req.Days, req.IncludeWeekends)
	if len(days) == 0 {
		return model.Result{}, &InvalidInputError{Field: "includedDays", Detail: "at least one non-excluded day is required"}
	}
	scope := req.Scope
	if scope == "" {
		scope = model.ScopeFull
	}

	// Build per-day fleets up front; a request whose every day has no
	// technicians is provably infeasible.
	fleets := make(map[string][]Tech, len(days))
	anyTech := false
	for _, day := range days {
		ts, err := BuildTechs(technicians, day, req.TechnicianIDs)
		if err != nil {
			return model.Result{}, err
		}
		fleets[day] = ts
		if len(ts) > 0 {
			anyTech = true
		}
	}
	if !anyTech {
		return model.Result{}, &NoFeasibleSolutionError{Reason: ReasonNoTechnicians, Detail: "no technicians available"}
	}

	// Build per-day stop sets. Refine participates only with stops already
	// carrying an assignment.
	stopsByDay := make(map[string][]Stop, len(days))
	total := 0
	for _, day := range days {
		ss, err := BuildStops(customers, day, req.IncludePending)
		if err != nil {
			return model.Result{}, err
		}
		if scope == model.ScopeRefine {
			kept := ss[:0]
			for _, s := range ss {
				if s.TechID != "" {
					kept = append(kept, s)
				}
			}
			ss = kept
		}
		stopsByDay[day] = ss
		total += len(ss)
	}
	if total == 0 {
		return model.Result{
			BatchID: batchID,
			Status:  model.ResultEmpty,
			Message: "nothing to optimize: no eligible stops on the included days",
			Routes:  []model.Route{},
		}, nil
	}

	if scope == model.ScopeCompleteReroute {
		e.repartitionDays(days, stopsByDay, fleets)
	}

	e.emit(batchID, "optimize.started", map[string]any{"scope": scope, "days": len(days), "stops": total})

	// Per-day sub-problems are disjoint; fan out one worker per day.
	outcomes := make([]dayOutcome, len(days))
	var wg sync.WaitGroup
	for i, day := range days {
		wg.Add(1)
		go func(i int, day string) {
			defer wg.Done()
			outcomes[i] = e.solveDay(ctx, batchID, scope, req, day, stopsByDay[day], fleets[day])
		}(i, day)
	}
	wg.Wait()
	if err := ctx.Err(); err != nil {
		return model.Result{}, err
	}

	return e.mergeOutcomes(batchID, req, scope, days, outcomes)
}

// repartitionDays moves unlocked stops between days ahead of solving:
// locked stops are day-pinned, unlocked stops prefer their scheduled day and
// spill to the day with the most remaining capacity. Deterministic.
func (e *Engine) repartitionDays(days []string, stopsByDay map[string][]Stop, fleets map[string][]Tech) {
	capacity := map[string]int{}
	for _, day := range days {
		c := 0
		for _, t := range fleets[day] {
			mc := t.MaxStops
			if mc <= 0 || mc > e.cap() {
				mc = e.cap()
			}
			c += mc
		}
		capacity[day] = c
	}
	load := map[string]int{}
	var movable []Stop
	pinned := map[string][]Stop{}
	for _, day := range days {
		for _, s := range stopsByDay[day] {
			if s.Locked {
				pinned[day] = append(pinned[day], s)
				load[day]++
			} else {
				movable = append(movable, s)
			}
		}
	}
	for _, day := range days {
		stopsByDay[day] = pinned[day]
	}
	for _, s := range movable {
		day := s.Day
		if capacity[day] == 0 || load[day] >= capacity[day] {
			best := ""
			bestRoom := 0
			for _, d := range days {
				if room := capacity[d] - load[d]; room > bestRoom {
					best, bestRoom = d, room
				}
			}
			if best != "" {
				day = best
			}
		}
		s.Day = day
		stopsByDay[day] = append(stopsByDay[day], s)
		load[day]++
	}
}

func (e *Engine) solveDay(ctx context.Context, batchID, scope string, req model.OptimizeRequest, day string, stops []Stop, techs []Tech) dayOutcome {
	out := dayOutcome{day: day}
	if len(stops) == 0 {
		out.message = "no stops scheduled"
		return out
	}
	if len(techs) == 0 {
		out.message = "no technicians available"
		for _, s := range stops {
			out.unassigned = append(out.unassigned, model.UnassignedStop{
				StopID: s.ID, CustomerID: s.CustomerID, Day: day,
				Reason: "no technicians available on this day",
			})
		}
		return out
	}

	pts := make([]geo.Point, 0, len(stops)+2*len(techs))
	for _, s := range stops {
		pts = append(pts, geo.Point{Lat: s.Lat, Lng: s.Lng})
	}
	for _, t := range techs {
		pts = append(pts, geo.Point{Lat: t.StartLat, Lng: t.StartLng})
		pts = append(pts, geo.Point{Lat: t.EndLat, Lng: t.EndLng})
	}
	metric := e.Metric
	if metric == nil {
		metric = geo.Haversine{}
	}
	matrix, err := geo.BuildMatrix(ctx, pts, metric)
	if err != nil {
		out.err = err
		return out
	}

	p := &Problem{
		Day:            day,
		Stops:          stops,
		Techs:          techs,
		Matrix:         matrix,
		MaxStopsCap:    e.cap(),
		PinAssignments: scope == model.ScopeRefine,
		PinLocked:      scope == model.ScopeCompleteReroute,
	}
	if err := p.Validate(req.RequireAssignment); err != nil {
		out.err = err
		return out
	}

	var sol Solution
	var metrics Metrics
	if scope == model.ScopeRefine {
		// Assignment is fixed; only order may change. Deterministic local
		// search keeps an already-optimal sequence untouched. Existing
		// assignments are not trusted to fit: stops that overload a
		// technician's cap or shift are shed to unassigned.
		sol = seedFromAssignments(p)
		sol = LocalImprove(p, sol)
		sol = shedInfeasible(p, sol)
		sol.Cost = cost(p, sol)
	} else {
		sol, metrics, out.timeLimited, err = Solve(ctx, p, e.solverConfig(req))
		if err != nil {
			out.err = err
			return out
		}
	}

	out.routes = AssembleRoutes(p, sol, batchID)
	out.unassigned = UnassignedReport(p, sol, "")
	out.metrics = metrics
	e.emit(batchID, "day.solved", map[string]any{
		"day": day, "routes": len(out.routes), "unassigned": len(out.unassigned), "timeLimited": out.timeLimited,
	})
	return out
}

// seedFromAssignments groups stops under their current technician in input
// order, leaving stops whose technician is absent unassigned.
func seedFromAssignments(p *Problem) Solution {
	byTech := map[string]int{}
	plans := make([]Plan, len(p.Techs))
	for ti, t := range p.Techs {
		plans[ti] = Plan{TechID: t.ID, Order: []int{}}
		byTech[t.ID] = ti
	}
	sol := Solution{Plans: plans}
	for si, s := range p.Stops {
		ti, ok := byTech[s.TechID]
		if !ok {
			sol.Unassigned = append(sol.Unassigned, si)
			continue
		}
		sol.Plans[ti].Order = append(sol.Plans[ti].Order, si)
	}
	return sol
}

// shedInfeasible repairs plans whose timeline violates the stop cap, the
// work window, or a stop's time window. Stops are re-admitted in plan order
// while the prefix schedules cleanly; the rest move to unassigned so the
// result reports partial instead of an unservable route.
func shedInfeasible(p *Problem, sol Solution) Solution {
	for ti := range sol.Plans {
		pl := sol.Plans[ti]
		if _, _, ok := schedulePlan(p, pl, ti); ok {
			continue
		}
		kept := Plan{TechID: pl.TechID, Order: []int{}}
		for _, si := range pl.Order {
			cand := Plan{TechID: pl.TechID, Order: append(append([]int{}, kept.Order...), si)}
			if _, _, ok := schedulePlan(p, cand, ti); ok {
				kept = cand
			} else {
				sol.Unassigned = append(sol.Unassigned, si)
			}
		}
		sol.Plans[ti] = kept
	}
	return sol
}

func (e *Engine) mergeOutcomes(batchID string, req model.OptimizeRequest, scope string, days []string, outcomes []dayOutcome) (model.Result, error) {
	res := model.Result{BatchID: batchID, Routes: []model.Route{}}
	failedDays := 0
	for _, out := range outcomes {
		ds := model.DayStatus{Day: out.day, Status: model.ResultOK, Message: out.message}
		if out.err != nil {
			// A single-day request propagates the model error; inside a
			// multi-day batch the failure is isolated to its day.
			if len(days) == 1 {
				return model.Result{}, out.err
			}
			ds.Status = model.ResultFailed
			ds.Message = out.err.Error()
			failedDays++
		}
		res.Routes = append(res.Routes, out.routes...)
		res.Unassigned = append(res.Unassigned, out.unassigned...)
		if len(out.unassigned) > 0 && ds.Status == model.ResultOK {
			ds.Status = model.ResultPartial
		}
		if out.timeLimited {
			res.TimeLimited = true
		}
		if out.metrics.Iterations > 0 {
			RecordMetrics(req.TenantID, out.day, scope, out.metrics)
		}
		res.PerDay = append(res.PerDay, ds)
	}

	for _, r := range res.Routes {
		res.Summary.TotalDistanceMi += r.TotalDistMi
		res.Summary.TotalDurationMin += r.TotalDurMin
		res.Summary.TotalCustomers += r.TotalStops
	}
	res.Summary.TotalUnassigned = len(res.Unassigned)
	res.Summary.Days = len(days)

	switch {
	case failedDays == len(days):
		res.Status = model.ResultFailed
		res.Message = "optimization failed for every included day"
	case len(res.Unassigned) > 0 || failedDays > 0:
		res.Status = model.ResultPartial
		res.Message = fmt.Sprintf("%d stop(s) could not be assigned", len(res.Unassigned))
	case len(res.Routes) == 0:
		res.Status = model.ResultEmpty
		res.Message = "nothing to optimize"
	default:
		res.Status = model.ResultOK
	}
	if res.TimeLimited {
		res.Message = joinMessage(res.Message, "time budget reached; result may be suboptimal")
	}

	e.emit(batchID, "optimize.finished", map[string]any{
		"status": res.Status, "routes": len(res.Routes), "unassigned": len(res.Unassigned),
	})
	return res, nil
}

func joinMessage(a, b string) string {
	if a == "" {
		return b
	}
	return a + "; " + b
}
