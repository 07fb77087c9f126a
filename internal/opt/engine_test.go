package opt

import (
	"context"
	"errors"
	"testing"
	"time"

	"fieldroute/internal/geo"
	"fieldroute/internal/model"
)

const (
	day1 = "2026-09-07" // Monday
	day2 = "2026-09-08"
)

func testEngine() *Engine {
	return &Engine{
		Metric:      geo.Haversine{SpeedMph: 30},
		TimeBudget:  time.Second,
		MaxStopsCap: 50,
	}
}

func gp(lat, lng float64) *model.GeoPoint { return &model.GeoPoint{Lat: lat, Lng: lng} }

func testCustomers(n int, days ...string) []model.CustomerOut {
	if len(days) == 0 {
		days = []string{day1}
	}
	out := make([]model.CustomerOut, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, model.CustomerOut{
			ID:          "c" + string(rune('1'+i)),
			TenantID:    "t_demo",
			Location:    gp(33.45+float64(i)*0.01, -112.07+float64(i)*0.01),
			ServiceType: "basic",
			Difficulty:  3,
			ServiceDays: days,
			Status:      "active",
		})
	}
	return out
}

func testTech(id string) model.TechnicianOut {
	return model.TechnicianOut{
		ID:            id,
		TenantID:      "t_demo",
		StartLocation: gp(33.44, -112.08),
		WorkStart:     "08:00",
		WorkEnd:       "18:00",
	}
}

func fastReq(scope string, days ...string) model.OptimizeRequest {
	return model.OptimizeRequest{
		TenantID:        "t_demo",
		Scope:           scope,
		Days:            days,
		IncludeWeekends: true,
		TimeBudgetSec:   1,
		SpeedTier:       "fast",
		Seed:            42,
	}
}

func TestOptimizeSmallInstanceAllAssigned(t *testing.T) {
	e := testEngine()
	customers := testCustomers(5)
	techs := []model.TechnicianOut{testTech("t1"), testTech("t2")}

	res, err := e.Optimize(context.Background(), fastReq(model.ScopeFull, day1), customers, techs)
	if err != nil {
		t.Fatalf("Optimize: %v", err)
	}
	if res.Status != model.ResultOK {
		t.Fatalf("status %s (%s), want ok", res.Status, res.Message)
	}
	if len(res.Unassigned) != 0 {
		t.Fatalf("unassigned: %+v", res.Unassigned)
	}
	seen := map[string]bool{}
	for _, r := range res.Routes {
		if r.Day != day1 {
			t.Fatalf("route on day %s", r.Day)
		}
		prev := 0.0
		for i, st := range r.Stops {
			if st.Seq != i+1 {
				t.Fatalf("seq %d at position %d", st.Seq, i)
			}
			if st.ArriveMin < prev {
				t.Fatalf("arrival went backwards: %f < %f", st.ArriveMin, prev)
			}
			prev = st.DepartMin
			if seen[st.CustomerID] {
				t.Fatalf("customer %s visited twice", st.CustomerID)
			}
			seen[st.CustomerID] = true
		}
		if r.TotalDurMin > 600 {
			t.Fatalf("route exceeds 10h shift: %f min", r.TotalDurMin)
		}
	}
	if len(seen) != 5 {
		t.Fatalf("visited %d customers, want 5", len(seen))
	}
	if res.Summary.TotalCustomers != 5 || res.Summary.Days != 1 {
		t.Fatalf("summary: %+v", res.Summary)
	}
}

func TestRefineKeepsAssignments(t *testing.T) {
	e := testEngine()
	customers := testCustomers(4)
	want := map[string]string{}
	for i := range customers {
		techID := "t1"
		if i%2 == 1 {
			techID = "t2"
		}
		customers[i].AssignedTechID = techID
		want[customers[i].ID] = techID
	}
	techs := []model.TechnicianOut{testTech("t1"), testTech("t2")}

	res, err := e.Optimize(context.Background(), fastReq(model.ScopeRefine, day1), customers, techs)
	if err != nil {
		t.Fatalf("Optimize: %v", err)
	}
	if res.Status != model.ResultOK {
		t.Fatalf("status %s (%s)", res.Status, res.Message)
	}
	for _, r := range res.Routes {
		for _, st := range r.Stops {
			if want[st.CustomerID] != r.TechnicianID {
				t.Fatalf("customer %s moved to %s, assigned %s", st.CustomerID, r.TechnicianID, want[st.CustomerID])
			}
		}
	}
}

func TestRefineShedsOverCapacityStops(t *testing.T) {
	e := testEngine()
	customers := testCustomers(5)
	for i := range customers {
		customers[i].AssignedTechID = "t1"
	}
	tech := testTech("t1")
	tech.MaxStops = 2

	res, err := e.Optimize(context.Background(), fastReq(model.ScopeRefine, day1), customers, []model.TechnicianOut{tech})
	if err != nil {
		t.Fatalf("Optimize: %v", err)
	}
	if res.Status != model.ResultPartial {
		t.Fatalf("status %s (%s), want partial", res.Status, res.Message)
	}
	if len(res.Unassigned) != 3 {
		t.Fatalf("unassigned %d, want 3: %+v", len(res.Unassigned), res.Unassigned)
	}
	for _, r := range res.Routes {
		if len(r.Stops) > 2 {
			t.Fatalf("route for %s has %d stops, cap is 2", r.TechnicianID, len(r.Stops))
		}
	}
}

func TestRefineShedsWorkWindowOverflow(t *testing.T) {
	e := testEngine()
	customers := testCustomers(3)
	for i := range customers {
		customers[i].AssignedTechID = "t1"
	}
	tech := testTech("t1")
	tech.WorkEnd = "09:00" // 60 minute shift cannot hold 3 visits of 25 min

	res, err := e.Optimize(context.Background(), fastReq(model.ScopeRefine, day1), customers, []model.TechnicianOut{tech})
	if err != nil {
		t.Fatalf("Optimize: %v", err)
	}
	if res.Status != model.ResultPartial {
		t.Fatalf("status %s (%s), want partial", res.Status, res.Message)
	}
	if len(res.Unassigned) == 0 {
		t.Fatal("expected overflow stops in unassigned")
	}
	kept := 0
	for _, r := range res.Routes {
		kept += len(r.Stops)
		if r.TotalDurMin > 60 {
			t.Fatalf("route duration %f min exceeds 60 min work window", r.TotalDurMin)
		}
	}
	if kept+len(res.Unassigned) != 3 {
		t.Fatalf("stops lost: kept %d unassigned %d", kept, len(res.Unassigned))
	}
}

func TestSolverConfigDefaultSpeedTier(t *testing.T) {
	e := testEngine()
	e.SpeedTier = "fast"
	if cfg := e.solverConfig(model.OptimizeRequest{}); cfg.NoImproveLimit != 100 {
		t.Fatalf("engine tier ignored: NoImproveLimit %d", cfg.NoImproveLimit)
	}
	// a request tier still wins over the engine default
	if cfg := e.solverConfig(model.OptimizeRequest{SpeedTier: "thorough"}); cfg.NoImproveLimit != 1500 {
		t.Fatalf("request tier lost: NoImproveLimit %d", cfg.NoImproveLimit)
	}
}

func TestUnreachableWindowReportedAsUnassigned(t *testing.T) {
	e := testEngine()
	customers := testCustomers(4)
	// window closes hours before any technician starts work
	customers[0].TimeWindow = &model.TimeWindow{Start: "05:00", End: "06:00"}
	techs := []model.TechnicianOut{testTech("t1"), testTech("t2")}

	res, err := e.Optimize(context.Background(), fastReq(model.ScopeFull, day1), customers, techs)
	if err != nil {
		t.Fatalf("Optimize: %v", err)
	}
	if res.Status != model.ResultPartial {
		t.Fatalf("status %s, want partial", res.Status)
	}
	if len(res.Unassigned) != 1 || res.Unassigned[0].CustomerID != customers[0].ID {
		t.Fatalf("unassigned: %+v", res.Unassigned)
	}
	if res.Unassigned[0].Reason == "" {
		t.Fatal("unassigned stop must carry a reason")
	}
}

func TestRefineOrderIdempotent(t *testing.T) {
	e := testEngine()
	customers := testCustomers(5)
	for i := range customers {
		customers[i].AssignedTechID = "t1"
	}
	techs := []model.TechnicianOut{testTech("t1")}
	req := fastReq(model.ScopeRefine, day1)

	order := func(res model.Result) []string {
		var ids []string
		for _, r := range res.Routes {
			for _, st := range r.Stops {
				ids = append(ids, st.CustomerID)
			}
		}
		return ids
	}

	a, err := e.Optimize(context.Background(), req, customers, techs)
	if err != nil {
		t.Fatalf("first refine: %v", err)
	}
	b, err := e.Optimize(context.Background(), req, customers, techs)
	if err != nil {
		t.Fatalf("second refine: %v", err)
	}
	ao, bo := order(a), order(b)
	if len(ao) != len(bo) {
		t.Fatalf("stop counts differ: %d vs %d", len(ao), len(bo))
	}
	for i := range ao {
		if ao[i] != bo[i] {
			t.Fatalf("refine churned the sequence at %d: %v vs %v", i, ao, bo)
		}
	}
}

func TestRefineSkipsUnassignedCustomers(t *testing.T) {
	e := testEngine()
	customers := testCustomers(3)
	customers[0].AssignedTechID = "t1" // only this one participates
	techs := []model.TechnicianOut{testTech("t1")}

	res, err := e.Optimize(context.Background(), fastReq(model.ScopeRefine, day1), customers, techs)
	if err != nil {
		t.Fatalf("Optimize: %v", err)
	}
	total := 0
	for _, r := range res.Routes {
		total += len(r.Stops)
	}
	if total != 1 {
		t.Fatalf("refine touched %d stops, want 1", total)
	}
}

func TestOptimizeNoTechniciansInfeasible(t *testing.T) {
	e := testEngine()
	_, err := e.Optimize(context.Background(), fastReq(model.ScopeFull, day1), testCustomers(2), nil)
	var nf *NoFeasibleSolutionError
	if !errors.As(err, &nf) {
		t.Fatalf("got %v, want NoFeasibleSolutionError", err)
	}
	if nf.Reason != ReasonNoTechnicians {
		t.Fatalf("reason %s", nf.Reason)
	}
}

func TestCompleteReroutingHonorsLockedStops(t *testing.T) {
	e := testEngine()
	customers := testCustomers(6, day1)
	for i := 3; i < 6; i++ {
		customers[i].ServiceDays = []string{day2}
	}
	customers[0].Locked = true
	customers[0].AssignedTechID = "t1"
	techs := []model.TechnicianOut{testTech("t1"), testTech("t2")}

	res, err := e.Optimize(context.Background(), fastReq(model.ScopeCompleteReroute, day1, day2), customers, techs)
	if err != nil {
		t.Fatalf("Optimize: %v", err)
	}
	found := false
	for _, r := range res.Routes {
		for _, st := range r.Stops {
			if st.CustomerID != customers[0].ID {
				continue
			}
			found = true
			if r.Day != day1 {
				t.Fatalf("locked stop moved to day %s", r.Day)
			}
			if r.TechnicianID != "t1" {
				t.Fatalf("locked stop moved to technician %s", r.TechnicianID)
			}
		}
	}
	if !found {
		t.Fatal("locked stop missing from result")
	}
}

func TestMultiDayIsolatesTechlessDay(t *testing.T) {
	e := testEngine()
	customers := testCustomers(2, day1)
	c2 := testCustomers(2, day2)
	c2[0].ID, c2[1].ID = "d1", "d2"
	customers = append(customers, c2...)
	tech := testTech("t1")
	tech.DaysOff = []string{day2}

	res, err := e.Optimize(context.Background(), fastReq(model.ScopeFull, day1, day2), customers, []model.TechnicianOut{tech})
	if err != nil {
		t.Fatalf("Optimize: %v", err)
	}
	if res.Status != model.ResultPartial {
		t.Fatalf("status %s, want partial", res.Status)
	}
	if len(res.PerDay) != 2 {
		t.Fatalf("per-day entries: %d", len(res.PerDay))
	}
	for _, r := range res.Routes {
		if r.Day == day2 {
			t.Fatalf("route scheduled on the technician's day off")
		}
	}
	dayless := 0
	for _, u := range res.Unassigned {
		if u.Day == day2 {
			dayless++
		}
	}
	if dayless != 2 {
		t.Fatalf("day2 unassigned: %d, want 2", dayless)
	}
}

func TestRequireFullAssignmentOverCapacity(t *testing.T) {
	e := testEngine()
	customers := testCustomers(3)
	tech := testTech("t1")
	tech.MaxStops = 2
	req := fastReq(model.ScopeFull, day1)
	req.RequireAssignment = true

	_, err := e.Optimize(context.Background(), req, customers, []model.TechnicianOut{tech})
	var nf *NoFeasibleSolutionError
	if !errors.As(err, &nf) {
		t.Fatalf("got %v, want NoFeasibleSolutionError", err)
	}
	if nf.Reason != ReasonOverCapacity {
		t.Fatalf("reason %s", nf.Reason)
	}
}

func TestOptimizeEmptyDays(t *testing.T) {
	e := testEngine()
	res, err := e.Optimize(context.Background(), fastReq(model.ScopeFull, day1), nil, []model.TechnicianOut{testTech("t1")})
	if err != nil {
		t.Fatalf("Optimize: %v", err)
	}
	if res.Status != model.ResultEmpty {
		t.Fatalf("status %s, want empty", res.Status)
	}
}

func TestOptimizeDeterministicWithSeed(t *testing.T) {
	e := testEngine()
	customers := testCustomers(5)
	techs := []model.TechnicianOut{testTech("t1"), testTech("t2")}
	req := fastReq(model.ScopeFull, day1)

	a, err := e.Optimize(context.Background(), req, customers, techs)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	b, err := e.Optimize(context.Background(), req, customers, techs)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if a.Summary.TotalDistanceMi != b.Summary.TotalDistanceMi {
		t.Fatalf("seeded runs diverged: %f vs %f", a.Summary.TotalDistanceMi, b.Summary.TotalDistanceMi)
	}
}

func TestFilterDays(t *testing.T) {
	got := filterDays([]string{"2026-09-06", "2026-09-07", "2026-09-05", "2026-09-07"}, false)
	if len(got) != 1 || got[0] != "2026-09-07" {
		t.Fatalf("weekdays only: %v", got)
	}
	got = filterDays([]string{"2026-09-06", "2026-09-05"}, true)
	if len(got) != 2 || got[0] != "2026-09-05" {
		t.Fatalf("weekends included and sorted: %v", got)
	}
}

func TestProgressEvents(t *testing.T) {
	e := testEngine()
	var events []string
	e.OnProgress = func(_, event string, _ map[string]any) {
		events = append(events, event)
	}
	_, err := e.Optimize(context.Background(), fastReq(model.ScopeFull, day1), testCustomers(3), []model.TechnicianOut{testTech("t1")})
	if err != nil {
		t.Fatalf("Optimize: %v", err)
	}
	want := map[string]bool{"optimize.started": false, "day.solved": false, "optimize.finished": false}
	for _, ev := range events {
		if _, ok := want[ev]; ok {
			want[ev] = true
		}
	}
	for ev, seen := range want {
		if !seen {
			t.Fatalf("missing %s event in %v", ev, events)
		}
	}
}
