package opt

import (
	"context"
	"errors"
	"testing"

	"fieldroute/internal/geo"
	"fieldroute/internal/model"
)

func editTech(id string, maxStops int) Tech {
	return Tech{
		ID: id, StartLat: 33.44, StartLng: -112.08, EndLat: 33.44, EndLng: -112.08,
		ShiftStartMin: 480, ShiftEndMin: 1080, MaxStops: maxStops,
	}
}

func editRoute(id, techID string, stopIDs ...string) model.Route {
	r := model.Route{ID: id, BatchID: "b1", Version: 1, Day: day1, TechnicianID: techID, Status: "planned"}
	for i, sid := range stopIDs {
		r.Stops = append(r.Stops, model.RouteStop{
			Seq: i + 1, StopID: sid, CustomerID: sid,
			Location:   model.GeoPoint{Lat: 33.45 + float64(i)*0.01, Lng: -112.07},
			ServiceMin: 30,
		})
	}
	return r
}

func TestResequenceIdempotent(t *testing.T) {
	tech := editTech("t1", 0)
	route := editRoute("r1", "t1", "c1", "c2", "c3")
	order := []string{"c1", "c2", "c3"}

	got, err := Resequence(context.Background(), geo.Haversine{}, tech, route, order, 50, nil)
	if err != nil {
		t.Fatalf("Resequence: %v", err)
	}
	if got.ID != "r1" || got.Version != 2 {
		t.Fatalf("identity: id=%s version=%d", got.ID, got.Version)
	}
	for i, st := range got.Stops {
		if st.StopID != order[i] || st.Seq != i+1 {
			t.Fatalf("stop %d: %+v", i, st)
		}
	}
}

func TestResequenceRejectsWrongLength(t *testing.T) {
	tech := editTech("t1", 0)
	route := editRoute("r1", "t1", "c1", "c2")
	var inv *InvalidInputError
	if _, err := Resequence(context.Background(), geo.Haversine{}, tech, route, []string{"c1"}, 50, nil); !errors.As(err, &inv) {
		t.Fatalf("short order: got %v", err)
	}
	if _, err := Resequence(context.Background(), geo.Haversine{}, tech, route, []string{"c1", "c1"}, 50, nil); !errors.As(err, &inv) {
		t.Fatalf("duplicate id: got %v", err)
	}
}

func TestResequenceRejectsWindowViolation(t *testing.T) {
	tech := editTech("t1", 0)
	route := editRoute("r1", "t1", "c1", "c2")
	// c1 must be visited right at shift start; putting c2 first pushes the
	// arrival at c1 past its window end.
	windows := map[string]*Window{"c1": {StartMin: 480, EndMin: 505}}
	var inv *InvalidInputError
	if _, err := Resequence(context.Background(), geo.Haversine{}, tech, route, []string{"c2", "c1"}, 50, windows); !errors.As(err, &inv) {
		t.Fatalf("window violation: got %v", err)
	}
	// the compliant order still passes
	if _, err := Resequence(context.Background(), geo.Haversine{}, tech, route, []string{"c1", "c2"}, 50, windows); err != nil {
		t.Fatalf("compliant order: %v", err)
	}
}

func TestMoveStopBetweenTechs(t *testing.T) {
	from := editRoute("r1", "t1", "c1", "c2")
	to := editRoute("r2", "t2", "c3")

	newFrom, newTo, err := MoveStop(context.Background(), geo.Haversine{},
		editTech("t1", 0), editTech("t2", 0), from, to, "c2", 1, 50, nil)
	if err != nil {
		t.Fatalf("MoveStop: %v", err)
	}
	if len(newFrom.Stops) != 1 || newFrom.Stops[0].StopID != "c1" {
		t.Fatalf("source: %+v", newFrom.Stops)
	}
	if len(newTo.Stops) != 2 || newTo.Stops[1].StopID != "c2" {
		t.Fatalf("target: %+v", newTo.Stops)
	}
	if newFrom.Version != 2 || newTo.Version != 2 {
		t.Fatalf("versions: %d %d", newFrom.Version, newTo.Version)
	}
	for i, st := range newTo.Stops {
		if st.Seq != i+1 {
			t.Fatalf("target seq %d at %d", st.Seq, i)
		}
	}
}

func TestMoveStopEmptiesSourceRoute(t *testing.T) {
	from := editRoute("r1", "t1", "c1")
	to := editRoute("r2", "t2", "c2")
	newFrom, newTo, err := MoveStop(context.Background(), geo.Haversine{},
		editTech("t1", 0), editTech("t2", 0), from, to, "c1", 0, 50, nil)
	if err != nil {
		t.Fatalf("MoveStop: %v", err)
	}
	if len(newFrom.Stops) != 0 || newFrom.ID != "r1" {
		t.Fatalf("emptied source: %+v", newFrom)
	}
	if len(newTo.Stops) != 2 {
		t.Fatalf("target: %+v", newTo.Stops)
	}
}

func TestMoveStopValidation(t *testing.T) {
	from := editRoute("r1", "t1", "c1")
	to := editRoute("r2", "t2", "c2")
	var inv *InvalidInputError

	if _, _, err := MoveStop(context.Background(), geo.Haversine{},
		editTech("t1", 0), editTech("t2", 0), from, to, "c9", 0, 50, nil); !errors.As(err, &inv) {
		t.Fatalf("unknown stop: got %v", err)
	}
	if _, _, err := MoveStop(context.Background(), geo.Haversine{},
		editTech("t1", 0), editTech("t2", 0), from, to, "c1", 5, 50, nil); !errors.As(err, &inv) {
		t.Fatalf("position out of range: got %v", err)
	}
}

func TestMoveStopRejectsOverCapacity(t *testing.T) {
	from := editRoute("r1", "t1", "c1", "c2")
	to := editRoute("r2", "t2", "c3")
	var inv *InvalidInputError
	if _, _, err := MoveStop(context.Background(), geo.Haversine{},
		editTech("t1", 0), editTech("t2", 1), from, to, "c1", 0, 50, nil); !errors.As(err, &inv) {
		t.Fatalf("capacity: got %v", err)
	}
}

func TestScheduleWaitsForWindow(t *testing.T) {
	tech := editTech("t1", 0)
	route := editRoute("r1", "t1", "c1")
	windows := map[string]*Window{"c1": {StartMin: 600, EndMin: 700}}
	got, err := Resequence(context.Background(), geo.Haversine{}, tech, route, []string{"c1"}, 50, windows)
	if err != nil {
		t.Fatalf("Resequence: %v", err)
	}
	st := got.Stops[0]
	if st.WaitMin <= 0 {
		t.Fatalf("expected waiting before the window opens, got %f", st.WaitMin)
	}
	if st.DepartMin < 630 {
		t.Fatalf("depart %f, want >= window start plus service", st.DepartMin)
	}
}
