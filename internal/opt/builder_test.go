package opt

import (
	"errors"
	"testing"

	"fieldroute/internal/model"
)

func TestServiceDuration(t *testing.T) {
	cases := []struct {
		serviceType string
		difficulty  int
		want        float64
	}{
		{"basic", 3, 25},
		{"basic", 1, 20},
		{"full", 5, 58.5},
		{"chemical", 2, 18},
		{"repair", 4, 69},
		{"Basic", 3, 25},  // case-insensitive
		{"window", 0, 30}, // unknown type, out-of-range difficulty
	}
	for _, c := range cases {
		if got := ServiceDuration(c.serviceType, c.difficulty); got != c.want {
			t.Errorf("ServiceDuration(%q,%d) = %f, want %f", c.serviceType, c.difficulty, got, c.want)
		}
	}
}

func TestBuildStopsFilters(t *testing.T) {
	customers := []model.CustomerOut{
		{ID: "c1", Location: gp(1, 1), ServiceDays: []string{day1}, Status: "active"},
		{ID: "c2", Location: gp(1, 1), ServiceDays: []string{day2}, Status: "active"},
		{ID: "c3", Location: gp(1, 1), ServiceDays: []string{day1}, Status: "inactive"},
		{ID: "c4", Location: gp(1, 1), ServiceDays: []string{day1}, Status: "pending"},
	}
	stops, err := BuildStops(customers, day1, false)
	if err != nil {
		t.Fatalf("BuildStops: %v", err)
	}
	if len(stops) != 1 || stops[0].ID != "c1" {
		t.Fatalf("stops: %+v", stops)
	}
	stops, err = BuildStops(customers, day1, true)
	if err != nil {
		t.Fatalf("BuildStops includePending: %v", err)
	}
	if len(stops) != 2 {
		t.Fatalf("with pending: %d stops", len(stops))
	}
}

func TestBuildStopsRejectsBadWindow(t *testing.T) {
	customers := []model.CustomerOut{
		{ID: "c1", Location: gp(1, 1), ServiceDays: []string{day1}, Status: "active",
			TimeWindow: &model.TimeWindow{Start: "noon", End: "13:00"}},
	}
	_, err := BuildStops(customers, day1, false)
	var inv *InvalidInputError
	if !errors.As(err, &inv) {
		t.Fatalf("got %v, want InvalidInputError", err)
	}

	customers[0].TimeWindow = &model.TimeWindow{Start: "14:00", End: "13:00"}
	if _, err := BuildStops(customers, day1, false); !errors.As(err, &inv) {
		t.Fatalf("inverted window: got %v", err)
	}
}

func TestBuildStopsRequiresCoordinates(t *testing.T) {
	customers := []model.CustomerOut{{ID: "c1", ServiceDays: []string{day1}, Status: "active"}}
	var inv *InvalidInputError
	if _, err := BuildStops(customers, day1, false); !errors.As(err, &inv) {
		t.Fatalf("got %v, want InvalidInputError", err)
	}
}

func TestBuildTechs(t *testing.T) {
	techs := []model.TechnicianOut{
		testTech("t1"),
		testTech("t2"),
		testTech("t3"),
	}
	techs[1].DaysOff = []string{day1}

	out, err := BuildTechs(techs, day1, nil)
	if err != nil {
		t.Fatalf("BuildTechs: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("fleet size %d, want 2 (t2 is off)", len(out))
	}
	if out[0].ShiftStartMin != 480 || out[0].ShiftEndMin != 1080 {
		t.Fatalf("shift: %f..%f", out[0].ShiftStartMin, out[0].ShiftEndMin)
	}

	out, err = BuildTechs(techs, day1, []string{"t3"})
	if err != nil {
		t.Fatalf("BuildTechs selected: %v", err)
	}
	if len(out) != 1 || out[0].ID != "t3" {
		t.Fatalf("selection: %+v", out)
	}
}

func TestBuildTechsRejectsBadShift(t *testing.T) {
	bad := testTech("t1")
	bad.WorkStart = "8am"
	var inv *InvalidInputError
	if _, err := BuildTechs([]model.TechnicianOut{bad}, day1, nil); !errors.As(err, &inv) {
		t.Fatalf("bad clock: got %v", err)
	}

	bad = testTech("t2")
	bad.WorkStart, bad.WorkEnd = "18:00", "08:00"
	if _, err := BuildTechs([]model.TechnicianOut{bad}, day1, nil); !errors.As(err, &inv) {
		t.Fatalf("inverted shift: got %v", err)
	}
}

func TestCustomerWindows(t *testing.T) {
	customers := []model.CustomerOut{
		{ID: "c1", TimeWindow: &model.TimeWindow{Start: "09:00", End: "11:30"}},
		{ID: "c2"},
		{ID: "c3", TimeWindow: &model.TimeWindow{Start: "bad", End: "11:00"}},
	}
	ws := CustomerWindows(customers)
	if len(ws) != 1 {
		t.Fatalf("windows: %+v", ws)
	}
	if w := ws["c1"]; w.StartMin != 540 || w.EndMin != 690 {
		t.Fatalf("c1 window: %+v", w)
	}
}

func TestValidateRequireAllWindows(t *testing.T) {
	p := &Problem{
		Day: day1,
		Stops: []Stop{
			{ID: "s1", ServiceMin: 30, Window: &Window{StartMin: 1200, EndMin: 1260}},
		},
		Techs:       []Tech{{ID: "t1", ShiftStartMin: 480, ShiftEndMin: 1080}},
		MaxStopsCap: 50,
	}
	err := p.Validate(true)
	var nf *NoFeasibleSolutionError
	if !errors.As(err, &nf) {
		t.Fatalf("got %v, want NoFeasibleSolutionError", err)
	}
	if nf.Reason != ReasonImpossibleWindows {
		t.Fatalf("reason %s", nf.Reason)
	}
	// without requireAll the same model passes pre-validation
	if err := p.Validate(false); err != nil {
		t.Fatalf("lenient validate: %v", err)
	}
}
