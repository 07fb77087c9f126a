package opt

import (
	"fmt"
	"strings"
	"time"

	"fieldroute/internal/model"
)

// Service duration model: base minutes by service type scaled by a 1..5
// difficulty factor. Unknown types fall back to the default base.
var baseServiceMin = map[string]float64{
	"basic":    25,
	"full":     45,
	"chemical": 20,
	"repair":   60,
}

var difficultyFactor = [6]float64{0, 0.8, 0.9, 1.0, 1.15, 1.3}

const defaultServiceMin = 30

// ServiceDuration returns the deterministic visit duration in minutes.
func ServiceDuration(serviceType string, difficulty int) float64 {
	base, ok := baseServiceMin[strings.ToLower(serviceType)]
	if !ok {
		base = defaultServiceMin
	}
	if difficulty < 1 || difficulty > 5 {
		difficulty = 3
	}
	return base * difficultyFactor[difficulty]
}

// parseClock converts "15:04" to minutes of day.
func parseClock(s string) (float64, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, err
	}
	return float64(t.Hour()*60 + t.Minute()), nil
}

func servesDay(days []string, day string) bool {
	for _, d := range days {
		if d == day {
			return true
		}
	}
	return false
}

// BuildStops converts eligible customer records into optimization stops for
// one service day. Customers must already carry resolved coordinates; this
// component does not geocode.
func BuildStops(customers []model.CustomerOut, day string, includePending bool) ([]Stop, error) {
	stops := make([]Stop, 0, len(customers))
	for _, c := range customers {
		if !servesDay(c.ServiceDays, day) {
			continue
		}
		switch strings.ToLower(c.Status) {
		case "active", "":
		case "pending":
			if !includePending {
				continue
			}
		default:
			continue
		}
		if c.Location == nil {
			return nil, &InvalidInputError{Field: "customer " + c.ID, Detail: "missing resolved coordinates"}
		}
		s := Stop{
			ID:         c.ID,
			CustomerID: c.ID,
			Lat:        c.Location.Lat,
			Lng:        c.Location.Lng,
			ServiceMin: ServiceDuration(c.ServiceType, c.Difficulty),
			Locked:     c.Locked,
			TechID:     c.AssignedTechID,
			Day:        day,
		}
		if c.TimeWindow != nil {
			start, err := parseClock(c.TimeWindow.Start)
			if err != nil {
				return nil, &InvalidInputError{Field: "customer " + c.ID, Detail: fmt.Sprintf("bad time window start %q", c.TimeWindow.Start)}
			}
			end, err := parseClock(c.TimeWindow.End)
			if err != nil {
				return nil, &InvalidInputError{Field: "customer " + c.ID, Detail: fmt.Sprintf("bad time window end %q", c.TimeWindow.End)}
			}
			if start >= end {
				return nil, &InvalidInputError{Field: "customer " + c.ID, Detail: "time window start must precede end"}
			}
			s.Window = &Window{StartMin: start, EndMin: end}
		}
		stops = append(stops, s)
	}
	return stops, nil
}

// BuildTechs converts technician records into the day's fleet. An empty
// selection means every technician not off that day.
func BuildTechs(techs []model.TechnicianOut, day string, selected []string) ([]Tech, error) {
	sel := map[string]bool{}
	for _, id := range selected {
		sel[id] = true
	}
	out := make([]Tech, 0, len(techs))
	for _, t := range techs {
		if len(sel) > 0 && !sel[t.ID] {
			continue
		}
		if servesDay(t.DaysOff, day) {
			continue
		}
		if t.StartLocation == nil {
			return nil, &InvalidInputError{Field: "technician " + t.ID, Detail: "missing start location coordinates"}
		}
		start, err := parseClock(t.WorkStart)
		if err != nil {
			return nil, &InvalidInputError{Field: "technician " + t.ID, Detail: fmt.Sprintf("bad work window start %q", t.WorkStart)}
		}
		end, err := parseClock(t.WorkEnd)
		if err != nil {
			return nil, &InvalidInputError{Field: "technician " + t.ID, Detail: fmt.Sprintf("bad work window end %q", t.WorkEnd)}
		}
		if start >= end {
			return nil, &InvalidInputError{Field: "technician " + t.ID, Detail: "work window start must precede end"}
		}
		tc := Tech{
			ID:            t.ID,
			StartLat:      t.StartLocation.Lat,
			StartLng:      t.StartLocation.Lng,
			EndLat:        t.StartLocation.Lat,
			EndLng:        t.StartLocation.Lng,
			ShiftStartMin: start,
			ShiftEndMin:   end,
			MaxStops:      t.MaxStops,
		}
		if t.EndLocation != nil {
			tc.EndLat = t.EndLocation.Lat
			tc.EndLng = t.EndLocation.Lng
		}
		out = append(out, tc)
	}
	return out, nil
}

// CustomerWindows maps customer id to its parsed arrival window. Records
// with malformed windows are skipped; BuildStops is the validating path.
func CustomerWindows(customers []model.CustomerOut) map[string]*Window {
	out := map[string]*Window{}
	for _, c := range customers {
		if c.TimeWindow == nil {
			continue
		}
		start, err1 := parseClock(c.TimeWindow.Start)
		end, err2 := parseClock(c.TimeWindow.End)
		if err1 != nil || err2 != nil || start >= end {
			continue
		}
		out[c.ID] = &Window{StartMin: start, EndMin: end}
	}
	return out
}

// TechFromRecord builds a solver Tech from one record, ignoring days off.
// Used for edits on routes that already exist for a given day.
func TechFromRecord(t model.TechnicianOut) (Tech, error) {
	if t.StartLocation == nil {
		return Tech{}, &InvalidInputError{Field: "technician " + t.ID, Detail: "missing start location coordinates"}
	}
	start, err := parseClock(t.WorkStart)
	if err != nil {
		return Tech{}, &InvalidInputError{Field: "technician " + t.ID, Detail: fmt.Sprintf("bad work window start %q", t.WorkStart)}
	}
	end, err := parseClock(t.WorkEnd)
	if err != nil {
		return Tech{}, &InvalidInputError{Field: "technician " + t.ID, Detail: fmt.Sprintf("bad work window end %q", t.WorkEnd)}
	}
	tc := Tech{
		ID: t.ID, StartLat: t.StartLocation.Lat, StartLng: t.StartLocation.Lng,
		EndLat: t.StartLocation.Lat, EndLng: t.StartLocation.Lng,
		ShiftStartMin: start, ShiftEndMin: end, MaxStops: t.MaxStops,
	}
	if t.EndLocation != nil {
		tc.EndLat = t.EndLocation.Lat
		tc.EndLng = t.EndLocation.Lng
	}
	return tc, nil
}

// Validate fail-fasts on model errors before any solver invocation.
// requireAll additionally proves infeasibility when full assignment is
// demanded but capacity or time windows cannot cover the stop set.
func (p *Problem) Validate(requireAll bool) error {
	if len(p.Techs) == 0 {
		return &NoFeasibleSolutionError{Reason: ReasonNoTechnicians, Detail: "no technicians available for " + p.Day}
	}
	for _, s := range p.Stops {
		if s.ServiceMin <= 0 {
			return &InvalidInputError{Field: "stop " + s.ID, Detail: "service duration must be positive"}
		}
		if s.Window != nil && s.Window.StartMin >= s.Window.EndMin {
			return &InvalidInputError{Field: "stop " + s.ID, Detail: "time window start must precede end"}
		}
	}
	if !requireAll {
		return nil
	}
	capTotal := 0
	for _, t := range p.Techs {
		capTotal += p.capFor(t)
	}
	if len(p.Stops) > capTotal {
		return &NoFeasibleSolutionError{
			Reason: ReasonOverCapacity,
			Detail: fmt.Sprintf("%d stops exceed total capacity %d on %s", len(p.Stops), capTotal, p.Day),
		}
	}
	workTotal := 0.0
	for _, t := range p.Techs {
		workTotal += t.ShiftLenMin()
	}
	serviceTotal := 0.0
	for _, s := range p.Stops {
		serviceTotal += s.ServiceMin
	}
	if serviceTotal > workTotal {
		return &NoFeasibleSolutionError{
			Reason: ReasonOverCapacity,
			Detail: fmt.Sprintf("%.0f min of service exceeds %.0f min of shift time on %s", serviceTotal, workTotal, p.Day),
		}
	}
	for _, s := range p.Stops {
		if s.Window == nil {
			continue
		}
		reachable := false
		for _, t := range p.Techs {
			if s.Window.StartMin < t.ShiftEndMin && s.Window.EndMin > t.ShiftStartMin {
				reachable = true
				break
			}
		}
		if !reachable {
			return &NoFeasibleSolutionError{
				Reason: ReasonImpossibleWindows,
				Detail: fmt.Sprintf("stop %s window lies outside every technician shift", s.ID),
			}
		}
	}
	return nil
}
