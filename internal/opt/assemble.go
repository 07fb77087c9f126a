package opt

import (
	"github.com/google/uuid"

	"fieldroute/internal/model"
)

// AssembleRoutes converts solver output into route objects with arrival and
// departure times, waiting, and per-route totals. Pure function of the
// solution and the distance matrix; nothing is persisted here.
func AssembleRoutes(p *Problem, sol Solution, batchID string) []model.Route {
	routes := make([]model.Route, 0, len(sol.Plans))
	for ti, pl := range sol.Plans {
		if len(pl.Order) == 0 {
			continue
		}
		tech := p.Techs[ti]
		r := model.Route{
			ID:            uuid.New().String(),
			BatchID:       batchID,
			Version:       1,
			Day:           p.Day,
			TechnicianID:  tech.ID,
			Status:        "planned",
			ShiftStartMin: tech.ShiftStartMin,
		}
		t := tech.ShiftStartMin
		cur := p.techStartIdx(ti)
		for seq, si := range pl.Order {
			s := p.Stops[si]
			driveMin := p.Matrix.Minutes(cur, si)
			driveMi := p.Matrix.Miles(cur, si)
			arrive := t + driveMin
			wait := 0.0
			if s.Window != nil && arrive < s.Window.StartMin {
				wait = s.Window.StartMin - arrive
			}
			depart := arrive + wait + s.ServiceMin
			r.Stops = append(r.Stops, model.RouteStop{
				Seq:        seq + 1,
				StopID:     s.ID,
				CustomerID: s.CustomerID,
				Location:   model.GeoPoint{Lat: s.Lat, Lng: s.Lng},
				ArriveMin:  arrive,
				DepartMin:  depart,
				WaitMin:    wait,
				ServiceMin: s.ServiceMin,
				DriveMin:   driveMin,
				DriveMi:    driveMi,
			})
			r.TotalDistMi += driveMi
			t = depart
			cur = si
		}
		end := p.techEndIdx(ti)
		r.TotalDistMi += p.Matrix.Miles(cur, end)
		t += p.Matrix.Minutes(cur, end)
		r.TotalDurMin = t - tech.ShiftStartMin
		r.TotalStops = len(r.Stops)
		routes = append(routes, r)
	}
	return routes
}

// UnassignedReport names the stops the solver left out, with a reason the
// caller can surface.
func UnassignedReport(p *Problem, sol Solution, reason string) []model.UnassignedStop {
	out := make([]model.UnassignedStop, 0, len(sol.Unassigned))
	for _, si := range sol.Unassigned {
		s := p.Stops[si]
		r := reason
		if r == "" {
			r = "no feasible placement within capacity and time windows"
		}
		out = append(out, model.UnassignedStop{StopID: s.ID, CustomerID: s.CustomerID, Day: p.Day, Reason: r})
	}
	return out
}
