package opt

// Deterministic local search shared by the ALNS inner loop and the refine
// scope. Scans in fixed order and only accepts strict improvements, so an
// already-optimal sequence passes through unchanged.

func planDistance(p *Problem, pl Plan, ti int) float64 {
	if len(pl.Order) == 0 {
		return 0
	}
	cur := p.techStartIdx(ti)
	total := 0.0
	for _, si := range pl.Order {
		total += p.Matrix.Miles(cur, si)
		cur = si
	}
	total += p.Matrix.Miles(cur, p.techEndIdx(ti))
	return total
}

// LocalImprove applies 2-opt and or-opt within each route, then single-stop
// cross-exchange between routes, until no strict improvement remains.
func LocalImprove(p *Problem, sol Solution) Solution {
	for ti := range sol.Plans {
		sol.Plans[ti] = twoOptPlan(p, sol.Plans[ti], ti)
		sol.Plans[ti] = orOptPlan(p, sol.Plans[ti], ti)
	}
	sol = crossExchange(p, sol)
	sol.Cost = cost(p, sol)
	return sol
}

// twoOptPlan reverses segments that shorten the route while staying feasible.
func twoOptPlan(p *Problem, pl Plan, ti int) Plan {
	n := len(pl.Order)
	if n < 3 {
		return pl
	}
	improved := true
	for improved {
		improved = false
		base := planDistance(p, pl, ti)
		for i := 0; i < n-1; i++ {
			for k := i + 1; k < n; k++ {
				cand := Plan{TechID: pl.TechID, Order: append([]int(nil), pl.Order...)}
				for a, b := i, k; a < b; a, b = a+1, b-1 {
					cand.Order[a], cand.Order[b] = cand.Order[b], cand.Order[a]
				}
				if _, _, ok := schedulePlan(p, cand, ti); !ok {
					continue
				}
				if d := planDistance(p, cand, ti); d+1e-9 < base {
					pl = cand
					base = d
					improved = true
				}
			}
		}
	}
	return pl
}

// orOptPlan relocates single stops within the route when that shortens it.
func orOptPlan(p *Problem, pl Plan, ti int) Plan {
	n := len(pl.Order)
	if n < 2 {
		return pl
	}
	improved := true
	for improved {
		improved = false
		base := planDistance(p, pl, ti)
		for i := 0; i < n; i++ {
			for j := 0; j <= n-1; j++ {
				if j == i {
					continue
				}
				cand := Plan{TechID: pl.TechID, Order: append([]int(nil), pl.Order...)}
				node := cand.Order[i]
				cand.Order = append(cand.Order[:i], cand.Order[i+1:]...)
				cand.Order = append(cand.Order[:j], append([]int{node}, cand.Order[j:]...)...)
				if _, _, ok := schedulePlan(p, cand, ti); !ok {
					continue
				}
				if d := planDistance(p, cand, ti); d+1e-9 < base {
					pl = cand
					base = d
					improved = true
				}
			}
		}
	}
	return pl
}

// crossExchange swaps single stops between routes when the combined distance
// drops. Pinned stops never leave their technician.
func crossExchange(p *Problem, sol Solution) Solution {
	m := len(sol.Plans)
	if m < 2 {
		return sol
	}
	improved := true
	for improved {
		improved = false
		for a := 0; a < m; a++ {
			for b := a + 1; b < m; b++ {
				pa, pb := sol.Plans[a], sol.Plans[b]
				for i := 0; i < len(pa.Order); i++ {
					if pin := p.pinnedTech(p.Stops[pa.Order[i]]); pin != "" {
						continue
					}
					for j := 0; j < len(pb.Order); j++ {
						if pin := p.pinnedTech(p.Stops[pb.Order[j]]); pin != "" {
							continue
						}
						ca := Plan{TechID: pa.TechID, Order: append([]int(nil), pa.Order...)}
						cb := Plan{TechID: pb.TechID, Order: append([]int(nil), pb.Order...)}
						ca.Order[i], cb.Order[j] = cb.Order[j], ca.Order[i]
						if _, _, ok := schedulePlan(p, ca, a); !ok {
							continue
						}
						if _, _, ok := schedulePlan(p, cb, b); !ok {
							continue
						}
						before := planDistance(p, pa, a) + planDistance(p, pb, b)
						after := planDistance(p, ca, a) + planDistance(p, cb, b)
						if after+1e-9 < before {
							sol.Plans[a], sol.Plans[b] = ca, cb
							pa, pb = ca, cb
							improved = true
						}
					}
				}
			}
		}
	}
	return sol
}
