package opt

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// SolverConfig tunes the adaptive large-neighborhood search.
type SolverConfig struct {
	TimeBudget      time.Duration
	IterationsLimit int
	NoImproveLimit  int // stop early after this many non-improving iterations
	InitialTemp     float64
	Cooling         float64
	Seed            int64
}

// DefaultSolverConfig returns the balanced tier configuration.
func DefaultSolverConfig() SolverConfig {
	return SolverConfig{
		TimeBudget:     120 * time.Second,
		NoImproveLimit: 400,
		InitialTemp:    1.0,
		Cooling:        0.995,
	}
}

// Solve runs an ALNS heuristic over the problem: greedy seed, roulette-wheel
// operator selection (random/shaw removal, greedy/regret-2 insertion),
// intra- and inter-route local search, simulated-annealing acceptance.
// Timeout is a valid outcome: the best solution found is returned with
// timeLimited=true. Cancellation abandons the run via ctx.
func Solve(ctx context.Context, p *Problem, cfg SolverConfig) (Solution, Metrics, bool, error) {
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	curr := greedySeed(p)
	curr = LocalImprove(p, curr)
	best := curr

	remW := [2]float64{1, 1} // random, shaw
	insW := [2]float64{1, 1} // greedy, regret2
	temp := 1.0
	if cfg.InitialTemp > 0 {
		temp = cfg.InitialTemp
	}
	cool := 0.995
	if cfg.Cooling > 0 && cfg.Cooling < 1 {
		cool = cfg.Cooling
	}
	budget := cfg.TimeBudget
	if budget <= 0 {
		budget = 120 * time.Second
	}
	noImproveLimit := cfg.NoImproveLimit
	if noImproveLimit <= 0 {
		noImproveLimit = 400
	}

	m := Metrics{BestCost: best.Cost.Scalar()}
	deadline := time.Now().Add(budget)
	const snapshotEvery = 50
	noImprove := 0
	timeLimited := false

	for {
		if err := ctx.Err(); err != nil {
			return best, m, true, err
		}
		if !time.Now().Before(deadline) {
			timeLimited = noImprove < noImproveLimit
			break
		}
		if noImprove >= noImproveLimit {
			break
		}
		if cfg.IterationsLimit > 0 && m.Iterations >= cfg.IterationsLimit {
			break
		}
		m.Iterations++

		k := 1 + rng.Intn(3)
		op := selectOp(remW[:], rng)
		m.RemovalSelects[op]++
		ip := selectOp(insW[:], rng)
		m.InsertSelects[ip]++

		var removed []int
		switch op {
		case 0:
			removed = pickRandomStops(curr, k, rng)
		case 1:
			removed = shawRemoval(p, curr, k, rng)
		}
		cand := removeStops(curr, removed)
		pool := append(append([]int(nil), cand.Unassigned...), removed...)
		cand.Unassigned = nil
		switch ip {
		case 0:
			cand = greedyInsert(p, cand, pool)
		case 1:
			cand = regretInsert(p, cand, pool)
		}
		cand = LocalImprove(p, cand)
		cand.Cost = cost(p, cand)

		delta := cand.Cost.Scalar() - best.Cost.Scalar()
		if better(cand.Cost, best.Cost) {
			best = cand
			curr = cand
			remW[op] += 0.1
			insW[ip] += 0.1
			m.Improvements++
			m.BestCost = best.Cost.Scalar()
			noImprove = 0
		} else if rng.Float64() < math.Exp(-delta/(temp+1e-9)) {
			curr = cand
			remW[op] += 0.01
			insW[ip] += 0.01
			m.AcceptedWorse++
			noImprove++
		} else {
			remW[op] = math.Max(0.01, remW[op]*0.999)
			insW[ip] = math.Max(0.01, insW[ip]*0.999)
			noImprove++
		}
		temp *= cool

		if m.Iterations%snapshotEvery == 0 {
			m.Snapshots = append(m.Snapshots, WeightSnapshot{Iteration: m.Iterations, Removal: remW, Insertion: insW})
		}
	}

	m.FinalCost = best.Cost.Scalar()
	m.FinalRemovalWeights = remW
	m.FinalInsertionWeights = insW
	return best, m, timeLimited, nil
}

// better orders costs lexicographically: fewer unassigned stops, then less
// distance, then less duration imbalance, then smaller max route duration.
// Ties keep the incumbent so re-solving an optimal input cannot churn.
func better(a, b Cost) bool {
	if a.Unassigned != b.Unassigned {
		return a.Unassigned < b.Unassigned
	}
	if math.Abs(a.DistanceMi-b.DistanceMi) > 1e-6 {
		return a.DistanceMi < b.DistanceMi
	}
	if math.Abs(a.Imbalance()-b.Imbalance()) > 1e-6 {
		return a.Imbalance() < b.Imbalance()
	}
	return a.MaxDurMin < b.MaxDurMin-1e-6
}

// schedulePlan propagates the timeline of one plan from shift start through
// every stop and the leg back to the technician's end location. Arrival
// before a window waits; arrival at or past window end is infeasible, as is
// exceeding the shift or the stop cap.
func schedulePlan(p *Problem, pl Plan, ti int) (durMin, distMi float64, feasible bool) {
	tech := p.Techs[ti]
	if len(pl.Order) > p.capFor(tech) {
		return 0, 0, false
	}
	t := tech.ShiftStartMin
	cur := p.techStartIdx(ti)
	dist := 0.0
	for _, si := range pl.Order {
		drive := p.Matrix.Minutes(cur, si)
		dist += p.Matrix.Miles(cur, si)
		t += drive
		s := p.Stops[si]
		if s.Window != nil {
			if t < s.Window.StartMin {
				t = s.Window.StartMin
			}
			if t >= s.Window.EndMin {
				return 0, 0, false
			}
		}
		t += s.ServiceMin
		cur = si
	}
	if len(pl.Order) > 0 {
		end := p.techEndIdx(ti)
		dist += p.Matrix.Miles(cur, end)
		t += p.Matrix.Minutes(cur, end)
	}
	dur := t - tech.ShiftStartMin
	if t > tech.ShiftEndMin {
		return dur, dist, false
	}
	return dur, dist, true
}

func cost(p *Problem, s Solution) Cost {
	c := Cost{Unassigned: len(s.Unassigned), MinDurMin: math.MaxFloat64}
	for ti, pl := range s.Plans {
		dur, dist, _ := schedulePlan(p, pl, ti)
		c.DistanceMi += dist
		if dur > c.MaxDurMin {
			c.MaxDurMin = dur
		}
		if dur < c.MinDurMin {
			c.MinDurMin = dur
		}
	}
	if len(s.Plans) == 0 {
		c.MinDurMin = 0
	}
	return c
}

// feasibleInsertAt reports whether stop si can sit at position pos of plan ti.
func feasibleInsertAt(p *Problem, pl Plan, ti, si, pos int) bool {
	if pin := p.pinnedTech(p.Stops[si]); pin != "" && pin != p.Techs[ti].ID {
		return false
	}
	if pos < 0 || pos > len(pl.Order) {
		return false
	}
	tmp := Plan{TechID: pl.TechID, Order: make([]int, 0, len(pl.Order)+1)}
	tmp.Order = append(tmp.Order, pl.Order[:pos]...)
	tmp.Order = append(tmp.Order, si)
	tmp.Order = append(tmp.Order, pl.Order[pos:]...)
	_, _, ok := schedulePlan(p, tmp, ti)
	return ok
}

// deltaInsert approximates the marginal distance of inserting si at pos.
func deltaInsert(p *Problem, pl Plan, ti, si, pos int) float64 {
	prev := p.techStartIdx(ti)
	if pos > 0 {
		prev = pl.Order[pos-1]
	}
	next := p.techEndIdx(ti)
	if pos < len(pl.Order) {
		next = pl.Order[pos]
	}
	return p.Matrix.Miles(prev, si) + p.Matrix.Miles(si, next) - p.Matrix.Miles(prev, next)
}

// greedySeed assigns stops round-robin by cheapest feasible append. Stops
// with no feasible home stay unassigned.
func greedySeed(p *Problem) Solution {
	n := len(p.Stops)
	used := make([]bool, n)
	plans := make([]Plan, len(p.Techs))
	for ti := range plans {
		plans[ti] = Plan{TechID: p.Techs[ti].ID, Order: []int{}}
	}
	assigned := 0
	for assigned < n {
		progress := false
		for ti := range p.Techs {
			bestIdx, bestDelta := -1, math.MaxFloat64
			for i := 0; i < n; i++ {
				if used[i] {
					continue
				}
				pos := len(plans[ti].Order)
				if !feasibleInsertAt(p, plans[ti], ti, i, pos) {
					continue
				}
				d := deltaInsert(p, plans[ti], ti, i, pos)
				if d < bestDelta {
					bestDelta = d
					bestIdx = i
				}
			}
			if bestIdx >= 0 {
				plans[ti].Order = append(plans[ti].Order, bestIdx)
				used[bestIdx] = true
				assigned++
				progress = true
				if assigned == n {
					break
				}
			}
		}
		if !progress {
			break
		}
	}
	sol := Solution{Plans: plans}
	for i := 0; i < n; i++ {
		if !used[i] {
			sol.Unassigned = append(sol.Unassigned, i)
		}
	}
	sol.Cost = cost(p, sol)
	return sol
}

func pickRandomStops(sol Solution, k int, rng *rand.Rand) []int {
	all := []int{}
	for _, pl := range sol.Plans {
		all = append(all, pl.Order...)
	}
	removed := []int{}
	for i := 0; i < k && len(all) > 0; i++ {
		j := rng.Intn(len(all))
		removed = append(removed, all[j])
		all = append(all[:j], all[j+1:]...)
	}
	return removed
}

// shawRemoval removes a seed stop plus its most related neighbors, scoring
// relatedness by proximity and time-window overlap.
func shawRemoval(p *Problem, sol Solution, k int, rng *rand.Rand) []int {
	assigned := []int{}
	for _, pl := range sol.Plans {
		assigned = append(assigned, pl.Order...)
	}
	if len(assigned) == 0 {
		return nil
	}
	seedIdx := assigned[rng.Intn(len(assigned))]
	sd := p.Stops[seedIdx]
	type scored struct {
		idx   int
		score float64
	}
	rel := []scored{}
	for _, idx := range assigned {
		if idx == seedIdx {
			continue
		}
		st := p.Stops[idx]
		geoScore := p.Matrix.Miles(seedIdx, idx)
		overlap := 0.0
		if sd.Window != nil && st.Window != nil {
			lo := math.Max(sd.Window.StartMin, st.Window.StartMin)
			hi := math.Min(sd.Window.EndMin, st.Window.EndMin)
			if hi > lo {
				overlap = hi - lo
			}
		}
		rel = append(rel, scored{idx: idx, score: geoScore - overlap/60})
	}
	for i := 0; i < len(rel); i++ {
		for j := i + 1; j < len(rel); j++ {
			if rel[j].score < rel[i].score {
				rel[i], rel[j] = rel[j], rel[i]
			}
		}
	}
	removed := []int{seedIdx}
	for i := 0; i < len(rel) && len(removed) < k; i++ {
		removed = append(removed, rel[i].idx)
	}
	return removed
}

func removeStops(sol Solution, removed []int) Solution {
	if len(removed) == 0 {
		return sol
	}
	rm := map[int]bool{}
	for _, i := range removed {
		rm[i] = true
	}
	out := Solution{Plans: make([]Plan, len(sol.Plans)), Unassigned: append([]int(nil), sol.Unassigned...)}
	for i := range sol.Plans {
		out.Plans[i].TechID = sol.Plans[i].TechID
		for _, idx := range sol.Plans[i].Order {
			if !rm[idx] {
				out.Plans[i].Order = append(out.Plans[i].Order, idx)
			}
		}
	}
	return out
}

func insertAt(pl *Plan, si, pos int) {
	if pos >= len(pl.Order) {
		pl.Order = append(pl.Order, si)
		return
	}
	pl.Order = append(pl.Order[:pos+1], pl.Order[pos:]...)
	pl.Order[pos] = si
}

// greedyInsert places pool stops by cheapest feasible insertion anywhere.
// Stops that fit nowhere stay unassigned.
func greedyInsert(p *Problem, sol Solution, pool []int) Solution {
	nodes := append([]int(nil), pool...)
	for len(nodes) > 0 {
		bestNode, bestPlan, bestPos := -1, -1, -1
		bestDelta := math.MaxFloat64
		for ni, si := range nodes {
			for ti := range sol.Plans {
				for pos := 0; pos <= len(sol.Plans[ti].Order); pos++ {
					if !feasibleInsertAt(p, sol.Plans[ti], ti, si, pos) {
						continue
					}
					d := deltaInsert(p, sol.Plans[ti], ti, si, pos)
					if d < bestDelta {
						bestDelta = d
						bestNode, bestPlan, bestPos = ni, ti, pos
					}
				}
			}
		}
		if bestNode == -1 {
			sol.Unassigned = append(sol.Unassigned, nodes...)
			break
		}
		insertAt(&sol.Plans[bestPlan], nodes[bestNode], bestPos)
		nodes = append(nodes[:bestNode], nodes[bestNode+1:]...)
	}
	sol.Cost = cost(p, sol)
	return sol
}

// regretInsert prefers the stop whose best and second-best placements differ
// most, so hard-to-place stops claim their slot first.
func regretInsert(p *Problem, sol Solution, pool []int) Solution {
	nodes := append([]int(nil), pool...)
	for len(nodes) > 0 {
		bestNode, bestPlan, bestPos := -1, -1, -1
		bestRegret := -1.0
		bestPrimary := math.MaxFloat64
		for ni, si := range nodes {
			best1, best2 := math.MaxFloat64, math.MaxFloat64
			bp, bpos := -1, -1
			for ti := range sol.Plans {
				for pos := 0; pos <= len(sol.Plans[ti].Order); pos++ {
					if !feasibleInsertAt(p, sol.Plans[ti], ti, si, pos) {
						continue
					}
					d := deltaInsert(p, sol.Plans[ti], ti, si, pos)
					if d < best1 {
						best2 = best1
						best1 = d
						bp, bpos = ti, pos
					} else if d < best2 {
						best2 = d
					}
				}
			}
			if bp == -1 {
				continue
			}
			regret := best2 - best1
			if best2 == math.MaxFloat64 {
				regret = math.MaxFloat64 // only one placement exists
			}
			if regret > bestRegret || (regret == bestRegret && best1 < bestPrimary) {
				bestRegret = regret
				bestPrimary = best1
				bestNode, bestPlan, bestPos = ni, bp, bpos
			}
		}
		if bestNode == -1 {
			sol.Unassigned = append(sol.Unassigned, nodes...)
			break
		}
		insertAt(&sol.Plans[bestPlan], nodes[bestNode], bestPos)
		nodes = append(nodes[:bestNode], nodes[bestNode+1:]...)
	}
	sol.Cost = cost(p, sol)
	return sol
}

func selectOp(weights []float64, rng *rand.Rand) int {
	sum := 0.0
	for _, w := range weights {
		sum += w
	}
	if sum <= 0 {
		return 0
	}
	r := rng.Float64() * sum
	acc := 0.0
	for i, w := range weights {
		acc += w
		if r <= acc {
			return i
		}
	}
	return len(weights) - 1
}
