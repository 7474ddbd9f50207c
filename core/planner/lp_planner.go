package planner

import (
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize/convex/lp"

	"github.com/groundctl/passplan/core/model"
)

// LPPlanner solves a linear program maximizing capacity-weighted assignment
// subject to per-site remaining capacity and the requested total. It falls
// back to the greedy SharePlanner when the solver fails, so it inherits the
// same determinism and capacity guarantees.
type LPPlanner struct{}

// lpSolve points to the simplex solver. Tests override it to simulate solver
// failures.
var lpSolve = solveLP

// Plan implements Planner.
func (p LPPlanner) Plan(opp model.Opportunity, candidates []model.Site, total int, cfg Config) Suggestion {
	eligible := eligibleSites(opp, candidates)
	if total <= 0 || len(eligible) == 0 {
		return Suggestion{Residual: max(total, 0)}
	}
	if len(eligible) > cfg.MaxAutoSites {
		eligible = eligible[:cfg.MaxAutoSites]
	}

	caps := make([]float64, len(eligible))
	scores := make([]float64, len(eligible))
	maxRemaining := 0
	for _, s := range eligible {
		if r := s.RemainingCapacity(); r > maxRemaining {
			maxRemaining = r
		}
	}
	for i, s := range eligible {
		caps[i] = float64(s.RemainingCapacity())
		// Prefer sites with more headroom; the small index bias keeps the
		// solution deterministic among equal-capacity sites.
		scores[i] = caps[i]/float64(maxRemaining) + float64(len(eligible)-i)*1e-4
	}

	sol, err := lpSolve(scores, caps, float64(total))
	if err != nil {
		return SharePlanner{}.Plan(opp, candidates, total, cfg)
	}

	assigned := roundDown(sol, caps)
	left := total - sum(assigned)
	// The relaxation is continuous; hand back the flooring loss greedily.
	for left > 0 {
		progressed := false
		for i := range assigned {
			if left == 0 {
				break
			}
			if float64(assigned[i]) < caps[i] {
				assigned[i]++
				left--
				progressed = true
			}
		}
		if !progressed {
			break
		}
	}

	var alloc model.AllocationSet
	for i, s := range eligible {
		if assigned[i] > 0 {
			alloc = append(alloc, model.Allocation{SiteID: s.ID, Passes: assigned[i]})
		}
	}
	return Suggestion{Allocation: alloc, Residual: left}
}

// solveLP maximizes score-weighted assignment subject to x_i <= caps_i and
// sum(x) == target via the simplex method. An unmet target reports as an
// infeasible program.
func solveLP(scores, caps []float64, target float64) ([]float64, error) {
	n := len(caps)
	c := make([]float64, n)
	for i, s := range scores {
		c[i] = -s
	}

	g := mat.NewDense(n, n, nil)
	h := make([]float64, n)
	for i, capRem := range caps {
		g.Set(i, i, 1)
		h[i] = capRem
	}

	a := mat.NewDense(1, n, nil)
	for i := 0; i < n; i++ {
		a.Set(0, i, 1)
	}
	b := []float64{target}

	cStd, aStd, bStd := lp.Convert(c, g, h, a, b)
	_, sol, err := lp.Simplex(cStd, aStd, bStd, 1e-7, nil)
	if err != nil {
		return nil, err
	}
	return sol[:n], nil
}

func roundDown(sol, caps []float64) []int {
	out := make([]int, len(caps))
	for i := range caps {
		x := sol[i]
		if x < 0 {
			x = 0
		}
		if x > caps[i] {
			x = caps[i]
		}
		out[i] = int(math.Floor(x + 1e-9))
	}
	return out
}

func sum(xs []int) int {
	total := 0
	for _, x := range xs {
		total += x
	}
	return total
}
