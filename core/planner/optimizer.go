package planner

import (
	"sort"

	"github.com/groundctl/passplan/core/model"
)

// Suggestion is the outcome of an auto-optimization run.
type Suggestion struct {
	Allocation model.AllocationSet
	// Residual counts the passes that could not be placed on any eligible
	// site. Zero means the full request was covered.
	Residual int
}

// Planner produces a suggested allocation of total passes across candidate
// sites. Implementations must be deterministic and must never produce an
// allocation the capacity validator would grade critical.
type Planner interface {
	Plan(opp model.Opportunity, candidates []model.Site, total int, cfg Config) Suggestion
}

// ForConfig returns the planner selected by cfg.Strategy.
func ForConfig(cfg Config) Planner {
	if cfg.Strategy == StrategyLP {
		return LPPlanner{}
	}
	return SharePlanner{}
}

// SharePlanner distributes passes with a greedy even-share heuristic: eligible
// sites get an equal share of the total, capped at their remaining capacity,
// with the spill redistributed until either the total is placed or every site
// is full. Predictable and fast rather than globally optimal.
type SharePlanner struct{}

// Plan implements Planner.
func (SharePlanner) Plan(opp model.Opportunity, candidates []model.Site, total int, cfg Config) Suggestion {
	eligible := eligibleSites(opp, candidates)
	if total <= 0 || len(eligible) == 0 {
		return Suggestion{Residual: max(total, 0)}
	}
	if len(eligible) > cfg.MaxAutoSites {
		eligible = eligible[:cfg.MaxAutoSites]
	}

	assigned := make([]int, len(eligible))
	left := total
	for left > 0 {
		spare := 0
		for i, s := range eligible {
			if assigned[i] < s.RemainingCapacity() {
				spare++
			}
		}
		if spare == 0 {
			break
		}
		share := left / spare
		if share == 0 {
			share = 1
		}
		for i, s := range eligible {
			if left == 0 {
				break
			}
			take := s.RemainingCapacity() - assigned[i]
			if take > share {
				take = share
			}
			if take > left {
				take = left
			}
			if take <= 0 {
				continue
			}
			assigned[i] += take
			left -= take
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

// eligibleSites filters out sites the suggestion may never touch: no remaining
// capacity, an operational-window conflict for the opportunity's pass time, or
// an accreditation below the opportunity's marking. The survivors are ordered
// by remaining capacity descending, then id, for determinism.
func eligibleSites(opp model.Opportunity, candidates []model.Site) []model.Site {
	caps := capacityCaps(opp, candidates)
	eligible := make([]model.Site, 0, len(candidates))
	for _, s := range candidates {
		if caps[s.ID] > 0 {
			eligible = append(eligible, s)
		}
	}
	sort.Slice(eligible, func(i, j int) bool {
		ri, rj := eligible[i].RemainingCapacity(), eligible[j].RemainingCapacity()
		if ri != rj {
			return ri > rj
		}
		return eligible[i].ID < eligible[j].ID
	})
	return eligible
}

// capacityCaps returns, per candidate site, the largest pass count the
// suggestion may assign; absence marks an ineligible site.
func capacityCaps(opp model.Opportunity, candidates []model.Site) map[string]int {
	caps := make(map[string]int, len(candidates))
	for _, s := range candidates {
		remaining := s.RemainingCapacity()
		if remaining <= 0 {
			continue
		}
		if open, err := s.OpenAt(opp.Window.Start); err != nil || !open {
			continue
		}
		if s.Accreditation != model.ClassificationNone && opp.Classification > s.Accreditation {
			continue
		}
		caps[s.ID] = remaining
	}
	return caps
}
