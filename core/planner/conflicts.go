package planner

import (
	"fmt"
	"sort"

	"github.com/groundctl/passplan/core/model"
)

// ConflictKind orders conflict types by precedence, highest first.
type ConflictKind int

const (
	ConflictCapacityCritical ConflictKind = iota
	ConflictOperationalWindow
	ConflictClassification
	ConflictCapacityWarning
)

func (k ConflictKind) String() string {
	switch k {
	case ConflictCapacityCritical:
		return "capacity_critical"
	case ConflictOperationalWindow:
		return "operational_window"
	case ConflictClassification:
		return "classification"
	case ConflictCapacityWarning:
		return "capacity_warning"
	}
	return fmt.Sprintf("ConflictKind(%d)", int(k))
}

// Conflict is one reason a working allocation is degraded or unsavable.
type Conflict struct {
	Kind   ConflictKind
	SiteID string
	Reason string
	// Blocking conflicts prevent saving unless force-overridden; capacity
	// warnings never block.
	Blocking bool
}

// Resolution merges the capacity report with the non-capacity conflicts for a
// working allocation. Conflicts are sorted by precedence.
type Resolution struct {
	Capacity  Report
	Conflicts []Conflict
}

// Blocking returns the highest-precedence blocking conflict, or nil.
func (r Resolution) Blocking() *Conflict {
	for i := range r.Conflicts {
		if r.Conflicts[i].Blocking {
			return &r.Conflicts[i]
		}
	}
	return nil
}

// Resolve validates capacity and layers operational-window and classification
// conflicts on top. It is pure; contract violations (malformed sets, unknown
// sites) are returned as errors wrapping model.ErrInvariant.
func Resolve(opp model.Opportunity, alloc model.AllocationSet, sites map[string]model.Site, cfg Config) (Resolution, error) {
	report, err := Validate(alloc, sites, cfg)
	if err != nil {
		return Resolution{}, err
	}

	var conflicts []Conflict
	for _, rep := range report.Sites {
		switch rep.Severity {
		case SeverityCritical:
			conflicts = append(conflicts, Conflict{
				Kind:     ConflictCapacityCritical,
				SiteID:   rep.SiteID,
				Reason:   fmt.Sprintf("site %s: %d passes requested, %d remaining", rep.SiteID, rep.RequestedPasses, rep.RemainingBefore),
				Blocking: true,
			})
		case SeverityWarning:
			conflicts = append(conflicts, Conflict{
				Kind:   ConflictCapacityWarning,
				SiteID: rep.SiteID,
				Reason: fmt.Sprintf("site %s: utilization %.0f%%", rep.SiteID, rep.Utilization*100),
			})
		}
	}

	for _, a := range alloc {
		site := sites[a.SiteID]
		if c := windowConflict(opp, site); c != nil {
			conflicts = append(conflicts, *c)
		}
		if c := classificationConflict(opp, site); c != nil {
			conflicts = append(conflicts, *c)
		}
	}

	sort.SliceStable(conflicts, func(i, j int) bool { return conflicts[i].Kind < conflicts[j].Kind })
	return Resolution{Capacity: report, Conflicts: conflicts}, nil
}

func windowConflict(opp model.Opportunity, site model.Site) *Conflict {
	open, err := site.OpenAt(opp.Window.Start)
	if err != nil {
		return &Conflict{
			Kind:     ConflictOperationalWindow,
			SiteID:   site.ID,
			Reason:   err.Error(),
			Blocking: true,
		}
	}
	if !open {
		return &Conflict{
			Kind:     ConflictOperationalWindow,
			SiteID:   site.ID,
			Reason:   fmt.Sprintf("site %s is not operational at %s", site.ID, opp.Window.Start.Format("Mon 15:04 MST")),
			Blocking: true,
		}
	}
	return nil
}

func classificationConflict(opp model.Opportunity, site model.Site) *Conflict {
	if site.Accreditation == model.ClassificationNone {
		return nil
	}
	if opp.Classification > site.Accreditation {
		return &Conflict{
			Kind:     ConflictClassification,
			SiteID:   site.ID,
			Reason:   fmt.Sprintf("site %s accredited to %s, opportunity marked %s", site.ID, site.Accreditation, opp.Classification),
			Blocking: true,
		}
	}
	return nil
}
