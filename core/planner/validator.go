package planner

import (
	"fmt"
	"math"
	"sort"

	"github.com/groundctl/passplan/core/model"
)

// Severity grades a site's capacity report.
type Severity int

const (
	SeverityOK Severity = iota
	SeverityWarning
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityOK:
		return "ok"
	case SeverityWarning:
		return "warning"
	case SeverityCritical:
		return "critical"
	}
	return fmt.Sprintf("Severity(%d)", int(s))
}

// SiteReport is the per-site outcome of capacity validation.
type SiteReport struct {
	SiteID          string
	RequestedPasses int
	// RemainingBefore is the site's remaining capacity before this request,
	// i.e. capacity minus the externally committed load.
	RemainingBefore int
	// Utilization is RequestedPasses over RemainingBefore, +Inf when nothing
	// remains.
	Utilization float64
	Severity    Severity
}

// Report is the outcome of validating a working allocation against its sites.
type Report struct {
	Sites []SiteReport
}

// Worst returns the highest severity across all site reports.
func (r Report) Worst() Severity {
	worst := SeverityOK
	for _, s := range r.Sites {
		if s.Severity > worst {
			worst = s.Severity
		}
	}
	return worst
}

// Validate computes per-site utilization and severity for a working allocation.
// It is pure: same inputs, same report. Sites are looked up by id in the given
// table; an allocation referencing an unknown site, or a malformed set, is a
// contract violation and returns an error wrapping model.ErrInvariant.
func Validate(alloc model.AllocationSet, sites map[string]model.Site, cfg Config) (Report, error) {
	if err := alloc.Validate(); err != nil {
		return Report{}, err
	}
	reports := make([]SiteReport, 0, len(alloc))
	for _, a := range alloc {
		site, ok := sites[a.SiteID]
		if !ok {
			return Report{}, fmt.Errorf("%w: allocation references unknown site %s", model.ErrInvariant, a.SiteID)
		}
		reports = append(reports, validateSite(a, site, cfg))
	}
	sort.Slice(reports, func(i, j int) bool { return reports[i].SiteID < reports[j].SiteID })
	return Report{Sites: reports}, nil
}

func validateSite(a model.Allocation, site model.Site, cfg Config) SiteReport {
	remaining := site.RemainingCapacity()
	rep := SiteReport{
		SiteID:          a.SiteID,
		RequestedPasses: a.Passes,
		RemainingBefore: remaining,
	}
	if remaining <= 0 {
		rep.Utilization = math.Inf(1)
		rep.Severity = SeverityCritical
		return rep
	}
	rep.Utilization = float64(a.Passes) / float64(remaining)
	switch {
	case a.Passes > remaining || rep.Utilization >= cfg.CriticalThreshold:
		rep.Severity = SeverityCritical
	case rep.Utilization >= cfg.WarningThreshold:
		rep.Severity = SeverityWarning
	default:
		rep.Severity = SeverityOK
	}
	return rep
}
