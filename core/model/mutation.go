package model

// Mutation is one edit requested against an override session's working state.
// It is a closed set of operations; the session controller matches every
// variant exhaustively.
type Mutation interface {
	mutation()
	// Name identifies the operation for logging and metrics.
	Name() string
}

// AddSite allocates a candidate site with the smallest legal pass count (1).
type AddSite struct {
	SiteID string
}

// RemoveSite drops a site from the working allocation.
type RemoveSite struct {
	SiteID string
}

// SetPasses sets the pass count for a candidate site, creating the entry when
// the site is not yet allocated.
type SetPasses struct {
	SiteID string
	Passes int
}

// AutoOptimize asks the planner to fill the unallocated remainder across the
// still-unallocated candidate sites.
type AutoOptimize struct{}

// SetJustification records the operator's justification text.
type SetJustification struct {
	Text string
}

// AcknowledgeClassification records whether the operator acknowledged the
// opportunity's classification marking.
type AcknowledgeClassification struct {
	Acknowledged bool
}

func (AddSite) mutation()                   {}
func (RemoveSite) mutation()                {}
func (SetPasses) mutation()                 {}
func (AutoOptimize) mutation()              {}
func (SetJustification) mutation()          {}
func (AcknowledgeClassification) mutation() {}

func (AddSite) Name() string                   { return "add_site" }
func (RemoveSite) Name() string                { return "remove_site" }
func (SetPasses) Name() string                 { return "set_passes" }
func (AutoOptimize) Name() string              { return "auto_optimize" }
func (SetJustification) Name() string          { return "set_justification" }
func (AcknowledgeClassification) Name() string { return "acknowledge_classification" }
