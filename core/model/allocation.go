package model

import (
	"errors"
	"fmt"
	"sort"
)

// ErrInvariant marks a broken domain invariant reaching the engine. It is a
// contract violation on the caller's side, not a user-facing condition.
var ErrInvariant = errors.New("domain invariant violated")

// Allocation assigns a pass count from an opportunity to one site.
type Allocation struct {
	SiteID string `json:"site_id"`
	Passes int    `json:"passes"`
}

// NewAllocation builds an Allocation, rejecting non-positive pass counts and
// empty site ids.
func NewAllocation(siteID string, passes int) (Allocation, error) {
	if siteID == "" {
		return Allocation{}, fmt.Errorf("allocation requires a site id")
	}
	if passes <= 0 {
		return Allocation{}, fmt.Errorf("allocation for site %s: passes must be positive, got %d", siteID, passes)
	}
	return Allocation{SiteID: siteID, Passes: passes}, nil
}

// AllocationSet is an opportunity's allocation across sites. A well-formed set
// has unique site ids and no zero-pass entries. Mutating helpers return a new
// set and leave the receiver untouched.
type AllocationSet []Allocation

// Get returns the pass count assigned to the site, if any.
func (s AllocationSet) Get(siteID string) (int, bool) {
	for _, a := range s {
		if a.SiteID == siteID {
			return a.Passes, true
		}
	}
	return 0, false
}

// With returns a copy of the set with the site's entry set to passes. A passes
// value of zero removes the entry instead of retaining it.
func (s AllocationSet) With(siteID string, passes int) AllocationSet {
	if passes <= 0 {
		return s.Without(siteID)
	}
	out := make(AllocationSet, 0, len(s)+1)
	replaced := false
	for _, a := range s {
		if a.SiteID == siteID {
			out = append(out, Allocation{SiteID: siteID, Passes: passes})
			replaced = true
			continue
		}
		out = append(out, a)
	}
	if !replaced {
		out = append(out, Allocation{SiteID: siteID, Passes: passes})
	}
	return out
}

// Without returns a copy of the set with the site's entry removed.
func (s AllocationSet) Without(siteID string) AllocationSet {
	out := make(AllocationSet, 0, len(s))
	for _, a := range s {
		if a.SiteID != siteID {
			out = append(out, a)
		}
	}
	return out
}

// Clone returns an independent copy of the set.
func (s AllocationSet) Clone() AllocationSet {
	out := make(AllocationSet, len(s))
	copy(out, s)
	return out
}

// TotalPasses sums the passes across all entries.
func (s AllocationSet) TotalPasses() int {
	total := 0
	for _, a := range s {
		total += a.Passes
	}
	return total
}

// SiteIDs returns the allocated site ids in sorted order.
func (s AllocationSet) SiteIDs() []string {
	ids := make([]string, 0, len(s))
	for _, a := range s {
		ids = append(ids, a.SiteID)
	}
	sort.Strings(ids)
	return ids
}

// Equal reports whether both sets carry the same entries, ignoring order.
func (s AllocationSet) Equal(other AllocationSet) bool {
	if len(s) != len(other) {
		return false
	}
	for _, a := range s {
		p, ok := other.Get(a.SiteID)
		if !ok || p != a.Passes {
			return false
		}
	}
	return true
}

// Validate checks the well-formedness invariants: unique site ids and strictly
// positive pass counts. A violation wraps ErrInvariant.
func (s AllocationSet) Validate() error {
	seen := make(map[string]bool, len(s))
	for _, a := range s {
		if a.SiteID == "" {
			return fmt.Errorf("%w: allocation with empty site id", ErrInvariant)
		}
		if a.Passes <= 0 {
			return fmt.Errorf("%w: site %s holds %d passes", ErrInvariant, a.SiteID, a.Passes)
		}
		if seen[a.SiteID] {
			return fmt.Errorf("%w: duplicate allocation for site %s", ErrInvariant, a.SiteID)
		}
		seen[a.SiteID] = true
	}
	return nil
}
