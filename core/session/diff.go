package session

import "sort"

// DiffEntry records how one site's pass count changed between the original
// snapshot and the working allocation.
type DiffEntry struct {
	SiteID string
	Before int
	After  int
}

// Diff is the read-only review summary of a session.
type Diff struct {
	Added   []DiffEntry
	Removed []DiffEntry
	Changed []DiffEntry

	TotalSites  int
	TotalPasses int

	Justification string
	ForceOverride bool
}

// Diff summarizes original-vs-working for the review stage.
func (c *Controller) Diff() Diff {
	c.mu.Lock()
	defer c.mu.Unlock()

	d := Diff{
		TotalSites:    len(c.working),
		TotalPasses:   c.working.TotalPasses(),
		Justification: c.justification,
		ForceOverride: c.force,
	}
	for _, a := range c.working {
		before, ok := c.original.Get(a.SiteID)
		switch {
		case !ok:
			d.Added = append(d.Added, DiffEntry{SiteID: a.SiteID, After: a.Passes})
		case before != a.Passes:
			d.Changed = append(d.Changed, DiffEntry{SiteID: a.SiteID, Before: before, After: a.Passes})
		}
	}
	for _, a := range c.original {
		if _, ok := c.working.Get(a.SiteID); !ok {
			d.Removed = append(d.Removed, DiffEntry{SiteID: a.SiteID, Before: a.Passes})
		}
	}
	sortEntries(d.Added)
	sortEntries(d.Removed)
	sortEntries(d.Changed)
	return d
}

func sortEntries(entries []DiffEntry) {
	sort.Slice(entries, func(i, j int) bool { return entries[i].SiteID < entries[j].SiteID })
}
