package model

import (
	"fmt"
	"time"
)

// MatchStatus is the externally computed allocation quality of an opportunity.
// The engine passes it through without recomputing it.
type MatchStatus string

const (
	MatchUnmatched MatchStatus = "unmatched"
	MatchBaseline  MatchStatus = "baseline"
	MatchOptimal   MatchStatus = "optimal"
)

// PassWindow is the time interval during which the satellite is collectable.
type PassWindow struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Opportunity represents a satellite pass that needs to be collected by one or
// more ground sites.
type Opportunity struct {
	ID          string `json:"id"`
	SatelliteID string `json:"satellite_id"`

	// Sensor names the collection capability, e.g. "EO" or "SAR".
	Sensor string     `json:"sensor,omitempty"`
	Window PassWindow `json:"window"`

	Classification ClassificationLevel `json:"classification,omitempty"`

	// RequiredPasses is the total pass count the opportunity needs collected.
	RequiredPasses int `json:"required_passes"`

	// Allocations is the current assignment of passes to sites.
	Allocations AllocationSet `json:"allocations,omitempty"`

	Match MatchStatus `json:"match,omitempty"`
}

// Validate checks that the opportunity snapshot is sound enough to open an
// override session on.
func (o Opportunity) Validate() error {
	if o.ID == "" {
		return fmt.Errorf("opportunity id is required")
	}
	if o.RequiredPasses < 0 {
		return fmt.Errorf("opportunity %s: required passes cannot be negative", o.ID)
	}
	if !o.Window.End.IsZero() && o.Window.End.Before(o.Window.Start) {
		return fmt.Errorf("opportunity %s: pass window ends before it starts", o.ID)
	}
	return o.Allocations.Validate()
}
