package model

// SaveRequest is the full-state persistence payload emitted when an override
// session is saved. It describes the final allocation, not a delta, so a retry
// with the same request is idempotent.
type SaveRequest struct {
	// RequestID is stable across retries of the same session save.
	RequestID     string `json:"request_id"`
	OpportunityID string `json:"opportunity_id"`

	FinalAllocation []Allocation `json:"final_allocation"`

	Justification              string `json:"justification"`
	ClassificationAcknowledged bool   `json:"classification_acknowledged"`

	// ForceOverride records that the operator saved despite blocking capacity
	// or operational-window conflicts.
	ForceOverride bool `json:"force_override"`
}
