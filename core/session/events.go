package session

import (
	"time"

	"github.com/groundctl/passplan/core/model"
	"github.com/groundctl/passplan/core/planner"
)

// MutationEvent is published on the event bus after every mutation attempt.
type MutationEvent struct {
	SessionID     string
	OpportunityID string
	Mutation      string
	Severity      planner.Severity
	Conflicts     int
	Rejected      bool
	Time          time.Time
}

// SaveEvent is published after every save attempt.
type SaveEvent struct {
	SessionID     string
	OpportunityID string
	// Outcome is "ok", "conflict", "rejected" or "transport".
	Outcome string
	// Request is set on success so downstream consumers (notifiers) can
	// broadcast the saved allocation.
	Request  *model.SaveRequest
	Duration time.Duration
	Time     time.Time
}
