// Package metrics defines the sink interface override-session events are
// recorded through. Concrete sinks live under infra/metrics.
package metrics

import "time"

// MutationRecord describes one applied (or rejected) session mutation.
type MutationRecord struct {
	SessionID     string
	OpportunityID string
	Mutation      string
	// Severity is the worst capacity severity after the mutation.
	Severity string
	// Conflicts counts the conflicts reported after the mutation.
	Conflicts int
	Rejected  bool
	Time      time.Time
}

// SaveRecord describes one save attempt.
type SaveRecord struct {
	SessionID     string
	OpportunityID string
	// Outcome is "ok", "conflict", "rejected" or "transport".
	Outcome  string
	Duration time.Duration
	Time     time.Time
}

// Sink records session events. Implementations must be safe for concurrent
// use.
type Sink interface {
	RecordMutation(rec MutationRecord) error
	RecordSave(rec SaveRecord) error
}

// NopSink discards all records.
type NopSink struct{}

func (NopSink) RecordMutation(MutationRecord) error { return nil }
func (NopSink) RecordSave(SaveRecord) error         { return nil }
