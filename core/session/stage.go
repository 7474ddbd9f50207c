package session

import "fmt"

// Stage is the override session lifecycle position. Allocation, Justification
// and Review may be walked in both directions; Saved and Discarded are
// terminal.
type Stage int

const (
	StageAllocation Stage = iota
	StageJustification
	StageReview
	StageSaved
	StageDiscarded
)

func (s Stage) String() string {
	switch s {
	case StageAllocation:
		return "allocation"
	case StageJustification:
		return "justification"
	case StageReview:
		return "review"
	case StageSaved:
		return "saved"
	case StageDiscarded:
		return "discarded"
	}
	return fmt.Sprintf("Stage(%d)", int(s))
}

func (s Stage) terminal() bool {
	return s == StageSaved || s == StageDiscarded
}
