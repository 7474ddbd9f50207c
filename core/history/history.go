// Package history implements the undo/redo stack backing an override session.
// Records hold whole working-allocation snapshots rather than per-field diffs:
// restoring a state is a copy, never a replay.
package history

import "github.com/groundctl/passplan/core/model"

// State describes where the cursor sits in the stack.
type State int

const (
	// Clean means no edit has been applied (or all edits were undone).
	Clean State = iota
	// Dirty means the cursor sits on the latest record.
	Dirty
	// Undone means at least one record was undone and can still be redone.
	Undone
)

// Record is one history entry: the allocation before and after an edit, plus a
// monotonically increasing sequence number.
type Record struct {
	Seq    int
	Before model.AllocationSet
	After  model.AllocationSet
}

// Stack is a linear undo/redo stack with a cursor. Recording while undone
// discards the redo tail.
type Stack struct {
	original model.AllocationSet
	records  []Record
	cursor   int // count of applied records
	seq      int
}

// New creates a stack rooted at the session's original allocation snapshot.
func New(original model.AllocationSet) *Stack {
	return &Stack{original: original.Clone()}
}

// Current returns the allocation at the cursor.
func (s *Stack) Current() model.AllocationSet {
	if s.cursor == 0 {
		return s.original.Clone()
	}
	return s.records[s.cursor-1].After.Clone()
}

// Record pushes a new state, truncating any redo tail first.
func (s *Stack) Record(next model.AllocationSet) {
	before := s.Current()
	s.records = s.records[:s.cursor]
	s.seq++
	s.records = append(s.records, Record{Seq: s.seq, Before: before, After: next.Clone()})
	s.cursor = len(s.records)
}

// Undo moves the cursor back one record and returns the prior state. It
// reports false, leaving the stack untouched, at the bottom of the stack.
func (s *Stack) Undo() (model.AllocationSet, bool) {
	if s.cursor == 0 {
		return nil, false
	}
	s.cursor--
	return s.Current(), true
}

// Redo re-applies the next undone record. It reports false when nothing can
// be redone.
func (s *Stack) Redo() (model.AllocationSet, bool) {
	if s.cursor >= len(s.records) {
		return nil, false
	}
	s.cursor++
	return s.Current(), true
}

// Reset clears the stack and returns the original snapshot.
func (s *Stack) Reset() model.AllocationSet {
	s.records = nil
	s.cursor = 0
	return s.original.Clone()
}

// CanUndo reports whether an undo would change state.
func (s *Stack) CanUndo() bool { return s.cursor > 0 }

// CanRedo reports whether a redo would change state.
func (s *Stack) CanRedo() bool { return s.cursor < len(s.records) }

// Depth returns the number of applied records.
func (s *Stack) Depth() int { return s.cursor }

// State reports the stack's position: Clean, Dirty or Undone.
func (s *Stack) State() State {
	switch {
	case s.cursor < len(s.records):
		return Undone
	case s.cursor > 0:
		return Dirty
	default:
		return Clean
	}
}
