package metrics

import "errors"

// MultiSink fans every record out to several sinks, collecting their errors.
type MultiSink struct {
	sinks []Sink
}

// NewMultiSink combines the given sinks into one.
func NewMultiSink(sinks ...Sink) *MultiSink {
	return &MultiSink{sinks: sinks}
}

// RecordMutation implements Sink.
func (m *MultiSink) RecordMutation(rec MutationRecord) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.RecordMutation(rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// RecordSave implements Sink.
func (m *MultiSink) RecordSave(rec SaveRecord) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.RecordSave(rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
