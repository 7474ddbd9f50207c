package metrics

import (
	"context"

	coremetrics "github.com/groundctl/passplan/core/metrics"
	"github.com/groundctl/passplan/core/session"
	"github.com/groundctl/passplan/internal/eventbus"
)

// StartEventCollector subscribes to the event bus and forwards session events
// to the sink. It returns once the context is canceled or the bus closes.
func StartEventCollector(ctx context.Context, bus eventbus.EventBus, sink coremetrics.Sink) {
	if bus == nil || sink == nil {
		return
	}
	sub := bus.Subscribe()
	go func() {
		defer bus.Unsubscribe(sub)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-sub:
				if !ok {
					return
				}
				record(sink, ev)
			}
		}
	}()
}

func record(sink coremetrics.Sink, ev eventbus.Event) {
	switch e := ev.(type) {
	case session.MutationEvent:
		_ = sink.RecordMutation(coremetrics.MutationRecord{
			SessionID:     e.SessionID,
			OpportunityID: e.OpportunityID,
			Mutation:      e.Mutation,
			Severity:      e.Severity.String(),
			Conflicts:     e.Conflicts,
			Rejected:      e.Rejected,
			Time:          e.Time,
		})
	case session.SaveEvent:
		_ = sink.RecordSave(coremetrics.SaveRecord{
			SessionID:     e.SessionID,
			OpportunityID: e.OpportunityID,
			Outcome:       e.Outcome,
			Duration:      e.Duration,
			Time:          e.Time,
		})
	}
}
