package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/groundctl/passplan/core/model"
	"github.com/groundctl/passplan/core/planner"
	"github.com/groundctl/passplan/core/store"
	"github.com/groundctl/passplan/internal/eventbus"
)

// 2026-03-02 14:00 UTC is a Monday afternoon.
var passStart = time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC)

func testOpportunity() model.Opportunity {
	return model.Opportunity{
		ID:             "opp-1",
		SatelliteID:    "sat-9",
		Window:         model.PassWindow{Start: passStart, End: passStart.Add(10 * time.Minute)},
		RequiredPasses: 12,
		Allocations:    model.AllocationSet{{SiteID: "A", Passes: 2}},
	}
}

func testCandidates() []model.Site {
	return []model.Site{
		{ID: "A", Capacity: 10},
		{ID: "B", Capacity: 10},
		{ID: "C", Capacity: 10, AllocatedPasses: 8},
	}
}

func newSession(t *testing.T, cfg Config) *Controller {
	t.Helper()
	c, err := New(testOpportunity(), testCandidates(), cfg)
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	return c
}

func mustApply(t *testing.T, c *Controller, m model.Mutation) *MutationResult {
	t.Helper()
	res, err := c.ApplyMutation(m)
	if err != nil {
		t.Fatalf("apply %s: %v", m.Name(), err)
	}
	return res
}

func advanceToReview(t *testing.T, c *Controller, justification string) {
	t.Helper()
	if justification != "" {
		mustApply(t, c, model.SetJustification{Text: justification})
	}
	if err := c.EnterJustification(false); err != nil {
		t.Fatalf("enter justification: %v", err)
	}
	if err := c.EnterReview(); err != nil {
		t.Fatalf("enter review: %v", err)
	}
}

func TestNewRejectsBrokenSnapshots(t *testing.T) {
	opp := testOpportunity()
	if _, err := New(opp, []model.Site{{ID: "A", Capacity: 5}, {ID: "A", Capacity: 5}}, Config{}); err == nil {
		t.Fatalf("expected error for duplicate candidates")
	}
	if _, err := New(opp, []model.Site{{ID: "B", Capacity: 5}}, Config{}); err == nil {
		t.Fatalf("expected error for allocated site missing from candidates")
	}
	opp.Allocations = model.AllocationSet{{SiteID: "A", Passes: 0}}
	if _, err := New(opp, testCandidates(), Config{}); err == nil {
		t.Fatalf("expected error for zero-pass snapshot entry")
	}
}

func TestApplyMutationRejectsMalformed(t *testing.T) {
	c := newSession(t, Config{})

	var verr *ValidationError
	if _, err := c.ApplyMutation(model.SetPasses{SiteID: "A", Passes: 0}); !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := c.ApplyMutation(model.SetPasses{SiteID: "ghost", Passes: 2}); !errors.As(err, &verr) {
		t.Fatalf("expected validation error for unknown site, got %v", err)
	}
	if _, err := c.ApplyMutation(model.AddSite{SiteID: "A"}); !errors.As(err, &verr) {
		t.Fatalf("expected validation error for already-allocated site, got %v", err)
	}
	if _, err := c.ApplyMutation(model.RemoveSite{SiteID: "B"}); !errors.As(err, &verr) {
		t.Fatalf("expected validation error for unallocated site, got %v", err)
	}
	if !c.Working().Equal(c.Original()) {
		t.Fatalf("rejected mutations must not touch working state")
	}
	if c.CanUndo() {
		t.Fatalf("rejected mutations must not be recorded")
	}
}

func TestOverbookingReportsCriticalAndBlocksSave(t *testing.T) {
	// Site C has 2 passes remaining; requesting 5 is critical.
	c := newSession(t, Config{})
	res := mustApply(t, c, model.SetPasses{SiteID: "C", Passes: 5})

	if res.Resolution.Capacity.Worst() != planner.SeverityCritical {
		t.Fatalf("expected critical severity, got %v", res.Resolution.Capacity.Worst())
	}
	if res.Resolution.Blocking() == nil {
		t.Fatalf("expected blocking conflict")
	}
	if c.CanSave() {
		t.Fatalf("session with critical conflict must not be savable")
	}
}

func TestUndoRestoresOriginalSnapshot(t *testing.T) {
	c := newSession(t, Config{})
	mustApply(t, c, model.AddSite{SiteID: "B"})
	mustApply(t, c, model.SetPasses{SiteID: "B", Passes: 3})

	if _, err := c.Undo(); err != nil {
		t.Fatalf("undo: %v", err)
	}
	if _, err := c.Undo(); err != nil {
		t.Fatalf("undo: %v", err)
	}
	if !c.Working().Equal(c.Original()) {
		t.Fatalf("expected original after two undos, got %+v", c.Working())
	}

	// Bottom of the stack: a further undo is a no-op, not an error.
	if _, err := c.Undo(); err != nil {
		t.Fatalf("undo at bottom: %v", err)
	}
	if !c.Working().Equal(c.Original()) {
		t.Fatalf("no-op undo changed state")
	}
}

func TestRedoInvalidation(t *testing.T) {
	c := newSession(t, Config{})
	mustApply(t, c, model.AddSite{SiteID: "B"})
	mustApply(t, c, model.SetPasses{SiteID: "B", Passes: 6})
	if _, err := c.Undo(); err != nil {
		t.Fatalf("undo: %v", err)
	}
	mustApply(t, c, model.SetPasses{SiteID: "A", Passes: 4})

	if c.CanRedo() {
		t.Fatalf("new mutation must discard the redo tail")
	}
	before := c.Working()
	if _, err := c.Redo(); err != nil {
		t.Fatalf("redo: %v", err)
	}
	if !c.Working().Equal(before) {
		t.Fatalf("redo after invalidation must be a no-op")
	}
}

func TestUndoThenRedoReturnsToLatest(t *testing.T) {
	c := newSession(t, Config{})
	mustApply(t, c, model.SetPasses{SiteID: "A", Passes: 7})
	latest := c.Working()
	if _, err := c.Undo(); err != nil {
		t.Fatalf("undo: %v", err)
	}
	if _, err := c.Redo(); err != nil {
		t.Fatalf("redo: %v", err)
	}
	if !c.Working().Equal(latest) {
		t.Fatalf("redo must restore the undone state")
	}
}

func TestResetToOriginal(t *testing.T) {
	c := newSession(t, Config{})
	mustApply(t, c, model.AddSite{SiteID: "B"})
	mustApply(t, c, model.SetPasses{SiteID: "A", Passes: 9})
	if _, err := c.ResetToOriginal(); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if !c.Working().Equal(c.Original()) {
		t.Fatalf("expected original after reset")
	}
	if c.CanUndo() || c.CanRedo() {
		t.Fatalf("reset must clear the history")
	}
}

func TestAutoOptimizeFillsRemainder(t *testing.T) {
	c := newSession(t, Config{})
	res := mustApply(t, c, model.AutoOptimize{})

	// 12 required minus the 2 already on A leaves 10 to place on B and C.
	working := c.Working()
	if p, _ := working.Get("A"); p != 2 {
		t.Fatalf("auto-optimize must not disturb existing allocations, got A=%d", p)
	}
	if working.TotalPasses() != 12 {
		t.Fatalf("expected 12 total passes, got %d", working.TotalPasses())
	}
	if res.Residual != 0 {
		t.Fatalf("expected no residual, got %d", res.Residual)
	}
	if p, _ := working.Get("C"); p > 2 {
		t.Fatalf("site C has only 2 remaining, got %d", p)
	}
}

func TestAutoOptimizeWhenFullyAllocated(t *testing.T) {
	c := newSession(t, Config{})
	mustApply(t, c, model.SetPasses{SiteID: "A", Passes: 10})
	mustApply(t, c, model.SetPasses{SiteID: "B", Passes: 2})

	var verr *ValidationError
	if _, err := c.ApplyMutation(model.AutoOptimize{}); !errors.As(err, &verr) {
		t.Fatalf("expected validation error when nothing is left to place, got %v", err)
	}
}

func TestJustificationGating(t *testing.T) {
	c := newSession(t, Config{})
	mustApply(t, c, model.SetPasses{SiteID: "A", Passes: 4})

	if c.CanSave() {
		t.Fatalf("changed allocation without justification must not be savable")
	}
	mustApply(t, c, model.SetJustification{Text: "   "})
	if c.CanSave() {
		t.Fatalf("whitespace justification counts as empty")
	}
	mustApply(t, c, model.SetJustification{Text: "priority tasking shifted"})
	if !c.CanSave() {
		t.Fatalf("expected savable with justification, blockers: %v", c.SaveBlockers())
	}
}

func TestUnchangedSessionNeedsNoJustification(t *testing.T) {
	c := newSession(t, Config{})
	if !c.CanSave() {
		t.Fatalf("unchanged session must be savable without justification: %v", c.SaveBlockers())
	}
}

func TestClassificationAcknowledgmentGate(t *testing.T) {
	opp := testOpportunity()
	opp.Classification = model.ClassificationSecret
	c, err := New(opp, testCandidates(), Config{AckThreshold: model.ClassificationSecret})
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	mustApply(t, c, model.SetPasses{SiteID: "A", Passes: 4})
	mustApply(t, c, model.SetJustification{Text: "coverage gap"})

	if c.CanSave() {
		t.Fatalf("marked opportunity must require acknowledgment")
	}
	mustApply(t, c, model.AcknowledgeClassification{Acknowledged: false})
	if c.CanSave() {
		t.Fatalf("explicit false acknowledgment must not unlock save")
	}
	mustApply(t, c, model.AcknowledgeClassification{Acknowledged: true})
	if !c.CanSave() {
		t.Fatalf("expected savable after acknowledgment, blockers: %v", c.SaveBlockers())
	}
}

func TestForceOverrideDowngradesCapacityButNotClassification(t *testing.T) {
	opp := testOpportunity()
	opp.Classification = model.ClassificationSecret
	candidates := testCandidates()
	// Accredit below the opportunity's marking so site B blocks on
	// classification.
	candidates[1].Accreditation = model.ClassificationConfidential

	c, err := New(opp, candidates, Config{})
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	mustApply(t, c, model.SetPasses{SiteID: "C", Passes: 5}) // critical: 5 > 2 remaining
	mustApply(t, c, model.SetJustification{Text: "manual authority"})

	if c.CanSave() {
		t.Fatalf("critical conflict must block without force")
	}
	if err := c.SetForceOverride(true); err != nil {
		t.Fatalf("set force: %v", err)
	}
	if !c.CanSave() {
		t.Fatalf("force must downgrade the capacity conflict, blockers: %v", c.SaveBlockers())
	}

	mustApply(t, c, model.AddSite{SiteID: "B"})
	if c.CanSave() {
		t.Fatalf("classification conflicts are never force-overridable")
	}
}

func TestBackwardTransitionsPreserveState(t *testing.T) {
	c := newSession(t, Config{})
	mustApply(t, c, model.SetPasses{SiteID: "B", Passes: 5})
	mustApply(t, c, model.SetJustification{Text: "weather outage"})
	working := c.Working()

	advanceToReview(t, c, "")
	if c.Stage() != StageReview {
		t.Fatalf("expected review, got %v", c.Stage())
	}

	if err := c.Back(); err != nil {
		t.Fatalf("back to justification: %v", err)
	}
	if err := c.Back(); err != nil {
		t.Fatalf("back to allocation: %v", err)
	}
	if c.Stage() != StageAllocation {
		t.Fatalf("expected allocation, got %v", c.Stage())
	}
	if !c.Working().Equal(working) {
		t.Fatalf("backward transition lost working state")
	}
	if c.Diff().Justification != "weather outage" {
		t.Fatalf("backward transition lost justification")
	}
	if !c.CanUndo() {
		t.Fatalf("backward transition lost history")
	}

	// And forward again without re-entering anything.
	advanceToReview(t, c, "")
	if c.Stage() != StageReview {
		t.Fatalf("expected review after round trip")
	}
}

func TestEnterJustificationRequiresChanges(t *testing.T) {
	c := newSession(t, Config{})
	if err := c.EnterJustification(false); !errors.Is(err, ErrNoChanges) {
		t.Fatalf("expected ErrNoChanges, got %v", err)
	}
	if err := c.EnterJustification(true); err != nil {
		t.Fatalf("review-only path must be allowed: %v", err)
	}
}

func TestMutationsRejectedOutsideAllocationStage(t *testing.T) {
	c := newSession(t, Config{})
	mustApply(t, c, model.SetPasses{SiteID: "B", Passes: 2})
	mustApply(t, c, model.SetJustification{Text: "ops request"})
	advanceToReview(t, c, "")

	if _, err := c.ApplyMutation(model.SetPasses{SiteID: "B", Passes: 3}); !errors.Is(err, ErrStage) {
		t.Fatalf("expected ErrStage in review, got %v", err)
	}
	if _, err := c.Undo(); !errors.Is(err, ErrStage) {
		t.Fatalf("expected ErrStage for undo in review, got %v", err)
	}
}

func TestSaveHappyPath(t *testing.T) {
	saver := &store.MockSaver{}
	c := newSession(t, Config{Saver: saver})
	mustApply(t, c, model.SetPasses{SiteID: "B", Passes: 4})
	mustApply(t, c, model.SetJustification{Text: "shifted tasking"})
	advanceToReview(t, c, "")

	req, err := c.Save(context.Background())
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if c.Stage() != StageSaved {
		t.Fatalf("expected saved stage, got %v", c.Stage())
	}
	if req.OpportunityID != "opp-1" || req.RequestID == "" {
		t.Fatalf("unexpected request %+v", req)
	}
	if !model.AllocationSet(req.FinalAllocation).Equal(c.Working()) {
		t.Fatalf("request allocation must match working state")
	}
	if len(saver.Saved()) != 1 {
		t.Fatalf("expected one persisted request")
	}

	if _, err := c.ApplyMutation(model.AddSite{SiteID: "B"}); !errors.Is(err, ErrTerminal) {
		t.Fatalf("saved session must be closed, got %v", err)
	}
}

func TestSaveConflictLeavesSessionInReview(t *testing.T) {
	saver := &store.MockSaver{Err: store.ErrSaveConflict}
	c := newSession(t, Config{Saver: saver})
	mustApply(t, c, model.SetPasses{SiteID: "B", Passes: 4})
	mustApply(t, c, model.SetJustification{Text: "shifted tasking"})
	advanceToReview(t, c, "")
	working := c.Working()

	_, err := c.Save(context.Background())
	if !errors.Is(err, store.ErrSaveConflict) {
		t.Fatalf("expected save conflict, got %v", err)
	}
	if c.Stage() != StageReview {
		t.Fatalf("failed save must stay in review, got %v", c.Stage())
	}
	if !c.Working().Equal(working) {
		t.Fatalf("failed save must not touch working state")
	}
}

func TestTransportErrorRetryReusesRequestID(t *testing.T) {
	attempt := 0
	var ids []string
	saver := &store.MockSaver{SaveFunc: func(ctx context.Context, req model.SaveRequest) error {
		attempt++
		ids = append(ids, req.RequestID)
		if attempt == 1 {
			return &store.TransportError{Err: errors.New("connection reset")}
		}
		return nil
	}}
	c := newSession(t, Config{Saver: saver})
	mustApply(t, c, model.SetPasses{SiteID: "B", Passes: 4})
	mustApply(t, c, model.SetJustification{Text: "shifted tasking"})
	advanceToReview(t, c, "")

	_, err := c.Save(context.Background())
	if !store.IsRetryable(err) {
		t.Fatalf("expected retryable transport error, got %v", err)
	}
	if c.Stage() != StageReview {
		t.Fatalf("transport failure must return to review")
	}

	req, err := c.Save(context.Background())
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if len(ids) != 2 || ids[0] != ids[1] {
		t.Fatalf("retry must reuse the request id: %v", ids)
	}
	if req.RequestID != ids[0] {
		t.Fatalf("returned request id mismatch")
	}
}

func TestSaveInFlightRejectsOperations(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	saver := &store.MockSaver{SaveFunc: func(ctx context.Context, req model.SaveRequest) error {
		close(started)
		<-release
		return nil
	}}
	c := newSession(t, Config{Saver: saver})
	mustApply(t, c, model.SetPasses{SiteID: "B", Passes: 4})
	mustApply(t, c, model.SetJustification{Text: "shifted tasking"})
	advanceToReview(t, c, "")

	done := make(chan error, 1)
	go func() {
		_, err := c.Save(context.Background())
		done <- err
	}()
	<-started

	if _, err := c.ApplyMutation(model.SetJustification{Text: "edit during save"}); !errors.Is(err, ErrSaveInFlight) {
		t.Fatalf("expected ErrSaveInFlight, got %v", err)
	}
	if err := c.Discard(); !errors.Is(err, ErrSaveInFlight) {
		t.Fatalf("expected ErrSaveInFlight for discard, got %v", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("save: %v", err)
	}
	if c.Stage() != StageSaved {
		t.Fatalf("expected saved stage after release")
	}
}

func TestSaveRequiresReviewStage(t *testing.T) {
	saver := &store.MockSaver{}
	c := newSession(t, Config{Saver: saver})
	mustApply(t, c, model.SetPasses{SiteID: "B", Passes: 4})
	if _, err := c.Save(context.Background()); !errors.Is(err, ErrStage) {
		t.Fatalf("expected ErrStage, got %v", err)
	}
}

func TestSaveWithoutSaver(t *testing.T) {
	c := newSession(t, Config{})
	mustApply(t, c, model.SetPasses{SiteID: "B", Passes: 4})
	mustApply(t, c, model.SetJustification{Text: "x"})
	advanceToReview(t, c, "")
	if _, err := c.Save(context.Background()); !errors.Is(err, ErrNoSaver) {
		t.Fatalf("expected ErrNoSaver, got %v", err)
	}
}

func TestDiscardIsTerminal(t *testing.T) {
	c := newSession(t, Config{})
	if err := c.Discard(); err != nil {
		t.Fatalf("discard: %v", err)
	}
	if c.Stage() != StageDiscarded {
		t.Fatalf("expected discarded stage")
	}
	if _, err := c.ApplyMutation(model.AddSite{SiteID: "B"}); !errors.Is(err, ErrTerminal) {
		t.Fatalf("expected ErrTerminal, got %v", err)
	}
	if err := c.Discard(); !errors.Is(err, ErrTerminal) {
		t.Fatalf("double discard must fail, got %v", err)
	}
}

func TestDiffSummary(t *testing.T) {
	c := newSession(t, Config{})
	mustApply(t, c, model.SetPasses{SiteID: "A", Passes: 6}) // changed 2 -> 6
	mustApply(t, c, model.AddSite{SiteID: "B"})              // added
	mustApply(t, c, model.SetPasses{SiteID: "B", Passes: 3})
	mustApply(t, c, model.SetJustification{Text: "replan"})

	d := c.Diff()
	if len(d.Added) != 1 || d.Added[0].SiteID != "B" || d.Added[0].After != 3 {
		t.Fatalf("unexpected added entries %+v", d.Added)
	}
	if len(d.Changed) != 1 || d.Changed[0].Before != 2 || d.Changed[0].After != 6 {
		t.Fatalf("unexpected changed entries %+v", d.Changed)
	}
	if len(d.Removed) != 0 {
		t.Fatalf("unexpected removed entries %+v", d.Removed)
	}
	if d.TotalSites != 2 || d.TotalPasses != 9 {
		t.Fatalf("unexpected totals %+v", d)
	}
	if d.Justification != "replan" {
		t.Fatalf("unexpected justification %q", d.Justification)
	}
}

func TestEventsPublishedOnBus(t *testing.T) {
	bus := eventbus.New()
	defer bus.Close()
	sub := bus.Subscribe()

	saver := &store.MockSaver{}
	c := newSession(t, Config{Saver: saver, Bus: bus})
	mustApply(t, c, model.SetPasses{SiteID: "B", Passes: 4})

	ev := <-sub
	mut, ok := ev.(MutationEvent)
	if !ok {
		t.Fatalf("expected MutationEvent, got %T", ev)
	}
	if mut.Mutation != "set_passes" || mut.Rejected {
		t.Fatalf("unexpected event %+v", mut)
	}

	mustApply(t, c, model.SetJustification{Text: "replan"})
	<-sub // set_justification event
	advanceToReview(t, c, "")
	if _, err := c.Save(context.Background()); err != nil {
		t.Fatalf("save: %v", err)
	}

	ev = <-sub
	save, ok := ev.(SaveEvent)
	if !ok {
		t.Fatalf("expected SaveEvent, got %T", ev)
	}
	if save.Outcome != "ok" || save.Request == nil {
		t.Fatalf("unexpected save event %+v", save)
	}
}
