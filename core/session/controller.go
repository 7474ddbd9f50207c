// Package session implements the override session controller: the state
// machine that owns one opportunity's working allocation for the duration of
// an edit, routes every mutation through validation and the change history,
// and gates persistence behind justification and classification checks.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/groundctl/passplan/core/history"
	"github.com/groundctl/passplan/core/logger"
	"github.com/groundctl/passplan/core/model"
	"github.com/groundctl/passplan/core/planner"
	"github.com/groundctl/passplan/core/store"
	"github.com/groundctl/passplan/internal/eventbus"
)

// Config carries the collaborators and tunables a controller needs. Saver,
// Logger and Bus are optional; Planner settings get defaults applied.
type Config struct {
	Planner planner.Config
	// AckThreshold is the classification level at or above which the operator
	// must acknowledge the marking before saving. Zero disables the gate.
	AckThreshold model.ClassificationLevel
	Saver        store.Saver
	Logger       logger.Logger
	Bus          eventbus.EventBus
}

// MutationResult is returned from every accepted mutation: the re-evaluated
// validation state, plus the unallocated residual after an auto-optimize.
type MutationResult struct {
	Resolution planner.Resolution
	Residual   int
}

// Controller owns one OverrideSession. It is the only component holding a
// reference to the working allocation; collaborators interact exclusively
// through its methods.
type Controller struct {
	mu sync.Mutex

	id         string
	cfg        Config
	plan       planner.Planner
	opp        model.Opportunity
	sites      map[string]model.Site
	candidates []model.Site

	original model.AllocationSet
	working  model.AllocationSet
	hist     *history.Stack

	justification     string
	classificationAck bool
	force             bool

	stage     Stage
	saving    bool
	requestID string

	log logger.Logger
}

type nopLogger struct{}

func (nopLogger) Debugf(string, ...any)         {}
func (nopLogger) Debugw(string, map[string]any) {}
func (nopLogger) Infof(string, ...any)          {}
func (nopLogger) Warnf(string, ...any)          {}
func (nopLogger) Errorf(string, ...any)         {}

// New opens an override session for the opportunity against the given
// candidate sites. The opportunity's current allocation becomes the immutable
// original snapshot; every allocated site must appear among the candidates.
func New(opp model.Opportunity, candidates []model.Site, cfg Config) (*Controller, error) {
	if err := opp.Validate(); err != nil {
		return nil, fmt.Errorf("opportunity: %w", err)
	}
	sites := make(map[string]model.Site, len(candidates))
	ordered := make([]model.Site, 0, len(candidates))
	for _, s := range candidates {
		if err := s.Validate(); err != nil {
			return nil, fmt.Errorf("candidate site: %w", err)
		}
		if _, dup := sites[s.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate candidate site %s", model.ErrInvariant, s.ID)
		}
		sites[s.ID] = s
		ordered = append(ordered, s)
	}
	for _, a := range opp.Allocations {
		if _, ok := sites[a.SiteID]; !ok {
			return nil, fmt.Errorf("allocated site %s missing from candidates", a.SiteID)
		}
	}

	cfg.Planner.SetDefaults()
	if err := cfg.Planner.Validate(); err != nil {
		return nil, fmt.Errorf("planner config: %w", err)
	}
	log := cfg.Logger
	if log == nil {
		log = nopLogger{}
	}

	original := opp.Allocations.Clone()
	return &Controller{
		id:         uuid.NewString(),
		cfg:        cfg,
		plan:       planner.ForConfig(cfg.Planner),
		opp:        opp,
		sites:      sites,
		candidates: ordered,
		original:   original,
		working:    original.Clone(),
		hist:       history.New(original),
		stage:      StageAllocation,
		log:        log,
	}, nil
}

// ID returns the session identifier.
func (c *Controller) ID() string { return c.id }

// Stage returns the current lifecycle stage.
func (c *Controller) Stage() Stage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stage
}

// Working returns a copy of the working allocation.
func (c *Controller) Working() model.AllocationSet {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.working.Clone()
}

// Original returns a copy of the original snapshot.
func (c *Controller) Original() model.AllocationSet {
	return c.original.Clone()
}

// Changed reports whether the working allocation differs from the snapshot.
func (c *Controller) Changed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.working.Equal(c.original)
}

// SetForceOverride sets the manual-authority bit permitting a save despite
// blocking capacity or operational-window conflicts. Classification gates are
// never force-overridable.
func (c *Controller) SetForceOverride(force bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.editable(); err != nil {
		return err
	}
	c.force = force
	return nil
}

// ApplyMutation validates and applies one mutation, returning the
// re-evaluated conflict state. A *ValidationError leaves the working state
// untouched.
func (c *Controller) ApplyMutation(m model.Mutation) (*MutationResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	res, err := c.apply(m)
	if err != nil {
		c.publishMutation(m, nil, true)
		return nil, err
	}
	c.publishMutation(m, res, false)
	return res, nil
}

func (c *Controller) apply(m model.Mutation) (*MutationResult, error) {
	if err := c.editable(); err != nil {
		return nil, err
	}
	switch m := m.(type) {
	case model.AddSite:
		if err := c.requireStage(StageAllocation); err != nil {
			return nil, err
		}
		if _, ok := c.sites[m.SiteID]; !ok {
			return nil, invalid("site %s is not a candidate", m.SiteID)
		}
		if _, allocated := c.working.Get(m.SiteID); allocated {
			return nil, invalid("site %s is already allocated", m.SiteID)
		}
		return c.commit(c.working.With(m.SiteID, 1))

	case model.RemoveSite:
		if err := c.requireStage(StageAllocation); err != nil {
			return nil, err
		}
		if _, allocated := c.working.Get(m.SiteID); !allocated {
			return nil, invalid("site %s is not allocated", m.SiteID)
		}
		return c.commit(c.working.Without(m.SiteID))

	case model.SetPasses:
		if err := c.requireStage(StageAllocation); err != nil {
			return nil, err
		}
		if m.Passes <= 0 {
			return nil, invalid("passes must be positive, got %d", m.Passes)
		}
		if _, ok := c.sites[m.SiteID]; !ok {
			return nil, invalid("site %s is not a candidate", m.SiteID)
		}
		return c.commit(c.working.With(m.SiteID, m.Passes))

	case model.AutoOptimize:
		if err := c.requireStage(StageAllocation); err != nil {
			return nil, err
		}
		return c.autoOptimize()

	case model.SetJustification:
		if err := c.requireStage(StageAllocation, StageJustification); err != nil {
			return nil, err
		}
		c.justification = m.Text
		return c.result(0)

	case model.AcknowledgeClassification:
		if err := c.requireStage(StageAllocation, StageJustification); err != nil {
			return nil, err
		}
		c.classificationAck = m.Acknowledged
		return c.result(0)
	}
	return nil, invalid("unknown mutation %T", m)
}

// autoOptimize plans the unallocated remainder across the still-unallocated
// candidates and merges the suggestion into the working set.
func (c *Controller) autoOptimize() (*MutationResult, error) {
	total := c.opp.RequiredPasses - c.working.TotalPasses()
	if total <= 0 {
		return nil, invalid("required passes already fully allocated")
	}
	pool := make([]model.Site, 0, len(c.candidates))
	for _, s := range c.candidates {
		if _, allocated := c.working.Get(s.ID); !allocated {
			pool = append(pool, s)
		}
	}
	sug := c.plan.Plan(c.opp, pool, total, c.cfg.Planner)
	if len(sug.Allocation) == 0 {
		// Nothing could be placed; report the residual without recording a
		// no-op edit.
		return c.result(sug.Residual)
	}
	next := c.working.Clone()
	for _, a := range sug.Allocation {
		next = next.With(a.SiteID, a.Passes)
	}
	res, err := c.commit(next)
	if err != nil {
		return nil, err
	}
	res.Residual = sug.Residual
	return res, nil
}

// commit re-validates the proposed state, then makes it the working state and
// records it in the history. A broken domain invariant is rejected with the
// state unchanged.
func (c *Controller) commit(next model.AllocationSet) (*MutationResult, error) {
	res, err := planner.Resolve(c.opp, next, c.sites, c.cfg.Planner)
	if err != nil {
		c.log.Errorf("session %s: rejecting mutation: %v", c.id, err)
		return nil, err
	}
	c.working = next
	c.hist.Record(next)
	return &MutationResult{Resolution: res}, nil
}

func (c *Controller) result(residual int) (*MutationResult, error) {
	res, err := planner.Resolve(c.opp, c.working, c.sites, c.cfg.Planner)
	if err != nil {
		return nil, err
	}
	return &MutationResult{Resolution: res, Residual: residual}, nil
}

// Undo steps the working allocation back one record. At the bottom of the
// stack it is a no-op.
func (c *Controller) Undo() (*MutationResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.editable(); err != nil {
		return nil, err
	}
	if err := c.requireStage(StageAllocation); err != nil {
		return nil, err
	}
	if prev, ok := c.hist.Undo(); ok {
		c.working = prev
	}
	return c.result(0)
}

// Redo re-applies the most recently undone record, if any.
func (c *Controller) Redo() (*MutationResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.editable(); err != nil {
		return nil, err
	}
	if err := c.requireStage(StageAllocation); err != nil {
		return nil, err
	}
	if next, ok := c.hist.Redo(); ok {
		c.working = next
	}
	return c.result(0)
}

// ResetToOriginal clears the history and restores the original snapshot.
func (c *Controller) ResetToOriginal() (*MutationResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.editable(); err != nil {
		return nil, err
	}
	if err := c.requireStage(StageAllocation); err != nil {
		return nil, err
	}
	c.working = c.hist.Reset()
	return c.result(0)
}

// CanUndo reports whether an undo would change the working state.
func (c *Controller) CanUndo() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hist.CanUndo()
}

// CanRedo reports whether a redo would change the working state.
func (c *Controller) CanRedo() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hist.CanRedo()
}

// EnterJustification advances Allocation -> Justification. Without queued
// changes the transition requires the explicit review-only path.
func (c *Controller) EnterJustification(reviewOnly bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.editable(); err != nil {
		return err
	}
	if err := c.requireStage(StageAllocation); err != nil {
		return err
	}
	if !reviewOnly && c.working.Equal(c.original) {
		return ErrNoChanges
	}
	c.stage = StageJustification
	return nil
}

// EnterReview advances Justification -> Review.
func (c *Controller) EnterReview() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.editable(); err != nil {
		return err
	}
	if err := c.requireStage(StageJustification); err != nil {
		return err
	}
	c.stage = StageReview
	return nil
}

// Back steps one stage backward, preserving all working state.
func (c *Controller) Back() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.editable(); err != nil {
		return err
	}
	switch c.stage {
	case StageReview:
		c.stage = StageJustification
	case StageJustification:
		c.stage = StageAllocation
	default:
		return ErrStage
	}
	return nil
}

// CanSave reports whether a save would be accepted right now.
func (c *Controller) CanSave() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.saveBlockers()) == 0
}

// SaveBlockers lists the reasons the session cannot be saved, for display.
func (c *Controller) SaveBlockers() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.saveBlockers()
}

func (c *Controller) saveBlockers() []string {
	var reasons []string
	res, err := planner.Resolve(c.opp, c.working, c.sites, c.cfg.Planner)
	if err != nil {
		return []string{err.Error()}
	}
	for _, conflict := range res.Conflicts {
		if !conflict.Blocking {
			continue
		}
		if c.force && conflict.Kind != planner.ConflictClassification {
			continue
		}
		reasons = append(reasons, conflict.Reason)
	}
	if !c.working.Equal(c.original) && strings.TrimSpace(c.justification) == "" {
		reasons = append(reasons, "justification required for changed allocation")
	}
	if c.ackRequired() && !c.classificationAck {
		reasons = append(reasons, fmt.Sprintf("classification %s must be acknowledged", c.opp.Classification))
	}
	return reasons
}

func (c *Controller) ackRequired() bool {
	return c.cfg.AckThreshold != model.ClassificationNone && c.opp.Classification >= c.cfg.AckThreshold
}

// Save builds the SaveRequest and hands it to the persistence collaborator.
// While the call is in flight the session rejects every other operation. On
// failure the session stays in Review with the working state intact; the same
// request id is reused on retry.
func (c *Controller) Save(ctx context.Context) (*model.SaveRequest, error) {
	c.mu.Lock()
	if err := c.editable(); err != nil {
		c.mu.Unlock()
		return nil, err
	}
	if c.stage != StageReview {
		c.mu.Unlock()
		return nil, ErrStage
	}
	if c.cfg.Saver == nil {
		c.mu.Unlock()
		return nil, ErrNoSaver
	}
	if reasons := c.saveBlockers(); len(reasons) > 0 {
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrNotSavable, strings.Join(reasons, "; "))
	}
	if c.requestID == "" {
		c.requestID = uuid.NewString()
	}
	req := model.SaveRequest{
		RequestID:                  c.requestID,
		OpportunityID:              c.opp.ID,
		FinalAllocation:            c.working.Clone(),
		Justification:              c.justification,
		ClassificationAcknowledged: c.classificationAck,
		ForceOverride:              c.force,
	}
	c.saving = true
	c.mu.Unlock()

	start := time.Now()
	err := c.cfg.Saver.Save(ctx, req)

	c.mu.Lock()
	c.saving = false
	outcome := saveOutcome(err)
	if err == nil {
		c.stage = StageSaved
	}
	c.mu.Unlock()

	c.publishSave(&req, outcome, time.Since(start), err)
	if err != nil {
		c.log.Warnf("session %s: save %s: %v", c.id, outcome, err)
		return nil, err
	}
	c.log.Infof("session %s: saved opportunity %s (%d sites, %d passes)",
		c.id, c.opp.ID, len(req.FinalAllocation), model.AllocationSet(req.FinalAllocation).TotalPasses())
	return &req, nil
}

// Discard abandons the session. No side effects are emitted.
func (c *Controller) Discard() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.editable(); err != nil {
		return err
	}
	c.stage = StageDiscarded
	return nil
}

func saveOutcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, store.ErrSaveConflict):
		return "conflict"
	case errors.Is(err, store.ErrValidationRejected):
		return "rejected"
	default:
		return "transport"
	}
}

func (c *Controller) editable() error {
	if c.stage.terminal() {
		return ErrTerminal
	}
	if c.saving {
		return ErrSaveInFlight
	}
	return nil
}

func (c *Controller) requireStage(stages ...Stage) error {
	for _, s := range stages {
		if c.stage == s {
			return nil
		}
	}
	return ErrStage
}

func (c *Controller) publishMutation(m model.Mutation, res *MutationResult, rejected bool) {
	if c.cfg.Bus == nil {
		return
	}
	ev := MutationEvent{
		SessionID:     c.id,
		OpportunityID: c.opp.ID,
		Mutation:      m.Name(),
		Rejected:      rejected,
		Time:          time.Now(),
	}
	if res != nil {
		ev.Severity = res.Resolution.Capacity.Worst()
		ev.Conflicts = len(res.Resolution.Conflicts)
	}
	c.cfg.Bus.Publish(ev)
}

func (c *Controller) publishSave(req *model.SaveRequest, outcome string, d time.Duration, err error) {
	if c.cfg.Bus == nil {
		return
	}
	ev := SaveEvent{
		SessionID:     c.id,
		OpportunityID: c.opp.ID,
		Outcome:       outcome,
		Duration:      d,
		Time:          time.Now(),
	}
	if err == nil {
		ev.Request = req
	}
	c.cfg.Bus.Publish(ev)
}
