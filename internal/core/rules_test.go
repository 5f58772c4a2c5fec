package core

import (
	"context"
	"errors"
	"testing"

	"ledgercore/pkg/domain"
)

type stubRuleView struct {
	components map[uint64][]uint64
}

func (stubRuleView) FindLot(uint64) (Lot, bool)           { return Lot{}, false }
func (stubRuleView) FindItem(uint64) (Item, bool)         { return Item{}, false }
func (stubRuleView) FindService(uint64) (Service, bool)   { return Service{}, false }
func (stubRuleView) FindNote(uint64) (Note, bool)         { return Note{}, false }
func (stubRuleView) FindProcess(uint64) (Process, bool)   { return Process{}, false }
func (stubRuleView) FindLocation(uint64) (Location, bool) { return Location{}, false }
func (stubRuleView) ListItems() []Item                    { return nil }
func (v stubRuleView) ItemComponents(itemID uint64) []uint64 {
	return v.components[itemID]
}

func TestLifecycleTransitionRuleBlocksInvalidState(t *testing.T) {
	rule := LifecycleTransitionRule()
	res, err := rule.Evaluate(context.Background(), stubRuleView{}, []Change{{
		Entity: KindService,
		Action: ActionUpdate,
		Before: Service{Base: Base{ID: 7}, Status: ServiceStatusRequested},
		After:  Service{Base: Base{ID: 7}, Status: ServiceStatus("vaporized")},
	}})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if !res.HasBlocking() {
		t.Fatalf("invalid state not blocked: %+v", res)
	}
	if res.Violations[0].Rule != "lifecycle_transition" || res.Violations[0].EntityID != 7 {
		t.Fatalf("unexpected violation: %+v", res.Violations[0])
	}
}

func TestLifecycleTransitionRuleBlocksEscapeFromTerminal(t *testing.T) {
	rule := LifecycleTransitionRule()
	res, err := rule.Evaluate(context.Background(), stubRuleView{}, []Change{{
		Entity: KindProcess,
		Action: ActionUpdate,
		Before: Process{Base: Base{ID: 3}, Status: ProcessStatusCompleted},
		After:  Process{Base: Base{ID: 3}, Status: ProcessStatusInProgress},
	}})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if !res.HasBlocking() {
		t.Fatalf("terminal escape not blocked: %+v", res)
	}
}

func TestLifecycleTransitionRuleAllowsForwardMoves(t *testing.T) {
	rule := LifecycleTransitionRule()
	res, err := rule.Evaluate(context.Background(), stubRuleView{}, []Change{
		{
			Entity: KindService,
			Action: ActionUpdate,
			Before: Service{Base: Base{ID: 1}, Status: ServiceStatusRequested},
			After:  Service{Base: Base{ID: 1}, Status: ServiceStatusInProgress},
		},
		{
			Entity: KindItem,
			Action: ActionUpdate,
			Before: Item{Base: Base{ID: 2}, Status: ItemStatusAvailable},
			After:  Item{Base: Base{ID: 2}, Status: ItemStatusInUse},
		},
	})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(res.Violations) != 0 {
		t.Fatalf("clean transitions flagged: %+v", res.Violations)
	}
}

func TestComponentCycleRuleWarnsOnClosedLoop(t *testing.T) {
	rule := ComponentCycleRule()
	view := stubRuleView{components: map[uint64][]uint64{
		1: {2},
		2: {3},
	}}
	res, err := rule.Evaluate(context.Background(), view, []Change{{
		Entity: KindItem,
		Action: ActionAttach,
		After:  domain.ComponentLink{ParentID: 3, ComponentID: 1},
	}})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if res.HasBlocking() {
		t.Fatalf("cycle should warn, not block: %+v", res)
	}
	warns := res.Warnings()
	if len(warns) != 1 || warns[0].Rule != "component_cycle" {
		t.Fatalf("warnings = %+v", warns)
	}
}

func TestComponentCycleWarningSurfacesThroughFacade(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry(t)
	lot := mustCreateLot(t, reg, testOwner, 0)
	a := mustCreateItem(t, reg, testOwner, "frame", lot.ID)
	b := mustCreateItem(t, reg, testOwner, "panel", lot.ID)

	if res, err := reg.AddComponent(ctx, testOwner, a.ID, b.ID); err != nil {
		t.Fatalf("nest b under a: %v", err)
	} else if len(res.Warnings()) != 0 {
		t.Fatalf("clean edge warned: %+v", res.Warnings())
	}

	res, err := reg.AddComponent(ctx, testOwner, b.ID, a.ID)
	if err != nil {
		t.Fatalf("closing edge rejected: %v", err)
	}
	warns := res.Warnings()
	if len(warns) != 1 || warns[0].Rule != "component_cycle" {
		t.Fatalf("expected cycle warning, got %+v", warns)
	}
	// The edge still lands despite the warning.
	if comps := reg.ItemComponents(b.ID); len(comps) != 1 || comps[0] != a.ID {
		t.Fatalf("components of %d = %v", b.ID, comps)
	}
}

type blockEverythingRule struct{}

func (blockEverythingRule) Name() string { return "block_everything" }

func (blockEverythingRule) Evaluate(_ context.Context, _ domain.RuleView, changes []Change) (Result, error) {
	res := Result{}
	for _, change := range changes {
		res.Violations = append(res.Violations, Violation{
			Rule:     "block_everything",
			Severity: SeverityBlock,
			Message:  "frozen registry",
			Entity:   change.Entity,
		})
	}
	return res, nil
}

func TestBlockingViolationAbortsCommit(t *testing.T) {
	ctx := context.Background()
	engine := domain.NewRulesEngine()
	engine.Register(blockEverythingRule{})
	reg := NewInMemoryRegistry(testOwner, engine)

	_, res, err := reg.CreateLot(ctx, testOwner, Lot{})
	var violation RuleViolationError
	if !errors.As(err, &violation) {
		t.Fatalf("expected rule violation, got %v", err)
	}
	if !res.HasBlocking() {
		t.Fatalf("result missing blocking violation: %+v", res)
	}
	if got := reg.ResourceCount(KindLot); got != 0 {
		t.Fatalf("blocked create persisted: count %d", got)
	}
}
