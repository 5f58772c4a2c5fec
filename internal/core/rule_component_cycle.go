package core

import (
	"context"
	"fmt"

	"ledgercore/pkg/domain"
)

// ComponentCycleRule reports component edges that close a cycle. The marker
// model permits cycles, so violations are warnings only; the commit proceeds
// and the cycle stays observable in the transaction result.
func ComponentCycleRule() domain.Rule {
	return componentCycleRule{}
}

type componentCycleRule struct{}

func (componentCycleRule) Name() string { return "component_cycle" }

func (componentCycleRule) Evaluate(_ context.Context, view domain.RuleView, changes []Change) (Result, error) {
	res := Result{}
	for _, change := range changes {
		if change.Entity != KindItem || change.Action != ActionAttach {
			continue
		}
		link, ok := change.After.(domain.ComponentLink)
		if !ok {
			continue
		}
		if reachable(view, link.ComponentID, link.ParentID) {
			res.Violations = append(res.Violations, Violation{
				Rule:     "component_cycle",
				Severity: SeverityWarn,
				Message:  fmt.Sprintf("component %d closes a cycle back to item %d", link.ComponentID, link.ParentID),
				Entity:   KindItem,
				EntityID: link.ParentID,
			})
		}
	}
	return res, nil
}

// reachable walks the component adjacency from start looking for target.
func reachable(view domain.RuleView, start, target uint64) bool {
	if start == target {
		return true
	}
	seen := map[uint64]struct{}{}
	stack := []uint64{start}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		for _, child := range view.ItemComponents(id) {
			if child == target {
				return true
			}
			stack = append(stack, child)
		}
	}
	return false
}
