package core

import (
	"context"
	"fmt"

	"ledgercore/pkg/domain"
)

// LifecycleTransitionRule blocks commits that leave a stateful record in a
// status outside its closed set, or that move a record out of a terminal
// status. The service facade never produces such changes; the rule guards
// embedders that drive transactions directly.
func LifecycleTransitionRule() domain.Rule {
	return lifecycleTransitionRule{}
}

type lifecycleTransitionRule struct{}

type lifecycleMachine struct {
	entity    ResourceKind
	label     string
	terminal  map[string]struct{}
	valid     map[string]struct{}
	extractor func(payload any) (id uint64, state string, ok bool)
}

var lifecycleMachines = map[ResourceKind]lifecycleMachine{
	KindItem: {
		entity: KindItem,
		label:  "item",
		valid: toSet(
			string(ItemStatusAvailable),
			string(ItemStatusInUse),
		),
		extractor: func(payload any) (uint64, string, bool) {
			item, ok := payload.(Item)
			if !ok {
				return 0, "", false
			}
			return item.ID, string(item.Status), true
		},
	},
	KindService: {
		entity:   KindService,
		label:    "service",
		terminal: toSet(string(ServiceStatusCompleted)),
		valid: toSet(
			string(ServiceStatusRequested),
			string(ServiceStatusInProgress),
			string(ServiceStatusCompleted),
		),
		extractor: func(payload any) (uint64, string, bool) {
			sv, ok := payload.(Service)
			if !ok {
				return 0, "", false
			}
			return sv.ID, string(sv.Status), true
		},
	},
	KindProcess: {
		entity:   KindProcess,
		label:    "process",
		terminal: toSet(string(ProcessStatusCompleted)),
		valid: toSet(
			string(ProcessStatusCreated),
			string(ProcessStatusInProgress),
			string(ProcessStatusCompleted),
		),
		extractor: func(payload any) (uint64, string, bool) {
			p, ok := payload.(Process)
			if !ok {
				return 0, "", false
			}
			return p.ID, string(p.Status), true
		},
	},
}

func (lifecycleTransitionRule) Name() string { return "lifecycle_transition" }

func (lifecycleTransitionRule) Evaluate(_ context.Context, _ domain.RuleView, changes []Change) (Result, error) {
	res := Result{}
	for _, change := range changes {
		machine, ok := lifecycleMachines[change.Entity]
		if !ok {
			continue
		}

		afterID, newState, ok := machine.extractor(change.After)
		if ok {
			if _, valid := machine.valid[newState]; !valid {
				res.Violations = append(res.Violations, Violation{
					Rule:     "lifecycle_transition",
					Severity: SeverityBlock,
					Message:  fmt.Sprintf("%s %d is set to invalid state %s", machine.label, afterID, newState),
					Entity:   machine.entity,
					EntityID: afterID,
				})
				continue
			}
		}

		if machine.terminal == nil {
			continue
		}
		beforeID, beforeState, ok := machine.extractor(change.Before)
		if !ok {
			continue
		}
		if _, ok := machine.terminal[beforeState]; !ok {
			continue
		}
		afterID, afterState, ok := machine.extractor(change.After)
		if !ok {
			continue
		}
		if afterState != beforeState {
			res.Violations = append(res.Violations, Violation{
				Rule:     "lifecycle_transition",
				Severity: SeverityBlock,
				Message:  fmt.Sprintf("cannot move %s %d from terminal state %s to %s", machine.label, beforeID, beforeState, afterState),
				Entity:   machine.entity,
				EntityID: afterID,
			})
		}
	}
	return res, nil
}

func toSet(values ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}
