package domain

// Change describes a mutation applied to a record during a transaction.
// Before/After hold typed entity values for create/update actions and link
// values for attach actions.
type Change struct {
	Entity ResourceKind
	Action Action
	Before any
	After  any
}

// Action indicates the type of modification performed.
type Action string

// Change actions captured for rule evaluation and audit trails.
const (
	// ActionCreate indicates a record was created.
	ActionCreate Action = "create"
	// ActionUpdate indicates a record's mutable fields changed.
	ActionUpdate Action = "update"
	// ActionAttach indicates a relationship list gained an entry.
	ActionAttach Action = "attach"
	// ActionGrant indicates a permission grant was recorded.
	ActionGrant Action = "grant"
)

// NoteLink records a note attachment to a resource.
type NoteLink struct {
	Kind       ResourceKind `json:"kind"`
	ResourceID uint64       `json:"resource_id"`
	NoteID     uint64       `json:"note_id"`
}

// ComponentLink records an item nested inside a parent item.
type ComponentLink struct {
	ParentID    uint64 `json:"parent_id"`
	ComponentID uint64 `json:"component_id"`
}

// ProcessLink records a service or item assigned to a process.
type ProcessLink struct {
	ProcessID uint64       `json:"process_id"`
	Kind      ResourceKind `json:"kind"`
	EntityID  uint64       `json:"entity_id"`
}

// Grant records a permission flag for an identity and resource kind.
type Grant struct {
	Identity string       `json:"identity"`
	Kind     ResourceKind `json:"kind"`
}
