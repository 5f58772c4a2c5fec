// Package domain defines the persistent entities, value types, and rule
// evaluation primitives shared by the ledgercore registry.
package domain

import "time"

// ResourceKind identifies the type of record stored in the registry.
type ResourceKind string

// The closed set of resource kinds the registry manages.
const (
	// KindLot identifies a material lot record.
	KindLot ResourceKind = "lot"
	// KindItem identifies an inventory item record.
	KindItem ResourceKind = "item"
	// KindService identifies a service engagement record.
	KindService ResourceKind = "service"
	// KindNote identifies a free-text note record.
	KindNote ResourceKind = "note"
	// KindProcess identifies a workflow process record.
	KindProcess ResourceKind = "process"
	// KindLocation identifies a physical location record.
	KindLocation ResourceKind = "location"
)

// ResourceKinds returns every kind the registry manages, in stable order.
func ResourceKinds() []ResourceKind {
	return []ResourceKind{KindLot, KindItem, KindService, KindNote, KindProcess, KindLocation}
}

// ValidKind reports whether kind belongs to the closed resource-kind set.
func ValidKind(kind ResourceKind) bool {
	switch kind {
	case KindLot, KindItem, KindService, KindNote, KindProcess, KindLocation:
		return true
	}
	return false
}

// ItemStatus captures whether an item is free or carried by a process.
type ItemStatus string

// Canonical item statuses driven by the process lifecycle.
const (
	ItemStatusAvailable ItemStatus = "available"
	ItemStatusInUse     ItemStatus = "in_use"
)

// ServiceStatus enumerates the service engagement state machine.
type ServiceStatus string

// Canonical service statuses, strictly sequential.
const (
	ServiceStatusRequested  ServiceStatus = "requested"
	ServiceStatusInProgress ServiceStatus = "in_progress"
	ServiceStatusCompleted  ServiceStatus = "completed"
)

// ProcessStatus enumerates the workflow process state machine.
type ProcessStatus string

// Canonical process statuses, strictly sequential.
const (
	ProcessStatusCreated    ProcessStatus = "created"
	ProcessStatusInProgress ProcessStatus = "in_progress"
	ProcessStatusCompleted  ProcessStatus = "completed"
)

// ProcessKind labels what a workflow process does. Only Transportation
// processes move the items they carry.
type ProcessKind string

// Supported process kinds.
const (
	ProcessMaintenance    ProcessKind = "maintenance"
	ProcessProduction     ProcessKind = "production"
	ProcessInspection     ProcessKind = "inspection"
	ProcessTransportation ProcessKind = "transportation"
)

// ValidProcessKind reports whether kind is a supported process kind.
func ValidProcessKind(kind ProcessKind) bool {
	switch kind {
	case ProcessMaintenance, ProcessProduction, ProcessInspection, ProcessTransportation:
		return true
	}
	return false
}

// Registry-wide bounds. String fields are measured in runes.
const (
	MaxStringLen         = 64
	MaxComponentsPerItem = 50
	MaxItemsPerProcess   = 50
)

// Base contains the fields shared by every registry record. ID 0 is the
// sentinel for "no such record"; real identifiers start at 1 per kind.
type Base struct {
	ID        uint64    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	CreatedBy string    `json:"created_by"`
}

// Lot represents a material lot. Lots carry a cost and no further lifecycle.
type Lot struct {
	Base
	Cost int64 `json:"cost"`
}

// Item represents an inventory item. Its status and current location/process
// references are mutated only by Transportation process transitions.
type Item struct {
	Base
	Name              string     `json:"name"`
	LotID             uint64     `json:"lot_id"`
	CurrentLocationID uint64     `json:"current_location_id"`
	CurrentProcessID  uint64     `json:"current_process_id"`
	OriginProcessID   uint64     `json:"origin_process_id"`
	Status            ItemStatus `json:"status"`
}

// Service represents a service engagement with expected and actual windows.
// Actual timestamps stay zero until the matching transition runs.
type Service struct {
	Base
	Cost          int64         `json:"cost"`
	Provider      string        `json:"provider"`
	Status        ServiceStatus `json:"status"`
	ExpectedStart time.Time     `json:"expected_start"`
	ExpectedEnd   time.Time     `json:"expected_end"`
	ActualStart   time.Time     `json:"actual_start"`
	ActualEnd     time.Time     `json:"actual_end"`
}

// Note is a free-text annotation attached to other resources. Notes never own
// other entities.
type Note struct {
	Base
	Content string `json:"content"`
}

// Process represents a workflow process. From/To locations are mandatory only
// for Transportation processes.
type Process struct {
	Base
	Kind           ProcessKind   `json:"kind"`
	Status         ProcessStatus `json:"status"`
	FromLocationID uint64        `json:"from_location_id"`
	ToLocationID   uint64        `json:"to_location_id"`
	ExpectedStart  time.Time     `json:"expected_start"`
	ExpectedEnd    time.Time     `json:"expected_end"`
	ActualStart    time.Time     `json:"actual_start"`
	ActualEnd      time.Time     `json:"actual_end"`
}

// Location represents a physical place items move between.
type Location struct {
	Base
	Name     string `json:"name"`
	Category string `json:"category"`
}

// Resource is the closed union over registry record types. The zero-value
// record of a kind (ResourceID 0) is the sentinel for "does not exist".
type Resource interface {
	ResourceID() uint64
	ResourceType() ResourceKind
}

// ResourceID returns the record identifier.
func (b Base) ResourceID() uint64 { return b.ID }

// ResourceType implements Resource.
func (Lot) ResourceType() ResourceKind { return KindLot }

// ResourceType implements Resource.
func (Item) ResourceType() ResourceKind { return KindItem }

// ResourceType implements Resource.
func (Service) ResourceType() ResourceKind { return KindService }

// ResourceType implements Resource.
func (Note) ResourceType() ResourceKind { return KindNote }

// ResourceType implements Resource.
func (Process) ResourceType() ResourceKind { return KindProcess }

// ResourceType implements Resource.
func (Location) ResourceType() ResourceKind { return KindLocation }

// ZeroResource returns the zero-value record for kind, used as the absent
// sentinel by read paths. Unknown kinds yield nil.
func ZeroResource(kind ResourceKind) Resource {
	switch kind {
	case KindLot:
		return Lot{}
	case KindItem:
		return Item{}
	case KindService:
		return Service{}
	case KindNote:
		return Note{}
	case KindProcess:
		return Process{}
	case KindLocation:
		return Location{}
	}
	return nil
}
