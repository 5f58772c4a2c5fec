package domain

import "context"

// Transaction exposes the registry operations a persistence implementation
// must support within an atomic scope. Creation methods allocate identifiers
// only after validation passes; any returned error aborts the whole scope.
type Transaction interface {
	Authorize(identity string, kind ResourceKind) error
	Grant(caller, identity string, kind ResourceKind) error

	CreateLot(Lot) (Lot, error)
	CreateItem(Item) (Item, error)
	CreateService(Service) (Service, error)
	CreateNote(Note) (Note, error)
	CreateProcess(Process) (Process, error)
	CreateLocation(Location) (Location, error)

	AttachNote(kind ResourceKind, resourceID, noteID uint64) error
	AddComponent(itemID, componentID uint64) error
	AddServiceToProcess(processID, serviceID uint64) error
	AddItemToProcess(processID, itemID uint64) error

	StartService(id uint64) (Service, error)
	CompleteService(id uint64) (Service, error)
	StartProcess(id uint64) (Process, error)
	CompleteProcess(id uint64) (Process, error)

	FindLot(id uint64) (Lot, bool)
	FindItem(id uint64) (Item, bool)
	FindService(id uint64) (Service, bool)
	FindNote(id uint64) (Note, bool)
	FindProcess(id uint64) (Process, bool)
	FindLocation(id uint64) (Location, bool)
}

// TransactionView provides read-only access to snapshot data.
type TransactionView = RuleView

// PersistentStore is a minimal abstraction over durable backends. It mirrors
// the subset of store capabilities used directly by higher layers. Reads are
// ungated and return zero-value sentinels rather than errors.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(TransactionView) error) error

	GetResource(kind ResourceKind, id uint64) Resource
	ResourceCount(kind ResourceKind) uint64
	ResourceNotes(kind ResourceKind, id uint64) []uint64
	ItemComponents(itemID uint64) []uint64
	ProcessServices(processID uint64) []uint64
	ProcessItems(processID uint64) []uint64
	IsComponent(itemID uint64) bool
	Owner() string
}
