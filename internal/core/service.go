package core

import (
	"context"
	"fmt"
	"time"

	"ledgercore/pkg/domain"
)

// Registry exposes the registry operations: identifier-allocating creation,
// permission grants, attachment, lifecycle transitions, and ungated reads.
// Every mutating entry point takes the caller identity and runs as one atomic
// transaction against the backing store.
type Registry struct {
	store   domain.PersistentStore
	audit   AuditRecorder
	metrics MetricsRecorder
	tracer  Tracer
	clock   Clock
}

// NewRegistry constructs a registry facade backed by the supplied store.
func NewRegistry(store domain.PersistentStore, opts ...RegistryOption) *Registry {
	s := &Registry{
		store: store,
		clock: ClockFunc(func() time.Time { return time.Now().UTC() }),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewInMemoryRegistry creates a registry facade and in-memory store owned by
// the given identity, with the default rule set when engine is nil.
func NewInMemoryRegistry(owner string, engine *RulesEngine, opts ...RegistryOption) *Registry {
	if engine == nil {
		engine = NewDefaultRulesEngine()
	}
	return NewRegistry(NewMemoryStore(owner, engine), opts...)
}

// Store returns the underlying storage implementation.
func (s *Registry) Store() domain.PersistentStore { return s.store }

// Creation --------------------------------------------------------------------

// CreateLot registers a new material lot and returns it with its identifier.
func (s *Registry) CreateLot(ctx context.Context, caller string, lot Lot) (Lot, Result, error) {
	var created Lot
	ctx, done := s.begin(ctx, "create_lot", KindLot, caller)
	res, err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		if err := tx.Authorize(caller, KindLot); err != nil {
			return err
		}
		lot.CreatedBy = caller
		var err error
		created, err = tx.CreateLot(lot)
		return err
	})
	done(created.ID, err)
	return created, res, err
}

// CreateItem registers a new inventory item.
func (s *Registry) CreateItem(ctx context.Context, caller string, item Item) (Item, Result, error) {
	var created Item
	ctx, done := s.begin(ctx, "create_item", KindItem, caller)
	res, err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		if err := tx.Authorize(caller, KindItem); err != nil {
			return err
		}
		item.CreatedBy = caller
		var err error
		created, err = tx.CreateItem(item)
		return err
	})
	done(created.ID, err)
	return created, res, err
}

// CreateService registers a new service engagement.
func (s *Registry) CreateService(ctx context.Context, caller string, service Service) (Service, Result, error) {
	var created Service
	ctx, done := s.begin(ctx, "create_service", KindService, caller)
	res, err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		if err := tx.Authorize(caller, KindService); err != nil {
			return err
		}
		service.CreatedBy = caller
		var err error
		created, err = tx.CreateService(service)
		return err
	})
	done(created.ID, err)
	return created, res, err
}

// CreateNote registers a new note record.
func (s *Registry) CreateNote(ctx context.Context, caller string, note Note) (Note, Result, error) {
	var created Note
	ctx, done := s.begin(ctx, "create_note", KindNote, caller)
	res, err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		if err := tx.Authorize(caller, KindNote); err != nil {
			return err
		}
		note.CreatedBy = caller
		var err error
		created, err = tx.CreateNote(note)
		return err
	})
	done(created.ID, err)
	return created, res, err
}

// CreateProcess registers a new workflow process.
func (s *Registry) CreateProcess(ctx context.Context, caller string, process Process) (Process, Result, error) {
	var created Process
	ctx, done := s.begin(ctx, "create_process", KindProcess, caller)
	res, err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		if err := tx.Authorize(caller, KindProcess); err != nil {
			return err
		}
		process.CreatedBy = caller
		var err error
		created, err = tx.CreateProcess(process)
		return err
	})
	done(created.ID, err)
	return created, res, err
}

// CreateLocation registers a new location record.
func (s *Registry) CreateLocation(ctx context.Context, caller string, location Location) (Location, Result, error) {
	var created Location
	ctx, done := s.begin(ctx, "create_location", KindLocation, caller)
	res, err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		if err := tx.Authorize(caller, KindLocation); err != nil {
			return err
		}
		location.CreatedBy = caller
		var err error
		created, err = tx.CreateLocation(location)
		return err
	})
	done(created.ID, err)
	return created, res, err
}

// Permissions -----------------------------------------------------------------

// GrantPermission sets the grant flag for identity on kind. Owner-only.
func (s *Registry) GrantPermission(ctx context.Context, caller, identity string, kind ResourceKind) (Result, error) {
	ctx, done := s.begin(ctx, "grant_permission", kind, caller)
	res, err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		return tx.Grant(caller, identity, kind)
	})
	done(0, err)
	return res, err
}

// Attachment ------------------------------------------------------------------

// AttachNote appends a note to a resource's note list. The caller needs gate
// permission for the target resource kind.
func (s *Registry) AttachNote(ctx context.Context, caller string, kind ResourceKind, resourceID, noteID uint64) (Result, error) {
	ctx, done := s.begin(ctx, "attach_note", kind, caller)
	res, err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		if err := tx.Authorize(caller, kind); err != nil {
			return err
		}
		return tx.AttachNote(kind, resourceID, noteID)
	})
	done(resourceID, err)
	return res, err
}

// AddComponent nests a component item inside a parent item. This is an
// ownership check, not a gate check: only the parent item's creator may add
// components.
func (s *Registry) AddComponent(ctx context.Context, caller string, itemID, componentID uint64) (Result, error) {
	ctx, done := s.begin(ctx, "add_component", KindItem, caller)
	res, err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		parent, ok := tx.FindItem(itemID)
		if !ok {
			return domain.NotFoundError{Kind: KindItem, ID: itemID}
		}
		if parent.CreatedBy != caller {
			return fmt.Errorf("%w: identity %q did not create item %d", domain.ErrNoPermission, caller, itemID)
		}
		return tx.AddComponent(itemID, componentID)
	})
	done(itemID, err)
	return res, err
}

// AddServiceToProcess assigns a service to a process while both are in their
// initial states.
func (s *Registry) AddServiceToProcess(ctx context.Context, caller string, processID, serviceID uint64) (Result, error) {
	ctx, done := s.begin(ctx, "add_service_to_process", KindProcess, caller)
	res, err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		return tx.AddServiceToProcess(processID, serviceID)
	})
	done(processID, err)
	return res, err
}

// AddItemToProcess assigns an available item to a process in its initial
// state.
func (s *Registry) AddItemToProcess(ctx context.Context, caller string, processID, itemID uint64) (Result, error) {
	ctx, done := s.begin(ctx, "add_item_to_process", KindProcess, caller)
	res, err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		return tx.AddItemToProcess(processID, itemID)
	})
	done(processID, err)
	return res, err
}

// Lifecycle -------------------------------------------------------------------

// StartService transitions a service from Requested to InProgress.
func (s *Registry) StartService(ctx context.Context, caller string, serviceID uint64) (Service, Result, error) {
	var updated Service
	ctx, done := s.begin(ctx, "start_service", KindService, caller)
	res, err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		if err := tx.Authorize(caller, KindService); err != nil {
			return err
		}
		var err error
		updated, err = tx.StartService(serviceID)
		return err
	})
	done(serviceID, err)
	return updated, res, err
}

// CompleteService transitions a service from InProgress to Completed.
func (s *Registry) CompleteService(ctx context.Context, caller string, serviceID uint64) (Service, Result, error) {
	var updated Service
	ctx, done := s.begin(ctx, "complete_service", KindService, caller)
	res, err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		if err := tx.Authorize(caller, KindService); err != nil {
			return err
		}
		var err error
		updated, err = tx.CompleteService(serviceID)
		return err
	})
	done(serviceID, err)
	return updated, res, err
}

// StartProcess transitions a process from Created to InProgress, cascading
// into carried items for Transportation processes.
func (s *Registry) StartProcess(ctx context.Context, caller string, processID uint64) (Process, Result, error) {
	var updated Process
	ctx, done := s.begin(ctx, "start_process", KindProcess, caller)
	res, err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		if err := tx.Authorize(caller, KindProcess); err != nil {
			return err
		}
		var err error
		updated, err = tx.StartProcess(processID)
		return err
	})
	done(processID, err)
	return updated, res, err
}

// CompleteProcess transitions a process from InProgress to Completed,
// cascading into carried items for Transportation processes.
func (s *Registry) CompleteProcess(ctx context.Context, caller string, processID uint64) (Process, Result, error) {
	var updated Process
	ctx, done := s.begin(ctx, "complete_process", KindProcess, caller)
	res, err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		if err := tx.Authorize(caller, KindProcess); err != nil {
			return err
		}
		var err error
		updated, err = tx.CompleteProcess(processID)
		return err
	})
	done(processID, err)
	return updated, res, err
}

// Reads -----------------------------------------------------------------------

// GetResource returns the record of the given kind, or the kind's zero-value
// sentinel (id 0) when absent. Reads bypass the permission gate.
func (s *Registry) GetResource(kind ResourceKind, id uint64) Resource {
	return s.store.GetResource(kind, id)
}

// ResourceCount returns how many records of kind have been created.
func (s *Registry) ResourceCount(kind ResourceKind) uint64 {
	return s.store.ResourceCount(kind)
}

// ResourceNotes returns the ordered note ids attached to a resource.
func (s *Registry) ResourceNotes(kind ResourceKind, id uint64) []uint64 {
	return s.store.ResourceNotes(kind, id)
}

// ItemComponents returns the ordered component ids of an item.
func (s *Registry) ItemComponents(itemID uint64) []uint64 {
	return s.store.ItemComponents(itemID)
}

// ProcessServices returns the ordered service ids assigned to a process.
func (s *Registry) ProcessServices(processID uint64) []uint64 {
	return s.store.ProcessServices(processID)
}

// ProcessItems returns the ordered item ids assigned to a process.
func (s *Registry) ProcessItems(processID uint64) []uint64 {
	return s.store.ProcessItems(processID)
}

// IsComponent reports whether an item carries the global component marker.
func (s *Registry) IsComponent(itemID uint64) bool {
	return s.store.IsComponent(itemID)
}

// Owner returns the registry owner identity.
func (s *Registry) Owner() string {
	return s.store.Owner()
}
