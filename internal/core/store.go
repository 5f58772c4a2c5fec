package core

import (
	"context"
	"fmt"
	"sync"
	"time"
	"unicode/utf8"

	"ledgercore/pkg/domain"
)

type noteKey struct {
	Kind ResourceKind
	ID   uint64
}

type grantKey struct {
	Identity string
	Kind     ResourceKind
}

type registryState struct {
	lots      map[uint64]Lot
	items     map[uint64]Item
	services  map[uint64]Service
	notes     map[uint64]Note
	processes map[uint64]Process
	locations map[uint64]Location

	// counters hold the next identifier per kind; id 0 is the absent sentinel.
	counters map[ResourceKind]uint64

	owner  string
	grants map[grantKey]bool

	resourceNotes   map[noteKey][]uint64
	components      map[uint64][]uint64
	componentMarks  map[uint64]bool
	processServices map[uint64][]uint64
	processItems    map[uint64][]uint64
}

func newRegistryState(owner string) registryState {
	s := registryState{
		lots:            make(map[uint64]Lot),
		items:           make(map[uint64]Item),
		services:        make(map[uint64]Service),
		notes:           make(map[uint64]Note),
		processes:       make(map[uint64]Process),
		locations:       make(map[uint64]Location),
		counters:        make(map[ResourceKind]uint64),
		owner:           owner,
		grants:          make(map[grantKey]bool),
		resourceNotes:   make(map[noteKey][]uint64),
		components:      make(map[uint64][]uint64),
		componentMarks:  make(map[uint64]bool),
		processServices: make(map[uint64][]uint64),
		processItems:    make(map[uint64][]uint64),
	}
	for _, kind := range domain.ResourceKinds() {
		s.counters[kind] = 1
		s.grants[grantKey{Identity: owner, Kind: kind}] = true
	}
	return s
}

func (s registryState) clone() registryState {
	cloned := registryState{
		lots:            make(map[uint64]Lot, len(s.lots)),
		items:           make(map[uint64]Item, len(s.items)),
		services:        make(map[uint64]Service, len(s.services)),
		notes:           make(map[uint64]Note, len(s.notes)),
		processes:       make(map[uint64]Process, len(s.processes)),
		locations:       make(map[uint64]Location, len(s.locations)),
		counters:        make(map[ResourceKind]uint64, len(s.counters)),
		owner:           s.owner,
		grants:          make(map[grantKey]bool, len(s.grants)),
		resourceNotes:   make(map[noteKey][]uint64, len(s.resourceNotes)),
		components:      make(map[uint64][]uint64, len(s.components)),
		componentMarks:  make(map[uint64]bool, len(s.componentMarks)),
		processServices: make(map[uint64][]uint64, len(s.processServices)),
		processItems:    make(map[uint64][]uint64, len(s.processItems)),
	}
	for k, v := range s.lots {
		cloned.lots[k] = v
	}
	for k, v := range s.items {
		cloned.items[k] = v
	}
	for k, v := range s.services {
		cloned.services[k] = v
	}
	for k, v := range s.notes {
		cloned.notes[k] = v
	}
	for k, v := range s.processes {
		cloned.processes[k] = v
	}
	for k, v := range s.locations {
		cloned.locations[k] = v
	}
	for k, v := range s.counters {
		cloned.counters[k] = v
	}
	for k, v := range s.grants {
		cloned.grants[k] = v
	}
	for k, v := range s.resourceNotes {
		cloned.resourceNotes[k] = append([]uint64(nil), v...)
	}
	for k, v := range s.components {
		cloned.components[k] = append([]uint64(nil), v...)
	}
	for k, v := range s.componentMarks {
		cloned.componentMarks[k] = v
	}
	for k, v := range s.processServices {
		cloned.processServices[k] = append([]uint64(nil), v...)
	}
	for k, v := range s.processItems {
		cloned.processItems[k] = append([]uint64(nil), v...)
	}
	return cloned
}

// MemoryStore provides the in-memory transactional registry store. Every
// mutation runs against a clone of the full state under one lock and is
// swapped in only when the whole operation succeeds.
type MemoryStore struct {
	mu     sync.RWMutex
	state  registryState
	engine *RulesEngine
	nowFn  func() time.Time
}

// NewMemoryStore constructs a registry owned by the given identity. The owner
// receives a grant for every resource kind.
func NewMemoryStore(owner string, engine *RulesEngine) *MemoryStore {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	return &MemoryStore{
		state:  newRegistryState(owner),
		engine: engine,
		nowFn:  func() time.Time { return time.Now().UTC() },
	}
}

// SetNowFunc overrides the transaction clock. Intended for tests.
func (s *MemoryStore) SetNowFunc(fn func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if fn != nil {
		s.nowFn = fn
	}
}

// Engine returns the rules engine evaluated at commit.
func (s *MemoryStore) Engine() *RulesEngine { return s.engine }

// Transaction applies a mutation set to a cloned registry state.
type Transaction struct {
	store   *MemoryStore
	state   registryState
	changes []Change
	now     time.Time
}

var _ domain.Transaction = (*Transaction)(nil)

// RunInTransaction executes fn within a transactional copy of the store state.
func (s *MemoryStore) RunInTransaction(ctx context.Context, fn func(tx domain.Transaction) error) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &Transaction{
		store: s,
		state: s.state.clone(),
		now:   s.nowFn(),
	}

	if err := fn(tx); err != nil {
		return Result{}, err
	}

	var result Result
	if s.engine != nil {
		view := newTransactionView(&tx.state)
		res, err := s.engine.Evaluate(ctx, view, tx.changes)
		if err != nil {
			return Result{}, err
		}
		result = res
		if res.HasBlocking() {
			return res, RuleViolationError{Result: res}
		}
	}

	s.state = tx.state
	return result, nil
}

// View executes fn against a read-only snapshot of the store state.
func (s *MemoryStore) View(_ context.Context, fn func(domain.TransactionView) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := s.state.clone()
	return fn(newTransactionView(&snapshot))
}

func (tx *Transaction) recordChange(change Change) {
	tx.changes = append(tx.changes, change)
}

// allocateID issues the next identifier for kind. Callers allocate only after
// validation passes so failed creations leave no gaps.
func (tx *Transaction) allocateID(kind ResourceKind) uint64 {
	id := tx.state.counters[kind]
	tx.state.counters[kind] = id + 1
	return id
}

func checkString(field, value string) error {
	if utf8.RuneCountInString(value) > domain.MaxStringLen {
		return fmt.Errorf("%s: %w", field, domain.ErrStringTooLong)
	}
	return nil
}

func (tx *Transaction) resourceExists(kind ResourceKind, id uint64) bool {
	if id == 0 {
		return false
	}
	switch kind {
	case KindLot:
		_, ok := tx.state.lots[id]
		return ok
	case KindItem:
		_, ok := tx.state.items[id]
		return ok
	case KindService:
		_, ok := tx.state.services[id]
		return ok
	case KindNote:
		_, ok := tx.state.notes[id]
		return ok
	case KindProcess:
		_, ok := tx.state.processes[id]
		return ok
	case KindLocation:
		_, ok := tx.state.locations[id]
		return ok
	}
	return false
}

// Access gate -----------------------------------------------------------------

// Authorize checks the permission gate for a mutating operation. An identity
// passes with an explicit grant for the kind or by being the registry owner.
func (tx *Transaction) Authorize(identity string, kind ResourceKind) error {
	if tx.state.grants[grantKey{Identity: identity, Kind: kind}] {
		return nil
	}
	if identity == tx.state.owner {
		return nil
	}
	return fmt.Errorf("%w: identity %q, kind %q", domain.ErrNoPermission, identity, kind)
}

// Grant sets the permission flag for identity on kind. Owner-only.
func (tx *Transaction) Grant(caller, identity string, kind ResourceKind) error {
	if caller != tx.state.owner {
		return fmt.Errorf("%w: identity %q", domain.ErrNotOwner, caller)
	}
	if !domain.ValidKind(kind) {
		return fmt.Errorf("%w: resource kind %q", domain.ErrInvalidKind, kind)
	}
	tx.state.grants[grantKey{Identity: identity, Kind: kind}] = true
	tx.recordChange(Change{Entity: kind, Action: ActionGrant, After: Grant{Identity: identity, Kind: kind}})
	return nil
}

// Creation --------------------------------------------------------------------

// CreateLot stores a new material lot.
func (tx *Transaction) CreateLot(l Lot) (Lot, error) {
	l.ID = tx.allocateID(KindLot)
	l.CreatedAt = tx.now
	tx.state.lots[l.ID] = l
	tx.recordChange(Change{Entity: KindLot, Action: ActionCreate, After: l})
	return l, nil
}

// CreateItem stores a new inventory item. The lot reference is mandatory;
// current-location and origin-process references may be 0 but must exist when
// set. New items start Available and outside any process.
func (tx *Transaction) CreateItem(i Item) (Item, error) {
	if err := checkString("name", i.Name); err != nil {
		return Item{}, err
	}
	if !tx.resourceExists(KindLot, i.LotID) {
		return Item{}, domain.NotFoundError{Kind: KindLot, ID: i.LotID}
	}
	if i.CurrentLocationID != 0 && !tx.resourceExists(KindLocation, i.CurrentLocationID) {
		return Item{}, domain.NotFoundError{Kind: KindLocation, ID: i.CurrentLocationID}
	}
	if i.OriginProcessID != 0 && !tx.resourceExists(KindProcess, i.OriginProcessID) {
		return Item{}, domain.NotFoundError{Kind: KindProcess, ID: i.OriginProcessID}
	}
	i.Status = ItemStatusAvailable
	i.CurrentProcessID = 0
	i.ID = tx.allocateID(KindItem)
	i.CreatedAt = tx.now
	tx.state.items[i.ID] = i
	tx.recordChange(Change{Entity: KindItem, Action: ActionCreate, After: i})
	return i, nil
}

// CreateService stores a new service engagement in the Requested state.
func (tx *Transaction) CreateService(sv Service) (Service, error) {
	if err := checkString("provider", sv.Provider); err != nil {
		return Service{}, err
	}
	sv.Status = ServiceStatusRequested
	sv.ActualStart = time.Time{}
	sv.ActualEnd = time.Time{}
	sv.ID = tx.allocateID(KindService)
	sv.CreatedAt = tx.now
	tx.state.services[sv.ID] = sv
	tx.recordChange(Change{Entity: KindService, Action: ActionCreate, After: sv})
	return sv, nil
}

// CreateNote stores a new note record.
func (tx *Transaction) CreateNote(n Note) (Note, error) {
	if err := checkString("content", n.Content); err != nil {
		return Note{}, err
	}
	n.ID = tx.allocateID(KindNote)
	n.CreatedAt = tx.now
	tx.state.notes[n.ID] = n
	tx.recordChange(Change{Entity: KindNote, Action: ActionCreate, After: n})
	return n, nil
}

// CreateProcess stores a new workflow process in the Created state.
// Transportation processes must reference existing from/to locations; other
// kinds may leave them 0 but nonzero references must exist.
func (tx *Transaction) CreateProcess(p Process) (Process, error) {
	if !domain.ValidProcessKind(p.Kind) {
		return Process{}, fmt.Errorf("%w: process kind %q", domain.ErrInvalidKind, p.Kind)
	}
	if p.Kind == ProcessTransportation {
		if !tx.resourceExists(KindLocation, p.FromLocationID) || !tx.resourceExists(KindLocation, p.ToLocationID) {
			return Process{}, fmt.Errorf("%w: from %d, to %d", domain.ErrInvalidLocation, p.FromLocationID, p.ToLocationID)
		}
	} else {
		if p.FromLocationID != 0 && !tx.resourceExists(KindLocation, p.FromLocationID) {
			return Process{}, domain.NotFoundError{Kind: KindLocation, ID: p.FromLocationID}
		}
		if p.ToLocationID != 0 && !tx.resourceExists(KindLocation, p.ToLocationID) {
			return Process{}, domain.NotFoundError{Kind: KindLocation, ID: p.ToLocationID}
		}
	}
	p.Status = ProcessStatusCreated
	p.ActualStart = time.Time{}
	p.ActualEnd = time.Time{}
	p.ID = tx.allocateID(KindProcess)
	p.CreatedAt = tx.now
	tx.state.processes[p.ID] = p
	tx.recordChange(Change{Entity: KindProcess, Action: ActionCreate, After: p})
	return p, nil
}

// CreateLocation stores a new location record.
func (tx *Transaction) CreateLocation(l Location) (Location, error) {
	if err := checkString("name", l.Name); err != nil {
		return Location{}, err
	}
	if err := checkString("category", l.Category); err != nil {
		return Location{}, err
	}
	l.ID = tx.allocateID(KindLocation)
	l.CreatedAt = tx.now
	tx.state.locations[l.ID] = l
	tx.recordChange(Change{Entity: KindLocation, Action: ActionCreate, After: l})
	return l, nil
}

// Relationship index ----------------------------------------------------------

// AttachNote appends a note to the note list of the given resource. Note
// records themselves cannot carry notes.
func (tx *Transaction) AttachNote(kind ResourceKind, resourceID, noteID uint64) error {
	if !domain.ValidKind(kind) || kind == KindNote {
		return fmt.Errorf("%w: kind %q cannot carry notes", domain.ErrNotFound, kind)
	}
	if !tx.resourceExists(KindNote, noteID) {
		return domain.NotFoundError{Kind: KindNote, ID: noteID}
	}
	if !tx.resourceExists(kind, resourceID) {
		return domain.NotFoundError{Kind: kind, ID: resourceID}
	}
	key := noteKey{Kind: kind, ID: resourceID}
	tx.state.resourceNotes[key] = append(tx.state.resourceNotes[key], noteID)
	tx.recordChange(Change{Entity: kind, Action: ActionAttach, After: domain.NoteLink{Kind: kind, ResourceID: resourceID, NoteID: noteID}})
	return nil
}

// AddComponent nests componentID inside itemID's component list and marks the
// component globally. Duplicates, self-references, and cycles are permitted;
// the component_cycle rule reports cycles as warnings.
func (tx *Transaction) AddComponent(itemID, componentID uint64) error {
	if !tx.resourceExists(KindItem, itemID) {
		return domain.NotFoundError{Kind: KindItem, ID: itemID}
	}
	if !tx.resourceExists(KindItem, componentID) {
		return domain.NotFoundError{Kind: KindItem, ID: componentID}
	}
	if len(tx.state.components[itemID]) >= domain.MaxComponentsPerItem {
		return fmt.Errorf("%w: item %d components", domain.ErrExceedsLimit, itemID)
	}
	tx.state.components[itemID] = append(tx.state.components[itemID], componentID)
	tx.state.componentMarks[componentID] = true
	tx.recordChange(Change{Entity: KindItem, Action: ActionAttach, After: domain.ComponentLink{ParentID: itemID, ComponentID: componentID}})
	return nil
}

// AddServiceToProcess assigns a service to a process. Both must still be in
// their initial states.
func (tx *Transaction) AddServiceToProcess(processID, serviceID uint64) error {
	p, ok := tx.state.processes[processID]
	if !ok {
		return domain.NotFoundError{Kind: KindProcess, ID: processID}
	}
	sv, ok := tx.state.services[serviceID]
	if !ok {
		return domain.NotFoundError{Kind: KindService, ID: serviceID}
	}
	if p.Status != ProcessStatusCreated {
		return fmt.Errorf("%w: process %d is %s", domain.ErrInvalidStatus, processID, p.Status)
	}
	if sv.Status != ServiceStatusRequested {
		return fmt.Errorf("%w: service %d is %s", domain.ErrInvalidStatus, serviceID, sv.Status)
	}
	tx.state.processServices[processID] = append(tx.state.processServices[processID], serviceID)
	tx.recordChange(Change{Entity: KindProcess, Action: ActionAttach, After: domain.ProcessLink{ProcessID: processID, Kind: KindService, EntityID: serviceID}})
	return nil
}

// AddItemToProcess assigns an item to a process. The process must be Created,
// the item Available, and the list below its maximum.
func (tx *Transaction) AddItemToProcess(processID, itemID uint64) error {
	p, ok := tx.state.processes[processID]
	if !ok {
		return domain.NotFoundError{Kind: KindProcess, ID: processID}
	}
	it, ok := tx.state.items[itemID]
	if !ok {
		return domain.NotFoundError{Kind: KindItem, ID: itemID}
	}
	if p.Status != ProcessStatusCreated {
		return fmt.Errorf("%w: process %d is %s", domain.ErrInvalidStatus, processID, p.Status)
	}
	if it.Status != ItemStatusAvailable {
		return fmt.Errorf("%w: item %d is %s", domain.ErrInvalidStatus, itemID, it.Status)
	}
	if len(tx.state.processItems[processID]) >= domain.MaxItemsPerProcess {
		return fmt.Errorf("%w: process %d items", domain.ErrExceedsLimit, processID)
	}
	tx.state.processItems[processID] = append(tx.state.processItems[processID], itemID)
	tx.recordChange(Change{Entity: KindProcess, Action: ActionAttach, After: domain.ProcessLink{ProcessID: processID, Kind: KindItem, EntityID: itemID}})
	return nil
}

// Lookups ---------------------------------------------------------------------

// FindLot retrieves a lot from the transaction state.
func (tx *Transaction) FindLot(id uint64) (Lot, bool) {
	l, ok := tx.state.lots[id]
	return l, ok
}

// FindItem retrieves an item from the transaction state.
func (tx *Transaction) FindItem(id uint64) (Item, bool) {
	i, ok := tx.state.items[id]
	return i, ok
}

// FindService retrieves a service from the transaction state.
func (tx *Transaction) FindService(id uint64) (Service, bool) {
	sv, ok := tx.state.services[id]
	return sv, ok
}

// FindNote retrieves a note from the transaction state.
func (tx *Transaction) FindNote(id uint64) (Note, bool) {
	n, ok := tx.state.notes[id]
	return n, ok
}

// FindProcess retrieves a process from the transaction state.
func (tx *Transaction) FindProcess(id uint64) (Process, bool) {
	p, ok := tx.state.processes[id]
	return p, ok
}

// FindLocation retrieves a location from the transaction state.
func (tx *Transaction) FindLocation(id uint64) (Location, bool) {
	l, ok := tx.state.locations[id]
	return l, ok
}
