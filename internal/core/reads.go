package core

import "ledgercore/pkg/domain"

var _ domain.PersistentStore = (*MemoryStore)(nil)

// Read helpers over committed state. Reads are ungated and never fail: absent
// records come back as the kind's zero-value sentinel.

// GetResource returns the record of the given kind, or its zero value (id 0)
// when no such record exists.
func (s *MemoryStore) GetResource(kind ResourceKind, id uint64) Resource {
	s.mu.RLock()
	defer s.mu.RUnlock()
	switch kind {
	case KindLot:
		return s.state.lots[id]
	case KindItem:
		return s.state.items[id]
	case KindService:
		return s.state.services[id]
	case KindNote:
		return s.state.notes[id]
	case KindProcess:
		return s.state.processes[id]
	case KindLocation:
		return s.state.locations[id]
	}
	return domain.ZeroResource(kind)
}

// ResourceCount returns how many records of kind have been created.
func (s *MemoryStore) ResourceCount(kind ResourceKind) uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	next, ok := s.state.counters[kind]
	if !ok {
		return 0
	}
	return next - 1
}

// ResourceNotes returns the ordered note ids attached to the resource.
func (s *MemoryStore) ResourceNotes(kind ResourceKind, id uint64) []uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]uint64(nil), s.state.resourceNotes[noteKey{Kind: kind, ID: id}]...)
}

// ItemComponents returns the ordered component ids nested in the item.
func (s *MemoryStore) ItemComponents(itemID uint64) []uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]uint64(nil), s.state.components[itemID]...)
}

// ProcessServices returns the ordered service ids assigned to the process.
func (s *MemoryStore) ProcessServices(processID uint64) []uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]uint64(nil), s.state.processServices[processID]...)
}

// ProcessItems returns the ordered item ids assigned to the process.
func (s *MemoryStore) ProcessItems(processID uint64) []uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]uint64(nil), s.state.processItems[processID]...)
}

// IsComponent reports whether the item carries the global component marker.
func (s *MemoryStore) IsComponent(itemID uint64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.componentMarks[itemID]
}

// Owner returns the registry owner identity fixed at initialization.
func (s *MemoryStore) Owner() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.owner
}

// GetLot retrieves a lot by id from committed state.
func (s *MemoryStore) GetLot(id uint64) (Lot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.state.lots[id]
	return l, ok
}

// GetItem retrieves an item by id from committed state.
func (s *MemoryStore) GetItem(id uint64) (Item, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.state.items[id]
	return i, ok
}

// GetService retrieves a service by id from committed state.
func (s *MemoryStore) GetService(id uint64) (Service, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sv, ok := s.state.services[id]
	return sv, ok
}

// GetNote retrieves a note by id from committed state.
func (s *MemoryStore) GetNote(id uint64) (Note, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.state.notes[id]
	return n, ok
}

// GetProcess retrieves a process by id from committed state.
func (s *MemoryStore) GetProcess(id uint64) (Process, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.state.processes[id]
	return p, ok
}

// GetLocation retrieves a location by id from committed state.
func (s *MemoryStore) GetLocation(id uint64) (Location, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.state.locations[id]
	return l, ok
}

// HasGrant reports whether identity holds an explicit grant for kind.
func (s *MemoryStore) HasGrant(identity string, kind ResourceKind) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.grants[grantKey{Identity: identity, Kind: kind}]
}
