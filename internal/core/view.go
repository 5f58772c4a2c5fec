package core

import "ledgercore/pkg/domain"

// transactionView exposes a read-only snapshot of transactional state to
// rules and View callers.
type transactionView struct {
	state *registryState
}

var _ domain.RuleView = transactionView{}

func newTransactionView(state *registryState) transactionView {
	return transactionView{state: state}
}

// FindLot retrieves a lot from the snapshot.
func (v transactionView) FindLot(id uint64) (Lot, bool) {
	l, ok := v.state.lots[id]
	return l, ok
}

// FindItem retrieves an item from the snapshot.
func (v transactionView) FindItem(id uint64) (Item, bool) {
	i, ok := v.state.items[id]
	return i, ok
}

// FindService retrieves a service from the snapshot.
func (v transactionView) FindService(id uint64) (Service, bool) {
	sv, ok := v.state.services[id]
	return sv, ok
}

// FindNote retrieves a note from the snapshot.
func (v transactionView) FindNote(id uint64) (Note, bool) {
	n, ok := v.state.notes[id]
	return n, ok
}

// FindProcess retrieves a process from the snapshot.
func (v transactionView) FindProcess(id uint64) (Process, bool) {
	p, ok := v.state.processes[id]
	return p, ok
}

// FindLocation retrieves a location from the snapshot.
func (v transactionView) FindLocation(id uint64) (Location, bool) {
	l, ok := v.state.locations[id]
	return l, ok
}

// ListItems returns all items within the snapshot.
func (v transactionView) ListItems() []Item {
	out := make([]Item, 0, len(v.state.items))
	for _, i := range v.state.items {
		out = append(out, i)
	}
	return out
}

// ItemComponents returns the ordered component list for an item.
func (v transactionView) ItemComponents(itemID uint64) []uint64 {
	return append([]uint64(nil), v.state.components[itemID]...)
}
