package core

import (
	"fmt"

	"ledgercore/pkg/domain"
)

// Lifecycle transitions. Both state machines are strictly sequential; calls
// out of order fail ErrInvalidStatus and leave the transaction unusable for
// commit.

// StartService moves a Requested service to InProgress and stamps the actual
// start time.
func (tx *Transaction) StartService(id uint64) (Service, error) {
	sv, ok := tx.state.services[id]
	if !ok {
		return Service{}, domain.NotFoundError{Kind: KindService, ID: id}
	}
	if sv.Status != ServiceStatusRequested {
		return Service{}, fmt.Errorf("%w: service %d is %s", domain.ErrInvalidStatus, id, sv.Status)
	}
	before := sv
	sv.Status = ServiceStatusInProgress
	sv.ActualStart = tx.now
	tx.state.services[id] = sv
	tx.recordChange(Change{Entity: KindService, Action: ActionUpdate, Before: before, After: sv})
	return sv, nil
}

// CompleteService moves an InProgress service to Completed and stamps the
// actual end time.
func (tx *Transaction) CompleteService(id uint64) (Service, error) {
	sv, ok := tx.state.services[id]
	if !ok {
		return Service{}, domain.NotFoundError{Kind: KindService, ID: id}
	}
	if sv.Status != ServiceStatusInProgress {
		return Service{}, fmt.Errorf("%w: service %d is %s", domain.ErrInvalidStatus, id, sv.Status)
	}
	before := sv
	sv.Status = ServiceStatusCompleted
	sv.ActualEnd = tx.now
	tx.state.services[id] = sv
	tx.recordChange(Change{Entity: KindService, Action: ActionUpdate, Before: before, After: sv})
	return sv, nil
}

// StartProcess moves a Created process to InProgress. Transportation
// processes take their carried items in use; other kinds carry items for
// bookkeeping only.
func (tx *Transaction) StartProcess(id uint64) (Process, error) {
	p, ok := tx.state.processes[id]
	if !ok {
		return Process{}, domain.NotFoundError{Kind: KindProcess, ID: id}
	}
	if p.Status != ProcessStatusCreated {
		return Process{}, fmt.Errorf("%w: process %d is %s", domain.ErrInvalidStatus, id, p.Status)
	}
	before := p
	p.Status = ProcessStatusInProgress
	p.ActualStart = tx.now
	tx.state.processes[id] = p
	tx.recordChange(Change{Entity: KindProcess, Action: ActionUpdate, Before: before, After: p})

	if p.Kind == ProcessTransportation {
		for _, itemID := range tx.state.processItems[id] {
			it, ok := tx.state.items[itemID]
			if !ok {
				return Process{}, domain.NotFoundError{Kind: KindItem, ID: itemID}
			}
			prev := it
			it.Status = ItemStatusInUse
			it.CurrentProcessID = id
			tx.state.items[itemID] = it
			tx.recordChange(Change{Entity: KindItem, Action: ActionUpdate, Before: prev, After: it})
		}
	}
	return p, nil
}

// CompleteProcess moves an InProgress process to Completed. For
// Transportation, every carried item lands at the destination location and
// leaves the process; items flagged as components stay InUse.
func (tx *Transaction) CompleteProcess(id uint64) (Process, error) {
	p, ok := tx.state.processes[id]
	if !ok {
		return Process{}, domain.NotFoundError{Kind: KindProcess, ID: id}
	}
	if p.Status != ProcessStatusInProgress {
		return Process{}, fmt.Errorf("%w: process %d is %s", domain.ErrInvalidStatus, id, p.Status)
	}
	before := p
	p.Status = ProcessStatusCompleted
	p.ActualEnd = tx.now
	tx.state.processes[id] = p
	tx.recordChange(Change{Entity: KindProcess, Action: ActionUpdate, Before: before, After: p})

	if p.Kind == ProcessTransportation {
		for _, itemID := range tx.state.processItems[id] {
			it, ok := tx.state.items[itemID]
			if !ok {
				return Process{}, domain.NotFoundError{Kind: KindItem, ID: itemID}
			}
			prev := it
			it.CurrentLocationID = p.ToLocationID
			it.CurrentProcessID = 0
			if !tx.state.componentMarks[itemID] {
				it.Status = ItemStatusAvailable
			}
			tx.state.items[itemID] = it
			tx.recordChange(Change{Entity: KindItem, Action: ActionUpdate, Before: prev, After: it})
		}
	}
	return p, nil
}
