package core

import (
	"sort"

	"ledgercore/pkg/domain"
)

// NoteBucket serializes the note list of one resource.
type NoteBucket struct {
	Kind       ResourceKind `json:"kind"`
	ResourceID uint64       `json:"resource_id"`
	NoteIDs    []uint64     `json:"note_ids"`
}

// LinkList serializes one owner's ordered relationship list.
type LinkList struct {
	OwnerID uint64   `json:"owner_id"`
	IDs     []uint64 `json:"ids"`
}

// Snapshot is the full serializable registry state: every collection, the
// identifier counters, the permission table, and the relationship index.
type Snapshot struct {
	Lots      []Lot      `json:"lots"`
	Items     []Item     `json:"items"`
	Services  []Service  `json:"services"`
	Notes     []Note     `json:"notes"`
	Processes []Process  `json:"processes"`
	Locations []Location `json:"locations"`

	Counters map[ResourceKind]uint64 `json:"counters"`
	Owner    string                  `json:"owner"`
	Grants   []Grant                 `json:"grants"`

	ResourceNotes   []NoteBucket `json:"resource_notes"`
	Components      []LinkList   `json:"components"`
	ComponentMarks  []uint64     `json:"component_marks"`
	ProcessServices []LinkList   `json:"process_services"`
	ProcessItems    []LinkList   `json:"process_items"`
}

// ExportState captures a deterministic snapshot of committed state.
func (s *MemoryStore) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		Counters: make(map[ResourceKind]uint64, len(s.state.counters)),
		Owner:    s.state.owner,
	}
	for _, l := range s.state.lots {
		snap.Lots = append(snap.Lots, l)
	}
	for _, i := range s.state.items {
		snap.Items = append(snap.Items, i)
	}
	for _, sv := range s.state.services {
		snap.Services = append(snap.Services, sv)
	}
	for _, n := range s.state.notes {
		snap.Notes = append(snap.Notes, n)
	}
	for _, p := range s.state.processes {
		snap.Processes = append(snap.Processes, p)
	}
	for _, l := range s.state.locations {
		snap.Locations = append(snap.Locations, l)
	}
	sort.Slice(snap.Lots, func(a, b int) bool { return snap.Lots[a].ID < snap.Lots[b].ID })
	sort.Slice(snap.Items, func(a, b int) bool { return snap.Items[a].ID < snap.Items[b].ID })
	sort.Slice(snap.Services, func(a, b int) bool { return snap.Services[a].ID < snap.Services[b].ID })
	sort.Slice(snap.Notes, func(a, b int) bool { return snap.Notes[a].ID < snap.Notes[b].ID })
	sort.Slice(snap.Processes, func(a, b int) bool { return snap.Processes[a].ID < snap.Processes[b].ID })
	sort.Slice(snap.Locations, func(a, b int) bool { return snap.Locations[a].ID < snap.Locations[b].ID })

	for kind, next := range s.state.counters {
		snap.Counters[kind] = next
	}
	for key, granted := range s.state.grants {
		if granted {
			snap.Grants = append(snap.Grants, Grant{Identity: key.Identity, Kind: key.Kind})
		}
	}
	sort.Slice(snap.Grants, func(a, b int) bool {
		if snap.Grants[a].Identity != snap.Grants[b].Identity {
			return snap.Grants[a].Identity < snap.Grants[b].Identity
		}
		return snap.Grants[a].Kind < snap.Grants[b].Kind
	})

	for key, ids := range s.state.resourceNotes {
		snap.ResourceNotes = append(snap.ResourceNotes, NoteBucket{Kind: key.Kind, ResourceID: key.ID, NoteIDs: append([]uint64(nil), ids...)})
	}
	sort.Slice(snap.ResourceNotes, func(a, b int) bool {
		if snap.ResourceNotes[a].Kind != snap.ResourceNotes[b].Kind {
			return snap.ResourceNotes[a].Kind < snap.ResourceNotes[b].Kind
		}
		return snap.ResourceNotes[a].ResourceID < snap.ResourceNotes[b].ResourceID
	})

	snap.Components = exportLinkLists(s.state.components)
	snap.ProcessServices = exportLinkLists(s.state.processServices)
	snap.ProcessItems = exportLinkLists(s.state.processItems)

	for id, marked := range s.state.componentMarks {
		if marked {
			snap.ComponentMarks = append(snap.ComponentMarks, id)
		}
	}
	sort.Slice(snap.ComponentMarks, func(a, b int) bool { return snap.ComponentMarks[a] < snap.ComponentMarks[b] })
	return snap
}

func exportLinkLists(lists map[uint64][]uint64) []LinkList {
	out := make([]LinkList, 0, len(lists))
	for owner, ids := range lists {
		out = append(out, LinkList{OwnerID: owner, IDs: append([]uint64(nil), ids...)})
	}
	sort.Slice(out, func(a, b int) bool { return out[a].OwnerID < out[b].OwnerID })
	return out
}

// ImportState replaces committed state with the snapshot contents. Counters
// missing from the snapshot are rebuilt from the highest identifier seen.
func (s *MemoryStore) ImportState(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	owner := snap.Owner
	if owner == "" {
		owner = s.state.owner
	}
	state := newRegistryState(owner)

	for _, l := range snap.Lots {
		state.lots[l.ID] = l
	}
	for _, i := range snap.Items {
		state.items[i.ID] = i
	}
	for _, sv := range snap.Services {
		state.services[sv.ID] = sv
	}
	for _, n := range snap.Notes {
		state.notes[n.ID] = n
	}
	for _, p := range snap.Processes {
		state.processes[p.ID] = p
	}
	for _, l := range snap.Locations {
		state.locations[l.ID] = l
	}
	for kind, next := range snap.Counters {
		state.counters[kind] = next
	}
	// A counter must always outrun every identifier already issued for its
	// kind, even when the snapshot carries records but no counter entry.
	ensureCounter(state.counters, domain.KindLot, highestID(state.lots))
	ensureCounter(state.counters, domain.KindItem, highestID(state.items))
	ensureCounter(state.counters, domain.KindService, highestID(state.services))
	ensureCounter(state.counters, domain.KindNote, highestID(state.notes))
	ensureCounter(state.counters, domain.KindProcess, highestID(state.processes))
	ensureCounter(state.counters, domain.KindLocation, highestID(state.locations))
	for _, g := range snap.Grants {
		state.grants[grantKey{Identity: g.Identity, Kind: g.Kind}] = true
	}
	for _, bucket := range snap.ResourceNotes {
		state.resourceNotes[noteKey{Kind: bucket.Kind, ID: bucket.ResourceID}] = append([]uint64(nil), bucket.NoteIDs...)
	}
	for _, list := range snap.Components {
		state.components[list.OwnerID] = append([]uint64(nil), list.IDs...)
	}
	for _, list := range snap.ProcessServices {
		state.processServices[list.OwnerID] = append([]uint64(nil), list.IDs...)
	}
	for _, list := range snap.ProcessItems {
		state.processItems[list.OwnerID] = append([]uint64(nil), list.IDs...)
	}
	for _, id := range snap.ComponentMarks {
		state.componentMarks[id] = true
	}
	s.state = state
}

func highestID[T any](records map[uint64]T) uint64 {
	var top uint64
	for id := range records {
		if id > top {
			top = id
		}
	}
	return top
}

func ensureCounter(counters map[ResourceKind]uint64, kind ResourceKind, highest uint64) {
	if counters[kind] <= highest {
		counters[kind] = highest + 1
	}
	if counters[kind] < 1 {
		counters[kind] = 1
	}
}
