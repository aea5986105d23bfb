package raypipe

import (
	"maps"
	"slices"
)

// MaterialStatus reports the state of one material slot.
type MaterialStatus struct {
	Slot      int
	ID        MaterialID
	Instances int
	Library   SlotState
}

// EntryStatus reports the state of one cached specialized pipeline.
type EntryStatus struct {
	Mask    Mask
	State   DeferredState
	Mapping []HitgroupRange
	BuildID string
	Err     error
}

// Snapshot is a point-in-time report of a manager's state.
type Snapshot struct {
	Strategy   Strategy
	ActiveMask Mask
	FullMask   Mask
	Base       SlotState
	Materials  []MaterialStatus

	// Entries are sorted by mask.
	Entries []EntryStatus
}

// Snapshot reports the manager's current state. It only polls; it never
// schedules builds.
func (m *Manager) Snapshot() Snapshot {
	s := Snapshot{
		Strategy:   m.strategy,
		ActiveMask: m.active.mask,
		FullMask:   m.chars.FullMask(),
		Base:       m.base.state(),
		Materials:  make([]MaterialStatus, len(m.materials)),
		Entries:    make([]EntryStatus, 0, len(m.entries)),
	}
	for slot := range m.materials {
		s.Materials[slot] = MaterialStatus{
			Slot:      slot,
			ID:        m.chars.Material(slot).ID,
			Instances: m.active.counts[slot],
			Library:   m.materials[slot].state(),
		}
	}
	for _, mask := range slices.Sorted(maps.Keys(m.entries)) {
		e := m.entries[mask]
		_, state, err := e.pipeline.Poll()
		s.Entries = append(s.Entries, EntryStatus{
			Mask:    mask,
			State:   state,
			Mapping: e.mapping.Ranges(),
			BuildID: e.buildID,
			Err:     err,
		})
	}
	return s
}

// Entry returns the status of the entry for mask, if one exists.
func (s Snapshot) Entry(mask Mask) (EntryStatus, bool) {
	i, found := slices.BinarySearchFunc(s.Entries, mask, func(e EntryStatus, m Mask) int {
		switch {
		case e.Mask < m:
			return -1
		case e.Mask > m:
			return 1
		}
		return 0
	})
	if !found {
		return EntryStatus{}, false
	}
	return s.Entries[i], true
}
