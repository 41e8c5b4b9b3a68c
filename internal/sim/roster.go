// Package sim owns the per-tick orchestration: the combatant roster, the
// spatial/LOD/AI pipeline, zone occupancy and capture, tickets, phases and
// victory. One Match is one independent simulation; nothing here is shared
// process-wide, so parallel matches (and parallel tests) do not interfere.
package sim

import (
	"github.com/tacsim/battlesim/pkg/core"
)

// Handle addresses a roster slot. The generation counter detects stale
// handles after a slot is reused.
type Handle struct {
	index int32
	gen   uint32
}

type slot struct {
	combatant core.Combatant
	gen       uint32
	live      bool
}

// Roster is a dense combatant arena. The hot per-tick loops walk the slots
// directly; the string-id map is touched only at the spawn/despawn boundary
// and for external lookups.
type Roster struct {
	slots []slot
	free  []int32
	byID  map[string]Handle
	count int

	// scratch avoids reallocating the live-combatant slice every tick.
	scratch []*core.Combatant
}

// NewRoster creates an empty roster.
func NewRoster() *Roster {
	return &Roster{byID: make(map[string]Handle)}
}

// Spawn adds a combatant and returns its handle. Spawning an id already
// present replaces the old entry.
func (r *Roster) Spawn(c core.Combatant) Handle {
	if h, ok := r.byID[c.ID]; ok {
		r.despawnHandle(h)
	}

	var idx int32
	if n := len(r.free); n > 0 {
		idx = r.free[n-1]
		r.free = r.free[:n-1]
	} else {
		r.slots = append(r.slots, slot{})
		idx = int32(len(r.slots) - 1)
	}

	s := &r.slots[idx]
	s.combatant = c
	s.gen++
	s.live = true

	h := Handle{index: idx, gen: s.gen}
	r.byID[c.ID] = h
	r.count++
	return h
}

// Despawn removes a combatant by id. Returns false if the id is unknown.
func (r *Roster) Despawn(id string) bool {
	h, ok := r.byID[id]
	if !ok {
		return false
	}
	delete(r.byID, id)
	r.despawnHandle(h)
	return true
}

func (r *Roster) despawnHandle(h Handle) {
	s := &r.slots[h.index]
	if !s.live || s.gen != h.gen {
		return
	}
	s.live = false
	s.combatant = core.Combatant{}
	r.free = append(r.free, h.index)
	r.count--
}

// Get returns the combatant for an id. The pointer is valid until the next
// Spawn or Despawn.
func (r *Roster) Get(id string) (*core.Combatant, bool) {
	h, ok := r.byID[id]
	if !ok {
		return nil, false
	}
	return r.ByHandle(h)
}

// ByHandle resolves a handle, rejecting stale generations.
func (r *Roster) ByHandle(h Handle) (*core.Combatant, bool) {
	if h.index < 0 || int(h.index) >= len(r.slots) {
		return nil, false
	}
	s := &r.slots[h.index]
	if !s.live || s.gen != h.gen {
		return nil, false
	}
	return &s.combatant, true
}

// Len returns the number of live combatants.
func (r *Roster) Len() int {
	return r.count
}

// Combatants returns pointers to every live combatant. The slice is reused
// across calls; do not retain it past the current tick.
func (r *Roster) Combatants() []*core.Combatant {
	r.scratch = r.scratch[:0]
	for i := range r.slots {
		if r.slots[i].live {
			r.scratch = append(r.scratch, &r.slots[i].combatant)
		}
	}
	return r.scratch
}
