package sim

import (
	"github.com/tacsim/battlesim/internal/lod"
	"github.com/tacsim/battlesim/internal/spatial"
	"github.com/tacsim/battlesim/pkg/core"
)

// AIUpdateFunc runs one combatant's full AI update. The simulation core
// schedules these; the actual behavior tree lives outside it. A nil func is
// a no-op, the scheduling and telemetry still run.
type AIUpdateFunc func(id string)

// CombatantSystem drives the per-tick combatant pipeline: push positions
// into the spatial index, classify detail tiers, then run the staggered full
// AI updates under the wall-clock budget.
type CombatantSystem struct {
	roster     *Roster
	index      *spatial.Index
	classifier *lod.Classifier
	scheduler  *lod.Scheduler
	update     AIUpdateFunc

	// observers are the positions relevance is measured against. Empty
	// means no spectator is attached and everything runs high detail.
	observers []core.Position3D

	lastTiers  lod.TierCounts
	lastReport lod.UpdateReport
}

// NewCombatantSystem wires the pipeline. update may be nil.
func NewCombatantSystem(roster *Roster, index *spatial.Index, classifier *lod.Classifier, scheduler *lod.Scheduler, update AIUpdateFunc) *CombatantSystem {
	if update == nil {
		update = func(string) {}
	}
	return &CombatantSystem{
		roster:     roster,
		index:      index,
		classifier: classifier,
		scheduler:  scheduler,
		update:     update,
	}
}

// SetObservers replaces the observer positions used for tier classification.
func (cs *CombatantSystem) SetObservers(observers []core.Position3D) {
	cs.observers = observers
}

// Tick runs one tick of the combatant pipeline. zoneCenters are the
// positions of zones currently worth fighting for, used to promote tiers.
// Spatial updates happen first so every radius query this tick sees current
// positions.
func (cs *CombatantSystem) Tick(zoneCenters []core.Position3D) {
	combatants := cs.roster.Combatants()

	for _, c := range combatants {
		cs.index.Update(c.ID, c.Position)
	}

	cs.lastTiers = cs.classifier.ClassifyAll(combatants, cs.observers, zoneCenters)
	cs.lastReport = cs.scheduler.RunFullUpdates(combatants, cs.update)
}

// Remove drops a combatant from the spatial index and scheduler state,
// called on despawn.
func (cs *CombatantSystem) Remove(id string) {
	cs.index.Remove(id)
	cs.scheduler.Forget(id)
}

// TierCounts returns the tier populations from the last tick.
func (cs *CombatantSystem) TierCounts() lod.TierCounts {
	return cs.lastTiers
}

// LastReport returns the scheduler report from the last tick.
func (cs *CombatantSystem) LastReport() lod.UpdateReport {
	return cs.lastReport
}
