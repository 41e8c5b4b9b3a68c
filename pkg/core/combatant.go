// pkg/core/combatant.go
package core

// CombatantState is the lifecycle state of a combatant.
type CombatantState int

const (
	StateAlive CombatantState = iota
	StateEngaging
	StateSuppressing
	StateDead
)

// String returns the display name of the state.
func (s CombatantState) String() string {
	switch s {
	case StateAlive:
		return "alive"
	case StateEngaging:
		return "engaging"
	case StateSuppressing:
		return "suppressing"
	case StateDead:
		return "dead"
	default:
		return "unknown"
	}
}

// LODTier is the level-of-detail tier assigned to a combatant. The tier
// governs AI update cost only, never gameplay participation.
type LODTier int

const (
	TierHigh LODTier = iota
	TierMedium
	TierLow
	TierCulled
)

// String returns the display name of the tier.
func (t LODTier) String() string {
	switch t {
	case TierHigh:
		return "high"
	case TierMedium:
		return "medium"
	case TierLow:
		return "low"
	case TierCulled:
		return "culled"
	default:
		return "unknown"
	}
}

// Combatant is one autonomous unit on the battlefield. The control plane
// reads Position, Faction and State; movement and combat resolution mutate
// the rest elsewhere.
type Combatant struct {
	ID       string
	Faction  Faction
	Position Position3D
	Velocity Position3D
	Health   float64
	State    CombatantState
	Tier     LODTier
}

// Alive reports whether the combatant participates in the simulation.
func (c *Combatant) Alive() bool {
	return c.State != StateDead
}
