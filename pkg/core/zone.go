// pkg/core/zone.go
package core

// ZoneState is the display state of a capture zone. Contested is an overlay
// applied whenever both factions are present; it does not alter the underlying
// capture-progress direction.
type ZoneState int

const (
	ZoneNeutral ZoneState = iota
	ZoneUSControlled
	ZoneOPFORControlled
	ZoneContested
)

// String returns the display name of the zone state.
func (s ZoneState) String() string {
	switch s {
	case ZoneNeutral:
		return "neutral"
	case ZoneUSControlled:
		return "us_controlled"
	case ZoneOPFORControlled:
		return "opfor_controlled"
	case ZoneContested:
		return "contested"
	default:
		return "unknown"
	}
}

// ZoneDefinition is the externally supplied description of one capture zone,
// consumed once at match setup.
type ZoneDefinition struct {
	ID              string
	Name            string
	Position        Position3D
	Radius          float64
	Owner           Faction
	IsHomeBase      bool
	TicketBleedRate float64
}

// Occupancy is the per-zone transient faction head count, recomputed each
// occupant-update interval from a spatial radius query.
type Occupancy struct {
	US    int
	OPFOR int
}

// Total returns the combined head count.
func (o Occupancy) Total() int {
	return o.US + o.OPFOR
}

// Contested reports whether both factions are present.
func (o Occupancy) Contested() bool {
	return o.US > 0 && o.OPFOR > 0
}

// ZoneStatus is a point-in-time snapshot of one zone, safe to hand to
// external consumers (HUD, recorder, stream).
type ZoneStatus struct {
	ID         string
	Name       string
	Owner      Faction
	State      ZoneState
	Progress   float64
	IsHomeBase bool
	Occupancy  Occupancy
}
