// pkg/core/types.go
package core

import "math"

// Faction identifies a side in the match.
type Faction int

const (
	FactionNone Faction = iota
	FactionUS
	FactionOPFOR
)

// String returns the display name of the faction.
func (f Faction) String() string {
	switch f {
	case FactionUS:
		return "US"
	case FactionOPFOR:
		return "OPFOR"
	default:
		return "NONE"
	}
}

// Opponent returns the opposing faction, or FactionNone for FactionNone.
func (f Faction) Opponent() Faction {
	switch f {
	case FactionUS:
		return FactionOPFOR
	case FactionOPFOR:
		return FactionUS
	default:
		return FactionNone
	}
}

// Position3D is a point in world space, meters.
type Position3D struct {
	X float64
	Y float64
	Z float64
}

// Sub returns p - other.
func (p Position3D) Sub(other Position3D) Position3D {
	return Position3D{p.X - other.X, p.Y - other.Y, p.Z - other.Z}
}

// Add returns p + other.
func (p Position3D) Add(other Position3D) Position3D {
	return Position3D{p.X + other.X, p.Y + other.Y, p.Z + other.Z}
}

// Scale returns p scaled by s.
func (p Position3D) Scale(s float64) Position3D {
	return Position3D{p.X * s, p.Y * s, p.Z * s}
}

// Dot returns the inner product of p and other treated as vectors.
func (p Position3D) Dot(other Position3D) float64 {
	return p.X*other.X + p.Y*other.Y + p.Z*other.Z
}

// Length returns the Euclidean length of p treated as a vector.
func (p Position3D) Length() float64 {
	return math.Sqrt(p.X*p.X + p.Y*p.Y + p.Z*p.Z)
}

// DistanceTo returns the Euclidean distance between p and other.
func (p Position3D) DistanceTo(other Position3D) float64 {
	return p.Sub(other).Length()
}

// Normalize returns p scaled to unit length, or the zero vector.
func (p Position3D) Normalize() Position3D {
	l := p.Length()
	if l == 0 {
		return Position3D{}
	}
	return p.Scale(1 / l)
}

// GamePhase is the match phase.
type GamePhase int

const (
	PhaseSetup GamePhase = iota
	PhaseCombat
	PhaseOvertime
	PhaseEnded
)

// String returns the display name of the phase.
func (p GamePhase) String() string {
	switch p {
	case PhaseSetup:
		return "SETUP"
	case PhaseCombat:
		return "COMBAT"
	case PhaseOvertime:
		return "OVERTIME"
	case PhaseEnded:
		return "ENDED"
	default:
		return "UNKNOWN"
	}
}

// VictoryReason explains why a match ended.
type VictoryReason int

const (
	ReasonNone VictoryReason = iota
	ReasonKillTargetReached
	ReasonTicketsDepleted
	ReasonTotalControl
	ReasonTimeLimit
)

// String returns the display name of the reason.
func (r VictoryReason) String() string {
	switch r {
	case ReasonKillTargetReached:
		return "KILL_TARGET_REACHED"
	case ReasonTicketsDepleted:
		return "TICKETS_DEPLETED"
	case ReasonTotalControl:
		return "TOTAL_CONTROL"
	case ReasonTimeLimit:
		return "TIME_LIMIT"
	default:
		return "NONE"
	}
}

// VictoryResult is the outcome of a victory evaluation. It is a computed
// value, never stored state; Reason is ReasonNone while the match runs.
type VictoryResult struct {
	Winner              Faction
	Reason              VictoryReason
	ShouldEnterOvertime bool
}

// Decided reports whether the match has reached a terminal outcome. A
// decided result with a FactionNone winner is a draw.
func (v VictoryResult) Decided() bool {
	return v.Reason != ReasonNone
}
