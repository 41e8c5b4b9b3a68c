// pkg/core/events.go
package core

import "time"

// MatchInfo describes a match being recorded.
type MatchInfo struct {
	ID           uint
	Name         string
	WorldSize    float64
	IsTDM        bool
	StartTime    time.Time
	TicketsUS    float64
	TicketsOPFOR float64
}

// ZoneCaptureEvent records a zone-ownership transition.
type ZoneCaptureEvent struct {
	Time      time.Time
	Tick      uint64
	ZoneID    string
	ZoneName  string
	PrevOwner Faction
	NewOwner  Faction
}

// KillEvent records one combatant killing another.
type KillEvent struct {
	Time      time.Time
	Tick      uint64
	KillerID  string
	VictimID  string
	Killer    Faction
	Victim    Faction
	KillerPos Position3D
	VictimPos Position3D
	Distance  float64
}

// TickSample is periodic per-tick telemetry, recorded for post-match analysis.
type TickSample struct {
	Time            time.Time
	Tick            uint64
	Phase           GamePhase
	TicketsUS       float64
	TicketsOPFOR    float64
	Combatants      int
	TierHigh        int
	TierMedium      int
	TierLow         int
	TierCulled      int
	FullAIUpdates   int
	StaggeredSkips  uint64
	RaycastsUsed    uint64
	RaycastsDenied  uint64
	TickDurationMs  float64
	AIBudgetOverrun bool
}

// MatchResult is the terminal record of a finished match.
type MatchResult struct {
	Time         time.Time
	Tick         uint64
	Winner       Faction
	Reason       VictoryReason
	TicketsUS    float64
	TicketsOPFOR float64
	Duration     time.Duration
}
