package match

import (
	"math"
	"time"

	"github.com/tacsim/battlesim/pkg/core"
)

// State is everything victory evaluation reads, snapshotted by the caller.
type State struct {
	Phase     core.GamePhase
	Elapsed   time.Duration
	Durations Durations

	IsTDM      bool
	KillTarget int
	KillsUS    int
	KillsOPFOR int

	TicketsUS    float64
	TicketsOPFOR float64
	TicketMargin float64

	// Non-home-base zone counts: total capturable and owned per faction.
	ZonesCapturable int
	ZonesUS         int
	ZonesOPFOR      int
}

// EvaluateVictory checks terminal conditions in strict priority order: kill
// target, ticket depletion, total zone control, time limit. It is pure; the
// caller applies side effects. A time-limit check at the end of COMBAT with
// close tickets yields ShouldEnterOvertime instead of a winner.
func EvaluateVictory(s State) core.VictoryResult {
	if s.IsTDM && s.KillTarget > 0 {
		if s.KillsUS >= s.KillTarget {
			return core.VictoryResult{Winner: core.FactionUS, Reason: core.ReasonKillTargetReached}
		}
		if s.KillsOPFOR >= s.KillTarget {
			return core.VictoryResult{Winner: core.FactionOPFOR, Reason: core.ReasonKillTargetReached}
		}
	}

	if !s.IsTDM {
		if s.TicketsUS <= 0 {
			return core.VictoryResult{Winner: core.FactionOPFOR, Reason: core.ReasonTicketsDepleted}
		}
		if s.TicketsOPFOR <= 0 {
			return core.VictoryResult{Winner: core.FactionUS, Reason: core.ReasonTicketsDepleted}
		}

		if s.ZonesCapturable > 0 {
			if s.ZonesUS == s.ZonesCapturable {
				return core.VictoryResult{Winner: core.FactionUS, Reason: core.ReasonTotalControl}
			}
			if s.ZonesOPFOR == s.ZonesCapturable {
				return core.VictoryResult{Winner: core.FactionOPFOR, Reason: core.ReasonTotalControl}
			}
		}
	}

	switch s.Phase {
	case core.PhaseCombat:
		if s.Elapsed >= s.Durations.Setup+s.Durations.Combat {
			if math.Abs(s.TicketsUS-s.TicketsOPFOR) < s.TicketMargin {
				return core.VictoryResult{ShouldEnterOvertime: true}
			}
			return core.VictoryResult{Winner: higherTickets(s), Reason: core.ReasonTimeLimit}
		}
	case core.PhaseOvertime:
		if s.Elapsed >= s.Durations.Total() {
			// Overtime expiry settles on tickets no matter the margin.
			// An exact tie still terminates the match, as a draw.
			return core.VictoryResult{Winner: higherTickets(s), Reason: core.ReasonTimeLimit}
		}
	}

	return core.VictoryResult{}
}

// higherTickets returns the faction with more tickets, FactionNone on an
// exact tie.
func higherTickets(s State) core.Faction {
	switch {
	case s.TicketsUS > s.TicketsOPFOR:
		return core.FactionUS
	case s.TicketsOPFOR > s.TicketsUS:
		return core.FactionOPFOR
	default:
		return core.FactionNone
	}
}
