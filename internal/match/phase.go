// Package match holds the pure match-flow functions: phase determination
// from the match clock and ticket closeness, and victory evaluation. Nothing
// here has side effects; the orchestrator applies the results.
package match

import (
	"math"
	"time"

	"github.com/tacsim/battlesim/internal/config"
	"github.com/tacsim/battlesim/pkg/core"
)

// Durations are the phase lengths for one match.
type Durations struct {
	Setup    time.Duration
	Combat   time.Duration
	Overtime time.Duration
}

// DurationsFromConfig extracts the phase lengths from match settings.
func DurationsFromConfig(cfg config.MatchConfig) Durations {
	return Durations{
		Setup:    cfg.SetupDuration,
		Combat:   cfg.CombatDuration,
		Overtime: cfg.OvertimeDuration,
	}
}

// Total returns the full match length including overtime.
func (d Durations) Total() time.Duration {
	return d.Setup + d.Combat + d.Overtime
}

// DeterminePhase derives the phase from the match clock. Phases never
// regress: once COMBAT is reached SETUP never returns, ENDED is sticky, and
// OVERTIME is entered at most once, from COMBAT, when the ticket pools are
// within margin of each other after the combat window closes.
func DeterminePhase(elapsed time.Duration, d Durations, usTickets, opforTickets, margin float64, current core.GamePhase) core.GamePhase {
	if current == core.PhaseEnded {
		return core.PhaseEnded
	}

	var candidate core.GamePhase
	switch {
	case elapsed < d.Setup:
		candidate = core.PhaseSetup
	case elapsed < d.Setup+d.Combat:
		candidate = core.PhaseCombat
	case elapsed < d.Total():
		if current == core.PhaseOvertime {
			return core.PhaseOvertime
		}
		if math.Abs(usTickets-opforTickets) < margin {
			return core.PhaseOvertime
		}
		// Not close enough for overtime; the combat window runs on and
		// the victory evaluator settles it on tickets.
		candidate = core.PhaseCombat
	default:
		candidate = core.PhaseOvertime
	}

	if candidate < current {
		return current
	}
	return candidate
}

// PhaseTimeRemaining returns the time left in the active phase, for display.
// ENDED has no remaining time.
func PhaseTimeRemaining(elapsed time.Duration, d Durations, phase core.GamePhase) time.Duration {
	var end time.Duration
	switch phase {
	case core.PhaseSetup:
		end = d.Setup
	case core.PhaseCombat:
		end = d.Setup + d.Combat
	case core.PhaseOvertime:
		end = d.Total()
	default:
		return 0
	}
	if remaining := end - elapsed; remaining > 0 {
		return remaining
	}
	return 0
}
