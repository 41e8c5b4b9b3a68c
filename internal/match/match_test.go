package match

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/tacsim/battlesim/pkg/core"
)

func testDurations() Durations {
	return Durations{
		Setup:    time.Minute,
		Combat:   25 * time.Minute,
		Overtime: 5 * time.Minute,
	}
}

func TestDeterminePhase_Timeline(t *testing.T) {
	d := testDurations()

	tests := []struct {
		name    string
		elapsed time.Duration
		us      float64
		opfor   float64
		current core.GamePhase
		want    core.GamePhase
	}{
		{"start", 0, 500, 500, core.PhaseSetup, core.PhaseSetup},
		{"mid setup", 30 * time.Second, 500, 500, core.PhaseSetup, core.PhaseSetup},
		{"combat begins", time.Minute, 500, 500, core.PhaseSetup, core.PhaseCombat},
		{"mid combat", 10 * time.Minute, 400, 300, core.PhaseCombat, core.PhaseCombat},
		{"combat over, tickets close", 26 * time.Minute, 240, 220, core.PhaseCombat, core.PhaseOvertime},
		{"combat over, tickets apart", 26 * time.Minute, 400, 100, core.PhaseCombat, core.PhaseCombat},
		{"overtime sticky within window", 28 * time.Minute, 100, 300, core.PhaseOvertime, core.PhaseOvertime},
		{"past all durations", 32 * time.Minute, 400, 100, core.PhaseCombat, core.PhaseOvertime},
		{"ended sticky", 10 * time.Minute, 500, 500, core.PhaseEnded, core.PhaseEnded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DeterminePhase(tt.elapsed, d, tt.us, tt.opfor, 50, tt.current)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDeterminePhase_NeverRegresses(t *testing.T) {
	d := testDurations()

	// A clock glitch back into the setup window must not revert COMBAT.
	got := DeterminePhase(10*time.Second, d, 500, 500, 50, core.PhaseCombat)
	assert.Equal(t, core.PhaseCombat, got)

	// Overtime holds even when the ticket gap later widens.
	got = DeterminePhase(28*time.Minute, d, 500, 10, 50, core.PhaseOvertime)
	assert.Equal(t, core.PhaseOvertime, got)
}

func TestDeterminePhase_OvertimeMarginBoundary(t *testing.T) {
	d := testDurations()

	// Exactly at margin is not close enough.
	got := DeterminePhase(26*time.Minute, d, 300, 250, 50, core.PhaseCombat)
	assert.Equal(t, core.PhaseCombat, got)

	got = DeterminePhase(26*time.Minute, d, 300, 251, 50, core.PhaseCombat)
	assert.Equal(t, core.PhaseOvertime, got)
}

func TestPhaseTimeRemaining(t *testing.T) {
	d := testDurations()

	assert.Equal(t, 30*time.Second, PhaseTimeRemaining(30*time.Second, d, core.PhaseSetup))
	assert.Equal(t, 16*time.Minute, PhaseTimeRemaining(10*time.Minute, d, core.PhaseCombat))
	assert.Equal(t, 3*time.Minute, PhaseTimeRemaining(28*time.Minute, d, core.PhaseOvertime))
	assert.Equal(t, time.Duration(0), PhaseTimeRemaining(40*time.Minute, d, core.PhaseOvertime))
	assert.Equal(t, time.Duration(0), PhaseTimeRemaining(10*time.Minute, d, core.PhaseEnded))
}

func baseState() State {
	return State{
		Phase:        core.PhaseCombat,
		Elapsed:      10 * time.Minute,
		Durations:    testDurations(),
		TicketsUS:    300,
		TicketsOPFOR: 300,
		TicketMargin: 50,
	}
}

func TestEvaluateVictory_NothingDecidedMidMatch(t *testing.T) {
	r := EvaluateVictory(baseState())
	assert.False(t, r.Decided())
	assert.False(t, r.ShouldEnterOvertime)
	assert.Equal(t, core.ReasonNone, r.Reason)
}

// Kill target outranks ticket depletion: a TDM side hitting the target with
// zero tickets still wins on kills.
func TestEvaluateVictory_KillTargetBeatsTickets(t *testing.T) {
	s := baseState()
	s.IsTDM = true
	s.KillTarget = 30
	s.KillsUS = 30
	s.TicketsUS = 0

	r := EvaluateVictory(s)
	assert.Equal(t, core.FactionUS, r.Winner)
	assert.Equal(t, core.ReasonKillTargetReached, r.Reason)
}

func TestEvaluateVictory_KillTargetIgnoredOutsideTDM(t *testing.T) {
	s := baseState()
	s.KillTarget = 30
	s.KillsUS = 50

	r := EvaluateVictory(s)
	assert.False(t, r.Decided())
}

func TestEvaluateVictory_TicketDepletion(t *testing.T) {
	s := baseState()
	s.TicketsOPFOR = 0

	r := EvaluateVictory(s)
	assert.Equal(t, core.FactionUS, r.Winner)
	assert.Equal(t, core.ReasonTicketsDepleted, r.Reason)
}

func TestEvaluateVictory_TicketDepletionIgnoredInTDM(t *testing.T) {
	s := baseState()
	s.IsTDM = true
	s.KillTarget = 30
	s.TicketsOPFOR = 0

	r := EvaluateVictory(s)
	assert.False(t, r.Decided())
}

// Holding every capturable zone ends the match even with both ticket pools
// still positive.
func TestEvaluateVictory_TotalControl(t *testing.T) {
	s := baseState()
	s.ZonesCapturable = 3
	s.ZonesOPFOR = 3

	r := EvaluateVictory(s)
	assert.Equal(t, core.FactionOPFOR, r.Winner)
	assert.Equal(t, core.ReasonTotalControl, r.Reason)
}

func TestEvaluateVictory_TotalControlNeedsCapturableZones(t *testing.T) {
	s := baseState()
	s.ZonesCapturable = 0

	r := EvaluateVictory(s)
	assert.False(t, r.Decided())
}

func TestEvaluateVictory_CombatTimeLimit(t *testing.T) {
	d := testDurations()

	s := baseState()
	s.Elapsed = d.Setup + d.Combat
	s.TicketsUS = 400
	s.TicketsOPFOR = 100

	r := EvaluateVictory(s)
	assert.Equal(t, core.FactionUS, r.Winner)
	assert.Equal(t, core.ReasonTimeLimit, r.Reason)
	assert.False(t, r.ShouldEnterOvertime)
}

func TestEvaluateVictory_CombatTimeLimitCloseTicketsWantsOvertime(t *testing.T) {
	d := testDurations()

	s := baseState()
	s.Elapsed = d.Setup + d.Combat
	s.TicketsUS = 310
	s.TicketsOPFOR = 290

	r := EvaluateVictory(s)
	assert.False(t, r.Decided())
	assert.True(t, r.ShouldEnterOvertime)
}

func TestEvaluateVictory_OvertimeExpiryIgnoresMargin(t *testing.T) {
	d := testDurations()

	s := baseState()
	s.Phase = core.PhaseOvertime
	s.Elapsed = d.Total()
	s.TicketsUS = 301
	s.TicketsOPFOR = 300

	r := EvaluateVictory(s)
	assert.Equal(t, core.FactionUS, r.Winner)
	assert.Equal(t, core.ReasonTimeLimit, r.Reason)
}

// An exact ticket tie at overtime expiry must still terminate the match:
// the result is a draw, not an undecided state the loop would spin on.
func TestEvaluateVictory_OvertimeExpiryTieIsDraw(t *testing.T) {
	d := testDurations()

	s := baseState()
	s.Phase = core.PhaseOvertime
	s.Elapsed = d.Total()
	s.TicketsUS = 300
	s.TicketsOPFOR = 300

	r := EvaluateVictory(s)
	assert.True(t, r.Decided())
	assert.Equal(t, core.FactionNone, r.Winner)
	assert.Equal(t, core.ReasonTimeLimit, r.Reason)
}

func TestEvaluateVictory_OvertimeStillRunning(t *testing.T) {
	d := testDurations()

	s := baseState()
	s.Phase = core.PhaseOvertime
	s.Elapsed = d.Total() - time.Minute

	r := EvaluateVictory(s)
	assert.False(t, r.Decided())
}
