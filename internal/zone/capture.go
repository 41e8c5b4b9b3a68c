// Package zone advances capture zones from faction head counts. Each zone is
// a small state machine: owners accrue progress toward 100, challengers erode
// it toward 0 after a dwell gate, and neutral zones are captured by whichever
// faction holds the net advantage. The package computes a ticket bleed rate
// from zone ownership; the ticket pools themselves live in the orchestrator.
package zone

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/tacsim/battlesim/internal/config"
	"github.com/tacsim/battlesim/pkg/core"
)

// dwellCeilingFactor bounds how far a dwell timer can run past the required
// threshold, so a long-held zone still flips back quickly once vacated.
const dwellCeilingFactor = 2.0

// Zone is the runtime state of one capture zone. Created once at match setup
// from its definition and mutated every tick by Logic; never destroyed
// mid-match.
type Zone struct {
	Def       core.ZoneDefinition
	Owner     core.Faction
	State     core.ZoneState
	Progress  float64
	Occupancy core.Occupancy

	// activeCapturer is the faction whose progress is accumulating on a
	// neutral zone. A rival must erode that progress to 0 before its own
	// can rise; progress is never shared across factions.
	activeCapturer core.Faction

	dwellUS    float64
	dwellOPFOR float64
}

// NewZone creates runtime state from a zone definition. Zones owned at setup
// start at full progress.
func NewZone(def core.ZoneDefinition) *Zone {
	z := &Zone{
		Def:   def,
		Owner: def.Owner,
		State: stateForOwner(def.Owner),
	}
	if def.Owner != core.FactionNone {
		z.Progress = 100
	}
	return z
}

// Status returns a snapshot safe to hand to external consumers.
func (z *Zone) Status() core.ZoneStatus {
	return core.ZoneStatus{
		ID:         z.Def.ID,
		Name:       z.Def.Name,
		Owner:      z.Owner,
		State:      z.State,
		Progress:   z.Progress,
		IsHomeBase: z.Def.IsHomeBase,
		Occupancy:  z.Occupancy,
	}
}

func (z *Zone) dwell(f core.Faction) float64 {
	switch f {
	case core.FactionUS:
		return z.dwellUS
	case core.FactionOPFOR:
		return z.dwellOPFOR
	default:
		return 0
	}
}

func stateForOwner(owner core.Faction) core.ZoneState {
	switch owner {
	case core.FactionUS:
		return core.ZoneUSControlled
	case core.FactionOPFOR:
		return core.ZoneOPFORControlled
	default:
		return core.ZoneNeutral
	}
}

// Transition is an ownership change produced by one Advance call.
type Transition struct {
	ZoneID    string
	ZoneName  string
	PrevOwner core.Faction
	NewOwner  core.Faction
}

// Logic advances zone capture state. It holds no per-zone state itself; all
// of that lives on the Zone so parallel matches stay independent.
type Logic struct {
	cfg config.CaptureConfig
	log *slog.Logger

	capturesCounter metric.Int64Counter
}

// NewLogic creates the capture logic with the given tuning.
func NewLogic(cfg config.CaptureConfig, log *slog.Logger) (*Logic, error) {
	if log == nil {
		log = slog.Default()
	}

	captures, err := meter().Int64Counter(
		"zone.captures",
		metric.WithDescription("Zone ownership transitions"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating captures counter: %w", err)
	}

	return &Logic{cfg: cfg, log: log, capturesCounter: captures}, nil
}

// Advance runs one tick of capture logic for a single zone given its latest
// occupancy and the tick's delta time in seconds. Returns the ownership
// transition, if any. Home-base zones never change state here.
func (l *Logic) Advance(z *Zone, occ core.Occupancy, dt float64) (Transition, bool) {
	z.Occupancy = occ
	if z.Def.IsHomeBase {
		return Transition{}, false
	}

	l.advanceDwell(z, occ, dt)

	var tr Transition
	captured := false
	switch {
	case occ.Total() == 0:
		// Nobody present, progress holds.
	case z.Owner != core.FactionNone:
		tr, captured = l.advanceOwned(z, occ, dt)
	default:
		tr, captured = l.advanceNeutral(z, occ, dt)
	}

	// Contested is a display overlay; the progress math above is unaffected.
	if occ.Contested() {
		z.State = core.ZoneContested
	} else {
		z.State = stateForOwner(z.Owner)
	}

	if captured {
		l.capturesCounter.Add(context.Background(), 1,
			metric.WithAttributes(attribute.String("faction", tr.NewOwner.String())))
		l.log.Info("zone ownership changed",
			"zone", z.Def.Name,
			"from", tr.PrevOwner.String(),
			"to", tr.NewOwner.String())
	}
	return tr, captured
}

// advanceDwell accumulates continuous-presence time per faction. A faction's
// timer resets the instant its head count hits zero.
func (l *Logic) advanceDwell(z *Zone, occ core.Occupancy, dt float64) {
	ceiling := l.cfg.DwellSeconds * dwellCeilingFactor
	if occ.US > 0 {
		z.dwellUS = math.Min(z.dwellUS+dt, ceiling)
	} else {
		z.dwellUS = 0
	}
	if occ.OPFOR > 0 {
		z.dwellOPFOR = math.Min(z.dwellOPFOR+dt, ceiling)
	} else {
		z.dwellOPFOR = 0
	}
}

func (l *Logic) advanceOwned(z *Zone, occ core.Occupancy, dt float64) (Transition, bool) {
	ownerCount, otherCount := occ.US, occ.OPFOR
	if z.Owner == core.FactionOPFOR {
		ownerCount, otherCount = otherCount, ownerCount
	}
	advantage := ownerCount - otherCount

	if advantage >= 0 {
		if ownerCount > 0 {
			z.Progress = math.Min(z.Progress+l.cfg.Speed*float64(advantage)*dt, 100)
		}
		return Transition{}, false
	}

	// Challenger advantage. The dwell gate keeps a drive-by from instantly
	// flipping the zone.
	challenger := z.Owner.Opponent()
	if z.dwell(challenger) < l.cfg.DwellSeconds {
		return Transition{}, false
	}

	z.Progress -= l.cfg.Speed * float64(-advantage) * dt
	if z.Progress > 0 {
		return Transition{}, false
	}
	z.Progress = 0
	prev := z.Owner
	z.Owner = core.FactionNone
	z.activeCapturer = core.FactionNone
	return Transition{
		ZoneID:    z.Def.ID,
		ZoneName:  z.Def.Name,
		PrevOwner: prev,
		NewOwner:  core.FactionNone,
	}, true
}

func (l *Logic) advanceNeutral(z *Zone, occ core.Occupancy, dt float64) (Transition, bool) {
	net := occ.US - occ.OPFOR
	if net == 0 {
		return Transition{}, false
	}

	capturer := core.FactionUS
	if net < 0 {
		capturer = core.FactionOPFOR
	}
	if z.dwell(capturer) < l.cfg.DwellSeconds {
		return Transition{}, false
	}

	// A rival's residual progress must be eroded to zero before the new
	// faction starts accumulating its own.
	if z.activeCapturer != core.FactionNone && z.activeCapturer != capturer && z.Progress > 0 {
		z.Progress = math.Max(z.Progress-l.cfg.Speed*math.Abs(float64(net))*dt, 0)
		if z.Progress == 0 {
			z.activeCapturer = core.FactionNone
		}
		return Transition{}, false
	}

	z.activeCapturer = capturer
	z.Progress += l.cfg.Speed * math.Abs(float64(net)) * dt
	if z.Progress < 100 {
		return Transition{}, false
	}
	z.Progress = 100
	z.Owner = capturer
	return Transition{
		ZoneID:    z.Def.ID,
		ZoneName:  z.Def.Name,
		PrevOwner: core.FactionNone,
		NewOwner:  capturer,
	}, true
}

// TicketBleedRate computes the per-second ticket drain from zone ownership.
// Each owned non-home zone contributes its own bleed weight, falling back to
// the global per-zone rate, and the faction holding less total weight bleeds
// the difference. Returns the rate and the bleeding faction; a tie bleeds
// nobody.
func (l *Logic) TicketBleedRate(zones []*Zone) (float64, core.Faction) {
	var us, opfor float64
	for _, z := range zones {
		if z.Def.IsHomeBase {
			continue
		}
		weight := z.Def.TicketBleedRate
		if weight <= 0 {
			weight = l.cfg.BleedPerZone
		}
		switch z.Owner {
		case core.FactionUS:
			us += weight
		case core.FactionOPFOR:
			opfor += weight
		}
	}

	switch {
	case us == opfor:
		return 0, core.FactionNone
	case us > opfor:
		return us - opfor, core.FactionOPFOR
	default:
		return opfor - us, core.FactionUS
	}
}
