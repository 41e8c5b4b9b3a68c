package sim

import (
	"log/slog"
	"time"

	"github.com/tacsim/battlesim/internal/spatial"
	"github.com/tacsim/battlesim/internal/zone"
	"github.com/tacsim/battlesim/pkg/core"
)

// ZoneManager recomputes zone occupancy on a wall-clock interval and runs
// capture logic every tick against the latest counts. Occupancy may be up to
// one interval stale; capture math still advances with real tick time.
type ZoneManager struct {
	zones  []*zone.Zone
	logic  *zone.Logic
	roster *Roster
	index  *spatial.Index
	log    *slog.Logger

	interval      time.Duration
	lastOccupancy time.Time
	now           func() time.Time
}

// NewZoneManager creates the manager. now may override the clock for tests
// (nil means time.Now).
func NewZoneManager(defs []core.ZoneDefinition, logic *zone.Logic, roster *Roster, index *spatial.Index, interval time.Duration, log *slog.Logger, now func() time.Time) *ZoneManager {
	if now == nil {
		now = time.Now
	}
	if log == nil {
		log = slog.Default()
	}

	zones := make([]*zone.Zone, 0, len(defs))
	for _, def := range defs {
		zones = append(zones, zone.NewZone(def))
	}

	return &ZoneManager{
		zones:    zones,
		logic:    logic,
		roster:   roster,
		index:    index,
		log:      log,
		interval: interval,
		now:      now,
	}
}

// Zones returns the managed zones.
func (zm *ZoneManager) Zones() []*zone.Zone {
	return zm.zones
}

// ActiveZoneCenters returns the positions of capturable zones, used for LOD
// promotion near fights.
func (zm *ZoneManager) ActiveZoneCenters() []core.Position3D {
	centers := make([]core.Position3D, 0, len(zm.zones))
	for _, z := range zm.zones {
		if !z.Def.IsHomeBase {
			centers = append(centers, z.Def.Position)
		}
	}
	return centers
}

// Tick refreshes occupancy if the interval elapsed, then advances capture
// logic with dt seconds. Returns any ownership transitions.
func (zm *ZoneManager) Tick(dt float64) []zone.Transition {
	if now := zm.now(); now.Sub(zm.lastOccupancy) >= zm.interval {
		zm.recomputeOccupancy()
		zm.lastOccupancy = now
	}

	var transitions []zone.Transition
	for _, z := range zm.zones {
		if tr, captured := zm.logic.Advance(z, z.Occupancy, dt); captured {
			transitions = append(transitions, tr)
		}
	}
	return transitions
}

// recomputeOccupancy counts alive combatants per faction inside each zone's
// radius. Culled combatants count like any other; the LOD tier governs AI
// cost, not gameplay participation.
func (zm *ZoneManager) recomputeOccupancy() {
	for _, z := range zm.zones {
		var occ core.Occupancy
		zm.index.QueryRadiusFunc(z.Def.Position, z.Def.Radius, func(id string, _ core.Position3D) {
			c, ok := zm.roster.Get(id)
			if !ok || !c.Alive() {
				return
			}
			switch c.Faction {
			case core.FactionUS:
				occ.US++
			case core.FactionOPFOR:
				occ.OPFOR++
			}
		})
		if occ.US < 0 || occ.OPFOR < 0 {
			zm.log.Error("negative occupancy, clamping", "zone", z.Def.ID, "us", occ.US, "opfor", occ.OPFOR)
			occ = core.Occupancy{}
		}
		z.Occupancy = occ
	}
}

// BleedRate returns the current ticket drain per second and the bleeding
// faction.
func (zm *ZoneManager) BleedRate() (float64, core.Faction) {
	return zm.logic.TicketBleedRate(zm.zones)
}

// ZoneStatuses returns display snapshots of every zone.
func (zm *ZoneManager) ZoneStatuses() []core.ZoneStatus {
	out := make([]core.ZoneStatus, 0, len(zm.zones))
	for _, z := range zm.zones {
		out = append(out, z.Status())
	}
	return out
}

// ControlCounts returns the number of capturable zones and how many each
// faction owns, for victory evaluation.
func (zm *ZoneManager) ControlCounts() (capturable, us, opfor int) {
	for _, z := range zm.zones {
		if z.Def.IsHomeBase {
			continue
		}
		capturable++
		switch z.Owner {
		case core.FactionUS:
			us++
		case core.FactionOPFOR:
			opfor++
		}
	}
	return capturable, us, opfor
}
