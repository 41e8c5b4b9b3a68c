// Package lod assigns each combatant a detail tier and staggers full AI
// updates across ticks so the per-tick AI cost stays inside a wall-clock
// budget. Tiers govern AI cost only: a culled combatant still fights, still
// occupies zones, and still dies; it just thinks less often.
package lod

import (
	"math"

	"github.com/tacsim/battlesim/internal/config"
	"github.com/tacsim/battlesim/pkg/core"
)

// TierCounts is the per-tier population after one classification pass.
// High+Medium+Low+Culled always equals the number classified.
type TierCounts struct {
	High   int
	Medium int
	Low    int
	Culled int
}

// Total returns the sum over all tiers.
func (t TierCounts) Total() int {
	return t.High + t.Medium + t.Low + t.Culled
}

// Classifier maps combatants to detail tiers from distance to the nearest
// relevant observer, with a proximity bonus near active zones. Thresholds
// are tuning values from config, not correctness invariants.
type Classifier struct {
	cfg config.LODConfig
}

// NewClassifier creates a classifier with the given tuning.
func NewClassifier(cfg config.LODConfig) *Classifier {
	return &Classifier{cfg: cfg}
}

// Classify returns the tier for a combatant at pos. observers are the
// positions relevance is measured against (players, cameras, or squad
// leads); zoneCenters are positions of zones currently worth fighting for.
// No observers at all means everything runs high detail.
func (c *Classifier) Classify(pos core.Position3D, observers, zoneCenters []core.Position3D) core.LODTier {
	if len(observers) == 0 {
		return core.TierHigh
	}

	d := math.Inf(1)
	for _, o := range observers {
		if v := pos.DistanceTo(o); v < d {
			d = v
		}
	}

	// Combatants contesting a zone are promoted by shrinking their
	// effective distance, so fights stay sharp even off-screen.
	if c.cfg.ZoneProximityBonus > 0 {
		for _, z := range zoneCenters {
			if pos.DistanceTo(z) <= c.cfg.ZoneProximityBonus {
				d -= c.cfg.ZoneProximityBonus
				break
			}
		}
	}

	switch {
	case d <= c.cfg.HighDistance:
		return core.TierHigh
	case d <= c.cfg.MediumDistance:
		return core.TierMedium
	case d <= c.cfg.LowDistance:
		return core.TierLow
	default:
		return core.TierCulled
	}
}

// ClassifyAll assigns tiers in place and returns the tier populations.
func (c *Classifier) ClassifyAll(combatants []*core.Combatant, observers, zoneCenters []core.Position3D) TierCounts {
	var counts TierCounts
	for _, cb := range combatants {
		tier := c.Classify(cb.Position, observers, zoneCenters)
		cb.Tier = tier
		switch tier {
		case core.TierHigh:
			counts.High++
		case core.TierMedium:
			counts.Medium++
		case core.TierLow:
			counts.Low++
		case core.TierCulled:
			counts.Culled++
		}
	}
	return counts
}
