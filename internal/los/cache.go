package los

import (
	"math"
	"time"

	"github.com/tacsim/battlesim/pkg/core"
)

// TerrainRaycaster is the external terrain occlusion query. It reports
// whether the ray hits terrain before maxDistance.
type TerrainRaycaster interface {
	RaycastTerrain(origin, direction core.Position3D, maxDistance float64) (hit bool, distance float64)
}

// CacheStats is a snapshot of the cache-side counters.
type CacheStats struct {
	PrefilterPasses  uint64
	PrefilterRejects uint64
	Hits             uint64
	Misses           uint64
	BudgetDenials    uint64
	Entries          int
}

type pairKey struct {
	observer string
	target   string
}

type cacheEntry struct {
	visible bool
	at      time.Time
}

// Cache answers observer→target visibility questions. Order of checks:
// cheap distance/angle prefilter, TTL'd pair cache, then a budgeted terrain
// raycast. When the budget denies a cast the last cached value is reused
// regardless of age; with no history the conservative answer is not-visible.
// A nil terrain collaborator degrades to always-visible.
type Cache struct {
	terrain    TerrainRaycaster
	budget     *Budget
	ttl        time.Duration
	maxRange   float64
	cosHalfFOV float64
	now        func() time.Time

	entries map[pairKey]cacheEntry

	prefilterPasses  uint64
	prefilterRejects uint64
	hits             uint64
	misses           uint64
	budgetDenials    uint64
}

// CacheOptions configures a Cache.
type CacheOptions struct {
	TTL        time.Duration
	MaxRange   float64
	FOVDegrees float64
	// Now overrides the clock, for tests. Defaults to time.Now.
	Now func() time.Time
}

// NewCache creates a visibility cache drawing casts from the given budget.
// terrain may be nil.
func NewCache(terrain TerrainRaycaster, budget *Budget, opts CacheOptions) *Cache {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	cosHalf := -1.0 // 360° by default: never reject on angle
	if opts.FOVDegrees > 0 && opts.FOVDegrees < 360 {
		cosHalf = math.Cos(opts.FOVDegrees / 2 * math.Pi / 180)
	}
	return &Cache{
		terrain:    terrain,
		budget:     budget,
		ttl:        opts.TTL,
		maxRange:   opts.MaxRange,
		cosHalfFOV: cosHalf,
		now:        now,
		entries:    make(map[pairKey]cacheEntry),
	}
}

// CanSee reports whether the observer at from can see the target at to.
// facing is the observer's view direction for the angle prefilter; a zero
// vector skips the angle test.
func (c *Cache) CanSee(observerID, targetID string, from, to, facing core.Position3D) bool {
	delta := to.Sub(from)
	dist := delta.Length()

	// Prefilter: rejects never cost a raycast or a cache slot.
	if c.maxRange > 0 && dist > c.maxRange {
		c.prefilterRejects++
		return false
	}
	if facing.Length() > 0 && dist > 0 {
		cos := facing.Normalize().Dot(delta.Scale(1 / dist))
		if cos < c.cosHalfFOV {
			c.prefilterRejects++
			return false
		}
	}
	c.prefilterPasses++

	if c.terrain == nil {
		// Missing collaborator: degrade to always-visible.
		return true
	}

	key := pairKey{observer: observerID, target: targetID}
	now := c.now()

	if e, ok := c.entries[key]; ok && now.Sub(e.at) <= c.ttl {
		c.hits++
		return e.visible
	}
	c.misses++

	if !c.budget.TryAcquire() {
		c.budgetDenials++
		// Fall back to the stale value when one exists.
		if e, ok := c.entries[key]; ok {
			return e.visible
		}
		return false
	}

	visible := true
	if dist > 0 {
		hit, hitDist := c.terrain.RaycastTerrain(from, delta.Scale(1/dist), dist)
		visible = !hit || hitDist >= dist
	}

	c.entries[key] = cacheEntry{visible: visible, at: now}
	return visible
}

// Sweep drops expired entries. The orchestrator calls this occasionally to
// bound cache growth across deaths and despawns.
func (c *Cache) Sweep() {
	now := c.now()
	for k, e := range c.entries {
		if now.Sub(e.at) > c.ttl {
			delete(c.entries, k)
		}
	}
}

// Invalidate forgets every pair involving the given id.
func (c *Cache) Invalidate(id string) {
	for k := range c.entries {
		if k.observer == id || k.target == id {
			delete(c.entries, k)
		}
	}
}

// Stats returns a snapshot of the cache counters.
func (c *Cache) Stats() CacheStats {
	return CacheStats{
		PrefilterPasses:  c.prefilterPasses,
		PrefilterRejects: c.prefilterRejects,
		Hits:             c.hits,
		Misses:           c.misses,
		BudgetDenials:    c.budgetDenials,
		Entries:          len(c.entries),
	}
}
