package los

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tacsim/battlesim/pkg/core"
)

// countingTerrain records raycasts and blocks rays crossing x = wallX.
type countingTerrain struct {
	casts int
	wallX float64
	solid bool
}

func (t *countingTerrain) RaycastTerrain(origin, direction core.Position3D, maxDistance float64) (bool, float64) {
	t.casts++
	if !t.solid {
		return false, 0
	}
	if direction.X == 0 {
		return false, 0
	}
	d := (t.wallX - origin.X) / direction.X
	if d >= 0 && d <= maxDistance {
		return true, d
	}
	return false, 0
}

func newTestBudget(t *testing.T, max int) *Budget {
	t.Helper()
	b, err := NewBudget("test", max)
	require.NoError(t, err)
	return b
}

func TestBudget_AcquireAndDeny(t *testing.T) {
	b := newTestBudget(t, 3)

	for i := 0; i < 3; i++ {
		assert.True(t, b.TryAcquire(), "cast %d should be granted", i)
	}
	assert.False(t, b.TryAcquire())
	assert.False(t, b.TryAcquire())

	s := b.Stats()
	assert.Equal(t, 3, s.UsedThisFrame)
	assert.Equal(t, 2, s.DeniedThisFrame)
	assert.Equal(t, uint64(5), s.TotalRequested)
	assert.Equal(t, uint64(2), s.TotalDenied)
	assert.Equal(t, 1.0, s.SaturationRate)
	assert.Equal(t, 0.4, s.DenialRate)
}

func TestBudget_ResetFrame(t *testing.T) {
	b := newTestBudget(t, 2)

	b.TryAcquire()
	b.TryAcquire()
	b.TryAcquire() // denied
	b.ResetFrame()

	s := b.Stats()
	assert.Equal(t, 0, s.UsedThisFrame)
	assert.Equal(t, 0, s.DeniedThisFrame)
	assert.Equal(t, uint64(1), s.TotalExhaustedFrames, "saturated frame must be recorded")
	assert.Equal(t, uint64(1), s.TotalDenied, "cumulative denials survive the reset")

	// A frame that never saturates is not exhausted.
	b.TryAcquire()
	b.ResetFrame()
	assert.Equal(t, uint64(1), b.Stats().TotalExhaustedFrames)
}

// 15 uncached requests against a budget of 10: exactly 10 raycasts happen,
// 5 are denied, and the cumulative denial count persists across ticks.
func TestCache_BudgetExhaustion(t *testing.T) {
	terrain := &countingTerrain{}
	b := newTestBudget(t, 10)
	c := NewCache(terrain, b, CacheOptions{TTL: time.Second, MaxRange: 1000})

	for i := 0; i < 15; i++ {
		observer := fmt.Sprintf("obs%d", i)
		c.CanSee(observer, "tgt", core.Position3D{X: float64(i)}, core.Position3D{X: 100}, core.Position3D{})
	}

	assert.Equal(t, 10, terrain.casts)
	bs := b.Stats()
	assert.Equal(t, 10, bs.UsedThisFrame)
	assert.Equal(t, 5, bs.DeniedThisFrame)

	b.ResetFrame()
	// Another saturating tick accumulates on top.
	for i := 0; i < 12; i++ {
		observer := fmt.Sprintf("late%d", i)
		c.CanSee(observer, "tgt2", core.Position3D{X: float64(i)}, core.Position3D{X: 200}, core.Position3D{})
	}
	assert.Equal(t, uint64(7), b.Stats().TotalDenied)
	assert.Equal(t, uint64(1), b.Stats().TotalExhaustedFrames)
}

func TestCache_DeniedFallsBackToCachedValue(t *testing.T) {
	terrain := &countingTerrain{solid: true, wallX: 50}
	b := newTestBudget(t, 1)
	clock := time.Now()
	c := NewCache(terrain, b, CacheOptions{
		TTL:      100 * time.Millisecond,
		MaxRange: 1000,
		Now:      func() time.Time { return clock },
	})

	from := core.Position3D{X: 0}
	to := core.Position3D{X: 100}

	// First call raycasts: blocked by the wall.
	assert.False(t, c.CanSee("a", "b", from, to, core.Position3D{}))

	// Expire the entry; the budget is already spent, so the stale value is reused.
	clock = clock.Add(200 * time.Millisecond)
	assert.False(t, c.CanSee("a", "b", from, to, core.Position3D{}))
	assert.Equal(t, 1, terrain.casts, "denied request must not raycast")

	// A pair with no history gets the conservative default.
	assert.False(t, c.CanSee("x", "y", from, core.Position3D{X: 10}, core.Position3D{}))
	assert.Equal(t, uint64(2), c.Stats().BudgetDenials)
}

func TestCache_HitSkipsRaycast(t *testing.T) {
	terrain := &countingTerrain{}
	b := newTestBudget(t, 100)
	c := NewCache(terrain, b, CacheOptions{TTL: time.Minute, MaxRange: 1000})

	from := core.Position3D{}
	to := core.Position3D{X: 10}

	assert.True(t, c.CanSee("a", "b", from, to, core.Position3D{}))
	assert.True(t, c.CanSee("a", "b", from, to, core.Position3D{}))
	assert.True(t, c.CanSee("a", "b", from, to, core.Position3D{}))

	assert.Equal(t, 1, terrain.casts)
	s := c.Stats()
	assert.Equal(t, uint64(2), s.Hits)
	assert.Equal(t, uint64(1), s.Misses)
}

func TestCache_TTLExpiry(t *testing.T) {
	terrain := &countingTerrain{}
	b := newTestBudget(t, 100)
	clock := time.Now()
	c := NewCache(terrain, b, CacheOptions{
		TTL:      500 * time.Millisecond,
		MaxRange: 1000,
		Now:      func() time.Time { return clock },
	})

	from := core.Position3D{}
	to := core.Position3D{X: 10}

	c.CanSee("a", "b", from, to, core.Position3D{})
	clock = clock.Add(600 * time.Millisecond)
	c.CanSee("a", "b", from, to, core.Position3D{})

	assert.Equal(t, 2, terrain.casts, "expired entry must re-raycast")
}

func TestCache_PrefilterDistance(t *testing.T) {
	terrain := &countingTerrain{}
	b := newTestBudget(t, 100)
	c := NewCache(terrain, b, CacheOptions{TTL: time.Second, MaxRange: 50})

	visible := c.CanSee("a", "b", core.Position3D{}, core.Position3D{X: 500}, core.Position3D{})

	assert.False(t, visible)
	assert.Equal(t, 0, terrain.casts, "prefilter reject must not raycast")
	s := c.Stats()
	assert.Equal(t, uint64(1), s.PrefilterRejects)
	assert.Equal(t, uint64(0), s.PrefilterPasses)
}

func TestCache_PrefilterAngle(t *testing.T) {
	terrain := &countingTerrain{}
	b := newTestBudget(t, 100)
	c := NewCache(terrain, b, CacheOptions{TTL: time.Second, MaxRange: 1000, FOVDegrees: 90})

	from := core.Position3D{}
	facing := core.Position3D{X: 1}

	// Target dead ahead passes.
	assert.True(t, c.CanSee("a", "front", from, core.Position3D{X: 100}, facing))
	// Target directly behind is rejected without a cast.
	casts := terrain.casts
	assert.False(t, c.CanSee("a", "behind", from, core.Position3D{X: -100}, facing))
	assert.Equal(t, casts, terrain.casts)

	// Zero facing skips the angle test.
	assert.True(t, c.CanSee("a", "behind", from, core.Position3D{X: -100}, core.Position3D{}))
}

func TestCache_NilTerrainAlwaysVisible(t *testing.T) {
	b := newTestBudget(t, 0)
	c := NewCache(nil, b, CacheOptions{TTL: time.Second, MaxRange: 1000})

	assert.True(t, c.CanSee("a", "b", core.Position3D{}, core.Position3D{X: 10}, core.Position3D{}))
	assert.Equal(t, uint64(0), b.Stats().TotalRequested, "degraded mode must not consume budget")
}

func TestCache_WallBlocks(t *testing.T) {
	terrain := &countingTerrain{solid: true, wallX: 50}
	b := newTestBudget(t, 100)
	c := NewCache(terrain, b, CacheOptions{TTL: time.Second, MaxRange: 1000})

	// Looking across the wall: blocked.
	assert.False(t, c.CanSee("a", "b", core.Position3D{}, core.Position3D{X: 100}, core.Position3D{}))
	// Short of the wall: clear.
	assert.True(t, c.CanSee("a", "c", core.Position3D{}, core.Position3D{X: 40}, core.Position3D{}))
}

func TestCache_SweepAndInvalidate(t *testing.T) {
	terrain := &countingTerrain{}
	b := newTestBudget(t, 100)
	clock := time.Now()
	c := NewCache(terrain, b, CacheOptions{
		TTL:      time.Second,
		MaxRange: 1000,
		Now:      func() time.Time { return clock },
	})

	c.CanSee("a", "b", core.Position3D{}, core.Position3D{X: 1}, core.Position3D{})
	c.CanSee("a", "c", core.Position3D{}, core.Position3D{X: 2}, core.Position3D{})
	c.CanSee("d", "e", core.Position3D{}, core.Position3D{X: 3}, core.Position3D{})
	assert.Equal(t, 3, c.Stats().Entries)

	c.Invalidate("a")
	assert.Equal(t, 1, c.Stats().Entries)

	clock = clock.Add(2 * time.Second)
	c.Sweep()
	assert.Equal(t, 0, c.Stats().Entries)
}
