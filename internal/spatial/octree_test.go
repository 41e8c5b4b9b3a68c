package spatial

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tacsim/battlesim/pkg/core"
)

func sorted(ids []string) []string {
	out := append([]string(nil), ids...)
	sort.Strings(out)
	return out
}

func TestIndex_InsertAndQuery(t *testing.T) {
	idx := NewIndex(1000)

	idx.Update("a", core.Position3D{X: 0, Y: 0, Z: 0})
	idx.Update("b", core.Position3D{X: 10, Y: 0, Z: 0})
	idx.Update("c", core.Position3D{X: 100, Y: 0, Z: 0})

	got := idx.QueryRadius(core.Position3D{}, 50)
	assert.Equal(t, []string{"a", "b"}, sorted(got))

	got = idx.QueryRadius(core.Position3D{}, 150)
	assert.Equal(t, []string{"a", "b", "c"}, sorted(got))

	assert.Empty(t, idx.QueryRadius(core.Position3D{X: -400}, 10))
}

func TestIndex_UpdateUnknownBehavesAsInsert(t *testing.T) {
	idx := NewIndex(1000)

	idx.Update("ghost", core.Position3D{X: 5})
	assert.Equal(t, 1, idx.Len())

	pos, ok := idx.Position("ghost")
	require.True(t, ok)
	assert.Equal(t, 5.0, pos.X)
}

func TestIndex_RemovedIDsNeverReturned(t *testing.T) {
	idx := NewIndex(1000)

	idx.Update("a", core.Position3D{})
	idx.Update("b", core.Position3D{X: 1})
	idx.Remove("a")

	got := idx.QueryRadius(core.Position3D{}, 100)
	assert.Equal(t, []string{"b"}, got)

	_, ok := idx.Position("a")
	assert.False(t, ok)

	// Removing twice must be harmless.
	idx.Remove("a")
	assert.Equal(t, 1, idx.Len())
}

func TestIndex_MoveInAndOutOfRange(t *testing.T) {
	idx := NewIndex(1000)

	idx.Update("scout", core.Position3D{X: 400})
	assert.Empty(t, idx.QueryRadius(core.Position3D{}, 50))

	idx.Update("scout", core.Position3D{X: 20})
	assert.Equal(t, []string{"scout"}, idx.QueryRadius(core.Position3D{}, 50))

	idx.Update("scout", core.Position3D{X: 300})
	assert.Empty(t, idx.QueryRadius(core.Position3D{}, 50))
}

// Brute-force cross-check: the octree must return exactly the entities
// within Euclidean range, across inserts, moves and removals.
func TestIndex_MatchesBruteForce(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	idx := NewIndex(2000)
	positions := make(map[string]core.Position3D)

	randomPos := func() core.Position3D {
		return core.Position3D{
			X: rng.Float64() * 1800,
			Y: rng.Float64() * 1800,
			Z: rng.Float64() * 200,
		}
	}

	for i := 0; i < 300; i++ {
		id := fmt.Sprintf("c%03d", i)
		positions[id] = randomPos()
		idx.Update(id, positions[id])
	}
	// Move a third of them.
	for i := 0; i < 100; i++ {
		id := fmt.Sprintf("c%03d", i)
		positions[id] = randomPos()
		idx.Update(id, positions[id])
	}
	// Remove some.
	for i := 100; i < 130; i++ {
		id := fmt.Sprintf("c%03d", i)
		delete(positions, id)
		idx.Remove(id)
	}

	for trial := 0; trial < 20; trial++ {
		center := randomPos()
		radius := rng.Float64() * 500

		var want []string
		for id, p := range positions {
			if p.DistanceTo(center) <= radius {
				want = append(want, id)
			}
		}

		got := idx.QueryRadius(center, radius)
		assert.Equal(t, sorted(want), sorted(got), "trial %d center=%v r=%f", trial, center, radius)
	}
}

func TestIndex_SubdivisionAndMerge(t *testing.T) {
	idx := NewIndex(1000)

	for i := 0; i < 100; i++ {
		idx.Update(fmt.Sprintf("c%d", i), core.Position3D{
			X: float64(i%10) * 40,
			Y: float64(i/10) * 40,
		})
	}

	s := idx.Stats()
	assert.Greater(t, s.TotalNodes, 1, "expected subdivision under load")
	assert.Greater(t, s.MaxDepth, 0)
	assert.Equal(t, 100, s.TotalEntities)

	for i := 0; i < 100; i++ {
		idx.Remove(fmt.Sprintf("c%d", i))
	}

	s = idx.Stats()
	assert.Equal(t, 0, s.TotalEntities)
	// Sparse subtrees collapse back toward a single leaf.
	assert.Equal(t, 1, s.TotalNodes)
}

func TestIndex_SetWorldSizeReinserts(t *testing.T) {
	idx := NewIndex(1000)
	idx.Update("a", core.Position3D{X: 100})
	idx.Update("b", core.Position3D{X: 300})

	idx.SetWorldSize(4000)

	assert.Equal(t, 4000.0, idx.WorldSize())
	assert.Equal(t, 2, idx.Len())
	assert.Equal(t, []string{"a", "b"}, sorted(idx.QueryRadius(core.Position3D{}, 350)))
}

func TestIndex_ClampsOutOfBounds(t *testing.T) {
	idx := NewIndex(100)
	idx.Update("far", core.Position3D{X: 1e6, Y: -1e6, Z: 3})

	pos, ok := idx.Position("far")
	require.True(t, ok)
	assert.Equal(t, 100.0, pos.X)
	assert.Equal(t, 0.0, pos.Y)
	assert.Equal(t, 3.0, pos.Z)
}

// The far half of the volume must be queryable: an entity standing at a
// point deep in the upper octants is returned by a query centered there,
// and never by a query far away.
func TestIndex_FarCornerIsCovered(t *testing.T) {
	idx := NewIndex(4096)

	idx.Update("e", core.Position3D{X: 3072, Y: 2048})
	assert.Equal(t, []string{"e"}, idx.QueryRadius(core.Position3D{X: 3072, Y: 2048}, 150))
	assert.Empty(t, idx.QueryRadius(core.Position3D{X: 2048, Y: 2048}, 150))

	idx.Update("e", core.Position3D{X: 3891, Y: 3891})
	assert.Equal(t, []string{"e"}, idx.QueryRadius(core.Position3D{X: 3891, Y: 3891}, 150))
	assert.Empty(t, idx.QueryRadius(core.Position3D{X: 2048, Y: 2048}, 150))
}

func TestIndex_QueryRadiusFunc(t *testing.T) {
	idx := NewIndex(1000)
	idx.Update("a", core.Position3D{})
	idx.Update("b", core.Position3D{X: 5})
	idx.Update("c", core.Position3D{X: 500})

	visited := map[string]core.Position3D{}
	idx.QueryRadiusFunc(core.Position3D{}, 10, func(id string, pos core.Position3D) {
		visited[id] = pos
	})

	assert.Len(t, visited, 2)
	assert.Contains(t, visited, "a")
	assert.Contains(t, visited, "b")
}

func TestIndex_BoundaryDistance(t *testing.T) {
	idx := NewIndex(1000)
	idx.Update("edge", core.Position3D{X: 10})

	// Exactly on the radius counts as inside (within fp tolerance).
	got := idx.QueryRadius(core.Position3D{}, 10+1e-9)
	assert.Equal(t, []string{"edge"}, got)

	got = idx.QueryRadius(core.Position3D{}, 10-1e-9)
	assert.Empty(t, got)
}

func TestIndex_StatsAvgEntitiesPerLeaf(t *testing.T) {
	idx := NewIndex(1000)
	for i := 0; i < 16; i++ {
		idx.Update(fmt.Sprintf("c%d", i), core.Position3D{X: float64(i) * 30})
	}

	s := idx.Stats()
	assert.False(t, math.IsNaN(s.AvgEntitiesPerLeaf))
	assert.Greater(t, s.AvgEntitiesPerLeaf, 0.0)
}
