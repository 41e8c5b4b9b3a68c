// Package spatial provides the octree index over combatant positions.
// It is built for churn: every combatant re-reports its position every tick,
// so updates are incremental and node subdivision/merging is amortized
// rather than rebuilt per tick.
package spatial

import (
	"math"

	"github.com/tacsim/battlesim/pkg/core"
)

const (
	defaultLeafCapacity = 8
	defaultMaxDepth     = 8
	// mergeFactor: an internal node collapses back to a leaf once its
	// subtree population drops below capacity/2.
	mergeFactor = 2
)

// Stats describes the current shape of the octree.
type Stats struct {
	TotalNodes         int
	MaxDepth           int
	TotalEntities      int
	AvgEntitiesPerLeaf float64
}

type entry struct {
	id   string
	pos  core.Position3D
	leaf *node
}

type node struct {
	center   core.Position3D
	halfSize float64
	depth    int
	parent   *node
	children *[8]*node // nil while leaf
	entries  map[string]*entry
	count    int // entities in this subtree
}

// Index is a bounded-volume octree keyed by combatant id.
// Not safe for concurrent use; the tick loop is the single writer.
type Index struct {
	root         *node
	entities     map[string]*entry
	worldSize    float64
	leafCapacity int
	maxDepth     int
}

// NewIndex creates an octree covering the cube [0, worldSize] on each axis,
// the frame scenario coordinates are written in.
func NewIndex(worldSize float64) *Index {
	idx := &Index{
		leafCapacity: defaultLeafCapacity,
		maxDepth:     defaultMaxDepth,
	}
	idx.reset(worldSize)
	return idx
}

func (idx *Index) reset(worldSize float64) {
	h := worldSize / 2
	idx.worldSize = worldSize
	idx.root = &node{
		center:   core.Position3D{X: h, Y: h, Z: h},
		halfSize: h,
		entries:  make(map[string]*entry),
	}
	idx.entities = make(map[string]*entry)
}

// SetWorldSize reinitializes the octree for a new world volume and
// reinserts every known entity. Used when switching game modes.
func (idx *Index) SetWorldSize(size float64) {
	old := idx.entities
	idx.reset(size)
	for id, e := range old {
		idx.Update(id, e.pos)
	}
}

// WorldSize returns the current world edge length.
func (idx *Index) WorldSize() float64 {
	return idx.worldSize
}

// Len returns the number of indexed entities.
func (idx *Index) Len() int {
	return len(idx.entities)
}

// Update inserts or moves an entity. An update for an unknown id behaves as
// an insert. Positions outside the world volume are clamped into it.
func (idx *Index) Update(id string, pos core.Position3D) {
	pos = idx.clamp(pos)

	if e, ok := idx.entities[id]; ok {
		// Fast path: still inside the same leaf.
		if e.leaf.children == nil && e.leaf.contains(pos) {
			e.pos = pos
			return
		}
		idx.detach(e)
		e.pos = pos
		idx.insert(idx.root, e)
		return
	}

	e := &entry{id: id, pos: pos}
	idx.entities[id] = e
	idx.insert(idx.root, e)
}

// Remove deletes an entity from the index. Unknown ids are ignored.
func (idx *Index) Remove(id string) {
	e, ok := idx.entities[id]
	if !ok {
		return
	}
	idx.detach(e)
	delete(idx.entities, id)
}

// QueryRadius returns the ids of all entities within Euclidean distance r of
// center. The result is unordered.
func (idx *Index) QueryRadius(center core.Position3D, r float64) []string {
	if r < 0 {
		return nil
	}
	var out []string
	idx.query(idx.root, center, r*r, &out)
	return out
}

// QueryRadiusFunc visits every entity within r of center without allocating
// a result slice.
func (idx *Index) QueryRadiusFunc(center core.Position3D, r float64, fn func(id string, pos core.Position3D)) {
	if r < 0 {
		return
	}
	idx.queryFunc(idx.root, center, r*r, fn)
}

// Position returns the indexed position of an entity.
func (idx *Index) Position(id string) (core.Position3D, bool) {
	e, ok := idx.entities[id]
	if !ok {
		return core.Position3D{}, false
	}
	return e.pos, true
}

// Stats walks the tree and reports its shape.
func (idx *Index) Stats() Stats {
	s := Stats{TotalEntities: len(idx.entities)}
	leaves := 0
	leafEntities := 0
	var walk func(n *node)
	walk = func(n *node) {
		s.TotalNodes++
		if n.depth > s.MaxDepth {
			s.MaxDepth = n.depth
		}
		if n.children == nil {
			leaves++
			leafEntities += len(n.entries)
			return
		}
		for _, c := range n.children {
			walk(c)
		}
	}
	walk(idx.root)
	if leaves > 0 {
		s.AvgEntitiesPerLeaf = float64(leafEntities) / float64(leaves)
	}
	return s
}

func (idx *Index) clamp(p core.Position3D) core.Position3D {
	return core.Position3D{
		X: math.Max(0, math.Min(idx.worldSize, p.X)),
		Y: math.Max(0, math.Min(idx.worldSize, p.Y)),
		Z: math.Max(0, math.Min(idx.worldSize, p.Z)),
	}
}

func (n *node) contains(p core.Position3D) bool {
	return math.Abs(p.X-n.center.X) <= n.halfSize &&
		math.Abs(p.Y-n.center.Y) <= n.halfSize &&
		math.Abs(p.Z-n.center.Z) <= n.halfSize
}

// octant picks the child index for a position. Ties go to the upper octant.
func (n *node) octant(p core.Position3D) int {
	i := 0
	if p.X >= n.center.X {
		i |= 1
	}
	if p.Y >= n.center.Y {
		i |= 2
	}
	if p.Z >= n.center.Z {
		i |= 4
	}
	return i
}

func (idx *Index) insert(n *node, e *entry) {
	n.count++
	if n.children == nil {
		n.entries[e.id] = e
		e.leaf = n
		if len(n.entries) > idx.leafCapacity && n.depth < idx.maxDepth {
			idx.subdivide(n)
		}
		return
	}
	idx.insert(n.children[n.octant(e.pos)], e)
}

func (idx *Index) subdivide(n *node) {
	q := n.halfSize / 2
	var children [8]*node
	for i := 0; i < 8; i++ {
		c := n.center
		if i&1 != 0 {
			c.X += q
		} else {
			c.X -= q
		}
		if i&2 != 0 {
			c.Y += q
		} else {
			c.Y -= q
		}
		if i&4 != 0 {
			c.Z += q
		} else {
			c.Z -= q
		}
		children[i] = &node{
			center:   c,
			halfSize: q,
			depth:    n.depth + 1,
			parent:   n,
			entries:  make(map[string]*entry),
		}
	}
	n.children = &children

	for _, e := range n.entries {
		child := children[n.octant(e.pos)]
		child.entries[e.id] = e
		child.count++
		e.leaf = child
	}
	n.entries = nil
}

func (idx *Index) detach(e *entry) {
	leaf := e.leaf
	delete(leaf.entries, e.id)
	e.leaf = nil
	for n := leaf; n != nil; n = n.parent {
		n.count--
		if n.children != nil && n.count*mergeFactor < idx.leafCapacity {
			idx.merge(n)
		}
	}
}

// merge collapses a sparse internal node back into a leaf.
func (idx *Index) merge(n *node) {
	entries := make(map[string]*entry, n.count)
	var collect func(c *node)
	collect = func(c *node) {
		if c.children == nil {
			for id, e := range c.entries {
				entries[id] = e
				e.leaf = n
			}
			return
		}
		for _, cc := range c.children {
			collect(cc)
		}
	}
	collect(n)
	n.children = nil
	n.entries = entries
}

func (idx *Index) query(n *node, center core.Position3D, r2 float64, out *[]string) {
	if !n.intersectsSphere(center, r2) {
		return
	}
	if n.children == nil {
		for id, e := range n.entries {
			if distSq(e.pos, center) <= r2 {
				*out = append(*out, id)
			}
		}
		return
	}
	for _, c := range n.children {
		if c.count > 0 {
			idx.query(c, center, r2, out)
		}
	}
}

func (idx *Index) queryFunc(n *node, center core.Position3D, r2 float64, fn func(string, core.Position3D)) {
	if !n.intersectsSphere(center, r2) {
		return
	}
	if n.children == nil {
		for id, e := range n.entries {
			if distSq(e.pos, center) <= r2 {
				fn(id, e.pos)
			}
		}
		return
	}
	for _, c := range n.children {
		if c.count > 0 {
			idx.queryFunc(c, center, r2, fn)
		}
	}
}

// intersectsSphere tests the node's cube against a sphere given by center
// and squared radius.
func (n *node) intersectsSphere(center core.Position3D, r2 float64) bool {
	d2 := 0.0
	for _, axis := range [3][2]float64{
		{center.X, n.center.X},
		{center.Y, n.center.Y},
		{center.Z, n.center.Z},
	} {
		d := math.Abs(axis[0]-axis[1]) - n.halfSize
		if d > 0 {
			d2 += d * d
		}
	}
	return d2 <= r2
}

func distSq(a, b core.Position3D) float64 {
	dx, dy, dz := a.X-b.X, a.Y-b.Y, a.Z-b.Z
	return dx*dx + dy*dy + dz*dz
}
