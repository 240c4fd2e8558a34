package nbody

import (
	"fmt"

	"gonum.org/v1/gonum/spatial/r2"
)

// nodeKind tags which fields of a node are meaningful.
type nodeKind uint8

const (
	kindEmpty    nodeKind = iota // no particle below this node
	kindLeaf                     // body is the head of the member chain
	kindInternal                 // child is the index of the first of four children
)

// noBody terminates a leaf's member chain.
const noBody int32 = -1

// node is one square region of the quadtree. Nodes live in the Tree's arena
// and refer to each other by index.
type node struct {
	center r2.Vec
	extent float64

	// Valid once the tree has been aggregated.
	mass     float64
	centroid r2.Vec

	kind  nodeKind
	body  int32
	child int32
}

// Tree is a quadtree over a particle slice. It references the particles by
// index and never copies them, so the slice must not change while the tree
// is in use.
type Tree struct {
	nodes     []node
	next      []int32 // member chain of merged leaves, indexed by particle
	particles []Particle
	maxDepth  int

	depth      int
	merged     int
	aggregated bool
}

// Build inserts every particle into a new tree rooted at bounds. Aggregate
// must be called before the tree can answer force queries.
func Build(particles []Particle, bounds Bounds, maxDepth int) (*Tree, error) {
	if len(particles) == 0 {
		return nil, ErrNoParticles
	}
	if !(bounds.Size > 0) {
		return nil, fmt.Errorf("%w: size %v", ErrInvalidBounds, bounds.Size)
	}
	if maxDepth < 1 {
		return nil, fmt.Errorf("%w: MaxDepth must be at least 1, got %d", ErrInvalidParams, maxDepth)
	}

	t := &Tree{maxDepth: maxDepth}
	t.reset(particles, bounds)
	return t, nil
}

// reset discards the previous hierarchy in bulk, keeping the arena's
// capacity, and inserts particles under a fresh root.
func (t *Tree) reset(particles []Particle, bounds Bounds) {
	n := len(particles)
	if cap(t.nodes) == 0 {
		t.nodes = make([]node, 0, 2*n+1)
	}
	t.nodes = append(t.nodes[:0], node{
		center: bounds.Center,
		extent: bounds.Size,
		kind:   kindEmpty,
		body:   noBody,
		child:  noBody,
	})

	if cap(t.next) < n {
		t.next = make([]int32, n)
	}
	t.next = t.next[:n]
	for i := range t.next {
		t.next[i] = noBody
	}

	t.particles = particles
	t.depth = 0
	t.merged = 0
	t.aggregated = false

	for i := range particles {
		t.insert(int32(i))
	}
}

// release drops the reference to the particle slice once a step is done.
func (t *Tree) release() {
	t.particles = nil
	t.aggregated = false
}

// quadrant returns the child index of p relative to center. Points on a
// splitting axis belong to the high side.
func quadrant(center, p r2.Vec) int32 {
	var q int32
	if p.X >= center.X {
		q |= 1
	}
	if p.Y >= center.Y {
		q |= 2
	}
	return q
}

// insert places particle i by descending from the root.
func (t *Tree) insert(i int32) {
	pos := t.particles[i].Pos
	idx := int32(0)
	depth := 0

	for {
		n := &t.nodes[idx]
		switch n.kind {
		case kindEmpty:
			n.kind = kindLeaf
			n.body = i
			if depth > t.depth {
				t.depth = depth
			}
			return

		case kindLeaf:
			if depth >= t.maxDepth {
				// Coincident or nearly coincident points: share the leaf.
				if t.next[n.body] == noBody {
					t.merged++
				}
				if depth > t.depth {
					t.depth = depth
				}
				t.next[i] = n.body
				n.body = i
				return
			}
			t.split(idx)

		case kindInternal:
			idx = n.child + quadrant(n.center, pos)
			depth++
		}
	}
}

// split converts the leaf at idx into an internal node with four children
// and moves its particle into the matching child.
func (t *Tree) split(idx int32) {
	parent := t.nodes[idx]
	half := parent.extent / 2
	quarter := parent.extent / 4

	first := int32(len(t.nodes))
	for q := int32(0); q < 4; q++ {
		c := parent.center
		if q&1 != 0 {
			c.X += quarter
		} else {
			c.X -= quarter
		}
		if q&2 != 0 {
			c.Y += quarter
		} else {
			c.Y -= quarter
		}
		t.nodes = append(t.nodes, node{
			center: c,
			extent: half,
			kind:   kindEmpty,
			body:   noBody,
			child:  noBody,
		})
	}

	old := parent.body
	target := &t.nodes[first+quadrant(parent.center, t.particles[old].Pos)]
	target.kind = kindLeaf
	target.body = old

	n := &t.nodes[idx]
	n.kind = kindInternal
	n.body = noBody
	n.child = first
}

// TreeStats describes the shape of a built tree.
type TreeStats struct {
	Nodes        int // nodes in the arena
	Leaves       int // occupied leaves
	MergedLeaves int // leaves holding more than one particle
	Depth        int // deepest occupied leaf, root is 0
}

// Stats reports the shape of the tree.
func (t *Tree) Stats() TreeStats {
	s := TreeStats{
		Nodes:        len(t.nodes),
		MergedLeaves: t.merged,
		Depth:        t.depth,
	}
	for i := range t.nodes {
		if t.nodes[i].kind == kindLeaf {
			s.Leaves++
		}
	}
	return s
}
