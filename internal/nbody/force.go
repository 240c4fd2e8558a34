package nbody

import (
	"math"

	"gonum.org/v1/gonum/spatial/r2"
)

// pointAccel is the softened inverse-square acceleration toward a point mass
// at displacement d.
func pointAccel(d r2.Vec, mass, g, softening float64) r2.Vec {
	distSqr := d.X*d.X + d.Y*d.Y + softening
	dist := math.Sqrt(distSqr)
	s := g * mass / (distSqr * dist)
	return r2.Vec{X: d.X * s, Y: d.Y * s}
}

// Acceleration returns the gravitational acceleration on particle i from
// every other particle in the tree. Regions whose extent over distance falls
// below p.Theta are treated as a single mass at their center of mass.
//
// The tree is only read, so calls for different particles may run
// concurrently.
func (t *Tree) Acceleration(i int, p Params) r2.Vec {
	if !t.aggregated {
		panic("nbody: Acceleration called on a tree that has not been aggregated")
	}
	var acc r2.Vec
	t.accumulate(0, int32(i), t.particles[i].Pos, p, &acc)
	return acc
}

func (t *Tree) accumulate(idx, self int32, pos r2.Vec, p Params, acc *r2.Vec) {
	n := &t.nodes[idx]

	switch n.kind {
	case kindEmpty:
		return

	case kindLeaf:
		if t.next[n.body] == noBody {
			if n.body == self {
				return
			}
			add(acc, pointAccel(r2.Sub(n.centroid, pos), n.mass, p.G, p.Softening))
			return
		}
		if !t.holds(idx, self) {
			add(acc, pointAccel(r2.Sub(n.centroid, pos), n.mass, p.G, p.Softening))
			return
		}
		// The query particle shares this leaf: only the other members pull.
		for b := n.body; b != noBody; b = t.next[b] {
			if b == self {
				continue
			}
			m := &t.particles[b]
			add(acc, pointAccel(r2.Sub(m.Pos, pos), m.Mass, p.G, p.Softening))
		}

	case kindInternal:
		d := r2.Sub(n.centroid, pos)
		dist := math.Sqrt(d.X*d.X + d.Y*d.Y + p.Softening)
		if n.extent/dist < p.Theta {
			add(acc, pointAccel(d, n.mass, p.G, p.Softening))
			return
		}
		for k := n.child; k < n.child+4; k++ {
			if t.nodes[k].kind != kindEmpty {
				t.accumulate(k, self, pos, p, acc)
			}
		}
	}
}

// holds reports whether particle b is a member of the leaf at idx.
func (t *Tree) holds(idx, b int32) bool {
	for m := t.nodes[idx].body; m != noBody; m = t.next[m] {
		if m == b {
			return true
		}
	}
	return false
}

func add(acc *r2.Vec, v r2.Vec) {
	acc.X += v.X
	acc.Y += v.Y
}
