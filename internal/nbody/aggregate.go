package nbody

import "gonum.org/v1/gonum/spatial/r2"

// Aggregate computes every node's total mass and center of mass in one
// post-order pass. It must run once after Build and before any force query.
func (t *Tree) Aggregate() {
	if len(t.nodes) == 0 {
		return
	}
	t.aggregate(0)
	t.aggregated = true
}

func (t *Tree) aggregate(idx int32) {
	n := &t.nodes[idx]

	switch n.kind {
	case kindEmpty:
		n.mass = 0
		n.centroid = r2.Vec{}

	case kindLeaf:
		head := &t.particles[n.body]
		if t.next[n.body] == noBody {
			n.mass = head.Mass
			n.centroid = head.Pos
			return
		}
		var mass float64
		var wx, wy float64
		for b := n.body; b != noBody; b = t.next[b] {
			p := &t.particles[b]
			mass += p.Mass
			wx += p.Pos.X * p.Mass
			wy += p.Pos.Y * p.Mass
		}
		n.mass = mass
		if mass > 0 {
			n.centroid = r2.Vec{X: wx / mass, Y: wy / mass}
		} else {
			n.centroid = head.Pos
		}

	case kindInternal:
		for k := n.child; k < n.child+4; k++ {
			t.aggregate(k)
		}

		var mass float64
		var wx, wy float64
		for k := n.child; k < n.child+4; k++ {
			c := &t.nodes[k]
			if c.mass > 0 {
				mass += c.mass
				wx += c.centroid.X * c.mass
				wy += c.centroid.Y * c.mass
			}
		}
		n.mass = mass
		if mass > 0 {
			n.centroid = r2.Vec{X: wx / mass, Y: wy / mass}
		} else {
			n.centroid = r2.Vec{}
		}
	}
}

// Mass returns the aggregated mass of the whole tree.
func (t *Tree) Mass() float64 {
	return t.nodes[0].mass
}

// Centroid returns the aggregated center of mass of the whole tree.
func (t *Tree) Centroid() r2.Vec {
	return t.nodes[0].centroid
}
