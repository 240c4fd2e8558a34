package nbody

import "gonum.org/v1/gonum/spatial/r2"

// DirectAcceleration sums the softened pull of every other particle on
// particle i. It is the exact O(n) reference the tree approximates.
func DirectAcceleration(particles []Particle, i int, p Params) r2.Vec {
	var acc r2.Vec
	pos := particles[i].Pos
	for j := range particles {
		if j == i {
			continue
		}
		add(&acc, pointAccel(r2.Sub(particles[j].Pos, pos), particles[j].Mass, p.G, p.Softening))
	}
	return acc
}
