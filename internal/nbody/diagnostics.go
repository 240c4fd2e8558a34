package nbody

import (
	"math"

	"gonum.org/v1/gonum/spatial/r2"
)

// TotalMass sums the mass of all particles.
func TotalMass(particles []Particle) float64 {
	var m float64
	for i := range particles {
		m += particles[i].Mass
	}
	return m
}

// Momentum returns the total linear momentum of the system.
func Momentum(particles []Particle) r2.Vec {
	var p r2.Vec
	for i := range particles {
		p = r2.Add(p, r2.Scale(particles[i].Mass, particles[i].Vel))
	}
	return p
}

// CenterOfMass returns the mass-weighted mean position, or the origin for a
// massless system.
func CenterOfMass(particles []Particle) r2.Vec {
	var w r2.Vec
	m := TotalMass(particles)
	if m == 0 {
		return w
	}
	for i := range particles {
		w = r2.Add(w, r2.Scale(particles[i].Mass, particles[i].Pos))
	}
	return r2.Scale(1/m, w)
}

// KineticEnergy returns the sum of m*v^2/2 over all particles.
func KineticEnergy(particles []Particle) float64 {
	var e float64
	for i := range particles {
		e += 0.5 * particles[i].Mass * r2.Norm2(particles[i].Vel)
	}
	return e
}

// Finite reports whether every position and velocity is a finite number.
func Finite(particles []Particle) bool {
	for i := range particles {
		p := &particles[i]
		for _, v := range [...]float64{p.Pos.X, p.Pos.Y, p.Vel.X, p.Vel.Y} {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return false
			}
		}
	}
	return true
}
