package nbody

import (
	"math"

	"gonum.org/v1/gonum/spatial/r2"
)

// Particle is a point mass in the plane.
type Particle struct {
	Mass float64
	Pos  r2.Vec
	Vel  r2.Vec
}

// Bounds is an axis-aligned square region given by its center and side length.
type Bounds struct {
	Center r2.Vec
	Size   float64
}

// BoundingBox returns the square region enclosing all particles, with the
// larger side scaled by padding. The side length never drops below minExtent,
// which keeps a system collapsed onto a single point splittable.
func BoundingBox(particles []Particle, padding, minExtent float64) Bounds {
	if len(particles) == 0 {
		return Bounds{Size: minExtent}
	}

	minX, maxX := particles[0].Pos.X, particles[0].Pos.X
	minY, maxY := particles[0].Pos.Y, particles[0].Pos.Y
	for i := 1; i < len(particles); i++ {
		p := particles[i].Pos
		if p.X < minX {
			minX = p.X
		}
		if p.X > maxX {
			maxX = p.X
		}
		if p.Y < minY {
			minY = p.Y
		}
		if p.Y > maxY {
			maxY = p.Y
		}
	}

	size := math.Max(maxX-minX, maxY-minY) * padding
	if !(size >= minExtent) {
		size = minExtent
	}

	return Bounds{
		Center: r2.Vec{X: (minX + maxX) / 2, Y: (minY + maxY) / 2},
		Size:   size,
	}
}

// Clone returns a copy of particles backed by a new array.
func Clone(particles []Particle) []Particle {
	out := make([]Particle, len(particles))
	copy(out, particles)
	return out
}
