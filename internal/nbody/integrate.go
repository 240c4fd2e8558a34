package nbody

import "gonum.org/v1/gonum/spatial/r2"

// Integrate advances p by one explicit Euler step: the velocity is updated
// first and the new velocity moves the position.
func Integrate(p *Particle, acc r2.Vec, dt float64) {
	p.Vel.X += dt * acc.X
	p.Vel.Y += dt * acc.Y
	p.Pos.X += dt * p.Vel.X
	p.Pos.Y += dt * p.Vel.Y
}
