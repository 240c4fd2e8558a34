package nbody

import "math"

// DefaultSeed is the seed of the reference initial state.
const DefaultSeed uint64 = 100

// Sampler yields uniform values in [0, 1).
type Sampler interface {
	Float64() float64
}

// Xorshift is a 64-bit xorshift generator. Its output sequence is part of
// the reproducibility contract of a run, so the shifts must not change.
type Xorshift struct {
	state uint64
}

// NewXorshift returns a generator seeded with seed. A zero seed would stay
// zero forever and is replaced by DefaultSeed.
func NewXorshift(seed uint64) *Xorshift {
	if seed == 0 {
		seed = DefaultSeed
	}
	return &Xorshift{state: seed}
}

// Uint64 advances the generator.
func (x *Xorshift) Uint64() uint64 {
	x.state ^= x.state << 21
	x.state ^= x.state >> 35
	x.state ^= x.state << 4
	return x.state
}

// Float64 builds a 53-bit uniform value in [0, 1) from two 26-bit draws.
func (x *Xorshift) Float64() float64 {
	hi := x.Uint64() >> (64 - 26)
	lo := x.Uint64() >> (64 - 26)
	return float64(hi<<27+lo) / float64(uint64(1)<<53)
}

// Initial state distribution.
const (
	minMass     = 0.2
	massRange   = 10.0
	spread      = 100.0
	spreadPower = 0.4
	speedRange  = 5.0
)

// NewRandomSystem draws n particles from rng. Masses lie in [0.2, 10.2),
// positions are centered on the origin and spread by 100*(1+n)^0.4, and
// velocity components lie in [-2.5, 2.5).
func NewRandomSystem(n int, rng Sampler) []Particle {
	scale := spread * math.Pow(1+float64(n), spreadPower)
	particles := make([]Particle, n)
	for i := range particles {
		p := &particles[i]
		p.Mass = rng.Float64()*massRange + minMass
		p.Pos.X = (rng.Float64() - 0.5) * scale
		p.Pos.Y = (rng.Float64() - 0.5) * scale
		p.Vel.X = rng.Float64()*speedRange - speedRange/2
		p.Vel.Y = rng.Float64()*speedRange - speedRange/2
	}
	return particles
}
