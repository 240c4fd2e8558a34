package nbody

import (
	"errors"
	"fmt"
	"runtime"
)

// Reference constants of the simulation.
const (
	DefaultG         = 6.6743
	DefaultDT        = 0.001
	DefaultTheta     = 0.5
	DefaultSoftening = 0.0001
	DefaultPadding   = 1.1
	DefaultMaxDepth  = 64
	DefaultMinExtent = 1e-6
)

var (
	// ErrInvalidParams is returned when a Params value fails validation.
	ErrInvalidParams = errors.New("nbody: invalid parameters")
	// ErrNoParticles is returned when a tree is built over an empty set.
	ErrNoParticles = errors.New("nbody: no particles")
	// ErrInvalidBounds is returned when the root region has no positive extent.
	ErrInvalidBounds = errors.New("nbody: invalid bounds")
)

// Params is the immutable configuration threaded from the driver down to the
// force evaluator and integrator.
type Params struct {
	G         float64 // gravitational constant
	DT        float64 // time step
	Theta     float64 // opening angle threshold
	Softening float64 // added to squared distances
	Padding   float64 // bounding box scale factor, >= 1
	MaxDepth  int     // insertion depth past which particles merge into one leaf
	MinExtent float64 // smallest allowed root side length
	Workers   int     // goroutines used by the per-particle loops
}

// DefaultParams returns the reference configuration.
func DefaultParams() Params {
	return Params{
		G:         DefaultG,
		DT:        DefaultDT,
		Theta:     DefaultTheta,
		Softening: DefaultSoftening,
		Padding:   DefaultPadding,
		MaxDepth:  DefaultMaxDepth,
		MinExtent: DefaultMinExtent,
		Workers:   runtime.GOMAXPROCS(0),
	}
}

// Validate reports the first invalid field, wrapped in ErrInvalidParams.
func (p Params) Validate() error {
	switch {
	case !(p.G >= 0):
		return fmt.Errorf("%w: G must be non-negative, got %v", ErrInvalidParams, p.G)
	case !(p.DT > 0):
		return fmt.Errorf("%w: DT must be positive, got %v", ErrInvalidParams, p.DT)
	case !(p.Theta >= 0):
		return fmt.Errorf("%w: Theta must be non-negative, got %v", ErrInvalidParams, p.Theta)
	case !(p.Softening > 0):
		return fmt.Errorf("%w: Softening must be positive, got %v", ErrInvalidParams, p.Softening)
	case !(p.Padding >= 1):
		return fmt.Errorf("%w: Padding must be at least 1, got %v", ErrInvalidParams, p.Padding)
	case p.MaxDepth < 1:
		return fmt.Errorf("%w: MaxDepth must be at least 1, got %d", ErrInvalidParams, p.MaxDepth)
	case !(p.MinExtent > 0):
		return fmt.Errorf("%w: MinExtent must be positive, got %v", ErrInvalidParams, p.MinExtent)
	}
	return nil
}

func (p Params) workers() int {
	if p.Workers < 1 {
		return 1
	}
	return p.Workers
}
