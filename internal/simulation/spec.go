package simulation

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/onnwee/nbody-barneshut/backend/internal/nbody"
)

// ErrInvalidSpec is returned for run requests that cannot be simulated.
var ErrInvalidSpec = errors.New("invalid run spec")

// Spec fully determines a run. Two runs with equal Specs produce identical
// results regardless of worker count.
type Spec struct {
	Particles int
	Steps     int
	Seed      uint64
	Algorithm nbody.Algorithm
	Params    nbody.Params
}

// Validate checks the counts, the algorithm and the core parameters.
func (s Spec) Validate() error {
	if s.Particles < 1 {
		return fmt.Errorf("%w: particle count must be positive, got %d", ErrInvalidSpec, s.Particles)
	}
	if s.Steps < 0 {
		return fmt.Errorf("%w: step count must not be negative, got %d", ErrInvalidSpec, s.Steps)
	}
	if s.Algorithm != nbody.BarnesHut && s.Algorithm != nbody.BruteForce {
		return fmt.Errorf("%w: unknown algorithm %q", ErrInvalidSpec, s.Algorithm)
	}
	if err := s.Params.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSpec, err)
	}
	return nil
}

// Key identifies the result of a Spec. Workers is left out since it does not
// change the outcome.
func (s Spec) Key() string {
	f := func(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }
	p := s.Params
	return strings.Join([]string{
		string(s.Algorithm),
		strconv.Itoa(s.Particles),
		strconv.Itoa(s.Steps),
		strconv.FormatUint(s.Seed, 10),
		f(p.G), f(p.DT), f(p.Theta), f(p.Softening), f(p.Padding),
		strconv.Itoa(p.MaxDepth),
		f(p.MinExtent),
	}, ":")
}
