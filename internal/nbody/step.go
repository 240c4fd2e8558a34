package nbody

import (
	"fmt"
	"strings"

	"gonum.org/v1/gonum/spatial/r2"
)

// Algorithm selects how accelerations are computed each step.
type Algorithm string

const (
	BarnesHut  Algorithm = "barnes-hut"
	BruteForce Algorithm = "brute-force"
)

// ParseAlgorithm maps a user supplied name to an Algorithm. The empty string
// selects BarnesHut.
func ParseAlgorithm(s string) (Algorithm, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "barnes-hut", "barneshut", "bh":
		return BarnesHut, nil
	case "brute-force", "bruteforce", "direct", "naive":
		return BruteForce, nil
	}
	return "", fmt.Errorf("%w: unknown algorithm %q", ErrInvalidParams, s)
}

// Stepper advances a particle system one time step at a time. It owns a tree
// arena and a spare particle buffer that are recycled between steps, so a
// Stepper must not be shared between goroutines.
type Stepper struct {
	params    Params
	algorithm Algorithm
	tree      Tree
	spare     []Particle
	stats     TreeStats
}

// NewStepper validates params and returns a Stepper using algorithm.
func NewStepper(params Params, algorithm Algorithm) (*Stepper, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if algorithm != BarnesHut && algorithm != BruteForce {
		return nil, fmt.Errorf("%w: unknown algorithm %q", ErrInvalidParams, algorithm)
	}
	return &Stepper{
		params:    params,
		algorithm: algorithm,
		tree:      Tree{maxDepth: params.MaxDepth},
	}, nil
}

// Params returns the configuration the Stepper was built with.
func (s *Stepper) Params() Params { return s.params }

// Algorithm returns the force algorithm in use.
func (s *Stepper) Algorithm() Algorithm { return s.algorithm }

// LastTreeStats describes the tree built by the most recent Barnes-Hut step.
func (s *Stepper) LastTreeStats() TreeStats { return s.stats }

// Step computes the next state of cur and returns it. Step takes ownership
// of cur: its backing array is reused as the output of a later call, so the
// caller must keep only the returned slice. An empty system is returned as is.
func (s *Stepper) Step(cur []Particle) []Particle {
	n := len(cur)
	if n == 0 {
		return cur
	}

	next := s.buffer(cur)
	workers := s.params.workers()
	parallelFor(n, workers, func(lo, hi int) {
		copy(next[lo:hi], cur[lo:hi])
	})

	switch s.algorithm {
	case BruteForce:
		parallelFor(n, workers, func(lo, hi int) {
			for i := lo; i < hi; i++ {
				Integrate(&next[i], DirectAcceleration(cur, i, s.params), s.params.DT)
			}
		})

	default:
		bounds := BoundingBox(cur, s.params.Padding, s.params.MinExtent)
		s.tree.reset(cur, bounds)
		s.tree.Aggregate()
		s.stats = s.tree.Stats()

		parallelFor(n, workers, func(lo, hi int) {
			for i := lo; i < hi; i++ {
				Integrate(&next[i], s.tree.Acceleration(i, s.params), s.params.DT)
			}
		})
		s.tree.release()
	}

	s.spare = cur
	return next
}

// Accelerations returns the acceleration of every particle in the current
// state without advancing it.
func (s *Stepper) Accelerations(cur []Particle) ([]r2.Vec, error) {
	acc := make([]r2.Vec, len(cur))
	if len(cur) == 0 {
		return acc, nil
	}
	if s.algorithm == BruteForce {
		for i := range cur {
			acc[i] = DirectAcceleration(cur, i, s.params)
		}
		return acc, nil
	}

	tree, err := Build(cur, BoundingBox(cur, s.params.Padding, s.params.MinExtent), s.params.MaxDepth)
	if err != nil {
		return nil, err
	}
	tree.Aggregate()
	for i := range cur {
		acc[i] = tree.Acceleration(i, s.params)
	}
	return acc, nil
}

// buffer returns a slice of len(cur) that does not share memory with cur.
func (s *Stepper) buffer(cur []Particle) []Particle {
	n := len(cur)
	if cap(s.spare) >= n && &s.spare[:1][0] != &cur[0] {
		return s.spare[:n]
	}
	return make([]Particle, n)
}
