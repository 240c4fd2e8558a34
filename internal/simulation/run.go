package simulation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"gonum.org/v1/gonum/spatial/r2"

	"github.com/onnwee/nbody-barneshut/backend/internal/logger"
	"github.com/onnwee/nbody-barneshut/backend/internal/metrics"
	"github.com/onnwee/nbody-barneshut/backend/internal/nbody"
	"github.com/onnwee/nbody-barneshut/backend/internal/tracing"
)

// ErrDiverged marks a run whose final state holds NaN or Inf values.
var ErrDiverged = errors.New("simulation diverged")

// Result summarizes a finished run.
type Result struct {
	Particles     int
	Steps         int
	Seed          uint64
	Algorithm     string
	Elapsed       time.Duration // step loop only, excluding setup
	Final         r2.Vec        // position of the last particle
	Momentum      r2.Vec
	CenterOfMass  r2.Vec
	KineticEnergy float64
	Tree          nbody.TreeStats // last Barnes-Hut tree, zero for brute force
}

// Summary formats r as the one-line run report.
func Summary(r *Result) string {
	return fmt.Sprintf("Total time to run simulation %0.6f seconds, final location %f %f",
		r.Elapsed.Seconds(), r.Final.X, r.Final.Y)
}

// Observer receives the state after a step. The slice is reused by later
// steps and must not be retained.
type Observer func(step int, particles []nbody.Particle)

type options struct {
	initial  []nbody.Particle
	observer Observer
	every    int
}

// Option customizes Run.
type Option func(*options)

// WithParticles starts from a copy of ps instead of the seeded random system.
// The Spec's particle count must match len(ps).
func WithParticles(ps []nbody.Particle) Option {
	return func(o *options) { o.initial = ps }
}

// WithObserver calls fn with the initial state, every `every` steps, and
// after the last step.
func WithObserver(every int, fn Observer) Option {
	return func(o *options) {
		if every < 1 {
			every = 1
		}
		o.every = every
		o.observer = fn
	}
}

// Run advances a system spec.Steps times. Cancellation is checked between
// steps; a step in progress always completes.
func Run(ctx context.Context, spec Spec, opts ...Option) (res *Result, err error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	if err := spec.Validate(); err != nil {
		return nil, err
	}
	if o.initial != nil && len(o.initial) != spec.Particles {
		return nil, fmt.Errorf("%w: %d initial particles for a %d particle spec", ErrInvalidSpec, len(o.initial), spec.Particles)
	}

	alg := string(spec.Algorithm)
	ctx, span := tracing.StartSpan(ctx, "simulation.run", tracing.RunAttributes(spec.Particles, spec.Steps, alg))
	defer span.End()
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "run failed")
		}
	}()

	stepper, err := nbody.NewStepper(spec.Params, spec.Algorithm)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSpec, err)
	}

	var cur []nbody.Particle
	if o.initial != nil {
		cur = nbody.Clone(o.initial)
	} else {
		cur = nbody.NewRandomSystem(spec.Particles, nbody.NewXorshift(spec.Seed))
	}

	log := logger.WithRunID(ctx).With("algorithm", alg)
	log.Info("Starting simulation", "particles", spec.Particles, "steps", spec.Steps, "seed", spec.Seed)

	if o.observer != nil {
		o.observer(0, cur)
	}

	stepDuration := metrics.StepDuration.WithLabelValues(alg)
	stepsTotal := metrics.StepsTotal.WithLabelValues(alg)

	start := time.Now()
	for i := 1; i <= spec.Steps; i++ {
		if err := ctx.Err(); err != nil {
			log.Warn("Simulation canceled", "step", i-1, "error", err)
			return nil, fmt.Errorf("canceled before step %d: %w", i, err)
		}

		t0 := time.Now()
		_, stepSpan := tracing.StartSpan(ctx, "simulation.step")
		cur = stepper.Step(cur)
		if spec.Algorithm == nbody.BarnesHut {
			ts := stepper.LastTreeStats()
			stepSpan.SetAttributes(
				attribute.Int("nbody.step", i),
				attribute.Int("nbody.tree_nodes", ts.Nodes),
				attribute.Int("nbody.tree_depth", ts.Depth),
			)
			metrics.TreeNodes.Set(float64(ts.Nodes))
			metrics.TreeDepth.Set(float64(ts.Depth))
			metrics.TreeMergedLeaves.Set(float64(ts.MergedLeaves))
		}
		stepSpan.End()
		stepDuration.Observe(time.Since(t0).Seconds())
		stepsTotal.Inc()

		if o.observer != nil && (i%o.every == 0 || i == spec.Steps) {
			o.observer(i, cur)
		}
	}
	elapsed := time.Since(start)

	res = &Result{
		Particles:     spec.Particles,
		Steps:         spec.Steps,
		Seed:          spec.Seed,
		Algorithm:     alg,
		Elapsed:       elapsed,
		Final:         cur[len(cur)-1].Pos,
		Momentum:      nbody.Momentum(cur),
		CenterOfMass:  nbody.CenterOfMass(cur),
		KineticEnergy: nbody.KineticEnergy(cur),
		Tree:          stepper.LastTreeStats(),
	}
	span.SetAttributes(attribute.Float64("nbody.elapsed_seconds", elapsed.Seconds()))

	if !nbody.Finite(cur) {
		log.Error("Simulation produced non-finite state", "elapsed", elapsed)
		return res, ErrDiverged
	}

	log.Info("Simulation finished", "elapsed", elapsed, "final_x", res.Final.X, "final_y", res.Final.Y)
	return res, nil
}
