package runs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/onnwee/nbody-barneshut/backend/internal/cache"
	"github.com/onnwee/nbody-barneshut/backend/internal/errorreporting"
	"github.com/onnwee/nbody-barneshut/backend/internal/logger"
	"github.com/onnwee/nbody-barneshut/backend/internal/metrics"
	"github.com/onnwee/nbody-barneshut/backend/internal/nbody"
	"github.com/onnwee/nbody-barneshut/backend/internal/simulation"
	"github.com/onnwee/nbody-barneshut/backend/internal/store"
)

var (
	// ErrInvalidRequest wraps every request validation failure.
	ErrInvalidRequest = errors.New("invalid run request")
	// ErrBusy is returned when too many runs are queued or executing.
	ErrBusy = errors.New("too many runs in progress")
	// ErrNotStreaming is returned when subscribing to a run that is not live.
	ErrNotStreaming = errors.New("run is not streaming")
	// ErrShuttingDown is returned for submissions after Shutdown.
	ErrShuttingDown = errors.New("run service shutting down")
)

// queueFactor bounds waiting runs to a multiple of the concurrency limit.
const queueFactor = 4

// FieldError reports which request field failed validation.
type FieldError struct {
	Field   string
	Message string
}

func (e *FieldError) Error() string { return e.Field + ": " + e.Message }

// Is makes FieldError match ErrInvalidRequest.
func (e *FieldError) Is(target error) bool { return target == ErrInvalidRequest }

// Ledger persists run records.
type Ledger interface {
	Create(ctx context.Context, r *store.Run) error
	MarkRunning(ctx context.Context, id string) error
	Finish(ctx context.Context, id string, o store.Outcome) error
	Get(ctx context.Context, id string) (*store.Run, error)
	List(ctx context.Context, limit int) ([]store.Run, error)
}

// Request is a client's run submission. Nil optional fields take the
// service defaults.
type Request struct {
	Particles int      `json:"particles"`
	Steps     int      `json:"steps"`
	Algorithm string   `json:"algorithm"`
	Seed      *uint64  `json:"seed,omitempty"`
	Theta     *float64 `json:"theta,omitempty"`
}

// Limits bounds what a single request may ask for.
type Limits struct {
	MaxParticles  int
	MaxSteps      int
	MaxConcurrent int
	FrameEvery    int
	CacheTTL      time.Duration
}

// Frame is the binary websocket payload: positions as x0, y0, x1, y1, ...
type Frame struct {
	RunID     string    `msgpack:"run_id"`
	Step      int       `msgpack:"step"`
	Positions []float64 `msgpack:"positions"`
}

// DoneMessage closes a run's stream.
type DoneMessage struct {
	Type string     `json:"type"`
	Run  *store.Run `json:"run"`
}

type liveRun struct {
	cancel context.CancelFunc
	frames *broadcaster
}

// Service executes runs in the background with bounded concurrency.
type Service struct {
	ledger   Ledger
	results  *cache.Typed[simulation.Result]
	params   nbody.Params
	seed     uint64
	limits   Limits
	slots    chan struct{}
	baseCtx  context.Context
	stopRuns context.CancelFunc

	mu       sync.Mutex
	live     map[string]*liveRun
	draining bool
	wg       sync.WaitGroup
}

// NewService returns a Service drawing default parameters from params and
// the default seed from seed.
func NewService(ledger Ledger, c cache.Cache, params nbody.Params, seed uint64, limits Limits) *Service {
	if limits.MaxConcurrent < 1 {
		limits.MaxConcurrent = 1
	}
	if limits.FrameEvery < 1 {
		limits.FrameEvery = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		ledger:   ledger,
		results:  cache.NewTyped[simulation.Result](c, "runs"),
		params:   params,
		seed:     seed,
		limits:   limits,
		slots:    make(chan struct{}, limits.MaxConcurrent),
		baseCtx:  ctx,
		stopRuns: cancel,
		live:     make(map[string]*liveRun),
	}
}

// Spec validates req against the limits and resolves it into a Spec.
func (s *Service) Spec(req Request) (simulation.Spec, error) {
	var spec simulation.Spec
	switch {
	case req.Particles < 1:
		return spec, &FieldError{"particles", "must be at least 1"}
	case s.limits.MaxParticles > 0 && req.Particles > s.limits.MaxParticles:
		return spec, &FieldError{"particles", fmt.Sprintf("must be at most %d", s.limits.MaxParticles)}
	case req.Steps < 0:
		return spec, &FieldError{"steps", "must not be negative"}
	case s.limits.MaxSteps > 0 && req.Steps > s.limits.MaxSteps:
		return spec, &FieldError{"steps", fmt.Sprintf("must be at most %d", s.limits.MaxSteps)}
	}

	alg, err := nbody.ParseAlgorithm(req.Algorithm)
	if err != nil {
		return spec, &FieldError{"algorithm", "must be barnes-hut or brute-force"}
	}

	params := s.params
	if req.Theta != nil {
		if !(*req.Theta >= 0) {
			return spec, &FieldError{"theta", "must not be negative"}
		}
		params.Theta = *req.Theta
	}
	seed := s.seed
	if req.Seed != nil {
		seed = *req.Seed
	}

	spec = simulation.Spec{
		Particles: req.Particles,
		Steps:     req.Steps,
		Seed:      seed,
		Algorithm: alg,
		Params:    params,
	}
	// theta is the only client-supplied parameter; anything else failing
	// here is server configuration
	if err := spec.Validate(); err != nil {
		return spec, fmt.Errorf("server parameters: %w", err)
	}
	return spec, nil
}

// Submit records a run and starts it in the background. A spec whose result
// is cached completes immediately.
func (s *Service) Submit(ctx context.Context, req Request) (*store.Run, error) {
	spec, err := s.Spec(req)
	if err != nil {
		return nil, err
	}

	run := &store.Run{
		ID:        uuid.NewString(),
		Status:    store.StatusQueued,
		Algorithm: string(spec.Algorithm),
		Particles: spec.Particles,
		Steps:     spec.Steps,
		Seed:      spec.Seed,
		Theta:     spec.Params.Theta,
		CreatedAt: time.Now().UTC(),
	}
	log := logger.WithRunID(logger.ContextWithRunID(ctx, run.ID))

	if res, ok := s.results.Get(spec.Key()); ok {
		run.Cached = true
		applyResult(run, &res)
		run.Status = store.StatusCompleted
		if err := s.ledger.Create(ctx, run); err != nil {
			return nil, err
		}
		now := time.Now().UTC()
		run.FinishedAt = &now
		if err := s.ledger.Finish(ctx, run.ID, outcome(run)); err != nil {
			return nil, err
		}
		metrics.RunsTotal.WithLabelValues(run.Algorithm, "cached").Inc()
		log.Info("Run served from cache", "particles", run.Particles, "steps", run.Steps)
		return run, nil
	}

	s.mu.Lock()
	if s.draining {
		s.mu.Unlock()
		return nil, ErrShuttingDown
	}
	if len(s.live) >= s.limits.MaxConcurrent*queueFactor {
		s.mu.Unlock()
		return nil, ErrBusy
	}
	runCtx, cancel := context.WithCancel(s.baseCtx)
	lr := &liveRun{cancel: cancel, frames: newBroadcaster()}
	s.live[run.ID] = lr
	s.wg.Add(1)
	s.mu.Unlock()

	if err := s.ledger.Create(ctx, run); err != nil {
		s.drop(run.ID)
		cancel()
		s.wg.Done()
		return nil, err
	}

	log.Info("Run queued", "particles", run.Particles, "steps", run.Steps, "algorithm", run.Algorithm)
	go s.execute(logger.ContextWithRunID(runCtx, run.ID), *run, spec, lr)
	return run, nil
}

func (s *Service) execute(ctx context.Context, run store.Run, spec simulation.Spec, lr *liveRun) {
	defer s.wg.Done()
	defer s.drop(run.ID)
	defer lr.cancel()

	// Ledger writes must land even when the run itself is canceled
	bg := context.WithoutCancel(ctx)
	log := logger.WithRunID(ctx)

	select {
	case s.slots <- struct{}{}:
		defer func() { <-s.slots }()
	case <-ctx.Done():
		s.complete(bg, &run, lr, nil, ctx.Err())
		return
	}

	if err := s.ledger.MarkRunning(bg, run.ID); err != nil {
		log.Warn("Failed to mark run running", "error", err)
	}
	run.Status = store.StatusRunning

	metrics.RunsActive.Inc()
	defer metrics.RunsActive.Dec()

	observe := func(step int, ps []nbody.Particle) {
		if !lr.frames.active() {
			return
		}
		f := Frame{RunID: run.ID, Step: step, Positions: make([]float64, 0, 2*len(ps))}
		for i := range ps {
			f.Positions = append(f.Positions, ps[i].Pos.X, ps[i].Pos.Y)
		}
		data, err := msgpack.Marshal(&f)
		if err != nil {
			log.Warn("Failed to encode frame", "error", err, "step", step)
			return
		}
		lr.frames.publish(Message{Binary: true, Data: data})
	}

	res, err := simulation.Run(ctx, spec, simulation.WithObserver(s.limits.FrameEvery, observe))
	if err == nil {
		if cerr := s.results.Set(spec.Key(), *res, s.limits.CacheTTL); cerr != nil {
			log.Warn("Failed to cache run result", "error", cerr)
		}
		metrics.RunDuration.WithLabelValues(run.Algorithm).Observe(res.Elapsed.Seconds())
	}
	s.complete(bg, &run, lr, res, err)
}

// complete records the outcome and closes the frame stream.
func (s *Service) complete(ctx context.Context, run *store.Run, lr *liveRun, res *simulation.Result, err error) {
	log := logger.WithRunID(ctx)
	if res != nil {
		applyResult(run, res)
	}
	switch {
	case err == nil:
		run.Status = store.StatusCompleted
	case errors.Is(err, context.Canceled):
		run.Status = store.StatusCanceled
		run.Error = "canceled"
	default:
		run.Status = store.StatusFailed
		run.Error = err.Error()
		errorreporting.CaptureRunFailure(err, run.ID, run.Algorithm, run.Particles, run.Steps)
	}
	now := time.Now().UTC()
	run.FinishedAt = &now

	if ferr := s.ledger.Finish(ctx, run.ID, outcome(run)); ferr != nil {
		log.Error("Failed to record run outcome", "error", ferr)
	}
	metrics.RunsTotal.WithLabelValues(run.Algorithm, string(run.Status)).Inc()
	log.Info("Run finished", "status", run.Status, "elapsed_seconds", run.ElapsedSeconds)

	data, jerr := json.Marshal(DoneMessage{Type: "done", Run: run})
	if jerr != nil {
		log.Error("Failed to encode done message", "error", jerr)
		data = []byte(`{"type":"done"}`)
	}
	lr.frames.finish(Message{Data: data})
}

// applyResult copies timing and the final particle location. A diverged
// location is left at zero so the run still records and encodes.
func applyResult(run *store.Run, res *simulation.Result) {
	run.ElapsedSeconds = res.Elapsed.Seconds()
	if finite(res.Final.X) && finite(res.Final.Y) {
		run.FinalX = res.Final.X
		run.FinalY = res.Final.Y
	}
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func outcome(run *store.Run) store.Outcome {
	return store.Outcome{
		Status:         run.Status,
		ElapsedSeconds: run.ElapsedSeconds,
		FinalX:         run.FinalX,
		FinalY:         run.FinalY,
		Error:          run.Error,
	}
}

func (s *Service) drop(id string) {
	s.mu.Lock()
	delete(s.live, id)
	s.mu.Unlock()
}

// Get returns the recorded state of a run.
func (s *Service) Get(ctx context.Context, id string) (*store.Run, error) {
	return s.ledger.Get(ctx, id)
}

// List returns recent runs, newest first.
func (s *Service) List(ctx context.Context, limit int) ([]store.Run, error) {
	return s.ledger.List(ctx, limit)
}

// Subscribe attaches to the frame stream of a live run.
func (s *Service) Subscribe(id string) (*Subscription, error) {
	s.mu.Lock()
	lr, ok := s.live[id]
	s.mu.Unlock()
	if !ok {
		return nil, ErrNotStreaming
	}
	sub, ok := lr.frames.subscribe()
	if !ok {
		return nil, ErrNotStreaming
	}
	return sub, nil
}

// Cancel stops a queued or running run. The run is recorded as canceled
// once its current step completes.
func (s *Service) Cancel(id string) error {
	s.mu.Lock()
	lr, ok := s.live[id]
	s.mu.Unlock()
	if !ok {
		return ErrNotStreaming
	}
	lr.cancel()
	return nil
}

// Shutdown refuses new runs, cancels live ones and waits for them to record
// their outcome or for ctx to expire.
func (s *Service) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.draining = true
	s.mu.Unlock()
	s.stopRuns()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
