package runs

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/onnwee/nbody-barneshut/backend/internal/cache"
	"github.com/onnwee/nbody-barneshut/backend/internal/nbody"
	"github.com/onnwee/nbody-barneshut/backend/internal/simulation"
	"github.com/onnwee/nbody-barneshut/backend/internal/store"
)

func newTestService(t *testing.T, params nbody.Params, limits Limits) *Service {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "runs.db"))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	svc := NewService(st, cache.NewMockCache(), params, nbody.DefaultSeed, limits)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = svc.Shutdown(ctx)
		st.Close()
	})
	return svc
}

func defaultLimits() Limits {
	return Limits{MaxParticles: 1000, MaxSteps: 1000, MaxConcurrent: 2, FrameEvery: 1, CacheTTL: time.Minute}
}

func waitDone(t *testing.T, svc *Service, id string) *store.Run {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		r, err := svc.Get(context.Background(), id)
		if err != nil {
			t.Fatalf("Get(%s): %v", id, err)
		}
		if r.Status.Done() {
			return r
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("run %s did not finish", id)
	return nil
}

// holdSlots occupies every execution slot until the returned func is called.
func holdSlots(svc *Service) func() {
	for i := 0; i < cap(svc.slots); i++ {
		svc.slots <- struct{}{}
	}
	return func() {
		for i := 0; i < cap(svc.slots); i++ {
			<-svc.slots
		}
	}
}

func ptr[T any](v T) *T { return &v }

func TestSubmitValidation(t *testing.T) {
	svc := newTestService(t, nbody.DefaultParams(), defaultLimits())

	tests := []struct {
		name  string
		req   Request
		field string
	}{
		{"zero particles", Request{Particles: 0, Steps: 1}, "particles"},
		{"too many particles", Request{Particles: 1001, Steps: 1}, "particles"},
		{"negative steps", Request{Particles: 1, Steps: -1}, "steps"},
		{"too many steps", Request{Particles: 1, Steps: 1001}, "steps"},
		{"unknown algorithm", Request{Particles: 1, Steps: 1, Algorithm: "fmm"}, "algorithm"},
		{"negative theta", Request{Particles: 1, Steps: 1, Theta: ptr(-0.5)}, "theta"},
		{"NaN theta", Request{Particles: 1, Steps: 1, Theta: ptr(math.NaN())}, "theta"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Submit(context.Background(), tt.req)
			if !errors.Is(err, ErrInvalidRequest) {
				t.Fatalf("Submit() error = %v, want ErrInvalidRequest", err)
			}
			var fe *FieldError
			if !errors.As(err, &fe) || fe.Field != tt.field {
				t.Errorf("Submit() field = %v, want %s", err, tt.field)
			}
		})
	}
}

func TestSubmitMisconfiguredParams(t *testing.T) {
	params := nbody.DefaultParams()
	params.DT = 0
	svc := newTestService(t, params, defaultLimits())

	_, err := svc.Submit(context.Background(), Request{Particles: 1, Steps: 1, Theta: ptr(0.3)})
	if !errors.Is(err, nbody.ErrInvalidParams) {
		t.Fatalf("Submit() error = %v, want ErrInvalidParams", err)
	}
	if errors.Is(err, ErrInvalidRequest) {
		t.Errorf("server misconfiguration reported as a bad request: %v", err)
	}
}

func TestSubmitRunsToCompletion(t *testing.T) {
	svc := newTestService(t, nbody.DefaultParams(), defaultLimits())
	req := Request{Particles: 20, Steps: 5}

	run, err := svc.Submit(context.Background(), req)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if run.Status != store.StatusQueued || run.Cached {
		t.Errorf("submitted run = %+v, want queued and uncached", run)
	}
	if run.Algorithm != string(nbody.BarnesHut) {
		t.Errorf("algorithm = %q, want default barnes-hut", run.Algorithm)
	}

	got := waitDone(t, svc, run.ID)
	if got.Status != store.StatusCompleted {
		t.Fatalf("status = %s (%s), want completed", got.Status, got.Error)
	}

	spec, err := svc.Spec(req)
	if err != nil {
		t.Fatal(err)
	}
	want, err := simulation.Run(context.Background(), spec)
	if err != nil {
		t.Fatal(err)
	}
	if got.FinalX != want.Final.X || got.FinalY != want.Final.Y {
		t.Errorf("final = (%v, %v), want (%v, %v)", got.FinalX, got.FinalY, want.Final.X, want.Final.Y)
	}
}

func TestSubmitServesCachedResult(t *testing.T) {
	svc := newTestService(t, nbody.DefaultParams(), defaultLimits())
	req := Request{Particles: 10, Steps: 3, Seed: ptr(uint64(7))}

	first, err := svc.Submit(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	done := waitDone(t, svc, first.ID)

	second, err := svc.Submit(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	if !second.Cached || second.Status != store.StatusCompleted {
		t.Fatalf("second run = %+v, want cached and completed", second)
	}
	if second.FinalX != done.FinalX || second.FinalY != done.FinalY {
		t.Errorf("cached final differs from computed final")
	}

	stored, err := svc.Get(context.Background(), second.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !stored.Cached || stored.Status != store.StatusCompleted {
		t.Errorf("stored cached run = %+v", stored)
	}
}

func TestSubscribeStreamsFrames(t *testing.T) {
	svc := newTestService(t, nbody.DefaultParams(), defaultLimits())
	release := holdSlots(svc)

	run, err := svc.Submit(context.Background(), Request{Particles: 8, Steps: 5})
	if err != nil {
		release()
		t.Fatal(err)
	}
	sub, err := svc.Subscribe(run.ID)
	release()
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer sub.Close()

	var frames []Frame
	var last Message
	for msg := range sub.C {
		if !msg.Binary {
			last = msg
			continue
		}
		var f Frame
		if err := msgpack.Unmarshal(msg.Data, &f); err != nil {
			t.Fatalf("decode frame: %v", err)
		}
		frames = append(frames, f)
	}

	if len(frames) != 6 {
		t.Fatalf("got %d frames, want 6", len(frames))
	}
	for i, f := range frames {
		if f.Step != i || f.RunID != run.ID || len(f.Positions) != 16 {
			t.Errorf("frame %d = step %d run %s with %d positions", i, f.Step, f.RunID, len(f.Positions))
		}
	}

	var done DoneMessage
	if err := json.Unmarshal(last.Data, &done); err != nil {
		t.Fatalf("decode done message %q: %v", last.Data, err)
	}
	if done.Type != "done" || done.Run == nil || done.Run.Status != store.StatusCompleted {
		t.Errorf("done message = %s", last.Data)
	}
	// final location is the last particle after the last step
	if lastPos := frames[5].Positions[14:]; done.Run.FinalX != lastPos[0] || done.Run.FinalY != lastPos[1] {
		t.Errorf("done final = (%v, %v), last frame = %v", done.Run.FinalX, done.Run.FinalY, lastPos)
	}
}

func TestSubscribeUnknownRun(t *testing.T) {
	svc := newTestService(t, nbody.DefaultParams(), defaultLimits())
	if _, err := svc.Subscribe("missing"); !errors.Is(err, ErrNotStreaming) {
		t.Errorf("Subscribe() = %v, want ErrNotStreaming", err)
	}
}

func TestCancelQueuedRun(t *testing.T) {
	svc := newTestService(t, nbody.DefaultParams(), defaultLimits())
	release := holdSlots(svc)
	defer release()

	run, err := svc.Submit(context.Background(), Request{Particles: 5, Steps: 10})
	if err != nil {
		t.Fatal(err)
	}
	if err := svc.Cancel(run.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	got := waitDone(t, svc, run.ID)
	if got.Status != store.StatusCanceled {
		t.Errorf("status = %s, want canceled", got.Status)
	}
	if err := svc.Cancel(run.ID); !errors.Is(err, ErrNotStreaming) {
		t.Errorf("second Cancel() = %v, want ErrNotStreaming", err)
	}
}

func TestSubmitBusy(t *testing.T) {
	limits := defaultLimits()
	limits.MaxConcurrent = 1
	svc := newTestService(t, nbody.DefaultParams(), limits)
	release := holdSlots(svc)
	defer release()

	var ids []string
	for i := 0; i < queueFactor; i++ {
		run, err := svc.Submit(context.Background(), Request{Particles: 2, Steps: 1, Seed: ptr(uint64(i + 1))})
		if err != nil {
			t.Fatalf("Submit %d: %v", i, err)
		}
		ids = append(ids, run.ID)
	}
	if _, err := svc.Submit(context.Background(), Request{Particles: 2, Steps: 1}); !errors.Is(err, ErrBusy) {
		t.Fatalf("Submit over capacity = %v, want ErrBusy", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := svc.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	for _, id := range ids {
		if r := waitDone(t, svc, id); r.Status != store.StatusCanceled {
			t.Errorf("run %s status = %s, want canceled", id, r.Status)
		}
	}
	if _, err := svc.Submit(context.Background(), Request{Particles: 2, Steps: 1, Seed: ptr(uint64(99))}); !errors.Is(err, ErrShuttingDown) {
		t.Errorf("Submit after Shutdown = %v, want ErrShuttingDown", err)
	}
}

func TestDivergedRunFails(t *testing.T) {
	params := nbody.DefaultParams()
	params.G = math.Inf(1)
	svc := newTestService(t, params, defaultLimits())
	release := holdSlots(svc)

	run, err := svc.Submit(context.Background(), Request{Particles: 10, Steps: 1})
	if err != nil {
		release()
		t.Fatal(err)
	}
	sub, err := svc.Subscribe(run.ID)
	release()
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer sub.Close()

	var last Message
	for msg := range sub.C {
		if !msg.Binary {
			last = msg
		}
	}
	var done DoneMessage
	if err := json.Unmarshal(last.Data, &done); err != nil {
		t.Fatalf("decode done message %q: %v", last.Data, err)
	}
	if done.Run == nil || done.Run.Status != store.StatusFailed {
		t.Errorf("done message = %s, want failed run", last.Data)
	}

	got := waitDone(t, svc, run.ID)
	if got.Status != store.StatusFailed || got.Error == "" {
		t.Errorf("run = %+v, want failed with an error", got)
	}
	if got.FinalX != 0 || got.FinalY != 0 {
		t.Errorf("final = (%v, %v), want zero for a diverged run", got.FinalX, got.FinalY)
	}
}
