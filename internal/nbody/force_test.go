package nbody

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/spatial/barneshut"
	"gonum.org/v1/gonum/spatial/r2"
)

func TestAccelerationSelfExcluded(t *testing.T) {
	ps := []Particle{{Mass: 5, Pos: r2.Vec{}}}
	tree := mustBuild(t, ps, DefaultMaxDepth)
	tree.Aggregate()

	if acc := tree.Acceleration(0, DefaultParams()); acc != (r2.Vec{}) {
		t.Errorf("acceleration of a lone particle = %v, want zero", acc)
	}
}

func TestAccelerationTwoBodies(t *testing.T) {
	ps := []Particle{
		{Mass: 1, Pos: r2.Vec{X: -1, Y: 0}},
		{Mass: 1, Pos: r2.Vec{X: 1, Y: 0}},
	}
	p := DefaultParams()
	p.G = 1
	tree := mustBuild(t, ps, DefaultMaxDepth)
	tree.Aggregate()

	a0 := tree.Acceleration(0, p)
	a1 := tree.Acceleration(1, p)

	distSqr := 4 + p.Softening
	want := 2 / (distSqr * math.Sqrt(distSqr))
	if !closeTo(a0.X, want, 1e-15) || a0.Y != 0 {
		t.Errorf("a0 = %v, want (%v, 0)", a0, want)
	}
	if a1.X != -a0.X || a1.Y != -a0.Y {
		t.Errorf("accelerations are not opposite: %v and %v", a0, a1)
	}
}

func TestAccelerationConvergesToDirectSum(t *testing.T) {
	ps := []Particle{
		{Mass: 1.0, Pos: r2.Vec{X: 0, Y: 0}},
		{Mass: 2.5, Pos: r2.Vec{X: 3, Y: 1}},
		{Mass: 0.7, Pos: r2.Vec{X: -2, Y: 4}},
		{Mass: 4.2, Pos: r2.Vec{X: 5, Y: -3}},
		{Mass: 1.3, Pos: r2.Vec{X: 3.5, Y: 1.2}},
	}
	tree := mustBuild(t, ps, DefaultMaxDepth)
	tree.Aggregate()

	maxErr := func(theta float64) float64 {
		p := DefaultParams()
		p.Theta = theta
		var worst float64
		for i := range ps {
			got := tree.Acceleration(i, p)
			want := DirectAcceleration(ps, i, p)
			e := r2.Norm(r2.Sub(got, want)) / r2.Norm(want)
			worst = math.Max(worst, e)
		}
		return worst
	}

	coarse := maxErr(2.0)
	fine := maxErr(0.01)
	if fine > 1e-12 {
		t.Errorf("relative error at theta=0.01 is %g, want below 1e-12", fine)
	}
	if coarse < fine {
		t.Errorf("error grew as theta shrank: %g at 2.0, %g at 0.01", coarse, fine)
	}
	if exact := maxErr(0); exact > 1e-12 {
		t.Errorf("relative error at theta=0 is %g", exact)
	}
}

func TestAccelerationConvergesOnLargeSystem(t *testing.T) {
	ps := NewRandomSystem(300, NewXorshift(11))
	tree := mustBuild(t, ps, DefaultMaxDepth)
	tree.Aggregate()

	meanErr := func(theta float64) float64 {
		p := DefaultParams()
		p.Theta = theta
		var sum float64
		for i := range ps {
			want := DirectAcceleration(ps, i, p)
			sum += r2.Norm(r2.Sub(tree.Acceleration(i, p), want)) / r2.Norm(want)
		}
		return sum / float64(len(ps))
	}

	coarse := meanErr(1.0)
	fine := meanErr(0.01)
	if fine >= coarse {
		t.Errorf("mean error did not shrink with theta: %g at 1.0, %g at 0.01", coarse, fine)
	}
	if fine > 1e-3 {
		t.Errorf("mean error at theta=0.01 is %g", fine)
	}
}

func TestAccelerationCoincidentMembers(t *testing.T) {
	p := r2.Vec{X: 1, Y: 1}
	ps := []Particle{
		{Mass: 1, Pos: p},
		{Mass: 1, Pos: p},
		{Mass: 2, Pos: r2.Vec{X: -3, Y: 1}},
	}
	params := DefaultParams()
	params.MaxDepth = 6
	tree := mustBuild(t, ps, params.MaxDepth)
	tree.Aggregate()

	if tree.Stats().MergedLeaves != 1 {
		t.Fatalf("expected the coincident pair to share a leaf")
	}

	for i := 0; i < 2; i++ {
		got := tree.Acceleration(i, params)
		want := DirectAcceleration(ps, i, params)
		if math.IsNaN(got.X) || math.IsInf(got.X, 0) {
			t.Fatalf("particle %d: acceleration %v is not finite", i, got)
		}
		if !closeTo(got.X, want.X, 1e-12) || !closeTo(got.Y, want.Y, 1e-12) {
			t.Errorf("particle %d: acceleration %v, want %v", i, got, want)
		}
	}

	// The third particle sees the pair as one aggregate of mass 2.
	got := tree.Acceleration(2, params)
	want := DirectAcceleration(ps, 2, params)
	if !closeTo(got.X, want.X, 1e-12) || !closeTo(got.Y, want.Y, 1e-12) {
		t.Errorf("particle 2: acceleration %v, want %v", got, want)
	}
}

func TestAccelerationRequiresAggregate(t *testing.T) {
	tree := mustBuild(t, particlesAt(r2.Vec{}, r2.Vec{X: 1}), DefaultMaxDepth)
	defer func() {
		if recover() == nil {
			t.Error("expected a panic before Aggregate")
		}
	}()
	tree.Acceleration(0, DefaultParams())
}

type gonumBody struct {
	pos  r2.Vec
	mass float64
}

func (b *gonumBody) Coord2() r2.Vec { return b.pos }
func (b *gonumBody) Mass() float64  { return b.mass }

func TestAccelerationMatchesGonum(t *testing.T) {
	ps := []Particle{
		{Mass: 3, Pos: r2.Vec{X: 0, Y: 0}},
		{Mass: 1, Pos: r2.Vec{X: 10, Y: 2}},
		{Mass: 6, Pos: r2.Vec{X: -8, Y: 5}},
		{Mass: 2, Pos: r2.Vec{X: 4, Y: -9}},
		{Mass: 5, Pos: r2.Vec{X: -6, Y: -6}},
		{Mass: 4, Pos: r2.Vec{X: 7, Y: 7}},
	}
	bodies := make([]barneshut.Particle2, len(ps))
	for i, p := range ps {
		bodies[i] = &gonumBody{pos: p.Pos, mass: p.Mass}
	}
	plane, err := barneshut.NewPlane(bodies)
	if err != nil {
		t.Fatalf("NewPlane: %v", err)
	}

	params := DefaultParams()
	params.Theta = 0.01
	tree := mustBuild(t, ps, DefaultMaxDepth)
	tree.Aggregate()

	for i, p := range ps {
		// gonum reports the unsoftened force with G = 1.
		force := plane.ForceOn(bodies[i], 0, barneshut.Gravity2)
		want := r2.Scale(params.G/p.Mass, force)
		got := tree.Acceleration(i, params)
		if e := r2.Norm(r2.Sub(got, want)) / r2.Norm(want); e > 1e-4 {
			t.Errorf("particle %d: acceleration %v, gonum %v (relative error %g)", i, got, want, e)
		}
	}
}

func BenchmarkAcceleration(b *testing.B) {
	ps := NewRandomSystem(10000, NewXorshift(DefaultSeed))
	tree := mustBuild(b, ps, DefaultMaxDepth)
	tree.Aggregate()
	p := DefaultParams()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		tree.Acceleration(i%len(ps), p)
	}
}
