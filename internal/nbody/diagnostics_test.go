package nbody

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/spatial/r2"
)

func TestDiagnostics(t *testing.T) {
	ps := []Particle{
		{Mass: 1, Pos: r2.Vec{X: -1}, Vel: r2.Vec{Y: 2}},
		{Mass: 3, Pos: r2.Vec{X: 1, Y: 4}, Vel: r2.Vec{X: 1}},
	}

	if m := TotalMass(ps); m != 4 {
		t.Errorf("TotalMass = %v, want 4", m)
	}
	if p := Momentum(ps); p != (r2.Vec{X: 3, Y: 2}) {
		t.Errorf("Momentum = %v, want {3 2}", p)
	}
	if c := CenterOfMass(ps); c != (r2.Vec{X: 0.5, Y: 3}) {
		t.Errorf("CenterOfMass = %v, want {0.5 3}", c)
	}
	if e := KineticEnergy(ps); e != 3.5 {
		t.Errorf("KineticEnergy = %v, want 3.5", e)
	}
}

func TestCenterOfMassMassless(t *testing.T) {
	if c := CenterOfMass([]Particle{{Pos: r2.Vec{X: 5, Y: 5}}}); c != (r2.Vec{}) {
		t.Errorf("CenterOfMass of massless system = %v, want origin", c)
	}
}

func TestFinite(t *testing.T) {
	ok := []Particle{{Mass: 1, Pos: r2.Vec{X: 1}}}
	if !Finite(ok) {
		t.Error("finite system reported non-finite")
	}
	for _, bad := range []Particle{
		{Pos: r2.Vec{X: math.NaN()}},
		{Vel: r2.Vec{Y: math.Inf(-1)}},
	} {
		if Finite(append(Clone(ok), bad)) {
			t.Errorf("%+v should be non-finite", bad)
		}
	}
}
