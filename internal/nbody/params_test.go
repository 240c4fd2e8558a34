package nbody

import (
	"errors"
	"math"
	"testing"
)

func TestDefaultParamsValid(t *testing.T) {
	p := DefaultParams()
	if err := p.Validate(); err != nil {
		t.Fatalf("default params invalid: %v", err)
	}
	if p.G != 6.6743 || p.DT != 0.001 || p.Theta != 0.5 || p.Softening != 0.0001 || p.Padding != 1.1 {
		t.Errorf("unexpected defaults: %+v", p)
	}
	if p.Workers < 1 {
		t.Errorf("workers = %d, want at least 1", p.Workers)
	}
}

func TestParamsValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Params)
	}{
		{"negative G", func(p *Params) { p.G = -1 }},
		{"zero DT", func(p *Params) { p.DT = 0 }},
		{"NaN DT", func(p *Params) { p.DT = math.NaN() }},
		{"negative theta", func(p *Params) { p.Theta = -0.1 }},
		{"zero softening", func(p *Params) { p.Softening = 0 }},
		{"padding below one", func(p *Params) { p.Padding = 0.9 }},
		{"zero depth", func(p *Params) { p.MaxDepth = 0 }},
		{"zero min extent", func(p *Params) { p.MinExtent = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := DefaultParams()
			tt.modify(&p)
			if err := p.Validate(); !errors.Is(err, ErrInvalidParams) {
				t.Errorf("Validate() = %v, want ErrInvalidParams", err)
			}
		})
	}
}

func TestParamsWorkersFloor(t *testing.T) {
	p := DefaultParams()
	p.Workers = 0
	if p.workers() != 1 {
		t.Errorf("workers() = %d, want 1", p.workers())
	}
	if err := p.Validate(); err != nil {
		t.Errorf("zero workers should be accepted and treated as serial: %v", err)
	}
}
