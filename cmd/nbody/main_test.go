package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"regexp"
	"testing"

	"github.com/onnwee/nbody-barneshut/backend/internal/config"
	"github.com/onnwee/nbody-barneshut/backend/internal/logger"
	"github.com/onnwee/nbody-barneshut/backend/internal/tracing"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	config.ResetForTest()
	t.Cleanup(config.ResetForTest)
	logger.InitTo(io.Discard, "error")
	return config.Load()
}

func TestRunUsage(t *testing.T) {
	cfg := testConfig(t)
	tests := []struct {
		name string
		args []string
	}{
		{"no args", []string{"nbody"}},
		{"one arg", []string{"nbody", "10"}},
		{"bad particles", []string{"nbody", "ten", "5"}},
		{"zero particles", []string{"nbody", "0", "5"}},
		{"negative steps", []string{"nbody", "10", "-1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			if code := run(context.Background(), cfg, tt.args, &out); code != 1 {
				t.Errorf("exit code = %d, want 1", code)
			}
			if got, want := out.String(), "Usage: nbody <nplanets> <timesteps>\n"; got != want {
				t.Errorf("stdout = %q, want %q", got, want)
			}
		})
	}
}

var summaryLine = regexp.MustCompile(`^Total time to run simulation \d+\.\d{6} seconds, final location -?\d+\.\d{6} -?\d+\.\d{6}\n$`)

func TestRunPrintsSummary(t *testing.T) {
	cfg := testConfig(t)
	for _, alg := range []string{"barnes-hut", "brute-force"} {
		t.Run(alg, func(t *testing.T) {
			c := *cfg
			c.Algorithm = alg
			var out bytes.Buffer
			if code := run(context.Background(), &c, []string{"/usr/bin/nbody", "50", "10"}, &out); code != 0 {
				t.Fatalf("exit code = %d", code)
			}
			if !summaryLine.MatchString(out.String()) {
				t.Errorf("stdout = %q", out.String())
			}
		})
	}
}

func TestRunZeroStepsReportsInitialState(t *testing.T) {
	cfg := testConfig(t)
	var a, b bytes.Buffer
	run(context.Background(), cfg, []string{"nbody", "3", "0"}, &a)
	run(context.Background(), cfg, []string{"nbody", "3", "0"}, &b)
	// Elapsed differs between runs; the location must not
	loc := regexp.MustCompile(`final location .*`)
	if loc.FindString(a.String()) != loc.FindString(b.String()) {
		t.Errorf("initial state differs between runs: %q vs %q", a.String(), b.String())
	}
}

func TestRunBadAlgorithm(t *testing.T) {
	cfg := testConfig(t)
	c := *cfg
	c.Algorithm = "fmm"
	var out bytes.Buffer
	if code := run(context.Background(), &c, []string{"nbody", "5", "1"}, &out); code != 1 {
		t.Errorf("exit code = %d, want 1", code)
	}
	if out.Len() != 0 {
		t.Errorf("stdout = %q, want empty", out.String())
	}
}

func TestRealMainShutsDownTracing(t *testing.T) {
	cfg := testConfig(t)
	tests := []struct {
		name string
		args []string
		code int
	}{
		{"usage error", []string{"nbody"}, 1},
		{"success", []string{"nbody", "4", "2"}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var service string
			shutdowns := 0
			initTracing := func(name string, opts tracing.Options) (func(context.Context) error, error) {
				service = name
				return func(context.Context) error {
					shutdowns++
					return nil
				}, nil
			}

			var out bytes.Buffer
			if code := realMain(cfg, tt.args, &out, initTracing); code != tt.code {
				t.Errorf("exit code = %d, want %d", code, tt.code)
			}
			if shutdowns != 1 {
				t.Errorf("tracing shut down %d times, want 1", shutdowns)
			}
			if service != "nbody-cli" {
				t.Errorf("service name = %q", service)
			}
		})
	}
}

func TestRealMainTracingInitError(t *testing.T) {
	cfg := testConfig(t)
	initTracing := func(string, tracing.Options) (func(context.Context) error, error) {
		return nil, errors.New("collector unreachable")
	}
	var out bytes.Buffer
	if code := realMain(cfg, []string{"nbody"}, &out, initTracing); code != 1 {
		t.Errorf("exit code = %d, want 1", code)
	}
}
