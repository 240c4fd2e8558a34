package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/onnwee/nbody-barneshut/backend/internal/config"
	"github.com/onnwee/nbody-barneshut/backend/internal/logger"
	"github.com/onnwee/nbody-barneshut/backend/internal/simulation"
	"github.com/onnwee/nbody-barneshut/backend/internal/tracing"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	logger.InitTo(os.Stderr, cfg.LogLevel)

	os.Exit(realMain(cfg, os.Args, os.Stdout, tracing.Init))
}

type tracingInit func(serviceName string, opts tracing.Options) (func(context.Context) error, error)

// realMain runs the CLI with tracing and signal handling set up. Deferred
// cleanup finishes before main exits with the returned code.
func realMain(cfg *config.Config, args []string, stdout io.Writer, initTracing tracingInit) int {
	shutdownTracing, err := initTracing("nbody-cli", tracing.Options{
		Enabled:    cfg.OTELEnabled,
		Endpoint:   cfg.OTELEndpoint,
		SampleRate: cfg.OTELSampleRate,
	})
	if err != nil {
		logger.Warn("Failed to initialize tracing", "error", err)
	} else {
		defer shutdownTracing(context.Background())
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return run(ctx, cfg, args, stdout)
}

// run executes the CLI and returns the process exit code. Only the usage
// text and the result line go to stdout.
func run(ctx context.Context, cfg *config.Config, args []string, stdout io.Writer) int {
	prog := "nbody"
	if len(args) > 0 {
		prog = filepath.Base(args[0])
	}
	usage := func() int {
		fmt.Fprintf(stdout, "Usage: %s <nplanets> <timesteps>\n", prog)
		return 1
	}
	if len(args) < 3 {
		return usage()
	}

	particles, err := strconv.Atoi(args[1])
	if err != nil || particles < 1 {
		return usage()
	}
	steps, err := strconv.Atoi(args[2])
	if err != nil || steps < 0 {
		return usage()
	}

	params, err := cfg.SimulationParams()
	if err != nil {
		logger.Error("Invalid simulation parameters", "error", err)
		return 1
	}
	alg, err := cfg.SimulationAlgorithm()
	if err != nil {
		logger.Error("Invalid algorithm", "error", err)
		return 1
	}

	spec := simulation.Spec{
		Particles: particles,
		Steps:     steps,
		Seed:      cfg.Seed,
		Algorithm: alg,
		Params:    params,
	}
	res, err := simulation.Run(ctx, spec)
	switch {
	case errors.Is(err, simulation.ErrDiverged):
		// The state is still reported, NaN and all
		logger.Warn("Simulation diverged", "error", err)
	case err != nil:
		logger.Error("Simulation failed", "error", err)
		return 1
	}

	fmt.Fprintln(stdout, simulation.Summary(res))
	return 0
}
