package config

import (
	"os"
	"strings"
	"time"

	"github.com/onnwee/nbody-barneshut/backend/internal/nbody"
	"github.com/onnwee/nbody-barneshut/backend/internal/utils"
)

// Config holds application configuration derived from environment variables.
type Config struct {
	// Simulation parameters
	G         float64
	DT        float64
	Theta     float64
	Softening float64
	Padding   float64
	MaxDepth  int
	MinExtent float64
	Workers   int    // parallel workers per step (0 = GOMAXPROCS)
	Seed      uint64 // initial-state generator seed
	Algorithm string // barnes-hut or brute-force
	// Server
	Port string
	// Run service
	RunsDBPath        string // sqlite file for run summaries
	RunsMaxConcurrent int    // runs executing at once
	RunsMaxParticles  int
	RunsMaxSteps      int
	RunsFrameEvery    int // steps between websocket frames
	// Result cache
	CacheMaxSizeMB  int
	CacheMaxEntries int
	CacheTTL        time.Duration
	// Security settings
	RateLimitGlobal      float64  // requests per second globally
	RateLimitGlobalBurst int      // burst size for global rate limit
	RateLimitPerIP       float64  // requests per second per IP
	RateLimitPerIPBurst  int      // burst size for per-IP rate limit
	EnableRateLimit      bool     // enable rate limiting middleware
	CORSAllowedOrigins   []string // browser origins for CORS and websocket upgrades
	// Observability settings
	LogLevel          string  // log level: debug, info, warn, error
	OTELEnabled       bool    // enable OpenTelemetry tracing
	OTELEndpoint      string  // OpenTelemetry collector endpoint
	OTELSampleRate    float64 // trace sampling rate (0.0 to 1.0)
	SentryDSN         string  // Sentry DSN for error reporting
	SentryEnvironment string  // Sentry environment (dev, staging, production)
	SentryRelease     string  // Sentry release version
	SentrySampleRate  float64 // Sentry error sampling rate (0.0 to 1.0)
}

var cached *Config

// Load reads env vars once and caches them.
func Load() *Config {
	if cached != nil {
		return cached
	}
	cached = &Config{
		G:         utils.GetEnvAsFloat("NBODY_G", nbody.DefaultG),
		DT:        utils.GetEnvAsFloat("NBODY_DT", nbody.DefaultDT),
		Theta:     utils.GetEnvAsFloat("NBODY_THETA", nbody.DefaultTheta),
		Softening: utils.GetEnvAsFloat("NBODY_SOFTENING", nbody.DefaultSoftening),
		Padding:   utils.GetEnvAsFloat("NBODY_PADDING", nbody.DefaultPadding),
		MaxDepth:  utils.GetEnvAsInt("NBODY_MAX_DEPTH", nbody.DefaultMaxDepth),
		MinExtent: utils.GetEnvAsFloat("NBODY_MIN_EXTENT", nbody.DefaultMinExtent),
		Workers:   utils.GetEnvAsInt("NBODY_WORKERS", 0),
		Seed:      utils.GetEnvAsUint64("NBODY_SEED", nbody.DefaultSeed),
		Algorithm: strings.ToLower(strings.TrimSpace(os.Getenv("NBODY_ALGORITHM"))),
		Port:      strings.TrimSpace(os.Getenv("PORT")),
		// Run service limits keep a single request from pinning the host
		RunsDBPath:        strings.TrimSpace(os.Getenv("RUNS_DB_PATH")),
		RunsMaxConcurrent: utils.GetEnvAsInt("RUNS_MAX_CONCURRENT", 2),
		RunsMaxParticles:  utils.GetEnvAsInt("RUNS_MAX_PARTICLES", 20000),
		RunsMaxSteps:      utils.GetEnvAsInt("RUNS_MAX_STEPS", 10000),
		RunsFrameEvery:    utils.GetEnvAsInt("RUNS_FRAME_EVERY", 10),
		CacheMaxSizeMB:    utils.GetEnvAsInt("CACHE_MAX_SIZE_MB", 64),
		CacheMaxEntries:   utils.GetEnvAsInt("CACHE_MAX_ENTRIES", 1000),
		CacheTTL:          utils.GetEnvAsSeconds("CACHE_TTL_SECONDS", time.Hour),
		// Security settings with sensible defaults
		RateLimitGlobal:      utils.GetEnvAsFloat("RATE_LIMIT_GLOBAL", 100.0),
		RateLimitGlobalBurst: utils.GetEnvAsInt("RATE_LIMIT_GLOBAL_BURST", 200),
		RateLimitPerIP:       utils.GetEnvAsFloat("RATE_LIMIT_PER_IP", 10.0),
		RateLimitPerIPBurst:  utils.GetEnvAsInt("RATE_LIMIT_PER_IP_BURST", 20),
		EnableRateLimit:      utils.GetEnvAsBool("ENABLE_RATE_LIMIT", true),
		// Observability settings
		LogLevel:          strings.ToLower(strings.TrimSpace(os.Getenv("LOG_LEVEL"))),
		OTELEnabled:       utils.GetEnvAsBool("OTEL_ENABLED", false),
		OTELEndpoint:      strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")),
		OTELSampleRate:    utils.GetEnvAsFloat("OTEL_TRACE_SAMPLE_RATE", 0.1),
		SentryDSN:         strings.TrimSpace(os.Getenv("SENTRY_DSN")),
		SentryEnvironment: strings.TrimSpace(os.Getenv("SENTRY_ENVIRONMENT")),
		SentryRelease:     strings.TrimSpace(os.Getenv("SENTRY_RELEASE")),
		SentrySampleRate:  utils.GetEnvAsFloat("SENTRY_SAMPLE_RATE", 1.0),
	}
	if cached.Algorithm == "" {
		cached.Algorithm = string(nbody.BarnesHut)
	}
	if cached.Port == "" {
		cached.Port = "8000"
	}
	if cached.RunsDBPath == "" {
		cached.RunsDBPath = "runs.db"
	}
	if cached.RunsFrameEvery < 1 {
		cached.RunsFrameEvery = 1
	}
	if cached.LogLevel == "" {
		cached.LogLevel = "info"
	}
	if cached.SentryEnvironment == "" {
		if env := os.Getenv("ENV"); env != "" {
			cached.SentryEnvironment = env
		} else {
			cached.SentryEnvironment = "development"
		}
	}

	cached.CORSAllowedOrigins = parseOrigins(os.Getenv("CORS_ALLOWED_ORIGINS"))

	return cached
}

// parseOrigins splits a comma-separated origin list, falling back to the
// local viewer dev servers.
func parseOrigins(raw string) []string {
	var origins []string
	for _, o := range strings.Split(raw, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	if len(origins) == 0 {
		return []string{"http://localhost:5173", "http://localhost:3000"}
	}
	return origins
}

// ResetForTest clears cached config; for use in tests only.
func ResetForTest() { cached = nil }

// SimulationParams maps the simulation settings onto validated core parameters.
// A zero worker count keeps the core default.
func (c *Config) SimulationParams() (nbody.Params, error) {
	p := nbody.DefaultParams()
	p.G = c.G
	p.DT = c.DT
	p.Theta = c.Theta
	p.Softening = c.Softening
	p.Padding = c.Padding
	p.MaxDepth = c.MaxDepth
	p.MinExtent = c.MinExtent
	if c.Workers > 0 {
		p.Workers = c.Workers
	}
	if err := p.Validate(); err != nil {
		return nbody.Params{}, err
	}
	return p, nil
}

// SimulationAlgorithm parses the configured force algorithm.
func (c *Config) SimulationAlgorithm() (nbody.Algorithm, error) {
	return nbody.ParseAlgorithm(c.Algorithm)
}
