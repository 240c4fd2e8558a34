package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/onnwee/nbody-barneshut/backend/internal/api/handlers"
	"github.com/onnwee/nbody-barneshut/backend/internal/apierr"
	"github.com/onnwee/nbody-barneshut/backend/internal/middleware"
)

// Deps are the services the router exposes. RateLimiter may be nil to
// disable rate limiting. AllowedOrigins feeds both CORS and the websocket
// origin check; nil uses the local dev servers.
type Deps struct {
	Runs           handlers.RunService
	Ledger         handlers.Pinger
	RateLimiter    *middleware.RateLimiter
	AllowedOrigins []string
}

func NewRouter(d Deps) *mux.Router {
	cors := middleware.DefaultCORSConfig()
	if len(d.AllowedOrigins) > 0 {
		cors = middleware.NewCORSConfig(d.AllowedOrigins)
	}

	r := mux.NewRouter()
	r.Use(middleware.RequestID, middleware.RecoverWithSentry, middleware.Instrument,
		middleware.SecurityHeaders, middleware.CORS(cors), middleware.Compress)
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		apierr.WriteErrorWithContext(w, req, apierr.ResourceNotFound("Route"))
	})

	// Preflight; the CORS middleware answers before this handler runs
	r.PathPrefix("/").Methods("OPTIONS").HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	// Health
	r.HandleFunc("/health", handlers.Health).Methods("GET")
	r.HandleFunc("/ready", handlers.Ready(d.Ledger)).Methods("GET")

	// Metrics; compression is left to the middleware
	r.Handle("/metrics", promhttp.HandlerFor(prometheus.DefaultGatherer, promhttp.HandlerOpts{
		DisableCompression: true,
	})).Methods("GET")

	// Runs
	runs := handlers.NewRunHandler(d.Runs, cors.AllowedOrigins)
	apiRouter := r.PathPrefix("/api").Subrouter()
	if d.RateLimiter != nil {
		apiRouter.Use(d.RateLimiter.Limit)
	}
	apiRouter.HandleFunc("/runs", runs.CreateRun).Methods("POST")
	apiRouter.HandleFunc("/runs", runs.ListRuns).Methods("GET")
	apiRouter.HandleFunc("/runs/{id}", runs.GetRun).Methods("GET")
	apiRouter.HandleFunc("/runs/{id}", runs.CancelRun).Methods("DELETE")
	apiRouter.HandleFunc("/runs/{id}/ws", runs.StreamRun).Methods("GET")

	return r
}
