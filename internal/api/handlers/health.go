package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/onnwee/nbody-barneshut/backend/internal/apierr"
	"github.com/onnwee/nbody-barneshut/backend/internal/logger"
)

// Health returns a simple JSON payload to indicate the API is alive.
func Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// Pinger is implemented by the run ledger.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Ready reports whether the run ledger answers within a second.
func Ready(p Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), time.Second)
		defer cancel()
		if err := p.Ping(ctx); err != nil {
			logger.WarnContext(r.Context(), "Readiness check failed", "error", err)
			apierr.WriteErrorWithContext(w, r, apierr.SystemUnavailable("Run store unavailable"))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ready"})
	}
}
