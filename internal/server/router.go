package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"
)

// StatusReporter exposes the reconciliation loop's self-reported state.
type StatusReporter interface {
	Paused() bool
}

// RouterDependencies collects handler dependencies.
type RouterDependencies struct {
	Health HealthService
	Recon  StatusReporter
}

// NewRouter wires the operational HTTP routes: a readiness probe and a status
// endpoint reporting whether the reconciliation loop paused itself.
func NewRouter(logger *slog.Logger, deps RouterDependencies) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		payload := map[string]any{
			"status": "ok",
		}

		if deps.Health != nil {
			if err := deps.Health.Probe(ctx); err != nil {
				logger.Error("health probe failed", "error", err)
				status = http.StatusServiceUnavailable
				payload["status"] = "degraded"
				payload["error"] = err.Error()
			}
		}

		respondJSON(w, status, payload)
	})

	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		payload := map[string]any{
			"reconciliation": "running",
		}
		if deps.Recon != nil && deps.Recon.Paused() {
			payload["reconciliation"] = "paused"
		}
		respondJSON(w, http.StatusOK, payload)
	})

	return mux
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
