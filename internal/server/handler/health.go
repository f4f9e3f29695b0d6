package handler

import (
	"net/http"
	"time"
)

// HealthHandler serves liveness for the settlement API. External cron
// triggers and the load balancer both poll it before firing sweeps.
type HealthHandler struct {
	started time.Time
}

// NewHealthHandler creates a HealthHandler anchored at process start.
func NewHealthHandler() *HealthHandler {
	return &HealthHandler{started: time.Now().UTC()}
}

// HealthCheck reports liveness and process uptime.
// GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"uptime":    time.Since(h.started).Round(time.Second).String(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
