package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

const healthProbeTimeout = 5 * time.Second

type healthResponse struct {
	Status   string `json:"status"`
	Store    string `json:"store"`
	Backend  string `json:"backend"`
	Sessions int    `json:"sessions"`
}

// HandleHealth handles GET /api/health. An unreachable backend degrades the
// service but does not fail the check; a broken store does.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthProbeTimeout)
	defer cancel()

	resp := healthResponse{
		Status:   "ok",
		Store:    "ok",
		Backend:  "ok",
		Sessions: h.registry.Len(),
	}
	status := http.StatusOK

	if err := h.repo.Ping(ctx); err != nil {
		slog.Error("Store health check failed", "error", err)
		resp.Store = "unavailable"
		resp.Status = "error"
		status = http.StatusServiceUnavailable
	}

	if h.probe != nil {
		if _, err := h.probe.Health(ctx); err != nil {
			slog.Warn("Backend health check failed", "error", err)
			resp.Backend = "unreachable"
			if resp.Status == "ok" {
				resp.Status = "degraded"
			}
		}
	}

	JSON(w, status, resp)
}
