package handler

import (
	"net/http"

	"github.com/sandeepkv93/weapp-session-service/internal/health"
	"github.com/sandeepkv93/weapp-session-service/internal/http/response"
)

type HealthHandler struct {
	readiness *health.ProbeRunner
}

func NewHealthHandler(readiness *health.ProbeRunner) *HealthHandler {
	return &HealthHandler{readiness: readiness}
}

func (h *HealthHandler) Live(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.readiness == nil {
		response.JSON(w, r, http.StatusOK, map[string]any{"status": "ready", "checks": []any{}})
		return
	}
	ready, results := h.readiness.Ready(r.Context())
	if ready {
		response.JSON(w, r, http.StatusOK, map[string]any{"status": "ready", "checks": results})
		return
	}
	response.Error(w, r, http.StatusServiceUnavailable, "DEPENDENCY_UNREADY", "dependencies are not ready", map[string]any{"checks": results})
}
