package api

import (
	"net/http"
	"time"
)

// Health возвращает состояние сервиса.
// GET /healthz
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, HealthResponse{
		Status:     "ok",
		Uptime:     time.Since(h.started).Round(time.Second).String(),
		ActiveRuns: h.engines.ActiveCount(),
		History:    h.history.Summary(),
		StepTypes:  h.engines.StepTypes(),
		Workflows:  h.catalog.Len(),
	})
}
