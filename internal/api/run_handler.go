package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/shaiso/stepflow/internal/domain"
	"github.com/shaiso/stepflow/internal/repo"
)

const (
	defaultListLimit = 50
	maxListLimit     = 1000
)

// RunDefinition запускает переданное определение workflow.
// POST /api/v1/runs
func (h *Handler) RunDefinition(w http.ResponseWriter, r *http.Request) {
	var req RunDefinitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	h.run(w, r, req.Workflow, req.Input)
}

// run выполняет workflow синхронно и отдаёт итоговую запись.
// Отмена запроса отменяет run: запись сохраняется со статусом failed.
func (h *Handler) run(w http.ResponseWriter, r *http.Request, def domain.WorkflowDef, input map[string]any) {
	rec, err := h.engines.Run(r.Context(), def, input)
	if rec == nil {
		HandleError(w, h.logger, err)
		return
	}
	if err != nil {
		// run выполнен, не удалось только архивирование
		h.logger.Warn("run finished with store error", "run_id", rec.RunID, "error", err)
	}

	Created(w, rec)
}

// ListRuns возвращает историю runs с фильтрацией.
// GET /api/v1/runs?status=...&workflow=...&limit=...
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	filter := repo.RunFilter{Limit: defaultListLimit}

	if s := r.URL.Query().Get("status"); s != "" {
		status, ok := domain.ParseRunStatus(s)
		if !ok {
			BadRequest(w, "invalid status: "+s)
			return
		}
		filter.Status = status
	}

	filter.WorkflowName = r.URL.Query().Get("workflow")

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit <= 0 {
			BadRequest(w, "invalid limit")
			return
		}
		filter.Limit = min(limit, maxListLimit)
	}

	runs := h.history.List(filter)
	List(w, runs, len(runs))
}

// GetRun возвращает run по ID: сначала из истории, затем из выполняющихся.
// GET /api/v1/runs/{id}
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	rec, err := h.history.Get(id)
	if errors.Is(err, repo.ErrNotFound) {
		if active, activeErr := h.engines.Active(id); activeErr == nil {
			Success(w, active)
			return
		}
	}
	if HandleError(w, h.logger, err) {
		return
	}

	Success(w, rec)
}

// ListActiveRuns возвращает выполняющиеся runs.
// GET /api/v1/runs/active
func (h *Handler) ListActiveRuns(w http.ResponseWriter, r *http.Request) {
	runs := h.engines.ActiveRuns()
	List(w, runs, len(runs))
}

// RunsSummary возвращает агрегаты истории по статусам.
// GET /api/v1/runs/summary
func (h *Handler) RunsSummary(w http.ResponseWriter, r *http.Request) {
	Success(w, h.history.Summary())
}

// decodeOptionalBody разбирает JSON тело, если оно есть.
func decodeOptionalBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	err := json.NewDecoder(r.Body).Decode(dst)
	if err != nil && !errors.Is(err, io.EOF) {
		BadRequest(w, "invalid request body")
		return false
	}
	return true
}
