package api

import (
	"net/http"
)

// ListWorkflows возвращает workflow из каталога.
// GET /api/v1/workflows
func (h *Handler) ListWorkflows(w http.ResponseWriter, r *http.Request) {
	defs := h.catalog.List()

	result := make([]WorkflowResponse, len(defs))
	for i, def := range defs {
		result[i] = WorkflowFromDomain(def)
	}

	List(w, result, len(result))
}

// GetWorkflow возвращает полное определение workflow.
// GET /api/v1/workflows/{name}
func (h *Handler) GetWorkflow(w http.ResponseWriter, r *http.Request) {
	def, err := h.catalog.Get(r.PathValue("name"))
	if HandleError(w, h.logger, err) {
		return
	}

	Success(w, def)
}

// RunWorkflow запускает workflow из каталога и ждёт его завершения.
// POST /api/v1/workflows/{name}/runs
func (h *Handler) RunWorkflow(w http.ResponseWriter, r *http.Request) {
	def, err := h.catalog.Get(r.PathValue("name"))
	if HandleError(w, h.logger, err) {
		return
	}

	var req RunWorkflowRequest
	if !decodeOptionalBody(w, r, &req) {
		return
	}

	h.run(w, r, def, req.Input)
}
