package api

import (
	"github.com/shaiso/stepflow/internal/domain"
	"github.com/shaiso/stepflow/internal/repo"
)

// Workflow DTOs

// WorkflowResponse — краткое описание workflow из каталога.
type WorkflowResponse struct {
	Name              string   `json:"name"`
	Description       string   `json:"description,omitempty"`
	Integration       string   `json:"integration,omitempty"`
	CriticalByDefault bool     `json:"criticalByDefault"`
	StepTypes         []string `json:"stepTypes"`
}

// WorkflowFromDomain конвертирует domain.WorkflowDef в WorkflowResponse.
func WorkflowFromDomain(def domain.WorkflowDef) WorkflowResponse {
	types := make([]string, len(def.Steps))
	for i, s := range def.Steps {
		types[i] = s.Type
	}
	return WorkflowResponse{
		Name:              def.Name,
		Description:       def.Description,
		Integration:       def.Integration,
		CriticalByDefault: def.CriticalByDefault,
		StepTypes:         types,
	}
}

// Run DTOs

// RunWorkflowRequest — запуск workflow из каталога.
type RunWorkflowRequest struct {
	Input map[string]any `json:"input,omitempty"`
}

// RunDefinitionRequest — запуск переданного определения.
type RunDefinitionRequest struct {
	Workflow domain.WorkflowDef `json:"workflow"`
	Input    map[string]any     `json:"input,omitempty"`
}

// Health DTOs

// HealthResponse — состояние сервиса.
type HealthResponse struct {
	Status     string              `json:"status"`
	Uptime     string              `json:"uptime"`
	ActiveRuns int                 `json:"activeRuns"`
	History    repo.Summary        `json:"history"`
	StepTypes  map[string][]string `json:"stepTypes"`
	Workflows  int                 `json:"workflows"`
}
