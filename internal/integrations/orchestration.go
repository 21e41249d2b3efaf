package integrations

import (
	"github.com/shaiso/stepflow/internal/steps"
)

// IntegrationOrchestration — имя оркестрационной интеграции.
const IntegrationOrchestration = "orchestration"

// Типы шагов оркестрационной интеграции.
const (
	StepAPICall        = "api_call"
	StepAIProcessing   = "ai_processing"
	StepOrchestration  = "orchestration"
	StepDataCollection = "data_collection"
)

// RegisterOrchestrationHandlers регистрирует шаги оркестрационной интеграции:
// api_call, ai_processing, orchestration, data_collection.
func RegisterOrchestrationHandlers(reg *steps.Registry, client *VendorClient) {
	reg.Register(StepAPICall, &vendorHandler{client: client, path: "api/call", local: apiCall})
	reg.Register(StepAIProcessing, &vendorHandler{client: client, path: "ai/process", local: aiProcessing})
	reg.Register(StepOrchestration, &vendorHandler{client: client, path: "orchestrate", local: orchestrate})
	reg.Register(StepDataCollection, &vendorHandler{client: client, path: "collect", local: collectData})
}

func apiCall(req *steps.Request) (map[string]any, error) {
	return map[string]any{
		"status":         "success",
		"step_id":        stepRef(req),
		"processed_data": req.Input,
	}, nil
}

func aiProcessing(req *steps.Request) (map[string]any, error) {
	return map[string]any{
		"status":  "success",
		"step_id": stepRef(req),
		"ai_insights": map[string]any{
			"confidence":      0.85,
			"recommendations": []string{"action1", "action2"},
			"risk_score":      0.3,
		},
	}, nil
}

// orchestrate — опции: services (по умолчанию service1..service3).
func orchestrate(req *steps.Request) (map[string]any, error) {
	services := stringsOption(req, "services")
	if len(services) == 0 {
		services = []string{"service1", "service2", "service3"}
	}

	results := make(map[string]any, len(services))
	for _, s := range services {
		results[s] = map[string]any{"status": "completed"}
	}

	return map[string]any{
		"status":   "success",
		"step_id":  stepRef(req),
		"services": services,
		"results":  results,
	}, nil
}

// collectData — опции: sources (по умолчанию database, api, logs).
func collectData(req *steps.Request) (map[string]any, error) {
	sources := stringsOption(req, "sources")
	if len(sources) == 0 {
		sources = []string{"database", "api", "logs"}
	}

	points := make([]map[string]any, 0, len(sources))
	for _, s := range sources {
		points = append(points, map[string]any{"source": s})
	}

	return map[string]any{
		"status":      "success",
		"step_id":     stepRef(req),
		"sources":     sources,
		"data_points": points,
	}, nil
}
