package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/shaiso/stepflow/internal/catalog"
	"github.com/shaiso/stepflow/internal/domain"
	"github.com/shaiso/stepflow/internal/orchestrator"
	"github.com/shaiso/stepflow/internal/repo"
)

// Имя и версия MCP сервера.
const (
	serverName    = "stepflow"
	serverVersion = "1.0.0"

	defaultListLimit = 20
	maxListLimit     = 1000
)

// Server — MCP сервер поверх engines, истории и каталога.
type Server struct {
	mcpServer *server.MCPServer
	engines   *orchestrator.Engines
	history   *repo.RunStore
	catalog   *catalog.Catalog
	logger    *slog.Logger
}

// Config — зависимости Server.
type Config struct {
	Engines *orchestrator.Engines
	History *repo.RunStore
	Catalog *catalog.Catalog
	Logger  *slog.Logger
}

// New создаёт MCP сервер и регистрирует инструменты.
func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		engines: cfg.Engines,
		history: cfg.History,
		catalog: cfg.Catalog,
		logger:  logger.With("component", "mcp"),
	}

	mcpServer := server.NewMCPServer(
		serverName,
		serverVersion,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)
	s.registerTools(mcpServer)

	s.mcpServer = mcpServer
	return s
}

// ServeStdio обслуживает MCP клиента через stdin/stdout до EOF.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// registerTools добавляет инструменты.
func (s *Server) registerTools(mcpServer *server.MCPServer) {
	mcpServer.AddTool(mcp.NewTool("list_workflows",
		mcp.WithDescription("List workflows available in the catalog with their integration and step types"),
	), s.handleListWorkflows)

	mcpServer.AddTool(mcp.NewTool("run_workflow",
		mcp.WithDescription("Run a catalog workflow to completion and return the run record"),
		mcp.WithString("workflow",
			mcp.Required(),
			mcp.Description("Workflow name, e.g. onboarding_workflow"),
		),
		mcp.WithObject("input",
			mcp.Description("Input data shared by all steps"),
		),
	), s.handleRunWorkflow)

	mcpServer.AddTool(mcp.NewTool("list_runs",
		mcp.WithDescription("List finished runs, most recent first"),
		mcp.WithString("status",
			mcp.Description("Filter by status: completed, partial, failed"),
			mcp.Enum("completed", "partial", "failed"),
		),
		mcp.WithString("workflow",
			mcp.Description("Filter by workflow name"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of runs (default 20)"),
		),
	), s.handleListRuns)

	mcpServer.AddTool(mcp.NewTool("get_run",
		mcp.WithDescription("Get a run record by id, including per-step results"),
		mcp.WithString("run_id",
			mcp.Required(),
			mcp.Description("Run id returned by run_workflow"),
		),
	), s.handleGetRun)
}

// getArgs извлекает аргументы вызова.
func getArgs(request mcp.CallToolRequest) map[string]any {
	if args, ok := request.Params.Arguments.(map[string]any); ok {
		return args
	}
	return make(map[string]any)
}

// jsonResult сериализует v в текстовый результат.
func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}

type workflowSummary struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Integration string   `json:"integration,omitempty"`
	Steps       []string `json:"steps"`
}

func (s *Server) handleListWorkflows(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	defs := s.catalog.List()

	out := make([]workflowSummary, len(defs))
	for i, def := range defs {
		steps := make([]string, len(def.Steps))
		for j, step := range def.Steps {
			steps[j] = step.Label() + " (" + step.Type + ")"
		}
		out[i] = workflowSummary{
			Name:        def.Name,
			Description: def.Description,
			Integration: def.Integration,
			Steps:       steps,
		}
	}

	return jsonResult(out)
}

func (s *Server) handleRunWorkflow(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := getArgs(request)

	name, _ := args["workflow"].(string)
	if name == "" {
		return mcp.NewToolResultError("workflow parameter is required"), nil
	}
	input, _ := args["input"].(map[string]any)

	def, err := s.catalog.Get(name)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	rec, err := s.engines.Run(ctx, def, input)
	if rec == nil {
		return mcp.NewToolResultError(fmt.Sprintf("run failed: %v", err)), nil
	}
	if err != nil {
		s.logger.Warn("run finished with store error", "run_id", rec.RunID, "error", err)
	}

	return jsonResult(rec)
}

func (s *Server) handleListRuns(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := getArgs(request)

	var filter repo.RunFilter
	if v, _ := args["status"].(string); v != "" {
		status, ok := domain.ParseRunStatus(v)
		if !ok {
			return mcp.NewToolResultError("invalid status: " + v), nil
		}
		filter.Status = status
	}
	filter.WorkflowName, _ = args["workflow"].(string)
	filter.Limit = listLimit(args["limit"])

	return jsonResult(s.history.List(filter))
}

// listLimit приводит limit из JSON-аргументов к диапазону [1, maxListLimit].
func listLimit(v any) int {
	f, ok := v.(float64)
	switch {
	case !ok || !(f >= 1):
		return defaultListLimit
	case f > maxListLimit:
		return maxListLimit
	default:
		return int(f)
	}
}

func (s *Server) handleGetRun(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := getArgs(request)

	runID, _ := args["run_id"].(string)
	if runID == "" {
		return mcp.NewToolResultError("run_id parameter is required"), nil
	}

	rec, err := s.history.Get(runID)
	if errors.Is(err, repo.ErrNotFound) {
		rec, err = s.engines.Active(runID)
	}
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("run %s not found", runID)), nil
	}

	return jsonResult(rec)
}
