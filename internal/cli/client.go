package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/shaiso/stepflow/internal/domain"
	"github.com/shaiso/stepflow/internal/repo"
)

// --- Response types (дублируются из api/dto.go, CLI не импортирует internal/api) ---

// WorkflowResponse — workflow из каталога API.
type WorkflowResponse struct {
	Name              string   `json:"name"`
	Description       string   `json:"description,omitempty"`
	Integration       string   `json:"integration,omitempty"`
	CriticalByDefault bool     `json:"criticalByDefault"`
	StepTypes         []string `json:"stepTypes"`
}

// SummaryResponse — агрегаты истории runs.
type SummaryResponse struct {
	Total      int `json:"total"`
	Completed  int `json:"completed"`
	Partial    int `json:"partial"`
	Failed     int `json:"failed"`
	InProgress int `json:"inProgress"`

	AvgDurationMs int64                `json:"avgDurationMs"`
	Workflows     []repo.WorkflowCount `json:"workflows,omitempty"`
}

// --- Request types ---

// RunWorkflowRequest — запуск workflow из каталога.
type RunWorkflowRequest struct {
	Input map[string]any `json:"input,omitempty"`
}

// RunDefinitionRequest — запуск переданного определения.
type RunDefinitionRequest struct {
	Workflow domain.WorkflowDef `json:"workflow"`
	Input    map[string]any     `json:"input,omitempty"`
}

// ListRunsOpts — параметры фильтрации runs.
type ListRunsOpts struct {
	Status   string
	Workflow string
	Limit    int
}

// --- API response wrappers ---

type dataResponse struct {
	Data json.RawMessage `json:"data"`
}

type listResponse struct {
	Data  json.RawMessage `json:"data"`
	Total int             `json:"total"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// --- Client ---

// Client — HTTP-клиент для stepflow API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient создаёт клиент для API.
//
// Таймаут большой: запуск workflow через API синхронный.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Minute,
		},
	}
}

// --- Workflows ---

// ListWorkflows возвращает workflows каталога.
func (c *Client) ListWorkflows() ([]WorkflowResponse, error) {
	var workflows []WorkflowResponse
	err := c.list("/api/v1/workflows", nil, &workflows)
	return workflows, err
}

// GetWorkflow возвращает определение workflow по имени.
func (c *Client) GetWorkflow(name string) (*domain.WorkflowDef, error) {
	var def domain.WorkflowDef
	err := c.get("/api/v1/workflows/"+url.PathEscape(name), &def)
	return &def, err
}

// RunWorkflow запускает workflow из каталога и ждёт завершения.
func (c *Client) RunWorkflow(name string, input map[string]any) (*domain.RunRecord, error) {
	var rec domain.RunRecord
	err := c.post("/api/v1/workflows/"+url.PathEscape(name)+"/runs", RunWorkflowRequest{Input: input}, &rec)
	return &rec, err
}

// RunDefinition запускает переданное определение и ждёт завершения.
func (c *Client) RunDefinition(def domain.WorkflowDef, input map[string]any) (*domain.RunRecord, error) {
	var rec domain.RunRecord
	err := c.post("/api/v1/runs", RunDefinitionRequest{Workflow: def, Input: input}, &rec)
	return &rec, err
}

// --- Runs ---

// ListRuns возвращает историю runs с фильтрацией.
func (c *Client) ListRuns(opts ListRunsOpts) ([]domain.RunRecord, error) {
	params := url.Values{}
	if opts.Status != "" {
		params.Set("status", opts.Status)
	}
	if opts.Workflow != "" {
		params.Set("workflow", opts.Workflow)
	}
	if opts.Limit > 0 {
		params.Set("limit", strconv.Itoa(opts.Limit))
	}

	var runs []domain.RunRecord
	err := c.list("/api/v1/runs", params, &runs)
	return runs, err
}

// ListActiveRuns возвращает выполняющиеся runs.
func (c *Client) ListActiveRuns() ([]domain.RunRecord, error) {
	var runs []domain.RunRecord
	err := c.list("/api/v1/runs/active", nil, &runs)
	return runs, err
}

// GetRun возвращает run по ID.
func (c *Client) GetRun(id string) (*domain.RunRecord, error) {
	var rec domain.RunRecord
	err := c.get("/api/v1/runs/"+url.PathEscape(id), &rec)
	return &rec, err
}

// Summary возвращает агрегаты истории.
func (c *Client) Summary() (*SummaryResponse, error) {
	var sum SummaryResponse
	err := c.get("/api/v1/runs/summary", &sum)
	return &sum, err
}

// --- HTTP helpers ---

func (c *Client) get(path string, result any) error {
	return c.doData(http.MethodGet, path, nil, result)
}

func (c *Client) post(path string, body any, result any) error {
	return c.doData(http.MethodPost, path, body, result)
}

func (c *Client) list(path string, params url.Values, result any) error {
	if len(params) > 0 {
		path = path + "?" + params.Encode()
	}

	resp, err := c.do(http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	var lr listResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return json.Unmarshal(lr.Data, result)
}

func (c *Client) doData(method, path string, body any, result any) error {
	resp, err := c.do(method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	var dr dataResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if result != nil {
		return json.Unmarshal(dr.Data, result)
	}
	return nil
}

func (c *Client) do(method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.httpClient.Do(req)
}

func (c *Client) checkError(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}

	var er errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		return fmt.Errorf("API error: HTTP %d", resp.StatusCode)
	}

	return fmt.Errorf("%s: %s", er.Error.Code, er.Error.Message)
}
