package integrations

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/shaiso/stepflow/internal/retry"
	"github.com/shaiso/stepflow/internal/steps"
)

// Значения по умолчанию клиента.
const (
	defaultMaxAttempts  = 3
	defaultInitialDelay = time.Second
	defaultHTTPTimeout  = 30 * time.Second
	maxResponseBody     = 10 * 1024 * 1024 // 10 MB
)

// ClientConfig — конфигурация VendorClient.
type ClientConfig struct {
	// Name — имя интеграции для логов.
	Name string

	// BaseURL — адрес внешнего сервиса. Пусто — локальный режим:
	// handler'ы отвечают детерминированным payload без сетевых вызовов.
	BaseURL string

	// HTTPClient — HTTP клиент. По умолчанию с таймаутом 30s.
	HTTPClient *http.Client

	// MaxAttempts — попыток на один вызов (по умолчанию 3).
	MaxAttempts int

	// InitialDelay — задержка перед второй попыткой (по умолчанию 1s).
	InitialDelay time.Duration

	// Logger
	Logger *slog.Logger
}

// VendorClient вызывает внешний сервис интеграции.
//
// Ответы 5xx и сетевые ошибки повторяются, ответы 4xx — нет.
type VendorClient struct {
	name         string
	baseURL      string
	http         *http.Client
	maxAttempts  int
	initialDelay time.Duration
	logger       *slog.Logger
}

// NewVendorClient создаёт клиент.
func NewVendorClient(cfg ClientConfig) *VendorClient {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultHTTPTimeout}
	}

	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}

	initialDelay := cfg.InitialDelay
	if initialDelay <= 0 {
		initialDelay = defaultInitialDelay
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &VendorClient{
		name:         cfg.Name,
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		http:         httpClient,
		maxAttempts:  maxAttempts,
		initialDelay: initialDelay,
		logger:       logger.With("component", "vendor_client", "integration", cfg.Name),
	}
}

// Name возвращает имя интеграции.
func (c *VendorClient) Name() string {
	return c.name
}

// Offline возвращает true в локальном режиме.
func (c *VendorClient) Offline() bool {
	return c.baseURL == ""
}

// Call отправляет body POST-запросом на <baseURL>/<path> и возвращает
// JSON-объект ответа.
func (c *VendorClient) Call(ctx context.Context, path string, body map[string]any) (map[string]any, error) {
	if c.Offline() {
		return nil, ErrOffline
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	url := c.baseURL + "/" + strings.TrimLeft(path, "/")

	out, err := retry.WithRetry(ctx, c.maxAttempts, c.initialDelay, func(ctx context.Context) (map[string]any, error) {
		return c.post(ctx, url, payload)
	})
	if err != nil {
		c.logger.Warn("vendor call failed", "url", url, "error", err)
		return nil, err
	}
	return out, nil
}

// post выполняет одну попытку.
func (c *VendorClient) post(ctx context.Context, url string, payload []byte) (map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		httpErr := &steps.HTTPError{
			StatusCode: resp.StatusCode,
			Status:     http.StatusText(resp.StatusCode),
			Body:       string(data),
		}
		if !httpErr.Retryable() {
			return nil, retry.Permanent(httpErr)
		}
		return nil, httpErr
	}

	out := make(map[string]any)
	if len(bytes.TrimSpace(data)) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, retry.Permanent(fmt.Errorf("%w: %v", ErrInvalidResponse, err))
	}
	return out, nil
}
