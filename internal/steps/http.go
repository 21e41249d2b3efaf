package steps

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shaiso/stepflow/internal/engine"
)

// StepTypeHTTP — тип HTTP шага.
const StepTypeHTTP = "http"

const (
	defaultHTTPTimeout = 30 * time.Second
	maxResponseBody    = 10 << 20
)

// HTTPStep вызывает внешний HTTP API.
//
// Строковые опции рендерятся как шаблоны над входными данными run,
// поэтому url, query, headers и body могут ссылаться на {{ .Inputs.key }}.
//
// Опции:
//
//	method            GET по умолчанию
//	url               обязательна
//	query             {"customer": "{{ .Inputs.customer_id }}"}
//	headers           {"Authorization": "Bearer ..."}
//	body              без body методы кроме GET отправляют входные данные run
//	follow_redirects  true
//	validate_ssl      true
//	timeout_sec       используется, если у шага нет своего таймаута
//	fail_on_status    true: ответ 4xx/5xx возвращается как *HTTPError
//
// Результат: {"status_code": 200, "headers": {...}, "body": <JSON или строка>}.
type HTTPStep struct {
	transport         http.RoundTripper
	insecureTransport http.RoundTripper
}

// NewHTTPStep создаёт HTTPStep. Транспорты общие для всех вызовов шага.
func NewHTTPStep() *HTTPStep {
	insecure := http.DefaultTransport.(*http.Transport).Clone()
	insecure.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}

	return &HTTPStep{
		transport:         http.DefaultTransport,
		insecureTransport: insecure,
	}
}

// httpCall — опции одного вызова после рендеринга.
type httpCall struct {
	method          string
	url             string
	headers         map[string]string
	body            any
	followRedirects bool
	validateSSL     bool
	failOnStatus    bool
	timeout         time.Duration
}

// Execute выполняет HTTP запрос.
func (s *HTTPStep) Execute(ctx context.Context, req *Request) (*Response, error) {
	options, err := engine.RenderConfig(req.Options, engine.NewContext(req.Input, nil))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidConfig, StepTypeHTTP, err)
	}

	call, err := newHTTPCall(options, req)
	if err != nil {
		return nil, err
	}

	httpReq, err := call.request(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidConfig, StepTypeHTTP, err)
	}

	resp, err := s.client(call).Do(httpReq)
	if err != nil {
		if ctxErr := ContextError(ctx); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	return readHTTPResponse(resp, call.failOnStatus)
}

func newHTTPCall(options map[string]any, req *Request) (*httpCall, error) {
	call := &httpCall{
		method:          strings.ToUpper(GetConfigString(options, "method")),
		url:             GetConfigString(options, "url"),
		headers:         GetConfigMapString(options, "headers"),
		body:            options["body"],
		followRedirects: GetConfigBool(options, "follow_redirects", true),
		validateSSL:     GetConfigBool(options, "validate_ssl", true),
		failOnStatus:    GetConfigBool(options, "fail_on_status", true),
		timeout:         req.Timeout,
	}

	if call.url == "" {
		return nil, fmt.Errorf("%w: %s: url is required", ErrInvalidConfig, StepTypeHTTP)
	}
	if query := GetConfigMapString(options, "query"); len(query) > 0 {
		u, err := url.Parse(call.url)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidConfig, StepTypeHTTP, err)
		}
		q := u.Query()
		for k, v := range query {
			q.Set(k, v)
		}
		u.RawQuery = q.Encode()
		call.url = u.String()
	}

	if call.method == "" {
		call.method = http.MethodGet
	}
	if call.headers == nil {
		call.headers = map[string]string{}
	}
	if call.body == nil && call.method != http.MethodGet && len(req.Input) > 0 {
		call.body = req.Input
	}
	if call.timeout == 0 {
		call.timeout = defaultHTTPTimeout
		if sec := GetConfigInt(options, "timeout_sec"); sec > 0 {
			call.timeout = time.Duration(sec) * time.Second
		}
	}
	return call, nil
}

func (c *httpCall) request(ctx context.Context) (*http.Request, error) {
	var body io.Reader
	if c.body != nil {
		data, err := encodeBody(c.body)
		if err != nil {
			return nil, fmt.Errorf("encode body: %w", err)
		}
		body = bytes.NewReader(data)
		if _, ok := c.headers["Content-Type"]; !ok {
			c.headers["Content-Type"] = "application/json"
		}
	}

	req, err := http.NewRequestWithContext(ctx, c.method, c.url, body)
	if err != nil {
		return nil, err
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	return req, nil
}

func (s *HTTPStep) client(c *httpCall) *http.Client {
	client := &http.Client{Timeout: c.timeout, Transport: s.transport}
	if !c.validateSSL {
		client.Transport = s.insecureTransport
	}
	if !c.followRedirects {
		client.CheckRedirect = func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}
	return client
}

func encodeBody(body any) ([]byte, error) {
	switch v := body.(type) {
	case string:
		return []byte(v), nil
	case []byte:
		return v, nil
	default:
		return json.Marshal(v)
	}
}

// readHTTPResponse читает ответ. Тело JSON разбирается, остальное отдаётся строкой.
func readHTTPResponse(resp *http.Response, failOnStatus bool) (*Response, error) {
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	if failOnStatus && resp.StatusCode >= http.StatusBadRequest {
		return nil, &HTTPError{
			StatusCode: resp.StatusCode,
			Status:     http.StatusText(resp.StatusCode),
			Body:       string(data),
		}
	}

	var body any = string(data)
	if strings.Contains(resp.Header.Get("Content-Type"), "application/json") {
		var parsed any
		if json.Unmarshal(data, &parsed) == nil {
			body = parsed
		}
	}

	headers := make(map[string]string, len(resp.Header))
	for k := range resp.Header {
		headers[k] = resp.Header.Get(k)
	}

	return NewResponse(map[string]any{
		"status_code": resp.StatusCode,
		"headers":     headers,
		"body":        body,
	}), nil
}

// HTTPError — ответ с кодом 4xx/5xx.
type HTTPError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Status)
}

// Retryable: повтор имеет смысл для 5xx и 429, остальные 4xx постоянны.
func (e *HTTPError) Retryable() bool {
	return e.StatusCode >= http.StatusInternalServerError || e.StatusCode == http.StatusTooManyRequests
}

// IsHTTPError проверяет, является ли ошибка HTTP ошибкой.
func IsHTTPError(err error) bool {
	var httpErr *HTTPError
	return errors.As(err, &httpErr)
}
