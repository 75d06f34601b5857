package genclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/clipforge/clipforge/internal/domain"
)

const defaultTimeout = 5 * time.Minute

// Client — HTTP-клиент внешнего generation gateway.
//
// Gateway — внешний сервис, выполняющий собственно генерацию контента
// (сценарии, озвучка, видео, монтаж). Вызовы медленные (минуты) и
// периодически падают; клиент переводит ответы в доменную
// классификацию ошибок (retryable/fatal), решение о retry принимает
// воркер.
type Client struct {
	baseURL string
	apiKey  string
	hc      *http.Client
	logger  *slog.Logger
}

// Options — конфигурация клиента.
type Options struct {
	// BaseURL — адрес gateway (обязательно).
	BaseURL string

	// APIKey — ключ авторизации. Пустой допустим для локального gateway.
	APIKey string

	// Timeout — таймаут одного запроса (default: 5m).
	// Долгие генерации идут через StartOperation/PollOperation.
	Timeout time.Duration

	// HTTPClient — свой http.Client (опционально).
	HTTPClient *http.Client

	// Logger
	Logger *slog.Logger
}

// New создаёт клиент gateway.
func New(opts Options) (*Client, error) {
	if opts.BaseURL == "" {
		return nil, errors.New("genclient: base url is required")
	}

	hc := opts.HTTPClient
	if hc == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		hc = &http.Client{Timeout: timeout}
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL: opts.BaseURL,
		apiKey:  opts.APIKey,
		hc:      hc,
		logger:  logger,
	}, nil
}

// Request — запрос на генерацию.
type Request struct {
	// Capability — генеративная способность gateway: "script", "voice",
	// "video", "composite", "scene", "clip", "lipsync", "stitch".
	Capability string

	// Input — параметры генерации: вход job плюс артефакты
	// предыдущих stages.
	Input map[string]any
}

// Generate выполняет синхронную генерацию.
// Возвращает выходные артефакты или классифицированную *domain.StageError.
func (c *Client) Generate(ctx context.Context, req Request) (map[string]any, error) {
	var out struct {
		Output map[string]any `json:"output"`
	}
	err := c.doJSON(ctx, http.MethodPost, "/v1/generate/"+req.Capability, req.Input, &out)
	if err != nil {
		return nil, err
	}
	return out.Output, nil
}

// OperationStatus — состояние долгой операции генерации.
type OperationStatus struct {
	// Done — операция завершена (успешно или с ошибкой).
	Done bool `json:"done"`

	// Progress — прогресс операции 0–100.
	Progress int `json:"progress"`

	// Output — артефакты при успешном завершении.
	Output map[string]any `json:"output,omitempty"`

	// Error — ошибка gateway при неуспехе.
	Error *GatewayError `json:"error,omitempty"`
}

// StartOperation запускает долгую (многоминутную) генерацию.
// Возвращает идентификатор операции для PollOperation.
func (c *Client) StartOperation(ctx context.Context, req Request) (string, error) {
	var out struct {
		OperationID string `json:"operation_id"`
	}
	err := c.doJSON(ctx, http.MethodPost, "/v1/operations/"+req.Capability, req.Input, &out)
	if err != nil {
		return "", err
	}
	if out.OperationID == "" {
		return "", domain.NewRetryableError(domain.ErrKindUpstream, "gateway returned empty operation id")
	}
	return out.OperationID, nil
}

// PollOperation запрашивает состояние операции.
func (c *Client) PollOperation(ctx context.Context, operationID string) (*OperationStatus, error) {
	var status OperationStatus
	err := c.doJSON(ctx, http.MethodGet, "/v1/operations/"+operationID, nil, &status)
	if err != nil {
		return nil, err
	}
	if status.Done && status.Error != nil {
		return nil, status.Error.toStageError()
	}
	return &status, nil
}

// Fetch скачивает артефакт по ссылке gateway (для загрузки в storage).
// Закрыть body обязан вызывающий.
func (c *Client) Fetch(ctx context.Context, url string) (io.ReadCloser, int64, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, "", domain.NewFatalError(domain.ErrKindInvalidInput, "bad artifact url: %v", err)
	}
	c.authorize(req)

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, 0, "", classifyTransport(ctx, err)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		return nil, 0, "", classifyStatus(resp.StatusCode, string(body))
	}

	return resp.Body, resp.ContentLength, resp.Header.Get("Content-Type"), nil
}

// GatewayError — тело ошибки в ответе gateway.
type GatewayError struct {
	Kind      string `json:"kind"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

func (e *GatewayError) toStageError() *domain.StageError {
	kind := domain.ErrorKind(e.Kind)
	if kind == "" {
		kind = domain.ErrKindUpstream
	}
	return &domain.StageError{
		Kind:      kind,
		Message:   e.Message,
		Retryable: e.Retryable,
	}
}

// doJSON выполняет запрос и декодирует JSON-ответ.
func (c *Client) doJSON(ctx context.Context, method, path string, payload any, out any) error {
	var bodyReader io.Reader
	if payload != nil {
		body, err := json.Marshal(payload)
		if err != nil {
			return domain.NewFatalError(domain.ErrKindInvalidInput, "marshal request: %v", err)
		}
		bodyReader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return domain.NewFatalError(domain.ErrKindInternal, "create request: %v", err)
	}
	if bodyReader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.authorize(req)

	start := time.Now()
	resp, err := c.hc.Do(req)
	if err != nil {
		return classifyTransport(ctx, err)
	}
	defer resp.Body.Close()
	c.logger.Debug("gateway request",
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"duration", time.Since(start),
	)

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.NewRetryableError(domain.ErrKindNetwork, "read response: %v", err)
	}

	if resp.StatusCode >= 400 {
		// Gateway может вернуть структурированную ошибку — она точнее
		// классификации по HTTP-коду
		var wrapper struct {
			Error *GatewayError `json:"error"`
		}
		if jsonErr := json.Unmarshal(respBody, &wrapper); jsonErr == nil && wrapper.Error != nil && wrapper.Error.Message != "" {
			return wrapper.Error.toStageError()
		}
		return classifyStatus(resp.StatusCode, truncate(string(respBody), 200))
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return domain.NewRetryableError(domain.ErrKindUpstream, "decode response: %v", err)
		}
	}
	return nil
}

func (c *Client) authorize(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

// classifyTransport классифицирует сетевые ошибки. Все они transient.
func classifyTransport(ctx context.Context, err error) *domain.StageError {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return domain.NewRetryableError(domain.ErrKindTimeout, "gateway request timed out: %v", err)
	}
	return domain.NewRetryableError(domain.ErrKindNetwork, "gateway request failed: %v", err)
}

// classifyStatus переводит HTTP-код в доменную ошибку.
func classifyStatus(code int, body string) *domain.StageError {
	switch {
	case code == http.StatusTooManyRequests:
		return domain.NewRetryableError(domain.ErrKindRateLimited, "gateway rate limited: HTTP %d", code)
	case code >= 500:
		return domain.NewRetryableError(domain.ErrKindUpstream, "gateway error: HTTP %d: %s", code, body)
	case code == http.StatusRequestEntityTooLarge:
		return domain.NewFatalError(domain.ErrKindTooLarge, "payload too large: HTTP %d", code)
	case code == http.StatusUnsupportedMediaType:
		return domain.NewFatalError(domain.ErrKindUnsupported, "unsupported format: HTTP %d: %s", code, body)
	case code == http.StatusBadRequest:
		return domain.NewFatalError(domain.ErrKindInvalidInput, "invalid input: HTTP %d: %s", code, body)
	default:
		// Остальные 4xx — окончательный отказ gateway
		return domain.NewFatalError(domain.ErrKindRejected, "gateway rejected request: HTTP %d: %s", code, body)
	}
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
