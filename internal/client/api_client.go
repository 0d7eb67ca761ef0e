package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"Mansoor88-6/facility-sync-agent/internal/models"

	"go.uber.org/zap"
)

// APIClient handles communication with the console backend
type APIClient struct {
	baseURL    string
	apiKey     string
	consoleID  string
	timeout    time.Duration
	httpClient *http.Client
	logger     *zap.Logger
}

// NewAPIClient creates a new API client
func NewAPIClient(baseURL, apiKey string, timeout time.Duration, logger *zap.Logger) *APIClient {
	return &APIClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		timeout: timeout,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

// SetConsoleID sets the id sent in X-Console-ID with every request
func (c *APIClient) SetConsoleID(id string) {
	c.consoleID = id
}

// Execute replays a mutation against the endpoint that matches its type.
// Any returned error counts as a failed attempt.
func (c *APIClient) Execute(ctx context.Context, op models.QueuedOperation) error {
	method, path, body, err := route(op)
	if err != nil {
		return err
	}

	_, err = c.do(ctx, method, path, body, op.IdempotencyKey)
	return err
}

// route maps an operation onto method, path and request body
func route(op models.QueuedOperation) (string, string, any, error) {
	p := op.Payload
	switch op.Type {
	case models.OpCreateVisitor:
		return http.MethodPost, "/api/v1/visitors", p, nil
	case models.OpUpdateVisitor:
		id, err := payloadID(p, "id")
		if err != nil {
			return "", "", nil, err
		}
		return http.MethodPut, "/api/v1/visitors/" + id, without(p, "id"), nil
	case models.OpDeleteVisitor:
		id, err := payloadID(p, "id")
		if err != nil {
			return "", "", nil, err
		}
		return http.MethodDelete, "/api/v1/visitors/" + id, nil, nil
	case models.OpCheckIn:
		id, err := payloadID(p, "visitor_id")
		if err != nil {
			return "", "", nil, err
		}
		return http.MethodPost, "/api/v1/visitors/" + id + "/check-in", without(p, "visitor_id"), nil
	case models.OpCheckOut:
		id, err := payloadID(p, "visitor_id")
		if err != nil {
			return "", "", nil, err
		}
		return http.MethodPost, "/api/v1/visitors/" + id + "/check-out", without(p, "visitor_id"), nil
	case models.OpCreateSecurityRequest:
		return http.MethodPost, "/api/v1/security-requests", p, nil
	case models.OpCreateEvent:
		return http.MethodPost, "/api/v1/events", p, nil
	case models.OpDeleteEvent:
		id, err := payloadID(p, "id")
		if err != nil {
			return "", "", nil, err
		}
		return http.MethodDelete, "/api/v1/events/" + id, nil, nil
	default:
		return "", "", nil, fmt.Errorf("unsupported operation type %q", op.Type)
	}
}

// FetchEntity reads the authoritative copy of an entity
func (c *APIClient) FetchEntity(ctx context.Context, kind models.EntityKind, id string) (models.Entity, error) {
	path, err := entityPath(kind, id)
	if err != nil {
		return nil, err
	}

	body, err := c.do(ctx, http.MethodGet, path, nil, "")
	if err != nil {
		return nil, err
	}
	return decodeEntity(body)
}

// UpdateEntity writes changes to an entity. A version mismatch comes back as
// a *ConflictError matching ErrVersionConflict.
func (c *APIClient) UpdateEntity(ctx context.Context, kind models.EntityKind, id string, changes models.Entity) (models.Entity, error) {
	path, err := entityPath(kind, id)
	if err != nil {
		return nil, err
	}

	body, err := c.do(ctx, http.MethodPut, path, changes, "")
	if err != nil {
		return nil, err
	}
	return decodeEntity(body)
}

// HealthCheck checks if the backend is reachable
func (c *APIClient) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

func (c *APIClient) do(ctx context.Context, method, path string, payload any, idempotencyKey string) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		jsonData, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		reqBody = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	if c.consoleID != "" {
		req.Header.Set("X-Console-ID", c.consoleID)
	}
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	startTime := time.Now()
	resp, err := c.httpClient.Do(req)
	duration := time.Since(startTime)

	if err != nil {
		c.logger.Warn("Request failed",
			zap.Error(err),
			zap.String("method", method),
			zap.String("path", path),
			zap.Duration("duration", duration),
		)
		return nil, &NetworkError{Method: method, Path: path, Err: err}
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		c.logger.Debug("Request succeeded",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status_code", resp.StatusCode),
			zap.Duration("duration", duration),
		)
		return body, nil
	}

	// Handle different error status codes
	errMsg := fmt.Sprintf("backend returned status %d: %s", resp.StatusCode, string(body))

	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		c.logger.Error("Authentication failed",
			zap.Int("status_code", resp.StatusCode),
			zap.String("response", string(body)),
		)
		return nil, &AuthError{Message: errMsg, StatusCode: resp.StatusCode}
	case http.StatusConflict:
		c.logger.Info("Version conflict",
			zap.String("path", path),
		)
		return nil, &ConflictError{Message: errMsg, StatusCode: resp.StatusCode}
	case http.StatusTooManyRequests:
		c.logger.Warn("Rate limited",
			zap.Int("status_code", resp.StatusCode),
		)
		return nil, &RateLimitError{Message: errMsg, StatusCode: resp.StatusCode}
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		c.logger.Error("Invalid request",
			zap.Int("status_code", resp.StatusCode),
			zap.String("response", string(body)),
		)
		return nil, &BadRequestError{Message: errMsg, StatusCode: resp.StatusCode}
	default:
		c.logger.Error("Backend error",
			zap.Int("status_code", resp.StatusCode),
			zap.String("response", string(body)),
		)
		return nil, &BackendError{Message: errMsg, StatusCode: resp.StatusCode}
	}
}

func entityPath(kind models.EntityKind, id string) (string, error) {
	if id == "" {
		return "", fmt.Errorf("entity id is required")
	}
	switch kind {
	case models.KindVisitor:
		return "/api/v1/visitors/" + url.PathEscape(id), nil
	case models.KindEvent:
		return "/api/v1/events/" + url.PathEscape(id), nil
	default:
		return "", fmt.Errorf("unsupported entity kind %q", kind)
	}
}

func decodeEntity(body []byte) (models.Entity, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, nil
	}
	var entity models.Entity
	if err := json.Unmarshal(body, &entity); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return entity, nil
}

func payloadID(payload map[string]any, key string) (string, error) {
	id := models.Entity{models.FieldID: payload[key]}.ID()
	if id == "" {
		return "", fmt.Errorf("payload missing %q", key)
	}
	return url.PathEscape(id), nil
}

func without(payload map[string]any, key string) map[string]any {
	out := make(map[string]any, len(payload))
	for k, v := range payload {
		if k != key {
			out[k] = v
		}
	}
	return out
}

// ErrVersionConflict matches errors caused by a stale updated_at
var ErrVersionConflict = errors.New("version conflict")

// NetworkError means no response was received
type NetworkError struct {
	Method string
	Path   string
	Err    error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("request %s %s failed: %v", e.Method, e.Path, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// Error types
type AuthError struct {
	Message    string
	StatusCode int
}

func (e *AuthError) Error() string {
	return e.Message
}

type RateLimitError struct {
	Message    string
	StatusCode int
}

func (e *RateLimitError) Error() string {
	return e.Message
}

type BadRequestError struct {
	Message    string
	StatusCode int
}

func (e *BadRequestError) Error() string {
	return e.Message
}

type BackendError struct {
	Message    string
	StatusCode int
}

func (e *BackendError) Error() string {
	return e.Message
}

type ConflictError struct {
	Message    string
	StatusCode int
}

func (e *ConflictError) Error() string {
	return e.Message
}

func (e *ConflictError) Is(target error) bool {
	return target == ErrVersionConflict
}
