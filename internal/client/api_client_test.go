package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"Mansoor88-6/facility-sync-agent/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type recordedRequest struct {
	Method  string
	Path    string
	Headers http.Header
	Body    map[string]any
}

func newTestServer(t *testing.T, status int, response string) (*httptest.Server, *[]recordedRequest) {
	t.Helper()
	var requests []recordedRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := recordedRequest{Method: r.Method, Path: r.URL.Path, Headers: r.Header.Clone()}
		json.NewDecoder(r.Body).Decode(&rec.Body)
		requests = append(requests, rec)
		w.WriteHeader(status)
		w.Write([]byte(response))
	}))
	t.Cleanup(srv.Close)
	return srv, &requests
}

func TestExecuteRoutes(t *testing.T) {
	tests := []struct {
		name    string
		op      models.QueuedOperation
		method  string
		path    string
		bodyKey string
	}{
		{"create visitor", models.QueuedOperation{Type: models.OpCreateVisitor, Payload: map[string]any{"name": "Ada"}}, http.MethodPost, "/api/v1/visitors", "name"},
		{"update visitor", models.QueuedOperation{Type: models.OpUpdateVisitor, Payload: map[string]any{"id": "v-1", "company": "ACME"}}, http.MethodPut, "/api/v1/visitors/v-1", "company"},
		{"delete visitor", models.QueuedOperation{Type: models.OpDeleteVisitor, Payload: map[string]any{"id": "v-1"}}, http.MethodDelete, "/api/v1/visitors/v-1", ""},
		{"check in", models.QueuedOperation{Type: models.OpCheckIn, Payload: map[string]any{"visitor_id": "v-2", "badge": "B7"}}, http.MethodPost, "/api/v1/visitors/v-2/check-in", "badge"},
		{"check out", models.QueuedOperation{Type: models.OpCheckOut, Payload: map[string]any{"visitor_id": float64(12)}}, http.MethodPost, "/api/v1/visitors/12/check-out", ""},
		{"security request", models.QueuedOperation{Type: models.OpCreateSecurityRequest, Payload: map[string]any{"reason": "escort"}}, http.MethodPost, "/api/v1/security-requests", "reason"},
		{"create event", models.QueuedOperation{Type: models.OpCreateEvent, Payload: map[string]any{"title": "Fire drill"}}, http.MethodPost, "/api/v1/events", "title"},
		{"delete event", models.QueuedOperation{Type: models.OpDeleteEvent, Payload: map[string]any{"id": "e-3"}}, http.MethodDelete, "/api/v1/events/e-3", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, requests := newTestServer(t, http.StatusOK, `{}`)
			c := NewAPIClient(srv.URL, "", time.Second, zaptest.NewLogger(t))

			require.NoError(t, c.Execute(context.Background(), tt.op))
			require.Len(t, *requests, 1)
			got := (*requests)[0]
			assert.Equal(t, tt.method, got.Method)
			assert.Equal(t, tt.path, got.Path)
			if tt.bodyKey != "" {
				assert.Contains(t, got.Body, tt.bodyKey)
			}
			assert.NotContains(t, got.Body, "visitor_id")
		})
	}
}

func TestExecuteHeaders(t *testing.T) {
	srv, requests := newTestServer(t, http.StatusCreated, `{}`)
	c := NewAPIClient(srv.URL, "secret", time.Second, zaptest.NewLogger(t))
	c.SetConsoleID("console-1")

	op := models.QueuedOperation{
		Type:           models.OpCreateVisitor,
		Payload:        map[string]any{"name": "Ada"},
		IdempotencyKey: "idem-123",
	}
	require.NoError(t, c.Execute(context.Background(), op))

	h := (*requests)[0].Headers
	assert.Equal(t, "Bearer secret", h.Get("Authorization"))
	assert.Equal(t, "console-1", h.Get("X-Console-ID"))
	assert.Equal(t, "idem-123", h.Get("Idempotency-Key"))
	assert.Equal(t, "application/json", h.Get("Content-Type"))
}

func TestExecuteErrors(t *testing.T) {
	c := NewAPIClient("http://127.0.0.1:0", "", time.Second, zaptest.NewLogger(t))

	err := c.Execute(context.Background(), models.QueuedOperation{Type: models.OpDeleteVisitor, Payload: map[string]any{}})
	assert.ErrorContains(t, err, `payload missing "id"`)

	err = c.Execute(context.Background(), models.QueuedOperation{Type: "reboot"})
	assert.ErrorContains(t, err, "unsupported operation type")

	srv, _ := newTestServer(t, http.StatusInternalServerError, `oops`)
	c = NewAPIClient(srv.URL, "", time.Second, zaptest.NewLogger(t))
	err = c.Execute(context.Background(), models.QueuedOperation{Type: models.OpCreateEvent, Payload: map[string]any{}})
	var backendErr *BackendError
	require.True(t, errors.As(err, &backendErr))
	assert.Equal(t, http.StatusInternalServerError, backendErr.StatusCode)
}

func TestUpdateEntityConflict(t *testing.T) {
	srv, _ := newTestServer(t, http.StatusConflict, `{"error":"stale"}`)
	c := NewAPIClient(srv.URL, "", time.Second, zaptest.NewLogger(t))

	_, err := c.UpdateEntity(context.Background(), models.KindVisitor, "v-1", models.Entity{"name": "Ada"})
	assert.True(t, errors.Is(err, ErrVersionConflict))
}

func TestFetchAndUpdateEntity(t *testing.T) {
	srv, requests := newTestServer(t, http.StatusOK, `{"id":"e-1","title":"Drill","updated_at":"2026-10-15T10:00:00Z"}`)
	c := NewAPIClient(srv.URL+"/", "", time.Second, zaptest.NewLogger(t))

	entity, err := c.FetchEntity(context.Background(), models.KindEvent, "e-1")
	require.NoError(t, err)
	assert.Equal(t, "e-1", entity.ID())
	assert.Equal(t, "Drill", entity["title"])

	_, err = c.UpdateEntity(context.Background(), models.KindEvent, "e-1", models.Entity{"title": "Evacuation"})
	require.NoError(t, err)
	assert.Equal(t, http.MethodPut, (*requests)[1].Method)
	assert.Equal(t, "/api/v1/events/e-1", (*requests)[1].Path)
	assert.Equal(t, "Evacuation", (*requests)[1].Body["title"])

	_, err = c.FetchEntity(context.Background(), "badge", "b-1")
	assert.Error(t, err)
}

func TestHealthCheck(t *testing.T) {
	srv, _ := newTestServer(t, http.StatusOK, `{"status":"ok"}`)
	c := NewAPIClient(srv.URL, "", time.Second, zaptest.NewLogger(t))
	assert.NoError(t, c.HealthCheck(context.Background()))

	down, _ := newTestServer(t, http.StatusServiceUnavailable, ``)
	c = NewAPIClient(down.URL, "", time.Second, zaptest.NewLogger(t))
	assert.Error(t, c.HealthCheck(context.Background()))
}

func TestExecuteUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := NewAPIClient(url, "", time.Second, zaptest.NewLogger(t))
	err := c.Execute(context.Background(), models.QueuedOperation{
		Type:    models.OpCreateEvent,
		Payload: map[string]any{"title": "Drill"},
	})

	var netErr *NetworkError
	require.ErrorAs(t, err, &netErr)
	assert.Equal(t, http.MethodPost, netErr.Method)
	assert.Equal(t, "/api/v1/events", netErr.Path)
}
