package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/example/batchgate/internal/authn"
	"github.com/example/batchgate/internal/dispatch"
	"github.com/example/batchgate/internal/engine"
	"github.com/example/batchgate/internal/modelpolicy"
	"github.com/example/batchgate/internal/observability"
	"github.com/example/batchgate/internal/queue"
	"github.com/example/batchgate/internal/stats"
	"github.com/example/batchgate/internal/tasks"
)

func newTestServer(t *testing.T) (*Server, *authn.Verifier) {
	t.Helper()
	verifier, err := authn.New(authn.Options{SecretKey: "test-secret", ExpirationMinutes: 5}, map[string]string{"alice": "wonderland"})
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}
	store := tasks.NewMemoryStore()
	q := queue.New(10)
	collector := stats.New()
	adapter := engine.NewMockAdapter()
	d := dispatch.New(2, adapter, store, collector, nil)
	policy := modelpolicy.Default("mock-model")
	s := NewServer(verifier, store, q, collector, d, adapter, policy, Limits{MaxPromptLength: 100, MaxBatchSubmitSize: 5}, BatchingConfig{MaxBatchSize: 4, BatchWaitTimeout: 10 * time.Millisecond, MaxConcurrentBatches: 2})
	return s, verifier
}

func authedRequest(t *testing.T, v *authn.Verifier, method, path string, body []byte) *http.Request {
	t.Helper()
	token, _, err := v.Issue("alice", "wonderland")
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func TestHandleSubmitAsyncRejectsEmptyPrompt(t *testing.T) {
	s, v := newTestServer(t)
	body, _ := json.Marshal(map[string]string{"prompt": ""})
	req := authedRequest(t, v, http.MethodPost, "/inference/async", body)
	rec := httptest.NewRecorder()
	s.requireAuth(s.handleSubmitAsync)(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestHandleSubmitAsyncAcceptsValidRequest(t *testing.T) {
	s, v := newTestServer(t)
	body, _ := json.Marshal(map[string]string{"prompt": "hello there"})
	req := authedRequest(t, v, http.MethodPost, "/inference/async", body)
	rec := httptest.NewRecorder()
	s.requireAuth(s.handleSubmitAsync)(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		TaskID string `json:"task_id"`
		Status string `json:"status"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != "queued" || resp.TaskID == "" {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestHandleSubmitAsyncWithoutTokenIsUnauthorized(t *testing.T) {
	s, _ := newTestServer(t)
	body, _ := json.Marshal(map[string]string{"prompt": "hi"})
	req := httptest.NewRequest(http.MethodPost, "/inference/async", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.requireAuth(s.handleSubmitAsync)(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestHandleGetTaskReturns404ForUnknownID(t *testing.T) {
	s, v := newTestServer(t)
	req := authedRequest(t, v, http.MethodGet, "/tasks/does-not-exist", nil)
	req.SetPathValue("task_id", "does-not-exist")
	rec := httptest.NewRecorder()
	s.requireAuth(s.handleGetTask)(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestHandleSubmitBatchIsAllOrNothingOnValidation(t *testing.T) {
	s, v := newTestServer(t)
	payload := []map[string]string{{"prompt": "ok"}, {"prompt": ""}}
	body, _ := json.Marshal(payload)
	req := authedRequest(t, v, http.MethodPost, "/inference/batch", body)
	rec := httptest.NewRecorder()
	s.requireAuth(s.handleSubmitBatch)(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid batch entry, got %d", rec.Code)
	}

	recs, _ := s.store.List(context.Background(), "alice", 10)
	if len(recs) != 0 {
		t.Fatalf("expected no tasks created from a rejected batch, got %d", len(recs))
	}
}

func TestHandleHealthReportsModeAndDepth(t *testing.T) {
	s, _ := newTestServer(t)
	if err := s.queue.Enqueue(context.Background(), "queued-1", tasks.PriorityNormal); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.handleHealth(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp struct {
		Status   string `json:"status"`
		Mode     string `json:"mode"`
		Batching struct {
			Depth int `json:"depth"`
		} `json:"batching"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "ok" || resp.Mode != "mock" {
		t.Fatalf("unexpected health response: %+v", resp)
	}
	if resp.Batching.Depth != 1 {
		t.Fatalf("expected queue depth 1, got %d", resp.Batching.Depth)
	}
}

func TestHandleTokenRejectsBadCredentials(t *testing.T) {
	s, _ := newTestServer(t)
	form := "username=alice&password=wrong"
	req := httptest.NewRequest(http.MethodPost, "/token", bytes.NewReader([]byte(form)))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	s.handleToken(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestHandleMetricsRendersRegisteredCounters(t *testing.T) {
	s, _ := newTestServer(t)
	observability.Default.Reset()
	observability.Default.IncCounter("tasks_created_total", map[string]string{"priority": "normal"}, 1)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	s.handleMetrics(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !bytes.Contains(rec.Body.Bytes(), []byte(`tasks_created_total{priority="normal"} 1`)) {
		t.Fatalf("expected rendered counter in body: %s", rec.Body.String())
	}
}

func TestHandleTokenIssuesAccessTokenOnSuccess(t *testing.T) {
	s, _ := newTestServer(t)
	form := "username=alice&password=wonderland"
	req := httptest.NewRequest(http.MethodPost, "/token", bytes.NewReader([]byte(form)))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	s.handleToken(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}
