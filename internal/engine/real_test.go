package engine

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/example/batchgate/internal/tasks"
)

func TestRealAdapterListModelsProxiesUpstream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"data":   []map[string]string{{"id": "llama-3-8b"}, {"id": "mistral-7b"}},
		})
	}))
	defer srv.Close()

	a := NewRealAdapter(srv.URL, "llama-3-8b", time.Second, true)
	ids, err := a.ListModels(context.Background())
	if err != nil {
		t.Fatalf("list models: %v", err)
	}
	if len(ids) != 2 || ids[0] != "llama-3-8b" || ids[1] != "mistral-7b" {
		t.Fatalf("unexpected model ids: %v", ids)
	}
}

func TestRealAdapterFallsBackToMockOnUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	a := NewRealAdapter(srv.URL, "mock-model", time.Second, true)
	out, err := a.Invoke(context.Background(), []tasks.Record{{TaskID: "t1", Prompt: "hi"}})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if len(out) != 1 || out[0].Source != SourceMockFallback || out[0].Err != nil {
		t.Fatalf("expected mock-fallback outcome, got %+v", out[0])
	}
}

func TestRealAdapterFailsPerTaskWhenFallbackDisabled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	a := NewRealAdapter(srv.URL, "mock-model", time.Second, false)
	out, err := a.Invoke(context.Background(), []tasks.Record{{TaskID: "t1", Prompt: "hi"}})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if len(out) != 1 || out[0].Err == nil {
		t.Fatalf("expected a per-task error with fallback disabled, got %+v", out[0])
	}
}
