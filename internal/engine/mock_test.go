package engine

import (
	"context"
	"testing"
	"time"

	"github.com/example/batchgate/internal/tasks"
)

func TestMockAdapterProducesOneOutcomePerTask(t *testing.T) {
	a := &MockAdapter{baseLatency: time.Millisecond, perItemLatency: 0}
	batch := []tasks.Record{
		{TaskID: "t1", Prompt: "hello world"},
		{TaskID: "t2", Prompt: "another prompt"},
	}
	out, err := a.Invoke(context.Background(), batch)
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 outcomes, got %d", len(out))
	}
	for _, o := range out {
		if o.Source != SourceMock {
			t.Fatalf("expected source mock, got %s", o.Source)
		}
		if o.Response == "" {
			t.Fatalf("expected non-empty response for task %s", o.TaskID)
		}
	}
}

func TestMockAdapterClampsGeneratedTokensToMax(t *testing.T) {
	a := &MockAdapter{baseLatency: time.Millisecond}
	rec := tasks.Record{TaskID: "t1", Prompt: "one two three four five", Parameters: tasks.Parameters{MaxTokens: 2}}
	out, err := a.Invoke(context.Background(), []tasks.Record{rec})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if out[0].TokensGenerated != 2 {
		t.Fatalf("expected tokens clamped to 2, got %d", out[0].TokensGenerated)
	}
}

func TestMockAdapterRespectsContextCancellation(t *testing.T) {
	a := &MockAdapter{baseLatency: time.Second}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()
	_, err := a.Invoke(ctx, []tasks.Record{{TaskID: "t1", Prompt: "x"}})
	if err == nil {
		t.Fatalf("expected context deadline error")
	}
}

func TestMockAdapterDeterministicForSameTaskID(t *testing.T) {
	a := &MockAdapter{baseLatency: time.Millisecond}
	rec := tasks.Record{TaskID: "fixed-id", Prompt: "hi"}
	out1, _ := a.Invoke(context.Background(), []tasks.Record{rec})
	out2, _ := a.Invoke(context.Background(), []tasks.Record{rec})
	if out1[0].Response != out2[0].Response {
		t.Fatalf("expected deterministic mock response for the same task id")
	}
}
