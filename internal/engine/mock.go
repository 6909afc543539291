package engine

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"time"
	"unicode"

	"go.opentelemetry.io/otel/attribute"

	"github.com/example/batchgate/internal/observability"
	"github.com/example/batchgate/internal/tasks"
)

// MockAdapter produces deterministic simulated completions so tests can
// assert on response content. A batch-level latency is simulated as
// baseLatency + perItemLatency*size; the sleep runs on the calling
// goroutine (one per in-flight batch, per the dispatcher's bounded pool)
// so it never blocks other batches.
type MockAdapter struct {
	baseLatency    time.Duration
	perItemLatency time.Duration
}

func NewMockAdapter() *MockAdapter {
	return &MockAdapter{baseLatency: 500 * time.Millisecond, perItemLatency: 50 * time.Millisecond}
}

func (a *MockAdapter) Mode() string { return "mock" }

func (a *MockAdapter) Invoke(ctx context.Context, batch []tasks.Record) ([]Outcome, error) {
	ctx, span := observability.StartSpan(ctx, "engine.invoke",
		attribute.String("engine.mode", "mock"),
		attribute.Int("engine.batch_size", len(batch)),
	)
	defer span.End()

	sleep := a.baseLatency + a.perItemLatency*time.Duration(len(batch))
	timer := time.NewTimer(sleep)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	out := make([]Outcome, 0, len(batch))
	for _, t := range batch {
		out = append(out, mockOutcome(t))
	}
	return out, nil
}

// ListModels is unused in mock mode: the HTTP Surface synthesizes the
// model list from model policy instead of calling through the adapter.
func (a *MockAdapter) ListModels(ctx context.Context) ([]string, error) {
	return nil, nil
}

func mockOutcome(t tasks.Record) Outcome {
	shortID := shortHash(t.TaskID)
	response := fmt.Sprintf("[Batched mock response %s] Mock response to: %s", shortID, t.Prompt)
	generated := countTokens(t.Prompt) * 2
	if t.Parameters.MaxTokens > 0 && generated > t.Parameters.MaxTokens {
		generated = t.Parameters.MaxTokens
	}
	return Outcome{
		TaskID:          t.TaskID,
		Response:        response,
		TokensGenerated: generated,
		Source:          SourceMock,
	}
}

func shortHash(s string) string {
	sum := sha1.Sum([]byte(s))
	return hex.EncodeToString(sum[:])[:8]
}

// countTokens is a whitespace tokenizer; it approximates the reference
// implementation's word-count token estimate for mock responses.
func countTokens(s string) int {
	n := 0
	inWord := false
	for _, r := range s {
		if unicode.IsSpace(r) {
			inWord = false
			continue
		}
		if !inWord {
			n++
			inWord = true
		}
	}
	return n
}
