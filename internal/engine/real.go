package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/example/batchgate/internal/observability"
	"github.com/example/batchgate/internal/tasks"
)

// RealAdapter issues one independent HTTP POST per task, in parallel
// within the batch, to an OpenAI-compatible chat-completions endpoint.
// When fallback is enabled, a per-task upstream error falls back to a
// deterministic mock response for that task only; the rest of the batch
// still sees real responses. When fallback is disabled, that task's
// Outcome carries the upstream error instead.
type RealAdapter struct {
	baseURL         string
	defaultModel    string
	timeout         time.Duration
	fallbackEnabled bool
	client          *http.Client
	mock            *MockAdapter
}

func NewRealAdapter(baseURL, defaultModel string, timeout time.Duration, fallbackEnabled bool) *RealAdapter {
	return &RealAdapter{
		baseURL:         strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		defaultModel:    defaultModel,
		timeout:         timeout,
		fallbackEnabled: fallbackEnabled,
		client:          &http.Client{Timeout: timeout},
		mock:            NewMockAdapter(),
	}
}

func (a *RealAdapter) Mode() string { return "real" }

// ProbeHealth performs a best-effort startup health check. Its failure
// does not prevent serving: each task whose upstream call fails is then
// handled per task (mock fallback when enabled, a per-task error when not)
// until the upstream recovers.
func (a *RealAdapter) ProbeHealth(ctx context.Context) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/v1/models", nil)
	if err != nil {
		log.Printf("engine: health probe request build failed: %v", err)
		return
	}
	resp, err := a.client.Do(req)
	if err != nil {
		log.Printf("engine: upstream health probe failed, serving in per-task fallback: %v", err)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		log.Printf("engine: upstream health probe returned status %s", resp.Status)
	}
}

// ListModels proxies the upstream's own /v1/models listing.
func (a *RealAdapter) ListModels(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/v1/models", nil)
	if err != nil {
		return nil, err
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("upstream status %s: %s", resp.Status, strings.TrimSpace(string(msg)))
	}
	var out struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("malformed upstream body: %w", err)
	}
	ids := make([]string, 0, len(out.Data))
	for _, m := range out.Data {
		ids = append(ids, m.ID)
	}
	return ids, nil
}

func (a *RealAdapter) Invoke(ctx context.Context, batch []tasks.Record) ([]Outcome, error) {
	ctx, span := observability.StartSpan(ctx, "engine.invoke",
		attribute.String("engine.mode", "real"),
		attribute.Int("engine.batch_size", len(batch)),
	)
	defer span.End()

	out := make([]Outcome, len(batch))
	var wg sync.WaitGroup
	for i, t := range batch {
		wg.Add(1)
		go func(i int, t tasks.Record) {
			defer wg.Done()
			out[i] = a.invokeOne(ctx, t)
		}(i, t)
	}
	wg.Wait()
	return out, nil
}

func (a *RealAdapter) invokeOne(ctx context.Context, t tasks.Record) Outcome {
	callCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	model := t.Parameters.Model
	if model == "" {
		model = a.defaultModel
	}
	body := map[string]any{
		"model":       model,
		"messages":    []map[string]string{{"role": "user", "content": t.Prompt}},
		"max_tokens":  t.Parameters.MaxTokens,
		"temperature": t.Parameters.Temperature,
		"stream":      false,
	}
	response, tokensGenerated, err := a.postChatCompletion(callCtx, body)
	if err != nil {
		if !a.fallbackEnabled {
			observability.Default.IncCounter("engine_upstream_error_total", map[string]string{"reason": classifyError(err)}, 1)
			return Outcome{TaskID: t.TaskID, Err: fmt.Errorf("upstream call failed: %w", err)}
		}
		observability.Default.IncCounter("engine_fallback_total", map[string]string{"reason": classifyError(err)}, 1)
		fallback := mockOutcome(t)
		fallback.Source = SourceMockFallback
		return fallback
	}
	return Outcome{
		TaskID:          t.TaskID,
		Response:        response,
		TokensGenerated: tokensGenerated,
		Source:          SourceReal,
	}
}

func (a *RealAdapter) postChatCompletion(ctx context.Context, body map[string]any) (string, int, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return "", 0, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/v1/chat/completions", bytes.NewReader(b))
	if err != nil {
		return "", 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := a.client.Do(req)
	if err != nil {
		return "", 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", 0, fmt.Errorf("upstream status %s: %s", resp.Status, strings.TrimSpace(string(msg)))
	}
	var out struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Usage struct {
			CompletionTokens int `json:"completion_tokens"`
		} `json:"usage"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", 0, fmt.Errorf("malformed upstream body: %w", err)
	}
	if len(out.Choices) == 0 {
		return "", 0, fmt.Errorf("upstream returned no choices")
	}
	return out.Choices[0].Message.Content, out.Usage.CompletionTokens, nil
}

func classifyError(err error) string {
	if err == nil {
		return "none"
	}
	if strings.Contains(err.Error(), "context deadline exceeded") {
		return "timeout"
	}
	if strings.Contains(err.Error(), "upstream status") {
		return "upstream_status"
	}
	if strings.Contains(err.Error(), "malformed") {
		return "malformed_body"
	}
	return "connection"
}
