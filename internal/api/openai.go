package api

import (
	"context"
	"net/http"
	"time"

	"github.com/example/batchgate/internal/tasks"
	"github.com/example/batchgate/pkg/batchapi"
)

// awaitTerminal submits a task through the same queue/batch/dispatch
// pipeline used by POST /inference/async and blocks until it reaches a
// terminal state, applying batching discipline uniformly to the
// OpenAI-compatible passthrough surface in both mock and real mode.
func (s *Server) awaitTerminal(r *http.Request, rec tasks.Record) (tasks.Record, error) {
	if err := s.enqueue(r, rec); err != nil {
		return tasks.Record{}, err
	}
	ctx, cancel := context.WithTimeout(r.Context(), s.limits.SynchronousTimeout)
	defer cancel()

	ticker := time.NewTicker(25 * time.Millisecond)
	defer ticker.Stop()
	for {
		got, err := s.store.Get(ctx, rec.TaskID)
		if err == nil && isTerminal(got.Status) {
			return got, nil
		}
		select {
		case <-ticker.C:
			continue
		case <-ctx.Done():
			return tasks.Record{}, upstreamError("timed out waiting for task completion")
		}
	}
}

func isTerminal(s tasks.Status) bool {
	return s == tasks.StatusCompleted || s == tasks.StatusFailed
}

func (s *Server) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	var req batchapi.ChatCompletionRequest
	if err := decodeStrict(r, &req); err != nil {
		writeError(w, validationError("malformed JSON body"))
		return
	}
	prompt := flattenMessages(req.Messages)
	sreq := batchapi.SubmitInferenceRequest{Prompt: prompt, MaxTokens: req.MaxTokens, Temperature: req.Temperature, Model: req.Model}
	rec, err := s.validateAndBuildTask(sreq, principalFrom(r.Context()), s.limits.MaxPromptLength)
	if err != nil {
		writeError(w, err)
		return
	}
	done, err := s.awaitTerminal(r, rec)
	if err != nil {
		writeError(w, err)
		return
	}
	if done.Status == tasks.StatusFailed {
		writeError(w, upstreamError(done.Error))
		return
	}
	now := batchapi.RFC3339Now()
	writeJSON(w, http.StatusOK, batchapi.ChatCompletionResponse{
		ID:      done.TaskID,
		Object:  "chat.completion",
		Created: now.Unix(),
		Model:   done.Parameters.Model,
		Choices: []batchapi.ChatCompletionChoice{{
			Index:        0,
			Message:      batchapi.ChatMessage{Role: "assistant", Content: done.Result.Response},
			FinishReason: "stop",
		}},
		Usage: usageFrom(done),
	})
}

func (s *Server) handleCompletions(w http.ResponseWriter, r *http.Request) {
	var req batchapi.CompletionRequest
	if err := decodeStrict(r, &req); err != nil {
		writeError(w, validationError("malformed JSON body"))
		return
	}
	sreq := batchapi.SubmitInferenceRequest{Prompt: req.Prompt, MaxTokens: req.MaxTokens, Temperature: req.Temperature, Model: req.Model}
	rec, err := s.validateAndBuildTask(sreq, principalFrom(r.Context()), s.limits.MaxPromptLength)
	if err != nil {
		writeError(w, err)
		return
	}
	done, err := s.awaitTerminal(r, rec)
	if err != nil {
		writeError(w, err)
		return
	}
	if done.Status == tasks.StatusFailed {
		writeError(w, upstreamError(done.Error))
		return
	}
	now := batchapi.RFC3339Now()
	writeJSON(w, http.StatusOK, batchapi.CompletionResponse{
		ID:      done.TaskID,
		Object:  "text_completion",
		Created: now.Unix(),
		Model:   done.Parameters.Model,
		Choices: []batchapi.CompletionChoice{{
			Index:        0,
			Text:         done.Result.Response,
			FinishReason: "stop",
		}},
		Usage: usageFrom(done),
	})
}

func (s *Server) handleListModels(w http.ResponseWriter, r *http.Request) {
	if s.adapter.Mode() == "real" {
		ids, err := s.adapter.ListModels(r.Context())
		if err != nil {
			writeError(w, upstreamError("failed to list upstream models"))
			return
		}
		data := make([]batchapi.ModelInfo, 0, len(ids))
		for _, id := range ids {
			data = append(data, batchapi.ModelInfo{ID: id, Object: "model", OwnedBy: "batch-gateway"})
		}
		writeJSON(w, http.StatusOK, batchapi.ModelList{Object: "list", Data: data})
		return
	}
	model := s.policy.DefaultModel()
	if model == "" {
		model = defaultModel
	}
	writeJSON(w, http.StatusOK, batchapi.ModelList{
		Object: "list",
		Data: []batchapi.ModelInfo{{
			ID:      model,
			Object:  "model",
			OwnedBy: "batch-gateway",
		}},
	})
}

func usageFrom(rec tasks.Record) batchapi.Usage {
	promptTokens := len(rec.Prompt) / 4
	completion := 0
	if rec.Result != nil {
		completion = rec.Result.TokensGenerated
	}
	return batchapi.Usage{
		PromptTokens:     promptTokens,
		CompletionTokens: completion,
		TotalTokens:      promptTokens + completion,
	}
}

func flattenMessages(messages []batchapi.ChatMessage) string {
	if len(messages) == 0 {
		return ""
	}
	out := ""
	for i, m := range messages {
		if i > 0 {
			out += "\n"
		}
		out += m.Role + ": " + m.Content
	}
	return out
}
