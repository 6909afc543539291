package api

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/example/batchgate/internal/observability"
	"github.com/example/batchgate/internal/tasks"
	"github.com/example/batchgate/pkg/batchapi"
)

const (
	defaultMaxTokens   = 100
	defaultTemperature = 0.7
	defaultModel       = "mock-model"
)

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, validationError("malformed form body"))
		return
	}
	username := r.FormValue("username")
	password := r.FormValue("password")
	if username == "" || password == "" {
		writeError(w, authError())
		return
	}
	token, expiresAt, err := s.verifier.Issue(username, password)
	if err != nil {
		writeError(w, authError())
		return
	}
	writeJSON(w, http.StatusOK, batchapi.TokenResponse{
		AccessToken: token,
		TokenType:   "bearer",
		ExpiresIn:   int64(time.Until(expiresAt).Seconds()),
	})
}

func decodeStrict(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return err
	}
	return nil
}

// validateAndBuildTask applies the bounded generation-options contract and
// returns a queued task record ready for Create, or a validation error.
func (s *Server) validateAndBuildTask(req batchapi.SubmitInferenceRequest, principal string, maxPromptLen int) (tasks.Record, error) {
	if req.Prompt == "" {
		return tasks.Record{}, validationError("prompt must not be empty")
	}
	if len(req.Prompt) > maxPromptLen {
		return tasks.Record{}, validationError(fmt.Sprintf("prompt exceeds max length of %d", maxPromptLen))
	}
	priority := tasks.Priority(req.Priority)
	switch priority {
	case "":
		priority = tasks.PriorityNormal
	case tasks.PriorityHigh, tasks.PriorityNormal, tasks.PriorityLow:
	default:
		return tasks.Record{}, validationError(fmt.Sprintf("invalid priority %q", req.Priority))
	}

	maxTokens := defaultMaxTokens
	if req.MaxTokens != nil {
		maxTokens = *req.MaxTokens
	}
	if maxTokens < 1 || maxTokens > 4096 {
		return tasks.Record{}, validationError("max_tokens must be between 1 and 4096")
	}
	temperature := defaultTemperature
	if req.Temperature != nil {
		temperature = *req.Temperature
	}
	if temperature < 0.0 || temperature > 2.0 {
		return tasks.Record{}, validationError("temperature must be between 0.0 and 2.0")
	}
	model := req.Model
	if model == "" {
		model = s.policy.DefaultModel()
		if model == "" {
			model = defaultModel
		}
	}
	maxTokens, temperature = s.policy.Clamp(model, maxTokens, temperature)

	return tasks.Record{
		TaskID:    newTaskID(),
		Principal: principal,
		Priority:  priority,
		Prompt:    req.Prompt,
		Parameters: tasks.Parameters{
			MaxTokens:   maxTokens,
			Temperature: temperature,
			Model:       model,
		},
		Status:    tasks.StatusQueued,
		CreatedAt: time.Now().UTC(),
	}, nil
}

func (s *Server) enqueue(r *http.Request, rec tasks.Record) error {
	if err := s.store.Create(r.Context(), rec); err != nil {
		return internalError(err)
	}
	if err := s.queue.Enqueue(r.Context(), rec.TaskID, rec.Priority); err != nil {
		retryAfter := 1
		return capacityError(retryAfter)
	}
	s.statsColl.RecordRequest()
	return nil
}

func (s *Server) handleSubmitAsync(w http.ResponseWriter, r *http.Request) {
	var req batchapi.SubmitInferenceRequest
	if err := decodeStrict(r, &req); err != nil {
		writeError(w, validationError("malformed JSON body"))
		return
	}
	rec, err := s.validateAndBuildTask(req, principalFrom(r.Context()), s.limits.MaxPromptLength)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.enqueue(r, rec); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, batchapi.SubmitInferenceResponse{TaskID: rec.TaskID, Status: string(tasks.StatusQueued)})
}

func (s *Server) handleSubmitBatch(w http.ResponseWriter, r *http.Request) {
	var reqs []batchapi.SubmitInferenceRequest
	if err := decodeStrict(r, &reqs); err != nil {
		writeError(w, validationError("malformed JSON body"))
		return
	}
	if len(reqs) == 0 || len(reqs) > s.limits.MaxBatchSubmitSize {
		writeError(w, validationError(fmt.Sprintf("batch size must be between 1 and %d", s.limits.MaxBatchSubmitSize)))
		return
	}
	principal := principalFrom(r.Context())

	// All-or-nothing validation before any enqueue.
	records := make([]tasks.Record, 0, len(reqs))
	for _, req := range reqs {
		rec, err := s.validateAndBuildTask(req, principal, s.limits.MaxPromptLength)
		if err != nil {
			writeError(w, err)
			return
		}
		records = append(records, rec)
	}

	taskIDs := make([]string, 0, len(records))
	for _, rec := range records {
		if err := s.enqueue(r, rec); err != nil {
			writeError(w, err)
			return
		}
		taskIDs = append(taskIDs, rec.TaskID)
	}
	writeJSON(w, http.StatusOK, batchapi.SubmitBatchResponse{TaskIDs: taskIDs, Count: len(taskIDs)})
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	taskID := r.PathValue("task_id")
	rec, err := s.store.Get(r.Context(), taskID)
	if err != nil {
		writeError(w, notFoundError("unknown task id"))
		return
	}
	writeJSON(w, http.StatusOK, toTaskRecord(rec))
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	principal := principalFrom(r.Context())
	recs, err := s.store.List(r.Context(), principal, s.limits.ListDefaultLimit)
	if err != nil {
		writeError(w, internalError(err))
		return
	}
	out := make([]batchapi.TaskRecord, 0, len(recs))
	for _, rec := range recs {
		out = append(out, toTaskRecord(rec))
	}
	writeJSON(w, http.StatusOK, batchapi.ListTasksResponse{Tasks: out, Count: len(out)})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, batchapi.HealthResponse{
		Status: "ok",
		Mode:   s.adapter.Mode(),
		Batching: batchapi.BatchingHealth{
			Config: batchapi.BatchingConfig{
				MaxBatchSize:         s.batching.MaxBatchSize,
				BatchWaitTimeoutSec:  s.batching.BatchWaitTimeout.Seconds(),
				MaxConcurrentBatches: s.batching.MaxConcurrentBatches,
			},
			Depth:           s.queue.Depth(),
			InFlightBatches: s.dispatcher.InFlight(),
		},
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	snap := s.statsColl.Snapshot()
	writeJSON(w, http.StatusOK, batchapi.StatsResponse{
		TotalRequests:    snap.TotalRequests,
		TotalBatches:     snap.TotalBatches,
		TotalCompleted:   snap.TotalCompleted,
		TotalFailed:      snap.TotalFailed,
		AverageBatchSize: snap.AverageBatchSize,
		LargestBatch:     snap.LargestBatch,
		MockResponses:    snap.MockResponses,
		RealResponses:    snap.RealResponses,
	})
}

// handleMetrics renders the ambient Prometheus-style counters and gauges
// recorded by internal/observability across the Task Store, Priority
// Queue, and Engine Adapter. It is distinct from GET /stats, which reports
// the domain-level Stats Collector snapshot.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(observability.Default.RenderPrometheus()))
}

func toTaskRecord(rec tasks.Record) batchapi.TaskRecord {
	out := batchapi.TaskRecord{
		TaskID:    rec.TaskID,
		Status:    string(rec.Status),
		CreatedAt: rec.CreatedAt,
		Error:     rec.Error,
	}
	if !rec.StartedAt.IsZero() {
		t := rec.StartedAt
		out.StartedAt = &t
	}
	if !rec.CompletedAt.IsZero() {
		t := rec.CompletedAt
		out.CompletedAt = &t
	}
	if d, ok := rec.ProcessingTime(); ok {
		secs := d.Seconds()
		out.ProcessingTime = &secs
	}
	if rec.Result != nil {
		out.Result = &batchapi.TaskResult{
			Response:        rec.Result.Response,
			TokensGenerated: rec.Result.TokensGenerated,
			BatchID:         rec.Result.BatchID,
			BatchSize:       rec.Result.BatchSize,
			Source:          rec.Result.Source,
		}
	}
	return out
}

func newTaskID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return "task-" + hex.EncodeToString(buf)
}
