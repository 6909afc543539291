// Package api is the HTTP Surface: request validation, authentication,
// task submission, status/list, batch submission, health, and stats.
package api

import (
	"net/http"
	"time"

	"github.com/example/batchgate/internal/authn"
	"github.com/example/batchgate/internal/dispatch"
	"github.com/example/batchgate/internal/engine"
	"github.com/example/batchgate/internal/modelpolicy"
	"github.com/example/batchgate/internal/queue"
	"github.com/example/batchgate/internal/stats"
	"github.com/example/batchgate/internal/tasks"
)

type Limits struct {
	MaxPromptLength    int
	MaxBatchSubmitSize int
	ListDefaultLimit   int
	SynchronousTimeout time.Duration
}

type BatchingConfig struct {
	MaxBatchSize         int
	BatchWaitTimeout     time.Duration
	MaxConcurrentBatches int
}

type Server struct {
	verifier   *authn.Verifier
	store      tasks.Store
	queue      *queue.Queue
	statsColl  *stats.Collector
	dispatcher *dispatch.Dispatcher
	adapter    engine.Adapter
	policy     *modelpolicy.Policy
	limits     Limits
	batching   BatchingConfig
}

func NewServer(
	verifier *authn.Verifier,
	store tasks.Store,
	q *queue.Queue,
	collector *stats.Collector,
	dispatcher *dispatch.Dispatcher,
	adapter engine.Adapter,
	policy *modelpolicy.Policy,
	limits Limits,
	batching BatchingConfig,
) *Server {
	if limits.ListDefaultLimit <= 0 {
		limits.ListDefaultLimit = 100
	}
	if limits.SynchronousTimeout <= 0 {
		limits.SynchronousTimeout = 120 * time.Second
	}
	return &Server{
		verifier:   verifier,
		store:      store,
		queue:      q,
		statsColl:  collector,
		dispatcher: dispatcher,
		adapter:    adapter,
		policy:     policy,
		limits:     limits,
		batching:   batching,
	}
}

// Handler builds the full middleware-wrapped mux, matching the
// withTracing(withLogging(mux)) composition used throughout this codebase
// family.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /token", s.handleToken)
	mux.HandleFunc("POST /inference/async", s.requireAuth(s.handleSubmitAsync))
	mux.HandleFunc("POST /inference/batch", s.requireAuth(s.handleSubmitBatch))
	mux.HandleFunc("GET /tasks/{task_id}", s.requireAuth(s.handleGetTask))
	mux.HandleFunc("GET /tasks", s.requireAuth(s.handleListTasks))
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /stats", s.handleStats)
	mux.HandleFunc("GET /metrics", s.handleMetrics)

	mux.HandleFunc("POST /v1/chat/completions", s.requireAuth(s.handleChatCompletions))
	mux.HandleFunc("POST /v1/completions", s.requireAuth(s.handleCompletions))
	mux.HandleFunc("GET /v1/models", s.requireAuth(s.handleListModels))

	return withTracing(withLogging(mux))
}
