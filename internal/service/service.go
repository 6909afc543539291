// Package service wires every collaborator into a single value owned by
// main: the Credential Verifier, Task Store, Priority Queue, Stats
// Collector, Engine Adapter, Dispatcher, Batcher, and HTTP Server, plus
// the background eviction loop that bounds the Task Store's retention.
package service

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/example/batchgate/internal/api"
	"github.com/example/batchgate/internal/archive"
	"github.com/example/batchgate/internal/authn"
	"github.com/example/batchgate/internal/batching"
	"github.com/example/batchgate/internal/config"
	"github.com/example/batchgate/internal/dispatch"
	"github.com/example/batchgate/internal/engine"
	"github.com/example/batchgate/internal/modelpolicy"
	"github.com/example/batchgate/internal/observability"
	"github.com/example/batchgate/internal/queue"
	"github.com/example/batchgate/internal/stats"
	"github.com/example/batchgate/internal/tasks"
)

type Service struct {
	cfg        config.Config
	store      tasks.Store
	queue      *queue.Queue
	stats      *stats.Collector
	adapter    engine.Adapter
	dispatcher *dispatch.Dispatcher
	batcher    *batching.Batcher
	server     *api.Server
}

func New(cfg config.Config) (*Service, error) {
	verifier, err := authn.NewFromEnv(cfg.JWTSecretKey, cfg.JWTAlgorithm, cfg.JWTExpirationMinutes)
	if err != nil {
		return nil, err
	}

	policy, err := modelpolicy.Load(cfg.ModelPolicyFile, cfg.RealEngineModel)
	if err != nil {
		return nil, err
	}

	store := tasks.NewMemoryStore()
	q := queue.New(cfg.QueueMaxDepth)
	collector := stats.New()

	var adapter engine.Adapter
	if cfg.UseRealEngine {
		real := engine.NewRealAdapter(cfg.RealEngineURL, cfg.RealEngineModel, cfg.RealEngineTimeout, cfg.RealEngineFallback)
		real.ProbeHealth(context.Background())
		adapter = real
	} else {
		adapter = engine.NewMockAdapter()
	}

	var archiver dispatch.ResultArchiver
	if cfg.ResultArchive == "minio" {
		a, err := archive.NewMinIOArchiver(cfg.MinIOEndpoint, cfg.MinIOAccessKey, cfg.MinIOSecretKey, cfg.MinIOBucket, cfg.MinIOUseSSL)
		if err != nil {
			return nil, err
		}
		archiver = a
	}

	dispatcher := dispatch.New(cfg.MaxConcurrentBatches, adapter, store, collector, archiver)
	batcher := batching.New(q, store, dispatcher, collector, batching.Options{
		MaxBatchSize:     cfg.MaxBatchSize,
		BatchWaitTimeout: cfg.BatchWaitTimeout,
		ShutdownGrace:    cfg.ShutdownGrace,
	})

	server := api.NewServer(verifier, store, q, collector, dispatcher, adapter, policy, api.Limits{
		MaxPromptLength:    cfg.MaxPromptLength,
		MaxBatchSubmitSize: cfg.MaxBatchSubmitSize,
		SynchronousTimeout: cfg.SynchronousTimeout,
	}, api.BatchingConfig{
		MaxBatchSize:         cfg.MaxBatchSize,
		BatchWaitTimeout:     cfg.BatchWaitTimeout,
		MaxConcurrentBatches: cfg.MaxConcurrentBatches,
	})

	return &Service{
		cfg:        cfg,
		store:      store,
		queue:      q,
		stats:      collector,
		adapter:    adapter,
		dispatcher: dispatcher,
		batcher:    batcher,
		server:     server,
	}, nil
}

// Handler returns the fully wrapped HTTP handler for the gateway's listener.
func (s *Service) Handler() http.Handler {
	return s.server.Handler()
}

// EngineMode reports "mock" or "real", for the startup log line.
func (s *Service) EngineMode() string {
	return s.adapter.Mode()
}

// Run starts the batcher's cooperative loop and the periodic eviction
// loop. It blocks until ctx is canceled, then waits for the batcher to
// finish draining before returning.
func (s *Service) Run(ctx context.Context) {
	go s.evictLoop(ctx)
	s.batcher.Run(ctx)
}

func (s *Service) evictLoop(ctx context.Context) {
	interval := s.cfg.TaskRetention / 4
	if interval <= 0 || interval > time.Minute {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed := s.store.Evict(ctx, s.cfg.TaskRetention, s.cfg.TaskMaxRetained)
			if removed > 0 {
				log.Printf("service: evicted %d terminal tasks", removed)
			}
		}
	}
}
