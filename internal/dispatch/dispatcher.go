// Package dispatch implements the Dispatcher: a bounded pool that runs
// batches concurrently, each executed by the Engine Adapter with
// per-task outcomes written back to the Task Store.
package dispatch

import (
	"context"
	"log"
	"time"

	"github.com/example/batchgate/internal/engine"
	"github.com/example/batchgate/internal/observability"
	"github.com/example/batchgate/internal/stats"
	"github.com/example/batchgate/internal/tasks"
)

// ResultArchiver persists a completed task's result out-of-band. It is
// optional and best-effort: a failure here never fails the task.
type ResultArchiver interface {
	Archive(ctx context.Context, taskID, batchID string, rec tasks.Record)
}

type Dispatcher struct {
	sem      chan struct{}
	adapter  engine.Adapter
	store    tasks.Store
	stats    *stats.Collector
	archiver ResultArchiver
}

func New(maxConcurrentBatches int, adapter engine.Adapter, store tasks.Store, collector *stats.Collector, archiver ResultArchiver) *Dispatcher {
	if maxConcurrentBatches <= 0 {
		maxConcurrentBatches = 4
	}
	return &Dispatcher{
		sem:      make(chan struct{}, maxConcurrentBatches),
		adapter:  adapter,
		store:    store,
		stats:    collector,
		archiver: archiver,
	}
}

// InFlight reports the number of batches currently being dispatched.
func (d *Dispatcher) InFlight() int {
	return len(d.sem)
}

// Run acquires a dispatcher slot — blocking when MAX_CONCURRENT_BATCHES
// batches are already in flight — then hands the batch off to a
// dedicated goroutine and returns, so the caller (the batcher loop) can
// immediately resume forming the next batch.
func (d *Dispatcher) Run(ctx context.Context, batchID string, batch []tasks.Record) error {
	select {
	case d.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	go d.runBatch(ctx, batchID, batch)
	return nil
}

func (d *Dispatcher) runBatch(ctx context.Context, batchID string, batch []tasks.Record) {
	defer func() { <-d.sem }()

	ctx, span := observability.StartSpan(ctx, "dispatcher.run_batch")
	defer span.End()

	outcomes, err := d.adapter.Invoke(ctx, batch)
	completedAt := time.Now().UTC()

	if err != nil {
		d.failWholeBatch(ctx, batch, completedAt, err)
		d.stats.RecordBatch(len(batch), 0, len(batch), 0, 0)
		return
	}

	completed, failed, mockCount, realCount := 0, 0, 0, 0
	outcomeByTask := make(map[string]engine.Outcome, len(outcomes))
	for _, o := range outcomes {
		outcomeByTask[o.TaskID] = o
	}

	for _, t := range batch {
		o, ok := outcomeByTask[t.TaskID]
		if !ok {
			continue
		}
		switch o.Source {
		case engine.SourceMock, engine.SourceMockFallback:
			mockCount++
		case engine.SourceReal:
			realCount++
		}
		if o.Err != nil {
			failed++
			if err := d.store.Transition(ctx, t.TaskID, tasks.StatusProcessing, tasks.StatusFailed, tasks.Patch{
				CompletedAt: &completedAt,
				Error:       o.Err.Error(),
			}); err != nil {
				log.Printf("dispatcher: transition to failed for task %s: %v", t.TaskID, err)
			}
			continue
		}
		completed++
		result := &tasks.Result{
			Response:        o.Response,
			TokensGenerated: o.TokensGenerated,
			BatchID:         batchID,
			BatchSize:       len(batch),
			Source:          o.Source,
		}
		if err := d.store.Transition(ctx, t.TaskID, tasks.StatusProcessing, tasks.StatusCompleted, tasks.Patch{
			CompletedAt: &completedAt,
			Result:      result,
		}); err != nil {
			log.Printf("dispatcher: transition to completed for task %s: %v", t.TaskID, err)
			continue
		}
		if d.archiver != nil {
			rec, getErr := d.store.Get(ctx, t.TaskID)
			if getErr == nil {
				d.archiver.Archive(ctx, t.TaskID, batchID, rec)
			}
		}
	}
	d.stats.RecordBatch(len(batch), completed, failed, mockCount, realCount)
}

// failWholeBatch handles an adapter-level crash (not a per-task error):
// every task in the batch is marked failed with the adapter error as
// reason.
func (d *Dispatcher) failWholeBatch(ctx context.Context, batch []tasks.Record, completedAt time.Time, batchErr error) {
	for _, t := range batch {
		if err := d.store.Transition(ctx, t.TaskID, tasks.StatusProcessing, tasks.StatusFailed, tasks.Patch{
			CompletedAt: &completedAt,
			Error:       batchErr.Error(),
		}); err != nil {
			log.Printf("dispatcher: transition to failed (batch error) for task %s: %v", t.TaskID, err)
		}
	}
}
