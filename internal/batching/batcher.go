// Package batching implements the Batcher: a single cooperative loop,
// started at service boot and stopped on shutdown, that forms batches
// from the priority queue under size and time bounds and hands each
// batch to the dispatcher.
package batching

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log"
	"time"

	"github.com/example/batchgate/internal/dispatch"
	"github.com/example/batchgate/internal/observability"
	"github.com/example/batchgate/internal/queue"
	"github.com/example/batchgate/internal/stats"
	"github.com/example/batchgate/internal/tasks"
)

type Options struct {
	MaxBatchSize     int
	BatchWaitTimeout time.Duration
	ShutdownGrace    time.Duration
}

type Batcher struct {
	queue      *queue.Queue
	store      tasks.Store
	dispatcher *dispatch.Dispatcher
	stats      *stats.Collector
	opts       Options

	done chan struct{}
}

func New(q *queue.Queue, store tasks.Store, d *dispatch.Dispatcher, collector *stats.Collector, opts Options) *Batcher {
	if opts.MaxBatchSize <= 0 {
		opts.MaxBatchSize = 32
	}
	if opts.BatchWaitTimeout <= 0 {
		opts.BatchWaitTimeout = 100 * time.Millisecond
	}
	if opts.ShutdownGrace <= 0 {
		opts.ShutdownGrace = 5 * time.Second
	}
	return &Batcher{
		queue:      q,
		store:      store,
		dispatcher: d,
		stats:      collector,
		opts:       opts,
		done:       make(chan struct{}),
	}
}

// Run is the batcher's single cooperative loop. It returns when ctx is
// canceled, after draining and failing any tasks left in the queue once
// the shutdown grace period elapses.
func (b *Batcher) Run(ctx context.Context) {
	defer close(b.done)
	for {
		if ctx.Err() != nil {
			b.shutdownDrain()
			return
		}
		if !b.queue.AwaitNonEmpty(ctx, 24*time.Hour) {
			if ctx.Err() != nil {
				b.shutdownDrain()
				return
			}
			continue
		}
		b.formAndDispatchOneBatch(ctx)
	}
}

// Done closes once Run has returned.
func (b *Batcher) Done() <-chan struct{} { return b.done }

func (b *Batcher) formAndDispatchOneBatch(ctx context.Context) {
	ctx, span := observability.StartSpan(ctx, "batcher.form_batch")
	defer span.End()

	t0 := time.Now()
	batchIDs := b.queue.DrainUpTo(b.opts.MaxBatchSize)

	for len(batchIDs) < b.opts.MaxBatchSize {
		remaining := b.opts.BatchWaitTimeout - time.Since(t0)
		if remaining <= 0 {
			break
		}
		if !b.queue.AwaitNonEmpty(ctx, remaining) {
			break
		}
		more := b.queue.DrainUpTo(b.opts.MaxBatchSize - len(batchIDs))
		if len(more) == 0 {
			break
		}
		batchIDs = append(batchIDs, more...)
	}

	if len(batchIDs) == 0 {
		return
	}

	batch := b.claimBatch(ctx, batchIDs)
	if len(batch) == 0 {
		return
	}

	batchID := newBatchID()
	if err := b.dispatcher.Run(ctx, batchID, batch); err != nil {
		log.Printf("batcher: dispatcher run failed for batch %s: %v", batchID, err)
	}
}

// claimBatch transitions every drained task from queued to processing.
// A task that fails this transition should not occur by construction
// (the single-claim invariant guarantees each task id is drained exactly
// once); it is logged and skipped rather than retried.
func (b *Batcher) claimBatch(ctx context.Context, taskIDs []string) []tasks.Record {
	out := make([]tasks.Record, 0, len(taskIDs))
	now := time.Now().UTC()
	for _, id := range taskIDs {
		if err := b.store.Transition(ctx, id, tasks.StatusQueued, tasks.StatusProcessing, tasks.Patch{StartedAt: &now}); err != nil {
			log.Printf("batcher: claim transition failed for task %s: %v", id, err)
			continue
		}
		rec, err := b.store.Get(ctx, id)
		if err != nil {
			log.Printf("batcher: lost task %s immediately after claim: %v", id, err)
			continue
		}
		out = append(out, rec)
	}
	return out
}

// shutdownDrain marks every task remaining in the queue as failed with
// reason "shutdown", after waiting out the configured grace period to
// let in-flight batches finish naturally.
func (b *Batcher) shutdownDrain() {
	time.Sleep(b.opts.ShutdownGrace)
	remaining := b.queue.DrainAll()
	if len(remaining) == 0 {
		return
	}
	now := time.Now().UTC()
	ctx := context.Background()
	for _, id := range remaining {
		rec, err := b.store.Get(ctx, id)
		if err != nil {
			continue
		}
		_ = b.store.Transition(ctx, id, rec.Status, tasks.StatusFailed, tasks.Patch{CompletedAt: &now, Error: "shutdown"})
	}
}

func newBatchID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return "batch-" + hex.EncodeToString(buf)
}
