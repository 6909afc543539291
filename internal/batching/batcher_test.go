package batching

import (
	"context"
	"testing"
	"time"

	"github.com/example/batchgate/internal/dispatch"
	"github.com/example/batchgate/internal/engine"
	"github.com/example/batchgate/internal/queue"
	"github.com/example/batchgate/internal/stats"
	"github.com/example/batchgate/internal/tasks"
)

func TestBatcherFormsBatchUpToMaxSize(t *testing.T) {
	store := tasks.NewMemoryStore()
	q := queue.New(100)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		id := "t" + string(rune('0'+i))
		_ = store.Create(ctx, tasks.Record{TaskID: id, Status: tasks.StatusQueued})
		_ = q.Enqueue(ctx, id, tasks.PriorityNormal)
	}

	adapter := engine.NewMockAdapter()
	collector := stats.New()
	d := dispatch.New(4, adapter, store, collector, nil)
	b := New(q, store, d, stats.New(), Options{MaxBatchSize: 2, BatchWaitTimeout: 10 * time.Millisecond, ShutdownGrace: time.Millisecond})

	runCtx, cancel := context.WithCancel(ctx)
	go b.Run(runCtx)
	time.Sleep(50 * time.Millisecond)
	cancel()
	<-b.Done()

	if q.Depth() >= 3 {
		t.Fatalf("expected batcher to have drained some tasks, depth=%d", q.Depth())
	}

	// Dispatched batches settle once the canceled mock adapter returns.
	deadline := time.Now().Add(time.Second)
	for d.InFlight() > 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	snap := collector.Snapshot()
	if snap.TotalBatches == 0 || snap.LargestBatch > 2 {
		t.Fatalf("expected batches of at most 2 tasks, got %d batches with largest %d", snap.TotalBatches, snap.LargestBatch)
	}
}

func TestShutdownDrainFailsRemainingQueuedTasks(t *testing.T) {
	store := tasks.NewMemoryStore()
	q := queue.New(100)
	ctx := context.Background()
	_ = store.Create(ctx, tasks.Record{TaskID: "stuck", Status: tasks.StatusQueued})
	_ = q.Enqueue(ctx, "stuck", tasks.PriorityNormal)

	adapter := engine.NewMockAdapter()
	d := dispatch.New(1, adapter, store, stats.New(), nil)
	b := New(q, store, d, stats.New(), Options{MaxBatchSize: 100, BatchWaitTimeout: time.Hour, ShutdownGrace: time.Millisecond})

	runCtx, cancel := context.WithCancel(ctx)
	cancel()
	b.Run(runCtx)

	rec, err := store.Get(ctx, "stuck")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec.Status != tasks.StatusFailed || rec.Error != "shutdown" {
		t.Fatalf("expected stuck task failed with reason shutdown, got status=%s error=%s", rec.Status, rec.Error)
	}
}
