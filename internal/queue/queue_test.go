package queue

import (
	"context"
	"testing"
	"time"

	"github.com/example/batchgate/internal/tasks"
)

func TestDrainUpToRespectsStrictPriorityOrder(t *testing.T) {
	q := New(100)
	ctx := context.Background()
	_ = q.Enqueue(ctx, "low-1", tasks.PriorityLow)
	_ = q.Enqueue(ctx, "normal-1", tasks.PriorityNormal)
	_ = q.Enqueue(ctx, "high-1", tasks.PriorityHigh)
	_ = q.Enqueue(ctx, "normal-2", tasks.PriorityNormal)

	got := q.DrainUpTo(10)
	want := []string{"high-1", "normal-1", "normal-2", "low-1"}
	if len(got) != len(want) {
		t.Fatalf("expected %d drained, got %d: %v", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("position %d: expected %s, got %s (%v)", i, want[i], got[i], got)
		}
	}
}

func TestDrainUpToPartialLeavesRemainderInPlace(t *testing.T) {
	q := New(100)
	ctx := context.Background()
	_ = q.Enqueue(ctx, "h1", tasks.PriorityHigh)
	_ = q.Enqueue(ctx, "h2", tasks.PriorityHigh)
	_ = q.Enqueue(ctx, "n1", tasks.PriorityNormal)

	first := q.DrainUpTo(1)
	if len(first) != 1 || first[0] != "h1" {
		t.Fatalf("expected [h1], got %v", first)
	}
	if q.Depth() != 2 {
		t.Fatalf("expected 2 remaining, got %d", q.Depth())
	}
	rest := q.DrainUpTo(10)
	if len(rest) != 2 || rest[0] != "h2" || rest[1] != "n1" {
		t.Fatalf("expected [h2 n1], got %v", rest)
	}
}

func TestEnqueueRejectsWhenAtMaxDepth(t *testing.T) {
	q := New(2)
	ctx := context.Background()
	if err := q.Enqueue(ctx, "a", tasks.PriorityNormal); err != nil {
		t.Fatalf("enqueue a: %v", err)
	}
	if err := q.Enqueue(ctx, "b", tasks.PriorityNormal); err != nil {
		t.Fatalf("enqueue b: %v", err)
	}
	if err := q.Enqueue(ctx, "c", tasks.PriorityNormal); err != ErrQueueFull {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
}

func TestAwaitNonEmptyUnblocksOnEnqueue(t *testing.T) {
	q := New(10)
	done := make(chan bool, 1)
	go func() {
		done <- q.AwaitNonEmpty(context.Background(), time.Second)
	}()
	time.Sleep(10 * time.Millisecond)
	_ = q.Enqueue(context.Background(), "x", tasks.PriorityNormal)
	select {
	case ok := <-done:
		if !ok {
			t.Fatalf("expected AwaitNonEmpty to report true")
		}
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for AwaitNonEmpty to unblock")
	}
}

func TestAwaitNonEmptyTimesOutWhenEmpty(t *testing.T) {
	q := New(10)
	ok := q.AwaitNonEmpty(context.Background(), 20*time.Millisecond)
	if ok {
		t.Fatalf("expected timeout on empty queue")
	}
}

func TestDrainAllEmptiesEveryLane(t *testing.T) {
	q := New(10)
	ctx := context.Background()
	_ = q.Enqueue(ctx, "h", tasks.PriorityHigh)
	_ = q.Enqueue(ctx, "n", tasks.PriorityNormal)
	_ = q.Enqueue(ctx, "l", tasks.PriorityLow)

	all := q.DrainAll()
	if len(all) != 3 {
		t.Fatalf("expected 3 drained, got %d", len(all))
	}
	if q.Depth() != 0 {
		t.Fatalf("expected queue empty after DrainAll, got depth %d", q.Depth())
	}
}
