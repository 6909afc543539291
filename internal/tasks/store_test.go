package tasks

import (
	"context"
	"testing"
	"time"
)

func TestCreateAndGet(t *testing.T) {
	s := NewMemoryStore()
	rec := Record{TaskID: "t1", Principal: "alice", Priority: PriorityNormal, Prompt: "hello"}
	if err := s.Create(context.Background(), rec); err != nil {
		t.Fatalf("create: %v", err)
	}
	got, err := s.Get(context.Background(), "t1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != StatusQueued {
		t.Fatalf("expected default status queued, got %s", got.Status)
	}
}

func TestGetUnknownReturnsErrNotFound(t *testing.T) {
	s := NewMemoryStore()
	if _, err := s.Get(context.Background(), "missing"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestTransitionRejectsStaleFrom(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	rec := Record{TaskID: "t1", Status: StatusQueued}
	if err := s.Create(ctx, rec); err != nil {
		t.Fatalf("create: %v", err)
	}
	now := time.Now().UTC()
	if err := s.Transition(ctx, "t1", StatusQueued, StatusProcessing, Patch{StartedAt: &now}); err != nil {
		t.Fatalf("first transition: %v", err)
	}
	// A second claim attempt against the already-claimed task must fail:
	// this is the single-claim invariant.
	if err := s.Transition(ctx, "t1", StatusQueued, StatusProcessing, Patch{StartedAt: &now}); err != ErrStaleTransition {
		t.Fatalf("expected ErrStaleTransition on double claim, got %v", err)
	}
}

func TestListFiltersByPrincipalMostRecentFirst(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	base := time.Now().UTC()
	for i, principal := range []string{"alice", "bob", "alice"} {
		rec := Record{TaskID: "t" + string(rune('0'+i)), Principal: principal, CreatedAt: base.Add(time.Duration(i) * time.Second)}
		if err := s.Create(ctx, rec); err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	out, err := s.List(ctx, "alice", 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 records for alice, got %d", len(out))
	}
	if out[0].TaskID != "t2" {
		t.Fatalf("expected most recent first (t2), got %s", out[0].TaskID)
	}
}

func TestEvictRemovesOldTerminalRecordsByRetention(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	old := Record{TaskID: "old", Status: StatusCompleted, CreatedAt: time.Now().UTC().Add(-time.Hour)}
	fresh := Record{TaskID: "fresh", Status: StatusCompleted, CreatedAt: time.Now().UTC()}
	_ = s.Create(ctx, old)
	_ = s.Create(ctx, fresh)

	removed := s.Evict(ctx, 10*time.Minute, 0)
	if removed != 1 {
		t.Fatalf("expected 1 record evicted by retention, got %d", removed)
	}
	if _, err := s.Get(ctx, "old"); err != ErrNotFound {
		t.Fatalf("expected old record gone")
	}
	if _, err := s.Get(ctx, "fresh"); err != nil {
		t.Fatalf("expected fresh record to survive: %v", err)
	}
}

func TestEvictCapsRetainedCount(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		rec := Record{
			TaskID:    "t" + string(rune('0'+i)),
			Status:    StatusCompleted,
			CreatedAt: time.Now().UTC().Add(time.Duration(i) * time.Millisecond),
		}
		_ = s.Create(ctx, rec)
	}
	removed := s.Evict(ctx, 0, 2)
	if removed != 3 {
		t.Fatalf("expected 3 evicted to satisfy cap of 2, got %d", removed)
	}
}

func TestProcessingTimeRequiresBothTimestamps(t *testing.T) {
	r := Record{}
	if _, ok := r.ProcessingTime(); ok {
		t.Fatalf("expected no processing time without timestamps")
	}
	r.StartedAt = time.Now()
	r.CompletedAt = r.StartedAt.Add(5 * time.Second)
	d, ok := r.ProcessingTime()
	if !ok || d != 5*time.Second {
		t.Fatalf("expected 5s processing time, got %v (%v)", d, ok)
	}
}
