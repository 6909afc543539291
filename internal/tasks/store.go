// Package tasks implements the Task Store: an in-memory mapping from task
// id to task record, with conditional lifecycle transitions and bounded
// retention. Concrete implementations are interchangeable behind the
// Store interface, per the source's result-storage abstraction.
package tasks

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/example/batchgate/internal/observability"
)

// ErrStaleTransition signals that a transition's expected "from" status
// did not match the record's current status. This is a programmer error —
// it indicates the single-claim invariant was violated somewhere upstream
// — and must never be surfaced to an HTTP caller as-is.
var ErrStaleTransition = errors.New("tasks: stale transition")

// ErrNotFound is returned by Get/Transition for an unknown task id.
var ErrNotFound = errors.New("tasks: not found")

// Patch carries the fields a transition sets atomically alongside the
// status change.
type Patch struct {
	StartedAt   *time.Time
	CompletedAt *time.Time
	Result      *Result
	Error       string
}

type Store interface {
	Create(ctx context.Context, rec Record) error
	Get(ctx context.Context, taskID string) (Record, error)
	List(ctx context.Context, principal string, limit int) ([]Record, error)
	Transition(ctx context.Context, taskID string, from, to Status, patch Patch) error
	Evict(ctx context.Context, retention time.Duration, maxRetained int) int
}

type MemoryStore struct {
	mu      sync.Mutex
	records map[string]Record
	order   []string // insertion order, oldest first
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]Record),
		order:   make([]string, 0, 1024),
	}
}

func (s *MemoryStore) Create(_ context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	if rec.Status == "" {
		rec.Status = StatusQueued
	}
	s.records[rec.TaskID] = rec
	s.order = append(s.order, rec.TaskID)
	observability.Default.IncCounter("tasks_created_total", map[string]string{"priority": string(rec.Priority)}, 1)
	return nil
}

func (s *MemoryStore) Get(_ context.Context, taskID string) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[taskID]
	if !ok {
		return Record{}, ErrNotFound
	}
	return rec, nil
}

// List returns up to limit records, most recently created first, filtered
// to the given principal when non-empty.
func (s *MemoryStore) List(_ context.Context, principal string, limit int) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit <= 0 {
		limit = 100
	}
	out := make([]Record, 0, limit)
	for i := len(s.order) - 1; i >= 0 && len(out) < limit; i-- {
		rec, ok := s.records[s.order[i]]
		if !ok {
			continue
		}
		if principal != "" && rec.Principal != principal {
			continue
		}
		out = append(out, rec)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// Transition applies a conditional status change: it succeeds only if the
// record's current status equals from, and atomically applies patch.
func (s *MemoryStore) Transition(_ context.Context, taskID string, from, to Status, patch Patch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[taskID]
	if !ok {
		return ErrNotFound
	}
	if rec.Status != from {
		return ErrStaleTransition
	}
	rec.Status = to
	if patch.StartedAt != nil {
		rec.StartedAt = *patch.StartedAt
	}
	if patch.CompletedAt != nil {
		rec.CompletedAt = *patch.CompletedAt
	}
	if patch.Result != nil {
		rec.Result = patch.Result
	}
	if patch.Error != "" {
		rec.Error = patch.Error
	}
	s.records[taskID] = rec
	observability.Default.IncCounter("tasks_transitioned_total", map[string]string{"from": string(from), "to": string(to)}, 1)
	return nil
}

// Evict removes terminal records older than retention, then, if still
// over maxRetained, evicts the oldest terminal records first until the
// cap is satisfied. It returns the number of records removed.
func (s *MemoryStore) Evict(_ context.Context, retention time.Duration, maxRetained int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	removed := 0

	keep := make([]string, 0, len(s.order))
	for _, id := range s.order {
		rec, ok := s.records[id]
		if !ok {
			continue
		}
		if isTerminal(rec.Status) && retention > 0 && now.Sub(rec.CreatedAt) > retention {
			delete(s.records, id)
			removed++
			continue
		}
		keep = append(keep, id)
	}
	s.order = keep

	if maxRetained > 0 && len(s.order) > maxRetained {
		overflow := len(s.order) - maxRetained
		kept := make([]string, 0, len(s.order))
		evictedSoFar := 0
		for _, id := range s.order {
			rec, ok := s.records[id]
			if ok && evictedSoFar < overflow && isTerminal(rec.Status) {
				delete(s.records, id)
				removed++
				evictedSoFar++
				continue
			}
			kept = append(kept, id)
		}
		s.order = kept
	}
	if removed > 0 {
		observability.Default.IncCounter("tasks_evicted_total", nil, float64(removed))
	}
	return removed
}

func isTerminal(s Status) bool {
	return s == StatusCompleted || s == StatusFailed
}
