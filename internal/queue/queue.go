// Package queue implements the Priority Queue: three strict-priority FIFO
// lanes (high, normal, low) fed by submitters and drained by the batcher.
package queue

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/example/batchgate/internal/observability"
	"github.com/example/batchgate/internal/tasks"
)

// ErrQueueFull is returned by Enqueue when the total queued task count
// would exceed the configured cap.
var ErrQueueFull = errors.New("queue: full")

type Queue struct {
	mu       sync.Mutex
	notEmpty chan struct{}
	high     []string
	normal   []string
	low      []string
	maxDepth int
}

func New(maxDepth int) *Queue {
	if maxDepth <= 0 {
		maxDepth = 10000
	}
	return &Queue{
		notEmpty: make(chan struct{}, 1),
		high:     make([]string, 0, 64),
		normal:   make([]string, 0, 64),
		low:      make([]string, 0, 64),
		maxDepth: maxDepth,
	}
}

func (q *Queue) depth() int {
	return len(q.high) + len(q.normal) + len(q.low)
}

// Depth reports the current total queued count across all lanes.
func (q *Queue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.depth()
}

// Enqueue appends taskID to the lane for priority. It fails with
// ErrQueueFull once the total queued count would exceed maxDepth.
func (q *Queue) Enqueue(_ context.Context, taskID string, priority tasks.Priority) error {
	q.mu.Lock()
	if q.depth() >= q.maxDepth {
		q.mu.Unlock()
		observability.Default.IncCounter("queue_rejected_full_total", nil, 1)
		return ErrQueueFull
	}
	switch priority {
	case tasks.PriorityHigh:
		q.high = append(q.high, taskID)
	case tasks.PriorityLow:
		q.low = append(q.low, taskID)
	default:
		q.normal = append(q.normal, taskID)
	}
	observability.Default.IncCounter("queue_enqueued_total", map[string]string{"priority": string(priority)}, 1)
	q.mu.Unlock()
	q.signal()
	return nil
}

func (q *Queue) signal() {
	select {
	case q.notEmpty <- struct{}{}:
	default:
	}
}

// DrainUpTo removes up to n tasks, consuming strictly in the order
// high -> normal -> low; within a lane, FIFO order is preserved.
func (q *Queue) DrainUpTo(n int) []string {
	if n <= 0 {
		return nil
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]string, 0, n)
	out = drainLane(&q.high, n, out)
	if len(out) < n {
		out = drainLane(&q.normal, n, out)
	}
	if len(out) < n {
		out = drainLane(&q.low, n, out)
	}
	if len(out) > 0 {
		observability.Default.SetGauge("queue_depth", nil, float64(q.depth()))
	}
	return out
}

func drainLane(lane *[]string, n int, out []string) []string {
	need := n - len(out)
	if need <= 0 || len(*lane) == 0 {
		return out
	}
	if need > len(*lane) {
		need = len(*lane)
	}
	out = append(out, (*lane)[:need]...)
	*lane = (*lane)[need:]
	return out
}

// AwaitNonEmpty blocks until the queue has at least one task, the timeout
// elapses, or ctx is done. It returns true if the queue is (or became)
// non-empty.
func (q *Queue) AwaitNonEmpty(ctx context.Context, timeout time.Duration) bool {
	if q.Depth() > 0 {
		return true
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case <-q.notEmpty:
			// A signal left over from an earlier enqueue whose task has
			// already been drained must not end the wait early.
			if q.Depth() > 0 {
				return true
			}
		case <-timer.C:
			return q.Depth() > 0
		case <-ctx.Done():
			return false
		}
	}
}

// DrainAll removes and returns every queued task id, in strict-priority
// order, used by the shutdown path to mark remaining tasks failed.
func (q *Queue) DrainAll() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]string, 0, q.depth())
	out = append(out, q.high...)
	out = append(out, q.normal...)
	out = append(out, q.low...)
	q.high = q.high[:0]
	q.normal = q.normal[:0]
	q.low = q.low[:0]
	return out
}
