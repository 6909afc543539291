// Package stats implements the Stats Collector: running counters of
// requests, batches, completions, and batch-size distribution.
package stats

import "sync"

type Collector struct {
	mu sync.Mutex

	totalRequests  int64
	totalBatches   int64
	totalCompleted int64
	totalFailed    int64
	batchSizeSum   int64
	largestBatch   int
	mockResponses  int64
	realResponses  int64
}

func New() *Collector {
	return &Collector{}
}

func (c *Collector) RecordRequest() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.totalRequests++
}

// RecordBatch is called once per formed batch by the dispatcher, after
// the batch has returned, with its size and how many tasks in it
// completed vs failed and which adapter source produced each response.
func (c *Collector) RecordBatch(size int, completed, failed int, mockCount, realCount int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.totalBatches++
	c.batchSizeSum += int64(size)
	if size > c.largestBatch {
		c.largestBatch = size
	}
	c.totalCompleted += int64(completed)
	c.totalFailed += int64(failed)
	c.mockResponses += int64(mockCount)
	c.realResponses += int64(realCount)
}

type Snapshot struct {
	TotalRequests    int64
	TotalBatches     int64
	TotalCompleted   int64
	TotalFailed      int64
	AverageBatchSize float64
	LargestBatch     int
	MockResponses    int64
	RealResponses    int64
}

func (c *Collector) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	avg := 0.0
	if c.totalBatches > 0 {
		avg = float64(c.batchSizeSum) / float64(c.totalBatches)
	}
	return Snapshot{
		TotalRequests:    c.totalRequests,
		TotalBatches:     c.totalBatches,
		TotalCompleted:   c.totalCompleted,
		TotalFailed:      c.totalFailed,
		AverageBatchSize: avg,
		LargestBatch:     c.largestBatch,
		MockResponses:    c.mockResponses,
		RealResponses:    c.realResponses,
	}
}
