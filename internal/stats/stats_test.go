package stats

import "testing"

func TestSnapshotComputesAverageBatchSize(t *testing.T) {
	c := New()
	c.RecordBatch(4, 4, 0, 1, 3)
	c.RecordBatch(2, 1, 1, 2, 0)

	snap := c.Snapshot()
	if snap.TotalBatches != 2 {
		t.Fatalf("expected 2 batches, got %d", snap.TotalBatches)
	}
	if snap.AverageBatchSize != 3 {
		t.Fatalf("expected average batch size 3, got %f", snap.AverageBatchSize)
	}
	if snap.LargestBatch != 4 {
		t.Fatalf("expected largest batch 4, got %d", snap.LargestBatch)
	}
	if snap.TotalCompleted != 5 || snap.TotalFailed != 1 {
		t.Fatalf("expected 5 completed / 1 failed, got %d/%d", snap.TotalCompleted, snap.TotalFailed)
	}
	if snap.MockResponses != 3 || snap.RealResponses != 3 {
		t.Fatalf("expected 3 mock / 3 real, got %d/%d", snap.MockResponses, snap.RealResponses)
	}
}

func TestSnapshotWithNoBatchesHasZeroAverage(t *testing.T) {
	c := New()
	snap := c.Snapshot()
	if snap.AverageBatchSize != 0 {
		t.Fatalf("expected zero average with no batches, got %f", snap.AverageBatchSize)
	}
}

func TestRecordRequestIncrementsTotalRequests(t *testing.T) {
	c := New()
	c.RecordRequest()
	c.RecordRequest()
	if snap := c.Snapshot(); snap.TotalRequests != 2 {
		t.Fatalf("expected 2 requests, got %d", snap.TotalRequests)
	}
}
