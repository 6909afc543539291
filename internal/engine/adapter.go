// Package engine implements the Engine Adapter: translation of a batch
// into upstream calls (real mode) or deterministic simulated responses
// (mock mode), with per-request fallback on upstream failure.
package engine

import (
	"context"

	"github.com/example/batchgate/internal/tasks"
)

const (
	SourceReal         = "real"
	SourceMock         = "mock"
	SourceMockFallback = "mock-fallback"
)

// Outcome is the adapter's per-task result. BatchID and BatchSize are
// attached by the dispatcher, not the adapter.
type Outcome struct {
	TaskID          string
	Response        string
	TokensGenerated int
	Source          string
	Err             error
}

// Adapter is the one-time construction decision between mock and real
// mode; a real-mode adapter never degrades to pure mock mode, only
// per-task fallbacks occur.
type Adapter interface {
	// Invoke runs every task in batch, in parallel where applicable, and
	// returns one Outcome per task in batch order. A non-nil returned
	// error indicates an adapter-level failure (not a per-task failure):
	// the caller must mark every task in the batch as failed.
	Invoke(ctx context.Context, batch []tasks.Record) ([]Outcome, error)

	// Mode reports "mock" or "real" for health reporting.
	Mode() string

	// ListModels reports the model ids this adapter can serve. In real
	// mode this proxies the upstream's own model list; in mock mode it
	// is unused by the HTTP Surface, which synthesizes the listing from
	// model policy instead.
	ListModels(ctx context.Context) ([]string, error)
}
