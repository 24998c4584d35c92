// Package stream merges finite per-input timed event sequences into a
// single monotonic replay timeline (§4.B): a k-way merge via a min-heap
// keyed by (time, inputKind, inputKey), with per-input streams
// materialized by bounded loader goroutines ahead of the merge.
package stream

import (
	"context"
	"time"

	"backtestsim/internal/model"
)

// TimedValue is one point in a per-input stream, prior to merging.
type TimedValue struct {
	Time  time.Time
	Value any
}

// Event is one entry of the merged replay timeline.
type Event struct {
	Time  time.Time
	Input model.Input
	Value any
}

// Provider yields the finite, time-ordered sequence of values for one
// input within [start, end]. Implementations must honor ctx
// cancellation and return times within [start, end], non-decreasing.
type Provider interface {
	Input() model.Input
	Load(ctx context.Context, start, end time.Time) ([]TimedValue, error)
}
