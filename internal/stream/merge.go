package stream

import (
	"context"
	"time"

	"github.com/sourcegraph/conc"

	"backtestsim/internal/model"
)

// Merge materializes every source's stream via bounded goroutines (one
// per source — the fan-out is naturally bounded by the number of
// distinct inputs a bot declares) and returns a Timeline that yields the
// k-way merged result. Each load is bounded by timeout. Merge waits for
// every source to finish or time out; if any failed with LoaderTimeout
// or LoaderIoFailure, it returns the failure of the first such source in
// slice order and no Timeline (§4.B, §7).
func Merge(sources []Provider, start, end time.Time, timeout time.Duration) (*Timeline, error) {
	values := make([][]TimedValue, len(sources))
	errs := make([]error, len(sources))

	var wg conc.WaitGroup
	for i, src := range sources {
		i, src := i, src
		wg.Go(func() {
			values[i], errs[i] = loadWithTimeout(src, start, end, timeout)
		})
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}

	return newTimeline(sources, values), nil
}

func loadWithTimeout(src Provider, start, end time.Time, timeout time.Duration) ([]TimedValue, error) {
	type result struct {
		values []TimedValue
		err    error
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	ch := make(chan result, 1)
	go func() {
		values, err := src.Load(ctx, start, end)
		ch <- result{values: values, err: err}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			return nil, LoaderIoFailure{Input: model.IDOf(src.Input()).String(), Err: r.err}
		}
		return r.values, nil
	case <-ctx.Done():
		return nil, LoaderTimeout{Input: model.IDOf(src.Input()).String(), Timeout: timeout}
	}
}
