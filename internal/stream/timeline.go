package stream

import (
	"container/heap"

	"backtestsim/internal/model"
)

// Timeline is a deterministic iterator over the merged replay stream.
// Next pops events in strictly non-decreasing time, ties broken by
// (inputKind, inputKey) (§4.B, §8 property 3).
type Timeline struct {
	sources []Provider
	values  [][]TimedValue
	items   eventHeap
}

func newTimeline(sources []Provider, values [][]TimedValue) *Timeline {
	t := &Timeline{sources: sources, values: values}
	for i, vs := range values {
		if len(vs) == 0 {
			continue
		}
		heap.Push(&t.items, heapItem{
			event:   Event{Time: vs[0].Time, Input: sources[i].Input(), Value: vs[0].Value},
			srcIdx:  i,
			valIdx:  0,
		})
	}
	return t
}

// Next returns the next event in merge order, or false if the timeline
// is exhausted.
func (t *Timeline) Next() (Event, bool) {
	if t.items.Len() == 0 {
		return Event{}, false
	}
	item := heap.Pop(&t.items).(heapItem)

	nextIdx := item.valIdx + 1
	if vs := t.values[item.srcIdx]; nextIdx < len(vs) {
		heap.Push(&t.items, heapItem{
			event:  Event{Time: vs[nextIdx].Time, Input: t.sources[item.srcIdx].Input(), Value: vs[nextIdx].Value},
			srcIdx: item.srcIdx,
			valIdx: nextIdx,
		})
	}
	return item.event, true
}

type heapItem struct {
	event  Event
	srcIdx int
	valIdx int
}

type eventHeap []heapItem

func (h eventHeap) Len() int { return len(h) }

func (h eventHeap) Less(i, j int) bool {
	a, b := h[i].event, h[j].event
	if !a.Time.Equal(b.Time) {
		return a.Time.Before(b.Time)
	}
	return model.IDOf(a.Input).Less(model.IDOf(b.Input))
}

func (h eventHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *eventHeap) Push(x any) {
	*h = append(*h, x.(heapItem))
}

func (h *eventHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
