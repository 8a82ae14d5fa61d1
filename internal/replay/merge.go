// Package replay merges independently stored series back into the order their
// samples originally arrived in.
package replay

import (
	"container/heap"
	"fmt"
	"sort"

	"github.com/banshee-data/carhack/internal/codec"
)

// Reader is a randomly indexable series of samples in append order.
type Reader interface {
	Len() int
	At(i int) (codec.Sample, error)
}

// Event is one merged sample.
type Event struct {
	Name   string
	Sample codec.Sample
}

type cursor struct {
	name    string
	r       Reader
	ordinal int
	index   int
	head    codec.Sample
}

// cursorHeap orders cursors by (timestamp, index within series, series
// ordinal).
type cursorHeap []*cursor

func (h cursorHeap) Len() int { return len(h) }

func (h cursorHeap) Less(i, j int) bool {
	a, b := h[i], h[j]
	if a.head.Timestamp != b.head.Timestamp {
		return a.head.Timestamp < b.head.Timestamp
	}
	if a.index != b.index {
		return a.index < b.index
	}
	return a.ordinal < b.ordinal
}

func (h cursorHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *cursorHeap) Push(x any) { *h = append(*h, x.(*cursor)) }

func (h *cursorHeap) Pop() any {
	old := *h
	n := len(old)
	c := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return c
}

// Iterator yields the union of its series in non-decreasing timestamp order.
// It is single pass.
//
//	it := replay.Merge(series)
//	for it.Next() {
//		use(it.Name(), it.Sample())
//	}
//	if err := it.Err(); err != nil { ... }
type Iterator struct {
	h       cursorHeap
	pending []*cursor
	started bool
	cur     Event
	err     error
}

// Merge returns an iterator over series. Ties between series are broken by
// the sorted position of the series name, so the order does not depend on map
// iteration.
func Merge(series map[string]Reader) *Iterator {
	names := make([]string, 0, len(series))
	for name := range series {
		names = append(names, name)
	}
	sort.Strings(names)

	it := &Iterator{}
	for i, name := range names {
		it.pending = append(it.pending, &cursor{name: name, r: series[name], ordinal: i})
	}
	return it
}

func (it *Iterator) start() {
	it.started = true
	for _, c := range it.pending {
		if c.r == nil || c.r.Len() == 0 {
			continue
		}
		if !it.load(c) {
			return
		}
		it.h = append(it.h, c)
	}
	it.pending = nil
	heap.Init(&it.h)
}

// load reads the sample under c's cursor into c.head.
func (it *Iterator) load(c *cursor) bool {
	s, err := c.r.At(c.index)
	if err != nil {
		it.err = fmt.Errorf("read %s[%d]: %w", c.name, c.index, err)
		it.h = nil
		return false
	}
	c.head = s
	return true
}

// Next advances to the next event and reports whether there is one.
func (it *Iterator) Next() bool {
	if !it.started {
		it.start()
	}
	if it.err != nil || len(it.h) == 0 {
		return false
	}

	c := it.h[0]
	it.cur = Event{Name: c.name, Sample: c.head}

	c.index++
	if c.index < c.r.Len() {
		if !it.load(c) {
			// The current event is still valid; the error surfaces on the
			// following call.
			return true
		}
		heap.Fix(&it.h, 0)
	} else {
		heap.Pop(&it.h)
	}
	return true
}

// Name returns the series name of the current event.
func (it *Iterator) Name() string { return it.cur.Name }

// Sample returns the current sample.
func (it *Iterator) Sample() codec.Sample { return it.cur.Sample }

// Event returns the current event.
func (it *Iterator) Event() Event { return it.cur }

// Err returns the first read error encountered.
func (it *Iterator) Err() error { return it.err }

// Collect drains it into a slice.
func Collect(it *Iterator) ([]Event, error) {
	var out []Event
	for it.Next() {
		out = append(out, it.Event())
	}
	return out, it.Err()
}
