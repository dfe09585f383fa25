package timer

import (
	"github.com/luoqeng/asynckit/ds/slab"
)

// timerEntry is the slab-resident state of one armed deadline. The heap
// never stores entries directly; it stores entryItems referencing the
// slab, and the slab generation decides at pop time whether an item is
// still current.
type timerEntry struct {
	when      int64 // monotonic nanoseconds from the driver epoch
	cancelled bool
	waker     Waker
}

// entryItem is what actually sits in the heap. seq breaks ties between
// equal deadlines so entries fire in insertion order.
type entryItem struct {
	when int64
	seq  uint64
	ref  slab.Ref
}

type entryHeap []entryItem

func (h entryHeap) Len() int { return len(h) }

func (h entryHeap) Less(i, j int) bool {
	if h[i].when != h[j].when {
		return h[i].when < h[j].when
	}
	return h[i].seq < h[j].seq
}

func (h entryHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *entryHeap) Push(x any) {
	*h = append(*h, x.(entryItem))
}

func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	*h = old[:n-1]
	return it
}
