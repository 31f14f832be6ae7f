package client

import (
	"container/heap"
	"sync"
)

// jitterItem is one entry in the jitter buffer's priority queue.
type jitterItem struct {
	timestamp uint32
	data      []byte
}

// timestampHeap implements container/heap.Interface ordered by
// ascending timestamp, so the root is always the oldest undelivered
// frame.
type timestampHeap []*jitterItem

func (h timestampHeap) Len() int            { return len(h) }
func (h timestampHeap) Less(i, j int) bool  { return h[i].timestamp < h[j].timestamp }
func (h timestampHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *timestampHeap) Push(x interface{}) { *h = append(*h, x.(*jitterItem)) }
func (h *timestampHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// JitterBuffer is a bounded priority queue of (timestamp, frame) pairs,
// ordered by ascending timestamp, that absorbs network reordering
// before the paced renderer consumes frames in order (spec.md §3, §4.5).
type JitterBuffer struct {
	mu       sync.Mutex
	items    timestampHeap
	capacity int

	prebufferThreshold int
	prebufferReady      bool
	prebufferCh          chan struct{}
}

// NewJitterBuffer constructs a buffer with the given capacity (spec.md
// default 30) and prebuffer threshold (entries to accumulate before the
// renderer may start consuming).
func NewJitterBuffer(capacity, prebufferThreshold int) *JitterBuffer {
	if capacity <= 0 {
		capacity = 30
	}
	if prebufferThreshold <= 0 {
		prebufferThreshold = 1
	}
	return &JitterBuffer{
		capacity:           capacity,
		prebufferThreshold: prebufferThreshold,
		prebufferCh:        make(chan struct{}),
	}
}

// Push enqueues a completed frame. If the buffer is already at capacity,
// the oldest (smallest-timestamp) entry is evicted first.
func (b *JitterBuffer) Push(timestamp uint32, data []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.items) >= b.capacity {
		heap.Pop(&b.items)
	}
	heap.Push(&b.items, &jitterItem{timestamp: timestamp, data: data})

	if !b.prebufferReady && len(b.items) >= b.prebufferThreshold {
		b.prebufferReady = true
		close(b.prebufferCh)
	}
}

// Pop removes and returns the smallest-timestamp entry. ok is false if
// the buffer is empty.
func (b *JitterBuffer) Pop() (data []byte, timestamp uint32, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.items) == 0 {
		return nil, 0, false
	}
	item := heap.Pop(&b.items).(*jitterItem)
	return item.data, item.timestamp, true
}

// Len returns the number of buffered frames.
func (b *JitterBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items)
}

// PrebufferReady returns a channel closed once the prebuffer threshold
// has been reached for the first time.
func (b *JitterBuffer) PrebufferReady() <-chan struct{} {
	return b.prebufferCh
}
