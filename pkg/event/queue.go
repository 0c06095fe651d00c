package event

import "container/heap"

// Queue is the kernel's priority queue of Queued events, a min-heap over
// the total order Less defines, using container/heap directly.
type Queue struct {
	items queueHeap
}

// NewQueue returns an empty Queue.
func NewQueue() *Queue {
	q := &Queue{}
	heap.Init(&q.items)
	return q
}

// Push inserts ev into the queue.
func (q *Queue) Push(ev Queued) {
	heap.Push(&q.items, ev)
}

// Pop removes and returns the minimum event, or ok=false if the queue is
// empty.
func (q *Queue) Pop() (Queued, bool) {
	if len(q.items) == 0 {
		return Queued{}, false
	}
	return heap.Pop(&q.items).(Queued), true
}

// Peek returns the minimum event without removing it.
func (q *Queue) Peek() (Queued, bool) {
	if len(q.items) == 0 {
		return Queued{}, false
	}
	return q.items[0], true
}

// Len returns the number of queued events.
func (q *Queue) Len() int { return len(q.items) }

type queueHeap []Queued

func (h queueHeap) Len() int            { return len(h) }
func (h queueHeap) Less(i, j int) bool  { return Less(h[i], h[j]) }
func (h queueHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *queueHeap) Push(x interface{}) { *h = append(*h, x.(Queued)) }
func (h *queueHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
