package queue

import (
	"container/heap"
	"sync"
	"time"

	"github.com/streamrig/streamrig/pkg/models"
)

// entry wraps a queued item with an admission sequence number for stable
// tie-breaking.
type entry struct {
	item *models.CommandItem
	seq  uint64
}

// itemHeap orders entries: priority desc, then scheduled-not-before asc,
// then submitted-at asc, then admission order.
type itemHeap []*entry

func (h itemHeap) Len() int { return len(h) }

func (h itemHeap) Less(i, j int) bool { return lessEntry(h[i], h[j]) }

func lessEntry(a, b *entry) bool {
	if a.item.Priority != b.item.Priority {
		return a.item.Priority > b.item.Priority
	}
	if !a.item.ScheduledNotBefore.Equal(b.item.ScheduledNotBefore) {
		return a.item.ScheduledNotBefore.Before(b.item.ScheduledNotBefore)
	}
	if !a.item.SubmittedAt.Equal(b.item.SubmittedAt) {
		return a.item.SubmittedAt.Before(b.item.SubmittedAt)
	}
	return a.seq < b.seq
}

func (h itemHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *itemHeap) Push(x any) { *h = append(*h, x.(*entry)) }

func (h *itemHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return e
}

// CommandQueue is a bounded priority queue of command items. Items whose
// not-before time has not arrived yet are held back from PopReady.
type CommandQueue struct {
	mu  sync.Mutex
	h   itemHeap
	max int
	seq uint64
}

// NewCommandQueue creates a queue bounded at maxSize items. maxSize <= 0
// means unbounded.
func NewCommandQueue(maxSize int) *CommandQueue {
	q := &CommandQueue{max: maxSize}
	heap.Init(&q.h)
	return q
}

// Push admits an item, refusing with ErrQueueFull at capacity.
func (q *CommandQueue) Push(item *models.CommandItem) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.max > 0 && len(q.h) >= q.max {
		return ErrQueueFull
	}
	q.seq++
	heap.Push(&q.h, &entry{item: item, seq: q.seq})
	return nil
}

// PopReady removes and returns the best item whose not-before time has
// arrived, or nil when nothing is ready. A higher-priority item that is not
// yet ready never blocks a ready lower-priority one.
func (q *CommandQueue) PopReady(now time.Time) *models.CommandItem {
	q.mu.Lock()
	defer q.mu.Unlock()

	best := -1
	for i, e := range q.h {
		if e.item.ScheduledNotBefore.After(now) {
			continue
		}
		if best == -1 || lessEntry(e, q.h[best]) {
			best = i
		}
	}
	if best == -1 {
		return nil
	}
	e := heap.Remove(&q.h, best).(*entry)
	return e.item
}

// DrainAll removes and returns every queued item, best first.
func (q *CommandQueue) DrainAll() []*models.CommandItem {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]*models.CommandItem, 0, len(q.h))
	for q.h.Len() > 0 {
		out = append(out, heap.Pop(&q.h).(*entry).item)
	}
	return out
}

// Len returns the number of queued items.
func (q *CommandQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.h)
}
