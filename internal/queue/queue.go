// Package queue holds pending posts ordered by due time.
//
// The queue stores references (post ID + due time), not whole records; the
// post log stays the single source of truth. Everything here is in-memory
// and lost on restart.
package queue

import (
	"container/heap"
	"sync"
	"time"

	"postpilot/internal/post"
)

// Item is one pending dispatch.
type Item struct {
	At       time.Time
	PostID   string
	Platform post.Platform
}

// Queue is a min-heap on Item.At, safe for concurrent use.
// Items sharing the same due time pop in unspecified order.
type Queue struct {
	mu    sync.Mutex
	items itemHeap
}

func New() *Queue {
	q := &Queue{}
	heap.Init(&q.items)
	return q
}

func (q *Queue) Push(it Item) {
	q.mu.Lock()
	heap.Push(&q.items, it)
	q.mu.Unlock()
}

// PopDue removes and returns the earliest item if it is due at now.
// Peek and pop happen under one lock so two pollers can never both
// see the same head.
func (q *Queue) PopDue(now time.Time) (Item, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 || q.items[0].At.After(now) {
		return Item{}, false
	}
	return heap.Pop(&q.items).(Item), true
}

// Peek returns the earliest item without removing it.
func (q *Queue) Peek() (Item, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return Item{}, false
	}
	return q.items[0], true
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Drain removes and returns every item in due order.
func (q *Queue) Drain() []Item {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Item, 0, len(q.items))
	for len(q.items) > 0 {
		out = append(out, heap.Pop(&q.items).(Item))
	}
	return out
}

type itemHeap []Item

func (h itemHeap) Len() int           { return len(h) }
func (h itemHeap) Less(i, j int) bool { return h[i].At.Before(h[j].At) }
func (h itemHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *itemHeap) Push(x any) { *h = append(*h, x.(Item)) }

func (h *itemHeap) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	*h = old[:n-1]
	return it
}
