package agent

import (
	"sync"

	"github.com/xonecas/agentcore/internal/message"
)

// DeliveryMode controls how many pending items one Drain call consumes.
type DeliveryMode int

const (
	// OneAtATime drains only the head of the queue.
	OneAtATime DeliveryMode = iota
	// All drains every pending item.
	All
)

// Queue buffers user messages a caller injects mid-invocation (steering)
// or after the loop would otherwise terminate (follow-up). Push is safe
// from any goroutine; Drain and Len are only ever called by the loop
// that owns this queue for the duration of an invocation.
type Queue struct {
	mu    sync.Mutex
	mode  DeliveryMode
	items [][]message.Content
}

// NewQueue builds an empty Queue with the given drain mode.
func NewQueue(mode DeliveryMode) *Queue {
	return &Queue{mode: mode}
}

// Push enqueues one user message's content blocks.
func (q *Queue) Push(blocks []message.Content) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, blocks)
}

// Drain removes and returns pending items per the queue's delivery mode.
// Returns nil when the queue is empty.
func (q *Queue) Drain() [][]message.Content {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil
	}
	if q.mode == OneAtATime {
		head := q.items[0]
		q.items = q.items[1:]
		return [][]message.Content{head}
	}
	out := q.items
	q.items = nil
	return out
}

// Len reports how many items are currently pending, without draining them.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Clear discards every pending item.
func (q *Queue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = nil
}
