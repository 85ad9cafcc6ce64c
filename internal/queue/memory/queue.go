// Package memory provides the bounded in-process task queue.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/tphagent/marketing-engine/internal/analysis"
)

// Queue is a bounded in-memory queue with context-aware dequeue. Enqueue
// never blocks: a full queue rejects the task so submission stays fast.
type Queue struct {
	ch      chan analysis.Task
	closeMu sync.Mutex
	closed  bool
}

// NewQueue constructs a new queue with the provided capacity.
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = 64
	}
	return &Queue{
		ch: make(chan analysis.Task, capacity),
	}
}

// TryEnqueue pushes a task or returns ErrQueueFull when at capacity.
func (q *Queue) TryEnqueue(task analysis.Task) error {
	select {
	case q.ch <- task:
		return nil
	default:
		return analysis.ErrQueueFull
	}
}

// Dequeue pops the next task, respecting context cancellation.
func (q *Queue) Dequeue(ctx context.Context) (analysis.Task, error) {
	select {
	case <-ctx.Done():
		return analysis.Task{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case task, ok := <-q.ch:
		if !ok {
			return analysis.Task{}, errors.New("queue closed")
		}
		return task, nil
	}
}

// Len reports the number of queued tasks.
func (q *Queue) Len() int {
	return len(q.ch)
}

// Close closes the underlying channel for shutdown.
func (q *Queue) Close() {
	q.closeMu.Lock()
	defer q.closeMu.Unlock()
	if q.closed {
		return
	}
	close(q.ch)
	q.closed = true
}
