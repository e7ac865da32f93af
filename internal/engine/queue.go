package engine

import (
	"sync"

	"github.com/roach88/ledgerd/internal/ir"
)

// eventQueue is a thread-safe FIFO of committed transitions awaiting
// delivery to observers.
//
// The queue is unbounded so that enqueueing never blocks a commit. It uses
// a channel for signaling so Run can wait with a context.
type eventQueue struct {
	mu     sync.Mutex
	events []ir.Transition
	closed bool
	signal chan struct{} // Signals event availability (buffered, size 1)
}

func newEventQueue() *eventQueue {
	return &eventQueue{
		events: make([]ir.Transition, 0, 64),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue adds a transition to the back of the queue.
// Returns false if the queue is closed.
func (q *eventQueue) Enqueue(t ir.Transition) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	q.events = append(q.events, t)

	// Non-blocking: the buffer of 1 coalesces multiple signals
	select {
	case q.signal <- struct{}{}:
	default:
	}

	return true
}

// TryDequeue removes the front transition without blocking.
// drained is true once the queue is closed and empty.
func (q *eventQueue) TryDequeue() (t ir.Transition, ok, drained bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.events) == 0 {
		return ir.Transition{}, false, q.closed
	}

	t = q.events[0]

	// Clear the slot so the backing array does not retain payloads.
	q.events[0] = ir.Transition{}
	if len(q.events) == 1 {
		q.events = q.events[:0]
	} else {
		q.events = q.events[1:]
	}

	return t, true, false
}

// Wait returns a channel that signals when events may be available.
// It is closed by Close, waking every waiter.
func (q *eventQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the current queue length.
func (q *eventQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}

// Close signals that no more transitions will be enqueued.
func (q *eventQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}

	q.closed = true
	close(q.signal)
}
