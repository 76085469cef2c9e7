package dispatch

import "sync"

// Queue is a thread-safe FIFO queue of units of work for one connection.
//
// The queue is unbounded: scheduling never blocks the producer and never
// touches the native handle. Producers on arbitrary goroutines race only at
// enqueue time; once ordered, execution strictly respects that order.
//
// The queue uses a channel for signaling to enable context-aware waiting in
// the worker's drain loop.
//
// Sealing: when a connection is disposed, its teardown is appended as the
// final unit via Seal. After Seal, every Enqueue is rejected, so teardown is
// guaranteed to be the last thing the worker runs.
type Queue struct {
	mu     sync.Mutex
	units  []*Unit
	sealed bool
	closed bool
	signal chan struct{} // Signals unit availability (buffered, size 1)
}

// NewQueue creates an empty operation queue.
func NewQueue() *Queue {
	return &Queue{
		units:  make([]*Unit, 0, 16),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue appends a unit to the back of the queue.
// Thread-safe: may be called from any goroutine.
// Returns false if the queue has been sealed or closed; the unit is not
// retained and no slot is consumed.
func (q *Queue) Enqueue(u *Unit) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.sealed || q.closed {
		return false
	}

	q.units = append(q.units, u)
	q.wake()

	return true
}

// Seal appends the terminal unit and rejects all further enqueues.
// Returns false if the queue was already sealed or closed; the caller must
// not seal twice.
func (q *Queue) Seal(final *Unit) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.sealed || q.closed {
		return false
	}

	q.sealed = true
	q.units = append(q.units, final)
	q.wake()

	return true
}

// TryDequeue removes and returns the front unit without blocking.
// Returns (nil, false) if the queue is empty.
func (q *Queue) TryDequeue() (*Unit, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.units) == 0 {
		return nil, false
	}

	u := q.units[0]

	// Nil out the slot so the backing array does not retain the unit (and
	// everything its closures capture) until reallocation.
	q.units[0] = nil

	if len(q.units) == 1 {
		q.units = q.units[:0]
	} else {
		q.units = q.units[1:]
	}

	return u, true
}

// Wait returns a channel that signals when units may be available.
// The channel is closed when the queue is closed, waking all waiters.
func (q *Queue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the current number of pending units.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.units)
}

// Sealed reports whether the terminal unit has been scheduled.
func (q *Queue) Sealed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.sealed
}

// Close marks the queue finished. Called by the connection's teardown unit
// after the native handle is released; the worker drains whatever is left
// (nothing, since Seal guarantees teardown is last) and exits.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}

	q.closed = true
	close(q.signal) // Wakes the worker
}

// Closed reports whether the queue has been closed.
func (q *Queue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// wake signals availability without blocking; the buffer of 1 coalesces
// multiple signals. Callers must hold q.mu.
func (q *Queue) wake() {
	if q.closed {
		return
	}
	select {
	case q.signal <- struct{}{}:
	default:
	}
}
