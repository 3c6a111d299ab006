package engine

import "sync"

// requestQueue is the FIFO of pending requests of a run.
//
// Enqueue may be called from any goroutine. Dequeuing happens only in
// Run.Drain, which keeps evaluation single threaded.
type requestQueue struct {
	mu       sync.Mutex
	requests []Request
	closed   bool
}

func newRequestQueue() *requestQueue {
	return &requestQueue{requests: make([]Request, 0, 64)}
}

// Enqueue appends r. Returns false once the queue is closed.
func (q *requestQueue) Enqueue(r Request) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.requests = append(q.requests, r)
	return true
}

// TryDequeue removes the oldest request without blocking.
func (q *requestQueue) TryDequeue() (Request, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.requests) == 0 {
		return Request{}, false
	}
	r := q.requests[0]
	// Drop the reference so the element tree can be collected.
	q.requests[0] = Request{}
	q.requests = q.requests[1:]
	return r, true
}

func (q *requestQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.requests)
}

// Close rejects further Enqueue calls. Requests already queued stay.
func (q *requestQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
}
