package dispatch

import "sync"

// workQueue is an unbounded FIFO with completion accounting: every item
// popped must be balanced by a Done call, and requeued items keep the
// pending count alive, so Join returns only when all work has actually
// finished rather than when the queue happens to be empty.
type workQueue[T any] struct {
	mu      sync.Mutex
	cond    *sync.Cond
	items   []T
	pending int
	closed  bool
}

func newWorkQueue[T any]() *workQueue[T] {
	q := &workQueue[T]{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Push appends an item and raises the pending count. Pushing to a closed
// queue discards the item: a worker requeueing after a drain must not
// revive the pending count.
func (q *workQueue[T]) Push(item T) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.items = append(q.items, item)
	q.pending++
	q.mu.Unlock()
	q.cond.Broadcast()
}

// Pop removes the head item, blocking while the queue is empty. The
// second result is false once the queue is closed and drained.
func (q *workQueue[T]) Pop() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 && !q.closed {
		q.cond.Wait()
	}
	var zero T
	if len(q.items) == 0 {
		return zero, false
	}
	item := q.items[0]
	q.items = q.items[1:]
	return item, true
}

// Done balances one Pop. A requeue is Push followed by Done, which leaves
// the pending count unchanged.
func (q *workQueue[T]) Done() {
	q.mu.Lock()
	q.pending--
	if q.pending < 0 {
		panic("dispatch: queue Done called more times than Pop")
	}
	q.mu.Unlock()
	q.cond.Broadcast()
}

// Join blocks until every pushed item has been balanced by Done.
func (q *workQueue[T]) Join() {
	q.mu.Lock()
	defer q.mu.Unlock()
	for q.pending > 0 {
		q.cond.Wait()
	}
}

// DrainDiscard removes all queued items, marks each discarded item done,
// and closes the queue so blocked and future Pops return immediately.
// Items currently held by workers remain pending until their Done.
func (q *workQueue[T]) DrainDiscard() []T {
	q.mu.Lock()
	drained := q.items
	q.items = nil
	q.pending -= len(drained)
	q.closed = true
	q.mu.Unlock()
	q.cond.Broadcast()
	return drained
}

// Len reports the number of queued (not in-flight) items.
func (q *workQueue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
