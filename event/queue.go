package event

import (
	"container/list"
	"sync"
)

// DequeueStatus reports the outcome of a blocking dequeue.
type DequeueStatus int

const (
	// StatusSuccess indicates an event was removed from the queue.
	StatusSuccess DequeueStatus = iota

	// StatusWaitAbort indicates the wait was aborted with WaitAbort. The
	// status persists until WaitAbortReset is called.
	StatusWaitAbort

	// StatusWaitError indicates a transient wakeup without an event or an
	// abort. Callers must retry the wait; it is never fatal.
	StatusWaitError
)

// A Queue is a thread-safe two-lane FIFO of events with a single blocking
// consumer. The head lane holds out-of-band events and is drained before the
// tail lane; each lane preserves insertion order. Producers never block.
type Queue struct {
	lock     sync.Mutex
	nonEmpty *sync.Cond

	head *list.List
	tail *list.List

	aborted bool
}

// NewQueue creates an empty queue armed for blocking waits.
func NewQueue() *Queue {
	q := new(Queue)
	q.nonEmpty = sync.NewCond(&q.lock)
	q.head = list.New()
	q.tail = list.New()
	return q
}

// EnqueueTail appends an event to the normal lane and wakes a blocked
// consumer if there is one.
func (q *Queue) EnqueueTail(e Event) {
	q.lock.Lock()
	q.tail.PushBack(e)
	q.nonEmpty.Signal()
	q.lock.Unlock()
}

// EnqueueHead appends an event to the out-of-band lane. It is drained before
// all tail events, but behind earlier head events; the lane is a FIFO, not a
// stack.
func (q *Queue) EnqueueHead(e Event) {
	q.lock.Lock()
	q.head.PushBack(e)
	q.nonEmpty.Signal()
	q.lock.Unlock()
}

// DequeueWait blocks until an event is available or the wait is aborted. On
// StatusSuccess the earliest available event (head lane first) is removed and
// returned. On StatusWaitError the caller retries.
func (q *Queue) DequeueWait() (Event, DequeueStatus) {
	q.lock.Lock()
	defer q.lock.Unlock()

	for {
		if q.aborted {
			return nil, StatusWaitAbort
		}

		if elem := q.head.Front(); elem != nil {
			return q.head.Remove(elem).(Event), StatusSuccess
		}

		if elem := q.tail.Front(); elem != nil {
			return q.tail.Remove(elem).(Event), StatusSuccess
		}

		q.nonEmpty.Wait()
	}
}

// WaitAbort wakes the blocked consumer without an event. The abort is
// persistent: every DequeueWait call returns StatusWaitAbort until
// WaitAbortReset is called.
func (q *Queue) WaitAbort() {
	q.lock.Lock()
	q.aborted = true
	q.nonEmpty.Broadcast()
	q.lock.Unlock()
}

// WaitAbortReset re-arms the queue for blocking waits.
func (q *Queue) WaitAbortReset() {
	q.lock.Lock()
	q.aborted = false
	q.lock.Unlock()
}

// Clear discards all queued events in both lanes without dispatching them.
// The owning handler only calls it while the consumer is not waiting.
func (q *Queue) Clear() {
	q.lock.Lock()
	q.head.Init()
	q.tail.Init()
	q.lock.Unlock()
}

// Len returns the number of queued events across both lanes.
func (q *Queue) Len() int {
	q.lock.Lock()
	n := q.head.Len() + q.tail.Len()
	q.lock.Unlock()
	return n
}
