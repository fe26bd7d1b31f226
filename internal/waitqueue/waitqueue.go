// Package waitqueue implements the IPC core's FIFO wait queue (C2): the
// ordered list of suspended tasks attached to a synchronization object,
// with add/remove/wake-N/timeout-scan, guarded by an internal lock.
//
// The list shape is grounded on the gvisor System V semaphore's waiter
// list (a per-waiter channel woken by the releasing side) rather than a
// hand-rolled intrusive linked list: container/list gives FIFO ordering
// without reimplementing pointer surgery. Remove finds a waiter by a
// linear walk.
package waitqueue

import (
	"container/list"
	"sync"
	"time"
)

// Outcome is the status a waiter is woken with.
type Outcome int

const (
	OutcomeWoken Outcome = iota
	OutcomeTimeout
	OutcomeDestroyed
)

// Waiter is one suspended task's wait record. TaskID is a raw scheduler
// task identifier (0 reserved for "no task"); the root package's TaskID
// type is this same underlying uint64.
type Waiter struct {
	TaskID    uint64
	ArrivedAt time.Time
	Timeout   time.Duration // 0 = infinite
	Result    chan Outcome
	UserData  any
}

// Queue is a FIFO of waiters, guarded by its own unexported lock, which
// each method takes and releases internally; callers cannot hold it
// across their own check-and-enqueue step.
type Queue struct {
	mu   sync.Mutex
	list *list.List // of *Waiter
}

// New creates an empty wait queue.
func New() *Queue {
	return &Queue{list: list.New()}
}

// Add appends a new waiter to the tail and returns it so the caller can
// block on Waiter.Result. Add takes the queue's lock itself; the caller
// must not hold it.
func (q *Queue) Add(task uint64, timeout time.Duration, userData any) *Waiter {
	w := &Waiter{
		TaskID:    task,
		ArrivedAt: time.Now(),
		Timeout:   timeout,
		Result:    make(chan Outcome, 1),
		UserData:  userData,
	}
	q.mu.Lock()
	q.list.PushBack(w)
	q.mu.Unlock()
	return w
}

// Remove unlinks a specific waiter, e.g. after it already timed out via
// ScanTimeouts racing a concurrent Wake, or on explicit cancellation.
// Returns false if w was not found (already woken and removed).
func (q *Queue) Remove(w *Waiter) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for e := q.list.Front(); e != nil; e = e.Next() {
		if e.Value.(*Waiter) == w {
			q.list.Remove(e)
			return true
		}
	}
	return false
}

// Wake dequeues up to n waiters from the head (FIFO, head-first
// tie-break), delivering outcome and userData (when non-nil, overriding
// each waiter's own UserData — used by event-set wakes to attach the
// signaled event). Each woken waiter's Result is populated before its
// task ID is returned, so a caller that next calls the scheduler's
// Unblock(taskID) is guaranteed the result is already observable by the
// time the blocked goroutine resumes. Returns the woken task IDs.
func (q *Queue) Wake(n int, outcome Outcome, userData any) []uint64 {
	q.mu.Lock()
	var woken []*Waiter
	for i := 0; i < n; i++ {
		e := q.list.Front()
		if e == nil {
			break
		}
		q.list.Remove(e)
		woken = append(woken, e.Value.(*Waiter))
	}
	q.mu.Unlock()

	ids := make([]uint64, 0, len(woken))
	for _, w := range woken {
		if userData != nil {
			w.UserData = userData
		}
		w.Result <- outcome
		ids = append(ids, w.TaskID)
	}
	return ids
}

// WakeAll wakes every waiter currently queued, in FIFO order.
func (q *Queue) WakeAll(outcome Outcome, userData any) []uint64 {
	return q.Wake(q.Len(), outcome, userData)
}

// ScanTimeouts walks the queue and wakes, with OutcomeTimeout, any
// waiter whose timeout has elapsed as of now. Intended to be called
// periodically by the timer collaborator's tick.
func (q *Queue) ScanTimeouts(now time.Time) int {
	q.mu.Lock()
	var expired []*Waiter
	for e := q.list.Front(); e != nil; {
		next := e.Next()
		w := e.Value.(*Waiter)
		if w.Timeout > 0 && now.Sub(w.ArrivedAt) >= w.Timeout {
			q.list.Remove(e)
			expired = append(expired, w)
		}
		e = next
	}
	q.mu.Unlock()

	for _, w := range expired {
		w.Result <- OutcomeTimeout
	}
	return len(expired)
}

// Len reports the current number of queued waiters.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.list.Len()
}

// Empty reports whether the queue currently holds no waiters.
func (q *Queue) Empty() bool {
	return q.Len() == 0
}
