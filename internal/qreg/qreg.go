// Package qreg implements the IPC core's queue registry (C8): the
// per-task table of owned message queues with designated default
// send/receive entries.
package qreg

import "sync"

// MaxQueuesPerTask bounds a single task's queue list.
const MaxQueuesPerTask = 16

// Entry is one task's queue bookkeeping.
type Entry struct {
	Queues      []any // opaque *ipccore.MessageQueue handles, registry-agnostic
	DefaultSend int
	DefaultRecv int
}

// Registry maps task IDs to their Entry.
type Registry struct {
	mu     sync.Mutex
	byTask map[uint64]*Entry
}

// New creates an empty queue registry.
func New() *Registry {
	return &Registry{byTask: make(map[uint64]*Entry)}
}

// Register appends queue to task's list. If it is the task's first
// queue, it becomes both the default send and default receive queue.
// Returns false if the task is already at MaxQueuesPerTask.
func (r *Registry) Register(task uint64, queue any) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.byTask[task]
	if !ok {
		e = &Entry{}
		r.byTask[task] = e
	}
	if len(e.Queues) >= MaxQueuesPerTask {
		return false
	}
	e.Queues = append(e.Queues, queue)
	if len(e.Queues) == 1 {
		e.DefaultSend = 0
		e.DefaultRecv = 0
	}
	return true
}

// Unregister removes queue from task's list. A default index that now
// points past the end of the list is reset to 0; the task's entry is
// deleted once its list is empty.
func (r *Registry) Unregister(task uint64, queue any) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.byTask[task]
	if !ok {
		return false
	}
	idx := -1
	for i, q := range e.Queues {
		if q == queue {
			idx = i
			break
		}
	}
	if idx < 0 {
		return false
	}
	e.Queues = append(e.Queues[:idx], e.Queues[idx+1:]...)
	if e.DefaultSend >= len(e.Queues) {
		e.DefaultSend = 0
	}
	if e.DefaultRecv >= len(e.Queues) {
		e.DefaultRecv = 0
	}
	if len(e.Queues) == 0 {
		delete(r.byTask, task)
	}
	return true
}

// Mode selects which of a task's queues Find should return.
type Mode int

const (
	ModeSend Mode = iota
	ModeReceive
	ModeAny
)

// Find returns the queue for task selected by mode, or ok=false if the
// task has none registered.
func (r *Registry) Find(task uint64, mode Mode) (any, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.byTask[task]
	if !ok || len(e.Queues) == 0 {
		return nil, false
	}
	switch mode {
	case ModeSend:
		return e.Queues[e.DefaultSend], true
	case ModeReceive:
		return e.Queues[e.DefaultRecv], true
	default:
		return e.Queues[0], true
	}
}

// Cleanup removes task's entire entry. The queues themselves are torn
// down through the general refcount path, not by this call.
func (r *Registry) Cleanup(task uint64) {
	r.mu.Lock()
	delete(r.byTask, task)
	r.mu.Unlock()
}
