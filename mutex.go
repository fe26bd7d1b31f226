package ipccore

import (
	"sync"

	"github.com/edgex/ipccore/internal/registry"
	"github.com/edgex/ipccore/internal/waitqueue"
)

// Mutex is a single-owner lock with recursion-by-owner (C4).
type Mutex struct {
	hdr registry.Header

	core  *Core
	mu    sync.Mutex
	owner TaskID
	count uint32
	wq    *waitqueue.Queue

	destroyed bool
}

// Header satisfies registry.Object.
func (m *Mutex) Header() *registry.Header { return &m.hdr }

func (m *Mutex) Destroy() {
	m.mu.Lock()
	m.destroyed = true
	m.mu.Unlock()
	m.core.wakeAll(m.wq, waitqueue.OutcomeDestroyed, nil)
	m.core.stats.RecordDestroy(int(registry.TypeMutex))
	m.core.observer.ObserveDestroy(int(registry.TypeMutex))
}

// NewMutex creates and registers a new mutex, optionally named.
func (c *Core) NewMutex(name string) (*Mutex, error) {
	m := &Mutex{core: c, wq: waitqueue.New()}
	m.hdr = registry.Header{Type: registry.TypeMutex, Name: name}

	h, ok := c.registry.Register(m)
	if !ok {
		return nil, NewError("Mutex.Create", ErrCodeNoResources, "registry or name capacity exceeded")
	}
	m.hdr.Handle = h
	c.stats.RecordCreate(int(registry.TypeMutex))
	c.observer.ObserveCreate(int(registry.TypeMutex))
	return m, nil
}

// Handle returns the mutex's registry handle.
func (m *Mutex) Handle() Handle { return m.hdr.Handle }

// Lock acquires the mutex, blocking the calling task if it is held by
// another task. The same owner may lock recursively.
func (m *Mutex) Lock(task TaskID) error {
	m.core.stats.RecordOp(int(registry.TypeMutex))
	m.core.observer.ObserveOp(int(registry.TypeMutex))
	for {
		m.mu.Lock()
		if m.destroyed {
			m.mu.Unlock()
			return NewHandleError("Mutex.Lock", m.hdr.Handle, ErrCodeDestroyed, "mutex destroyed")
		}
		if m.owner == task {
			m.count++
			m.mu.Unlock()
			return nil
		}
		if m.owner == 0 {
			m.owner = task
			m.count = 1
			m.mu.Unlock()
			return nil
		}
		m.mu.Unlock()

		outcome := m.core.suspend(m.wq, task, 0, nil)
		if outcome == waitqueue.OutcomeDestroyed {
			return NewHandleError("Mutex.Lock", m.hdr.Handle, ErrCodeDestroyed, "mutex destroyed while waiting")
		}
		// Woken (or spuriously resumed): loop back and re-check the
		// predicate under the lock, per spec §5's re-verification rule.
	}
}

// TryLock acquires the mutex without blocking, returning BUSY if held
// by another task.
func (m *Mutex) TryLock(task TaskID) error {
	m.core.stats.RecordOp(int(registry.TypeMutex))
	m.core.observer.ObserveOp(int(registry.TypeMutex))
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.destroyed {
		return NewHandleError("Mutex.TryLock", m.hdr.Handle, ErrCodeDestroyed, "mutex destroyed")
	}
	if m.owner == task {
		m.count++
		return nil
	}
	if m.owner == 0 {
		m.owner = task
		m.count = 1
		return nil
	}
	return NewHandleError("Mutex.TryLock", m.hdr.Handle, ErrCodeBusy, "mutex held")
}

// Unlock releases one level of ownership, waking exactly one waiter
// when the lock count reaches zero.
func (m *Mutex) Unlock(task TaskID) error {
	m.core.stats.RecordOp(int(registry.TypeMutex))
	m.core.observer.ObserveOp(int(registry.TypeMutex))
	m.mu.Lock()
	if m.destroyed {
		m.mu.Unlock()
		return NewHandleError("Mutex.Unlock", m.hdr.Handle, ErrCodeDestroyed, "mutex destroyed")
	}
	if m.owner != task {
		m.mu.Unlock()
		return NewHandleError("Mutex.Unlock", m.hdr.Handle, ErrCodeNotOwner, "unlock by non-owner")
	}
	m.count--
	wake := false
	if m.count == 0 {
		m.owner = 0
		wake = true
	}
	m.mu.Unlock()

	if wake {
		m.core.wake(m.wq, 1, waitqueue.OutcomeWoken, nil)
	}
	return nil
}

// LockCount returns the current recursion count (0 if unlocked), for
// diagnostics and tests.
func (m *Mutex) LockCount() uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.count
}

// Owner returns the current owning task, 0 if free.
func (m *Mutex) Owner() TaskID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.owner
}

// Release decrements the mutex's registration, destroying it (and
// waking any remaining waiters with DESTROYED) once no references
// remain. For C4, a mutex has no secondary refcount beyond the
// registry's own entry, so Release always unregisters immediately —
// callers must ensure no task still depends on the handle.
func (m *Mutex) Release() error {
	if !m.core.registry.Unregister(m.hdr.Handle) {
		return NewHandleError("Mutex.Release", m.hdr.Handle, ErrCodeInvalidHandle, "unknown or stale handle")
	}
	return nil
}

// cleanupTask releases m if task owns it, waking one waiter, without
// destroying the mutex itself (spec §4.9: per-task state only). A
// wait-queue entry of task is not removed here.
func (m *Mutex) cleanupTask(task TaskID) {
	m.mu.Lock()
	wasOwner := m.owner == task
	if wasOwner {
		m.owner = 0
		m.count = 0
	}
	m.mu.Unlock()
	if wasOwner {
		m.core.wake(m.wq, 1, waitqueue.OutcomeWoken, nil)
	}
}
