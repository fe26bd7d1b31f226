package ipccore

import (
	"sync"

	"github.com/edgex/ipccore/internal/registry"
	"github.com/edgex/ipccore/internal/waitqueue"
)

// Semaphore is a counting semaphore with a maximum cap (C5).
type Semaphore struct {
	hdr registry.Header

	core  *Core
	mu    sync.Mutex
	value int32
	max   int32
	wq    *waitqueue.Queue

	destroyed bool
}

func (s *Semaphore) Header() *registry.Header { return &s.hdr }

func (s *Semaphore) Destroy() {
	s.mu.Lock()
	s.destroyed = true
	s.mu.Unlock()
	s.core.wakeAll(s.wq, waitqueue.OutcomeDestroyed, nil)
	s.core.stats.RecordDestroy(int(registry.TypeSemaphore))
	s.core.observer.ObserveDestroy(int(registry.TypeSemaphore))
}

// NewSemaphore creates and registers a counting semaphore with the given
// initial value and maximum, failing INVALID_ARG if 0 <= initial <= max
// does not hold.
func (c *Core) NewSemaphore(name string, initial, max int32) (*Semaphore, error) {
	if max < 0 || initial < 0 || initial > max {
		return nil, NewError("Semaphore.Create", ErrCodeInvalidArg, "initial value out of range")
	}
	s := &Semaphore{core: c, wq: waitqueue.New(), value: initial, max: max}
	s.hdr = registry.Header{Type: registry.TypeSemaphore, Name: name}

	h, ok := c.registry.Register(s)
	if !ok {
		return nil, NewError("Semaphore.Create", ErrCodeNoResources, "registry or name capacity exceeded")
	}
	s.hdr.Handle = h
	c.stats.RecordCreate(int(registry.TypeSemaphore))
	c.observer.ObserveCreate(int(registry.TypeSemaphore))
	return s, nil
}

func (s *Semaphore) Handle() Handle { return s.hdr.Handle }

// Wait blocks until a unit is available, per spec §4.4.
func (s *Semaphore) Wait(task TaskID) error {
	return s.wait(task, 0)
}

// TimedWait blocks up to timeoutMS milliseconds.
func (s *Semaphore) TimedWait(task TaskID, timeoutMS int64) error {
	return s.wait(task, timeoutMS)
}

func (s *Semaphore) wait(task TaskID, timeoutMS int64) error {
	s.core.stats.RecordOp(int(registry.TypeSemaphore))
	s.core.observer.ObserveOp(int(registry.TypeSemaphore))
	for {
		s.mu.Lock()
		if s.destroyed {
			s.mu.Unlock()
			return NewHandleError("Semaphore.Wait", s.hdr.Handle, ErrCodeDestroyed, "semaphore destroyed")
		}
		if s.value > 0 {
			s.value--
			s.mu.Unlock()
			return nil
		}
		s.mu.Unlock()

		outcome := s.core.suspend(s.wq, task, timeoutMS, nil)
		switch outcome {
		case waitqueue.OutcomeDestroyed:
			return NewHandleError("Semaphore.Wait", s.hdr.Handle, ErrCodeDestroyed, "semaphore destroyed while waiting")
		case waitqueue.OutcomeTimeout:
			return NewHandleError("Semaphore.Wait", s.hdr.Handle, ErrCodeTimeout, "semaphore wait timed out")
		case waitqueue.OutcomeWoken:
			// Post() wakes a waiter without touching value (they
			// conceptually take the post's unit), so a woken waiter
			// returns success directly rather than re-checking value.
			return nil
		}
	}
}

// TryWait returns WOULD_BLOCK instead of suspending.
func (s *Semaphore) TryWait() error {
	s.core.stats.RecordOp(int(registry.TypeSemaphore))
	s.core.observer.ObserveOp(int(registry.TypeSemaphore))
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.destroyed {
		return NewHandleError("Semaphore.TryWait", s.hdr.Handle, ErrCodeDestroyed, "semaphore destroyed")
	}
	if s.value <= 0 {
		return NewHandleError("Semaphore.TryWait", s.hdr.Handle, ErrCodeWouldBlock, "semaphore at zero")
	}
	s.value--
	return nil
}

// Post releases a unit: if waiters exist, one is woken (taking the
// post's unit conceptually, value unchanged); otherwise value is
// incremented, or OVERFLOW is returned if that would exceed max.
func (s *Semaphore) Post() error {
	s.core.stats.RecordOp(int(registry.TypeSemaphore))
	s.core.observer.ObserveOp(int(registry.TypeSemaphore))
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.destroyed {
		return NewHandleError("Semaphore.Post", s.hdr.Handle, ErrCodeDestroyed, "semaphore destroyed")
	}
	// The wake decision and the wq.Wake call must happen under s.mu: if
	// it were released in between, two concurrent Posts against a
	// semaphore with exactly one waiter could both see Len() > 0 and
	// both skip the value increment, even though only one wake actually
	// dequeues anyone.
	if woken := s.core.wake(s.wq, 1, waitqueue.OutcomeWoken, nil); woken > 0 {
		return nil
	}
	if s.value >= s.max {
		return NewHandleError("Semaphore.Post", s.hdr.Handle, ErrCodeOverflow, "post would exceed max")
	}
	s.value++
	return nil
}

// Value returns a snapshot of the current count.
func (s *Semaphore) Value() int32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value
}

// cleanupTask has no per-task state to release for a semaphore beyond
// its wait-queue entry, which the wake/timeout paths already reclaim;
// provided so the per-task cleanup sweep can treat every primitive
// uniformly.
func (s *Semaphore) cleanupTask(task TaskID) {}

// Release unregisters the semaphore.
func (s *Semaphore) Release() error {
	if !s.core.registry.Unregister(s.hdr.Handle) {
		return NewHandleError("Semaphore.Release", s.hdr.Handle, ErrCodeInvalidHandle, "unknown or stale handle")
	}
	return nil
}
