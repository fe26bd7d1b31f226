package ipccore

import (
	"sync"

	"github.com/edgex/ipccore/internal/registry"
	"github.com/edgex/ipccore/internal/waitqueue"
)

// Event is a level-triggered signal with auto- or manual-reset semantics (C6).
type Event struct {
	hdr registry.Header

	core        *Core
	mu          sync.Mutex
	manualReset bool
	signaled    bool
	wq          *waitqueue.Queue
	refcount    uint32
	sets        []*EventSet // event sets this event has been added to

	destroyed bool
}

func (e *Event) Header() *registry.Header { return &e.hdr }

func (e *Event) Destroy() {
	e.mu.Lock()
	e.destroyed = true
	e.mu.Unlock()
	e.core.wakeAll(e.wq, waitqueue.OutcomeDestroyed, nil)
	e.core.stats.RecordDestroy(int(registry.TypeEvent))
	e.core.observer.ObserveDestroy(int(registry.TypeEvent))
}

// NewEvent creates and registers an event.
func (c *Core) NewEvent(name string, manualReset, initiallySet bool) (*Event, error) {
	e := &Event{core: c, wq: waitqueue.New(), manualReset: manualReset, signaled: initiallySet, refcount: 1}
	e.hdr = registry.Header{Type: registry.TypeEvent, Name: name}

	h, ok := c.registry.Register(e)
	if !ok {
		return nil, NewError("Event.Create", ErrCodeNoResources, "registry or name capacity exceeded")
	}
	e.hdr.Handle = h
	c.stats.RecordCreate(int(registry.TypeEvent))
	c.observer.ObserveCreate(int(registry.TypeEvent))
	return e, nil
}

func (e *Event) Handle() Handle { return e.hdr.Handle }

// IsSignaled reports the current signaled state.
func (e *Event) IsSignaled() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.signaled
}

// Signal sets the event to signaled. Manual-reset events wake every
// waiter and remain signaled; auto-reset events wake exactly one waiter
// (if any) and immediately revert to nonsignaled, or else latch
// signaled until the next Wait consumes it.
func (e *Event) Signal() error {
	e.core.stats.RecordOp(int(registry.TypeEvent))
	e.core.observer.ObserveOp(int(registry.TypeEvent))
	e.mu.Lock()
	if e.destroyed {
		e.mu.Unlock()
		return NewHandleError("Event.Signal", e.hdr.Handle, ErrCodeDestroyed, "event destroyed")
	}
	e.signaled = true

	if e.manualReset {
		sets := append([]*EventSet(nil), e.sets...)
		e.mu.Unlock()
		e.core.wakeAll(e.wq, waitqueue.OutcomeWoken, nil)
		for _, s := range sets {
			s.core.wakeAll(s.wq, waitqueue.OutcomeWoken, e)
		}
		return nil
	}

	hasWaiters := e.wq.Len() > 0
	if hasWaiters {
		e.signaled = false
	}
	sets := append([]*EventSet(nil), e.sets...)
	e.mu.Unlock()
	if hasWaiters {
		e.core.wake(e.wq, 1, waitqueue.OutcomeWoken, nil)
	}
	e.notifySets(sets)
	return nil
}

// notifySets wakes one waiter (if any) on every event set e belongs to,
// attaching e as the wake's user data; the woken goroutine re-scans the
// set itself to determine which member actually won the tie-break, so
// this is a hint rather than an authoritative answer.
func (e *Event) notifySets(sets []*EventSet) {
	for _, s := range sets {
		s.core.wake(s.wq, 1, waitqueue.OutcomeWoken, e)
	}
}

// Broadcast wakes every current waiter. For auto-reset events, state
// reverts to nonsignaled afterward.
func (e *Event) Broadcast() error {
	e.core.stats.RecordOp(int(registry.TypeEvent))
	e.core.observer.ObserveOp(int(registry.TypeEvent))
	e.mu.Lock()
	if e.destroyed {
		e.mu.Unlock()
		return NewHandleError("Event.Broadcast", e.hdr.Handle, ErrCodeDestroyed, "event destroyed")
	}
	e.signaled = true
	if !e.manualReset {
		e.signaled = false
	}
	sets := append([]*EventSet(nil), e.sets...)
	e.mu.Unlock()
	e.core.wakeAll(e.wq, waitqueue.OutcomeWoken, nil)
	for _, s := range sets {
		s.core.wakeAll(s.wq, waitqueue.OutcomeWoken, e)
	}
	return nil
}

// Reset sets the event to nonsignaled.
func (e *Event) Reset() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.destroyed {
		return NewHandleError("Event.Reset", e.hdr.Handle, ErrCodeDestroyed, "event destroyed")
	}
	e.signaled = false
	return nil
}

// Wait blocks until signaled, consuming the signal for auto-reset events.
func (e *Event) Wait(task TaskID) error {
	return e.timedWait(task, 0)
}

// TimedWait blocks up to timeoutMS milliseconds.
func (e *Event) TimedWait(task TaskID, timeoutMS int64) error {
	return e.timedWait(task, timeoutMS)
}

func (e *Event) timedWait(task TaskID, timeoutMS int64) error {
	e.core.stats.RecordOp(int(registry.TypeEvent))
	e.core.observer.ObserveOp(int(registry.TypeEvent))
	for {
		e.mu.Lock()
		if e.destroyed {
			e.mu.Unlock()
			return NewHandleError("Event.Wait", e.hdr.Handle, ErrCodeDestroyed, "event destroyed")
		}
		if e.signaled {
			if !e.manualReset {
				e.signaled = false
			}
			e.mu.Unlock()
			return nil
		}
		e.mu.Unlock()

		outcome := e.core.suspend(e.wq, task, timeoutMS, nil)
		switch outcome {
		case waitqueue.OutcomeDestroyed:
			return NewHandleError("Event.Wait", e.hdr.Handle, ErrCodeDestroyed, "event destroyed while waiting")
		case waitqueue.OutcomeTimeout:
			return NewHandleError("Event.Wait", e.hdr.Handle, ErrCodeTimeout, "event wait timed out")
		case waitqueue.OutcomeWoken:
			// Signal and Broadcast hand the signal to every waiter they
			// wake (an auto-reset Signal clears the state as it wakes
			// one), so a woken waiter returns without re-checking.
			return nil
		}
	}
}

// addRef/release back the event's registry-independent refcount used by
// event sets (spec §3: "each added event increments its refcount").
func (e *Event) addRef() {
	e.mu.Lock()
	e.refcount++
	e.mu.Unlock()
}

func (e *Event) release() {
	e.mu.Lock()
	e.refcount--
	e.mu.Unlock()
}

func (e *Event) registerSet(s *EventSet) {
	e.mu.Lock()
	e.sets = append(e.sets, s)
	e.mu.Unlock()
}

func (e *Event) unregisterSet(s *EventSet) {
	e.mu.Lock()
	for i, es := range e.sets {
		if es == s {
			e.sets = append(e.sets[:i], e.sets[i+1:]...)
			break
		}
	}
	e.mu.Unlock()
}

// cleanupTask has no per-task ownership state for an event; a
// terminated waiter is simply dropped from the wait queue the next time
// it is woken or timed out.
func (e *Event) cleanupTask(task TaskID) {}

// Release decrements the event's own registration reference, destroying
// it once no references remain.
func (e *Event) Release() error {
	e.mu.Lock()
	e.refcount--
	zero := e.refcount == 0
	e.mu.Unlock()
	if !zero {
		return nil
	}
	if !e.core.registry.Unregister(e.hdr.Handle) {
		return NewHandleError("Event.Release", e.hdr.Handle, ErrCodeInvalidHandle, "unknown or stale handle")
	}
	return nil
}

// EventSet lets a task wait on any of up to MaxEventsPerSet events (C6).
type EventSet struct {
	hdr registry.Header

	core   *Core
	mu     sync.Mutex
	events []*Event
	wq     *waitqueue.Queue

	destroyed bool
}

func (s *EventSet) Header() *registry.Header { return &s.hdr }

func (s *EventSet) Destroy() {
	s.mu.Lock()
	s.destroyed = true
	events := append([]*Event(nil), s.events...)
	s.events = nil
	s.mu.Unlock()
	for _, e := range events {
		e.unregisterSet(s)
		e.release()
	}
	s.core.wakeAll(s.wq, waitqueue.OutcomeDestroyed, nil)
	s.core.stats.RecordDestroy(int(registry.TypeEventSet))
	s.core.observer.ObserveDestroy(int(registry.TypeEventSet))
}

// NewEventSet creates and registers an empty event set.
func (c *Core) NewEventSet(name string) (*EventSet, error) {
	s := &EventSet{core: c, wq: waitqueue.New()}
	s.hdr = registry.Header{Type: registry.TypeEventSet, Name: name}

	h, ok := c.registry.Register(s)
	if !ok {
		return nil, NewError("EventSet.Create", ErrCodeNoResources, "registry or name capacity exceeded")
	}
	s.hdr.Handle = h
	c.stats.RecordCreate(int(registry.TypeEventSet))
	c.observer.ObserveCreate(int(registry.TypeEventSet))
	return s, nil
}

func (s *EventSet) Handle() Handle { return s.hdr.Handle }

// Add appends e to the set, incrementing its refcount. Fails
// INVALID_ARG if the set is already at MaxEventsPerSet.
func (s *EventSet) Add(e *Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.events) >= MaxEventsPerSet {
		return NewHandleError("EventSet.Add", s.hdr.Handle, ErrCodeInvalidArg, "event set full")
	}
	s.events = append(s.events, e)
	e.addRef()
	e.registerSet(s)
	return nil
}

// Remove drops e from the set, releasing its reference.
func (s *EventSet) Remove(e *Event) error {
	s.mu.Lock()
	idx := -1
	for i, ev := range s.events {
		if ev == e {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.mu.Unlock()
		return NewHandleError("EventSet.Remove", s.hdr.Handle, ErrCodeNotFound, "event not in set")
	}
	s.events = append(s.events[:idx], s.events[idx+1:]...)
	s.mu.Unlock()
	e.unregisterSet(s)
	e.release()
	return nil
}

// Wait blocks until any member event is signaled, returning the event
// that satisfied the wait. Already-signaled events are scanned in
// insertion order first (lowest index wins ties), consuming auto-reset
// signals exactly as a direct Wait on that event would.
func (s *EventSet) Wait(task TaskID) (*Event, error) {
	return s.timedWait(task, 0)
}

// TimedWait blocks up to timeoutMS milliseconds.
func (s *EventSet) TimedWait(task TaskID, timeoutMS int64) (*Event, error) {
	return s.timedWait(task, timeoutMS)
}

func (s *EventSet) timedWait(task TaskID, timeoutMS int64) (*Event, error) {
	s.core.stats.RecordOp(int(registry.TypeEventSet))
	s.core.observer.ObserveOp(int(registry.TypeEventSet))
	for {
		if s.destroyed {
			return nil, NewHandleError("EventSet.Wait", s.hdr.Handle, ErrCodeDestroyed, "event set destroyed")
		}
		if sig := s.consumeSignaled(); sig != nil {
			return sig, nil
		}

		outcome := s.core.suspend(s.wq, task, timeoutMS, nil)
		switch outcome {
		case waitqueue.OutcomeDestroyed:
			return nil, NewHandleError("EventSet.Wait", s.hdr.Handle, ErrCodeDestroyed, "event set destroyed while waiting")
		case waitqueue.OutcomeTimeout:
			return nil, NewHandleError("EventSet.Wait", s.hdr.Handle, ErrCodeTimeout, "event set wait timed out")
		case waitqueue.OutcomeWoken:
			// Loop back: re-scan for the signaled event under lock,
			// since the waker attaches the signaled *Event as
			// UserData but another waiter in a multi-waiter race may
			// have consumed it first.
		}
	}
}

// consumeSignaled scans the set's members in insertion order and
// consumes (auto-reset) or observes (manual-reset) the first signaled
// one found.
func (s *EventSet) consumeSignaled() *Event {
	s.mu.Lock()
	events := append([]*Event(nil), s.events...)
	s.mu.Unlock()

	for _, e := range events {
		e.mu.Lock()
		if e.signaled {
			if !e.manualReset {
				e.signaled = false
			}
			e.mu.Unlock()
			return e
		}
		e.mu.Unlock()
	}
	return nil
}

// cleanupTask mirrors Event.cleanupTask: an event set holds no
// per-task ownership state outside its wait queue.
func (s *EventSet) cleanupTask(task TaskID) {}

// Release unregisters the event set, releasing every member's reference.
func (s *EventSet) Release() error {
	if !s.core.registry.Unregister(s.hdr.Handle) {
		return NewHandleError("EventSet.Release", s.hdr.Handle, ErrCodeInvalidHandle, "unknown or stale handle")
	}
	return nil
}
