// Package registry implements the IPC core's object header and central
// registry (C1): a uniform type tag/name/refcount/destructor header and
// a slot table of all live objects, indexed by generation-checked handle
// so a stale reference always fails fast instead of dangling.
package registry

import (
	"fmt"
	"sync"
)

// ObjectType tags which primitive a slot holds. Zero is reserved to mean
// "this slot is not live" (spec §3's type_tag invariant).
type ObjectType uint8

const (
	TypeNone ObjectType = iota
	TypeMutex
	TypeSemaphore
	TypeEvent
	TypeEventSet
	TypeMessageQueue
	TypeSharedSegment
)

func (t ObjectType) String() string {
	switch t {
	case TypeMutex:
		return "mutex"
	case TypeSemaphore:
		return "semaphore"
	case TypeEvent:
		return "event"
	case TypeEventSet:
		return "event_set"
	case TypeMessageQueue:
		return "message_queue"
	case TypeSharedSegment:
		return "shared_segment"
	default:
		return "none"
	}
}

// Handle is a generation-checked reference to a registry slot. A stale
// Handle (one whose Generation no longer matches the live slot's) always
// resolves to INVALID_HANDLE rather than a dangling object, per the
// "owning identifiers" re-architecture called out in the spec's design
// notes.
type Handle struct {
	Slot       uint32
	Generation uint32
}

// IsZero reports whether h is the zero Handle, used as a "no handle"
// sentinel (e.g. an Error not scoped to a specific object).
func (h Handle) IsZero() bool {
	return h.Slot == 0 && h.Generation == 0
}

func (h Handle) String() string {
	return fmt.Sprintf("%d.%d", h.Slot, h.Generation)
}

// Header is the uniform part of every IPC object, embedded by value in
// each primitive's own struct.
type Header struct {
	Type     ObjectType
	Name     string
	Owner    uint64 // owning task ID, 0 if anonymous
	Refcount uint32
	Handle   Handle
}

// Object is anything the registry can hold: it reports its own header
// and knows how to tear itself down when its refcount reaches zero.
// This is the tagged-union/interface re-architecture the spec's design
// notes call for, in place of a raw function-pointer destructor.
type Object interface {
	Header() *Header
	Destroy()
}

type slot struct {
	obj Object
	gen uint32
}

// Registry is the process-wide table of live IPC objects. One Registry
// per Core; there is no global singleton.
type Registry struct {
	mu       sync.RWMutex
	slots    []slot
	free     []uint32
	byName   map[string]uint32
	capacity int

	createdTotal   uint64
	destroyedTotal uint64
}

// New creates a registry bounded to capacity live objects.
func New(capacity int) *Registry {
	return &Registry{
		slots:    make([]slot, 0, capacity),
		byName:   make(map[string]uint32),
		capacity: capacity,
	}
}

// Register inserts obj into the registry, assigning it a fresh handle.
// Fails with ok=false if the registry is at capacity or the name is
// already taken.
func (r *Registry) Register(obj Object) (Handle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	h := obj.Header()
	if h.Name != "" {
		if _, exists := r.byName[h.Name]; exists {
			return Handle{}, false
		}
	}

	var idx uint32
	if n := len(r.free); n > 0 {
		idx = r.free[n-1]
		r.free = r.free[:n-1]
		r.slots[idx].gen++
		r.slots[idx].obj = obj
	} else {
		if len(r.slots) >= r.capacity {
			return Handle{}, false
		}
		idx = uint32(len(r.slots))
		r.slots = append(r.slots, slot{obj: obj, gen: 1})
	}

	handle := Handle{Slot: idx, Generation: r.slots[idx].gen}
	h.Handle = handle
	if h.Name != "" {
		r.byName[h.Name] = idx
	}
	r.createdTotal++
	return handle, true
}

// Lookup resolves a handle to its live object. ok is false for an
// out-of-range slot or a generation mismatch (stale handle).
func (r *Registry) Lookup(h Handle) (Object, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lookupLocked(h)
}

func (r *Registry) lookupLocked(h Handle) (Object, bool) {
	if int(h.Slot) >= len(r.slots) {
		return nil, false
	}
	s := r.slots[h.Slot]
	if s.obj == nil || s.gen != h.Generation {
		return nil, false
	}
	return s.obj, true
}

// LookupByName resolves a live object by its registered name.
func (r *Registry) LookupByName(name string) (Object, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	idx, ok := r.byName[name]
	if !ok {
		return nil, false
	}
	s := r.slots[idx]
	if s.obj == nil {
		return nil, false
	}
	return s.obj, true
}

// Unregister removes the object behind h from the registry and invokes
// its destructor. Intended to be called exactly once, when a caller's
// Release/Destroy has driven the refcount to zero — never re-entered
// from within the destructor itself (the spec's design notes flag
// "reentrant destruction" as a bug smell to avoid by naming the
// ownership-decrement path and the teardown path distinctly).
func (r *Registry) Unregister(h Handle) bool {
	r.mu.Lock()
	obj, ok := r.lookupLocked(h)
	if !ok {
		r.mu.Unlock()
		return false
	}
	hdr := obj.Header()
	if hdr.Name != "" {
		delete(r.byName, hdr.Name)
	}
	r.slots[h.Slot].obj = nil
	r.free = append(r.free, h.Slot)
	r.destroyedTotal++
	r.mu.Unlock()

	obj.Destroy()
	return true
}

// DumpAll returns the headers of every live object, for diagnostics.
func (r *Registry) DumpAll() []Header {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Header, 0, len(r.slots))
	for _, s := range r.slots {
		if s.obj != nil {
			out = append(out, *s.obj.Header())
		}
	}
	return out
}

// LiveObjects returns every currently registered object, for subsystems
// that must walk all live primitives of a given type (e.g. per-task
// cleanup across every mutex, semaphore, event, and queue).
func (r *Registry) LiveObjects() []Object {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Object, 0, len(r.slots))
	for _, s := range r.slots {
		if s.obj != nil {
			out = append(out, s.obj)
		}
	}
	return out
}

// CheckHealth validates the invariants of C1: every live slot has a
// non-zero type tag and a handle matching its slot position.
func (r *Registry) CheckHealth() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for idx, s := range r.slots {
		if s.obj == nil {
			continue
		}
		hdr := s.obj.Header()
		if hdr.Type == TypeNone {
			return false
		}
		if hdr.Handle.Slot != uint32(idx) || hdr.Handle.Generation != s.gen {
			return false
		}
	}
	return true
}

// Counts returns (created, destroyed, live) totals for refcount-closure
// property tests (spec §8 invariant 7).
func (r *Registry) Counts() (created, destroyed uint64, live int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.slots {
		if s.obj != nil {
			live++
		}
	}
	return r.createdTotal, r.destroyedTotal, live
}
