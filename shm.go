package ipccore

import (
	"sync"
	"time"

	"github.com/edgex/ipccore/internal/memalloc"
	"github.com/edgex/ipccore/internal/registry"
	"golang.org/x/sys/unix"
)

var nextSegmentKey struct {
	mu  sync.Mutex
	val uint64
}

func allocSegmentKey() uint64 {
	nextSegmentKey.mu.Lock()
	defer nextSegmentKey.mu.Unlock()
	nextSegmentKey.val++
	return nextSegmentKey.val
}

// Mapping records one task's view of a shared segment.
type Mapping struct {
	TaskID TaskID
	Data   []byte // the task's own mmap'd view; aliases the segment's backing pages
	Perms  Permissions
}

// SharedSegment is a named, page-aligned shared-memory region (C9).
type SharedSegment struct {
	hdr registry.Header

	core *Core
	mu   sync.Mutex

	key         uint64
	sizeLogical uint64
	sizeReal    uint64
	perms       Permissions
	flags       SegmentFlags
	pages       []memalloc.Page
	mappings    map[TaskID]*Mapping
	creator     TaskID
	createdAt   time.Time
	refcount    uint32

	destroyed bool
}

func (s *SharedSegment) Header() *registry.Header { return &s.hdr }

func (s *SharedSegment) Destroy() {
	s.mu.Lock()
	s.destroyed = true
	mappings := s.mappings
	s.mappings = nil
	pages := s.pages
	s.pages = nil
	s.mu.Unlock()

	for _, m := range mappings {
		_ = s.core.vm.Unmap(m.Data)
	}
	s.core.allocator.FreePages(pages)
	s.core.stats.RecordDestroy(int(registry.TypeSharedSegment))
	s.core.observer.ObserveDestroy(int(registry.TypeSharedSegment))
}

func pageAlign(size uint64, pageSize uint64) uint64 {
	if size == 0 {
		return 0
	}
	return ((size + pageSize - 1) / pageSize) * pageSize
}

// CreateSegment implements spec §4.8's create(): exclusive-create
// collision handling, grow-on-RESIZE-collision, or a fresh allocation.
func (c *Core) CreateSegment(name string, size uint64, perms Permissions, flags SegmentFlags, creator TaskID) (*SharedSegment, error) {
	if existing, ok := c.registry.LookupByName(name); ok {
		seg, ok := existing.(*SharedSegment)
		if !ok {
			return nil, NewError("SharedMemory.Create", ErrCodeAlreadyExists, "name collides with a different object type")
		}
		if flags&SegExcl != 0 {
			return nil, NewHandleError("SharedMemory.Create", seg.hdr.Handle, ErrCodeAlreadyExists, "segment exists and EXCL set")
		}
		seg.mu.Lock()
		defer seg.mu.Unlock()
		if size > seg.sizeLogical && seg.flags&SegResize != 0 {
			if err := seg.growLocked(size); err != nil {
				return nil, err
			}
		}
		seg.flags |= flags
		seg.refcount++
		return seg, nil
	}

	pageSize := uint64(c.opts.PageSize)
	realSize := pageAlign(size, pageSize)
	pages, err := c.allocator.AllocPages(int(realSize / pageSize))
	if err != nil {
		c.stats.BumpFailure(string(ErrCodeNoResources))
		return nil, NewError("SharedMemory.Create", ErrCodeNoResources, "page allocation failed")
	}

	seg := &SharedSegment{
		core:        c,
		key:         allocSegmentKey(),
		sizeLogical: size,
		sizeReal:    realSize,
		perms:       perms,
		flags:       flags,
		pages:       pages,
		mappings:    make(map[TaskID]*Mapping),
		creator:     creator,
		createdAt:   time.Now(),
		refcount:    1,
	}
	seg.hdr = registry.Header{Type: registry.TypeSharedSegment, Name: name, Owner: creator}

	h, ok := c.registry.Register(seg)
	if !ok {
		c.allocator.FreePages(pages)
		return nil, NewError("SharedMemory.Create", ErrCodeNoResources, "registry or name capacity exceeded")
	}
	seg.hdr.Handle = h
	c.stats.RecordCreate(int(registry.TypeSharedSegment))
	c.observer.ObserveCreate(int(registry.TypeSharedSegment))
	return seg, nil
}

func (s *SharedSegment) Handle() Handle { return s.hdr.Handle }

// Map creates a mapping for task with the given requested permissions,
// intersected with the segment's own. An empty intersection is
// PERMISSION_DENIED.
func (s *SharedSegment) Map(task TaskID, perms Permissions) (*Mapping, error) {
	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return nil, NewHandleError("SharedMemory.Map", s.hdr.Handle, ErrCodeDestroyed, "segment destroyed")
	}
	effective := perms & s.perms
	if effective == 0 {
		s.mu.Unlock()
		s.core.stats.BumpFailure(string(ErrCodePermissionDenied))
		return nil, NewHandleError("SharedMemory.Map", s.hdr.Handle, ErrCodePermissionDenied, "requested permissions share nothing with segment permissions")
	}
	if _, exists := s.mappings[task]; exists {
		s.mu.Unlock()
		return nil, NewTaskError("SharedMemory.Map", task, ErrCodeAlreadyExists, "task already has a mapping")
	}
	key, size := s.key, int(s.sizeReal)
	s.mu.Unlock()

	prot := permsToProt(effective)
	data, err := s.core.vm.Map(key, size, prot)
	if err != nil {
		return nil, WrapError("SharedMemory.Map", err)
	}

	m := &Mapping{TaskID: task, Data: data, Perms: effective}
	s.mu.Lock()
	s.mappings[task] = m
	s.mu.Unlock()
	return m, nil
}

func permsToProt(p Permissions) int {
	prot := unix.PROT_NONE
	if p&PermRead != 0 {
		prot |= unix.PROT_READ
	}
	if p&PermWrite != 0 {
		prot |= unix.PROT_WRITE
	}
	if p&PermExec != 0 {
		prot |= unix.PROT_EXEC
	}
	return prot
}

// Unmap removes task's mapping and flushes it from the VM collaborator.
func (s *SharedSegment) Unmap(task TaskID) error {
	s.mu.Lock()
	m, ok := s.mappings[task]
	if !ok {
		s.mu.Unlock()
		return NewTaskError("SharedMemory.Unmap", task, ErrCodeNotFound, "task has no mapping")
	}
	delete(s.mappings, task)
	s.mu.Unlock()

	return s.core.vm.Unmap(m.Data)
}

// Resize grows or shrinks the segment, allowed only when RESIZE was set
// at creation. Existing mappings are not remapped: each keeps the length
// it was mapped with, and a task sees the new size only after it Unmaps
// and Maps again.
func (s *SharedSegment) Resize(newSize uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.destroyed {
		return NewHandleError("SharedMemory.Resize", s.hdr.Handle, ErrCodeDestroyed, "segment destroyed")
	}
	if s.flags&SegResize == 0 {
		return NewHandleError("SharedMemory.Resize", s.hdr.Handle, ErrCodeInvalidArg, "RESIZE flag not set")
	}
	if newSize >= s.sizeLogical {
		return s.growLocked(newSize)
	}
	return s.shrinkLocked(newSize)
}

func (s *SharedSegment) growLocked(newSize uint64) error {
	pageSize := uint64(s.core.opts.PageSize)
	newReal := pageAlign(newSize, pageSize)
	if newReal <= s.sizeReal {
		s.sizeLogical = newSize
		return nil
	}
	extra := (newReal - s.sizeReal) / pageSize
	newPages, err := s.core.allocator.AllocPages(int(extra))
	if err != nil {
		s.core.stats.BumpFailure(string(ErrCodeNoResources))
		return NewHandleError("SharedMemory.Resize", s.hdr.Handle, ErrCodeNoResources, "page allocation failed")
	}
	s.pages = append(s.pages, newPages...)
	s.sizeReal = newReal
	s.sizeLogical = newSize
	return nil
}

func (s *SharedSegment) shrinkLocked(newSize uint64) error {
	pageSize := uint64(s.core.opts.PageSize)
	newReal := pageAlign(newSize, pageSize)
	keepPages := int(newReal / pageSize)
	if keepPages < len(s.pages) {
		freed := s.pages[keepPages:]
		s.pages = s.pages[:keepPages]
		s.core.allocator.FreePages(freed)
	}
	s.sizeReal = newReal
	s.sizeLogical = newSize
	return nil
}

// Size returns the segment's logical and real (page-aligned) sizes.
func (s *SharedSegment) Size() (logical, real uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sizeLogical, s.sizeReal
}

// cleanupTask unmaps task's mapping (if present) and decrements the
// segment's refcount; if task was the creator and the refcount reaches
// zero, the segment is destroyed.
func (s *SharedSegment) cleanupTask(task TaskID) {
	s.mu.Lock()
	m, hadMapping := s.mappings[task]
	if hadMapping {
		delete(s.mappings, task)
	}
	wasCreator := s.creator == task
	if hadMapping || wasCreator {
		s.refcount--
	}
	shouldDestroy := s.refcount == 0
	s.mu.Unlock()

	if hadMapping {
		_ = s.core.vm.Unmap(m.Data)
	}
	if shouldDestroy {
		s.core.registry.Unregister(s.hdr.Handle)
	}
}

// Release decrements the segment's reference count, destroying it once
// it reaches zero.
func (s *SharedSegment) Release() error {
	s.mu.Lock()
	s.refcount--
	zero := s.refcount == 0
	s.mu.Unlock()
	if !zero {
		return nil
	}
	if !s.core.registry.Unregister(s.hdr.Handle) {
		return NewHandleError("SharedMemory.Release", s.hdr.Handle, ErrCodeInvalidHandle, "unknown or stale handle")
	}
	return nil
}
