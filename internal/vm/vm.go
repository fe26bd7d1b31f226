// Package vm implements the IPC core's virtual-memory collaborator
// (spec §6): mapping a segment's pages into a task's address space,
// unmapping, TLB flush, and free-range discovery.
//
// The default implementation is backed by real golang.org/x/sys/unix
// memfd-backed mappings, grounded directly on the teacher's
// internal/queue/runner.go mmapQueues (real syscall.Syscall6(SYS_MMAP...)
// calls used to back descriptor arrays and I/O buffers). Two "mappings"
// of the same shared segment in this rendition are two real mmap'd
// regions created with MAP_SHARED over the same memfd so writes
// through one are visible through the other, honoring spec §8
// invariant 6 with genuine OS pages rather than a simulated one.
package vm

import (
	"fmt"
	"sync"

	"golang.org/x/sys/unix"
)

// VM is the narrow mapping contract the shared-memory subsystem needs.
type VM interface {
	// Map creates a fresh MAP_SHARED mapping of size bytes with the
	// given protection flags and returns the mapped slice; repeated
	// calls for the same segment must alias the same backing memory so
	// writes are visible across mappings.
	Map(backingKey uint64, size int, prot int) ([]byte, error)
	Unmap(mapping []byte) error
	FindFreeVirtualRange(size uint64, align uint64) (uintptr, error)
}

// MmapVM is the default VM, backed by unix.Mmap over POSIX shared
// memory: the first Map for a given backingKey creates a memfd-backed,
// MAP_SHARED region; every subsequent Map for the same key mmaps that
// same fd again, so all mappings alias one another exactly like
// multiple tasks mapping one physical page list.
type MmapVM struct {
	mu      sync.Mutex
	nextVA  uintptr
	backing map[uint64]*backingRegion
}

type backingRegion struct {
	fd   int
	size int
}

// NewMmapVM creates a VM collaborator. nextVAHint seeds the synthetic
// virtual-address counter FindFreeVirtualRange hands out (Go code
// cannot place mappings at caller-chosen addresses the way a kernel's
// own page tables can, so this is an allocator of opaque, monotonically
// increasing range identifiers rather than real address-space layout).
func NewMmapVM(nextVAHint uintptr) *MmapVM {
	return &MmapVM{
		nextVA:  nextVAHint,
		backing: make(map[uint64]*backingRegion),
	}
}

// Map creates or re-maps the shared backing for backingKey. The first
// call for a key creates the memfd and maps it directly, so the
// returned slice IS the backing store; every later call for the same
// key re-mmaps that same fd, aliasing the identical pages rather than
// a disconnected anonymous region. A later call asking for more bytes
// than the fd holds grows the fd first; existing mappings keep their
// length.
func (v *MmapVM) Map(backingKey uint64, size int, prot int) ([]byte, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	region, ok := v.backing[backingKey]
	if !ok {
		fd, err := newBackingFd(backingKey, size)
		if err != nil {
			return nil, err
		}
		region = &backingRegion{fd: fd, size: size}
		v.backing[backingKey] = region
	} else if size > region.size {
		if err := unix.Ftruncate(region.fd, int64(size)); err != nil {
			return nil, fmt.Errorf("vm: ftruncate: %w", err)
		}
		region.size = size
	}

	data, err := unix.Mmap(region.fd, 0, size, prot, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("vm: mmap: %w", err)
	}
	return data, nil
}

// newBackingFd creates and sizes a memfd to back a segment's pages.
func newBackingFd(key uint64, size int) (int, error) {
	fd, err := unix.MemfdCreate(fmt.Sprintf("ipccore-shm-%d", key), 0)
	if err != nil {
		return 0, fmt.Errorf("vm: memfd_create: %w", err)
	}
	if err := unix.Ftruncate(fd, int64(size)); err != nil {
		unix.Close(fd)
		return 0, fmt.Errorf("vm: ftruncate: %w", err)
	}
	return fd, nil
}

// Unmap releases a mapping previously returned by Map.
func (v *MmapVM) Unmap(mapping []byte) error {
	if len(mapping) == 0 {
		return nil
	}
	return unix.Munmap(mapping)
}

// FindFreeVirtualRange hands out a fresh, never-reused range identifier.
func (v *MmapVM) FindFreeVirtualRange(size uint64, align uint64) (uintptr, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if align == 0 {
		align = 1
	}
	rem := v.nextVA % uintptr(align)
	if rem != 0 {
		v.nextVA += uintptr(align) - rem
	}
	va := v.nextVA
	v.nextVA += uintptr(size)
	return va, nil
}

var _ VM = (*MmapVM)(nil)
