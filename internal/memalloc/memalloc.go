// Package memalloc implements the IPC core's memory-allocator
// collaborator (spec §6): kmalloc/kfree and page allocation. A host Go
// process has no page table of its own to hand out physical frames from,
// so pages are modeled as allocator-owned, zero-filled byte slices —
// the one place the spec's page-table model is necessarily simulated
// rather than backed by a real kernel facility (see SPEC_FULL.md's
// DOMAIN STACK note).
//
// The page pooling is grounded on the teacher's internal/queue/pool.go
// sync.Pool buffer pool.
package memalloc

import "sync"

// Page is PageSize bytes of allocator-owned, zero-filled memory.
type Page []byte

// Allocator hands out and reclaims pages and small kmalloc blocks.
type Allocator interface {
	AllocPages(n int) ([]Page, error)
	FreePages(pages []Page)
	KMalloc(size int) []byte
	KFree(buf []byte)
}

// PoolAllocator is the default Allocator. Freed pages are returned to a
// single sync.Pool of page-sized slices, so a steady-state create/destroy cycle
// (segments being resized, destroyed, recreated) reuses memory instead
// of round-tripping through the Go allocator every time — the same
// motivation as the teacher's GetBuffer/PutBuffer.
type PoolAllocator struct {
	pageSize int
	pagePool sync.Pool
}

// New creates an allocator that hands out pages of pageSize bytes.
func New(pageSize int) *PoolAllocator {
	a := &PoolAllocator{pageSize: pageSize}
	a.pagePool.New = func() any {
		buf := make(Page, a.pageSize)
		return &buf
	}
	return a
}

// AllocPages returns n zero-filled pages.
func (a *PoolAllocator) AllocPages(n int) ([]Page, error) {
	pages := make([]Page, n)
	for i := range pages {
		p := a.pagePool.Get().(*Page)
		for j := range *p {
			(*p)[j] = 0
		}
		pages[i] = *p
	}
	return pages, nil
}

// FreePages returns pages to the pool.
func (a *PoolAllocator) FreePages(pages []Page) {
	for _, p := range pages {
		pp := p
		a.pagePool.Put(&pp)
	}
}

// KMalloc allocates a plain byte slice; there is no sub-page slab
// allocator to model here, so this is a direct allocation.
func (a *PoolAllocator) KMalloc(size int) []byte { return make([]byte, size) }

// KFree is a no-op; Go's GC reclaims kmalloc blocks once unreferenced.
func (a *PoolAllocator) KFree(buf []byte) {}

var _ Allocator = (*PoolAllocator)(nil)
