package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeObject struct {
	hdr       Header
	destroyed bool
}

func (f *fakeObject) Header() *Header { return &f.hdr }
func (f *fakeObject) Destroy()        { f.destroyed = true }

func TestRegisterLookupUnregister(t *testing.T) {
	r := New(4)
	obj := &fakeObject{hdr: Header{Type: TypeMutex, Name: "m"}}

	h, ok := r.Register(obj)
	require.True(t, ok)
	assert.Equal(t, h, obj.hdr.Handle)

	got, ok := r.Lookup(h)
	require.True(t, ok)
	assert.Same(t, obj, got)

	byName, ok := r.LookupByName("m")
	require.True(t, ok)
	assert.Same(t, obj, byName)

	require.True(t, r.Unregister(h))
	assert.True(t, obj.destroyed)

	_, ok = r.Lookup(h)
	assert.False(t, ok)
}

func TestStaleHandleAfterSlotReuse(t *testing.T) {
	r := New(1)
	first := &fakeObject{hdr: Header{Type: TypeMutex}}
	h1, ok := r.Register(first)
	require.True(t, ok)
	require.True(t, r.Unregister(h1))

	second := &fakeObject{hdr: Header{Type: TypeSemaphore}}
	h2, ok := r.Register(second)
	require.True(t, ok)
	assert.Equal(t, h1.Slot, h2.Slot)
	assert.NotEqual(t, h1.Generation, h2.Generation)

	_, ok = r.Lookup(h1)
	assert.False(t, ok, "stale handle must never resolve to the reused slot")

	got, ok := r.Lookup(h2)
	require.True(t, ok)
	assert.Same(t, second, got)
}

func TestRegisterDuplicateNameFails(t *testing.T) {
	r := New(4)
	_, ok := r.Register(&fakeObject{hdr: Header{Type: TypeMutex, Name: "dup"}})
	require.True(t, ok)

	_, ok = r.Register(&fakeObject{hdr: Header{Type: TypeMutex, Name: "dup"}})
	assert.False(t, ok)
}

func TestRegisterAtCapacityFails(t *testing.T) {
	r := New(1)
	_, ok := r.Register(&fakeObject{hdr: Header{Type: TypeMutex}})
	require.True(t, ok)

	_, ok = r.Register(&fakeObject{hdr: Header{Type: TypeMutex}})
	assert.False(t, ok)
}

func TestCheckHealthAndCounts(t *testing.T) {
	r := New(4)
	h, ok := r.Register(&fakeObject{hdr: Header{Type: TypeEvent}})
	require.True(t, ok)
	assert.True(t, r.CheckHealth())

	created, destroyed, live := r.Counts()
	assert.EqualValues(t, 1, created)
	assert.EqualValues(t, 0, destroyed)
	assert.Equal(t, 1, live)

	require.True(t, r.Unregister(h))
	created, destroyed, live = r.Counts()
	assert.EqualValues(t, 1, created)
	assert.EqualValues(t, 1, destroyed)
	assert.Equal(t, 0, live)
}

func TestDumpAllAndLiveObjects(t *testing.T) {
	r := New(4)
	_, ok := r.Register(&fakeObject{hdr: Header{Type: TypeMutex, Name: "a"}})
	require.True(t, ok)
	_, ok = r.Register(&fakeObject{hdr: Header{Type: TypeSemaphore, Name: "b"}})
	require.True(t, ok)

	assert.Len(t, r.DumpAll(), 2)
	assert.Len(t, r.LiveObjects(), 2)
}
