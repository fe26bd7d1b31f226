package ipccore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestRefcountClosure covers invariant 7: objects_created - objects_destroyed
// equals the number of live objects, across every primitive kind.
func TestRefcountClosure(t *testing.T) {
	c := NewCore(DefaultOptions())

	m, err := c.NewMutex("")
	require.NoError(t, err)
	s, err := c.NewSemaphore("", 0, 1)
	require.NoError(t, err)
	e, err := c.NewEvent("", true, false)
	require.NoError(t, err)

	snap := c.StatsSnapshot()
	created, destroyed, live := c.registry.Counts()
	assert.Equal(t, created-destroyed, uint64(live))
	assert.True(t, c.CheckHealth())
	_ = snap

	require.NoError(t, m.Release())
	require.NoError(t, s.Release())
	require.NoError(t, e.Release())

	created, destroyed, live = c.registry.Counts()
	assert.Equal(t, created-destroyed, uint64(live))
	assert.Zero(t, live)
}

// TestPostTerminationInvariants covers invariant 8 across mutex,
// semaphore, event, message queue, and shared memory in one task
// termination sweep.
func TestPostTerminationInvariants(t *testing.T) {
	c := NewCore(DefaultOptions())
	const task TaskID = 7

	m, err := c.NewMutex("")
	require.NoError(t, err)
	require.NoError(t, m.Lock(task))

	q, err := c.NewMessageQueue("", 4)
	require.NoError(t, err)
	_, err = q.Send(task, 99, MessageTypeNormal, PriorityNormal, FlagNonBlock, nil, 0)
	require.NoError(t, err)

	seg, err := c.CreateSegment("", PageSize, PermRead|PermWrite, SegCreate, task)
	require.NoError(t, err)
	_, err = seg.Map(task, PermRead|PermWrite)
	require.NoError(t, err)

	c.CleanupTask(task)

	assert.EqualValues(t, 0, m.Owner(), "no wait queue/ownership may still reference the terminated task")
	assert.Equal(t, 0, q.Len(), "no queue may hold messages with sender or receiver equal to the terminated task")

	_, ok := c.registry.Lookup(seg.Handle())
	assert.False(t, ok, "a segment with no remaining references is destroyed")
}

func TestCoreDefaultOptionsWireRealCollaborators(t *testing.T) {
	c := NewCore(DefaultOptions())
	require.NotNil(t, c.scheduler)
	require.NotNil(t, c.allocator)
	require.NotNil(t, c.vm)
	require.NotNil(t, c.log)
	assert.True(t, c.CheckHealth())
}
