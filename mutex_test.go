package ipccore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestMutexRecursionAndContention covers S1: recursive lock/unlock by the
// owner, TryLock returning BUSY for a non-owner, and a blocked Lock
// unblocking once the owner fully releases.
func TestMutexRecursionAndContention(t *testing.T) {
	c := NewCore(DefaultOptions())
	m, err := c.NewMutex("m1")
	require.NoError(t, err)

	const taskA, taskB TaskID = 1, 2

	require.NoError(t, m.Lock(taskA))
	assert.EqualValues(t, 1, m.LockCount())

	require.NoError(t, m.Lock(taskA))
	assert.EqualValues(t, 2, m.LockCount())

	require.NoError(t, m.Unlock(taskA))
	assert.EqualValues(t, 1, m.LockCount())

	err = m.TryLock(taskB)
	assert.True(t, IsCode(err, ErrCodeBusy))

	done := make(chan error, 1)
	go func() { done <- m.Lock(taskB) }()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, m.Unlock(taskA))
	assert.EqualValues(t, 0, m.Owner())

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("task B never unblocked")
	}
	assert.Equal(t, taskB, m.Owner())
	assert.EqualValues(t, 1, m.LockCount())
}

func TestMutexUnlockByNonOwner(t *testing.T) {
	c := NewCore(DefaultOptions())
	m, err := c.NewMutex("")
	require.NoError(t, err)

	require.NoError(t, m.Lock(1))
	err = m.Unlock(2)
	assert.True(t, IsCode(err, ErrCodeNotOwner))
}

func TestMutexDestroyWakesWaitersWithDestroyed(t *testing.T) {
	c := NewCore(DefaultOptions())
	m, err := c.NewMutex("")
	require.NoError(t, err)
	require.NoError(t, m.Lock(1))

	done := make(chan error, 1)
	go func() { done <- m.Lock(2) }()
	time.Sleep(20 * time.Millisecond)

	require.NoError(t, m.Release())

	select {
	case err := <-done:
		assert.True(t, IsCode(err, ErrCodeDestroyed))
	case <-time.After(time.Second):
		t.Fatal("waiter never observed destruction")
	}
}

func TestMutexCleanupTaskReleasesOwnership(t *testing.T) {
	c := NewCore(DefaultOptions())
	m, err := c.NewMutex("")
	require.NoError(t, err)
	require.NoError(t, m.Lock(1))

	c.CleanupTask(1)

	assert.EqualValues(t, 0, m.Owner())
	require.NoError(t, m.TryLock(2))
}
