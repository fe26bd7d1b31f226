package ipccore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestEventAutoVsManualReset covers S4.
func TestEventAutoVsManualReset(t *testing.T) {
	c := NewCore(DefaultOptions())

	e1, err := c.NewEvent("auto", false, false)
	require.NoError(t, err)
	require.NoError(t, e1.Signal())
	require.NoError(t, e1.Wait(1))
	err = e1.TimedWait(1, 100)
	assert.True(t, IsCode(err, ErrCodeTimeout))

	e2, err := c.NewEvent("manual", true, false)
	require.NoError(t, err)
	require.NoError(t, e2.Signal())
	require.NoError(t, e2.Wait(1))
	require.NoError(t, e2.Wait(1))
	require.NoError(t, e2.Reset())
	err = e2.TimedWait(1, 100)
	assert.True(t, IsCode(err, ErrCodeTimeout))
}

func TestEventSignalWakesExactlyOneWaiter(t *testing.T) {
	c := NewCore(DefaultOptions())
	e, err := c.NewEvent("", false, false)
	require.NoError(t, err)

	results := make(chan error, 2)
	go func() { results <- e.Wait(1) }()
	go func() { results <- e.Wait(2) }()
	time.Sleep(20 * time.Millisecond)

	require.NoError(t, e.Signal())

	var woken int
	select {
	case err := <-results:
		require.NoError(t, err)
		woken++
	case <-time.After(time.Second):
		t.Fatal("no waiter woke")
	}

	select {
	case <-results:
		t.Fatal("a second waiter woke from a single auto-reset signal")
	case <-time.After(50 * time.Millisecond):
	}

	require.NoError(t, e.Signal())
	select {
	case err := <-results:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("second waiter never woke after second signal")
	}
}

// TestEventSetTieBreak covers S5.
func TestEventSetTieBreak(t *testing.T) {
	c := NewCore(DefaultOptions())
	e1, err := c.NewEvent("e1", true, false)
	require.NoError(t, err)
	e2, err := c.NewEvent("e2", true, false)
	require.NoError(t, err)

	set, err := c.NewEventSet("")
	require.NoError(t, err)
	require.NoError(t, set.Add(e1))
	require.NoError(t, set.Add(e2))

	require.NoError(t, e2.Signal())
	signaled, err := set.Wait(1)
	require.NoError(t, err)
	assert.Same(t, e2, signaled)

	require.NoError(t, e1.Signal())
	signaled, err = set.Wait(1)
	require.NoError(t, err)
	assert.Same(t, e1, signaled, "lowest insertion index must win the tie-break")
}

func TestEventSetAddRespectsCapacity(t *testing.T) {
	c := NewCore(DefaultOptions())
	set, err := c.NewEventSet("")
	require.NoError(t, err)

	for i := 0; i < MaxEventsPerSet; i++ {
		e, err := c.NewEvent("", true, false)
		require.NoError(t, err)
		require.NoError(t, set.Add(e))
	}

	overflow, err := c.NewEvent("", true, false)
	require.NoError(t, err)
	err = set.Add(overflow)
	assert.True(t, IsCode(err, ErrCodeInvalidArg))
}
