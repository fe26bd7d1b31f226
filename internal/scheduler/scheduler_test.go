package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBlockUnblock(t *testing.T) {
	r := NewRuntime()
	done := make(chan error, 1)
	go func() { done <- r.Block(context.Background(), 1) }()

	time.Sleep(20 * time.Millisecond)
	r.Unblock(1)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("task never unblocked")
	}
}

func TestUnblockBeforeBlockIsNotLost(t *testing.T) {
	r := NewRuntime()
	r.Unblock(1)

	err := r.Block(context.Background(), 1)
	require.NoError(t, err)
}

func TestBlockRespectsContextCancellation(t *testing.T) {
	r := NewRuntime()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := r.Block(ctx, 1)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRegisterCleanupRunsInOrder(t *testing.T) {
	r := NewRuntime()
	var order []int
	r.RegisterCleanup(func(TaskID) { order = append(order, 1) })
	r.RegisterCleanup(func(TaskID) { order = append(order, 2) })

	r.TerminateTask(7)
	assert.Equal(t, []int{1, 2}, order)
}

func TestPriority(t *testing.T) {
	r := NewRuntime()
	r.SetPriority(1, PriorityHigh)
	assert.Equal(t, PriorityHigh, r.Priority(1))
	assert.Equal(t, PriorityIdle, r.Priority(2))
}

func TestMSToTicksAndBack(t *testing.T) {
	assert.EqualValues(t, 100, MSToTicks(100, 1000))
	assert.EqualValues(t, 100, TicksToMS(100, 1000))
	assert.EqualValues(t, 50, MSToTicks(100, 2000))
}
