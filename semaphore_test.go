package ipccore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSemaphoreTryWaitAndPost(t *testing.T) {
	c := NewCore(DefaultOptions())
	s, err := c.NewSemaphore("s1", 1, 3)
	require.NoError(t, err)

	require.NoError(t, s.TryWait())
	assert.EqualValues(t, 0, s.Value())

	err = s.TryWait()
	assert.True(t, IsCode(err, ErrCodeWouldBlock))

	require.NoError(t, s.Post())
	assert.EqualValues(t, 1, s.Value())
}

func TestSemaphorePostOverflow(t *testing.T) {
	c := NewCore(DefaultOptions())
	s, err := c.NewSemaphore("", 2, 2)
	require.NoError(t, err)

	err = s.Post()
	assert.True(t, IsCode(err, ErrCodeOverflow))
}

func TestSemaphoreInvalidInitialValue(t *testing.T) {
	c := NewCore(DefaultOptions())
	_, err := c.NewSemaphore("", 5, 2)
	assert.True(t, IsCode(err, ErrCodeInvalidArg))
}

func TestSemaphoreWaitBlocksUntilPost(t *testing.T) {
	c := NewCore(DefaultOptions())
	s, err := c.NewSemaphore("", 0, 1)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- s.Wait(1) }()
	time.Sleep(20 * time.Millisecond)

	require.NoError(t, s.Post())

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("waiter never unblocked")
	}
	assert.EqualValues(t, 0, s.Value())
}

func TestSemaphoreTimedWaitTimesOut(t *testing.T) {
	c := NewCore(DefaultOptions())
	s, err := c.NewSemaphore("", 0, 1)
	require.NoError(t, err)

	start := time.Now()
	err = s.TimedWait(1, 50)
	assert.True(t, IsCode(err, ErrCodeTimeout))
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
}
