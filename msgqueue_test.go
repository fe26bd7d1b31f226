package ipccore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestMessageQueueBoundedProducerConsumer covers S2.
func TestMessageQueueBoundedProducerConsumer(t *testing.T) {
	c := NewCore(DefaultOptions())
	q, err := c.NewMessageQueue("q", 3)
	require.NoError(t, err)

	var results []error
	for i := 0; i < 4; i++ {
		_, err := q.Send(1, 2, MessageTypeNormal, PriorityNormal, FlagNonBlock, []byte("x"), 0)
		results = append(results, err)
	}
	require.NoError(t, results[0])
	require.NoError(t, results[1])
	require.NoError(t, results[2])
	assert.True(t, IsCode(results[3], ErrCodeWouldBlock))

	msg, err := q.Receive(2, FlagNonBlock, 0)
	require.NoError(t, err)
	assert.NotNil(t, msg)

	_, err = q.Send(1, 2, MessageTypeNormal, PriorityNormal, FlagNonBlock, []byte("y"), 0)
	assert.NoError(t, err)
}

// TestMessageQueuePriorityOrdering covers S3.
func TestMessageQueuePriorityOrdering(t *testing.T) {
	c := NewCore(DefaultOptions())
	q, err := c.NewMessageQueue("q", 10)
	require.NoError(t, err)

	order := []Priority{PriorityLow, PriorityUrgent, PriorityNormal, PriorityHigh}
	for _, p := range order {
		_, err := q.Send(1, 2, MessageTypeNormal, p, FlagNonBlock, nil, 0)
		require.NoError(t, err)
	}

	want := []Priority{PriorityUrgent, PriorityHigh, PriorityNormal, PriorityLow}
	for _, expected := range want {
		msg, err := q.Receive(2, FlagNonBlock, 0)
		require.NoError(t, err)
		assert.Equal(t, expected, msg.Priority)
	}
}

func TestMessageQueueUrgentPriorityFlagJumpsHead(t *testing.T) {
	c := NewCore(DefaultOptions())
	q, err := c.NewMessageQueue("", 10)
	require.NoError(t, err)

	_, err = q.Send(1, 2, MessageTypeNormal, PriorityHigh, FlagNonBlock, nil, 0)
	require.NoError(t, err)
	_, err = q.Send(1, 2, MessageTypeNormal, PriorityUrgent, FlagNonBlock|FlagPriority, nil, 0)
	require.NoError(t, err)

	msg, err := q.Receive(2, FlagNonBlock, 0)
	require.NoError(t, err)
	assert.Equal(t, PriorityUrgent, msg.Priority)
}

// TestMessageQueueTaskCleanup covers S7.
func TestMessageQueueTaskCleanup(t *testing.T) {
	c := NewCore(DefaultOptions())
	q, err := c.NewMessageQueue("q", 10)
	require.NoError(t, err)

	const taskT, other TaskID = 1, 2
	for i := 0; i < 3; i++ {
		_, err := q.Send(taskT, other, MessageTypeNormal, PriorityNormal, FlagNonBlock, nil, 0)
		require.NoError(t, err)
	}
	for i := 0; i < 2; i++ {
		_, err := q.Send(other, taskT, MessageTypeNormal, PriorityNormal, FlagNonBlock, nil, 0)
		require.NoError(t, err)
	}
	require.Equal(t, 5, q.Len())

	c.CleanupTask(taskT)

	assert.Equal(t, 2, q.Len())
	for i := 0; i < 2; i++ {
		msg, err := q.Receive(other, FlagNonBlock, 0)
		require.NoError(t, err)
		assert.NotEqual(t, taskT, msg.Sender)
	}
}

func TestMessageQueueReplyRoutesToRegisteredReceiveQueue(t *testing.T) {
	c := NewCore(DefaultOptions())
	inbox, err := c.NewMessageQueue("inbox", 4)
	require.NoError(t, err)
	require.NoError(t, c.RegisterQueue(1, inbox))

	work, err := c.NewMessageQueue("work", 4)
	require.NoError(t, err)
	id, err := work.Send(1, 2, MessageTypeNormal, PriorityNormal, FlagNonBlock, []byte("req"), 0)
	require.NoError(t, err)

	original, err := work.Receive(2, FlagNonBlock, 0)
	require.NoError(t, err)
	require.Equal(t, id, original.ID)

	_, err = work.Reply(c, original, []byte("resp"))
	require.NoError(t, err)

	reply, err := inbox.Receive(1, FlagNonBlock, 0)
	require.NoError(t, err)
	assert.Equal(t, MessageTypeResponse, reply.Type)
	assert.Equal(t, []byte("resp"), reply.Payload)
}

func TestMessageQueueReplyUnknownReceiverIsNotFound(t *testing.T) {
	c := NewCore(DefaultOptions())
	q, err := c.NewMessageQueue("", 4)
	require.NoError(t, err)
	original := &Message{Sender: 99}

	_, err = q.Reply(c, original, nil)
	assert.True(t, IsCode(err, ErrCodeNotFound))
}

func TestMessageQueuePayloadTooLarge(t *testing.T) {
	c := NewCore(DefaultOptions())
	q, err := c.NewMessageQueue("", 4)
	require.NoError(t, err)

	_, err = q.Send(1, 2, MessageTypeNormal, PriorityNormal, 0, make([]byte, MaxMessageSize+1), 0)
	assert.True(t, IsCode(err, ErrCodeInvalidArg))
}
