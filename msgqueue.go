package ipccore

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/edgex/ipccore/internal/constants"
	"github.com/edgex/ipccore/internal/qreg"
	"github.com/edgex/ipccore/internal/registry"
)

var nextMessageID atomic.Uint64

// Message is a fixed-layout IPC message (C7).
type Message struct {
	ID        uint64
	Sender    TaskID
	Receiver  TaskID
	Type      MessageType
	Priority  Priority
	Flags     MessageFlags
	Payload   []byte
	Size      uint32
	ReplyID   uint64
	Timestamp time.Time
	sentAt    time.Time // local wall-clock for the WAIT_REPLY timeout scan
}

// MessageQueue is a bounded, priority-ordered queue of messages (C7),
// built on this package's own Mutex and Semaphore rather than talking to
// the wait queue directly, per the spec's explicit "C7 reuses C4+C5"
// data-flow note.
type MessageQueue struct {
	hdr registry.Header

	core           *Core
	internalMutex  *Mutex
	msgAvailable   *Semaphore
	spaceAvailable *Semaphore

	ringMu sync.Mutex
	ring   []*Message
	cap    int

	highCount   atomic.Uint64
	urgentCount atomic.Uint64
	timeoutHits atomic.Uint64

	destroyed bool
}

func (q *MessageQueue) Header() *registry.Header { return &q.hdr }

func (q *MessageQueue) Destroy() {
	q.ringMu.Lock()
	q.destroyed = true
	q.ringMu.Unlock()
	q.internalMutex.Destroy()
	q.msgAvailable.Destroy()
	q.spaceAvailable.Destroy()
	q.core.stats.RecordDestroy(int(registry.TypeMessageQueue))
	q.core.observer.ObserveDestroy(int(registry.TypeMessageQueue))
}

// NewMessageQueue creates and registers a bounded priority message queue.
func (c *Core) NewMessageQueue(name string, capacity int) (*MessageQueue, error) {
	if capacity <= 0 {
		return nil, NewError("MessageQueue.Create", ErrCodeInvalidArg, "capacity must be positive")
	}
	internalMutex, err := c.NewMutex("")
	if err != nil {
		return nil, WrapError("MessageQueue.Create", err)
	}
	msgAvail, err := c.NewSemaphore("", 0, int32(capacity))
	if err != nil {
		return nil, WrapError("MessageQueue.Create", err)
	}
	spaceAvail, err := c.NewSemaphore("", int32(capacity), int32(capacity))
	if err != nil {
		return nil, WrapError("MessageQueue.Create", err)
	}

	q := &MessageQueue{
		core:           c,
		internalMutex:  internalMutex,
		msgAvailable:   msgAvail,
		spaceAvailable: spaceAvail,
		ring:           make([]*Message, 0, capacity),
		cap:            capacity,
	}
	q.hdr = registry.Header{Type: registry.TypeMessageQueue, Name: name}

	h, ok := c.registry.Register(q)
	if !ok {
		return nil, NewError("MessageQueue.Create", ErrCodeNoResources, "registry or name capacity exceeded")
	}
	q.hdr.Handle = h
	c.registerScanner(q.scanReplyTimeouts)
	c.stats.RecordCreate(int(registry.TypeMessageQueue))
	c.observer.ObserveCreate(int(registry.TypeMessageQueue))
	return q, nil
}

func (q *MessageQueue) Handle() Handle { return q.hdr.Handle }

// Len returns the current number of queued messages.
func (q *MessageQueue) Len() int {
	q.ringMu.Lock()
	defer q.ringMu.Unlock()
	return len(q.ring)
}

// Send enqueues a message, stamping sender/id/timestamp. On a full
// queue it returns WOULD_BLOCK when flags carry FlagNonBlock; otherwise
// it waits up to timeoutMS, or indefinitely when timeoutMS is 0.
func (q *MessageQueue) Send(sender TaskID, receiver TaskID, msgType MessageType, priority Priority, flags MessageFlags, payload []byte, timeoutMS int64) (uint64, error) {
	q.core.stats.RecordOp(int(registry.TypeMessageQueue))
	q.core.observer.ObserveOp(int(registry.TypeMessageQueue))
	if len(payload) > constants.MaxMessageSize {
		return 0, NewHandleError("MessageQueue.Send", q.hdr.Handle, ErrCodeInvalidArg, "payload exceeds MaxMessageSize")
	}

	msg := &Message{
		ID:        nextMessageID.Add(1),
		Sender:    sender,
		Receiver:  receiver,
		Type:      msgType,
		Priority:  priority,
		Flags:     flags,
		Payload:   append([]byte(nil), payload...),
		Size:      uint32(len(payload)),
		Timestamp: time.Now(),
		sentAt:    time.Now(),
	}

	if flags&FlagNonBlock != 0 {
		if err := q.spaceAvailable.TryWait(); err != nil {
			return 0, NewHandleError("MessageQueue.Send", q.hdr.Handle, ErrCodeWouldBlock, "queue full")
		}
	} else if err := q.spaceAvailable.TimedWait(sender, timeoutMS); err != nil {
		return 0, WrapError("MessageQueue.Send", err)
	}

	if err := q.internalMutex.Lock(sender); err != nil {
		return 0, WrapError("MessageQueue.Send", err)
	}
	q.insertLocked(msg)
	_ = q.internalMutex.Unlock(sender)

	if err := q.msgAvailable.Post(); err != nil {
		return 0, WrapError("MessageQueue.Send", err)
	}
	return msg.ID, nil
}

// insertLocked implements spec §4.6's insertion policy: descending
// priority head-to-tail, FIFO within a priority class. URGENT messages
// carrying FlagPriority jump straight to the head.
func (q *MessageQueue) insertLocked(msg *Message) {
	q.ringMu.Lock()
	defer q.ringMu.Unlock()

	if msg.Priority == PriorityHigh {
		q.highCount.Add(1)
	}
	if msg.Priority == PriorityUrgent {
		q.urgentCount.Add(1)
	}

	if msg.Priority == PriorityUrgent && msg.Flags&FlagPriority != 0 {
		q.ring = append([]*Message{msg}, q.ring...)
		return
	}

	idx := len(q.ring)
	for i := len(q.ring) - 1; i >= 0; i-- {
		if q.ring[i].Priority >= msg.Priority {
			idx = i + 1
			break
		}
		idx = i
	}
	q.ring = append(q.ring, nil)
	copy(q.ring[idx+1:], q.ring[idx:])
	q.ring[idx] = msg
}

// Receive dequeues the head message (highest priority, FIFO within a
// priority class).
func (q *MessageQueue) Receive(receiver TaskID, flags MessageFlags, timeoutMS int64) (*Message, error) {
	q.core.stats.RecordOp(int(registry.TypeMessageQueue))
	q.core.observer.ObserveOp(int(registry.TypeMessageQueue))

	if flags&FlagNonBlock != 0 {
		if err := q.msgAvailable.TryWait(); err != nil {
			return nil, NewHandleError("MessageQueue.Receive", q.hdr.Handle, ErrCodeWouldBlock, "queue empty")
		}
	} else if err := q.msgAvailable.TimedWait(receiver, timeoutMS); err != nil {
		return nil, WrapError("MessageQueue.Receive", err)
	}

	if err := q.internalMutex.Lock(receiver); err != nil {
		return nil, WrapError("MessageQueue.Receive", err)
	}
	msg := q.popLocked()
	_ = q.internalMutex.Unlock(receiver)

	if err := q.spaceAvailable.Post(); err != nil {
		return nil, WrapError("MessageQueue.Receive", err)
	}
	return msg, nil
}

func (q *MessageQueue) popLocked() *Message {
	q.ringMu.Lock()
	defer q.ringMu.Unlock()
	if len(q.ring) == 0 {
		return nil
	}
	msg := q.ring[0]
	q.ring = q.ring[1:]
	return msg
}

// Reply sends a RESPONSE message back to original's sender, resolving
// the destination queue via the queue registry's RECEIVE entry for that
// task. Per spec §9's Open Question resolution, an unknown receive queue
// is NOT_FOUND rather than falling back to "any registered queue".
func (q *MessageQueue) Reply(core *Core, original *Message, payload []byte) (uint64, error) {
	target, ok := core.qreg.Find(original.Sender, qreg.ModeReceive)
	if !ok {
		return 0, NewTaskError("MessageQueue.Reply", original.Sender, ErrCodeNotFound, "sender has no registered receive queue")
	}
	destQueue, ok := target.(*MessageQueue)
	if !ok {
		return 0, NewTaskError("MessageQueue.Reply", original.Sender, ErrCodeNotFound, "registered queue handle is not a message queue")
	}
	return destQueue.Send(0, original.Sender, MessageTypeResponse, PriorityHigh, 0, payload, 0)
}

// scanReplyTimeouts marks WAIT_REPLY messages that have exceeded the
// 30-second reply threshold by setting FlagTimedOut, per spec §4.6. This
// is a notification mechanism only: callers must inspect the flag.
func (q *MessageQueue) scanReplyTimeouts(now time.Time) {
	q.ringMu.Lock()
	defer q.ringMu.Unlock()
	for _, msg := range q.ring {
		if msg.Flags&FlagWaitReply != 0 && msg.Flags&FlagTimedOut == 0 {
			if now.Sub(msg.sentAt) >= constants.WaitReplyTimeout {
				msg.Flags |= FlagTimedOut
				q.timeoutHits.Add(1)
				q.core.stats.BumpFailure(string(ErrCodeTimeout))
				q.core.observer.ObserveTimeout()
			}
		}
	}
}

// cleanupTask removes every message with sender or receiver equal to
// task and reinitializes the internal semaphores to the post-compaction
// counts, per spec §4.6's task-cleanup behavior.
func (q *MessageQueue) cleanupTask(task TaskID) {
	q.ringMu.Lock()
	kept := q.ring[:0:0]
	for _, msg := range q.ring {
		if msg.Sender != task && msg.Receiver != task {
			kept = append(kept, msg)
		}
	}
	q.ring = kept
	n := len(q.ring)
	cap := q.cap
	q.ringMu.Unlock()

	q.msgAvailable.mu.Lock()
	q.msgAvailable.value = int32(n)
	q.msgAvailable.mu.Unlock()

	q.spaceAvailable.mu.Lock()
	q.spaceAvailable.value = int32(cap - n)
	q.spaceAvailable.mu.Unlock()
}

// RegisterQueue adds q to task's owned-queue list (C8), making it the
// task's default send/receive queue if it is the first one registered.
func (c *Core) RegisterQueue(task TaskID, q *MessageQueue) error {
	if !c.qreg.Register(task, q) {
		return NewTaskError("QueueRegistry.Register", task, ErrCodeNoResources, "task already owns MaxQueuesPerTask queues")
	}
	return nil
}

// UnregisterQueue removes q from task's owned-queue list.
func (c *Core) UnregisterQueue(task TaskID, q *MessageQueue) error {
	if !c.qreg.Unregister(task, q) {
		return NewTaskError("QueueRegistry.Unregister", task, ErrCodeNotFound, "queue not registered to task")
	}
	return nil
}

// FindQueue resolves task's send/receive/any queue per mode.
func (c *Core) FindQueue(task TaskID, mode QueueLookupMode) (*MessageQueue, error) {
	var qm qreg.Mode
	switch mode {
	case LookupSend:
		qm = qreg.ModeSend
	case LookupReceive:
		qm = qreg.ModeReceive
	default:
		qm = qreg.ModeAny
	}
	v, ok := c.qreg.Find(task, qm)
	if !ok {
		return nil, NewTaskError("QueueRegistry.Find", task, ErrCodeNotFound, "no matching queue registered")
	}
	return v.(*MessageQueue), nil
}

// Release unregisters the message queue.
func (q *MessageQueue) Release() error {
	if !q.core.registry.Unregister(q.hdr.Handle) {
		return NewHandleError("MessageQueue.Release", q.hdr.Handle, ErrCodeInvalidHandle, "unknown or stale handle")
	}
	return nil
}
