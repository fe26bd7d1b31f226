package ipccore

import "github.com/edgex/ipccore/internal/constants"

// Re-exported limits and defaults, so callers never need to import the
// internal constants package directly.
const (
	MaxIPCNameLength = constants.MaxIPCNameLength
	MaxMessageSize   = constants.MaxMessageSize
	MaxEventsPerSet  = constants.MaxEventsPerSet
	MaxQueuesPerTask = constants.MaxQueuesPerTask
	PageSize         = constants.PageSize

	DefaultMaxMutexes        = constants.DefaultMaxMutexes
	DefaultMaxSemaphores     = constants.DefaultMaxSemaphores
	DefaultMaxEvents         = constants.DefaultMaxEvents
	DefaultMaxEventSets      = constants.DefaultMaxEventSets
	DefaultMaxMessageQueues  = constants.DefaultMaxMessageQueues
	DefaultMaxSharedSegments = constants.DefaultMaxSharedSegments
	DefaultRegistryCapacity  = constants.DefaultRegistryCapacity
)

// Priority is the message/task priority class of spec §6.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
	PriorityUrgent
)

func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "LOW"
	case PriorityNormal:
		return "NORMAL"
	case PriorityHigh:
		return "HIGH"
	case PriorityUrgent:
		return "URGENT"
	default:
		return "UNKNOWN"
	}
}

// MessageFlags are bit flags carried by a Message.
type MessageFlags uint32

const (
	FlagNonBlock MessageFlags = 1 << iota
	FlagNoWait
	FlagPriority
	FlagWaitReply
	FlagTimeout
	// FlagTimedOut is set by the periodic timeout scan on a WAIT_REPLY
	// message that has exceeded the reply threshold. It occupies the
	// high bit, mirroring the "set the high bit of flags" notification
	// mechanism of spec §4.6.
	FlagTimedOut MessageFlags = 1 << 31
)

// MessageType distinguishes ordinary sends from queue-internal replies.
type MessageType int

const (
	MessageTypeNormal MessageType = iota
	MessageTypeResponse
)

// Permissions is the shared-memory permission bitmask.
type Permissions uint32

const (
	PermRead Permissions = 1 << iota
	PermWrite
	PermExec
)

// SegmentFlags control shared-memory creation and mapping behavior.
type SegmentFlags uint32

const (
	SegCreate SegmentFlags = 1 << iota
	SegExcl
	SegResize
	SegCOW
	SegPersist
	SegLocked
)

// QueueLookupMode selects which of a task's registered queues to return.
type QueueLookupMode int

const (
	LookupSend QueueLookupMode = iota
	LookupReceive
	LookupAny
)
