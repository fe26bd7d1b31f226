// Package stats implements the IPC core's process-wide statistics (C3):
// counters for object lifecycle, per-type operations, waits, and errors,
// exposed as a point-in-time Snapshot. Grounded on the teacher's
// metrics.go atomic-counter/Snapshot/Observer shape.
package stats

import (
	"sync/atomic"
	"time"
)

// Statistics holds the live atomic counters. One Statistics per Core.
type Statistics struct {
	ObjectsCreated   atomic.Uint64
	ObjectsDestroyed atomic.Uint64

	// Per-type live/operation counts, indexed by registry.ObjectType.
	liveByType [7]atomic.Int64
	opsByType  [7]atomic.Uint64

	TotalWaitTimeNs atomic.Uint64
	ActiveWaiters   atomic.Int64
	Timeouts        atomic.Uint64

	AllocationFailures atomic.Uint64
	PermissionFailures atomic.Uint64
	TimeoutFailures    atomic.Uint64
}

// New creates a zeroed statistics block.
func New() *Statistics {
	return &Statistics{}
}

// RecordCreate bumps the creation and live counters for typ.
func (s *Statistics) RecordCreate(typ int) {
	s.ObjectsCreated.Add(1)
	s.liveByType[typ].Add(1)
}

// RecordDestroy bumps the destruction counter and drops the live count for typ.
func (s *Statistics) RecordDestroy(typ int) {
	s.ObjectsDestroyed.Add(1)
	s.liveByType[typ].Add(-1)
}

// RecordOp bumps the per-type operation counter.
func (s *Statistics) RecordOp(typ int) {
	s.opsByType[typ].Add(1)
}

// RecordWait accounts one completed wait of the given duration.
func (s *Statistics) RecordWait(d time.Duration) {
	s.TotalWaitTimeNs.Add(uint64(d.Nanoseconds()))
}

// WaiterBlocked/WaiterUnblocked track the live suspended-task count.
func (s *Statistics) WaiterBlocked()   { s.ActiveWaiters.Add(1) }
func (s *Statistics) WaiterUnblocked() { s.ActiveWaiters.Add(-1) }

// RecordTimeout bumps both the general and the failure-specific timeout counters.
func (s *Statistics) RecordTimeout() {
	s.Timeouts.Add(1)
	s.TimeoutFailures.Add(1)
}

func (s *Statistics) RecordAllocationFailure() { s.AllocationFailures.Add(1) }
func (s *Statistics) RecordPermissionFailure() { s.PermissionFailures.Add(1) }

// BumpFailure bumps the failure counter matching an ErrorCode, mirroring
// the teacher's centralizing mapErrnoToCode instead of scattering the
// increment across every call site (spec §7: "bumped on each
// corresponding error").
func (s *Statistics) BumpFailure(code string) {
	switch code {
	case "no resources":
		s.RecordAllocationFailure()
	case "permission denied":
		s.RecordPermissionFailure()
	case "timeout":
		s.RecordTimeout()
	}
}

// Snapshot is a point-in-time copy of Statistics, safe to hand to callers.
type Snapshot struct {
	ObjectsCreated   uint64
	ObjectsDestroyed uint64
	LiveByType       [7]int64
	OpsByType        [7]uint64
	TotalWaitTimeNs  uint64
	ActiveWaiters    int64
	Timeouts         uint64

	AllocationFailures uint64
	PermissionFailures uint64
	TimeoutFailures    uint64
}

// Snapshot takes a consistent-enough point-in-time reading of every counter.
func (s *Statistics) Snapshot() Snapshot {
	var snap Snapshot
	snap.ObjectsCreated = s.ObjectsCreated.Load()
	snap.ObjectsDestroyed = s.ObjectsDestroyed.Load()
	for i := range s.liveByType {
		snap.LiveByType[i] = s.liveByType[i].Load()
		snap.OpsByType[i] = s.opsByType[i].Load()
	}
	snap.TotalWaitTimeNs = s.TotalWaitTimeNs.Load()
	snap.ActiveWaiters = s.ActiveWaiters.Load()
	snap.Timeouts = s.Timeouts.Load()
	snap.AllocationFailures = s.AllocationFailures.Load()
	snap.PermissionFailures = s.PermissionFailures.Load()
	snap.TimeoutFailures = s.TimeoutFailures.Load()
	return snap
}

// Observer allows pluggable push-based reporting of statistics events,
// mirroring the teacher's Observer/NoOpObserver pattern.
type Observer interface {
	ObserveCreate(typ int)
	ObserveDestroy(typ int)
	ObserveOp(typ int)
	ObserveWait(d time.Duration)
	ObserveTimeout()
}

// NoOpObserver discards every event.
type NoOpObserver struct{}

func (NoOpObserver) ObserveCreate(int)         {}
func (NoOpObserver) ObserveDestroy(int)        {}
func (NoOpObserver) ObserveOp(int)             {}
func (NoOpObserver) ObserveWait(time.Duration) {}
func (NoOpObserver) ObserveTimeout()           {}

// StatisticsObserver implements Observer by recording into a Statistics.
type StatisticsObserver struct {
	Stats *Statistics
}

func (o *StatisticsObserver) ObserveCreate(typ int)       { o.Stats.RecordCreate(typ) }
func (o *StatisticsObserver) ObserveDestroy(typ int)      { o.Stats.RecordDestroy(typ) }
func (o *StatisticsObserver) ObserveOp(typ int)           { o.Stats.RecordOp(typ) }
func (o *StatisticsObserver) ObserveWait(d time.Duration) { o.Stats.RecordWait(d) }
func (o *StatisticsObserver) ObserveTimeout()             { o.Stats.RecordTimeout() }

var (
	_ Observer = NoOpObserver{}
	_ Observer = (*StatisticsObserver)(nil)
)
