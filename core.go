// Package ipccore implements the IPC core of a small microkernel for
// edge devices: mutexes, counting semaphores, events and event sets,
// priority message queues, and named shared-memory segments, all built
// on a uniform object header/registry, a wait-queue discipline, and
// process-wide statistics.
package ipccore

import (
	"context"
	"sync"
	"time"

	"github.com/edgex/ipccore/internal/logging"
	"github.com/edgex/ipccore/internal/memalloc"
	"github.com/edgex/ipccore/internal/qreg"
	"github.com/edgex/ipccore/internal/registry"
	"github.com/edgex/ipccore/internal/scheduler"
	"github.com/edgex/ipccore/internal/stats"
	"github.com/edgex/ipccore/internal/timer"
	"github.com/edgex/ipccore/internal/vm"
	"github.com/edgex/ipccore/internal/waitqueue"
)

// TaskID identifies a scheduler task; 0 means "no task".
type TaskID = uint64

// Handle is a generation-checked reference to a registered object.
type Handle = registry.Handle

// Options configures a Core, mirroring the teacher's
// DeviceParams/DefaultParams/Options triad.
type Options struct {
	MaxMutexes        int
	MaxSemaphores     int
	MaxEvents         int
	MaxEventSets      int
	MaxMessageQueues  int
	MaxSharedSegments int
	RegistryCapacity  int

	Scheduler scheduler.Scheduler
	Allocator memalloc.Allocator
	VM        vm.VM
	Logger    *logging.Logger
	Observer  stats.Observer

	PageSize int
}

// DefaultOptions returns the default pool capacities and page size, the
// way DefaultParams defaults queue depth and block size in the teacher.
// Its collaborator fields are left nil; NewCore fills them with the
// production implementations.
func DefaultOptions() Options {
	return Options{
		MaxMutexes:        DefaultMaxMutexes,
		MaxSemaphores:     DefaultMaxSemaphores,
		MaxEvents:         DefaultMaxEvents,
		MaxEventSets:      DefaultMaxEventSets,
		MaxMessageQueues:  DefaultMaxMessageQueues,
		MaxSharedSegments: DefaultMaxSharedSegments,
		RegistryCapacity:  DefaultRegistryCapacity,
		PageSize:          PageSize,
	}
}

// Core threads every subsystem's shared state through the public API
// instead of relying on global singletons, per the spec's design notes
// ("avoid global singletons where possible by threading a core context
// through the public API").
type Core struct {
	opts Options

	registry *registry.Registry
	stats    *stats.Statistics
	qreg     *qreg.Registry

	scheduler scheduler.Scheduler
	allocator memalloc.Allocator
	vm        vm.VM
	log       *logging.Logger
	observer  stats.Observer

	ticker *timer.Ticker

	scannersMu sync.Mutex
	// scanners tracks every subsystem's wait-queue sweep so ScanTimeouts
	// can drive them all from one periodic tick.
	scanners []func(time.Time)
}

// NewCore builds a Core from opts, defaulting any unset collaborator or
// capacity the way DefaultParams does in the teacher.
func NewCore(opts Options) *Core {
	def := DefaultOptions()
	if opts.MaxMutexes == 0 {
		opts.MaxMutexes = def.MaxMutexes
	}
	if opts.MaxSemaphores == 0 {
		opts.MaxSemaphores = def.MaxSemaphores
	}
	if opts.MaxEvents == 0 {
		opts.MaxEvents = def.MaxEvents
	}
	if opts.MaxEventSets == 0 {
		opts.MaxEventSets = def.MaxEventSets
	}
	if opts.MaxMessageQueues == 0 {
		opts.MaxMessageQueues = def.MaxMessageQueues
	}
	if opts.MaxSharedSegments == 0 {
		opts.MaxSharedSegments = def.MaxSharedSegments
	}
	if opts.RegistryCapacity == 0 {
		opts.RegistryCapacity = def.RegistryCapacity
	}
	if opts.PageSize == 0 {
		opts.PageSize = def.PageSize
	}
	if opts.Scheduler == nil {
		opts.Scheduler = scheduler.NewRuntime()
	}
	if opts.Allocator == nil {
		opts.Allocator = memalloc.New(opts.PageSize)
	}
	if opts.VM == nil {
		opts.VM = vm.NewMmapVM(0x7f0000000000)
	}
	if opts.Logger == nil {
		opts.Logger = logging.Default()
	}

	st := stats.New()
	if opts.Observer == nil {
		opts.Observer = stats.NoOpObserver{}
	}

	c := &Core{
		opts:      opts,
		registry:  registry.New(opts.RegistryCapacity),
		stats:     st,
		qreg:      qreg.New(),
		scheduler: opts.Scheduler,
		allocator: opts.Allocator,
		vm:        opts.VM,
		log:       opts.Logger,
		observer:  opts.Observer,
	}

	opts.Scheduler.RegisterCleanup(c.CleanupTask)
	return c
}

// StartTimeoutScan starts a periodic tick driving ScanTimeouts (spec
// §5's "periodic timeout scan tick"). Callers own the returned stop
// function's lifetime.
func (c *Core) StartTimeoutScan(interval time.Duration) func() {
	c.ticker = timer.Start(interval, c.ScanTimeouts)
	return c.ticker.Stop
}

// ScanTimeouts runs every registered sweep: each message queue's
// WAIT_REPLY flag sweep. Wait queues are not scanned here; a blocked
// wait ends on its own deadline inside suspend.
func (c *Core) ScanTimeouts(now time.Time) {
	c.scannersMu.Lock()
	scanners := make([]func(time.Time), len(c.scanners))
	copy(scanners, c.scanners)
	c.scannersMu.Unlock()

	for _, scan := range scanners {
		scan(now)
	}
}

// registerScanner adds fn to the set of sweeps ScanTimeouts runs on
// every tick. NewMessageQueue registers its WAIT_REPLY flag sweep here;
// no other constructor registers one.
func (c *Core) registerScanner(fn func(time.Time)) {
	c.scannersMu.Lock()
	c.scanners = append(c.scanners, fn)
	c.scannersMu.Unlock()
}

// StatsSnapshot returns the current process-wide statistics.
func (c *Core) StatsSnapshot() stats.Snapshot {
	return c.stats.Snapshot()
}

// CheckHealth validates C1's registry invariants.
func (c *Core) CheckHealth() bool {
	return c.registry.CheckHealth()
}

// DumpAll returns every live object's header, for diagnostics.
func (c *Core) DumpAll() []registry.Header {
	return c.registry.DumpAll()
}

// suspend is the shared blocking helper every suspension point (mutex
// lock, semaphore wait, event/event-set wait, send-on-full,
// receive-on-empty) funnels through. The caller must already have
// released its object-local mutex before calling suspend — discipline
// (b) of spec §5: object-local mutex held across check + enqueue,
// released before blocking, reacquired after wake to re-verify state.
//
// timeoutMS <= 0 means infinite. On return, the caller must reacquire
// its object mutex and re-check the wait predicate; suspend only
// reports why the wait ended (woken, timed out, or the object was
// destroyed), never whether the predicate now holds.
func (c *Core) suspend(wq *waitqueue.Queue, task TaskID, timeoutMS int64, userData any) waitqueue.Outcome {
	var timeout time.Duration
	if timeoutMS > 0 {
		timeout = time.Duration(timeoutMS) * time.Millisecond
	}

	started := time.Now()
	w := wq.Add(task, timeout, userData)
	c.stats.WaiterBlocked()
	defer c.stats.WaiterUnblocked()
	defer func() {
		d := time.Since(started)
		c.stats.RecordWait(d)
		c.observer.ObserveWait(d)
	}()

	ctx := context.Background()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	if err := c.scheduler.Block(ctx, task); err != nil {
		if wq.Remove(w) {
			c.stats.BumpFailure(string(ErrCodeTimeout))
			c.observer.ObserveTimeout()
			return waitqueue.OutcomeTimeout
		}
		// Lost the race with a concurrent Wake/ScanTimeouts; the
		// outcome is already waiting for us.
		return <-w.Result
	}
	return <-w.Result
}

// wake dequeues up to n waiters from wq and unblocks their tasks via
// the scheduler, in that order so a woken goroutine never observes an
// empty Result channel.
func (c *Core) wake(wq *waitqueue.Queue, n int, outcome waitqueue.Outcome, userData any) int {
	ids := wq.Wake(n, outcome, userData)
	for _, t := range ids {
		c.scheduler.Unblock(t)
	}
	return len(ids)
}

// wakeAll wakes every currently queued waiter on wq.
func (c *Core) wakeAll(wq *waitqueue.Queue, outcome waitqueue.Outcome, userData any) int {
	return c.wake(wq, wq.Len(), outcome, userData)
}
