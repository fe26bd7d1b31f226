package ipccore

import "github.com/edgex/ipccore/internal/registry"

// cleanupTaskHolder is satisfied by every primitive's package-private
// per-task teardown hook. Kept unexported since it's wiring, not API.
type cleanupTaskHolder interface {
	cleanupTask(task TaskID)
}

// CleanupTask runs every subsystem's per-task teardown in the fixed
// order mandated by spec §4.9: mutexes, then semaphores, then events
// and event sets, then message queues, then shared memory. Registered
// with the scheduler at Core construction time so task termination
// always drives this sweep.
func (c *Core) CleanupTask(task TaskID) {
	order := []registry.ObjectType{
		registry.TypeMutex,
		registry.TypeSemaphore,
		registry.TypeEvent,
		registry.TypeEventSet,
		registry.TypeMessageQueue,
		registry.TypeSharedSegment,
	}

	live := c.registry.LiveObjects()
	byType := make(map[registry.ObjectType][]registry.Object, len(order))
	for _, obj := range live {
		t := obj.Header().Type
		byType[t] = append(byType[t], obj)
	}

	for _, t := range order {
		for _, obj := range byType[t] {
			if holder, ok := obj.(cleanupTaskHolder); ok {
				holder.cleanupTask(task)
			}
		}
	}

	c.qreg.Cleanup(task)
}
