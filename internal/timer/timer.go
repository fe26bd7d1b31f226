// Package timer implements the periodic tick collaborator that drives
// scan_timeouts across the IPC core's subsystems (spec §6).
package timer

import (
	"sync"
	"time"
)

// Ticker fires fn every interval until Stop is called. Backed by
// time.Ticker, the same way the teacher drives its polling loops
// (internal/queue/runner.go's processRequests loop) off a stdlib ticker
// rather than a hand-rolled sleep-and-check loop.
type Ticker struct {
	t      *time.Ticker
	stop   chan struct{}
	once   sync.Once
	doneWg sync.WaitGroup
}

// Start creates and starts a ticker that invokes fn(time.Now()) on every
// tick, on its own goroutine, until Stop is called.
func Start(interval time.Duration, fn func(time.Time)) *Ticker {
	tk := &Ticker{
		t:    time.NewTicker(interval),
		stop: make(chan struct{}),
	}
	tk.doneWg.Add(1)
	go func() {
		defer tk.doneWg.Done()
		for {
			select {
			case now := <-tk.t.C:
				fn(now)
			case <-tk.stop:
				return
			}
		}
	}()
	return tk
}

// Stop halts the ticker and waits for its goroutine to exit.
func (tk *Ticker) Stop() {
	tk.once.Do(func() {
		tk.t.Stop()
		close(tk.stop)
	})
	tk.doneWg.Wait()
}
