// Package asyncctx implements the worker's async progress context: a
// dedicated goroutine that repeatedly drives progress outside of any
// caller's explicit progress() call, pinned to the worker's CPU mask the
// same way the concurrency package pins executor workers.
package asyncctx

import (
	"sync"
	"time"

	"github.com/coriolis-systems/workercore/api"
	"github.com/coriolis-systems/workercore/internal/concurrency"
)

// ProgressFunc drives one unit of progress and reports whether it did any
// work, so the loop can back off when idle instead of spinning.
type ProgressFunc func() bool

// idleBackoff bounds how long the loop sleeps after a run of empty
// progress calls, trading a little latency for not pegging a core.
const idleBackoff = time.Millisecond

// Context runs ProgressFunc on a dedicated goroutine until stopped.
type Context struct {
	fn      ProgressFunc
	cpuMask api.CPUMask
	stop    chan struct{}
	done    chan struct{}
	once    sync.Once
}

// Start launches the async progress goroutine. fn is called repeatedly
// until Stop; when mask is non-empty the goroutine locks its OS thread and
// pins to the mask's first CPU, mirroring how executor workers pin to a
// NUMA node and core.
func Start(fn ProgressFunc, mask api.CPUMask) *Context {
	c := &Context{
		fn:      fn,
		cpuMask: mask,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go c.run()
	return c
}

func (c *Context) run() {
	defer close(c.done)
	if !c.cpuMask.Empty() {
		concurrency.PinCurrentThread(concurrency.CurrentNUMANodeID(), c.cpuMask[0])
		defer concurrency.UnpinCurrentThread()
	}
	idle := 0
	for {
		select {
		case <-c.stop:
			return
		default:
		}
		if c.fn() {
			idle = 0
			continue
		}
		idle++
		select {
		case <-c.stop:
			return
		case <-time.After(backoffFor(idle)):
		}
	}
}

// backoffFor grows the idle sleep up to idleBackoff, so the first few
// empty polls stay latency-sensitive and only sustained idleness sleeps
// the full interval.
func backoffFor(idle int) time.Duration {
	d := time.Duration(idle) * (idleBackoff / 8)
	if d > idleBackoff {
		return idleBackoff
	}
	return d
}

// Stop signals the goroutine to exit and blocks until it has.
func (c *Context) Stop() {
	c.once.Do(func() { close(c.stop) })
	<-c.done
}
