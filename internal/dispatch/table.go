// Package dispatch implements the process-wide active-message dispatch
// table: an immutable array mapping an AM id to a handler function, a
// feature-mask gate, and an optional tracer, installed once at process
// start — realized in Go as package-level Register calls made before any
// worker is created, mirroring a link-time registration table.
package dispatch

import (
	"fmt"
	"sort"
	"sync"

	"github.com/coriolis-systems/workercore/api"
)

var (
	tableMu    sync.Mutex
	globalTbl  []api.AMHandlerRecord
	registered = map[api.AMID]bool{}
)

// Register adds rec to the process-wide dispatch table. It must be called
// before any worker is created — typically from an init() in the handler
// plug-in package — and panics if id was already registered, enforcing
// "at most one active-message handler per (worker, AM id)" at the
// strongest possible granularity: the table itself.
func Register(rec api.AMHandlerRecord) {
	tableMu.Lock()
	defer tableMu.Unlock()
	if registered[rec.ID] {
		panic(fmt.Sprintf("dispatch: AM id %d already registered", rec.ID))
	}
	registered[rec.ID] = true
	globalTbl = append(globalTbl, rec)
	sort.Slice(globalTbl, func(i, j int) bool { return globalTbl[i].ID < globalTbl[j].ID })
}

// Table returns a snapshot of the global dispatch table.
func Table() []api.AMHandlerRecord {
	tableMu.Lock()
	defer tableMu.Unlock()
	out := make([]api.AMHandlerRecord, len(globalTbl))
	copy(out, globalTbl)
	return out
}

// Lookup finds the record for id, if registered.
func Lookup(id api.AMID) (api.AMHandlerRecord, bool) {
	tableMu.Lock()
	defer tableMu.Unlock()
	for _, r := range globalTbl {
		if r.ID == id {
			return r, true
		}
	}
	return api.AMHandlerRecord{}, false
}

// resetForTest clears the table; used only by package tests to keep
// Register idempotent across test cases.
func resetForTest() {
	tableMu.Lock()
	defer tableMu.Unlock()
	globalTbl = nil
	registered = map[api.AMID]bool{}
}
