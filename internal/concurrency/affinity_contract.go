// File: internal/concurrency/affinity_contract.go
// License: Apache-2.0
//
// Adapts the package-level affinity functions to api.Affinity for callers
// that want an instance they can pass around rather than free functions.

package concurrency

import (
	"fmt"

	"github.com/coriolis-systems/workercore/api"
)

// DefaultAffinity implements api.Affinity over this package's
// platform-specific pin/unpin functions.
type DefaultAffinity struct {
	pinnedCPU  int
	pinnedNUMA int
	pinned     bool
}

// NewDefaultAffinity returns an unpinned Affinity handle.
func NewDefaultAffinity() *DefaultAffinity {
	return &DefaultAffinity{pinnedCPU: -1, pinnedNUMA: -1}
}

func (a *DefaultAffinity) Pin(cpuID int, numaID int) error {
	if cpuID < 0 || cpuID >= NumCPUs() {
		return fmt.Errorf("concurrency: cpu %d out of range [0,%d)", cpuID, NumCPUs())
	}
	PinCurrentThread(numaID, cpuID)
	a.pinnedCPU, a.pinnedNUMA, a.pinned = cpuID, numaID, true
	return nil
}

func (a *DefaultAffinity) Unpin() error {
	if !a.pinned {
		return nil
	}
	UnpinCurrentThread()
	a.pinned = false
	return nil
}

func (a *DefaultAffinity) Get() (cpuID int, numaID int, err error) {
	if !a.pinned {
		return -1, CurrentNUMANodeID(), nil
	}
	return a.pinnedCPU, a.pinnedNUMA, nil
}

var _ api.Affinity = (*DefaultAffinity)(nil)
