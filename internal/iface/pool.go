// Package iface implements the worker's interface pool: it opens one
// Interface per selected resource, caches each interface's capability
// record and optional wakeup handle, and owns teardown ordering. Teardown
// runs in reverse of open order; closing an interface implicitly tears
// down its wakeup handle, so no separate wakeup teardown step is needed
// here.
package iface

import (
	"fmt"

	"github.com/coriolis-systems/workercore/api"
	"github.com/coriolis-systems/workercore/internal/capability"
)

// Pool owns every interface a worker holds, dense over [0, num_tls).
type Pool struct {
	ifaces  []api.Interface
	caps    []api.CapabilityRecord
	wakeups []api.WakeupHandle
	opened  []api.ResourceIndex // open order, for reverse teardown
}

// Open opens every resource in reg, in index order, rolling back already
// opened interfaces if any open fails.
func Open(reg *capability.Registry, cpuMask api.CPUMask) (*Pool, error) {
	n := reg.NumTLS()
	p := &Pool{
		ifaces:  make([]api.Interface, n),
		caps:    make([]api.CapabilityRecord, n),
		wakeups: make([]api.WakeupHandle, n),
	}
	for i := 0; i < n; i++ {
		idx := api.ResourceIndex(i)
		drv, driverIdx := reg.DriverFor(idx)
		if drv == nil {
			p.Close()
			return nil, fmt.Errorf("iface: no driver for resource %d", idx)
		}
		ifc, err := drv.OpenInterface(driverIdx, cpuMask)
		if err != nil {
			p.Close()
			return nil, fmt.Errorf("iface: open resource %d: %w", idx, err)
		}
		p.ifaces[idx] = ifc
		p.caps[idx] = ifc.Capability()
		p.opened = append(p.opened, idx)

		if p.caps[idx].Features.Has(api.FeatureWakeup) {
			if wh, err := ifc.OpenWakeup(); err == nil {
				p.wakeups[idx] = wh
			}
		}
	}
	return p, nil
}

// Close tears down every opened interface in reverse open order. Best
// effort: no failure aborts the remaining teardown.
func (p *Pool) Close() {
	for i := len(p.opened) - 1; i >= 0; i-- {
		idx := p.opened[i]
		if ifc := p.ifaces[idx]; ifc != nil {
			_ = ifc.Close()
			p.ifaces[idx] = nil
		}
		p.wakeups[idx] = nil
	}
	p.opened = nil
}

// NumTLS returns the dense interface count.
func (p *Pool) NumTLS() int { return len(p.ifaces) }

// Interface returns the interface bound to idx.
func (p *Pool) Interface(idx api.ResourceIndex) api.Interface { return p.ifaces[idx] }

// Capability returns the cached capability record for idx.
func (p *Pool) Capability(idx api.ResourceIndex) api.CapabilityRecord { return p.caps[idx] }

// Wakeup returns idx's wakeup handle, or nil if the interface lacks
// FeatureWakeup. The per-interface wakeup array has length exactly
// num_tls; each slot is non-nil iff the capability record advertises
// wakeup support.
func (p *Pool) Wakeup(idx api.ResourceIndex) api.WakeupHandle { return p.wakeups[idx] }

// All returns every opened interface, in index order.
func (p *Pool) All() []api.Interface {
	out := make([]api.Interface, len(p.ifaces))
	copy(out, p.ifaces)
	return out
}
