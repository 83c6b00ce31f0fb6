// Package atomicsel implements atomic-operation resource placement: given
// a worker's requested atomic feature set and its opened interfaces, decide
// which resources carry atomic traffic under cpu, device, or guess mode.
package atomicsel

import (
	"github.com/coriolis-systems/workercore/api"
	"github.com/coriolis-systems/workercore/internal/iface"
	"github.com/coriolis-systems/workercore/logging"
)

// Select returns a bitmask over resource indices (bit i set means resource
// i carries atomic traffic) for the requested mode. A zero result means no
// atomic features were requested, or no candidate could satisfy them.
func Select(mode api.AtomicMode, pool *iface.Pool, requested api.FeatureFlag, log logging.Logger) uint64 {
	if log == nil {
		log = logging.Nop()
	}
	want := api.AtomicRequestSet(requested)
	if want == 0 {
		return 0
	}
	switch mode {
	case api.AtomicModeCPU:
		return selectCPU(pool)
	case api.AtomicModeDevice:
		return selectDevice(pool, want, log)
	default:
		if anyDeviceCapable(pool, want) {
			return selectDevice(pool, want, log)
		}
		return selectCPU(pool)
	}
}

func anyDeviceCapable(pool *iface.Pool, want api.FeatureFlag) bool {
	for i := 0; i < pool.NumTLS(); i++ {
		cap := pool.Capability(api.ResourceIndex(i))
		if cap.Features.Has(api.FeatureAtomicDevice) && cap.SupportsAtomics(want) {
			return true
		}
	}
	return false
}

// selectCPU enables atomics on every interface whose capability record
// advertises host-side atomic support; the host CPU itself performs the
// operation so every qualifying interface can be used independently.
func selectCPU(pool *iface.Pool) uint64 {
	var mask uint64
	for i := 0; i < pool.NumTLS(); i++ {
		if pool.Capability(api.ResourceIndex(i)).Features.Has(api.FeatureAtomicCPU) {
			mask |= 1 << uint(i)
		}
	}
	return mask
}

// selectDevice picks the single best device-capable resource by bandwidth
// and overhead, then enables atomics on every resource sharing its memory
// domain and device name, since those share the same physical atomic unit.
func selectDevice(pool *iface.Pool, want api.FeatureFlag, log logging.Logger) uint64 {
	n := pool.NumTLS()
	type candidate struct {
		idx api.ResourceIndex
		rec api.CapabilityRecord
	}
	var candidates []candidate
	for i := 0; i < n; i++ {
		idx := api.ResourceIndex(i)
		rec := pool.Capability(idx)
		if !rec.Features.Has(api.FeatureAtomicDevice) {
			continue
		}
		if rec.MemoryDomain < 0 {
			continue
		}
		if !rec.SupportsAtomics(want) {
			continue
		}
		candidates = append(candidates, candidate{idx, rec})
	}
	if len(candidates) == 0 {
		log.Debug("atomic selection found no device-capable candidate", logging.F("requested", uint64(want)))
		return 0
	}

	ideal := api.VirtualIdeal(want)
	best := candidates[0]
	bestScore := api.Score(best.rec, ideal)
	for _, c := range candidates[1:] {
		s := api.Score(c.rec, ideal)
		if s > bestScore || (s == bestScore && c.rec.Priority > best.rec.Priority) {
			best, bestScore = c, s
		}
	}

	var mask uint64
	for i := 0; i < n; i++ {
		idx := api.ResourceIndex(i)
		rec := pool.Capability(idx)
		if rec.MemoryDomain == best.rec.MemoryDomain && rec.DeviceName == best.rec.DeviceName {
			mask |= 1 << uint(i)
		}
	}
	return mask
}
