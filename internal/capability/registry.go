// Package capability implements the worker's resource registry: it
// enumerates every resource exposed by the worker's transport drivers,
// applies the transport-list environment filter, and assigns each
// surviving resource a dense ResourceIndex over [0, num_tls).
package capability

import (
	"strings"

	"github.com/coriolis-systems/workercore/api"
)

// Registry holds the immutable, dense resource list a worker was created
// with.
type Registry struct {
	resources []api.ResourceDescriptor
	drivers   []api.TransportDriver
}

// Build enumerates resources across drivers, keeps only those whose
// transport name passes allow (nil/empty allow-list keeps everything), and
// reassigns dense indices in enumeration order.
func Build(drivers []api.TransportDriver, allow []string) *Registry {
	allowSet := toSet(allow)
	r := &Registry{drivers: drivers}
	idx := api.ResourceIndex(0)
	for _, drv := range drivers {
		for _, desc := range drv.Resources() {
			if len(allowSet) > 0 && !allowSet[desc.TransportName] {
				continue
			}
			desc.Index = idx
			r.resources = append(r.resources, desc)
			idx++
		}
	}
	return r
}

// NumTLS returns the dense resource count.
func (r *Registry) NumTLS() int { return len(r.resources) }

// Descriptor returns the resource descriptor at idx.
func (r *Registry) Descriptor(idx api.ResourceIndex) api.ResourceDescriptor {
	return r.resources[idx]
}

// Descriptors returns every resource descriptor, in index order.
func (r *Registry) Descriptors() []api.ResourceDescriptor {
	out := make([]api.ResourceDescriptor, len(r.resources))
	copy(out, r.resources)
	return out
}

// DriverFor returns the driver that owns idx and the driver-local resource
// index needed to open it, found by matching the resource's transport and
// device names against each driver's own resource list.
func (r *Registry) DriverFor(idx api.ResourceIndex) (api.TransportDriver, api.ResourceIndex) {
	desc := r.resources[idx]
	for _, drv := range r.drivers {
		for _, d := range drv.Resources() {
			if d.TransportName == desc.TransportName && d.DeviceName == desc.DeviceName {
				return drv, d.Index
			}
		}
	}
	return nil, 0
}

func toSet(names []string) map[string]bool {
	if len(names) == 0 {
		return nil
	}
	set := make(map[string]bool, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n != "" {
			set[n] = true
		}
	}
	return set
}
