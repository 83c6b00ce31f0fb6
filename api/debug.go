// Package api
//
// Live debug and contract validation support for production workloads.

package api

// Debug exposes runtime introspection and health API.
type Debug interface {
    // DumpState emits a snapshot of system state for diagnostics.
    DumpState() map[string]any

    // RegisterDebugProbe dynamically registers new debug probes.
    RegisterDebugProbe(name string, fn func() any)
}
