// File: api/control.go
// Package api defines the Control interface.
//
// Worker configuration is immutable once created — the interface count and
// topology are fixed for the worker's lifetime — so Control exposes
// read-only introspection only, no SetConfig/OnReload mutation surface.

package api

// Control exposes read-only configuration and runtime metrics.
type Control interface {
	GetConfig() map[string]any
	Stats() map[string]any
	RegisterDebugProbe(name string, fn func() any)
}
