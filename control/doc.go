// Package control
//
// Runtime metrics and debug introspection layer for the worker runtime.
//
// Provides concurrent-safe state handling primitives including:
//   - Metrics telemetry snapshots
//   - State export, debug hooks, and probe registration
package control
