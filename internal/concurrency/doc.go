// File: internal/concurrency/doc.go
// License: Apache-2.0
//
// High-performance concurrency primitives for workercore with NUMA-aware,
// lock-free, and cross-platform support. Includes CPU/NUMA pinning, an
// event loop, a task executor, a thread pool and a lock-free ring buffer.
//
// CPU/NUMA pinning has Linux (cgo, libnuma) and Windows implementations
// selected by build tags, with a no-op fallback elsewhere.
package concurrency
