// Package pool provides the allocation-recycling primitives the worker's
// hot paths use to avoid per-message heap churn: objpool.go's generic
// SyncPool[T] for fixed-shape struct recycling (descriptors), and
// bufferpool.go's size-classed BufferPool for variable-length []byte
// recycling (headroom/payload copies).
package pool
