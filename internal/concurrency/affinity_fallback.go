//go:build !windows && (!linux || !cgo)

// File: internal/concurrency/affinity_fallback.go
//
// No-op affinity/pinning for builds with no platform-specific topology
// query available: Linux without cgo, and every non-Linux, non-Windows
// target. PinCurrentThread still locks the calling goroutine to its OS
// thread, matching the contract callers rely on even though no actual
// affinity mask is set.

package concurrency

import "runtime"

func platformPreferredCPUID(numaNode int) int { return 0 }

func platformCurrentNUMANodeID() int { return -1 }

func platformNUMANodes() int { return 1 }

func PinCurrentThread(numaNode, cpuID int) {
	runtime.LockOSThread()
}

func platformUnpinCurrentThread() {
	runtime.UnlockOSThread()
}
