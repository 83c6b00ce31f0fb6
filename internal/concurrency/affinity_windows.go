//go:build windows

// File: internal/concurrency/affinity_windows.go
//
// Windows CPU affinity via SetThreadAffinityMask. NUMA-awareness is not
// implemented here; platformCurrentNUMANodeID/platformNUMANodes report
// "no NUMA information" rather than querying the real topology.

package concurrency

import (
	"runtime"

	"golang.org/x/sys/windows"
)

var (
	modkernel32               = windows.NewLazySystemDLL("kernel32.dll")
	procSetThreadAffinityMask = modkernel32.NewProc("SetThreadAffinityMask")
	procGetCurrentThread      = modkernel32.NewProc("GetCurrentThread")
)

// platformPreferredCPUID spreads NUMA node indices across available CPUs,
// since the real topology is unknown on this platform.
func platformPreferredCPUID(numaNode int) int {
	total := runtime.NumCPU()
	if total <= 0 || numaNode < 0 {
		return 0
	}
	return numaNode % total
}

func platformCurrentNUMANodeID() int { return -1 }

func platformNUMANodes() int { return 1 }

// PinCurrentThread locks the calling goroutine to its OS thread and sets
// that thread's affinity mask to cpuID. numaNode is ignored. cpuID < 0
// leaves the thread's affinity untouched.
func PinCurrentThread(numaNode, cpuID int) {
	runtime.LockOSThread()
	if cpuID < 0 {
		return
	}
	handle, _, _ := procGetCurrentThread.Call()
	mask := uintptr(1) << uint(cpuID)
	procSetThreadAffinityMask.Call(handle, mask)
}

func platformUnpinCurrentThread() {
	handle, _, _ := procGetCurrentThread.Call()
	total := runtime.NumCPU()
	if total <= 0 {
		total = 1
	}
	mask := (uintptr(1) << uint(total)) - 1
	procSetThreadAffinityMask.Call(handle, mask)
}
