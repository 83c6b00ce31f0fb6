//go:build linux && cgo

// File: internal/concurrency/affinity_linux.go
//
// Linux NUMA/CPU topology queries and thread pinning, backed by libnuma and
// pthread_setaffinity_np via cgo.

package concurrency

// #cgo LDFLAGS: -lnuma
// #define _GNU_SOURCE
// #include <numa.h>
// #include <sched.h>
// #include <pthread.h>
// #include <string.h>
//
// int check_numa_avail() {
//     return numa_available();
// }
import "C"

import (
	"runtime"
	"sync"
)

var (
	numaAvailOnce sync.Once
	numaAvailable bool
)

func isNumaAvailable() bool {
	numaAvailOnce.Do(func() {
		numaAvailable = C.check_numa_avail() != -1
	})
	return numaAvailable
}

// platformPreferredCPUID returns a suggested CPU core index for the given
// NUMA node. Node-level binding via PinCurrentThread is the main
// requirement here, so this always defers to the scheduler within the node.
func platformPreferredCPUID(numaNode int) int {
	return 0
}

func platformCurrentNUMANodeID() int {
	if !isNumaAvailable() {
		return 0
	}
	cpu := C.sched_getcpu()
	if cpu < 0 {
		return -1
	}
	return int(C.numa_node_of_cpu(cpu))
}

func platformNUMANodes() int {
	if !isNumaAvailable() {
		return 1
	}
	return int(C.numa_num_configured_nodes())
}

// PinCurrentThread locks the calling goroutine to its OS thread, binds that
// thread to cpuID via pthread_setaffinity_np, and (when numaNode >= 0) binds
// it to the NUMA node via numa_run_on_node.
func PinCurrentThread(numaNode, cpuID int) {
	runtime.LockOSThread()
	if cpuID >= 0 {
		var mask C.cpu_set_t
		C.CPU_ZERO(&mask)
		C.CPU_SET(C.int(cpuID), &mask)
		C.pthread_setaffinity_np(C.pthread_self(), C.size_t(C.sizeof_cpu_set_t), &mask)
	}
	if numaNode >= 0 && isNumaAvailable() {
		C.numa_run_on_node(C.int(numaNode))
	}
}

func platformUnpinCurrentThread() {
	runtime.UnlockOSThread()
	if isNumaAvailable() {
		C.numa_run_on_node(-1)
	}
}
