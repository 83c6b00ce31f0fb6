package cmd

import (
	"encoding/binary"
	"fmt"

	"github.com/coriolis-systems/workercore/api"
	"github.com/coriolis-systems/workercore/config"
	"github.com/coriolis-systems/workercore/fake"
	_ "github.com/coriolis-systems/workercore/internal/amhandlers"
	"github.com/coriolis-systems/workercore/internal/concurrency"
	"github.com/coriolis-systems/workercore/worker"
)

// receiverSpecs is the resource topology every selftest and info fixture
// builds its worker over: one bcopy/sync-callback/wakeup and device-atomic
// capable resource, and one CPU-atomic resource for the atomic-selection
// scenarios.
func receiverSpecs() []fake.ResourceSpec {
	return []fake.ResourceSpec{
		{
			TransportName: "loop",
			DeviceName:    "mlx0",
			MemoryDomain:  0,
			Priority:      10,
			Bandwidth:     4e9,
			Overhead:      500,
			Features: api.FeatureAMShort | api.FeatureAMBcopy | api.FeatureAMSyncCallback |
				api.FeatureWakeup | api.FeatureAtomicDevice |
				api.FeatureAtomicAdd64 | api.FeatureAtomicCswap64,
			AM:          fake.DefaultAMLimits,
			MaxAMHeader: 64,
		},
		{
			TransportName: "loop",
			DeviceName:    "cpu0",
			MemoryDomain:  -1,
			Priority:      5,
			Bandwidth:     1e9,
			Overhead:      50,
			Features:      api.FeatureAMShort | api.FeatureAtomicCPU | api.FeatureAtomicAdd64,
			AM:            fake.DefaultAMLimits,
			MaxAMHeader:   64,
		},
	}
}

// buildWorker creates a worker over a fresh fake driver instance with the
// standard selftest/info resource topology.
func buildWorker() (*worker.Worker, error) {
	cfg := config.FromEnvironment(config.DefaultConfig())
	cfg.Params.RequestedFeatures = api.FeatureAMShort | api.FeatureAMBcopy |
		api.FeatureAMSyncCallback | api.FeatureWakeup |
		api.FeatureAtomicAdd64 | api.FeatureAtomicCswap64
	if cfg.Params.CPUMask.Empty() {
		cfg.Params.CPUMask = api.CPUMask{concurrency.PreferredCPUID(concurrency.CurrentNUMANodeID())}
	}
	drv := fake.NewDriver(receiverSpecs()...)
	return worker.Create(cfg, []api.TransportDriver{drv}, log)
}

// resourceAddress extracts resource idx's raw driver address out of a
// Worker.GetAddress blob, which prefixes each resource's address with a
// 4-byte index and a 4-byte length.
func resourceAddress(blob []byte, idx int) ([]byte, error) {
	for len(blob) > 0 {
		if len(blob) < 8 {
			return nil, fmt.Errorf("workerctl: truncated address blob")
		}
		resIdx := binary.BigEndian.Uint32(blob[0:4])
		n := binary.BigEndian.Uint32(blob[4:8])
		blob = blob[8:]
		if len(blob) < int(n) {
			return nil, fmt.Errorf("workerctl: truncated address entry")
		}
		addr := blob[:n]
		if int(resIdx) == idx {
			return addr, nil
		}
		blob = blob[n:]
	}
	return nil, fmt.Errorf("workerctl: no address for resource %d", idx)
}
