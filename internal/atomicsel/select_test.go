package atomicsel_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coriolis-systems/workercore/api"
	"github.com/coriolis-systems/workercore/fake"
	"github.com/coriolis-systems/workercore/internal/capability"
	"github.com/coriolis-systems/workercore/internal/atomicsel"
	"github.com/coriolis-systems/workercore/internal/iface"
	"github.com/coriolis-systems/workercore/logging"
)

func openPool(t *testing.T, specs ...fake.ResourceSpec) *iface.Pool {
	t.Helper()
	drv := fake.NewDriver(specs...)
	reg := capability.Build([]api.TransportDriver{drv}, nil)
	pool, err := iface.Open(reg, nil)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return pool
}

func TestSelectReturnsZeroWhenNoAtomicsRequested(t *testing.T) {
	pool := openPool(t, fake.ResourceSpec{TransportName: "loop", Features: api.FeatureAtomicCPU})
	mask := atomicsel.Select(api.AtomicModeGuess, pool, api.FeatureAMShort, logging.Nop())
	assert.Equal(t, uint64(0), mask)
}

func TestSelectCPUEnablesEveryCPUCapableResource(t *testing.T) {
	pool := openPool(t,
		fake.ResourceSpec{TransportName: "loop", DeviceName: "a", Features: api.FeatureAtomicCPU | api.FeatureAtomicAdd64},
		fake.ResourceSpec{TransportName: "loop", DeviceName: "b", Features: api.FeatureAtomicAdd64}, // no CPU flag
	)
	mask := atomicsel.Select(api.AtomicModeCPU, pool, api.FeatureAtomicAdd64, logging.Nop())
	assert.Equal(t, uint64(1), mask, "only resource 0 advertises FeatureAtomicCPU")
}

func TestSelectDevicePicksHighestScoringDomain(t *testing.T) {
	pool := openPool(t,
		fake.ResourceSpec{
			TransportName: "loop", DeviceName: "slow", MemoryDomain: 0, Priority: 1,
			Bandwidth: 1e6, Overhead: 1000,
			Features: api.FeatureAtomicDevice | api.FeatureAtomicAdd64,
		},
		fake.ResourceSpec{
			TransportName: "loop", DeviceName: "fast", MemoryDomain: 1, Priority: 1,
			Bandwidth: 1e9, Overhead: 10,
			Features: api.FeatureAtomicDevice | api.FeatureAtomicAdd64,
		},
	)
	mask := atomicsel.Select(api.AtomicModeDevice, pool, api.FeatureAtomicAdd64, logging.Nop())
	assert.Equal(t, uint64(1<<1), mask, "resource 1 (fast/high-bandwidth) should win")
}

func TestSelectGuessFallsBackToCPUWhenNoDeviceCapable(t *testing.T) {
	pool := openPool(t, fake.ResourceSpec{TransportName: "loop", Features: api.FeatureAtomicCPU | api.FeatureAtomicAdd64})
	mask := atomicsel.Select(api.AtomicModeGuess, pool, api.FeatureAtomicAdd64, logging.Nop())
	assert.Equal(t, uint64(1), mask)
}
