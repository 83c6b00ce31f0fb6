package capability_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coriolis-systems/workercore/api"
	"github.com/coriolis-systems/workercore/fake"
	"github.com/coriolis-systems/workercore/internal/capability"
)

func driverPair() []api.TransportDriver {
	return []api.TransportDriver{
		fake.NewDriver(
			fake.ResourceSpec{TransportName: "rdma", DeviceName: "mlx0"},
			fake.ResourceSpec{TransportName: "rdma", DeviceName: "mlx1"},
		),
		fake.NewDriver(
			fake.ResourceSpec{TransportName: "shm", DeviceName: "shm0"},
		),
	}
}

func TestBuildAssignsDenseIndicesAcrossDrivers(t *testing.T) {
	reg := capability.Build(driverPair(), nil)
	require.Equal(t, 3, reg.NumTLS())
	for i, desc := range reg.Descriptors() {
		assert.Equal(t, api.ResourceIndex(i), desc.Index)
	}
}

func TestBuildFiltersByAllowList(t *testing.T) {
	reg := capability.Build(driverPair(), []string{"shm"})
	require.Equal(t, 1, reg.NumTLS())
	assert.Equal(t, "shm", reg.Descriptor(0).TransportName)
}

func TestBuildEmptyAllowListKeepsEverything(t *testing.T) {
	reg := capability.Build(driverPair(), nil)
	assert.Equal(t, 3, reg.NumTLS())
}

func TestDriverForReturnsOwningDriverAndLocalIndex(t *testing.T) {
	drivers := driverPair()
	reg := capability.Build(drivers, nil)

	drv, localIdx := reg.DriverFor(2)
	assert.Same(t, drivers[1], drv)
	assert.Equal(t, api.ResourceIndex(0), localIdx)
}
