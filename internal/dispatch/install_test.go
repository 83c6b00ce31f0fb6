package dispatch_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coriolis-systems/workercore/api"
	"github.com/coriolis-systems/workercore/fake"
	"github.com/coriolis-systems/workercore/internal/dispatch"
	"github.com/coriolis-systems/workercore/logging"
)

func table() []api.AMHandlerRecord {
	return []api.AMHandlerRecord{
		{ID: 100, FeatureGate: api.FeatureAMBcopy, Kind: api.CallbackSync,
			Handler: func(any, []byte, api.Descriptor) (api.Disposition, error) { return api.DispositionOK, nil }},
		{ID: 101, FeatureGate: api.FeatureAtomicDevice, Kind: api.CallbackSync,
			Handler: func(any, []byte, api.Descriptor) (api.Disposition, error) { return api.DispositionOK, nil }},
	}
}

func TestNewInstallerActivatesOnlyIntersectingFeatures(t *testing.T) {
	in := dispatch.NewInstaller(api.FeatureAMBcopy, table(), logging.Nop())
	ids := in.ActiveIDs()
	require.Len(t, ids, 1)
	assert.Equal(t, api.AMID(100), ids[0])
}

func TestInstallOnSkipsSyncHandlerWithoutSyncCallbackFeature(t *testing.T) {
	in := dispatch.NewInstaller(api.FeatureAMBcopy, table(), logging.Nop())
	drv := fake.NewDriver(fake.ResourceSpec{
		TransportName: "loop",
		Features:      api.FeatureAMBcopy, // no FeatureAMSyncCallback
		AM:            fake.DefaultAMLimits,
	})
	ifc, err := drv.OpenInterface(0, nil)
	require.NoError(t, err)

	require.NoError(t, in.InstallOn(ifc, ifc.Capability()))

	// InstallOn skipped id 100 on this interface, so the frame drains as an
	// unrecognized AM id: Progress still counts it, but no handler runs.
	other := fake.NewDriver(fake.ResourceSpec{TransportName: "loop", AM: fake.DefaultAMLimits})
	senderIfc, err := other.OpenInterface(0, nil)
	require.NoError(t, err)
	addr, err := mustAddress(t, ifc)
	require.NoError(t, err)
	ep, err := senderIfc.NewEndpoint(addr)
	require.NoError(t, err)
	assert.NoError(t, ep.SendAM(100, nil, []byte("x")))
	assert.Equal(t, 1, ifc.Progress())
}

func TestInstallOnAndDropAllRoundTrip(t *testing.T) {
	in := dispatch.NewInstaller(api.FeatureAMBcopy, table(), logging.Nop())
	drv := fake.NewDriver(fake.ResourceSpec{
		TransportName: "loop",
		Features:      api.FeatureAMBcopy | api.FeatureAMSyncCallback,
		AM:            fake.DefaultAMLimits,
	})
	ifc, err := drv.OpenInterface(0, nil)
	require.NoError(t, err)

	require.NoError(t, in.InstallOn(ifc, ifc.Capability()))
	in.DropAll(ifc)
	require.NoError(t, ifc.Close())
}

func mustAddress(t *testing.T, ifc api.Interface) ([]byte, error) {
	t.Helper()
	ep, err := ifc.NewEndpoint(nil)
	require.NoError(t, err)
	return ep.Address()
}
