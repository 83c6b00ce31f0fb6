package amhandlers_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coriolis-systems/workercore/api"
	"github.com/coriolis-systems/workercore/fake"
	"github.com/coriolis-systems/workercore/internal/amhandlers"
	"github.com/coriolis-systems/workercore/internal/dispatch"
)

// echoHandler fetches the process-wide registered handler for AMIDEcho, the
// same function a worker's Installer would wire onto a real interface.
func echoHandler(t *testing.T) api.AMHandlerFunc {
	t.Helper()
	rec, ok := dispatch.Lookup(amhandlers.AMIDEcho)
	require.True(t, ok)
	return rec.Handler
}

func TestEchoDefersEveryFourthMessage(t *testing.T) {
	amhandlers.Instance().Reset()
	defer amhandlers.Instance().Reset()

	drv := fake.NewDriver(fake.ResourceSpec{
		TransportName: "loop",
		Features:      api.FeatureAMBcopy | api.FeatureAMSyncCallback,
		AM:            fake.DefaultAMLimits,
	})
	ifc, err := drv.OpenInterface(0, nil)
	require.NoError(t, err)
	require.NoError(t, ifc.InstallAMHandler(amhandlers.AMIDEcho, api.CallbackSync, echoHandler(t)))

	ep, err := ifc.NewEndpoint(nil)
	require.NoError(t, err)
	addr, err := ep.Address()
	require.NoError(t, err)
	require.NoError(t, ep.Connect(addr))

	const n = 8
	for i := 0; i < n; i++ {
		require.NoError(t, ep.SendAM(amhandlers.AMIDEcho, amhandlers.StampHeadroom(), []byte("payload")))
	}
	ifc.Progress()

	invocations, checksOK, checksFail := amhandlers.Instance().Stats()
	assert.EqualValues(t, n, invocations)
	assert.EqualValues(t, n-n/4, checksOK)
	assert.EqualValues(t, 0, checksFail)

	deferred := amhandlers.Instance().DrainStored()
	assert.Equal(t, n/4, deferred)

	_, checksOKAfterDrain, _ := amhandlers.Instance().Stats()
	assert.EqualValues(t, n, checksOKAfterDrain)
}

func TestEchoFlagsBadSentinel(t *testing.T) {
	amhandlers.Instance().Reset()
	defer amhandlers.Instance().Reset()

	drv := fake.NewDriver(fake.ResourceSpec{
		TransportName: "loop",
		Features:      api.FeatureAMBcopy | api.FeatureAMSyncCallback,
		AM:            fake.DefaultAMLimits,
	})
	ifc, err := drv.OpenInterface(0, nil)
	require.NoError(t, err)
	require.NoError(t, ifc.InstallAMHandler(amhandlers.AMIDEcho, api.CallbackSync, echoHandler(t)))

	ep, err := ifc.NewEndpoint(nil)
	require.NoError(t, err)
	addr, _ := ep.Address()
	require.NoError(t, ep.Connect(addr))

	require.NoError(t, ep.SendAM(amhandlers.AMIDEcho, []byte("bad-headroom"), []byte("payload")))
	ifc.Progress()

	_, checksOK, checksFail := amhandlers.Instance().Stats()
	assert.EqualValues(t, 0, checksOK)
	assert.EqualValues(t, 1, checksFail)
}

