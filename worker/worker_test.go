package worker_test

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coriolis-systems/workercore/api"
	"github.com/coriolis-systems/workercore/config"
	"github.com/coriolis-systems/workercore/fake"
	"github.com/coriolis-systems/workercore/internal/amhandlers"
	"github.com/coriolis-systems/workercore/internal/epconfig"
	"github.com/coriolis-systems/workercore/worker"
)

func newTestWorker(t *testing.T, specs ...fake.ResourceSpec) *worker.Worker {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Params.RequestedFeatures = api.FeatureAMShort | api.FeatureAMBcopy |
		api.FeatureAMSyncCallback | api.FeatureWakeup |
		api.FeatureAtomicAdd64 | api.FeatureAtomicCswap64
	drv := fake.NewDriver(specs...)
	w, err := worker.Create(cfg, []api.TransportDriver{drv}, nil)
	require.NoError(t, err)
	t.Cleanup(w.Destroy)
	return w
}

func defaultSpecs() []fake.ResourceSpec {
	return []fake.ResourceSpec{
		{
			TransportName: "loop", DeviceName: "mlx0", Priority: 10,
			Bandwidth: 4e9, Overhead: 500,
			Features: api.FeatureAMShort | api.FeatureAMBcopy | api.FeatureAMSyncCallback |
				api.FeatureWakeup | api.FeatureAtomicDevice | api.FeatureAtomicAdd64,
			AM: fake.DefaultAMLimits, MaxAMHeader: 64,
		},
	}
}

func TestCreateDestroyRoundTrip(t *testing.T) {
	w := newTestWorker(t, defaultSpecs()...)
	attr := w.Query()
	assert.Equal(t, 1, attr.NumTLS)
	assert.Equal(t, api.ThreadModeSingle, attr.ThreadMode)
	assert.NotZero(t, attr.UID)
}

func TestDestroyIsIdempotent(t *testing.T) {
	w := newTestWorker(t, defaultSpecs()...)
	w.Destroy()
	assert.NotPanics(t, w.Destroy)
}

func TestManyToOneAMScenario(t *testing.T) {
	amhandlers.Instance().Reset()
	defer amhandlers.Instance().Reset()

	w := newTestWorker(t, defaultSpecs()...)

	addrBlob, err := w.GetAddress()
	require.NoError(t, err)
	receiverAddr := extractResourceAddress(t, addrBlob, 0)

	const numSenders = 10
	const perSender = 4
	for s := 0; s < numSenders; s++ {
		senderDrv := fake.NewDriver(fake.ResourceSpec{TransportName: "loop", AM: fake.DefaultAMLimits})
		ifc, err := senderDrv.OpenInterface(0, nil)
		require.NoError(t, err)
		ep, err := ifc.NewEndpoint(receiverAddr)
		require.NoError(t, err)
		for m := 0; m < perSender; m++ {
			payload := []byte(fmt.Sprintf("s%d-m%d", s, m))
			require.NoError(t, ep.SendAM(amhandlers.AMIDEcho, amhandlers.StampHeadroom(), payload))
		}
	}

	total := numSenders * perSender
	processed := w.Progress()
	assert.Equal(t, total, processed)

	invocations, checksOK, checksFail := amhandlers.Instance().Stats()
	assert.EqualValues(t, total, invocations)
	assert.EqualValues(t, 0, checksFail)

	deferred := amhandlers.Instance().DrainStored()
	assert.Equal(t, total/4, deferred)

	_, checksOKAfterDrain, _ := amhandlers.Instance().Stats()
	assert.EqualValues(t, total, checksOKAfterDrain)
	assert.EqualValues(t, total, checksOK+int64(deferred))
}

func TestWakeupPipelineSignalAfterArm(t *testing.T) {
	w := newTestWorker(t, defaultSpecs()...)
	_, err := w.GetEFD()
	require.NoError(t, err)

	go func() {
		time.Sleep(10 * time.Millisecond)
		_ = w.Signal()
	}()

	done := make(chan error, 1)
	go func() { done <- w.Wait() }()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("wait did not unblock after signal")
	}
}

func TestWakeupPipelineSignalBeforeArmDoesNotBlock(t *testing.T) {
	w := newTestWorker(t, defaultSpecs()...)
	_, err := w.GetEFD()
	require.NoError(t, err)
	require.NoError(t, w.Signal())

	done := make(chan error, 1)
	go func() { done <- w.Wait() }()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("wait blocked despite a signal that preceded arm")
	}
}

func TestStubEndpointPromotion(t *testing.T) {
	w := newTestWorker(t, defaultSpecs()...)
	peer := uuid.New()

	ep, cancelable := w.GetReplyEp(peer)
	assert.Nil(t, ep)
	require.NotNil(t, cancelable)

	// Without a resolver the stub never auto-promotes; progress_stub_eps
	// is a documented no-op in that configuration.
	w.Progress()
	select {
	case <-cancelable.Done():
		t.Fatal("stub should not resolve without a resolver or explicit promotion")
	default:
	}
}

func TestGetEPConfigDedupesEqualKeys(t *testing.T) {
	w := newTestWorker(t, defaultSpecs()...)
	k := epconfig.Key{LaneRoles: []string{"rx"}}
	i1 := w.GetEPConfig(k)
	i2 := w.GetEPConfig(k)
	assert.Equal(t, i1, i2)
}

func TestPrintInfoIncludesEveryResource(t *testing.T) {
	w := newTestWorker(t, defaultSpecs()...)
	var out strings.Builder
	w.PrintInfo(&out)
	assert.Contains(t, out.String(), "mlx0")
	assert.Contains(t, out.String(), "active AM ids")
}

func extractResourceAddress(t *testing.T, blob []byte, idx int) []byte {
	t.Helper()
	for len(blob) > 0 {
		require.GreaterOrEqual(t, len(blob), 8)
		n := int(uint32(blob[4])<<24 | uint32(blob[5])<<16 | uint32(blob[6])<<8 | uint32(blob[7]))
		resIdx := int(uint32(blob[0])<<24 | uint32(blob[1])<<16 | uint32(blob[2])<<8 | uint32(blob[3]))
		blob = blob[8:]
		require.GreaterOrEqual(t, len(blob), n)
		addr := blob[:n]
		if resIdx == idx {
			return addr
		}
		blob = blob[n:]
	}
	t.Fatalf("no address for resource %d", idx)
	return nil
}
