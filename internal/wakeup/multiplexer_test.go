package wakeup_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coriolis-systems/workercore/api"
	"github.com/coriolis-systems/workercore/fake"
	"github.com/coriolis-systems/workercore/internal/wakeup"
)

func openWakeupHandle(t *testing.T) api.WakeupHandle {
	t.Helper()
	drv := fake.NewDriver(fake.ResourceSpec{TransportName: "loop", Features: api.FeatureWakeup})
	ifc, err := drv.OpenInterface(0, nil)
	require.NoError(t, err)
	wh, err := ifc.OpenWakeup()
	require.NoError(t, err)
	return wh
}

func TestSignalUnblocksWait(t *testing.T) {
	m := wakeup.New([]api.WakeupHandle{openWakeupHandle(t)})
	defer m.Close()

	_, err := m.FD()
	require.NoError(t, err)
	require.NoError(t, m.Arm(api.EventRXAM))

	go func() {
		time.Sleep(10 * time.Millisecond)
		_ = m.Signal()
	}()

	done := make(chan error, 1)
	go func() { done <- m.Wait() }()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Wait did not unblock after Signal")
	}
}

func TestSignalBeforeWaitStillDelivers(t *testing.T) {
	m := wakeup.New(nil)
	defer m.Close()

	require.NoError(t, m.Signal())

	done := make(chan error, 1)
	go func() { done <- m.Wait() }()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Wait blocked despite a signal already pending")
	}
}

func TestCloseReleasesResources(t *testing.T) {
	m := wakeup.New([]api.WakeupHandle{openWakeupHandle(t)})
	_, err := m.FD()
	require.NoError(t, err)
	assert.NoError(t, m.Close())
}
