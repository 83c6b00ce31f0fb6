package replymap_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coriolis-systems/workercore/api"
	"github.com/coriolis-systems/workercore/fake"
	"github.com/coriolis-systems/workercore/internal/replymap"
	"github.com/coriolis-systems/workercore/logging"
)

func newEndpoint(t *testing.T) api.Endpoint {
	t.Helper()
	drv := fake.NewDriver(fake.ResourceSpec{TransportName: "loop", AM: fake.DefaultAMLimits})
	ifc, err := drv.OpenInterface(0, nil)
	require.NoError(t, err)
	ep, err := ifc.NewEndpoint(nil)
	require.NoError(t, err)
	return ep
}

func TestEnsureStubQueuesSendUntilPromoted(t *testing.T) {
	m := replymap.New(nil, logging.Nop())
	id := uuid.New()

	var flushed bool
	ep, cancelable := m.EnsureStub(id, func(api.Endpoint) error {
		flushed = true
		return nil
	})
	assert.Nil(t, ep)
	require.NotNil(t, cancelable)
	assert.False(t, flushed)

	real := newEndpoint(t)
	m.Promote(id, real)
	assert.True(t, flushed)

	resolved, ok := m.Resolve(id)
	assert.True(t, ok)
	assert.Equal(t, real, resolved)
}

func TestEnsureStubReturnsRealEndpointOnceResolved(t *testing.T) {
	m := replymap.New(nil, logging.Nop())
	id := uuid.New()
	real := newEndpoint(t)
	m.Promote(id, real)

	ep, cancelable := m.EnsureStub(id, func(api.Endpoint) error { return nil })
	assert.Equal(t, real, ep)
	assert.Nil(t, cancelable)
}

func TestProgressStubsPromotesResolvableIDs(t *testing.T) {
	id := uuid.New()
	real := newEndpoint(t)
	m := replymap.New(func(u uuid.UUID) (api.Endpoint, bool) {
		if u == id {
			return real, true
		}
		return nil, false
	}, logging.Nop())

	_, _ = m.EnsureStub(id, func(api.Endpoint) error { return nil })
	resolvedBefore, pendingBefore := m.Len()
	assert.Equal(t, 0, resolvedBefore)
	assert.Equal(t, 1, pendingBefore)

	m.ProgressStubs()

	resolvedAfter, pendingAfter := m.Len()
	assert.Equal(t, 1, resolvedAfter)
	assert.Equal(t, 0, pendingAfter)
}

func TestCloseCancelsPendingStubsAndDestroysResolved(t *testing.T) {
	m := replymap.New(nil, logging.Nop())
	stubID := uuid.New()
	realID := uuid.New()
	real := newEndpoint(t)
	m.Promote(realID, real)

	_, cancelable := m.EnsureStub(stubID, func(api.Endpoint) error { return nil })

	var destroyed []api.Endpoint
	m.Close(func(ep api.Endpoint) { destroyed = append(destroyed, ep) })

	assert.Len(t, destroyed, 1)
	select {
	case <-cancelable.Done():
	default:
		t.Fatal("stub should be cancelled on Close")
	}
	assert.Equal(t, api.ErrTransportClosed, cancelable.Err())

	resolved, pending := m.Len()
	assert.Equal(t, 0, resolved)
	assert.Equal(t, 0, pending)
}
