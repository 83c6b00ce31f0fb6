package reqpool_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coriolis-systems/workercore/internal/reqpool"
)

func TestAcquireReturnsCorrectlySizedElement(t *testing.T) {
	p := reqpool.New(16, 8)
	el := p.Acquire()
	require.Len(t, el.Bytes(), 24)
}

func TestReleasedElementIsReusedAndZeroed(t *testing.T) {
	p := reqpool.New(4, 0)
	el := p.Acquire()
	copy(el.Bytes(), []byte{1, 2, 3, 4})
	el.Release()
	// The free ring is FIFO: take the 127 remaining seeded elements so the
	// next Acquire returns the released one.
	for i := 0; i < 127; i++ {
		p.Acquire()
	}

	before := p.Stats()
	reused := p.Acquire()
	after := p.Stats()

	assert.Equal(t, []byte{0, 0, 0, 0}, reused.Bytes())
	assert.Equal(t, before.TotalAlloc, after.TotalAlloc, "reuse must not allocate")
}

func TestAcquireNeverFailsPastInitialCapacity(t *testing.T) {
	p := reqpool.New(1, 0)
	for i := 0; i < 1000; i++ {
		el := p.Acquire()
		assert.NotNil(t, el)
	}
	stats := p.Stats()
	assert.Equal(t, int64(1000), stats.InUse)
}
