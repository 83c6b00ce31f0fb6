package epconfig

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetOrInsertSharesIndexForEqualKeys(t *testing.T) {
	c := New(0, nil)
	k1 := Key{LaneRoles: []string{"rx", "tx"}, Resources: map[string]int{"rdma0": 0}}
	k2 := Key{LaneRoles: []string{"rx", "tx"}, Resources: map[string]int{"rdma0": 0}}

	i1 := c.GetOrInsert(k1)
	i2 := c.GetOrInsert(k2)
	assert.Equal(t, i1, i2)
	assert.Equal(t, 1, c.Len())
}

func TestGetOrInsertDistinctKeysGetDistinctIndices(t *testing.T) {
	c := New(0, nil)
	i1 := c.GetOrInsert(Key{LaneRoles: []string{"rx"}})
	i2 := c.GetOrInsert(Key{LaneRoles: []string{"tx"}})
	assert.NotEqual(t, i1, i2)
	assert.Equal(t, 2, c.Len())
}

func TestGetOrInsertPanicsOnOverflow(t *testing.T) {
	c := New(2, nil)
	c.GetOrInsert(Key{LaneRoles: []string{"a"}})
	c.GetOrInsert(Key{LaneRoles: []string{"b"}})
	assert.Panics(t, func() {
		c.GetOrInsert(Key{LaneRoles: []string{"c"}})
	})
}

func TestEntryReturnsInitResult(t *testing.T) {
	c := New(0, func(k Key) Entry { return Entry{Key: k, ScratchSize: 128} })
	idx := c.GetOrInsert(Key{LaneRoles: []string{"rx"}})
	require.Equal(t, 128, c.Entry(idx).ScratchSize)
}

func TestDefaultLimitClampsToByteRange(t *testing.T) {
	assert.Equal(t, 4, DefaultLimit(0))
	assert.Equal(t, maxIndex, DefaultLimit(100))
	assert.Equal(t, 4+8, DefaultLimit(2))
}

func TestNewClampsLimitToByteRange(t *testing.T) {
	c := New(10000, nil)
	for i := 0; i < maxIndex+1; i++ {
		c.GetOrInsert(Key{LaneRoles: []string{string(rune('a' + i%26)), string(rune(i))}})
	}
	assert.Panics(t, func() {
		c.GetOrInsert(Key{LaneRoles: []string{"overflow"}})
	})
}
