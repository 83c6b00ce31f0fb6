package dispatch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coriolis-systems/workercore/api"
)

func TestRegisterAndLookup(t *testing.T) {
	resetForTest()
	defer resetForTest()

	Register(api.AMHandlerRecord{ID: 7, FeatureGate: api.FeatureAMShort})
	rec, ok := Lookup(7)
	require.True(t, ok)
	assert.Equal(t, api.AMID(7), rec.ID)

	_, ok = Lookup(8)
	assert.False(t, ok)
}

func TestRegisterPanicsOnDuplicateID(t *testing.T) {
	resetForTest()
	defer resetForTest()

	Register(api.AMHandlerRecord{ID: 3})
	assert.Panics(t, func() {
		Register(api.AMHandlerRecord{ID: 3})
	})
}

func TestTableIsSortedByID(t *testing.T) {
	resetForTest()
	defer resetForTest()

	Register(api.AMHandlerRecord{ID: 5})
	Register(api.AMHandlerRecord{ID: 1})
	Register(api.AMHandlerRecord{ID: 3})

	tbl := Table()
	require.Len(t, tbl, 3)
	assert.Equal(t, []api.AMID{1, 3, 5}, []api.AMID{tbl[0].ID, tbl[1].ID, tbl[2].ID})
}

func TestTableReturnsACopy(t *testing.T) {
	resetForTest()
	defer resetForTest()

	Register(api.AMHandlerRecord{ID: 1})
	tbl := Table()
	tbl[0].ID = 99
	rec, _ := Lookup(1)
	assert.Equal(t, api.AMID(1), rec.ID)
}
