package rangeserver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hpc-hxhim/hxhim-go/internal/herr"
)

func TestIsRangeServerCGreaterThanS(t *testing.T) {
	r := Ratio{Client: 4, Server: 2}
	// block of 4 ranks: first 2 are servers.
	assert.True(t, IsRangeServer(0, r))
	assert.True(t, IsRangeServer(1, r))
	assert.False(t, IsRangeServer(2, r))
	assert.False(t, IsRangeServer(3, r))
	assert.True(t, IsRangeServer(4, r))
}

func TestIsRangeServerSGreaterThanC(t *testing.T) {
	r := Ratio{Client: 1, Server: 3}
	for rank := 0; rank < 8; rank++ {
		assert.True(t, IsRangeServer(rank, r))
	}
}

func TestGetRankGetIDRoundtrip(t *testing.T) {
	r := Ratio{Client: 4, Server: 2}
	for id := 0; id < 10; id++ {
		rank, err := GetRank(id, r)
		require.NoError(t, err)
		require.True(t, IsRangeServer(rank, r))

		gotID, err := GetID(rank, r)
		require.NoError(t, err)
		assert.Equal(t, id, gotID)
	}
}

func TestGetIDRejectsNonServerRank(t *testing.T) {
	r := Ratio{Client: 4, Server: 2}
	_, err := GetID(2, r)
	require.Error(t, err)
	kind, ok := herr.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, herr.Argument, kind)
}

func TestWorldSizeAwareVariantsRejectOutOfRange(t *testing.T) {
	r := Ratio{Client: 4, Server: 2}
	_, err := GetRankInWorld(100, r, 8)
	assert.Error(t, err)

	_, err = GetIDInWorld(0, r, 1)
	require.NoError(t, err)
	_, err = GetIDInWorld(4, r, 1)
	assert.Error(t, err)
}

func TestAllRanksEquivalentWhenClientEqualsServer(t *testing.T) {
	r := Ratio{Client: 2, Server: 2}
	for rank := 0; rank < 6; rank++ {
		assert.True(t, IsRangeServer(rank, r))
		id, err := GetID(rank, r)
		require.NoError(t, err)
		assert.Equal(t, rank, id)
	}
}
