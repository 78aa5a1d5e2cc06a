package shuffle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hpc-hxhim/hxhim-go/internal/hash"
	"github.com/hpc-hxhim/hxhim-go/internal/packet"
	"github.com/hpc-hxhim/hxhim-go/internal/rangeserver"
	"github.com/hpc-hxhim/hxhim-go/pkg/opcode"
)

func TestShuffleResolvesRankAndLocalIndex(t *testing.T) {
	ratio := rangeserver.Ratio{Client: 1, Server: 1}
	dest, err := Shuffle(hash.Rank, []byte("s"), []byte("p"), 4, 3, ratio, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, dest.DatastoreID)
	assert.Equal(t, 1, dest.LocalIndex)
	assert.Equal(t, 1, dest.Rank)
}

func TestShuffleRejectsOutOfRangeHashResult(t *testing.T) {
	ratio := rangeserver.Ratio{Client: 1, Server: 1}
	_, err := Shuffle(hash.Rank, nil, nil, 4, 99, ratio, 1)
	assert.Error(t, err)
}

func TestDispatchPreservesPerDestinationOrder(t *testing.T) {
	ratio := rangeserver.Ratio{Client: 1, Server: 1}
	b, err := packet.NewBuilder(0, opcode.PUT, 10)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := Dispatch(hash.Rank, nil, nil, 4, 2, ratio, 1, b, i)
		require.NoError(t, err)
	}

	packets := b.Flush()
	require.Len(t, packets, 1)
	assert.Equal(t, []any{0, 1, 2}, packets[0].Slots)
}
