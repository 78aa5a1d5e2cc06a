package packet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hpc-hxhim/hxhim-go/pkg/opcode"
)

func TestAddRotatesAtCapacity(t *testing.T) {
	b, err := NewBuilder(0, opcode.PUT, 2)
	require.NoError(t, err)

	b.Add(5, "a")
	b.Add(5, "b") // fills the packet, should auto-close
	b.Add(5, "c")

	closed := b.Flush()
	require.Len(t, closed, 2)
	assert.Len(t, closed[0].Slots, 2)
	assert.Len(t, closed[1].Slots, 1)
	assert.Equal(t, 5, closed[0].Dst)
}

func TestAddKeepsDestinationsIndependent(t *testing.T) {
	b, err := NewBuilder(0, opcode.GET, 10)
	require.NoError(t, err)

	b.Add(1, "x")
	b.Add(2, "y")
	b.Add(1, "z")

	closed := b.Flush()
	require.Len(t, closed, 2)
	byDst := map[int]int{}
	for _, p := range closed {
		byDst[p.Dst] = len(p.Slots)
	}
	assert.Equal(t, 2, byDst[1])
	assert.Equal(t, 1, byDst[2])
}

func TestFlushIgnoresEmptyOpenPackets(t *testing.T) {
	b, err := NewBuilder(0, opcode.SYNC, 4)
	require.NoError(t, err)
	assert.Empty(t, b.Flush())
}

func TestNewBuilderRejectsNonPositiveMaxOps(t *testing.T) {
	_, err := NewBuilder(0, opcode.PUT, 0)
	assert.Error(t, err)
}

func TestPendingReflectsOpenAndCompletedPackets(t *testing.T) {
	b, err := NewBuilder(0, opcode.DELETE, 1)
	require.NoError(t, err)
	assert.False(t, b.Pending())

	b.Add(3, "a") // maxOps=1, closes immediately
	assert.True(t, b.Pending())
}
