package results

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hpc-hxhim/hxhim-go/pkg/blob"
	"github.com/hpc-hxhim/hxhim-go/pkg/opcode"
)

func TestAddAndIterate(t *testing.T) {
	r := New()
	r.Add(&Record{Op: opcode.PUT, Status: opcode.StatusSuccess})
	r.Add(&Record{Op: opcode.GET, Status: opcode.StatusError})

	require.Equal(t, 2, r.Len())

	var seen []opcode.Op
	for r.Next() {
		require.True(t, r.Valid())
		seen = append(seen, r.Curr().Op)
	}
	assert.False(t, r.Next())
	assert.Equal(t, []opcode.Op{opcode.PUT, opcode.GET}, seen)
}

func TestRewind(t *testing.T) {
	r := New()
	r.Add(&Record{Op: opcode.SYNC})
	require.True(t, r.Next())
	require.True(t, r.Valid())

	r.Rewind()
	assert.False(t, r.Valid())
	require.True(t, r.Next())
	assert.Equal(t, opcode.SYNC, r.Curr().Op)
}

func TestAppendMergesAndDrainsSource(t *testing.T) {
	a := New()
	a.Add(&Record{Op: opcode.PUT})

	b := New()
	b.Add(&Record{Op: opcode.GET})
	b.Add(&Record{Op: opcode.DELETE})

	a.Append(b)
	assert.Equal(t, 3, a.Len())
	assert.Equal(t, 0, b.Len())
}

func TestAllLeavesIteratorUntouched(t *testing.T) {
	r := New()
	r.Add(&Record{Op: opcode.GETOP, Triple: Triple{Subject: blob.New([]byte("s"), blob.TypeByte)}})
	require.True(t, r.Next())

	all := r.All()
	require.Len(t, all, 1)
	assert.Equal(t, "s", string(all[0].Triple.Subject.Data))
	assert.True(t, r.Valid())
}

func TestDestroyClearsRecords(t *testing.T) {
	r := New()
	r.Add(&Record{Op: opcode.PUT})
	r.Destroy()
	assert.Equal(t, 0, r.Len())
	assert.False(t, r.Valid())
}
