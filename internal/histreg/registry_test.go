package histreg

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hpc-hxhim/hxhim-go/internal/config"
	"github.com/hpc-hxhim/hxhim-go/pkg/blob"
	"github.com/hpc-hxhim/hxhim-go/pkg/histogram"
)

func doubleBytes(v float64) []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, math.Float64bits(v))
	return buf
}

func TestGetCreatesOncePerDatastoreAndName(t *testing.T) {
	cfg := config.Default()
	cfg.HistogramFirstN = 0
	reg, err := New(cfg, histogram.FixedBucketCount)
	require.NoError(t, err)

	a, err := reg.Get(0, "p")
	require.NoError(t, err)
	b, err := reg.Get(0, "p")
	require.NoError(t, err)
	require.Same(t, a, b)

	c, err := reg.Get(1, "p")
	require.NoError(t, err)
	require.NotSame(t, a, c)
}

func TestTrackPutRespectsFlagAndType(t *testing.T) {
	cfg := config.Default()
	cfg.HistogramFirstN = 0
	cfg.HistogramTrackPredicates = true
	reg, err := New(cfg, histogram.FixedBucketCount)
	require.NoError(t, err)

	require.NoError(t, reg.TrackPut(0, "p", doubleBytes(3.0), blob.TypeDouble))
	h, err := reg.Get(0, "p")
	require.NoError(t, err)
	snap := h.Get()
	require.EqualValues(t, 1, snap.Size)

	require.NoError(t, reg.TrackPut(0, "p", []byte("x"), blob.TypeByte))
	snap = h.Get()
	require.EqualValues(t, 1, snap.Size)
}

func TestTrackPutDisabled(t *testing.T) {
	cfg := config.Default()
	reg, err := New(cfg, histogram.FixedBucketCount)
	require.NoError(t, err)
	require.NoError(t, reg.TrackPut(0, "p", doubleBytes(1.0), blob.TypeDouble))
	require.Empty(t, reg.Names(0))
}

func TestNewUnknownMethod(t *testing.T) {
	cfg := config.Default()
	cfg.HistogramBucketGenMethod = "NOPE"
	_, err := New(cfg, nil)
	require.Error(t, err)
}
