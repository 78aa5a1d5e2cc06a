package histogram

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFixedSingleBucketScenario(t *testing.T) {
	h, err := New(Config{Name: "p", FirstN: 0, Gen: FixedBucketCount, Extra: 1})
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		require.NoError(t, h.Add(float64(i)))
	}
	snap := h.Get()
	assert.Equal(t, 1, len(snap.Buckets))
	assert.Equal(t, uint64(10), snap.Counts[0])
	assert.Equal(t, uint64(10), snap.Size)
}

func TestDeferredGeneration(t *testing.T) {
	h, err := New(Config{Name: "p", FirstN: 4, Gen: FixedBucketCount, Extra: 2})
	require.NoError(t, err)
	for _, v := range []float64{0, 1, 2, 3} {
		require.NoError(t, h.Add(v))
	}
	snap := h.Get()
	require.Len(t, snap.Buckets, 2)
	var total uint64
	for _, c := range snap.Counts {
		total += c
	}
	assert.Equal(t, uint64(4), total)

	require.NoError(t, h.Add(10))
	snap = h.Get()
	assert.Equal(t, uint64(5), snap.Size)
}

func TestSquareRootChoice(t *testing.T) {
	samples := make([]float64, 9)
	for i := range samples {
		samples[i] = float64(i)
	}
	buckets, err := SquareRootChoice(samples, nil)
	require.NoError(t, err)
	assert.Len(t, buckets, 3)
}
