package elen

import (
	"math"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIntRoundtrip(t *testing.T) {
	values := []int64{0, 1, -1, 9, -9, 10, -10, 42, -42, 123456789, -123456789, math.MaxInt32, -math.MaxInt32}
	for _, v := range values {
		enc := EncodeInt(v)
		got, err := DecodeInt(enc)
		require.NoError(t, err, "value %d encoded as %q", v, enc)
		assert.Equal(t, v, got, "roundtrip mismatch for %d (encoded %q)", v, enc)
	}
}

func TestIntOrdering(t *testing.T) {
	values := []int64{-1000, -500, -42, -10, -9, -1, 0, 1, 9, 10, 42, 500, 1000}
	encoded := make([]string, len(values))
	for i, v := range values {
		encoded[i] = EncodeInt(v)
	}
	sorted := append([]string(nil), encoded...)
	sort.Strings(sorted)
	assert.Equal(t, encoded, sorted, "byte order of encoded integers must match numeric order")
}

func TestSmallDecimalRoundtrip(t *testing.T) {
	values := []float64{0, 0.5, -0.5, 0.001, -0.001, 0.999999, -0.999999}
	for _, v := range values {
		enc := EncodeSmallDecimal(v, DefaultPrecision)
		got, err := DecodeSmallDecimal(enc)
		require.NoError(t, err)
		assert.InDelta(t, v, got, 1e-9, "value %v encoded as %q decoded to %v", v, enc, got)
	}
}

func TestSmallDecimalOrdering(t *testing.T) {
	values := []float64{-0.9, -0.5, -0.1, 0, 0.1, 0.5, 0.9}
	encoded := make([]string, len(values))
	for i, v := range values {
		encoded[i] = EncodeSmallDecimal(v, DefaultPrecision)
	}
	sorted := append([]string(nil), encoded...)
	sort.Strings(sorted)
	assert.Equal(t, encoded, sorted)
}

func TestLargeDecimalRoundtrip(t *testing.T) {
	values := []float64{0, 1, -1, 6.0, -6.0, 123.456, -123.456, 1000, -1000}
	for _, v := range values {
		enc := EncodeLargeDecimal(v, DefaultPrecision)
		got, err := DecodeLargeDecimal(enc)
		require.NoError(t, err)
		assert.InDelta(t, v, got, 1e-6, "value %v encoded as %q decoded to %v", v, enc, got)
	}
}

func TestLargeDecimalOrdering(t *testing.T) {
	values := []float64{-1000, -123.456, -6, -1, 0, 1, 6, 123.456, 1000}
	encoded := make([]string, len(values))
	for i, v := range values {
		encoded[i] = EncodeLargeDecimal(v, DefaultPrecision)
	}
	sorted := append([]string(nil), encoded...)
	sort.Strings(sorted)
	assert.Equal(t, encoded, sorted)
}

func TestFloatRoundtrip(t *testing.T) {
	values := []float64{0, 1, -1, 6.0, -6.0, 0.5, -0.5, 123456.789, -123456.789, 1e-6, -1e-6}
	for _, v := range values {
		enc := EncodeFloat(v, DefaultPrecision)
		got, err := DecodeFloat(enc)
		require.NoError(t, err)
		assert.InEpsilon(t, v, got, 1e-6, "value %v encoded as %q decoded to %v", v, enc, got)
	}
}

func TestFloatOrdering(t *testing.T) {
	values := []float64{-1000, -6, -0.5, -1e-6, 0, 1e-6, 0.5, 6, 1000}
	encoded := make([]string, len(values))
	for i, v := range values {
		encoded[i] = EncodeFloat(v, DefaultPrecision)
	}
	sorted := append([]string(nil), encoded...)
	sort.Strings(sorted)
	assert.Equal(t, encoded, sorted)
}

func TestDecodeMalformedEchoesInput(t *testing.T) {
	_, err := DecodeInt("+")
	require.Error(t, err)
	var decErr *DecodeError
	require.ErrorAs(t, err, &decErr)
	assert.Equal(t, "+", decErr.Input)
}
