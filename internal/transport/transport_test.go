package transport

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRawBytesCodecRoundtrip(t *testing.T) {
	var c rawBytesCodec
	in := []byte("hello packet")

	marshaled, err := c.Marshal(&in)
	require.NoError(t, err)
	assert.Equal(t, in, marshaled)

	var out []byte
	require.NoError(t, c.Unmarshal(marshaled, &out))
	assert.Equal(t, in, out)
}

func TestRawBytesCodecRejectsWrongType(t *testing.T) {
	var c rawBytesCodec
	_, err := c.Marshal("not a byte pointer")
	assert.Error(t, err)

	var dst string
	err = c.Unmarshal([]byte("x"), &dst)
	assert.Error(t, err)
}

func TestLimitersAllowsBurst(t *testing.T) {
	l := NewLimiters(1000, 2)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	assert.NoError(t, l.Wait(ctx, 7))
	assert.NoError(t, l.Wait(ctx, 7))
}

func TestLimitersTracksRanksIndependently(t *testing.T) {
	l := NewLimiters(1000, 1)
	ctx := context.Background()
	require.NoError(t, l.Wait(ctx, 1))
	require.NoError(t, l.Wait(ctx, 2))
}
