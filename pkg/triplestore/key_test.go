package triplestore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundtrip(t *testing.T) {
	cases := []struct {
		subject, predicate []byte
	}{
		{[]byte("s"), []byte("p")},
		{[]byte("subject-42"), []byte("predicate-7")},
		{[]byte{0, 1, 2, 3}, []byte{255, 254}},
	}
	for _, c := range cases {
		key, err := Encode(c.subject, c.predicate)
		require.NoError(t, err)
		s, p, err := Decode(key)
		require.NoError(t, err)
		assert.Equal(t, c.subject, s)
		assert.Equal(t, c.predicate, p)
	}
}

func TestEncodeRejectsEmpty(t *testing.T) {
	_, err := Encode(nil, []byte("p"))
	assert.Error(t, err)
	_, err = Encode([]byte("s"), nil)
	assert.Error(t, err)
}

func TestDecodeRejectsTruncated(t *testing.T) {
	_, _, err := Decode([]byte{1, 2, 3})
	assert.Error(t, err)
}

func TestKeyOrderingMatchesSubjectPredicateOrder(t *testing.T) {
	k1, _ := Encode([]byte("a"), []byte("a"))
	k2, _ := Encode([]byte("a"), []byte("b"))
	k3, _ := Encode([]byte("b"), []byte("a"))
	assert.Less(t, string(k1), string(k2))
	assert.Less(t, string(k2), string(k3))
}
