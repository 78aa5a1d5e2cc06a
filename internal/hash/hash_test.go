package hash

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSumModDatastoresDeterministic(t *testing.T) {
	id1, err := SumModDatastores([]byte("s"), []byte("p"), 8, nil)
	require.NoError(t, err)
	id2, err := SumModDatastores([]byte("s"), []byte("p"), 8, nil)
	require.NoError(t, err)
	assert.Equal(t, id1, id2)
	assert.GreaterOrEqual(t, id1, 0)
	assert.Less(t, id1, 8)
}

func TestRankPinsToTarget(t *testing.T) {
	id, err := Rank([]byte("s"), []byte("p"), 4, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, id)

	_, err = Rank(nil, nil, 4, 9)
	assert.Error(t, err)
}

func TestByNameKnownAndUnknown(t *testing.T) {
	f, ok := ByName("SUM_MOD_DATASTORES")
	require.True(t, ok)
	require.NotNil(t, f)

	_, ok = ByName("NOPE")
	assert.False(t, ok)
}

func TestExprHashEvaluatesAgainstKeyLengths(t *testing.T) {
	f, err := Expr("(subjectLen + predicateLen) % total")
	require.Error(t, err) // identifiers aren't the bound field names
	_ = f

	f, err = Expr("(SubjectLen + PredicateLen) % Total")
	require.NoError(t, err)

	id, err := f([]byte("abc"), []byte("de"), 4, nil)
	require.NoError(t, err)
	assert.Equal(t, (3+2)%4, id)
}

func TestExprRejectsOutOfRangeResult(t *testing.T) {
	f, err := Expr("Total")
	require.NoError(t, err)
	_, err = f(nil, nil, 4, nil)
	assert.Error(t, err)
}
