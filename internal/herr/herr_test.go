package herr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsAndKindOfUnwrapChain(t *testing.T) {
	base := errors.New("boom")
	tagged := New(Datastore, "put", base)
	wrapped := fmt.Errorf("batch 3: %w", tagged)

	assert.True(t, Is(wrapped, Datastore))
	assert.False(t, Is(wrapped, Transport))

	kind, ok := KindOf(wrapped)
	assert.True(t, ok)
	assert.Equal(t, Datastore, kind)
}

func TestKindOfNoTag(t *testing.T) {
	_, ok := KindOf(errors.New("plain"))
	assert.False(t, ok)
}

func TestErrorStringIncludesOpAndKind(t *testing.T) {
	e := New(Config, "Open", errors.New("missing datastore path"))
	assert.Contains(t, e.Error(), "Open")
	assert.Contains(t, e.Error(), "config")
	assert.Contains(t, e.Error(), "missing datastore path")
}
