package metadata

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddAndOrder(t *testing.T) {
	m := New()
	require.NoError(t, m.Add("b", "2"))
	require.NoError(t, m.Add("a", "9"))
	require.NoError(t, m.Add("a", "1"))

	assert.Equal(t, []string{"a", "b"}, m.Keys())
	assert.Equal(t, []string{"1", "9"}, m.Values("a"))
	assert.Equal(t, "a=1, a=9, b=2", m.String())
}

func TestAddDuplicateIsIdempotent(t *testing.T) {
	m := New()
	require.NoError(t, m.Add("k", "v"))

	once := m.Clone()
	require.NoError(t, m.Add("k", "v"))

	assert.True(t, m.Equal(once))
	assert.Equal(t, 1, m.Len())
}

func TestEmptyKeyRejected(t *testing.T) {
	m := New()
	assert.ErrorIs(t, m.Add("", "v"), ErrNilKey)
	assert.ErrorIs(t, m.Set("", "v"), ErrNilKey)
}

func TestSetReplaces(t *testing.T) {
	m := New()
	require.NoError(t, m.Add("k", "old"))
	require.NoError(t, m.Set("k", "new1", "new2"))

	assert.Equal(t, []string{"new1", "new2"}, m.Values("k"))

	require.NoError(t, m.Set("k"))
	assert.True(t, m.IsEmpty())
}

func TestFreeze(t *testing.T) {
	m := New()
	require.NoError(t, m.Add("k", "v"))
	m.Freeze()

	assert.ErrorIs(t, m.Add("k2", "v2"), ErrFrozen)
	assert.ErrorIs(t, m.Set("k", "x"), ErrFrozen)
	assert.ErrorIs(t, m.Delete("k"), ErrFrozen)

	// Clone of a frozen instance is mutable again.
	c := m.Clone()
	assert.NoError(t, c.Add("k2", "v2"))
}

func TestEqual(t *testing.T) {
	a, b := New(), New()
	require.NoError(t, a.Add("k", "v"))
	require.NoError(t, b.Add("k", "v"))
	assert.True(t, a.Equal(b))

	require.NoError(t, b.Add("k", "w"))
	assert.False(t, a.Equal(b))
}
