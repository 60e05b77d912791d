package uloop

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestArena_InsertGetRemove(t *testing.T) {
	var a arena[string]

	h := a.insert("hello")
	v, ok := a.get(h)
	assert.True(t, ok)
	assert.Equal(t, "hello", *v)

	assert.True(t, a.remove(h))
	_, ok = a.get(h)
	assert.False(t, ok, "a removed slot must not be reachable by its old handle")
}

func TestArena_StaleHandleAfterReuseIsRejected(t *testing.T) {
	var a arena[int]

	h1 := a.insert(1)
	require := assert.New(t)
	require.True(a.remove(h1))

	h2 := a.insert(2)
	require.NotEqual(h1, h2, "a reused slot must carry a bumped generation")

	_, ok := a.get(h1)
	require.False(ok, "the stale handle must not resolve to the new occupant")
	v, ok := a.get(h2)
	require.True(ok)
	require.Equal(2, *v)
}

func TestHandle_ZeroValueIsInvalid(t *testing.T) {
	var h Handle
	assert.False(t, h.Valid())
}

func TestArena_DoubleRemoveFails(t *testing.T) {
	var a arena[int]
	h := a.insert(1)
	assert.True(t, a.remove(h))
	assert.False(t, a.remove(h))
}
