package arena

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScope_Reuse(t *testing.T) {
	a := newTestArena(t, 1<<20)

	scope := a.Begin()
	s1, err := a.Alloc(4096, 8)
	require.NoError(t, err)
	scope.End()

	// The next allocation reuses the reclaimed offset.
	s2, err := a.Alloc(4096, 8)
	require.NoError(t, err)
	assert.Equal(t, s1.Offset(), s2.Offset())
}

func TestScope_NestedLIFO(t *testing.T) {
	a := newTestArena(t, 1<<20)

	base, err := a.Alloc(100, 8)
	require.NoError(t, err)
	mark := base.Offset() + base.Len()

	s1 := a.Begin()
	_, err = a.Alloc(1000, 8)
	require.NoError(t, err)

	s2 := a.Begin()
	_, err = a.Alloc(1000, 8)
	require.NoError(t, err)

	s3 := a.Begin()
	_, err = a.Alloc(1000, 8)
	require.NoError(t, err)

	s3.End()
	s2.End()
	s1.End()

	next, err := a.Alloc(8, 8)
	require.NoError(t, err)
	assert.Equal(t, mark, next.Offset())
	assert.Zero(t, a.Stats().ScratchDepth)
}

func TestScope_OutOfOrderEndPanics(t *testing.T) {
	a := newTestArena(t, 1<<20)

	s1 := a.Begin()
	s2 := a.Begin()

	assert.Panics(t, func() { s1.End() })

	s2.End()
	s1.End()
}

func TestScope_RestoresStringCursor(t *testing.T) {
	a := newTestArena(t, 1<<20)

	scope := a.Begin()
	_, err := a.AllocString(256)
	require.NoError(t, err)
	scope.End()

	assert.Zero(t, a.Stats().StringUsed)
}

func TestScope_ResetWithOpenScopePanics(t *testing.T) {
	a := newTestArena(t, 1<<20)

	scope := a.Begin()
	assert.Panics(t, func() { a.Reset() })
	scope.End()
	a.Reset()
}

func TestScope_IndependentArenas(t *testing.T) {
	a := newTestArena(t, 1<<20)
	b := newTestArena(t, 1<<20)

	// Scopes on different arenas interleave freely.
	sa := a.Begin()
	sb := b.Begin()
	sa.End()
	sb.End()
}

func TestScope_ZeroScopePanics(t *testing.T) {
	var s Scope
	assert.Panics(t, func() { s.End() })
}
