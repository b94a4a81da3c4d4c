package symtab_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nomad-traveller/multi-cpu-assembler/internal/symtab"
)

func TestDefineAndResolve(t *testing.T) {
	tab := symtab.New()
	require.NoError(t, tab.Define("START", 0x8000, symtab.KindLabel, 2))

	v, ok := tab.Resolve("START")
	assert.True(t, ok)
	assert.Equal(t, int64(0x8000), v)

	e, ok := tab.Lookup("START")
	require.True(t, ok)
	assert.Equal(t, symtab.KindLabel, e.Kind)
	assert.Equal(t, 2, e.Line)
}

func TestDuplicateIsErrorEvenWithSameValue(t *testing.T) {
	tab := symtab.New()
	require.NoError(t, tab.Define("FOO", 16, symtab.KindEquate, 1))

	err := tab.Define("FOO", 16, symtab.KindEquate, 7)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate symbol FOO")
	assert.Contains(t, err.Error(), "line 1")

	// First definition stays in force.
	e, _ := tab.Lookup("FOO")
	assert.Equal(t, 1, e.Line)
}

func TestCaseSensitive(t *testing.T) {
	tab := symtab.New()
	require.NoError(t, tab.Define("loop", 1, symtab.KindLabel, 1))
	require.NoError(t, tab.Define("LOOP", 2, symtab.KindLabel, 2))

	_, ok := tab.Resolve("Loop")
	assert.False(t, ok)
	assert.Equal(t, 2, tab.Len())
}
