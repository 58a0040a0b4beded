package handler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryRejectsDuplicates(t *testing.T) {
	reg := NewRegistry[int]()
	require.NoError(t, reg.Register("A", 1))
	err := reg.Register("A", 2)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already registered")
	require.Error(t, reg.Register("", 3))
}

func TestSnapshotSealsRegistry(t *testing.T) {
	reg := NewRegistry[string]()
	require.NoError(t, reg.Register("B", "b"))
	require.NoError(t, reg.Register("A", "a"))

	table := reg.Snapshot()
	require.Error(t, reg.Register("C", "c"))

	v, ok := table.Get("A")
	require.True(t, ok)
	assert.Equal(t, "a", v)
	_, ok = table.Get("C")
	assert.False(t, ok)
	assert.Equal(t, 2, table.Len())
	assert.Equal(t, []string{"A", "B"}, table.Names())
}

func TestZeroTable(t *testing.T) {
	var table Table[int]
	_, ok := table.Get("anything")
	assert.False(t, ok)
	assert.Empty(t, table.Names())
}
