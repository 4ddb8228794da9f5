package kvstore

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryBackendPlainRowCRUD(t *testing.T) {
	b := NewMemoryBackend()
	require.NoError(t, b.CreateTable("people", TableOptions{}))

	_, err := b.Get("people", "alice")
	assert.True(t, errors.Is(err, ErrNotFound))

	require.NoError(t, b.Insert("people", "alice", Row{"name": "Alice"}))
	row, err := b.Get("people", "alice")
	require.NoError(t, err)
	assert.Equal(t, "Alice", row["name"])

	require.NoError(t, b.Insert("people", "alice", Row{"age": "$i30"}))
	row, err = b.Get("people", "alice")
	require.NoError(t, err)
	assert.Equal(t, "Alice", row["name"])
	assert.Equal(t, "$i30", row["age"])

	require.NoError(t, b.Remove("people", "alice"))
	_, err = b.Get("people", "alice")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestMemoryBackendSuperColumnSliceOrdering(t *testing.T) {
	b := NewMemoryBackend()
	require.NoError(t, b.CreateTable("adj", TableOptions{Super: true}))

	require.NoError(t, b.InsertSuper("adj", "spiderpig", "friend\x1fcow", Row{"target__key": "cow"}))
	require.NoError(t, b.InsertSuper("adj", "spiderpig", "friend\x1floves", Row{"target__key": "homer"}))
	require.NoError(t, b.InsertSuper("adj", "spiderpig", "enemy\x1fshrek", Row{"target__key": "shrek"}))

	slice, err := b.GetSlice("adj", "spiderpig", "friend\x1f", "friend\x20", 0)
	require.NoError(t, err)
	require.Len(t, slice, 2)
	assert.Equal(t, "friend\x1fcow", slice[0].Name)
	assert.Equal(t, "friend\x1floves", slice[1].Name)
}

func TestMemoryBackendGetSliceOnMissingRowIsEmpty(t *testing.T) {
	b := NewMemoryBackend()
	require.NoError(t, b.CreateTable("adj", TableOptions{Super: true}))
	slice, err := b.GetSlice("adj", "nobody", "a", "z", 0)
	require.NoError(t, err)
	assert.Empty(t, slice)
}

func TestMemoryBackendBatchAtomicity(t *testing.T) {
	b := NewMemoryBackend()
	require.NoError(t, b.CreateTable("people", TableOptions{}))

	batch := b.BeginBatch()
	batch.Insert("people", "a", Row{"name": "A"})
	batch.Insert("people", "b", Row{"name": "B"})

	_, err := b.Get("people", "a")
	assert.True(t, errors.Is(err, ErrNotFound), "writes must not be visible before commit")

	require.NoError(t, batch.Commit())

	rowA, err := b.Get("people", "a")
	require.NoError(t, err)
	assert.Equal(t, "A", rowA["name"])
	rowB, err := b.Get("people", "b")
	require.NoError(t, err)
	assert.Equal(t, "B", rowB["name"])
}

func TestMemoryBackendBatchDiscard(t *testing.T) {
	b := NewMemoryBackend()
	require.NoError(t, b.CreateTable("people", TableOptions{}))

	batch := b.BeginBatch()
	batch.Insert("people", "a", Row{"name": "A"})
	batch.Discard()

	_, err := b.Get("people", "a")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestMemoryBackendRemoveSuperColumn(t *testing.T) {
	b := NewMemoryBackend()
	require.NoError(t, b.CreateTable("adj", TableOptions{Super: true}))
	require.NoError(t, b.InsertSuper("adj", "s", "friend\x1fx", Row{"a": "1"}))
	require.NoError(t, b.RemoveSuper("adj", "s", "friend\x1fx"))
	_, err := b.GetSuper("adj", "s", "friend\x1fx")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestMemoryBackendRemoveSuperColumnsLeavesSiblingColumns(t *testing.T) {
	b := NewMemoryBackend()
	require.NoError(t, b.CreateTable("pair_idx", TableOptions{Super: true}))
	require.NoError(t, b.InsertSuper("pair_idx", "s", "cow", Row{
		"friend\x1fa": "outgoing",
		"enemy\x1fb":  "outgoing",
	}))
	require.NoError(t, b.RemoveSuperColumns("pair_idx", "s", "cow", []string{"friend\x1fa"}))
	row, err := b.GetSuper("pair_idx", "s", "cow")
	require.NoError(t, err)
	assert.NotContains(t, row, "friend\x1fa")
	assert.Contains(t, row, "enemy\x1fb")
}
