package kvstore

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBadger(t *testing.T) *BadgerEngine {
	t.Helper()
	b, err := NewBadgerEngineWithOptions(BadgerOptions{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func TestBadgerEnginePlainRowCRUD(t *testing.T) {
	b := newTestBadger(t)
	require.NoError(t, b.CreateTable("people", TableOptions{}))

	_, err := b.Get("people", "alice")
	assert.True(t, errors.Is(err, ErrNotFound))

	require.NoError(t, b.Insert("people", "alice", Row{"name": "Alice"}))
	row, err := b.Get("people", "alice")
	require.NoError(t, err)
	assert.Equal(t, "Alice", row["name"])

	require.NoError(t, b.Remove("people", "alice"))
	_, err = b.Get("people", "alice")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestBadgerEngineSuperColumnSliceOrdering(t *testing.T) {
	b := newTestBadger(t)
	require.NoError(t, b.CreateTable("adj", TableOptions{Super: true}))

	require.NoError(t, b.InsertSuper("adj", "spiderpig", "friend\x1fcow", Row{"target__key": "cow"}))
	require.NoError(t, b.InsertSuper("adj", "spiderpig", "friend\x1floves", Row{"target__key": "homer"}))
	require.NoError(t, b.InsertSuper("adj", "spiderpig", "enemy\x1fshrek", Row{"target__key": "shrek"}))

	slice, err := b.GetSlice("adj", "spiderpig", "friend\x1f", "friend\x20", 0)
	require.NoError(t, err)
	require.Len(t, slice, 2)
	assert.Equal(t, "friend\x1fcow", slice[0].Name)
	assert.Equal(t, "friend\x1floves", slice[1].Name)
	assert.Equal(t, "cow", slice[0].Columns["target__key"])
}

func TestBadgerEngineBatchAtomicity(t *testing.T) {
	b := newTestBadger(t)
	require.NoError(t, b.CreateTable("people", TableOptions{}))

	batch := b.BeginBatch()
	batch.Insert("people", "a", Row{"name": "A"})
	batch.Insert("people", "b", Row{"name": "B"})

	_, err := b.Get("people", "a")
	assert.True(t, errors.Is(err, ErrNotFound))

	require.NoError(t, batch.Commit())

	rowA, err := b.Get("people", "a")
	require.NoError(t, err)
	assert.Equal(t, "A", rowA["name"])
}

func TestBadgerEngineBatchDiscard(t *testing.T) {
	b := newTestBadger(t)
	require.NoError(t, b.CreateTable("people", TableOptions{}))

	batch := b.BeginBatch()
	batch.Insert("people", "a", Row{"name": "A"})
	batch.Discard()

	_, err := b.Get("people", "a")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestBadgerEngineTableExistsAfterCreate(t *testing.T) {
	b := newTestBadger(t)
	require.NoError(t, b.CreateTable("people", TableOptions{}))
	assert.True(t, b.TableExists("people"))
	assert.False(t, b.TableExists("nope"))
}
