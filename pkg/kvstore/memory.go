package kvstore

import (
	"sort"
	"sync"
)

// MemoryBackend is the in-memory reference implementation of Backend
// (spec §4.1, "In-memory backend"). It gives the graph engine full
// semantics for tests and embedded use without a disk dependency.
//
// Grounded on the teacher's MemoryEngine (pkg/storage/memory.go in the
// retrieval pack): a single RWMutex guarding plain Go maps, with
// defensive copies on every read so callers can't mutate backend state
// through a returned map.
type MemoryBackend struct {
	mu     sync.RWMutex
	tables map[string]*memTable
	closed bool
}

type memTable struct {
	super bool
	rows  map[string]Row
	// super-column family: row -> super-column name -> columns
	superRows map[string]map[string]Row
}

// NewMemoryBackend returns an empty in-memory backend ready for use.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{tables: make(map[string]*memTable)}
}

func (m *MemoryBackend) TableExists(table string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.tables[table]
	return ok
}

func (m *MemoryBackend) CreateTable(table string, opts TableOptions) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if _, ok := m.tables[table]; ok {
		return nil // idempotent create, matches engine's create-on-demand usage
	}
	m.tables[table] = &memTable{
		super:     opts.Super,
		rows:      make(map[string]Row),
		superRows: make(map[string]map[string]Row),
	}
	return nil
}

func (m *MemoryBackend) Get(table, row string) (Row, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	t, ok := m.tables[table]
	if !ok {
		return nil, ErrNoTable
	}
	r, ok := t.rows[row]
	if !ok {
		return nil, ErrNotFound
	}
	return r.Clone(), nil
}

func (m *MemoryBackend) GetSuper(table, row, superColumn string) (Row, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	t, ok := m.tables[table]
	if !ok {
		return nil, ErrNoTable
	}
	cols, ok := t.superRows[row]
	if !ok {
		return nil, ErrNotFound
	}
	sc, ok := cols[superColumn]
	if !ok {
		return nil, ErrNotFound
	}
	return sc.Clone(), nil
}

func (m *MemoryBackend) GetSlice(table, row, colStart, colEnd string, limit int) ([]SuperColumn, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	t, ok := m.tables[table]
	if !ok {
		return nil, ErrNoTable
	}
	cols, ok := t.superRows[row]
	if !ok {
		return nil, nil // absent row slices to empty, not an error (spec §7 read policy)
	}

	names := make([]string, 0, len(cols))
	for name := range cols {
		if name >= colStart && name < colEnd {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	if limit > 0 && len(names) > limit {
		names = names[:limit]
	}

	out := make([]SuperColumn, 0, len(names))
	for _, name := range names {
		out = append(out, SuperColumn{Name: name, Columns: cols[name].Clone()})
	}
	return out, nil
}

func (m *MemoryBackend) Insert(table, row string, columns Row) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertLocked(table, row, columns)
}

func (m *MemoryBackend) insertLocked(table, row string, columns Row) error {
	if m.closed {
		return ErrClosed
	}
	t, ok := m.tables[table]
	if !ok {
		return ErrNoTable
	}
	existing, ok := t.rows[row]
	if !ok {
		existing = make(Row)
	}
	for k, v := range columns {
		existing[k] = v
	}
	t.rows[row] = existing
	return nil
}

func (m *MemoryBackend) InsertSuper(table, row, superColumn string, columns Row) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertSuperLocked(table, row, superColumn, columns)
}

func (m *MemoryBackend) insertSuperLocked(table, row, superColumn string, columns Row) error {
	if m.closed {
		return ErrClosed
	}
	t, ok := m.tables[table]
	if !ok {
		return ErrNoTable
	}
	rowMap, ok := t.superRows[row]
	if !ok {
		rowMap = make(map[string]Row)
		t.superRows[row] = rowMap
	}
	existing, ok := rowMap[superColumn]
	if !ok {
		existing = make(Row)
	}
	for k, v := range columns {
		existing[k] = v
	}
	rowMap[superColumn] = existing
	return nil
}

func (m *MemoryBackend) Remove(table, row string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.removeLocked(table, row)
}

func (m *MemoryBackend) removeLocked(table, row string) error {
	if m.closed {
		return ErrClosed
	}
	t, ok := m.tables[table]
	if !ok {
		return ErrNoTable
	}
	delete(t.rows, row)
	delete(t.superRows, row)
	return nil
}

func (m *MemoryBackend) RemoveSuper(table, row, superColumn string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.removeSuperLocked(table, row, superColumn)
}

func (m *MemoryBackend) removeSuperLocked(table, row, superColumn string) error {
	if m.closed {
		return ErrClosed
	}
	t, ok := m.tables[table]
	if !ok {
		return ErrNoTable
	}
	if cols, ok := t.superRows[row]; ok {
		delete(cols, superColumn)
	}
	return nil
}

func (m *MemoryBackend) RemoveColumns(table, row string, columns []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.removeColumnsLocked(table, row, columns)
}

func (m *MemoryBackend) removeColumnsLocked(table, row string, columns []string) error {
	if m.closed {
		return ErrClosed
	}
	t, ok := m.tables[table]
	if !ok {
		return ErrNoTable
	}
	r, ok := t.rows[row]
	if !ok {
		return nil
	}
	for _, c := range columns {
		delete(r, c)
	}
	return nil
}

func (m *MemoryBackend) RemoveSuperColumns(table, row, superColumn string, columns []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.removeSuperColumnsLocked(table, row, superColumn, columns)
}

func (m *MemoryBackend) removeSuperColumnsLocked(table, row, superColumn string, columns []string) error {
	if m.closed {
		return ErrClosed
	}
	t, ok := m.tables[table]
	if !ok {
		return ErrNoTable
	}
	rowMap, ok := t.superRows[row]
	if !ok {
		return nil
	}
	cols, ok := rowMap[superColumn]
	if !ok {
		return nil
	}
	for _, c := range columns {
		delete(cols, c)
	}
	return nil
}

func (m *MemoryBackend) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// BeginBatch returns a batch that buffers writes and applies them to m
// atomically (under a single lock acquisition) on Commit.
func (m *MemoryBackend) BeginBatch() Batch {
	return &memBatch{backend: m}
}

type memOp struct {
	kind     memOpKind
	table    string
	row      string
	superCol string
	columns  Row
	colNames []string
}

type memOpKind int

const (
	opInsert memOpKind = iota
	opInsertSuper
	opRemove
	opRemoveSuper
	opRemoveColumns
	opRemoveSuperColumns
)

type memBatch struct {
	backend   *MemoryBackend
	ops       []memOp
	committed bool
}

func (b *memBatch) Insert(table, row string, columns Row) {
	b.ops = append(b.ops, memOp{kind: opInsert, table: table, row: row, columns: columns})
}

func (b *memBatch) InsertSuper(table, row, superColumn string, columns Row) {
	b.ops = append(b.ops, memOp{kind: opInsertSuper, table: table, row: row, superCol: superColumn, columns: columns})
}

func (b *memBatch) Remove(table, row string) {
	b.ops = append(b.ops, memOp{kind: opRemove, table: table, row: row})
}

func (b *memBatch) RemoveSuper(table, row, superColumn string) {
	b.ops = append(b.ops, memOp{kind: opRemoveSuper, table: table, row: row, superCol: superColumn})
}

func (b *memBatch) RemoveColumns(table, row string, columns []string) {
	b.ops = append(b.ops, memOp{kind: opRemoveColumns, table: table, row: row, colNames: columns})
}

func (b *memBatch) RemoveSuperColumns(table, row, superColumn string, columns []string) {
	b.ops = append(b.ops, memOp{kind: opRemoveSuperColumns, table: table, row: row, superCol: superColumn, colNames: columns})
}

func (b *memBatch) Commit() error {
	if b.committed {
		return ErrBatchClosed
	}
	b.committed = true

	b.backend.mu.Lock()
	defer b.backend.mu.Unlock()

	for _, op := range b.ops {
		var err error
		switch op.kind {
		case opInsert:
			err = b.backend.insertLocked(op.table, op.row, op.columns)
		case opInsertSuper:
			err = b.backend.insertSuperLocked(op.table, op.row, op.superCol, op.columns)
		case opRemove:
			err = b.backend.removeLocked(op.table, op.row)
		case opRemoveSuper:
			err = b.backend.removeSuperLocked(op.table, op.row, op.superCol)
		case opRemoveColumns:
			err = b.backend.removeColumnsLocked(op.table, op.row, op.colNames)
		case opRemoveSuperColumns:
			err = b.backend.removeSuperColumnsLocked(op.table, op.row, op.superCol, op.colNames)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (b *memBatch) Discard() {
	b.committed = true
	b.ops = nil
}
