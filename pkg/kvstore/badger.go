package kvstore

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/dgraph-io/badger/v4"
)

// Key layout, generalized from the teacher's byte-prefixed index keys
// (pkg/storage/badger.go in the retrieval pack used single-byte prefixes
// for its fixed node/edge/label-index families; here the families
// themselves are caller-defined tables, so the prefix byte picks the
// *kind* of row — plain or super — and the table name is part of the
// key rather than baked into a prefix constant):
//
//	meta table entry:   0x00 <table>        -> "0" | "1"  (super flag)
//	plain row column:   0x01 <table> 0x00 <row>        0x00 <column>
//	super row column:   0x02 <table> 0x00 <row> 0x00 <superCol> 0x00 <column>
//
// 0x00 never appears inside a row or super-column name written by the
// graph engine: it rejects the NUL byte in every caller-supplied type,
// key, and rel_type before it ever reaches here (see graph.validateName).
// Column names are not checked, but a column is always the last part of
// a key, so everything after its separator is read back as the column.
const (
	kindMeta  = byte(0x00)
	kindPlain = byte(0x01)
	kindSuper = byte(0x02)
)

func metaKey(table string) []byte {
	return append([]byte{kindMeta}, []byte(table)...)
}

func plainKey(table, row, column string) []byte {
	var buf bytes.Buffer
	buf.WriteByte(kindPlain)
	buf.WriteString(table)
	buf.WriteByte(0)
	buf.WriteString(row)
	buf.WriteByte(0)
	buf.WriteString(column)
	return buf.Bytes()
}

func plainRowPrefix(table, row string) []byte {
	var buf bytes.Buffer
	buf.WriteByte(kindPlain)
	buf.WriteString(table)
	buf.WriteByte(0)
	buf.WriteString(row)
	buf.WriteByte(0)
	return buf.Bytes()
}

func superKey(table, row, superCol, column string) []byte {
	var buf bytes.Buffer
	buf.WriteByte(kindSuper)
	buf.WriteString(table)
	buf.WriteByte(0)
	buf.WriteString(row)
	buf.WriteByte(0)
	buf.WriteString(superCol)
	buf.WriteByte(0)
	buf.WriteString(column)
	return buf.Bytes()
}

func superColPrefix(table, row, superCol string) []byte {
	var buf bytes.Buffer
	buf.WriteByte(kindSuper)
	buf.WriteString(table)
	buf.WriteByte(0)
	buf.WriteString(row)
	buf.WriteByte(0)
	buf.WriteString(superCol)
	buf.WriteByte(0)
	return buf.Bytes()
}

func superRowPrefix(table, row string) []byte {
	var buf bytes.Buffer
	buf.WriteByte(kindSuper)
	buf.WriteString(table)
	buf.WriteByte(0)
	buf.WriteString(row)
	buf.WriteByte(0)
	return buf.Bytes()
}

// splitSuperRowKey extracts (superCol, column) from a key produced by
// superKey, given the already-known rowPrefix length.
func splitSuperRowKey(key []byte, rowPrefixLen int) (superCol, column string) {
	rest := key[rowPrefixLen:]
	i := bytes.IndexByte(rest, 0)
	if i < 0 {
		return string(rest), ""
	}
	return string(rest[:i]), string(rest[i+1:])
}

// BadgerEngine is the durable backend adapter (spec §4.1/§6), translating
// the generic wide-column contract onto BadgerDB transactions.
//
// Grounded on the teacher's BadgerEngine (pkg/storage/badger.go): the
// same db.View/db.Update closure-scoped transaction idiom, the same
// byte-prefixed composite keys, and the same "table registry" concept as
// the per-backend table-handle cache called out in spec §5.
type BadgerEngine struct {
	db *badger.DB

	mu     sync.RWMutex
	tables map[string]TableOptions
	closed bool
}

// BadgerOptions configures the durable backend.
type BadgerOptions struct {
	// DataDir is where BadgerDB stores its files. Required unless
	// InMemory is set.
	DataDir string
	// InMemory runs BadgerDB in memory-only mode (used by tests that
	// want Badger's exact on-disk encoding paths without touching disk).
	InMemory bool
	// SyncWrites forces fsync after each write. Slower, more durable.
	SyncWrites bool
}

// NewBadgerEngine opens (or creates) a durable backend at dataDir.
func NewBadgerEngine(dataDir string) (*BadgerEngine, error) {
	return NewBadgerEngineWithOptions(BadgerOptions{DataDir: dataDir})
}

// NewBadgerEngineWithOptions opens a durable backend with explicit options.
func NewBadgerEngineWithOptions(opts BadgerOptions) (*BadgerEngine, error) {
	badgerOpts := badger.DefaultOptions(opts.DataDir)
	badgerOpts = badgerOpts.WithLogger(nil)
	if opts.InMemory {
		badgerOpts = badgerOpts.WithInMemory(true)
	}
	badgerOpts = badgerOpts.WithSyncWrites(opts.SyncWrites)

	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("kvstore: opening badger at %q: %w", opts.DataDir, err)
	}

	b := &BadgerEngine{db: db, tables: make(map[string]TableOptions)}
	if err := b.loadTableRegistry(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return b, nil
}

func (b *BadgerEngine) loadTableRegistry() error {
	return b.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte{kindMeta}
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := it.Item().Key()
			name := string(key[1:])
			err := it.Item().Value(func(val []byte) error {
				b.tables[name] = TableOptions{Super: len(val) > 0 && val[0] == '1'}
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
}

func (b *BadgerEngine) TableExists(table string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.tables[table]
	return ok
}

func (b *BadgerEngine) CreateTable(table string, opts TableOptions) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	if _, ok := b.tables[table]; ok {
		return nil
	}
	flag := []byte("0")
	if opts.Super {
		flag = []byte("1")
	}
	if err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(metaKey(table), flag)
	}); err != nil {
		return fmt.Errorf("kvstore: creating table %q: %w", table, err)
	}
	b.tables[table] = opts
	return nil
}

func (b *BadgerEngine) checkTable(table string) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrClosed
	}
	if _, ok := b.tables[table]; !ok {
		return ErrNoTable
	}
	return nil
}

func (b *BadgerEngine) Get(table, row string) (Row, error) {
	if err := b.checkTable(table); err != nil {
		return nil, err
	}
	out := make(Row)
	err := b.db.View(func(txn *badger.Txn) error {
		prefix := plainRowPrefix(table, row)
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			column := string(it.Item().Key()[len(prefix):])
			err := it.Item().Value(func(val []byte) error {
				out[column] = string(val)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, ErrNotFound
	}
	return out, nil
}

func (b *BadgerEngine) GetSuper(table, row, superColumn string) (Row, error) {
	if err := b.checkTable(table); err != nil {
		return nil, err
	}
	out := make(Row)
	err := b.db.View(func(txn *badger.Txn) error {
		prefix := superColPrefix(table, row, superColumn)
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			column := string(it.Item().Key()[len(prefix):])
			err := it.Item().Value(func(val []byte) error {
				out[column] = string(val)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, ErrNotFound
	}
	return out, nil
}

func (b *BadgerEngine) GetSlice(table, row, colStart, colEnd string, limit int) ([]SuperColumn, error) {
	if err := b.checkTable(table); err != nil {
		return nil, err
	}
	var result []SuperColumn
	err := b.db.View(func(txn *badger.Txn) error {
		rowPrefix := superRowPrefix(table, row)
		seekFrom := superRowPrefix(table, row)
		seekFrom = append(seekFrom, []byte(colStart)...)

		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		var current string
		var currentCols Row
		flush := func() {
			if currentCols != nil {
				result = append(result, SuperColumn{Name: current, Columns: currentCols})
			}
		}

		for it.Seek(seekFrom); it.ValidForPrefix(rowPrefix); it.Next() {
			key := it.Item().Key()
			superCol, column := splitSuperRowKey(key, len(rowPrefix))
			if superCol < colStart {
				continue
			}
			if superCol >= colEnd {
				break
			}
			if superCol != current {
				flush()
				if limit > 0 && len(result) >= limit {
					current, currentCols = "", nil
					return nil
				}
				current = superCol
				currentCols = make(Row)
			}
			err := it.Item().Value(func(val []byte) error {
				currentCols[column] = string(val)
				return nil
			})
			if err != nil {
				return err
			}
		}
		flush()
		return nil
	})
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (b *BadgerEngine) Insert(table, row string, columns Row) error {
	if err := b.checkTable(table); err != nil {
		return err
	}
	return b.db.Update(func(txn *badger.Txn) error {
		return insertPlainTxn(txn, table, row, columns)
	})
}

func insertPlainTxn(txn *badger.Txn, table, row string, columns Row) error {
	for col, val := range columns {
		if err := txn.Set(plainKey(table, row, col), []byte(val)); err != nil {
			return err
		}
	}
	return nil
}

func (b *BadgerEngine) InsertSuper(table, row, superColumn string, columns Row) error {
	if err := b.checkTable(table); err != nil {
		return err
	}
	return b.db.Update(func(txn *badger.Txn) error {
		return insertSuperTxn(txn, table, row, superColumn, columns)
	})
}

func insertSuperTxn(txn *badger.Txn, table, row, superColumn string, columns Row) error {
	for col, val := range columns {
		if err := txn.Set(superKey(table, row, superColumn, col), []byte(val)); err != nil {
			return err
		}
	}
	return nil
}

func (b *BadgerEngine) Remove(table, row string) error {
	if err := b.checkTable(table); err != nil {
		return err
	}
	return b.db.Update(func(txn *badger.Txn) error {
		if err := deletePrefixTxn(txn, plainRowPrefix(table, row)); err != nil {
			return err
		}
		return deletePrefixTxn(txn, superRowPrefix(table, row))
	})
}

func (b *BadgerEngine) RemoveSuper(table, row, superColumn string) error {
	if err := b.checkTable(table); err != nil {
		return err
	}
	return b.db.Update(func(txn *badger.Txn) error {
		return deletePrefixTxn(txn, superColPrefix(table, row, superColumn))
	})
}

func (b *BadgerEngine) RemoveColumns(table, row string, columns []string) error {
	if err := b.checkTable(table); err != nil {
		return err
	}
	return b.db.Update(func(txn *badger.Txn) error {
		for _, col := range columns {
			if err := txn.Delete(plainKey(table, row, col)); err != nil && err != badger.ErrKeyNotFound {
				return err
			}
		}
		return nil
	})
}

func (b *BadgerEngine) RemoveSuperColumns(table, row, superColumn string, columns []string) error {
	if err := b.checkTable(table); err != nil {
		return err
	}
	return b.db.Update(func(txn *badger.Txn) error {
		return removeSuperColumnsTxn(txn, table, row, superColumn, columns)
	})
}

func removeSuperColumnsTxn(txn *badger.Txn, table, row, superColumn string, columns []string) error {
	for _, col := range columns {
		if err := txn.Delete(superKey(table, row, superColumn, col)); err != nil && err != badger.ErrKeyNotFound {
			return err
		}
	}
	return nil
}

func deletePrefixTxn(txn *badger.Txn, prefix []byte) error {
	it := txn.NewIterator(badger.IteratorOptions{PrefetchValues: false})
	defer it.Close()
	var keys [][]byte
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		k := it.Item().KeyCopy(nil)
		keys = append(keys, k)
	}
	for _, k := range keys {
		if err := txn.Delete(k); err != nil {
			return err
		}
	}
	return nil
}

func (b *BadgerEngine) Close() error {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	return b.db.Close()
}

// BeginBatch opens a new write batch backed by a single Badger
// transaction, committed in one call exactly like the teacher's
// db.Update closures -- except the transaction is held open across
// several queued operations instead of one closure (spec §5 requires
// the batch to span multiple logical engine calls before committing).
func (b *BadgerEngine) BeginBatch() Batch {
	return &badgerBatch{engine: b, txn: b.db.NewTransaction(true)}
}

type badgerOp struct {
	apply func(txn *badger.Txn) error
}

type badgerBatch struct {
	engine    *BadgerEngine
	txn       *badger.Txn
	ops       []badgerOp
	committed bool
}

func (bb *badgerBatch) Insert(table, row string, columns Row) {
	bb.ops = append(bb.ops, badgerOp{func(txn *badger.Txn) error {
		return insertPlainTxn(txn, table, row, columns)
	}})
}

func (bb *badgerBatch) InsertSuper(table, row, superColumn string, columns Row) {
	bb.ops = append(bb.ops, badgerOp{func(txn *badger.Txn) error {
		return insertSuperTxn(txn, table, row, superColumn, columns)
	}})
}

func (bb *badgerBatch) Remove(table, row string) {
	bb.ops = append(bb.ops, badgerOp{func(txn *badger.Txn) error {
		if err := deletePrefixTxn(txn, plainRowPrefix(table, row)); err != nil {
			return err
		}
		return deletePrefixTxn(txn, superRowPrefix(table, row))
	}})
}

func (bb *badgerBatch) RemoveSuper(table, row, superColumn string) {
	bb.ops = append(bb.ops, badgerOp{func(txn *badger.Txn) error {
		return deletePrefixTxn(txn, superColPrefix(table, row, superColumn))
	}})
}

func (bb *badgerBatch) RemoveColumns(table, row string, columns []string) {
	bb.ops = append(bb.ops, badgerOp{func(txn *badger.Txn) error {
		for _, col := range columns {
			if err := txn.Delete(plainKey(table, row, col)); err != nil && err != badger.ErrKeyNotFound {
				return err
			}
		}
		return nil
	}})
}

func (bb *badgerBatch) RemoveSuperColumns(table, row, superColumn string, columns []string) {
	bb.ops = append(bb.ops, badgerOp{func(txn *badger.Txn) error {
		return removeSuperColumnsTxn(txn, table, row, superColumn, columns)
	}})
}

// Commit applies every queued op inside the batch's single Badger
// transaction and commits it. A transaction-too-large error (Badger
// caps per-txn size) surfaces to the caller unchanged, per spec §7's
// propagation policy for write errors.
func (bb *badgerBatch) Commit() error {
	if bb.committed {
		return ErrBatchClosed
	}
	bb.committed = true
	defer bb.txn.Discard()

	for _, op := range bb.ops {
		if err := op.apply(bb.txn); err != nil {
			return err
		}
	}
	return bb.txn.Commit()
}

func (bb *badgerBatch) Discard() {
	if bb.committed {
		return
	}
	bb.committed = true
	bb.txn.Discard()
}
