package graph

import "github.com/halvardix/colgraph/pkg/kvstore"

// BatchScope groups every write the engine makes between Begin and
// Commit/Discard into one backend-level batch (spec §5). Batches do not
// nest: opening a second scope while one is already open is a
// programmer error, reported as ErrUsage rather than silently reused.
type BatchScope struct {
	engine *Engine
	batch  kvstore.Batch
	done   bool
}

// Begin opens a batch scope on the engine. Every CreateNode,
// node.Commit, node.Delete, relationship create/commit/delete, and
// reference-node lookup issued through this Engine while the scope is
// open buffers its writes into the same backend batch, applied together
// on Commit (spec §5: "reads are never batched, only writes").
func (e *Engine) Begin() (*BatchScope, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.batch != nil {
		return nil, newUsageError("a batch is already open on this engine; batches do not nest")
	}
	b := e.backend.BeginBatch()
	e.batch = b
	return &BatchScope{engine: e, batch: b}, nil
}

// Commit applies every buffered write and closes the scope.
func (s *BatchScope) Commit() error {
	if s.done {
		return newUsageError("batch already closed")
	}
	s.done = true
	s.engine.mu.Lock()
	s.engine.batch = nil
	s.engine.mu.Unlock()
	return s.batch.Commit()
}

// Discard abandons every buffered write and closes the scope.
func (s *BatchScope) Discard() {
	if s.done {
		return
	}
	s.done = true
	s.engine.mu.Lock()
	s.engine.batch = nil
	s.engine.mu.Unlock()
	s.batch.Discard()
}

// WithBatch runs fn inside a batch scope, committing on a nil return
// and discarding otherwise -- the common case where the caller has no
// reason to hold the scope open past a single logical unit of work.
func (e *Engine) WithBatch(fn func() error) error {
	scope, err := e.Begin()
	if err != nil {
		return err
	}
	if err := fn(); err != nil {
		scope.Discard()
		return err
	}
	return scope.Commit()
}
