package graph

import "github.com/halvardix/colgraph/pkg/codec"

// Node is a handle onto a (type, key) vertex. It is a view, not an
// owner: all state lives in the engine's tables, and the handle only
// holds an identifier plus a staged attribute buffer (spec §4.11, §9's
// "explicit staging struct" design note).
type Node struct {
	engine *Engine

	Type string
	Key  string

	committed Attrs
	pending   Attrs
	dirty     bool
	deleted   bool
}

func newNode(e *Engine, nodeType, key string, committed Attrs) *Node {
	if committed == nil {
		committed = make(Attrs)
	}
	return &Node{engine: e, Type: nodeType, Key: key, committed: committed, pending: make(Attrs)}
}

// Get reads an attribute, consulting the pending (uncommitted) write
// first, then the last-loaded committed value.
func (n *Node) Get(name string) (codec.Value, bool) {
	if v, ok := n.pending[name]; ok {
		return v, true
	}
	v, ok := n.committed[name]
	return v, ok
}

// Set stages an attribute write. Call Commit to persist it.
func (n *Node) Set(name string, value codec.Value) {
	n.pending[name] = value
	n.dirty = true
}

// Attrs returns the node's full current view: committed values
// overlaid with any pending writes.
func (n *Node) Attrs() Attrs {
	return n.committed.merge(n.pending)
}

// Dirty reports whether any attribute has been staged since the last
// Commit.
func (n *Node) Dirty() bool { return n.dirty }

// Commit persists staged attribute writes and refreshes every
// adjacency entry that embeds this node's attributes (spec §4.9).
// A no-op if nothing is dirty.
func (n *Node) Commit() error {
	if n.deleted {
		return newUsageError("node (%s, %s) was deleted", n.Type, n.Key)
	}
	if !n.dirty {
		return nil
	}
	merged := n.Attrs()
	if err := n.engine.saveNode(n.Type, n.Key, merged); err != nil {
		return err
	}
	n.committed = merged
	n.pending = make(Attrs)
	n.dirty = false
	return nil
}

// Delete removes the node and every relationship touching it (spec
// §4.8), including the adjacency entries and pair-index markers on the
// far side of each edge.
func (n *Node) Delete() error {
	if n.deleted {
		return newNodeNotFound(n.Type, n.Key)
	}
	if err := n.engine.deleteNode(n.Type, n.Key); err != nil {
		return err
	}
	n.deleted = true
	return nil
}

// Edges returns the relationship factory for relType rooted at this
// node (spec §4.11).
func (n *Node) Edges(relType string) *RelFactory {
	return &RelFactory{node: n, relType: relType}
}

func (n *Node) ref() EndpointRef { return EndpointRef{Type: n.Type, Key: n.Key} }
