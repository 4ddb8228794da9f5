package graph

import (
	"strings"

	"github.com/halvardix/colgraph/pkg/codec"
	"github.com/halvardix/colgraph/pkg/kvstore"
)

// EndpointRef identifies a node by (type, key) without holding a live
// handle to it -- what a Relationship denormalizes about its two ends.
type EndpointRef struct {
	Type string
	Key  string
}

// Relationship is a handle onto a directed, typed, keyed edge (spec
// §3, §4.11). Like Node, it stages attribute writes and is a view onto
// engine-owned state, not an owner.
//
// SourceAttrs/TargetAttrs are the denormalized endpoint attribute
// copies embedded in the adjacency payload (spec §4.3, §4.9) -- reading
// them costs nothing extra because they arrived with the relationship
// in the same slice read.
type Relationship struct {
	engine *Engine

	Type   string
	Key    string
	Source EndpointRef
	Target EndpointRef

	SourceAttrs Attrs
	TargetAttrs Attrs

	committed Attrs
	pending   Attrs
	dirty     bool
	deleted   bool
}

func (r *Relationship) Get(name string) (codec.Value, bool) {
	if v, ok := r.pending[name]; ok {
		return v, true
	}
	v, ok := r.committed[name]
	return v, ok
}

func (r *Relationship) Set(name string, value codec.Value) {
	r.pending[name] = value
	r.dirty = true
}

func (r *Relationship) Attrs() Attrs {
	return r.committed.merge(r.pending)
}

func (r *Relationship) Dirty() bool { return r.dirty }

// Commit persists staged attribute writes by upserting the
// relationship's payload under its existing super-column (spec §4.11).
func (r *Relationship) Commit() error {
	if r.deleted {
		return newUsageError("relationship (%s, %s) was deleted", r.Type, r.Key)
	}
	if !r.dirty {
		return nil
	}
	merged := r.Attrs()
	if err := r.engine.saveRelationshipAttrs(r, merged); err != nil {
		return err
	}
	r.committed = merged
	r.pending = make(Attrs)
	r.dirty = false
	return nil
}

// Delete removes the relationship from both adjacency tables and both
// sides of the pair index (spec §4.6, with the §9 pair-index cleanup
// fix applied).
func (r *Relationship) Delete() error {
	if r.deleted {
		return newRelationshipNotFound(r.Type, r.Key)
	}
	if err := r.engine.deleteRelationship(r); err != nil {
		return err
	}
	r.deleted = true
	return nil
}

// hydrateRelationship builds a Relationship from a raw super-column
// name and its column payload, as returned by GetSlice against either
// adjacency table.
func hydrateRelationship(e *Engine, superColumnName string, row kvstore.Row) (*Relationship, error) {
	relType, relKey, ok := splitSuperColumnName(superColumnName)
	if !ok {
		return nil, newUsageError("malformed super-column name %q", superColumnName)
	}

	attrs, err := decodeAttrsExcluding(row, "rel_type", "rel_key")
	if err != nil {
		return nil, err
	}

	sourceAttrs, targetAttrs, err := splitEndpointAttrs(row)
	if err != nil {
		return nil, err
	}

	return &Relationship{
		engine:      e,
		Type:        relType,
		Key:         relKey,
		Source:      EndpointRef{Type: row[colSourceType], Key: row[colSourceKey]},
		Target:      EndpointRef{Type: row[colTargetType], Key: row[colTargetKey]},
		SourceAttrs: sourceAttrs,
		TargetAttrs: targetAttrs,
		committed:   attrs,
		pending:     make(Attrs),
	}, nil
}

func splitEndpointAttrs(row kvstore.Row) (source, target Attrs, err error) {
	source, target = make(Attrs), make(Attrs)
	for k, v := range row {
		switch {
		case strings.HasPrefix(k, sourcePrefix):
			decoded, decErr := codec.Decode(v)
			if decErr != nil {
				return nil, nil, newCodecError(decErr)
			}
			source[strings.TrimPrefix(k, sourcePrefix)] = decoded
		case strings.HasPrefix(k, targetPrefix):
			decoded, decErr := codec.Decode(v)
			if decErr != nil {
				return nil, nil, newCodecError(decErr)
			}
			target[strings.TrimPrefix(k, targetPrefix)] = decoded
		}
	}
	// source__type / source__key / target__type / target__key are
	// identifiers, not attributes: they never went through prefixedAttrs,
	// but they do share the prefix textually, so the loop above decoded
	// them too. They are stripped here (the Relationship reads them
	// directly from colSourceType etc); an endpoint attribute literally
	// named "type" or "key" is dropped along with them.
	delete(source, "type")
	delete(source, "key")
	delete(target, "type")
	delete(target, "key")
	return source, target, nil
}

// RelFactory is the relationship-type-scoped view the spec calls a
// "factory" (spec §4.11): created by Node.Edges(relType), it offers
// creation, directional listing, iteration, and containment -- the
// explicit-method replacement for the source's dynamic attribute lookup
// (spec §9's design note).
type RelFactory struct {
	node    *Node
	relType string
}

// Create makes a new relType relationship from the factory's node to
// target. If key is empty, a fresh opaque key is generated (spec §4.5
// step 1).
func (f *RelFactory) Create(target *Node, key string, attrs Attrs) (*Relationship, error) {
	return f.node.engine.createRelationship(f.relType, f.node, target, key, attrs)
}

// Outgoing lists relType relationships where the factory's node is the
// source.
func (f *RelFactory) Outgoing() ([]*Relationship, error) {
	return f.node.engine.outgoingEdges(f.node, f.relType)
}

// Incoming lists relType relationships where the factory's node is the
// target.
func (f *RelFactory) Incoming() ([]*Relationship, error) {
	return f.node.engine.incomingEdges(f.node, f.relType)
}

// All yields outgoing relationships followed by incoming ones (spec
// §4.11(b): "iterated to yield outgoing then incoming").
func (f *RelFactory) All() ([]*Relationship, error) {
	out, err := f.Outgoing()
	if err != nil {
		return nil, err
	}
	in, err := f.Incoming()
	if err != nil {
		return nil, err
	}
	return append(out, in...), nil
}

// Len reports len(All()), for callers that just want a count (spec
// §8 scenario 2: "len(spiderpig.friend) == 2").
func (f *RelFactory) Len() (int, error) {
	all, err := f.All()
	if err != nil {
		return 0, err
	}
	return len(all), nil
}

// Contains reports whether at least one relType relationship connects
// the factory's node to otherKey, in either direction (spec §4.11(d)).
func (f *RelFactory) Contains(otherKey string) (bool, error) {
	rels, err := f.node.engine.hasRelationship(f.node.ref(), otherKey, f.relType)
	if err != nil {
		return false, err
	}
	return len(rels) > 0, nil
}

// With returns every relType relationship between the factory's node
// and otherKey, in either direction (spec §4.11(e): relationships_with).
func (f *RelFactory) With(otherKey string) ([]*Relationship, error) {
	return f.node.engine.hasRelationship(f.node.ref(), otherKey, f.relType)
}
