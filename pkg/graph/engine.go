// Package graph implements the index-and-mutation core of a
// property-graph database layered on the wide-column contract defined
// by pkg/kvstore: typed nodes with attribute maps, directed typed keyed
// relationships, and the adjacency/pair-index bookkeeping that makes
// traversal and existence queries cheap without scanning (spec §1-§4).
package graph

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/halvardix/colgraph/pkg/codec"
	"github.com/halvardix/colgraph/pkg/kvstore"
)

// Engine owns the backend handle and all table/row state (spec §3
// "Ownership"). Node and Relationship handles hold only an identifier
// and a reference back to the Engine.
//
// Grounded on the teacher's BadgerEngine/MemoryEngine method bodies
// (pkg/storage/badger.go, pkg/storage/memory.go in the retrieval pack)
// for the read-modify-write shape of each operation, pushed down one
// layer of abstraction: those engines owned node/edge semantics
// directly against raw keys, where this Engine composes the same shape
// of operations against the generic kvstore.Backend contract.
type Engine struct {
	keyspace string
	backend  kvstore.Backend

	mu    sync.Mutex
	batch kvstore.Batch // non-nil while a caller-opened BatchScope is live
}

// New constructs a graph engine over backend, scoped to keyspace (spec
// §6: "Construct engine from (keyspace_name, backend)"). An empty
// keyspace is valid and means "no prefix" -- useful when the backend is
// dedicated to a single graph, as the in-memory backend usually is in
// tests.
func New(keyspace string, backend kvstore.Backend) (*Engine, error) {
	e := &Engine{keyspace: keyspace, backend: backend}
	if err := e.ensureTable(tableOutbound, kvstore.TableOptions{Super: true}); err != nil {
		return nil, err
	}
	if err := e.ensureTable(tableInbound, kvstore.TableOptions{Super: true}); err != nil {
		return nil, err
	}
	if err := e.ensureTable(tablePairIndex, kvstore.TableOptions{Super: true}); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *Engine) qualify(table string) string {
	if e.keyspace == "" {
		return table
	}
	return e.keyspace + ":" + table
}

func (e *Engine) ensureTable(table string, opts kvstore.TableOptions) error {
	qualified := e.qualify(table)
	if e.backend.TableExists(qualified) {
		return nil
	}
	return e.backend.CreateTable(qualified, opts)
}

// begin returns a writer for one logical engine operation: the caller's
// already-open BatchScope if one exists, otherwise a fresh ad hoc batch
// that finish() will commit. This is how a single operation (e.g.
// createRelationship) can compose several table writes atomically on
// its own, while also joining a scope opened with Engine.Begin (spec §5).
func (e *Engine) begin() (b kvstore.Batch, owned bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.batch != nil {
		return e.batch, false
	}
	return e.backend.BeginBatch(), true
}

func (e *Engine) finish(b kvstore.Batch, owned bool) error {
	if !owned {
		return nil
	}
	return b.Commit()
}

func (e *Engine) abort(b kvstore.Batch, owned bool) {
	if owned {
		b.Discard()
	}
}

// ---------------------------------------------------------------------
// Node lifecycle (spec §4.7, §4.8, §4.9)
// ---------------------------------------------------------------------

// CreateNode creates a node of the given type and key, with optional
// initial attributes, and -- unless the node is itself a reference node
// -- wires it into its type's reference-node instance list (spec §4.7).
func (e *Engine) CreateNode(nodeType, key string, attrs Attrs) (*Node, error) {
	if err := validateName("node type", nodeType); err != nil {
		return nil, err
	}
	if err := validateName("node key", key); err != nil {
		return nil, err
	}
	if attrs == nil {
		attrs = make(Attrs)
	}

	table := e.qualify(nodeTableName(nodeType))
	if err := e.ensureTable(nodeTableName(nodeType), kvstore.TableOptions{}); err != nil {
		return nil, err
	}

	if _, err := e.backend.Get(table, key); err == nil {
		return nil, newAlreadyExistsError(nodeType, key)
	}

	row, err := encodeAttrs(attrs)
	if err != nil {
		return nil, err
	}
	b, owned := e.begin()
	b.Insert(table, key, row)
	if err := e.finish(b, owned); err != nil {
		e.abort(b, owned)
		return nil, err
	}

	node := newNode(e, nodeType, key, attrs.Clone())

	if nodeType != TypeReference {
		ref, err := e.GetReferenceNode(nodeType)
		if err != nil {
			return nil, err
		}
		if _, err := e.createRelationship(RelInstance, ref, node, key, make(Attrs)); err != nil {
			return nil, err
		}
	}

	return node, nil
}

func newAlreadyExistsError(nodeType, key string) error {
	return fmt.Errorf("%w: node (%s, %s)", ErrAlreadyExists, nodeType, key)
}

// GetNode loads a node handle by (type, key).
func (e *Engine) GetNode(nodeType, key string) (*Node, error) {
	if err := validateName("node type", nodeType); err != nil {
		return nil, err
	}
	if err := validateName("node key", key); err != nil {
		return nil, err
	}

	table := e.qualify(nodeTableName(nodeType))
	if !e.backend.TableExists(table) {
		return nil, newNodeNotFound(nodeType, key)
	}
	row, err := e.backend.Get(table, key)
	if err != nil {
		if err == kvstore.ErrNotFound {
			return nil, newNodeNotFound(nodeType, key)
		}
		return nil, err
	}
	attrs, err := decodeAttrs(row)
	if err != nil {
		return nil, err
	}
	return newNode(e, nodeType, key, attrs), nil
}

// GetReferenceNode returns, creating on first miss, the reference node
// that indexes every node of type name (spec §4.7).
func (e *Engine) GetReferenceNode(name string) (*Node, error) {
	node, err := e.GetNode(TypeReference, name)
	if err == nil {
		return node, nil
	}
	if !errors.Is(err, ErrNodeNotFound) {
		return nil, err
	}

	created, err := e.CreateNode(TypeReference, name, Attrs{attrReferenceMarker: codec.String("reference")})
	if err != nil {
		// Lost a race with another caller creating the same reference
		// node; re-fetch rather than fail (spec §5 notes the engine
		// isn't internally reentrant, but this keeps GetReferenceNode
		// idempotent under external synchronization too).
		if errors.Is(err, ErrAlreadyExists) {
			return e.GetNode(TypeReference, name)
		}
		return nil, err
	}
	return created, nil
}

// SaveNode persists a node's current attribute set and refreshes every
// adjacency entry that embeds it (spec §4.9). Equivalent to node.Commit().
func (e *Engine) SaveNode(node *Node) error {
	return node.Commit()
}

func (e *Engine) saveNode(nodeType, key string, attrs Attrs) error {
	table := e.qualify(nodeTableName(nodeType))
	row, err := encodeAttrs(attrs)
	if err != nil {
		return err
	}
	if err := e.backend.Insert(table, key, row); err != nil {
		return err
	}

	selfKey := endpointKey(nodeType, key)
	sourceFields, err := prefixedAttrs(sourcePrefix, attrs)
	if err != nil {
		return err
	}
	targetFields, err := prefixedAttrs(targetPrefix, attrs)
	if err != nil {
		return err
	}

	b, owned := e.begin()
	b.Insert(table, key, row)

	// This node is the source of these edges: refresh source__* on both
	// sides (spec §4.9 step 1).
	outCols, err := e.backend.GetSlice(e.qualify(tableOutbound), selfKey, "", allColumnsUpperBound, 0)
	if err != nil {
		e.abort(b, owned)
		return err
	}
	for _, sc := range outCols {
		b.InsertSuper(e.qualify(tableOutbound), selfKey, sc.Name, sourceFields)
		targetEndpoint := endpointKey(sc.Columns[colTargetType], sc.Columns[colTargetKey])
		b.InsertSuper(e.qualify(tableInbound), targetEndpoint, sc.Name, sourceFields)
	}

	// This node is the target of these edges: refresh target__* on both
	// sides (spec §4.9 step 2).
	inCols, err := e.backend.GetSlice(e.qualify(tableInbound), selfKey, "", allColumnsUpperBound, 0)
	if err != nil {
		e.abort(b, owned)
		return err
	}
	for _, sc := range inCols {
		b.InsertSuper(e.qualify(tableInbound), selfKey, sc.Name, targetFields)
		sourceEndpoint := endpointKey(sc.Columns[colSourceType], sc.Columns[colSourceKey])
		b.InsertSuper(e.qualify(tableOutbound), sourceEndpoint, sc.Name, targetFields)
	}

	return e.finish(b, owned)
}

// deleteNode removes a node's own row, its outbound/inbound adjacency
// rows, every neighbor's adjacency entry pointing back at it, and both
// sides of the pair index for every relationship it touched (spec §4.8,
// with the §9 pair-index cleanup applied).
func (e *Engine) deleteNode(nodeType, key string) error {
	table := e.qualify(nodeTableName(nodeType))
	if !e.backend.TableExists(table) {
		return newNodeNotFound(nodeType, key)
	}
	if _, err := e.backend.Get(table, key); err != nil {
		if err == kvstore.ErrNotFound {
			return newNodeNotFound(nodeType, key)
		}
		return err
	}

	selfKey := endpointKey(nodeType, key)

	outCols, err := e.backend.GetSlice(e.qualify(tableOutbound), selfKey, "", allColumnsUpperBound, 0)
	if err != nil {
		return err
	}
	inCols, err := e.backend.GetSlice(e.qualify(tableInbound), selfKey, "", allColumnsUpperBound, 0)
	if err != nil {
		return err
	}

	b, owned := e.begin()

	// Every other endpoint's pair-index row carries a super-column named
	// after this node's bare key (spec §4.3's pair-index layout,
	// symmetric regardless of which side was source or target); deleting
	// that whole super-column removes every marker this node had there.
	otherEndpoints := make(map[string]struct{})

	for _, sc := range outCols {
		targetEndpoint := endpointKey(sc.Columns[colTargetType], sc.Columns[colTargetKey])
		b.RemoveSuper(e.qualify(tableInbound), targetEndpoint, sc.Name)
		otherEndpoints[targetEndpoint] = struct{}{}
	}
	for _, sc := range inCols {
		sourceEndpoint := endpointKey(sc.Columns[colSourceType], sc.Columns[colSourceKey])
		b.RemoveSuper(e.qualify(tableOutbound), sourceEndpoint, sc.Name)
		otherEndpoints[sourceEndpoint] = struct{}{}
	}

	b.Remove(e.qualify(tableOutbound), selfKey)
	b.Remove(e.qualify(tableInbound), selfKey)
	b.Remove(e.qualify(tablePairIndex), selfKey)
	for otherEndpoint := range otherEndpoints {
		b.RemoveSuper(e.qualify(tablePairIndex), otherEndpoint, key)
	}

	b.Remove(table, key)

	if err := e.finish(b, owned); err != nil {
		e.abort(b, owned)
		return err
	}
	return nil
}

// ---------------------------------------------------------------------
// Relationship lifecycle (spec §4.5, §4.6, §4.10)
// ---------------------------------------------------------------------

func (e *Engine) createRelationship(relType string, source, target *Node, relKey string, attrs Attrs) (*Relationship, error) {
	if err := validateName("relationship type", relType); err != nil {
		return nil, err
	}
	if attrs == nil {
		attrs = make(Attrs)
	}
	for name := range attrs {
		if err := validateAttrName(name); err != nil {
			return nil, err
		}
	}
	if relKey == "" {
		relKey = uuid.NewString()
	}
	if err := validateName("relationship key", relKey); err != nil {
		return nil, err
	}

	payload, err := e.buildRelationshipPayload(relType, relKey, source, target, attrs)
	if err != nil {
		return nil, err
	}

	superCol := superColumnName(relType, relKey)
	sourceEndpoint := endpointKey(source.Type, source.Key)
	targetEndpoint := endpointKey(target.Type, target.Key)

	b, owned := e.begin()

	b.InsertSuper(e.qualify(tableOutbound), sourceEndpoint, superCol, payload)
	b.InsertSuper(e.qualify(tableInbound), targetEndpoint, superCol, payload)
	b.InsertSuper(e.qualify(tablePairIndex), sourceEndpoint, target.Key, kvstore.Row{superCol: "outgoing"})
	b.InsertSuper(e.qualify(tablePairIndex), targetEndpoint, source.Key, kvstore.Row{superCol: "incoming"})

	if err := e.finish(b, owned); err != nil {
		e.abort(b, owned)
		return nil, err
	}

	rel, err := hydrateRelationship(e, superCol, payload)
	if err != nil {
		return nil, err
	}
	return rel, nil
}

func (e *Engine) buildRelationshipPayload(relType, relKey string, source, target *Node, attrs Attrs) (kvstore.Row, error) {
	row := kvstore.Row{
		"rel_type":   relType,
		"rel_key":    relKey,
		colSourceType: source.Type,
		colSourceKey:  source.Key,
		colTargetType: target.Type,
		colTargetKey:  target.Key,
	}

	encodedAttrs, err := encodeAttrs(attrs)
	if err != nil {
		return nil, err
	}
	for k, v := range encodedAttrs {
		row[k] = v
	}

	sourceFields, err := prefixedAttrs(sourcePrefix, source.Attrs())
	if err != nil {
		return nil, err
	}
	for k, v := range sourceFields {
		row[k] = v
	}

	targetFields, err := prefixedAttrs(targetPrefix, target.Attrs())
	if err != nil {
		return nil, err
	}
	for k, v := range targetFields {
		row[k] = v
	}

	return row, nil
}

func (e *Engine) saveRelationshipAttrs(r *Relationship, attrs Attrs) error {
	superCol := superColumnName(r.Type, r.Key)
	encoded, err := encodeAttrs(attrs)
	if err != nil {
		return err
	}
	sourceEndpoint := endpointKey(r.Source.Type, r.Source.Key)
	targetEndpoint := endpointKey(r.Target.Type, r.Target.Key)

	b, owned := e.begin()
	b.InsertSuper(e.qualify(tableOutbound), sourceEndpoint, superCol, encoded)
	b.InsertSuper(e.qualify(tableInbound), targetEndpoint, superCol, encoded)
	if err := e.finish(b, owned); err != nil {
		e.abort(b, owned)
		return err
	}
	return nil
}

func (e *Engine) deleteRelationship(r *Relationship) error {
	superCol := superColumnName(r.Type, r.Key)
	sourceEndpoint := endpointKey(r.Source.Type, r.Source.Key)
	targetEndpoint := endpointKey(r.Target.Type, r.Target.Key)

	if _, err := e.backend.GetSuper(e.qualify(tableOutbound), sourceEndpoint, superCol); err != nil {
		if err == kvstore.ErrNotFound {
			return newRelationshipNotFound(r.Type, r.Key)
		}
		return err
	}

	b, owned := e.begin()
	b.RemoveSuper(e.qualify(tableOutbound), sourceEndpoint, superCol)
	b.RemoveSuper(e.qualify(tableInbound), targetEndpoint, superCol)
	b.RemoveSuperColumns(e.qualify(tablePairIndex), sourceEndpoint, r.Target.Key, []string{superCol})
	b.RemoveSuperColumns(e.qualify(tablePairIndex), targetEndpoint, r.Source.Key, []string{superCol})

	if err := e.finish(b, owned); err != nil {
		e.abort(b, owned)
		return err
	}
	return nil
}

func (e *Engine) outgoingEdges(node *Node, relType string) ([]*Relationship, error) {
	if err := validateName("relationship type", relType); err != nil {
		return nil, err
	}
	start, end := relTypeSliceBounds(relType)
	slice, err := e.backend.GetSlice(e.qualify(tableOutbound), endpointKey(node.Type, node.Key), start, end, 0)
	if err != nil {
		return nil, err
	}
	return hydrateSlice(e, slice)
}

func (e *Engine) incomingEdges(node *Node, relType string) ([]*Relationship, error) {
	if err := validateName("relationship type", relType); err != nil {
		return nil, err
	}
	start, end := relTypeSliceBounds(relType)
	slice, err := e.backend.GetSlice(e.qualify(tableInbound), endpointKey(node.Type, node.Key), start, end, 0)
	if err != nil {
		return nil, err
	}
	return hydrateSlice(e, slice)
}

func hydrateSlice(e *Engine, slice []kvstore.SuperColumn) ([]*Relationship, error) {
	out := make([]*Relationship, 0, len(slice))
	for _, sc := range slice {
		rel, err := hydrateRelationship(e, sc.Name, sc.Columns)
		if err != nil {
			return nil, err
		}
		out = append(out, rel)
	}
	return out, nil
}

// HasRelationship answers the pair-existence query of spec §4.10: does
// any relType relationship connect a to the node keyed bKey, in either
// direction?
func (e *Engine) HasRelationship(a *Node, bKey, relType string) ([]*Relationship, error) {
	return e.hasRelationship(a.ref(), bKey, relType)
}

func (e *Engine) hasRelationship(a EndpointRef, bKey, relType string) ([]*Relationship, error) {
	if err := validateName("relationship type", relType); err != nil {
		return nil, err
	}
	markerRow, err := e.backend.GetSuper(e.qualify(tablePairIndex), endpointKey(a.Type, a.Key), bKey)
	if err != nil {
		if err == kvstore.ErrNotFound {
			return nil, nil
		}
		return nil, err
	}

	var out []*Relationship
	for col, direction := range markerRow {
		columnRelType, relKey, ok := splitSuperColumnName(col)
		if !ok || columnRelType != relType {
			continue
		}
		rel, err := e.hydrateFromDirection(a, bKey, relType, relKey, direction)
		if err != nil {
			return nil, err
		}
		if rel != nil {
			out = append(out, rel)
		}
	}
	return out, nil
}

func (e *Engine) hydrateFromDirection(a EndpointRef, bKey, relType, relKey, direction string) (*Relationship, error) {
	superCol := superColumnName(relType, relKey)
	var table, row string
	switch direction {
	case "outgoing":
		table, row = e.qualify(tableOutbound), endpointKey(a.Type, a.Key)
	case "incoming":
		table, row = e.qualify(tableInbound), endpointKey(a.Type, a.Key)
	default:
		return nil, newUsageError("unknown pair-index marker direction %q", direction)
	}
	cols, err := e.backend.GetSuper(table, row, superCol)
	if err != nil {
		if err == kvstore.ErrNotFound {
			return nil, nil
		}
		return nil, err
	}
	return hydrateRelationship(e, superCol, cols)
}

