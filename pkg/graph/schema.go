package graph

import (
	"strings"
)

// Fixed table names (spec §4.3, §6: "considered stable"). The per-type
// node tables are named dynamically, prefixed so they can never collide
// with the three fixed families.
const (
	tableOutbound  = "adj_out"
	tableInbound   = "adj_in"
	tablePairIndex = "pair_idx"
	nodeTablePrefix = "nt__"
)

// TypeReference is the reserved node type used for the per-type
// reference-node mechanism (spec §3, §4.7).
const TypeReference = "reference"

// RelInstance is the relationship type a reference node uses to
// enumerate every node of the type it indexes.
const RelInstance = "instance"

// attrReferenceMarker is the single attribute every reference node
// carries, per spec §4.7 ("attribute reference=\"reference\"").
const attrReferenceMarker = "reference"

// joinByte separates a relationship's type from its key inside a
// super-column name. Chosen instead of the source's "__" (spec §4.4,
// §9): it's a control byte that can never appear in a validated
// type/rel_type/key, so the join is unambiguous and the upper bound of
// a prefix-range slice is simply the same prefix with the next byte
// value substituted in (relTypeSliceBounds below).
const joinByte = '\x1f'
const sliceUpperByte = '\x1f' + 1 // '\x20', always > any "prefix\x1fcontinuation"

func nodeTableName(nodeType string) string {
	return nodeTablePrefix + nodeType
}

// endpointKey builds the row key identifying a node across the
// adjacency and pair-index tables (spec §4.3: "{type}__{key}"). Exact
// lookups only -- never range-sliced -- so the literal "__" from the
// spec is safe here even though it isn't for super-column names.
func endpointKey(nodeType, nodeKey string) string {
	return nodeType + "__" + nodeKey
}

// superColumnName builds a relationship's super-column name within the
// adjacency tables and its column name within the pair index (spec
// §4.3, with the Open Question #1 resolution in DESIGN.md: the pair
// index is keyed by the same "{rel_type}\x1f{rel_key}" pair, not a bare
// rel_type, so two relationships of the same type between the same pair
// each get distinct markers).
func superColumnName(relType, relKey string) string {
	return relType + string(joinByte) + relKey
}

// relTypeSliceBounds returns the [start, end) super-column name range
// that contains exactly the relationships of relType (spec §4.4).
func relTypeSliceBounds(relType string) (start, end string) {
	return relType + string(joinByte), relType + string(sliceUpperByte)
}

// splitSuperColumnName reverses superColumnName, used when hydrating a
// relationship from a raw super-column name read back off the backend.
func splitSuperColumnName(name string) (relType, relKey string, ok bool) {
	i := strings.IndexByte(name, joinByte)
	if i < 0 {
		return "", "", false
	}
	return name[:i], name[i+1:], true
}

// Reserved attribute-column prefixes: a relationship's stored payload
// embeds the endpoints' attributes under these prefixes (spec §4.3), so
// a caller-supplied relationship attribute using either prefix would
// collide with the denormalized endpoint fields.
const (
	sourcePrefix = "source__"
	targetPrefix = "target__"
)

const (
	colSourceType = sourcePrefix + "type"
	colSourceKey  = sourcePrefix + "key"
	colTargetType = targetPrefix + "type"
	colTargetKey  = targetPrefix + "key"
)

// allColumnsUpperBound is a super-column name that no valid UTF-8
// super-column name can reach (0xFF never occurs in UTF-8); names
// containing 0xFF bytes are not rejected by validateName and can sort
// above it. Used to slice "every super-column
// in this row" (spec §4.9's full-row read-back).
const allColumnsUpperBound = "\xff\xff\xff\xff"

// validateName rejects the structural bytes the physical schema relies
// on as unambiguous separators: an empty name, a NUL byte, or the 0x1F
// join byte. Every other byte, including non-ASCII bytes, is accepted.
// Rejecting 0x1F is the fix for the "__ collides with rel_type"
// fragility (spec §4.4/§9).
func validateName(kind, s string) error {
	if s == "" {
		return newUsageError("%s must not be empty", kind)
	}
	if strings.IndexByte(s, 0x00) >= 0 {
		return newUsageError("%s must not contain a NUL byte: %q", kind, s)
	}
	if strings.IndexByte(s, joinByte) >= 0 {
		return newUsageError("%s must not contain the reserved 0x1F byte: %q", kind, s)
	}
	return nil
}

func validateAttrName(name string) error {
	if strings.HasPrefix(name, sourcePrefix) || strings.HasPrefix(name, targetPrefix) {
		return newUsageError("attribute name %q uses the reserved %q/%q prefix", name, sourcePrefix, targetPrefix)
	}
	if name == "rel_type" || name == "rel_key" {
		return newUsageError("attribute name %q is reserved for the relationship payload", name)
	}
	return nil
}
