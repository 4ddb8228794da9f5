package graph

import (
	"strings"

	"github.com/halvardix/colgraph/pkg/codec"
	"github.com/halvardix/colgraph/pkg/kvstore"
)

// Attrs is a node's or relationship's attribute map: string keys to
// codec-typed scalars (spec §3, §9's "tagged union" design note).
type Attrs map[string]codec.Value

// Clone returns a shallow copy so handles never alias a caller's map.
func (a Attrs) Clone() Attrs {
	out := make(Attrs, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

// merge returns a new Attrs with other's entries layered on top of a's.
func (a Attrs) merge(other Attrs) Attrs {
	out := a.Clone()
	for k, v := range other {
		out[k] = v
	}
	return out
}

func encodeAttrs(attrs Attrs) (kvstore.Row, error) {
	row := make(kvstore.Row, len(attrs))
	for k, v := range attrs {
		encoded, err := codec.Encode(v)
		if err != nil {
			return nil, newCodecError(err)
		}
		row[k] = encoded
	}
	return row, nil
}

func decodeAttrs(row kvstore.Row) (Attrs, error) {
	attrs := make(Attrs, len(row))
	for k, v := range row {
		decoded, err := codec.Decode(v)
		if err != nil {
			return nil, newCodecError(err)
		}
		attrs[k] = decoded
	}
	return attrs, nil
}

// decodeAttrsExcluding is decodeAttrs but skips the named columns and
// anything under the reserved source__/target__ prefixes, used when
// pulling a relationship's own attributes out of its adjacency payload --
// those prefixed columns are the denormalized endpoint copies, surfaced
// separately via SourceAttrs/TargetAttrs, not part of the relationship's
// own attribute set.
func decodeAttrsExcluding(row kvstore.Row, skip ...string) (Attrs, error) {
	skipSet := make(map[string]struct{}, len(skip))
	for _, s := range skip {
		skipSet[s] = struct{}{}
	}
	attrs := make(Attrs)
	for k, v := range row {
		if _, ok := skipSet[k]; ok {
			continue
		}
		if strings.HasPrefix(k, sourcePrefix) || strings.HasPrefix(k, targetPrefix) {
			continue
		}
		decoded, err := codec.Decode(v)
		if err != nil {
			return nil, newCodecError(err)
		}
		attrs[k] = decoded
	}
	return attrs, nil
}

func prefixedAttrs(prefix string, attrs Attrs) (kvstore.Row, error) {
	row := make(kvstore.Row, len(attrs))
	for k, v := range attrs {
		encoded, err := codec.Encode(v)
		if err != nil {
			return nil, newCodecError(err)
		}
		row[prefix+k] = encoded
	}
	return row, nil
}
