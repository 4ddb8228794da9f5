// Package codec implements the typed scalar <-> string encoding that lets a
// string-valued wide-column store round-trip bool/int/float/string
// attribute values.
//
// The wire format tags every non-string scalar with a two-character
// prefix ("$b", "$i", "$l", "$f"); strings are stored as-is. A string
// whose first character is literally '$' is escaped so it never collides
// with a tag.
package codec

import (
	"errors"
	"fmt"
	"strconv"
)

// Kind identifies which scalar a Value holds.
type Kind uint8

const (
	KindString Kind = iota
	KindBool
	KindInt
	KindLong
	KindFloat
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindLong:
		return "long"
	case KindFloat:
		return "float"
	default:
		return "unknown"
	}
}

// Value is the tagged union of scalars an attribute map may hold.
//
// This is the in-memory replacement for the source's prefix-tagged
// strings (spec.md §9): callers work with Value, and the prefix scheme
// is confined to Encode/Decode at the storage boundary.
type Value struct {
	kind Kind
	s    string
	b    bool
	i    int64
	l    int64
	f    float64
}

// ErrUnsupportedType is returned by Encode for a scalar the codec doesn't
// recognize, and wrapped into graph.ErrCodec by callers.
var ErrUnsupportedType = errors.New("codec: unsupported attribute type")

// ErrMalformed is returned by Decode when a tagged value can't be parsed
// back into its declared type.
var ErrMalformed = errors.New("codec: malformed encoded value")

func String(s string) Value { return Value{kind: KindString, s: s} }
func Bool(b bool) Value     { return Value{kind: KindBool, b: b} }
func Int(i int64) Value     { return Value{kind: KindInt, i: i} }
func Long(l int64) Value    { return Value{kind: KindLong, l: l} }
func Float(f float64) Value { return Value{kind: KindFloat, f: f} }

func (v Value) Kind() Kind { return v.kind }

// AsString returns the value as a string regardless of kind, formatting
// numeric and boolean values. Useful for building composite keys out of
// attributes; does not affect the wire encoding.
func (v Value) AsString() string {
	switch v.kind {
	case KindString:
		return v.s
	case KindBool:
		if v.b {
			return "true"
		}
		return "false"
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindLong:
		return strconv.FormatInt(v.l, 10)
	case KindFloat:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	default:
		return ""
	}
}

func (v Value) Bool() (bool, bool)       { return v.b, v.kind == KindBool }
func (v Value) Int() (int64, bool)       { return v.i, v.kind == KindInt }
func (v Value) Long() (int64, bool)      { return v.l, v.kind == KindLong }
func (v Value) Float() (float64, bool)   { return v.f, v.kind == KindFloat }
func (v Value) RawString() (string, bool) { return v.s, v.kind == KindString }

// Equal reports whether two values have the same kind and content.
func (v Value) Equal(other Value) bool {
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case KindString:
		return v.s == other.s
	case KindBool:
		return v.b == other.b
	case KindInt:
		return v.i == other.i
	case KindLong:
		return v.l == other.l
	case KindFloat:
		return v.f == other.f
	default:
		return false
	}
}

// FromAny builds a Value from a Go native scalar, for convenience at call
// sites that don't want to name a Kind explicitly (e.g. attrs passed in
// as map[string]any from a relationship factory call).
func FromAny(v any) (Value, error) {
	switch t := v.(type) {
	case Value:
		return t, nil
	case string:
		return String(t), nil
	case bool:
		return Bool(t), nil
	case int:
		return Int(int64(t)), nil
	case int32:
		return Int(int64(t)), nil
	case int64:
		return Int(t), nil
	case float32:
		return Float(float64(t)), nil
	case float64:
		return Float(t), nil
	default:
		return Value{}, fmt.Errorf("%w: %T", ErrUnsupportedType, v)
	}
}

const (
	prefixBool  = "$b"
	prefixInt   = "$i"
	prefixLong  = "$l"
	prefixFloat = "$f"
	escapeTag   = "$$" // literal leading '$' in a plain string
)

// Encode converts a Value to its wire representation: a plain string for
// KindString (escaped if it starts with '$'), or a two-character prefix
// followed by the formatted scalar otherwise.
func Encode(v Value) (string, error) {
	switch v.kind {
	case KindString:
		if len(v.s) > 0 && v.s[0] == '$' {
			return "$" + v.s, nil
		}
		return v.s, nil
	case KindBool:
		if v.b {
			return prefixBool + "True", nil
		}
		return prefixBool + "False", nil
	case KindInt:
		return prefixInt + strconv.FormatInt(v.i, 10), nil
	case KindLong:
		return prefixLong + strconv.FormatInt(v.l, 10), nil
	case KindFloat:
		return prefixFloat + strconv.FormatFloat(v.f, 'g', -1, 64), nil
	default:
		return "", fmt.Errorf("%w: kind %s", ErrUnsupportedType, v.kind)
	}
}

// Decode parses a wire string back into its originally typed Value.
func Decode(raw string) (Value, error) {
	switch {
	case len(raw) >= 2 && raw[:2] == escapeTag:
		return String(raw[1:]), nil
	case len(raw) >= 2 && raw[:2] == prefixBool:
		switch raw[2:] {
		case "True":
			return Bool(true), nil
		case "False":
			return Bool(false), nil
		default:
			return Value{}, fmt.Errorf("%w: bad bool literal %q", ErrMalformed, raw)
		}
	case len(raw) >= 2 && raw[:2] == prefixInt:
		n, err := strconv.ParseInt(raw[2:], 10, 64)
		if err != nil {
			return Value{}, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		return Int(n), nil
	case len(raw) >= 2 && raw[:2] == prefixLong:
		n, err := strconv.ParseInt(raw[2:], 10, 64)
		if err != nil {
			return Value{}, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		return Long(n), nil
	case len(raw) >= 2 && raw[:2] == prefixFloat:
		f, err := strconv.ParseFloat(raw[2:], 64)
		if err != nil {
			return Value{}, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		return Float(f), nil
	default:
		return String(raw), nil
	}
}
