// Package value implements the JSON-like tree that flows through the
// sanitizer: a tagged variant over null, bool, int, float, string, array
// and insertion-ordered object.
package value

import (
	"math"
	"math/big"
)

// Kind identifies which variant a Value holds.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindArray
	KindObject
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	default:
		return "unknown"
	}
}

// Value is an immutable JSON-like node. The zero Value is null.
type Value struct {
	kind Kind
	b    bool
	i    int64
	big  *big.Int // set only when the integer does not fit in int64
	f    float64
	s    string

	items   []Value
	members []Member
}

// Member is a single key/value entry of an object.
type Member struct {
	Key   string
	Value Value
}

// Null returns the null value.
func Null() Value { return Value{} }

// Bool returns a boolean value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Int returns an integer value.
func Int(i int64) Value { return Value{kind: KindInt, i: i} }

// BigInt returns an integer value of arbitrary precision. Integers that
// fit in int64 are stored as such. A nil n is treated as zero.
func BigInt(n *big.Int) Value {
	if n == nil {
		return Int(0)
	}
	if n.IsInt64() {
		return Int(n.Int64())
	}
	return Value{kind: KindInt, big: new(big.Int).Set(n)}
}

// Float returns a floating-point value. NaN and ±Inf are allowed.
func Float(f float64) Value { return Value{kind: KindFloat, f: f} }

// String returns a string value.
func String(s string) Value { return Value{kind: KindString, s: s} }

// Array returns an array holding a copy of items.
func Array(items ...Value) Value {
	cp := make([]Value, len(items))
	copy(cp, items)
	return Value{kind: KindArray, items: cp}
}

// Object returns an object with the given members in order. When a key
// repeats, the first position is kept and the last value wins.
func Object(members ...Member) Value {
	out := make([]Member, 0, len(members))
	var seen map[string]int
	if len(members) > 8 {
		seen = make(map[string]int, len(members))
	}
	for _, m := range members {
		if idx, ok := indexOf(out, seen, m.Key); ok {
			out[idx].Value = m.Value
			continue
		}
		if seen != nil {
			seen[m.Key] = len(out)
		}
		out = append(out, m)
	}
	return Value{kind: KindObject, members: out}
}

func indexOf(members []Member, seen map[string]int, key string) (int, bool) {
	if seen != nil {
		idx, ok := seen[key]
		return idx, ok
	}
	for i, m := range members {
		if m.Key == key {
			return i, true
		}
	}
	return 0, false
}

// M is shorthand for building a Member.
func M(key string, v Value) Member { return Member{Key: key, Value: v} }

// Kind reports the variant held by v.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v is null.
func (v Value) IsNull() bool { return v.kind == KindNull }

// AsBool returns the boolean held by v.
func (v Value) AsBool() (bool, bool) {
	return v.b, v.kind == KindBool
}

// AsInt returns the integer held by v. The second result is false when v
// is not an integer or does not fit in int64.
func (v Value) AsInt() (int64, bool) {
	if v.kind != KindInt || v.big != nil {
		return 0, false
	}
	return v.i, true
}

// AsBig returns a copy of the integer held by v at arbitrary precision.
func (v Value) AsBig() (*big.Int, bool) {
	if v.kind != KindInt {
		return nil, false
	}
	if v.big != nil {
		return new(big.Int).Set(v.big), true
	}
	return big.NewInt(v.i), true
}

// AsFloat returns the float held by v.
func (v Value) AsFloat() (float64, bool) {
	return v.f, v.kind == KindFloat
}

// AsString returns the string held by v.
func (v Value) AsString() (string, bool) {
	return v.s, v.kind == KindString
}

// Len returns the element count of an array, the member count of an
// object, and 0 for everything else.
func (v Value) Len() int {
	switch v.kind {
	case KindArray:
		return len(v.items)
	case KindObject:
		return len(v.members)
	default:
		return 0
	}
}

// Index returns the i-th array element, or null when out of range.
func (v Value) Index(i int) Value {
	if v.kind != KindArray || i < 0 || i >= len(v.items) {
		return Null()
	}
	return v.items[i]
}

// Items returns a copy of the array elements.
func (v Value) Items() []Value {
	if v.kind != KindArray {
		return nil
	}
	cp := make([]Value, len(v.items))
	copy(cp, v.items)
	return cp
}

// Members returns a copy of the object members in order.
func (v Value) Members() []Member {
	if v.kind != KindObject {
		return nil
	}
	cp := make([]Member, len(v.members))
	copy(cp, v.members)
	return cp
}

// Keys returns the object keys in order.
func (v Value) Keys() []string {
	if v.kind != KindObject {
		return nil
	}
	keys := make([]string, len(v.members))
	for i, m := range v.members {
		keys[i] = m.Key
	}
	return keys
}

// Get looks up key in an object.
func (v Value) Get(key string) (Value, bool) {
	if v.kind != KindObject {
		return Null(), false
	}
	for _, m := range v.members {
		if m.Key == key {
			return m.Value, true
		}
	}
	return Null(), false
}

// Member returns the i-th object member. It is meant for traversal code
// that already checked Len.
func (v Value) Member(i int) Member {
	return v.members[i]
}

// Equal reports deep structural equality. NaN equals NaN and object key
// order is significant.
func Equal(a, b Value) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindNull:
		return true
	case KindBool:
		return a.b == b.b
	case KindInt:
		if a.big == nil && b.big == nil {
			return a.i == b.i
		}
		x, _ := a.AsBig()
		y, _ := b.AsBig()
		return x.Cmp(y) == 0
	case KindFloat:
		if math.IsNaN(a.f) && math.IsNaN(b.f) {
			return true
		}
		return a.f == b.f
	case KindString:
		return a.s == b.s
	case KindArray:
		if len(a.items) != len(b.items) {
			return false
		}
		for i := range a.items {
			if !Equal(a.items[i], b.items[i]) {
				return false
			}
		}
		return true
	case KindObject:
		if len(a.members) != len(b.members) {
			return false
		}
		for i := range a.members {
			if a.members[i].Key != b.members[i].Key || !Equal(a.members[i].Value, b.members[i].Value) {
				return false
			}
		}
		return true
	default:
		return false
	}
}
