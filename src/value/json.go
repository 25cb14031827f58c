package value

import (
	"errors"
	"fmt"
	"io"
	"math"
	"math/big"
	"strconv"

	"github.com/segmentio/encoding/json"
)

// ErrInvalidJSON is returned when input is not a single valid JSON document.
var ErrInvalidJSON = errors.New("invalid JSON")

// ErrNonFinite is returned when encoding a NaN or infinite float as JSON.
var ErrNonFinite = errors.New("non-finite float cannot be encoded as JSON")

// FromJSON parses a JSON document into a Value. Object key order is kept.
// Integer literals outside int64 become arbitrary precision integers and
// float literals that overflow become ±Inf. Nesting depth is bounded only
// by memory; decoding does not recurse.
func FromJSON(data []byte) (Value, error) {
	type frame struct {
		array   bool
		key     string
		items   []Value
		members []Member
	}
	var (
		stack []*frame
		root  Value
		done  bool
	)
	attach := func(key string, v Value) {
		if len(stack) == 0 {
			root, done = v, true
			return
		}
		top := stack[len(stack)-1]
		if top.array {
			top.items = append(top.items, v)
		} else {
			top.members = append(top.members, Member{Key: key, Value: v})
		}
	}

	r := NewReader(data)
	for {
		t, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Null(), err
		}
		switch t.Kind {
		case TokenScalar:
			attach(t.Key, t.Value)
		case TokenBeginObject:
			stack = append(stack, &frame{key: t.Key})
		case TokenBeginArray:
			stack = append(stack, &frame{key: t.Key, array: true})
		case TokenEndObject, TokenEndArray:
			f := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if f.array {
				attach(f.key, Value{kind: KindArray, items: f.items})
			} else {
				attach(f.key, Object(f.members...))
			}
		}
	}
	if !done {
		return Null(), ErrInvalidJSON
	}
	return root, nil
}

// FromJSONString is FromJSON for string input.
func FromJSONString(s string) (Value, error) {
	return FromJSON([]byte(s))
}

func parseNumber(raw string) Value {
	if isIntegerLiteral(raw) {
		if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
			return Int(i)
		}
		if n, ok := new(big.Int).SetString(raw, 10); ok {
			return BigInt(n)
		}
	}
	// ParseFloat yields ±Inf alongside ErrRange on overflow, which is
	// exactly the value we want to carry.
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil && !errors.Is(err, strconv.ErrRange) {
		return Float(math.NaN())
	}
	return Float(f)
}

func isIntegerLiteral(raw string) bool {
	if raw == "" {
		return false
	}
	start := 0
	if raw[0] == '-' {
		start = 1
	}
	if start == len(raw) {
		return false
	}
	for i := start; i < len(raw); i++ {
		if raw[i] < '0' || raw[i] > '9' {
			return false
		}
	}
	return true
}

// MarshalJSON encodes v with object key order preserved.
func (v Value) MarshalJSON() ([]byte, error) {
	return v.AppendJSON(nil)
}

// UnmarshalJSON decodes a JSON document into v.
func (v *Value) UnmarshalJSON(data []byte) error {
	parsed, err := FromJSON(data)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// AppendJSON appends the JSON encoding of v to dst.
func (v Value) AppendJSON(dst []byte) ([]byte, error) {
	return appendValue(dst, v, false)
}

// String renders v as JSON for diagnostics. Non-finite floats are written
// as NaN, Infinity and -Infinity.
func (v Value) String() string {
	b, err := appendValue(nil, v, true)
	if err != nil {
		return fmt.Sprintf("<%s: %v>", v.kind, err)
	}
	return string(b)
}

func appendValue(dst []byte, v Value, lenient bool) ([]byte, error) {
	switch v.kind {
	case KindNull:
		return append(dst, "null"...), nil
	case KindBool:
		return strconv.AppendBool(dst, v.b), nil
	case KindInt:
		if v.big != nil {
			return v.big.Append(dst, 10), nil
		}
		return strconv.AppendInt(dst, v.i, 10), nil
	case KindFloat:
		if math.IsNaN(v.f) || math.IsInf(v.f, 0) {
			if !lenient {
				return dst, ErrNonFinite
			}
			switch {
			case math.IsNaN(v.f):
				return append(dst, "NaN"...), nil
			case v.f > 0:
				return append(dst, "Infinity"...), nil
			default:
				return append(dst, "-Infinity"...), nil
			}
		}
		b, err := json.Marshal(v.f)
		if err != nil {
			return dst, err
		}
		return append(dst, b...), nil
	case KindString:
		b, err := json.Marshal(v.s)
		if err != nil {
			return dst, err
		}
		return append(dst, b...), nil
	case KindArray:
		dst = append(dst, '[')
		for i, item := range v.items {
			if i > 0 {
				dst = append(dst, ',')
			}
			var err error
			if dst, err = appendValue(dst, item, lenient); err != nil {
				return dst, err
			}
		}
		return append(dst, ']'), nil
	case KindObject:
		dst = append(dst, '{')
		for i, m := range v.members {
			if i > 0 {
				dst = append(dst, ',')
			}
			key, err := json.Marshal(m.Key)
			if err != nil {
				return dst, err
			}
			dst = append(dst, key...)
			dst = append(dst, ':')
			if dst, err = appendValue(dst, m.Value, lenient); err != nil {
				return dst, err
			}
		}
		return append(dst, '}'), nil
	default:
		return dst, fmt.Errorf("unknown value kind %d", v.kind)
	}
}
