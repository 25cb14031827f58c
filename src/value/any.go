package value

import (
	stdjson "encoding/json"
	"fmt"
	"math/big"
	"sort"

	"github.com/segmentio/encoding/json"
)

// FromAny converts a decoded Go value into a Value. Maps with string keys
// are emitted with their keys sorted, since Go maps carry no order. Types
// without a direct mapping go through a JSON round trip, which keeps the
// field order of structs.
func FromAny(x any) (Value, error) {
	switch t := x.(type) {
	case nil:
		return Null(), nil
	case Value:
		return t, nil
	case *Value:
		if t == nil {
			return Null(), nil
		}
		return *t, nil
	case bool:
		return Bool(t), nil
	case int:
		return Int(int64(t)), nil
	case int8:
		return Int(int64(t)), nil
	case int16:
		return Int(int64(t)), nil
	case int32:
		return Int(int64(t)), nil
	case int64:
		return Int(t), nil
	case uint:
		return BigInt(new(big.Int).SetUint64(uint64(t))), nil
	case uint8:
		return Int(int64(t)), nil
	case uint16:
		return Int(int64(t)), nil
	case uint32:
		return Int(int64(t)), nil
	case uint64:
		return BigInt(new(big.Int).SetUint64(t)), nil
	case *big.Int:
		return BigInt(t), nil
	case float32:
		return Float(float64(t)), nil
	case float64:
		return Float(t), nil
	case string:
		return String(t), nil
	case stdjson.Number:
		return parseNumber(string(t)), nil
	case []Value:
		return Array(t...), nil
	case []any:
		items := make([]Value, len(t))
		for i, item := range t {
			v, err := FromAny(item)
			if err != nil {
				return Null(), fmt.Errorf("[%d]: %w", i, err)
			}
			items[i] = v
		}
		return Value{kind: KindArray, items: items}, nil
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		members := make([]Member, len(keys))
		for i, k := range keys {
			v, err := FromAny(t[k])
			if err != nil {
				return Null(), fmt.Errorf("%s: %w", k, err)
			}
			members[i] = Member{Key: k, Value: v}
		}
		return Value{kind: KindObject, members: members}, nil
	default:
		data, err := json.Marshal(x)
		if err != nil {
			return Null(), fmt.Errorf("converting %T: %w", x, err)
		}
		return FromJSON(data)
	}
}

// ToAny converts v into plain Go values: nil, bool, int64, *big.Int,
// float64, string, []any and map[string]any.
func (v Value) ToAny() any {
	switch v.kind {
	case KindBool:
		return v.b
	case KindInt:
		if v.big != nil {
			return new(big.Int).Set(v.big)
		}
		return v.i
	case KindFloat:
		return v.f
	case KindString:
		return v.s
	case KindArray:
		out := make([]any, len(v.items))
		for i, item := range v.items {
			out[i] = item.ToAny()
		}
		return out
	case KindObject:
		out := make(map[string]any, len(v.members))
		for _, m := range v.members {
			out[m.Key] = m.Value.ToAny()
		}
		return out
	default:
		return nil
	}
}
