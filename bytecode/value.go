package bytecode

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Value is a Quill runtime or constant-pool value. The dynamic type is one
// of: nil (null), bool, int64, float64, string, or []Value (list). Lists
// only arise at runtime; constant pools hold scalars.
type Value = any

// ValueEqual compares two values. Scalars compare by Go equality with
// int64/float64 kept distinct; lists compare element-wise.
func ValueEqual(a, b Value) bool {
	la, aok := a.([]Value)
	lb, bok := b.([]Value)
	if aok || bok {
		if !aok || !bok || len(la) != len(lb) {
			return false
		}
		for i := range la {
			if !ValueEqual(la[i], lb[i]) {
				return false
			}
		}
		return true
	}
	return a == b
}

// FormatValue renders a value the way PRINT writes it: null, true/false,
// decimal integers, shortest-form floats, bare strings, and bracketed lists.
func FormatValue(v Value) string {
	switch v := v.(type) {
	case nil:
		return "null"
	case bool:
		if v {
			return "true"
		}
		return "false"
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	case string:
		return v
	case []Value:
		var sb strings.Builder
		sb.WriteString("[")
		for i, e := range v {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(FormatValue(e))
		}
		sb.WriteString("]")
		return sb.String()
	default:
		return fmt.Sprintf("%v", v)
	}
}

// nanKey is the canonical pool key for float NaN constants. NaN never
// compares equal to itself, so without canonicalization the collection and
// emission passes would disagree about pool indices. All NaN literals share
// one constant slot.
type nanKey struct{}

// poolKey maps a constant to its deduplication key. Types stay distinct:
// int64(1) and float64(1) occupy separate slots.
func poolKey(v Value) Value {
	if f, ok := v.(float64); ok && math.IsNaN(f) {
		return nanKey{}
	}
	return v
}
