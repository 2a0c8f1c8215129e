package codec

import (
	"strconv"
	"strings"
)

// Kind is the native type descriptor of a stored attribute.
type Kind string

const (
	KindNull   Kind = "NULL"
	KindString Kind = "S"
	KindNumber Kind = "N"
	KindBool   Kind = "BOOL"
)

// Value is a single attribute in the store's native representation.
// Numbers are carried as decimal text so no precision is lost in transit.
type Value struct {
	Kind Kind   `json:"k"`
	S    string `json:"s,omitempty"`
	N    string `json:"n,omitempty"`
	B    bool   `json:"b,omitempty"`
}

// Item is a flat attribute map describing one stored record.
type Item map[string]Value

func Null() Value {
	return Value{Kind: KindNull}
}

func String(s string) Value {
	return Value{Kind: KindString, S: s}
}

func Int(n int64) Value {
	return Value{Kind: KindNumber, N: strconv.FormatInt(n, 10)}
}

// Number wraps decimal text that is already in canonical form.
func Number(n string) Value {
	return Value{Kind: KindNumber, N: n}
}

func Bool(b bool) Value {
	return Value{Kind: KindBool, B: b}
}

func (v Value) IsNull() bool {
	return v.Kind == KindNull
}

// Compare orders two values of the same kind. Strings compare lexically,
// numbers numerically and booleans with false before true. The second
// result is false when the values are not comparable.
func (v Value) Compare(o Value) (int, bool) {
	if v.Kind != o.Kind {
		return 0, false
	}
	switch v.Kind {
	case KindString:
		return strings.Compare(v.S, o.S), true
	case KindNumber:
		a, errA := strconv.ParseFloat(v.N, 64)
		b, errB := strconv.ParseFloat(o.N, 64)
		if errA != nil || errB != nil {
			return 0, false
		}
		switch {
		case a < b:
			return -1, true
		case a > b:
			return 1, true
		}
		return 0, true
	case KindBool:
		switch {
		case v.B == o.B:
			return 0, true
		case !v.B:
			return -1, true
		}
		return 1, true
	case KindNull:
		return 0, true
	}
	return 0, false
}

// Equal reports whether both values have the same kind and content.
func (v Value) Equal(o Value) bool {
	c, ok := v.Compare(o)
	return ok && c == 0
}

// Clone returns a copy of the item that can be mutated independently.
func (i Item) Clone() Item {
	out := make(Item, len(i))
	for k, v := range i {
		out[k] = v
	}
	return out
}
