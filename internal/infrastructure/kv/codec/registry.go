package codec

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrCorruptAttribute is returned when a stored attribute cannot be decoded
// by the converter registered for its type.
var ErrCorruptAttribute = errors.New("corrupt attribute")

// TimeLayout is the fixed-width UTC layout used for timestamps. Fixed width
// keeps lexical and chronological order identical for range filters.
const TimeLayout = "2006-01-02T15:04:05.000000000Z"

// Converter maps one Go type to and from the native attribute representation.
type Converter[V any] struct {
	Encode func(V) (Value, error)
	Decode func(Value) (V, error)
}

// Registry is the explicit table of scalar converters. It is keyed by the
// static Go type of a field and never inspects struct layouts.
type Registry struct {
	mu         sync.RWMutex
	converters map[reflect.Type]any
}

// NewRegistry returns a registry preloaded with the builtin scalars and
// their nullable pointer forms.
func NewRegistry() *Registry {
	r := &Registry{converters: make(map[reflect.Type]any)}

	Register(r, StringConverter)
	Register(r, IntConverter)
	Register(r, Int64Converter)
	Register(r, BoolConverter)
	Register(r, TimeConverter)
	Register(r, UUIDConverter)

	Register(r, Nullable(StringConverter))
	Register(r, Nullable(IntConverter))
	Register(r, Nullable(Int64Converter))
	Register(r, Nullable(BoolConverter))
	Register(r, Nullable(TimeConverter))
	Register(r, Nullable(UUIDConverter))

	return r
}

// Register adds or replaces the converter for V.
func Register[V any](r *Registry, c Converter[V]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.converters[reflect.TypeFor[V]()] = c
}

// Lookup returns the converter registered for V, if any.
func Lookup[V any](r *Registry) (Converter[V], bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.converters[reflect.TypeFor[V]()]
	if !ok {
		return Converter[V]{}, false
	}
	return c.(Converter[V]), true
}

// EncodeValue converts v with its registered converter, falling back to
// JSON text for unregistered types.
func EncodeValue[V any](r *Registry, v V) (Value, error) {
	if c, ok := Lookup[V](r); ok {
		return c.Encode(v)
	}
	return encodeJSON(v)
}

// StringType builds a converter for a named string type such as an enum.
func StringType[V ~string]() Converter[V] {
	return Converter[V]{
		Encode: func(v V) (Value, error) { return String(string(v)), nil },
		Decode: func(v Value) (V, error) {
			s, err := StringConverter.Decode(v)
			return V(s), err
		},
	}
}

// Nullable lifts a converter to its pointer form; nil encodes to Null.
func Nullable[V any](c Converter[V]) Converter[*V] {
	return Converter[*V]{
		Encode: func(v *V) (Value, error) {
			if v == nil {
				return Null(), nil
			}
			return c.Encode(*v)
		},
		Decode: func(v Value) (*V, error) {
			if v.IsNull() {
				return nil, nil
			}
			out, err := c.Decode(v)
			if err != nil {
				return nil, err
			}
			return &out, nil
		},
	}
}

var StringConverter = Converter[string]{
	Encode: func(s string) (Value, error) { return String(s), nil },
	Decode: func(v Value) (string, error) {
		switch v.Kind {
		case KindNull:
			return "", nil
		case KindString:
			return v.S, nil
		}
		return "", kindMismatch(KindString, v)
	},
}

var Int64Converter = Converter[int64]{
	Encode: func(n int64) (Value, error) { return Int(n), nil },
	Decode: func(v Value) (int64, error) {
		switch v.Kind {
		case KindNull:
			return 0, nil
		case KindNumber:
			return strconv.ParseInt(v.N, 10, 64)
		}
		return 0, kindMismatch(KindNumber, v)
	},
}

var IntConverter = Converter[int]{
	Encode: func(n int) (Value, error) { return Int(int64(n)), nil },
	Decode: func(v Value) (int, error) {
		n, err := Int64Converter.Decode(v)
		return int(n), err
	},
}

var BoolConverter = Converter[bool]{
	Encode: func(b bool) (Value, error) { return Bool(b), nil },
	Decode: func(v Value) (bool, error) {
		switch v.Kind {
		case KindNull:
			return false, nil
		case KindBool:
			return v.B, nil
		}
		return false, kindMismatch(KindBool, v)
	},
}

var TimeConverter = Converter[time.Time]{
	Encode: func(t time.Time) (Value, error) { return String(t.UTC().Format(TimeLayout)), nil },
	Decode: func(v Value) (time.Time, error) {
		switch v.Kind {
		case KindNull:
			return time.Time{}, nil
		case KindString:
			t, err := time.Parse(time.RFC3339Nano, v.S)
			if err != nil {
				return time.Time{}, err
			}
			return t.UTC(), nil
		}
		return time.Time{}, kindMismatch(KindString, v)
	},
}

var UUIDConverter = Converter[uuid.UUID]{
	Encode: func(id uuid.UUID) (Value, error) { return String(id.String()), nil },
	Decode: func(v Value) (uuid.UUID, error) {
		switch v.Kind {
		case KindNull:
			return uuid.Nil, nil
		case KindString:
			return uuid.Parse(v.S)
		}
		return uuid.Nil, kindMismatch(KindString, v)
	},
}

func kindMismatch(want Kind, got Value) error {
	return fmt.Errorf("expected %s attribute, got %s", want, got.Kind)
}
