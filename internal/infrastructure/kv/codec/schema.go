package codec

import (
	"encoding/json"
	"fmt"

	"github.com/sirupsen/logrus"
)

// Field describes one attribute of T. Build fields with Attr.
type Field[T any] struct {
	name string
	bind func(r *Registry, name string, logger *logrus.Logger) binding[T]
}

type binding[T any] struct {
	encode func(*T) (Value, error)
	decode func(*T, Value) error
}

// Attr declares an attribute stored under name whose value is reached through
// ref. The registered converter for V is used when one exists; otherwise the
// value is stored as JSON text.
func Attr[T, V any](name string, ref func(*T) *V) Field[T] {
	return Field[T]{
		name: name,
		bind: func(r *Registry, name string, logger *logrus.Logger) binding[T] {
			if c, ok := Lookup[V](r); ok {
				return binding[T]{
					encode: func(t *T) (Value, error) { return c.Encode(*ref(t)) },
					decode: func(t *T, v Value) error {
						out, err := c.Decode(v)
						if err != nil {
							return fmt.Errorf("%w: %s: %v", ErrCorruptAttribute, name, err)
						}
						*ref(t) = out
						return nil
					},
				}
			}
			return binding[T]{
				encode: func(t *T) (Value, error) { return encodeJSON(*ref(t)) },
				decode: func(t *T, v Value) error {
					*ref(t) = decodeJSON[V](name, v, logger)
					return nil
				},
			}
		},
	}
}

// Schema is the compiled attribute mapping for T.
type Schema[T any] struct {
	key    string
	names  []string
	fields map[string]binding[T]
}

// NewSchema compiles fields against the registry. key names the identity
// attribute and must be one of the fields.
func NewSchema[T any](r *Registry, logger *logrus.Logger, key string, fields ...Field[T]) (*Schema[T], error) {
	s := &Schema[T]{
		key:    key,
		fields: make(map[string]binding[T], len(fields)),
	}
	for _, f := range fields {
		if _, dup := s.fields[f.name]; dup {
			return nil, fmt.Errorf("duplicate attribute %q", f.name)
		}
		s.fields[f.name] = f.bind(r, f.name, logger)
		s.names = append(s.names, f.name)
	}
	if _, ok := s.fields[key]; !ok {
		return nil, fmt.Errorf("key attribute %q is not declared", key)
	}
	return s, nil
}

// MustSchema is NewSchema for package-level declarations.
func MustSchema[T any](r *Registry, logger *logrus.Logger, key string, fields ...Field[T]) *Schema[T] {
	s, err := NewSchema(r, logger, key, fields...)
	if err != nil {
		panic(err)
	}
	return s
}

// Key returns the name of the identity attribute.
func (s *Schema[T]) Key() string {
	return s.key
}

// Attributes lists attribute names in declaration order.
func (s *Schema[T]) Attributes() []string {
	return append([]string(nil), s.names...)
}

// Encode emits every declared attribute. Absent values are written as an
// explicit Null so that updates overwrite previous content.
func (s *Schema[T]) Encode(t *T) (Item, error) {
	item := make(Item, len(s.names))
	for _, name := range s.names {
		v, err := s.fields[name].encode(t)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", name, err)
		}
		item[name] = v
	}
	return item, nil
}

// Decode builds a T from item. Missing attributes keep their zero value.
func (s *Schema[T]) Decode(item Item) (*T, error) {
	t := new(T)
	for _, name := range s.names {
		v, ok := item[name]
		if !ok {
			continue
		}
		if err := s.fields[name].decode(t, v); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// KeyOf returns the encoded identity attribute of t.
func (s *Schema[T]) KeyOf(t *T) (Value, error) {
	return s.fields[s.key].encode(t)
}

func encodeJSON[V any](v V) (Value, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return Value{}, err
	}
	if string(raw) == "null" {
		return Null(), nil
	}
	return String(string(raw)), nil
}

// decodeJSON never fails: drifted or corrupt text yields the zero value and a
// warning. Free-form maps keep the raw text under a migrated marker instead.
func decodeJSON[V any](name string, v Value, logger *logrus.Logger) V {
	var out V
	if v.IsNull() {
		return out
	}

	text := v.S
	if v.Kind != KindString {
		warnFallback(logger, name, v, fmt.Errorf("expected %s attribute, got %s", KindString, v.Kind))
		return out
	}

	if err := json.Unmarshal([]byte(text), &out); err != nil {
		warnFallback(logger, name, v, err)
		var zero V
		if m, ok := any(&zero).(*map[string]any); ok {
			*m = map[string]any{"migrated": true, "raw": text}
		}
		return zero
	}
	return out
}

func warnFallback(logger *logrus.Logger, name string, v Value, err error) {
	if logger == nil {
		return
	}
	logger.WithFields(logrus.Fields{
		"attribute": name,
		"kind":      v.Kind,
	}).WithError(err).Warn("codec: attribute could not be decoded, using zero value")
}
