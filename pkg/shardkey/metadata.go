package shardkey

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// TagName is the struct tag marking shard key fields: `shardkey:""` for a single key
// field, `shardkey:"order=N"` (or just `shardkey:"N"`) for a component of a compound key.
const TagName = "shardkey"

// FieldRule describes one key field of an entity type.
type FieldRule struct {
	Name    string
	Order   int
	Ordered bool
	Value   func(entity any) (string, error)
}

// MetadataSource reports the key fields of an entity type. It is consulted once per type.
type MetadataSource interface {
	KeyFields(t reflect.Type) ([]FieldRule, error)
}

// Chain consults sources in order and uses the first that reports any field.
func Chain(sources ...MetadataSource) MetadataSource {
	return chain(sources)
}

type chain []MetadataSource

func (c chain) KeyFields(t reflect.Type) ([]FieldRule, error) {
	for _, s := range c {
		fields, err := s.KeyFields(t)
		if err != nil {
			return nil, err
		}
		if len(fields) > 0 {
			return fields, nil
		}
	}
	return nil, nil
}

// TagSource reads key fields from `shardkey` struct tags.
type TagSource struct{}

func (TagSource) KeyFields(t reflect.Type) ([]FieldRule, error) {
	st := t
	for st.Kind() == reflect.Pointer {
		st = st.Elem()
	}
	if st.Kind() != reflect.Struct {
		return nil, nil
	}

	var rules []FieldRule
	for i := 0; i < st.NumField(); i++ {
		f := st.Field(i)
		tag, ok := f.Tag.Lookup(TagName)
		if !ok || !f.IsExported() {
			continue
		}
		order, ordered, err := parseTag(tag)
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", st.Name(), f.Name, err)
		}
		rules = append(rules, FieldRule{
			Name:    f.Name,
			Order:   order,
			Ordered: ordered,
			Value:   fieldReader(f.Name, f.Index),
		})
	}
	return rules, nil
}

func parseTag(tag string) (int, bool, error) {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return 0, false, nil
	}
	tag = strings.TrimPrefix(tag, "order=")
	n, err := strconv.Atoi(tag)
	if err != nil {
		return 0, false, fmt.Errorf("bad %s tag %q", TagName, tag)
	}
	return n, true, nil
}

func fieldReader(name string, index []int) func(any) (string, error) {
	return func(entity any) (string, error) {
		v := reflect.ValueOf(entity)
		for v.Kind() == reflect.Pointer {
			if v.IsNil() {
				return "", fmt.Errorf("nil entity reading %s", name)
			}
			v = v.Elem()
		}
		return formatValue(v.FieldByIndex(index))
	}
}

var stringerType = reflect.TypeOf((*fmt.Stringer)(nil)).Elem()

func formatValue(v reflect.Value) (string, error) {
	if v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return "", nil
		}
		if v.Type().Implements(stringerType) {
			return v.Interface().(fmt.Stringer).String(), nil
		}
		v = v.Elem()
	}
	if v.Type().Implements(stringerType) {
		return v.Interface().(fmt.Stringer).String(), nil
	}
	switch v.Kind() {
	case reflect.String:
		return v.String(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(v.Int(), 10), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(v.Uint(), 10), nil
	case reflect.Bool:
		return strconv.FormatBool(v.Bool()), nil
	case reflect.Float32, reflect.Float64:
		return strconv.FormatFloat(v.Float(), 'g', -1, 64), nil
	case reflect.Slice:
		if v.Type().Elem().Kind() == reflect.Uint8 {
			return string(v.Bytes()), nil
		}
	}
	return "", fmt.Errorf("unsupported shard key field type %s", v.Type())
}

// Registry holds explicitly registered key fields. Register everything at startup; the
// registry is read-only afterwards.
type Registry struct {
	types map[reflect.Type][]FieldRule
}

func NewRegistry() *Registry {
	return &Registry{types: make(map[reflect.Type][]FieldRule)}
}

// Field is a typed key field accessor used with Register.
type Field[T any] struct {
	rule FieldRule
	get  func(T) string
}

// Ordered declares a component of a compound key.
func Ordered[T any](name string, order int, get func(T) string) Field[T] {
	return Field[T]{rule: FieldRule{Name: name, Order: order, Ordered: true}, get: get}
}

// Single declares the only key field of T.
func Single[T any](name string, get func(T) string) Field[T] {
	return Field[T]{rule: FieldRule{Name: name}, get: get}
}

// Register records the key fields of T. Both T and *T entities resolve to them.
func Register[T any](r *Registry, fields ...Field[T]) {
	rules := make([]FieldRule, 0, len(fields))
	for _, f := range fields {
		rule := f.rule
		get := f.get
		rule.Value = func(entity any) (string, error) {
			switch e := entity.(type) {
			case T:
				return get(e), nil
			case *T:
				if e == nil {
					return "", fmt.Errorf("nil entity reading %s", rule.Name)
				}
				return get(*e), nil
			}
			return "", fmt.Errorf("entity %T is not registered for field %s", entity, rule.Name)
		}
		rules = append(rules, rule)
	}
	r.types[reflect.TypeOf((*T)(nil)).Elem()] = rules
}

func (r *Registry) KeyFields(t reflect.Type) ([]FieldRule, error) {
	if rules, ok := r.types[t]; ok {
		return rules, nil
	}
	if t.Kind() == reflect.Pointer {
		return r.types[t.Elem()], nil
	}
	return nil, nil
}
