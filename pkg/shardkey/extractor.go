package shardkey

import (
	"fmt"
	"reflect"
	"sort"

	"github.com/zhangyunhao116/skipmap"

	"shardroute/pkg/sharderr"
)

// CompoundShardable entities supply their compound key directly.
type CompoundShardable interface {
	CompoundShardKey() (CompoundKey, error)
}

// Shardable entities supply a single shard key value.
type Shardable interface {
	ShardKey() (string, error)
}

var (
	compoundShardableType = reflect.TypeOf((*CompoundShardable)(nil)).Elem()
	shardableType         = reflect.TypeOf((*Shardable)(nil)).Elem()
)

type rule uint8

const (
	ruleNone rule = iota
	ruleCompound
	ruleOrderedFields
	ruleShardable
	ruleSingleField
)

func (r rule) String() string {
	switch r {
	case ruleCompound:
		return "compound-shardable"
	case ruleOrderedFields:
		return "ordered-fields"
	case ruleShardable:
		return "shardable"
	case ruleSingleField:
		return "single-field"
	}
	return "none"
}

// plan is the resolved extraction rule for one entity type. Plans are immutable.
type plan struct {
	rule   rule
	fields []FieldRule
	err    error
}

// planCache is keyed by type identity. Names are not unique: two local types in different
// functions can share both package path and name.
type planCache = skipmap.OrderedMap[uintptr, *plan]

// Extractor resolves compound keys from entities. Rules, first match wins:
//
//  1. the entity implements CompoundShardable;
//  2. the entity has key fields with an explicit order, concatenated by order;
//  3. the entity implements Shardable;
//  4. the entity has exactly one key field without an order.
//
// Once a rule applies, extraction never falls through to a later one. The rule for a type
// is computed once and cached.
type Extractor struct {
	source MetadataSource
	plans  *planCache
}

type ExtractorOption func(*Extractor)

// WithMetadataSource replaces the default TagSource.
func WithMetadataSource(src MetadataSource) ExtractorOption {
	return func(e *Extractor) { e.source = src }
}

func NewExtractor(opts ...ExtractorOption) *Extractor {
	e := &Extractor{
		source: TagSource{},
		plans:  skipmap.New[uintptr, *plan](),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Prepare resolves and caches the plan of every sample's type, returning the first
// configuration error. Call it at startup so that bad types fail fast.
func (e *Extractor) Prepare(samples ...any) error {
	for _, s := range samples {
		if s == nil {
			continue
		}
		if p := e.planFor(reflect.TypeOf(s)); p.err != nil {
			return p.err
		}
	}
	return nil
}

// Extract resolves the compound key of entity.
func (e *Extractor) Extract(entity any) (CompoundKey, error) {
	if entity == nil {
		return CompoundKey{}, fmt.Errorf("%w: nil entity", sharderr.ErrNoShardKeyFound)
	}

	p := e.planFor(reflect.TypeOf(entity))
	if p.err != nil {
		return CompoundKey{}, p.err
	}

	switch p.rule {
	case ruleCompound:
		key, err := entity.(CompoundShardable).CompoundShardKey()
		if err != nil {
			return CompoundKey{}, fmt.Errorf("compound shard key of %T: %w", entity, err)
		}
		if err := key.Validate(); err != nil {
			return CompoundKey{}, err
		}
		return key, nil

	case ruleOrderedFields:
		values := make([]string, 0, len(p.fields))
		for _, f := range p.fields {
			v, err := f.Value(entity)
			if err != nil {
				return CompoundKey{}, fmt.Errorf("shard key field %s of %T: %w", f.Name, entity, err)
			}
			values = append(values, v)
		}
		return NewCompoundKey(values...)

	case ruleShardable:
		v, err := entity.(Shardable).ShardKey()
		if err != nil {
			return CompoundKey{}, fmt.Errorf("shard key of %T: %w", entity, err)
		}
		return Simple(v)

	case ruleSingleField:
		f := p.fields[0]
		v, err := f.Value(entity)
		if err != nil {
			return CompoundKey{}, fmt.Errorf("shard key field %s of %T: %w", f.Name, entity, err)
		}
		return Simple(v)
	}
	return CompoundKey{}, fmt.Errorf("%w: %T", sharderr.ErrNoShardKeyFound, entity)
}

func (e *Extractor) planFor(t reflect.Type) *plan {
	p, _ := e.plans.LoadOrStoreLazy(typeID(t), func() *plan {
		return e.buildPlan(t)
	})
	return p
}

func (e *Extractor) buildPlan(t reflect.Type) *plan {
	if t.Implements(compoundShardableType) {
		return &plan{rule: ruleCompound}
	}

	fields, err := e.source.KeyFields(t)
	if err != nil {
		return &plan{err: fmt.Errorf("%w: %v", sharderr.ErrInvalidKeyField, err)}
	}

	var ordered, unordered []FieldRule
	for _, f := range fields {
		if f.Ordered {
			ordered = append(ordered, f)
		} else {
			unordered = append(unordered, f)
		}
	}

	if len(ordered) > 0 {
		sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Order < ordered[j].Order })
		for i := 1; i < len(ordered); i++ {
			if ordered[i].Order == ordered[i-1].Order {
				return &plan{err: fmt.Errorf("%w: %s has fields %s and %s with order %d",
					sharderr.ErrDuplicateShardKeyOrder, t, ordered[i-1].Name, ordered[i].Name, ordered[i].Order)}
			}
		}
		return &plan{rule: ruleOrderedFields, fields: ordered}
	}

	if t.Implements(shardableType) {
		return &plan{rule: ruleShardable}
	}

	switch len(unordered) {
	case 0:
		return &plan{err: fmt.Errorf("%w: %s", sharderr.ErrNoShardKeyFound, t)}
	case 1:
		return &plan{rule: ruleSingleField, fields: unordered}
	}
	return &plan{err: fmt.Errorf("%w: %s has %d key fields without an order",
		sharderr.ErrDuplicateShardKeyOrder, t, len(unordered))}
}

// typeID identifies t by its runtime type descriptor, which is unique per type.
func typeID(t reflect.Type) uintptr {
	return reflect.ValueOf(t).Pointer()
}
