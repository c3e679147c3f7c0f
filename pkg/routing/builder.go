package routing

import (
	"errors"
	"fmt"
	"sort"

	"shardroute/pkg/sharderr"
	"shardroute/pkg/strategy"
	"shardroute/pkg/topology"
)

// Binding ties a key component index to its strategy.
type Binding struct {
	Index    int
	Strategy strategy.Strategy
}

// Builder collects bindings and validates them in Build. Bindings must cover indices
// 0..n-1 without gaps.
type Builder struct {
	topo       *topology.Topology
	bindings   []Binding
	combine    Combiner
	maxScatter int
	errs       []error
}

func NewBuilder(topo *topology.Topology) *Builder {
	return &Builder{topo: topo, combine: DefaultCombiner(), maxScatter: DefaultMaxScatter}
}

func (b *Builder) Bind(index int, s strategy.Strategy) *Builder {
	b.bindings = append(b.bindings, Binding{Index: index, Strategy: s})
	return b
}

// BindFactory builds a strategy against the builder's topology and binds it.
func (b *Builder) BindFactory(index int, f strategy.Factory) *Builder {
	if f == nil {
		b.errs = append(b.errs, fmt.Errorf("%w: nil factory for component %d", sharderr.ErrInvalidStrategy, index))
		return b
	}
	if b.topo == nil {
		b.errs = append(b.errs, sharderr.ErrEmptyTopology)
		return b
	}
	s, err := f(b.topo)
	if err != nil {
		b.errs = append(b.errs, fmt.Errorf("component %d: %w", index, err))
		return b
	}
	return b.Bind(index, s)
}

func (b *Builder) WithCombiner(c Combiner) *Builder {
	if c != nil {
		b.combine = c
	}
	return b
}

func (b *Builder) WithMaxScatter(n int) *Builder {
	if n > 0 {
		b.maxScatter = n
	}
	return b
}

func (b *Builder) Build() (*CompoundRouter, error) {
	if len(b.errs) > 0 {
		return nil, errors.Join(b.errs...)
	}
	if b.topo == nil || b.topo.Len() == 0 {
		return nil, sharderr.ErrEmptyTopology
	}
	if len(b.bindings) == 0 {
		return nil, sharderr.ErrNoBindings
	}

	bindings := append([]Binding(nil), b.bindings...)
	sort.SliceStable(bindings, func(i, j int) bool { return bindings[i].Index < bindings[j].Index })

	strategies := make([]strategy.Strategy, len(bindings))
	for i, bd := range bindings {
		if bd.Strategy == nil {
			return nil, fmt.Errorf("%w: component %d has no strategy", sharderr.ErrInvalidStrategy, bd.Index)
		}
		if i > 0 && bindings[i-1].Index == bd.Index {
			return nil, fmt.Errorf("%w: %d", sharderr.ErrDuplicateBinding, bd.Index)
		}
		if bd.Index != i {
			return nil, fmt.Errorf("%w: expected index %d, got %d", sharderr.ErrNonContiguousBindings, i, bd.Index)
		}
		strategies[i] = bd.Strategy
	}

	return &CompoundRouter{
		topo:       b.topo,
		strategies: strategies,
		combine:    b.combine,
		maxScatter: b.maxScatter,
	}, nil
}
