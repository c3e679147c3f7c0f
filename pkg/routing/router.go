// Package routing composes per-component strategies into compound shard routers.
package routing

import (
	"fmt"
	"sort"

	"shardroute/pkg/sharderr"
	"shardroute/pkg/shardkey"
	"shardroute/pkg/strategy"
	"shardroute/pkg/topology"
	"shardroute/pkg/types"
)

// DefaultMaxScatter bounds the number of candidate ids a partial key may expand to.
const DefaultMaxScatter = 1 << 16

// Router is the routing contract shared by CompoundRouter and decorators around it.
type Router interface {
	// Route maps a full key to exactly one shard of the topology.
	Route(key shardkey.CompoundKey) (types.ShardID, error)
	// RouteAll maps a partial key to every shard that may own it, sorted.
	RouteAll(partial shardkey.PartialKey) ([]types.ShardID, error)
	// Locate is Route followed by a topology lookup.
	Locate(key shardkey.CompoundKey) (topology.ShardInfo, error)
	Topology() *topology.Topology
}

// CompoundRouter routes each key component through its bound strategy and combines the
// fragments into a shard id that must exist in the topology. It is immutable.
type CompoundRouter struct {
	topo       *topology.Topology
	strategies []strategy.Strategy
	combine    Combiner
	maxScatter int
}

var _ Router = (*CompoundRouter)(nil)

// NewSimple builds a router for one-component keys.
func NewSimple(topo *topology.Topology, s strategy.Strategy) (*CompoundRouter, error) {
	return NewBuilder(topo).Bind(0, s).Build()
}

func (r *CompoundRouter) Topology() *topology.Topology { return r.topo }

// Arity is the number of components keys must have.
func (r *CompoundRouter) Arity() int { return len(r.strategies) }

// Strategy returns the strategy bound to component i.
func (r *CompoundRouter) Strategy(i int) strategy.Strategy { return r.strategies[i] }

func (r *CompoundRouter) Route(key shardkey.CompoundKey) (types.ShardID, error) {
	if err := key.Validate(); err != nil {
		return "", err
	}
	if key.Len() != len(r.strategies) {
		return "", fmt.Errorf("%w: key has %d components, router binds %d",
			sharderr.ErrKeyArity, key.Len(), len(r.strategies))
	}

	fragments := make([]types.Fragment, len(r.strategies))
	for i, s := range r.strategies {
		f, err := s.Route(key.Component(i))
		if err != nil {
			return "", fmt.Errorf("component %d (%s): %w", i, s.Kind(), err)
		}
		fragments[i] = f
	}

	id := r.combine(fragments)
	if !r.topo.Contains(id) {
		return "", fmt.Errorf("%w: %q", sharderr.ErrShardNotFound, id)
	}
	return id, nil
}

func (r *CompoundRouter) Locate(key shardkey.CompoundKey) (topology.ShardInfo, error) {
	id, err := r.Route(key)
	if err != nil {
		return topology.ShardInfo{}, err
	}
	info, _ := r.topo.Get(id)
	return info, nil
}

// RouteAll expands unknown components to every fragment their strategy can produce,
// combines the cartesian product and keeps the ids present in the topology.
func (r *CompoundRouter) RouteAll(partial shardkey.PartialKey) ([]types.ShardID, error) {
	if partial.Len() != len(r.strategies) {
		return nil, fmt.Errorf("%w: partial key has %d components, router binds %d",
			sharderr.ErrKeyArity, partial.Len(), len(r.strategies))
	}

	sets := make([][]types.Fragment, len(r.strategies))
	total := 1
	for i, s := range r.strategies {
		if v, ok := partial.Component(i); ok {
			if v == "" {
				return nil, fmt.Errorf("%w: index %d", sharderr.ErrCompoundKeyComponentEmpty, i)
			}
			f, err := s.Route(v)
			if err != nil {
				return nil, fmt.Errorf("component %d (%s): %w", i, s.Kind(), err)
			}
			sets[i] = []types.Fragment{f}
		} else {
			sets[i] = s.Fragments()
		}

		total *= len(sets[i])
		if total > r.maxScatter {
			return nil, fmt.Errorf("%w: more than %d candidates", sharderr.ErrScatterTooWide, r.maxScatter)
		}
	}

	found := make(map[types.ShardID]struct{})
	fragments := make([]types.Fragment, len(sets))
	pos := make([]int, len(sets))
	for total > 0 {
		for i := range sets {
			fragments[i] = sets[i][pos[i]]
		}
		if id := r.combine(fragments); r.topo.Contains(id) {
			found[id] = struct{}{}
		}
		if !advance(pos, sets) {
			break
		}
	}

	if len(found) == 0 {
		return nil, fmt.Errorf("%w: %s", sharderr.ErrPartialKeyRoutingFailed, partial)
	}
	ids := make([]types.ShardID, 0, len(found))
	for id := range found {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// advance moves pos to the next tuple of the cartesian product, last index fastest.
func advance(pos []int, sets [][]types.Fragment) bool {
	for i := len(pos) - 1; i >= 0; i-- {
		pos[i]++
		if pos[i] < len(sets[i]) {
			return true
		}
		pos[i] = 0
	}
	return false
}
