package routing

import (
	"strings"

	"shardroute/pkg/types"
)

// DefaultSeparator joins fragments in the default combiner.
const DefaultSeparator = "-"

// Combiner merges per-component fragments, in component order, into a shard id.
// It must be a pure function.
type Combiner func(fragments []types.Fragment) types.ShardID

// JoinCombiner joins fragments with sep. A single fragment is returned unchanged.
func JoinCombiner(sep string) Combiner {
	return func(fragments []types.Fragment) types.ShardID {
		return strings.Join(fragments, sep)
	}
}

func DefaultCombiner() Combiner { return JoinCombiner(DefaultSeparator) }
