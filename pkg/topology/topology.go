package topology

import (
	"fmt"

	"shardroute/pkg/sharderr"
	"shardroute/pkg/types"
)

// Location is the connection descriptor of a shard. The router never dials it; it is
// handed as-is to the persistence layer.
type Location struct {
	Addr string            `yaml:"addr" json:"addr"`
	DC   string            `yaml:"dc,omitempty" json:"dc,omitempty"`
	Rack string            `yaml:"rack,omitempty" json:"rack,omitempty"`
	Meta map[string]string `yaml:"meta,omitempty" json:"meta,omitempty"`
}

// ShardInfo describes one addressable shard.
type ShardInfo struct {
	ID       types.ShardID `yaml:"id" json:"id"`
	Location Location      `yaml:"location" json:"location"`
}

// Topology is an immutable, ordered set of shards. It is safe for concurrent reads.
type Topology struct {
	shards []ShardInfo
	byID   map[types.ShardID]int
}

// New validates shards and builds a topology. Order of shards is preserved.
func New(shards ...ShardInfo) (*Topology, error) {
	if len(shards) == 0 {
		return nil, sharderr.ErrEmptyTopology
	}

	t := &Topology{
		shards: make([]ShardInfo, 0, len(shards)),
		byID:   make(map[types.ShardID]int, len(shards)),
	}
	for _, s := range shards {
		if s.ID == "" {
			return nil, sharderr.ErrEmptyShardID
		}
		if _, ok := t.byID[s.ID]; ok {
			return nil, fmt.Errorf("%w: %q", sharderr.ErrDuplicateShardID, s.ID)
		}
		t.byID[s.ID] = len(t.shards)
		t.shards = append(t.shards, cloneInfo(s))
	}
	return t, nil
}

// FromIDs builds a topology of shards that carry no location. Handy for tests and for
// strategy-only setups.
func FromIDs(ids ...types.ShardID) (*Topology, error) {
	shards := make([]ShardInfo, 0, len(ids))
	for _, id := range ids {
		shards = append(shards, ShardInfo{ID: id})
	}
	return New(shards...)
}

// Get returns the shard with the given id.
func (t *Topology) Get(id types.ShardID) (ShardInfo, bool) {
	idx, ok := t.byID[id]
	if !ok {
		return ShardInfo{}, false
	}
	return cloneInfo(t.shards[idx]), true
}

func (t *Topology) Contains(id types.ShardID) bool {
	_, ok := t.byID[id]
	return ok
}

// IDs returns shard ids in topology order.
func (t *Topology) IDs() []types.ShardID {
	ids := make([]types.ShardID, len(t.shards))
	for i, s := range t.shards {
		ids[i] = s.ID
	}
	return ids
}

// Shards returns a copy of the shard list in topology order.
func (t *Topology) Shards() []ShardInfo {
	out := make([]ShardInfo, len(t.shards))
	for i, s := range t.shards {
		out[i] = cloneInfo(s)
	}
	return out
}

func (t *Topology) Len() int { return len(t.shards) }

func cloneInfo(s ShardInfo) ShardInfo {
	if s.Location.Meta != nil {
		meta := make(map[string]string, len(s.Location.Meta))
		for k, v := range s.Location.Meta {
			meta[k] = v
		}
		s.Location.Meta = meta
	}
	return s
}
