package cluster

import (
	"fmt"
	"log/slog"
	"sync/atomic"

	"shardroute/pkg/routing"
	"shardroute/pkg/shardkey"
	"shardroute/pkg/topology"
	"shardroute/pkg/types"
)

// BuildFunc builds a router over a topology.
type BuildFunc func(topo *topology.Topology) (routing.Router, error)

type generation struct {
	router routing.Router
	seq    uint64
}

// Holder is a routing.Router whose topology can change at runtime. Each call is served
// entirely by one router generation.
type Holder struct {
	build   BuildFunc
	current atomic.Pointer[generation]
}

var _ routing.Router = (*Holder)(nil)

func NewHolder(build BuildFunc, topo *topology.Topology) (*Holder, error) {
	h := &Holder{build: build}
	if err := h.Rebuild(topo); err != nil {
		return nil, err
	}
	return h, nil
}

// Rebuild swaps in a router over topo. On failure the previous router stays active.
func (h *Holder) Rebuild(topo *topology.Topology) error {
	r, err := h.build(topo)
	if err != nil {
		return fmt.Errorf("rebuild router: %w", err)
	}
	var seq uint64
	if prev := h.current.Load(); prev != nil {
		seq = prev.seq + 1
	}
	h.current.Store(&generation{router: r, seq: seq})
	slog.Info("router updated", "generation", seq, "shards", topo.IDs())
	return nil
}

// Current is the active router.
func (h *Holder) Current() routing.Router { return h.current.Load().router }

// Generation counts successful rebuilds after the first.
func (h *Holder) Generation() uint64 { return h.current.Load().seq }

func (h *Holder) Route(key shardkey.CompoundKey) (types.ShardID, error) {
	return h.Current().Route(key)
}

func (h *Holder) RouteAll(partial shardkey.PartialKey) ([]types.ShardID, error) {
	return h.Current().RouteAll(partial)
}

func (h *Holder) Locate(key shardkey.CompoundKey) (topology.ShardInfo, error) {
	return h.Current().Locate(key)
}

func (h *Holder) Topology() *topology.Topology { return h.Current().Topology() }
