package strategy

import (
	"shardroute/pkg/topology"
	"shardroute/pkg/types"
)

// Hash routes values through a consistent-hash ring of fragments.
type Hash struct {
	ring *Ring
}

// NewHash builds a hash strategy over targets. vnodes <= 0 selects DefaultVirtualNodes.
func NewHash(vnodes int, targets ...types.Fragment) (*Hash, error) {
	ring, err := NewRing(vnodes, targets...)
	if err != nil {
		return nil, err
	}
	return &Hash{ring: ring}, nil
}

// NewTopologyHash hashes directly onto the shard ids of topo.
func NewTopologyHash(topo *topology.Topology, vnodes int) (*Hash, error) {
	return NewHash(vnodes, topo.IDs()...)
}

func (h *Hash) Kind() Kind { return KindHash }

func (h *Hash) Route(value string) (types.Fragment, error) {
	if err := checkValue(value); err != nil {
		return "", err
	}
	return h.ring.Get(value), nil
}

func (h *Hash) Fragments() []types.Fragment { return h.ring.Targets() }

func (h *Hash) Ring() *Ring { return h.ring }

func (*Hash) sealed() {}
