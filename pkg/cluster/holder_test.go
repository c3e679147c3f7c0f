package cluster

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"shardroute/pkg/routing"
	"shardroute/pkg/shardkey"
	"shardroute/pkg/strategy"
	"shardroute/pkg/topology"
)

func hashBuild(topo *topology.Topology) (routing.Router, error) {
	return routing.NewBuilder(topo).
		BindFactory(0, func(t *topology.Topology) (strategy.Strategy, error) {
			return strategy.NewTopologyHash(t, 0)
		}).
		Build()
}

func TestHolder_Rebuild(t *testing.T) {
	three, err := topology.FromIDs("s0", "s1", "s2")
	require.NoError(t, err)
	four, err := topology.FromIDs("s0", "s1", "s2", "s3")
	require.NoError(t, err)

	h, err := NewHolder(hashBuild, three)
	require.NoError(t, err)
	require.Zero(t, h.Generation())
	require.Equal(t, 3, h.Topology().Len())

	k, err := shardkey.Simple("cust-42")
	require.NoError(t, err)
	id, err := h.Route(k)
	require.NoError(t, err)
	require.True(t, three.Contains(id))

	require.NoError(t, h.Rebuild(four))
	require.Equal(t, uint64(1), h.Generation())
	ids, err := h.RouteAll(shardkey.NewPartialKey(1))
	require.NoError(t, err)
	require.Equal(t, []string{"s0", "s1", "s2", "s3"}, ids)

	boom := errors.New("bad topology")
	failing := &Holder{build: func(*topology.Topology) (routing.Router, error) { return nil, boom }}
	failing.current.Store(h.current.Load())
	require.ErrorIs(t, failing.Rebuild(three), boom)
	require.Equal(t, 4, failing.Topology().Len(), "previous router stays active")

	_, err = NewHolder(func(*topology.Topology) (routing.Router, error) { return nil, boom }, three)
	require.ErrorIs(t, err, boom)
}

func TestHolder_ConcurrentRouteAndSwap(t *testing.T) {
	a, err := topology.FromIDs("a0", "a1")
	require.NoError(t, err)
	b, err := topology.FromIDs("b0", "b1", "b2")
	require.NoError(t, err)

	h, err := NewHolder(hashBuild, a)
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				k, _ := shardkey.Simple(fmt.Sprintf("k-%d-%d", g, i))
				info, err := h.Locate(k)
				if err != nil {
					errs <- err
					return
				}
				if !a.Contains(info.ID) && !b.Contains(info.ID) {
					errs <- fmt.Errorf("unknown shard %s", info.ID)
					return
				}
			}
		}(g)
	}
	for i := 0; i < 50; i++ {
		next := a
		if i%2 == 0 {
			next = b
		}
		require.NoError(t, h.Rebuild(next))
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
}
