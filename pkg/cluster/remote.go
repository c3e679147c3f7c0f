package cluster

import (
	"context"
	"strings"

	"github.com/zhangyunhao116/skipmap"

	"shardroute/pkg/topology"
)

// Remote is a client of one shard backend.
type Remote interface {
	Put(ctx context.Context, key, value string) error
	Get(ctx context.Context, key string) (string, bool, error)
	Delete(ctx context.Context, key string) error
}

// ClientFactory returns a client for the backend described by shard.
type ClientFactory func(shard topology.ShardInfo) (Remote, error)

// ClientCache memoizes clients by backend address.
type ClientCache struct {
	dial    ClientFactory
	clients *skipmap.FuncMap[string, Remote]
}

func NewClientCache(dial ClientFactory) *ClientCache {
	return &ClientCache{
		dial: dial,
		clients: skipmap.NewFunc[string, Remote](func(a, b string) bool {
			return strings.Compare(a, b) < 0
		}),
	}
}

// Client returns the cached client for shard's address, dialing it on first use.
func (c *ClientCache) Client(shard topology.ShardInfo) (Remote, error) {
	addr := shard.Location.Addr
	if cl, ok := c.clients.Load(addr); ok {
		return cl, nil
	}
	cl, err := c.dial(shard)
	if err != nil {
		return nil, err
	}
	actual, _ := c.clients.LoadOrStore(addr, cl)
	return actual, nil
}
