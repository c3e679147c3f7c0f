package cluster

import (
	"context"
	"fmt"
	"log/slog"

	"shardroute/pkg/routing"
	"shardroute/pkg/shadow"
	"shardroute/pkg/shardkey"
	"shardroute/pkg/topology"
)

// Proxy runs a shard call against the shard a key routes to. *shadow.Decorator mirrors
// the call to its shadow topology; Direct does not.
type Proxy interface {
	Write(ctx context.Context, key shardkey.CompoundKey, w shadow.Writer) error
	Read(ctx context.Context, key shardkey.CompoundKey, r shadow.Reader) ([]byte, error)
}

type direct struct {
	router routing.Router
}

// Direct calls the routed shard only.
func Direct(router routing.Router) Proxy { return direct{router: router} }

func (d direct) Write(ctx context.Context, key shardkey.CompoundKey, w shadow.Writer) error {
	shard, err := d.router.Locate(key)
	if err != nil {
		return err
	}
	return w(ctx, shard)
}

func (d direct) Read(ctx context.Context, key shardkey.CompoundKey, r shadow.Reader) ([]byte, error) {
	shard, err := d.router.Locate(key)
	if err != nil {
		return nil, err
	}
	return r(ctx, shard)
}

var _ Proxy = (*shadow.Decorator)(nil)

// Reads encode presence in a leading byte so that the shadow comparison also covers
// found versus not found.
const (
	absent  byte = 0
	present byte = 1
)

// Store is a sharded key-value store. Records live on the shard their compound key
// routes to, under the key's string form.
type Store struct {
	proxy   Proxy
	clients ClientFactory
}

func NewStore(proxy Proxy, clients ClientFactory) *Store {
	return &Store{proxy: proxy, clients: clients}
}

func (s *Store) client(shard topology.ShardInfo) (Remote, error) {
	cl, err := s.clients(shard)
	if err != nil {
		return nil, fmt.Errorf("store: client for shard %s: %w", shard.ID, err)
	}
	return cl, nil
}

func (s *Store) log(method, key string, shard topology.ShardInfo) {
	slog.Debug("store call", "method", method, "key", key, "shard", shard.ID, "addr", shard.Location.Addr)
}

func (s *Store) Put(ctx context.Context, key shardkey.CompoundKey, value string) error {
	record := key.Encode()
	return s.proxy.Write(ctx, key, func(ctx context.Context, shard topology.ShardInfo) error {
		s.log("PUT", record, shard)
		cl, err := s.client(shard)
		if err != nil {
			return err
		}
		return cl.Put(ctx, record, value)
	})
}

func (s *Store) Get(ctx context.Context, key shardkey.CompoundKey) (string, bool, error) {
	record := key.Encode()
	data, err := s.proxy.Read(ctx, key, func(ctx context.Context, shard topology.ShardInfo) ([]byte, error) {
		s.log("GET", record, shard)
		cl, err := s.client(shard)
		if err != nil {
			return nil, err
		}
		v, found, err := cl.Get(ctx, record)
		if err != nil {
			return nil, err
		}
		if !found {
			return []byte{absent}, nil
		}
		return append([]byte{present}, v...), nil
	})
	if err != nil {
		return "", false, err
	}
	if len(data) == 0 || data[0] != present {
		return "", false, nil
	}
	return string(data[1:]), true, nil
}

func (s *Store) Delete(ctx context.Context, key shardkey.CompoundKey) error {
	record := key.Encode()
	return s.proxy.Write(ctx, key, func(ctx context.Context, shard topology.ShardInfo) error {
		s.log("DELETE", record, shard)
		cl, err := s.client(shard)
		if err != nil {
			return err
		}
		return cl.Delete(ctx, record)
	})
}
