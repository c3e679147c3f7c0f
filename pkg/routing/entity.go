package routing

import (
	"shardroute/pkg/shardkey"
	"shardroute/pkg/topology"
	"shardroute/pkg/types"
)

// EntityRouter extracts an entity's compound key and routes it.
type EntityRouter struct {
	extractor *shardkey.Extractor
	router    Router
}

func NewEntityRouter(extractor *shardkey.Extractor, router Router) *EntityRouter {
	return &EntityRouter{extractor: extractor, router: router}
}

func (e *EntityRouter) Route(entity any) (types.ShardID, error) {
	key, err := e.extractor.Extract(entity)
	if err != nil {
		return "", err
	}
	return e.router.Route(key)
}

func (e *EntityRouter) Locate(entity any) (topology.ShardInfo, error) {
	key, err := e.extractor.Extract(entity)
	if err != nil {
		return topology.ShardInfo{}, err
	}
	return e.router.Locate(key)
}
