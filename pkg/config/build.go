package config

import (
	"fmt"

	"shardroute/pkg/routing"
	"shardroute/pkg/shadow"
	"shardroute/pkg/sharderr"
	"shardroute/pkg/strategy"
	"shardroute/pkg/topology"
)

// BuildTopology builds the static topology. ZooKeeper-backed topologies are loaded by
// the cluster package.
func BuildTopology(tc TopologyConfig) (*topology.Topology, error) {
	return topology.New(tc.Shards...)
}

// BuildStrategy turns one component description into a strategy. Hash components with
// no explicit targets hash onto the topology's shard IDs. Custom strategies are looked up
// by name in customs.
func BuildStrategy(sc StrategyConfig, topo *topology.Topology, customs map[string]strategy.Factory) (strategy.Strategy, error) {
	kind, err := strategy.ParseKind(sc.Strategy)
	if err != nil {
		return nil, err
	}

	switch kind {
	case strategy.KindHash:
		if len(sc.Targets) == 0 {
			return strategy.NewTopologyHash(topo, sc.VirtualNodes)
		}
		return strategy.NewHash(sc.VirtualNodes, sc.Targets...)

	case strategy.KindRange:
		bounds := make([]strategy.Bound, len(sc.Bounds))
		for i, b := range sc.Bounds {
			bounds[i] = strategy.Bound{Upper: b.Upper, Fragment: b.Fragment}
		}
		var opts []strategy.RangeOption
		if sc.OpenEnded != "" {
			opts = append(opts, strategy.WithOpenEnded(sc.OpenEnded))
		}
		if sc.Numeric {
			opts = append(opts, strategy.WithNumericOrder())
		}
		return strategy.NewRange(bounds, opts...)

	case strategy.KindDirectory:
		return strategy.NewDirectory(sc.Entries, directoryOpts(sc)...)

	case strategy.KindGeo:
		return strategy.NewGeo(strategy.StaticResolver(sc.Resolver), sc.Regions, directoryOpts(sc)...)

	case strategy.KindCustom:
		f, ok := customs[sc.Name]
		if !ok {
			return nil, fmt.Errorf("%w: custom strategy %q is not registered", sharderr.ErrInvalidStrategy, sc.Name)
		}
		return f(topo)
	}
	return nil, fmt.Errorf("%w: %s", sharderr.ErrInvalidStrategy, kind)
}

func directoryOpts(sc StrategyConfig) []strategy.DirectoryOption {
	if sc.Default == "" {
		return nil
	}
	return []strategy.DirectoryOption{strategy.WithDefault(sc.Default)}
}

// BuildRouter binds component i of the routing config to key component i.
func BuildRouter(rc RoutingConfig, topo *topology.Topology, customs map[string]strategy.Factory) (*routing.CompoundRouter, error) {
	b := routing.NewBuilder(topo)
	for i, sc := range rc.Components {
		sc := sc
		b.BindFactory(i, func(t *topology.Topology) (strategy.Strategy, error) {
			return BuildStrategy(sc, t, customs)
		})
	}
	if rc.Separator != "" {
		b.WithCombiner(routing.JoinCombiner(rc.Separator))
	}
	if rc.MaxScatter > 0 {
		b.WithMaxScatter(rc.MaxScatter)
	}
	return b.Build()
}

// BuildShadow wraps production with a decorator over the shadow topology. When the shadow
// section has no routing components the production routing config is reused.
func BuildShadow(cfg Config, production routing.Router, customs map[string]strategy.Factory, opts ...shadow.Option) (*shadow.Decorator, error) {
	sc := cfg.Shadow
	topo, err := BuildTopology(sc.Topology)
	if err != nil {
		return nil, fmt.Errorf("shadow topology: %w", err)
	}
	rc := sc.Routing
	if len(rc.Components) == 0 {
		rc = cfg.Routing
	}
	router, err := BuildRouter(rc, topo, customs)
	if err != nil {
		return nil, fmt.Errorf("shadow router: %w", err)
	}

	base := []shadow.Option{
		shadow.WithReadPercentage(sc.ReadPercentage),
		shadow.WithTimeout(sc.Timeout),
		shadow.WithMaxInFlight(sc.MaxInFlight),
	}
	return shadow.New(production, router, append(base, opts...)...), nil
}
