package strategy

import (
	"errors"
	"fmt"

	"shardroute/pkg/sharderr"
	"shardroute/pkg/types"
)

// RegionResolver maps a location code (country, postal prefix, datacenter tag...) to a
// region name. Implementations are supplied by the host.
type RegionResolver interface {
	ResolveRegion(code string) (string, error)
}

// StaticResolver is a fixed code -> region table.
type StaticResolver map[string]string

func (s StaticResolver) ResolveRegion(code string) (string, error) {
	if r, ok := s[code]; ok && r != "" {
		return r, nil
	}
	return "", fmt.Errorf("%w: %q", sharderr.ErrRegionUnresolved, code)
}

// Geo resolves a location code to a region and the region to a fragment.
type Geo struct {
	resolver RegionResolver
	regions  *Directory
}

func NewGeo(resolver RegionResolver, regions map[string]types.Fragment, opts ...DirectoryOption) (*Geo, error) {
	if resolver == nil {
		return nil, fmt.Errorf("%w: geo strategy needs a region resolver", sharderr.ErrInvalidStrategy)
	}
	dir, err := NewDirectory(regions, opts...)
	if err != nil {
		return nil, err
	}
	return &Geo{resolver: resolver, regions: dir}, nil
}

func (g *Geo) Kind() Kind { return KindGeo }

func (g *Geo) Route(value string) (types.Fragment, error) {
	if err := checkValue(value); err != nil {
		return "", err
	}
	region, err := g.resolver.ResolveRegion(value)
	if err != nil {
		if errors.Is(err, sharderr.ErrRegionUnresolved) {
			return "", err
		}
		return "", fmt.Errorf("%w: %q: %v", sharderr.ErrRegionUnresolved, value, err)
	}
	if region == "" {
		return "", fmt.Errorf("%w: %q", sharderr.ErrRegionUnresolved, value)
	}
	return g.regions.Route(region)
}

func (g *Geo) Fragments() []types.Fragment { return g.regions.Fragments() }

func (*Geo) sealed() {}
