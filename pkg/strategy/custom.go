package strategy

import (
	"fmt"
	"sort"

	"shardroute/pkg/sharderr"
	"shardroute/pkg/types"
)

// RouteFunc is the routing body of a Custom strategy. It is never called with an empty value.
type RouteFunc func(value string) (types.Fragment, error)

// Custom wraps a user routing function. The declared fragments define its domain for
// scatter-gather; Route must only return members of it.
type Custom struct {
	name      string
	route     RouteFunc
	fragments []types.Fragment
}

func NewCustom(name string, route RouteFunc, fragments ...types.Fragment) (*Custom, error) {
	if route == nil {
		return nil, fmt.Errorf("%w: custom strategy %q has no route func", sharderr.ErrInvalidStrategy, name)
	}
	if len(fragments) == 0 {
		return nil, fmt.Errorf("%w: custom strategy %q declares no fragments", sharderr.ErrInvalidStrategy, name)
	}
	return &Custom{name: name, route: route, fragments: sortedUnique(fragments)}, nil
}

func (c *Custom) Name() string { return c.name }

func (c *Custom) Kind() Kind { return KindCustom }

func (c *Custom) Route(value string) (types.Fragment, error) {
	if err := checkValue(value); err != nil {
		return "", err
	}
	f, err := c.route(value)
	if err != nil {
		return "", err
	}
	if i := sort.SearchStrings(c.fragments, f); i == len(c.fragments) || c.fragments[i] != f {
		return "", fmt.Errorf("%w: custom strategy %q returned undeclared fragment %q",
			sharderr.ErrInvalidStrategy, c.name, f)
	}
	return f, nil
}

func (c *Custom) Fragments() []types.Fragment {
	out := make([]types.Fragment, len(c.fragments))
	copy(out, c.fragments)
	return out
}

func (*Custom) sealed() {}
