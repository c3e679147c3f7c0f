// Package strategy holds the per-component routing strategies. The set of variants is
// closed: Hash, Range, Directory, Geo and Custom. Anything else is expressed as Custom.
//
// A strategy maps a single component value to a fragment. Strategies are immutable after
// construction and safe for concurrent use.
package strategy

import (
	"fmt"
	"sort"
	"strings"

	"shardroute/pkg/sharderr"
	"shardroute/pkg/topology"
	"shardroute/pkg/types"
)

type Kind uint8

const (
	KindHash Kind = iota + 1
	KindRange
	KindDirectory
	KindGeo
	KindCustom
)

func (k Kind) String() string {
	switch k {
	case KindHash:
		return "hash"
	case KindRange:
		return "range"
	case KindDirectory:
		return "directory"
	case KindGeo:
		return "geo"
	case KindCustom:
		return "custom"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// ParseKind is the inverse of Kind.String.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "hash":
		return KindHash, nil
	case "range":
		return KindRange, nil
	case "directory":
		return KindDirectory, nil
	case "geo":
		return KindGeo, nil
	case "custom":
		return KindCustom, nil
	}
	return 0, fmt.Errorf("%w: unknown strategy %q", sharderr.ErrInvalidStrategy, s)
}

// Strategy routes one key component to a fragment.
type Strategy interface {
	Kind() Kind
	// Route maps value to a fragment. An empty value is always ErrComponentValueEmpty.
	Route(value string) (types.Fragment, error)
	// Fragments lists every fragment Route can produce, sorted and de-duplicated.
	Fragments() []types.Fragment

	sealed()
}

// Factory builds a strategy with access to the topology it will route into.
type Factory func(topo *topology.Topology) (Strategy, error)

func checkValue(value string) error {
	if value == "" {
		return sharderr.ErrComponentValueEmpty
	}
	return nil
}

func sortedUnique(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
