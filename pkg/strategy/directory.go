package strategy

import (
	"fmt"

	"shardroute/pkg/sharderr"
	"shardroute/pkg/types"
)

type DirectoryOption func(*Directory)

// WithDefault makes misses route to fragment instead of failing with ErrDirectoryMiss.
func WithDefault(fragment types.Fragment) DirectoryOption {
	return func(d *Directory) { d.fallback = fragment }
}

// Directory is an explicit value -> fragment map.
type Directory struct {
	entries  map[string]types.Fragment
	fallback types.Fragment
}

func NewDirectory(entries map[string]types.Fragment, opts ...DirectoryOption) (*Directory, error) {
	d := &Directory{entries: make(map[string]types.Fragment, len(entries))}
	for _, o := range opts {
		o(d)
	}
	for k, v := range entries {
		if k == "" || v == "" {
			return nil, fmt.Errorf("%w: directory entry %q -> %q", sharderr.ErrInvalidStrategy, k, v)
		}
		d.entries[k] = v
	}
	if len(d.entries) == 0 && d.fallback == "" {
		return nil, fmt.Errorf("%w: directory has no entries and no default", sharderr.ErrInvalidStrategy)
	}
	return d, nil
}

func (d *Directory) Kind() Kind { return KindDirectory }

func (d *Directory) Route(value string) (types.Fragment, error) {
	if err := checkValue(value); err != nil {
		return "", err
	}
	if f, ok := d.entries[value]; ok {
		return f, nil
	}
	if d.fallback != "" {
		return d.fallback, nil
	}
	return "", fmt.Errorf("%w: %q", sharderr.ErrDirectoryMiss, value)
}

func (d *Directory) Fragments() []types.Fragment {
	frags := make([]string, 0, len(d.entries)+1)
	for _, f := range d.entries {
		frags = append(frags, f)
	}
	if d.fallback != "" {
		frags = append(frags, d.fallback)
	}
	return sortedUnique(frags)
}

func (*Directory) sealed() {}
