package strategy

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"shardroute/pkg/sharderr"
	"shardroute/pkg/types"
)

// Bound is an inclusive upper bound of a range and the fragment that owns it.
type Bound struct {
	Upper    string
	Fragment types.Fragment
}

type RangeOption func(*Range)

// WithOpenEnded routes values above the last bound to fragment instead of failing.
func WithOpenEnded(fragment types.Fragment) RangeOption {
	return func(r *Range) { r.open = fragment }
}

// WithNumericOrder compares bounds and values as numbers instead of strings.
func WithNumericOrder() RangeOption {
	return func(r *Range) { r.numeric = true }
}

// Range maps a value to the first bound whose upper limit is >= the value.
type Range struct {
	bounds  []Bound
	nums    []float64
	open    types.Fragment
	numeric bool
}

// NewRange validates that bounds are strictly ascending and builds the strategy.
func NewRange(bounds []Bound, opts ...RangeOption) (*Range, error) {
	if len(bounds) == 0 {
		return nil, fmt.Errorf("%w: range needs at least one bound", sharderr.ErrInvalidStrategy)
	}
	r := &Range{bounds: append([]Bound(nil), bounds...)}
	for _, o := range opts {
		o(r)
	}

	if r.numeric {
		r.nums = make([]float64, len(r.bounds))
		for i, b := range r.bounds {
			n, err := strconv.ParseFloat(strings.TrimSpace(b.Upper), 64)
			if err != nil {
				return nil, fmt.Errorf("%w: bound %q is not numeric", sharderr.ErrInvalidStrategy, b.Upper)
			}
			r.nums[i] = n
		}
	}

	for i, b := range r.bounds {
		if b.Upper == "" || b.Fragment == "" {
			return nil, fmt.Errorf("%w: bound %d has an empty upper limit or fragment", sharderr.ErrInvalidStrategy, i)
		}
		if i > 0 && r.compareBounds(i-1, i) >= 0 {
			return nil, fmt.Errorf("%w: bounds must be strictly ascending (%q then %q)",
				sharderr.ErrInvalidStrategy, r.bounds[i-1].Upper, b.Upper)
		}
	}
	return r, nil
}

func (r *Range) compareBounds(i, j int) int {
	if r.numeric {
		switch {
		case r.nums[i] < r.nums[j]:
			return -1
		case r.nums[i] > r.nums[j]:
			return 1
		}
		return 0
	}
	return strings.Compare(r.bounds[i].Upper, r.bounds[j].Upper)
}

func (r *Range) Kind() Kind { return KindRange }

func (r *Range) Route(value string) (types.Fragment, error) {
	if err := checkValue(value); err != nil {
		return "", err
	}

	var idx int
	if r.numeric {
		n, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			return "", fmt.Errorf("%w: %q is not numeric", sharderr.ErrNoMatchingRange, value)
		}
		idx = sort.Search(len(r.nums), func(i int) bool { return r.nums[i] >= n })
	} else {
		idx = sort.Search(len(r.bounds), func(i int) bool { return r.bounds[i].Upper >= value })
	}

	if idx < len(r.bounds) {
		return r.bounds[idx].Fragment, nil
	}
	if r.open != "" {
		return r.open, nil
	}
	return "", fmt.Errorf("%w: %q is above the last bound %q", sharderr.ErrNoMatchingRange, value, r.bounds[len(r.bounds)-1].Upper)
}

func (r *Range) Fragments() []types.Fragment {
	frags := make([]string, 0, len(r.bounds)+1)
	for _, b := range r.bounds {
		frags = append(frags, b.Fragment)
	}
	if r.open != "" {
		frags = append(frags, r.open)
	}
	return sortedUnique(frags)
}

func (*Range) sealed() {}
