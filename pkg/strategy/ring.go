package strategy

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/cespare/xxhash/v2"

	"shardroute/pkg/sharderr"
)

// DefaultVirtualNodes is the number of ring points placed per target.
const DefaultVirtualNodes = 160

type vnode struct {
	hash   uint64
	target string
}

// Ring implements consistent hashing with virtual nodes.
//
// Every target contributes points at xxhash64("<target>#<i>") for i in [0, replicas).
// Points are ordered by (hash, target) so the ring depends only on the target set, never
// on the order targets were supplied in. A key owns the first point whose hash is >= the
// key hash, wrapping around to the first point. The ring is immutable once built.
type Ring struct {
	replicas int
	points   []vnode
	targets  []string
}

func NewRing(replicas int, targets ...string) (*Ring, error) {
	if replicas <= 0 {
		replicas = DefaultVirtualNodes
	}
	if len(targets) == 0 {
		return nil, fmt.Errorf("%w: ring needs at least one target", sharderr.ErrInvalidStrategy)
	}

	seen := make(map[string]struct{}, len(targets))
	uniq := make([]string, 0, len(targets))
	for _, t := range targets {
		if t == "" {
			return nil, fmt.Errorf("%w: empty ring target", sharderr.ErrInvalidStrategy)
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		uniq = append(uniq, t)
	}
	sort.Strings(uniq)

	points := make([]vnode, 0, len(uniq)*replicas)
	for _, t := range uniq {
		for i := 0; i < replicas; i++ {
			points = append(points, vnode{
				hash:   xxhash.Sum64String(t + "#" + strconv.Itoa(i)),
				target: t,
			})
		}
	}
	sort.Slice(points, func(i, j int) bool {
		if points[i].hash != points[j].hash {
			return points[i].hash < points[j].hash
		}
		return points[i].target < points[j].target
	})

	return &Ring{replicas: replicas, points: points, targets: uniq}, nil
}

// Get returns the target owning key.
func (r *Ring) Get(key string) string {
	h := xxhash.Sum64String(key)
	idx := sort.Search(len(r.points), func(i int) bool { return r.points[i].hash >= h })
	if idx == len(r.points) {
		idx = 0
	}
	return r.points[idx].target
}

// Targets returns the sorted, de-duplicated target list.
func (r *Ring) Targets() []string {
	out := make([]string, len(r.targets))
	copy(out, r.targets)
	return out
}

func (r *Ring) Replicas() int { return r.replicas }

// With returns a new ring that also contains the given targets.
func (r *Ring) With(targets ...string) (*Ring, error) {
	return NewRing(r.replicas, append(r.Targets(), targets...)...)
}

// Without returns a new ring with target removed.
func (r *Ring) Without(target string) (*Ring, error) {
	rest := make([]string, 0, len(r.targets))
	for _, t := range r.targets {
		if t != target {
			rest = append(rest, t)
		}
	}
	return NewRing(r.replicas, rest...)
}
