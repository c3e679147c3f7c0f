package strategy

import (
	"fmt"
	"math"
	"testing"

	"github.com/cespare/xxhash/v2"
	"github.com/stretchr/testify/require"
)

func makeRing(t *testing.T, n, replicas int) *Ring {
	t.Helper()
	targets := make([]string, 0, n)
	for i := 0; i < n; i++ {
		targets = append(targets, fmt.Sprintf("shard-%d", i))
	}
	r, err := NewRing(replicas, targets...)
	require.NoError(t, err)
	return r
}

func TestRing_DistributionUniformity(t *testing.T) {
	const n = 3
	r := makeRing(t, n, DefaultVirtualNodes)
	total := 60_000

	counts := map[string]int{}
	for i := 0; i < total; i++ {
		counts[r.Get(fmt.Sprintf("key-%d", i))]++
	}
	require.Len(t, counts, n)

	ideal := float64(total) / n
	tolerance := 0.3 * ideal
	for target, c := range counts {
		diff := math.Abs(float64(c) - ideal)
		require.LessOrEqualf(t, diff, tolerance, "target %s: count=%d ideal=%.0f", target, c, ideal)
	}
}

func TestRing_MinimalMovementOnAdd(t *testing.T) {
	total := 100_000
	r := makeRing(t, 3, DefaultVirtualNodes)

	before := make([]string, total)
	for i := 0; i < total; i++ {
		before[i] = r.Get(fmt.Sprintf("k-%d", i))
	}

	grown, err := r.With("shard-3")
	require.NoError(t, err)

	moved := 0
	for i := 0; i < total; i++ {
		now := grown.Get(fmt.Sprintf("k-%d", i))
		if before[i] != now {
			require.Equal(t, "shard-3", now, "keys may only move to the new target")
			moved++
		}
	}
	frac := float64(moved) / float64(total)
	require.Truef(t, frac > 0.15 && frac < 0.35, "moved fraction %.3f, expected about 0.25", frac)
}

func TestRing_DeterministicAndOrderIndependent(t *testing.T) {
	a, err := NewRing(0, "shard-0", "shard-1", "shard-2")
	require.NoError(t, err)
	b, err := NewRing(0, "shard-2", "shard-0", "shard-1", "shard-0")
	require.NoError(t, err)

	for i := 0; i < 10_000; i++ {
		k := fmt.Sprintf("id-%d", i)
		require.Equal(t, a.Get(k), b.Get(k), "non-deterministic mapping for %s", k)
	}
	require.Equal(t, []string{"shard-0", "shard-1", "shard-2"}, b.Targets())
}

func TestRing_Without(t *testing.T) {
	r := makeRing(t, 3, 128)
	owner := r.Get("foo")

	shrunk, err := r.Without(owner)
	require.NoError(t, err)
	require.NotEqual(t, owner, shrunk.Get("foo"))
	require.NotContains(t, shrunk.Targets(), owner)

	_, err = NewRing(10)
	require.Error(t, err)
}

func TestRing_GoldenPlacement(t *testing.T) {
	// Fixed placements for {shard-0, shard-1, shard-2} at 160 points per target.
	// A change here moves stored data between shards.
	require.Equal(t, uint64(0xef46db3751d8e999), xxhash.Sum64String(""))
	require.Equal(t, uint64(0x424aef53fe344281), xxhash.Sum64String("cust-42"))

	r := makeRing(t, 3, DefaultVirtualNodes)
	golden := map[string]string{
		"cust-42":   "shard-1",
		"cust-1":    "shard-1",
		"cust-7":    "shard-2",
		"order-100": "shard-0",
		"user-7":    "shard-0",
		"eu-west":   "shard-0",
		"tenant-a":  "shard-2",
		"alpha":     "shard-2",
	}
	for key, want := range golden {
		require.Equalf(t, want, r.Get(key), "key %q", key)
	}

	h, err := NewHash(0, "shard-2", "shard-0", "shard-1")
	require.NoError(t, err)
	got, err := h.Route("cust-42")
	require.NoError(t, err)
	require.Equal(t, "shard-1", got)
}
