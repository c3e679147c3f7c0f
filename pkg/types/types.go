package types

// ShardID identifies a shard inside a topology. IDs are opaque, non-empty strings.
type ShardID = string

// Fragment is the per-component output of a routing strategy. A combiner turns an
// ordered list of fragments into a ShardID.
type Fragment = string

// ShardKey is the canonical string form of a single routing value.
type ShardKey = string
