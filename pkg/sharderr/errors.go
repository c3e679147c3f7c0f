package sharderr

import "errors"

// Configuration errors. Detected while building topologies, strategies and routers.
var (
	ErrEmptyTopology          = errors.New("shardroute: topology has no shards")
	ErrEmptyShardID           = errors.New("shardroute: shard id is empty")
	ErrDuplicateShardID       = errors.New("shardroute: duplicate shard id")
	ErrNonContiguousBindings  = errors.New("shardroute: component bindings are not contiguous from 0")
	ErrDuplicateBinding       = errors.New("shardroute: component index bound twice")
	ErrNoBindings             = errors.New("shardroute: no component bindings")
	ErrInvalidStrategy        = errors.New("shardroute: invalid strategy configuration")
	ErrDuplicateShardKeyOrder = errors.New("shardroute: duplicate shard key order")
	ErrInvalidKeyField        = errors.New("shardroute: invalid shard key field")
)

// Key errors. Per call and recoverable.
var (
	ErrCompoundKeyEmpty          = errors.New("shardroute: compound shard key is empty")
	ErrCompoundKeyComponentEmpty = errors.New("shardroute: compound shard key component is empty")
	ErrComponentValueEmpty       = errors.New("shardroute: component value is empty")
	ErrKeyArity                  = errors.New("shardroute: key arity does not match router bindings")
	ErrNoShardKeyFound           = errors.New("shardroute: no shard key found")
)

// Routing errors. Per call and recoverable.
var (
	ErrNoMatchingRange         = errors.New("shardroute: no matching range")
	ErrDirectoryMiss           = errors.New("shardroute: value not found in directory")
	ErrShardNotFound           = errors.New("shardroute: shard not found in topology")
	ErrPartialKeyRoutingFailed = errors.New("shardroute: partial key routing failed")
	ErrScatterTooWide          = errors.New("shardroute: partial key expands to too many candidates")
	ErrRegionUnresolved        = errors.New("shardroute: location code has no region")
)

var (
	configErrors = []error{
		ErrEmptyTopology, ErrEmptyShardID, ErrDuplicateShardID, ErrNonContiguousBindings,
		ErrDuplicateBinding, ErrNoBindings, ErrInvalidStrategy, ErrDuplicateShardKeyOrder, ErrInvalidKeyField,
	}
	keyErrors = []error{
		ErrCompoundKeyEmpty, ErrCompoundKeyComponentEmpty, ErrComponentValueEmpty,
		ErrKeyArity, ErrNoShardKeyFound,
	}
	routingErrors = []error{
		ErrNoMatchingRange, ErrDirectoryMiss, ErrShardNotFound, ErrPartialKeyRoutingFailed,
		ErrScatterTooWide, ErrRegionUnresolved,
	}
)

// IsConfig reports whether err is a build-time configuration error.
func IsConfig(err error) bool { return isAny(err, configErrors) }

// IsKey reports whether err is caused by a missing or malformed key.
func IsKey(err error) bool { return isAny(err, keyErrors) }

// IsRouting reports whether err is a recoverable routing failure.
func IsRouting(err error) bool { return isAny(err, routingErrors) }

func isAny(err error, targets []error) bool {
	if err == nil {
		return false
	}
	for _, t := range targets {
		if errors.Is(err, t) {
			return true
		}
	}
	return false
}
