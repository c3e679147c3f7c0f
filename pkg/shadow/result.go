package shadow

import (
	"time"

	"shardroute/pkg/types"
)

// Op is the kind of production call a shadow task mirrors.
type Op string

const (
	OpWrite Op = "write"
	OpRead  Op = "read"
)

// TaskState is the lifecycle of one shadow task:
// Scheduled -> Running -> Completed | TimedOut | Failed. Dropped tasks never run.
type TaskState uint8

const (
	StateScheduled TaskState = iota
	StateRunning
	StateCompleted
	StateTimedOut
	StateFailed
	StateDropped
)

func (s TaskState) String() string {
	switch s {
	case StateScheduled:
		return "scheduled"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateTimedOut:
		return "timed_out"
	case StateFailed:
		return "failed"
	case StateDropped:
		return "dropped"
	}
	return "unknown"
}

// ComparisonResult is the outcome of routing one key through both topologies and,
// for reads, comparing the returned payloads.
type ComparisonResult struct {
	ShardKey          types.ShardKey
	ProductionShardID types.ShardID
	ShadowShardID     types.ShardID
	RoutingMatch      bool
	// ResultsMatch is nil when payloads were not compared.
	ResultsMatch *bool

	ProductionErr error
	ShadowErr     error
}

// Discrepant reports whether routing or payloads disagreed.
func (c ComparisonResult) Discrepant() bool {
	if !c.RoutingMatch {
		return true
	}
	return c.ResultsMatch != nil && !*c.ResultsMatch
}

// TaskReport describes a finished (or dropped) shadow task.
type TaskReport struct {
	ID         string
	Op         Op
	State      TaskState
	Comparison ComparisonResult
	Err        error
	// LatencyDelta is shadow latency minus production latency.
	LatencyDelta time.Duration
}
