package shadow

import (
	"strconv"

	"shardroute/pkg/metrics"
)

const (
	MetricRoutingComparisons = "shadow_routing_comparisons_total"
	MetricWrites             = "shadow_write_total"
	MetricReads              = "shadow_read_total"
	MetricLatencyDelta       = "shadow_latency_delta_seconds"
	MetricTasksInFlight      = "shadow_tasks_in_flight"
	MetricTasksDropped       = "shadow_tasks_dropped_total"
)

// LatencyDeltaBuckets suits shadow minus production latency, which may be negative.
var LatencyDeltaBuckets = []float64{-1, -0.25, -0.05, -0.01, -0.001, 0, 0.001, 0.01, 0.05, 0.25, 1}

type recorder struct {
	c metrics.Collector
}

func (r recorder) comparison(match bool) {
	r.c.IncCounter(MetricRoutingComparisons, map[string]string{"match": strconv.FormatBool(match)}, 1)
}

func (r recorder) dropped(op Op) {
	r.c.IncCounter(MetricTasksDropped, map[string]string{"op": string(op)}, 1)
}

func (r recorder) inFlight(n int64) {
	r.c.SetGauge(MetricTasksInFlight, nil, float64(n))
}

func (r recorder) finished(rep TaskReport) {
	switch rep.Op {
	case OpWrite:
		r.c.IncCounter(MetricWrites, map[string]string{"outcome": rep.State.String()}, 1)
	case OpRead:
		match := "unknown"
		if rep.Comparison.ResultsMatch != nil {
			match = strconv.FormatBool(*rep.Comparison.ResultsMatch)
		}
		r.c.IncCounter(MetricReads, map[string]string{"outcome": rep.State.String(), "results_match": match}, 1)
	}
	if rep.State == StateCompleted {
		r.c.ObserveHistogram(MetricLatencyDelta, map[string]string{"op": string(rep.Op)}, rep.LatencyDelta.Seconds())
	}
}
