package http

import (
	"shardroute/pkg/shadow"
	"shardroute/pkg/topology"
)

type Status string

const (
	// StatusOK is used for health-check responses.
	StatusOK Status = "OK"

	// StatusSuccess indicates an operation completed successfully.
	StatusSuccess Status = "success"

	// StatusError indicates an operation failed.
	StatusError Status = "error"
)

// Response represents the standard API response format.
type Response struct {
	Status     Status             `json:"status,omitempty"`
	Value      string             `json:"value,omitempty"`
	Error      string             `json:"error,omitempty"`
	ShardID    string             `json:"shard_id,omitempty"`
	ShardIDs   []string           `json:"shard_ids,omitempty"`
	Location   *topology.Location `json:"location,omitempty"`
	Comparison *Comparison        `json:"comparison,omitempty"`
}

// Comparison is the wire form of shadow.ComparisonResult.
type Comparison struct {
	ShardKey          string `json:"shard_key"`
	ProductionShardID string `json:"production_shard_id,omitempty"`
	ShadowShardID     string `json:"shadow_shard_id,omitempty"`
	RoutingMatch      bool   `json:"routing_match"`
	ProductionError   string `json:"production_error,omitempty"`
	ShadowError       string `json:"shadow_error,omitempty"`
}

func NewOKResponse() Response {
	return Response{Status: StatusOK}
}

func NewSuccessResponse() Response {
	return Response{Status: StatusSuccess}
}

func NewValueResponse(value string) Response {
	return Response{Status: StatusSuccess, Value: value}
}

func NewErrorResponse(err string) Response {
	return Response{Status: StatusError, Error: err}
}

func NewRouteResponse(shard topology.ShardInfo) Response {
	loc := shard.Location
	return Response{Status: StatusSuccess, ShardID: shard.ID, Location: &loc}
}

func NewScatterResponse(ids []string) Response {
	return Response{Status: StatusSuccess, ShardIDs: ids}
}

func NewComparisonResponse(res shadow.ComparisonResult) Response {
	c := &Comparison{
		ShardKey:          res.ShardKey,
		ProductionShardID: res.ProductionShardID,
		ShadowShardID:     res.ShadowShardID,
		RoutingMatch:      res.RoutingMatch,
	}
	if res.ProductionErr != nil {
		c.ProductionError = res.ProductionErr.Error()
	}
	if res.ShadowErr != nil {
		c.ShadowError = res.ShadowErr.Error()
	}
	return Response{Status: StatusSuccess, Comparison: c}
}
