package config

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/stretchr/testify/require"

	"shardroute/pkg/sharderr"
	"shardroute/pkg/shardkey"
	"shardroute/pkg/strategy"
	"shardroute/pkg/topology"
	"shardroute/pkg/types"
)

const regionCustomerYAML = `
logger:
  level: debug
  json: true
http-server:
  port: 9090
  read_header_timeout: 3s
topology:
  shards:
    - id: us-a
      location: {addr: "10.0.0.1:5432", dc: us-east}
    - id: us-b
      location: {addr: "10.0.0.2:5432", dc: us-east}
    - id: eu-a
      location: {addr: "10.1.0.1:5432", dc: eu-west}
    - id: eu-b
      location: {addr: "10.1.0.2:5432", dc: eu-west}
routing:
  components:
    - strategy: range
      bounds:
        - {upper: eu-west, fragment: eu}
        - {upper: us-west, fragment: us}
    - strategy: hash
      targets: [a, b]
shadow:
  enabled: true
  read_percentage: 25
  timeout: 500ms
  max_in_flight: 16
  topology:
    shards:
      - {id: us-a}
      - {id: us-b}
      - {id: us-c}
      - {id: eu-a}
      - {id: eu-b}
      - {id: eu-c}
  routing:
    components:
      - strategy: range
        bounds:
          - {upper: eu-west, fragment: eu}
          - {upper: us-west, fragment: us}
      - strategy: hash
        targets: [a, b, c]
`

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	topo, err := BuildTopology(cfg.Topology)
	require.NoError(t, err)
	r, err := BuildRouter(cfg.Routing, topo, nil)
	require.NoError(t, err)

	k, err := shardkey.Simple("cust-42")
	require.NoError(t, err)
	id, err := r.Route(k)
	require.NoError(t, err)
	require.True(t, topo.Contains(id))
}

func TestParse_RegionCustomer(t *testing.T) {
	cfg, err := Parse([]byte(regionCustomerYAML))
	require.NoError(t, err)

	require.Equal(t, slog.LevelDebug, cfg.Logger.SlogLevel())
	require.True(t, cfg.Logger.JSON)
	require.Equal(t, ":9090", cfg.Server.Addr())
	require.Equal(t, 3*time.Second, cfg.Server.ReadHeaderTimeout)
	require.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout, "unset keys keep defaults")
	require.Equal(t, 500*time.Millisecond, cfg.Shadow.Timeout)
	require.Len(t, cfg.Topology.Shards, 4)
	require.Equal(t, "eu-west", cfg.Topology.Shards[2].Location.DC)

	topo, err := BuildTopology(cfg.Topology)
	require.NoError(t, err)
	r, err := BuildRouter(cfg.Routing, topo, nil)
	require.NoError(t, err)
	require.Equal(t, 2, r.Arity())

	k, err := shardkey.NewCompoundKey("eu-central", "cust-1")
	require.NoError(t, err)
	id, err := r.Route(k)
	require.NoError(t, err)
	require.Contains(t, []string{"eu-a", "eu-b"}, id)

	info, err := r.Locate(k)
	require.NoError(t, err)
	require.Equal(t, "eu-west", info.Location.DC)

	d, err := BuildShadow(cfg, r, nil)
	require.NoError(t, err)
	defer d.Close()
	require.Equal(t, 6, d.ShadowTopology().Len())

	res := d.Compare(k)
	require.NoError(t, res.ShadowErr)
	require.Contains(t, []string{"eu-a", "eu-b", "eu-c"}, res.ShadowShardID)
}

func TestParse_RejectsUnknownKeys(t *testing.T) {
	_, err := Parse([]byte("logger:\n  level: info\n  colour: true\n"))
	require.Error(t, err)
}

func TestValidate_AggregatesErrors(t *testing.T) {
	cfg := Default()
	cfg.Logger.Level = "loud"
	cfg.Server.Port = 0
	cfg.Routing.Components = []StrategyConfig{
		{Strategy: "bogus"},
		{Strategy: "range"},
		{Strategy: "custom"},
	}

	err := cfg.Validate()
	require.Error(t, err)

	var merr *multierror.Error
	require.True(t, errors.As(err, &merr))
	require.Len(t, merr.Errors, 5)
}

func TestValidate_Topology(t *testing.T) {
	cfg := Default()
	cfg.Topology.Shards = append(cfg.Topology.Shards, topology.ShardInfo{ID: "shard-0"}, topology.ShardInfo{})
	require.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Topology.Shards = nil
	require.Error(t, cfg.Validate())

	cfg.Topology.ZooKeeper.Servers = []string{"localhost:2181"}
	require.NoError(t, cfg.Validate())

	cfg.Topology.ZooKeeper.Root = "shardroute"
	require.Error(t, cfg.Validate())
}

func TestValidate_Shadow(t *testing.T) {
	cfg := Default()
	cfg.Shadow.Enabled = true
	require.Error(t, cfg.Validate(), "enabled shadow needs a topology")

	cfg.Shadow.Topology.Shards = []topology.ShardInfo{{ID: "s0"}}
	require.NoError(t, cfg.Validate())

	cfg.Shadow.ReadPercentage = 120
	require.Error(t, cfg.Validate())
}

func TestLoad(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(regionCustomerYAML), 0o600))
	cfg, err = Load(path)
	require.NoError(t, err)
	require.Equal(t, 9090, cfg.Server.Port)

	require.NoError(t, os.WriteFile(path, []byte("http-server:\n  port: 0\n"), 0o600))
	_, err = Load(path)
	require.Error(t, err)
}

func TestBuildStrategy(t *testing.T) {
	topo, err := topology.FromIDs("x", "y")
	require.NoError(t, err)

	tests := []struct {
		name  string
		cfg   StrategyConfig
		value string
		want  string
	}{
		{"hash over topology", StrategyConfig{Strategy: "hash"}, "k", ""},
		{"numeric range", StrategyConfig{
			Strategy: "range", Numeric: true, OpenEnded: "big",
			Bounds: []BoundConfig{{Upper: "9", Fragment: "small"}, {Upper: "100", Fragment: "mid"}},
		}, "1000", "big"},
		{"directory default", StrategyConfig{
			Strategy: "directory", Entries: map[string]string{"acme": "x"}, Default: "y",
		}, "globex", "y"},
		{"geo", StrategyConfig{
			Strategy: "geo",
			Resolver: map[string]string{"DE": "eu", "FR": "eu", "US": "na"},
			Regions:  map[string]string{"eu": "x", "na": "y"},
		}, "FR", "x"},
		{"custom", StrategyConfig{Strategy: "custom", Name: "first-letter"}, "yak", "y"},
	}

	customs := map[string]strategy.Factory{
		"first-letter": func(*topology.Topology) (strategy.Strategy, error) {
			return strategy.NewCustom("first-letter", func(v string) (types.Fragment, error) {
				return v[:1], nil
			}, "x", "y")
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := BuildStrategy(tt.cfg, topo, customs)
			require.NoError(t, err)
			got, err := s.Route(tt.value)
			require.NoError(t, err)
			if tt.want == "" {
				require.True(t, topo.Contains(got))
				return
			}
			require.Equal(t, tt.want, got)
		})
	}

	_, err = BuildStrategy(StrategyConfig{Strategy: "custom", Name: "nope"}, topo, customs)
	require.ErrorIs(t, err, sharderr.ErrInvalidStrategy)

	_, err = BuildRouter(RoutingConfig{Components: []StrategyConfig{{Strategy: "custom", Name: "nope"}}}, topo, customs)
	require.ErrorIs(t, err, sharderr.ErrInvalidStrategy)
}
