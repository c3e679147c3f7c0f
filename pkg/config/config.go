package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/hashicorp/go-multierror"

	"shardroute/pkg/routing"
	"shardroute/pkg/shadow"
	"shardroute/pkg/strategy"
	"shardroute/pkg/topology"
)

// Config is the root of the YAML configuration.
type Config struct {
	Logger   LoggerConfig   `yaml:"logger"`
	Server   ServerConfig   `yaml:"http-server"`
	Topology TopologyConfig `yaml:"topology"`
	Routing  RoutingConfig  `yaml:"routing"`
	Shadow   ShadowConfig   `yaml:"shadow"`
}

type LoggerConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// SlogLevel maps Level onto slog. Unknown levels fall back to Info.
func (l LoggerConfig) SlogLevel() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(l.Level)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

type ServerConfig struct {
	Port              int           `yaml:"port"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`
}

// Addr is the listen address for net/http.
func (s ServerConfig) Addr() string { return fmt.Sprintf(":%d", s.Port) }

// TopologyConfig lists shards statically, or points at a ZooKeeper ensemble that publishes
// them. A non-empty ZooKeeper.Servers takes precedence.
type TopologyConfig struct {
	Shards    []topology.ShardInfo `yaml:"shards"`
	ZooKeeper ZooKeeperConfig      `yaml:"zookeeper"`
}

type ZooKeeperConfig struct {
	Servers        []string      `yaml:"servers"`
	Root           string        `yaml:"root"`
	SessionTimeout time.Duration `yaml:"session_timeout"`
}

// Enabled reports whether the topology is discovered from ZooKeeper.
func (z ZooKeeperConfig) Enabled() bool { return len(z.Servers) > 0 }

type RoutingConfig struct {
	Separator  string           `yaml:"separator"`
	MaxScatter int              `yaml:"max_scatter"`
	Components []StrategyConfig `yaml:"components"`
}

// StrategyConfig describes the strategy of one key component. Only the fields of the
// selected strategy are read.
type StrategyConfig struct {
	Strategy string `yaml:"strategy"`

	// hash
	Targets      []string `yaml:"targets"`
	VirtualNodes int      `yaml:"virtual_nodes"`

	// range
	Bounds    []BoundConfig `yaml:"bounds"`
	OpenEnded string        `yaml:"open_ended"`
	Numeric   bool          `yaml:"numeric"`

	// directory, geo
	Entries map[string]string `yaml:"entries"`
	Default string            `yaml:"default"`
	Regions map[string]string `yaml:"regions"`

	// Resolver maps a geographic code onto a region for geo.
	Resolver map[string]string `yaml:"resolver"`

	// custom
	Name string `yaml:"name"`
}

type BoundConfig struct {
	Upper    string `yaml:"upper"`
	Fragment string `yaml:"fragment"`
}

type ShadowConfig struct {
	Enabled        bool           `yaml:"enabled"`
	ReadPercentage float64        `yaml:"read_percentage"`
	Timeout        time.Duration  `yaml:"timeout"`
	MaxInFlight    int64          `yaml:"max_in_flight"`
	Topology       TopologyConfig `yaml:"topology"`
	// Routing defaults to the production routing when it has no components.
	Routing RoutingConfig `yaml:"routing"`
}

// Default returns a baseline development config.
func Default() Config {
	return Config{
		Logger: LoggerConfig{
			Level: "INFO",
			JSON:  false,
		},
		Server: ServerConfig{
			Port:              8080,
			ReadHeaderTimeout: 5 * time.Second,
			ShutdownTimeout:   10 * time.Second,
		},
		Topology: TopologyConfig{
			Shards: []topology.ShardInfo{
				{ID: "shard-0", Location: topology.Location{Addr: "localhost:9000"}},
				{ID: "shard-1", Location: topology.Location{Addr: "localhost:9001"}},
				{ID: "shard-2", Location: topology.Location{Addr: "localhost:9002"}},
			},
			ZooKeeper: ZooKeeperConfig{
				Root:           "/shardroute",
				SessionTimeout: 5 * time.Second,
			},
		},
		Routing: RoutingConfig{
			Separator:  routing.DefaultSeparator,
			MaxScatter: routing.DefaultMaxScatter,
			Components: []StrategyConfig{
				{Strategy: "hash", VirtualNodes: strategy.DefaultVirtualNodes},
			},
		},
		Shadow: ShadowConfig{
			Enabled:        false,
			ReadPercentage: 10,
			Timeout:        shadow.DefaultTimeout,
			MaxInFlight:    shadow.DefaultMaxInFlight,
		},
	}
}

// Load reads a YAML config over Default. A missing file yields Default.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			slog.Info("config file not found, using default config", "path", path)
			return cfg, nil
		}
		return cfg, err
	}
	return Parse(data)
}

// Parse decodes YAML over Default and validates the result. Unknown keys are rejected.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	if err := yaml.UnmarshalWithOptions(data, &cfg, yaml.Strict()); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate reports every problem in the config at once.
func (c Config) Validate() error {
	var result *multierror.Error

	switch strings.ToLower(c.Logger.Level) {
	case "debug", "info", "warn", "error":
	default:
		result = multierror.Append(result, fmt.Errorf("logger.level: unknown level %q", c.Logger.Level))
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		result = multierror.Append(result, fmt.Errorf("http-server.port: %d out of range", c.Server.Port))
	}

	result = multierror.Append(result, validateTopology("topology", c.Topology))
	result = multierror.Append(result, validateRouting("routing", c.Routing))

	if c.Shadow.Enabled {
		if c.Shadow.ReadPercentage < 0 || c.Shadow.ReadPercentage > 100 {
			result = multierror.Append(result,
				fmt.Errorf("shadow.read_percentage: %v not in [0, 100]", c.Shadow.ReadPercentage))
		}
		if c.Shadow.Timeout <= 0 {
			result = multierror.Append(result, fmt.Errorf("shadow.timeout: must be positive"))
		}
		if c.Shadow.Topology.ZooKeeper.Enabled() {
			result = multierror.Append(result, fmt.Errorf("shadow.topology: zookeeper discovery is not supported"))
		}
		result = multierror.Append(result, validateTopology("shadow.topology", c.Shadow.Topology))
		if len(c.Shadow.Routing.Components) > 0 {
			result = multierror.Append(result, validateRouting("shadow.routing", c.Shadow.Routing))
		}
	}
	return result.ErrorOrNil()
}

func validateTopology(path string, t TopologyConfig) error {
	var result *multierror.Error
	if t.ZooKeeper.Enabled() {
		if !strings.HasPrefix(t.ZooKeeper.Root, "/") {
			result = multierror.Append(result, fmt.Errorf("%s.zookeeper.root: must be absolute, got %q", path, t.ZooKeeper.Root))
		}
		return result.ErrorOrNil()
	}
	if len(t.Shards) == 0 {
		return fmt.Errorf("%s: no shards and no zookeeper servers", path)
	}
	seen := make(map[string]struct{}, len(t.Shards))
	for i, s := range t.Shards {
		if s.ID == "" {
			result = multierror.Append(result, fmt.Errorf("%s.shards[%d]: empty id", path, i))
			continue
		}
		if _, dup := seen[s.ID]; dup {
			result = multierror.Append(result, fmt.Errorf("%s.shards[%d]: duplicate id %q", path, i, s.ID))
		}
		seen[s.ID] = struct{}{}
	}
	return result.ErrorOrNil()
}

func validateRouting(path string, r RoutingConfig) error {
	var result *multierror.Error
	if r.MaxScatter < 0 {
		result = multierror.Append(result, fmt.Errorf("%s.max_scatter: negative", path))
	}
	if len(r.Components) == 0 {
		result = multierror.Append(result, fmt.Errorf("%s.components: at least one component is required", path))
	}
	for i, sc := range r.Components {
		p := fmt.Sprintf("%s.components[%d]", path, i)
		kind, err := strategy.ParseKind(sc.Strategy)
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("%s: %w", p, err))
			continue
		}
		switch kind {
		case strategy.KindHash:
			if sc.VirtualNodes < 0 {
				result = multierror.Append(result, fmt.Errorf("%s.virtual_nodes: negative", p))
			}
		case strategy.KindRange:
			if len(sc.Bounds) == 0 {
				result = multierror.Append(result, fmt.Errorf("%s.bounds: required for range", p))
			}
		case strategy.KindDirectory:
			if len(sc.Entries) == 0 && sc.Default == "" {
				result = multierror.Append(result, fmt.Errorf("%s.entries: required for directory", p))
			}
		case strategy.KindGeo:
			if len(sc.Regions) == 0 {
				result = multierror.Append(result, fmt.Errorf("%s.regions: required for geo", p))
			}
			if len(sc.Resolver) == 0 {
				result = multierror.Append(result, fmt.Errorf("%s.resolver: required for geo", p))
			}
		case strategy.KindCustom:
			if sc.Name == "" {
				result = multierror.Append(result, fmt.Errorf("%s.name: required for custom", p))
			}
		}
	}
	return result.ErrorOrNil()
}
