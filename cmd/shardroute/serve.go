package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	httpapi "shardroute/internal/http"
	"shardroute/pkg/cluster"
	"shardroute/pkg/config"
	"shardroute/pkg/metrics"
	"shardroute/pkg/routing"
	"shardroute/pkg/rpc"
	"shardroute/pkg/shadow"
	"shardroute/pkg/topology"
)

func newServeCommand(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the routing API and sharded store proxy",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := initConfig(flags.configPath)
			if err != nil {
				return err
			}
			initLogger(&cfg)

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()
			return serve(ctx, cfg)
		},
	}
}

func serve(ctx context.Context, cfg config.Config) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	telemetry := metrics.NewPrometheus(reg, "shardroute",
		metrics.WithBuckets(shadow.MetricLatencyDelta, shadow.LatencyDeltaBuckets))

	build := func(topo *topology.Topology) (routing.Router, error) {
		return config.BuildRouter(cfg.Routing, topo, nil)
	}

	var holder *cluster.Holder
	if zc := cfg.Topology.ZooKeeper; zc.Enabled() {
		source, err := cluster.NewZKTopology(zc.Servers, zc.Root, zc.SessionTimeout)
		if err != nil {
			return err
		}
		defer source.Close()

		topo, err := source.Load()
		if err != nil {
			return fmt.Errorf("load topology from zookeeper: %w", err)
		}
		if holder, err = cluster.NewHolder(build, topo); err != nil {
			return err
		}
		source.RunWatch(ctx, holder.Rebuild)
	} else {
		topo, err := config.BuildTopology(cfg.Topology)
		if err != nil {
			return err
		}
		if holder, err = cluster.NewHolder(build, topo); err != nil {
			return err
		}
	}

	opts := []httpapi.Option{
		httpapi.WithGatherer(reg),
		httpapi.WithTimeouts(cfg.Server.ReadHeaderTimeout, cfg.Server.ShutdownTimeout),
	}

	proxy := cluster.Direct(holder)
	if cfg.Shadow.Enabled {
		d, err := config.BuildShadow(cfg, holder, nil, shadow.WithTelemetry(telemetry))
		if err != nil {
			return err
		}
		defer d.Close()
		proxy = d
		opts = append(opts, httpapi.WithComparer(d))
		slog.Info("shadow routing enabled",
			"shadow_shards", d.ShadowTopology().IDs(), "read_percentage", cfg.Shadow.ReadPercentage)
	}

	clients := cluster.NewClientCache(func(shard topology.ShardInfo) (cluster.Remote, error) {
		return rpc.NewHTTPRemote(rpc.BaseURL(shard.Location)), nil
	})
	opts = append(opts, httpapi.WithKV(cluster.NewStore(proxy, clients.Client)))

	server := httpapi.NewServer(holder, strconv.Itoa(cfg.Server.Port), opts...)
	if err := server.Start(); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}

	<-ctx.Done()

	if err := server.Stop(); err != nil {
		slog.Error("Error stopping server", "error", err)
	}
	slog.Info("shardroute stopped")
	return nil
}
