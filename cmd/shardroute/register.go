package main

import (
	"errors"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"shardroute/pkg/cluster"
	"shardroute/pkg/topology"
)

func newRegisterCommand(root *rootFlags) *cobra.Command {
	var (
		shard     topology.ShardInfo
		ephemeral bool
		remove    bool
	)
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Publish or remove a shard in the ZooKeeper topology",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := initConfig(root.configPath)
			if err != nil {
				return err
			}
			initLogger(&cfg)

			zc := cfg.Topology.ZooKeeper
			if !zc.Enabled() {
				return errors.New("topology.zookeeper.servers is not configured")
			}
			source, err := cluster.NewZKTopology(zc.Servers, zc.Root, zc.SessionTimeout)
			if err != nil {
				return err
			}
			defer source.Close()

			if remove {
				return source.Deregister(shard.ID)
			}
			if err := source.Register(shard, ephemeral); err != nil {
				return err
			}
			if !ephemeral {
				return nil
			}

			// ephemeral nodes live as long as this session
			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()
			slog.Info("holding ephemeral registration, press Ctrl+C to release", "shard", shard.ID)
			<-ctx.Done()
			return nil
		},
	}
	cmd.Flags().StringVar(&shard.ID, "id", "", "shard id")
	cmd.Flags().StringVar(&shard.Location.Addr, "addr", "", "shard backend address")
	cmd.Flags().StringVar(&shard.Location.DC, "dc", "", "data center")
	cmd.Flags().StringVar(&shard.Location.Rack, "rack", "", "rack")
	cmd.Flags().BoolVar(&ephemeral, "ephemeral", false, "remove the shard when this process exits")
	cmd.Flags().BoolVar(&remove, "remove", false, "remove the shard instead of publishing it")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}
