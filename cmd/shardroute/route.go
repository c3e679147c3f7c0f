package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"shardroute/pkg/config"
	"shardroute/pkg/shardkey"
)

type routeFlags struct {
	all     bool
	compare bool
}

func newRouteCommand(root *rootFlags) *cobra.Command {
	flags := &routeFlags{}
	cmd := &cobra.Command{
		Use:   "route COMPONENT...",
		Short: "Resolve a compound key against the configured static topology",
		Long: "Resolve a compound key against the configured static topology.\n" +
			"With --all, empty components are unknown and every candidate shard is printed.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := initConfig(root.configPath)
			if err != nil {
				return err
			}
			topo, err := config.BuildTopology(cfg.Topology)
			if err != nil {
				return err
			}
			router, err := config.BuildRouter(cfg.Routing, topo, nil)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if flags.all {
				ids, err := router.RouteAll(shardkey.PartialFromValues(args...))
				if err != nil {
					return err
				}
				for _, id := range ids {
					fmt.Fprintln(out, id)
				}
				return nil
			}

			key, err := shardkey.NewCompoundKey(args...)
			if err != nil {
				return err
			}
			if flags.compare {
				d, err := config.BuildShadow(cfg, router, nil)
				if err != nil {
					return err
				}
				defer d.Close()
				res := d.Compare(key)
				fmt.Fprintf(out, "production=%s shadow=%s match=%t\n",
					res.ProductionShardID, res.ShadowShardID, res.RoutingMatch)
				return nil
			}

			info, err := router.Locate(key)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(info)
		},
	}
	cmd.Flags().BoolVar(&flags.all, "all", false, "scatter-gather over unknown (empty) components")
	cmd.Flags().BoolVar(&flags.compare, "compare", false, "compare with the shadow topology")
	return cmd
}
