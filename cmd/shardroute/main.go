package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type rootFlags struct {
	configPath string
}

func newRootCommand() *cobra.Command {
	flags := &rootFlags{}
	cmd := &cobra.Command{
		Use:           "shardroute",
		Short:         "Compound-key shard router with shadow topology evaluation",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "config.yaml", "path to the YAML config")

	cmd.AddCommand(
		newServeCommand(flags),
		newRouteCommand(flags),
		newBackendCommand(),
		newRegisterCommand(flags),
	)
	return cmd
}
