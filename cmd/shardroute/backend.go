package main

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"shardroute/pkg/rpc"
)

func newBackendCommand() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "backend",
		Short: "Run an in-memory shard backend for local clusters",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			b := rpc.NewBackend(addr)
			if err := b.Start(); err != nil {
				return err
			}
			<-ctx.Done()

			stopCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
			defer stop()
			if err := b.Stop(stopCtx); err != nil {
				slog.Error("Error stopping backend", "error", err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8081", "listen address")
	return cmd
}
