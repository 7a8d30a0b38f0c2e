// Package api implements the api subcommand: the query/command HTTP
// server without the streaming consumers.
package api

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sentinelvision/sentinel-central/internal/conf"
	"github.com/sentinelvision/sentinel-central/internal/pipeline"
)

// Command returns the api subcommand.
func Command(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "api",
		Short: "Run only the query/command HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return pipeline.RunAPI(ctx, settings)
		},
	}
}
