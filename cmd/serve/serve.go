// Package serve implements the serve subcommand: the full streaming node.
package serve

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sentinelvision/sentinel-central/internal/conf"
	"github.com/sentinelvision/sentinel-central/internal/pipeline"
)

// Command returns the serve subcommand.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the detection pipeline and HTTP API",
		Long:  "Consumes detection events from the bus, resolves identities, tracks presence sessions, records anomaly episodes, and serves the query/command API.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			p, err := pipeline.New(settings)
			if err != nil {
				return err
			}
			return p.Run(ctx)
		},
	}
	return cmd
}
