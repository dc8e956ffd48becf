package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/poster-cache/internal/config"
	"github.com/JakeFAU/poster-cache/internal/server"
)

func newServeCmd(cfgFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Starts the poster HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(*cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			app, err := server.Build(cmd.Context(), cfg)
			if err != nil {
				return fmt.Errorf("build app: %w", err)
			}
			return app.Run(cmd.Context())
		},
	}
}
