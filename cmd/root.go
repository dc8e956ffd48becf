// Package cmd defines the postercache command line.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// newRootCmd creates the root command and registers the subcommands.
func newRootCmd() *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:   "postercache",
		Short: "Movie poster scrape and cache service",
		Long: `postercache resolves movie titles to poster images, downloads them once
and serves them from a local cache. It also keeps a small submission log
with JSON and HTML views.`,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (yaml, json or toml)")

	cmd.AddCommand(newServeCmd(&cfgFile))
	cmd.AddCommand(newProbeCmd())
	return cmd
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "postercache: %v\n", err)
		os.Exit(1)
	}
}
