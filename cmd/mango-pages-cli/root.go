package main

import (
	"fmt"
	"io"
	"log"

	"github.com/spf13/cobra"
	"github.com/vrsandeep/mango-pages/internal/config"
	"github.com/vrsandeep/mango-pages/internal/core"
)

var (
	cfgFile string
	verbose bool
	app     *core.App
)

var rootCmd = &cobra.Command{
	Use:   "mango-pages",
	Short: "Manage the mango-pages picture cache",
	Long: `mango-pages-cli registers items and manages their cached pages
without starting the server.

Examples:
  mango-pages add e https://e-hentai.org/g/1/abc/ --pages 24   Register an item
  mango-pages prefetch 6f1c2a9b3d4e5f60                       Download every page
  mango-pages delete-page 6f1c2a9b3d4e5f60 3                  Drop a cached page
  mango-pages sweep                                           Remove stale partial files`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if !verbose {
			log.SetOutput(io.Discard)
		}
		cfg, err := config.LoadFile(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		app, err = core.NewFromConfig(cfg)
		if err != nil {
			return fmt.Errorf("failed to initialize: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if app != nil {
			app.Close()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ./config.yml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(prefetchCmd)
	rootCmd.AddCommand(deletePageCmd)
	rootCmd.AddCommand(clearScratchCmd)
	rootCmd.AddCommand(sweepCmd)
}
