package main

import (
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/ironsheep/image-picker-mcp/internal/config"
	"github.com/ironsheep/image-picker-mcp/internal/logger"
)

// app carries state shared by the subcommands.
type app struct {
	configPath string
	cfg        *config.Config
}

func newRootCmd() *cobra.Command {
	a := &app{}

	cmd := &cobra.Command{
		Use:   "image-picker",
		Short: "MCP server for picking photos from a library",
		Long: `image-picker serves a directory of photos as a paginated, newest-first
library and lets MCP clients browse, preview and select items through
picker sessions.

With no subcommand it runs the MCP server on stdin/stdout.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Load .env file if present (ignore errors)
			_ = godotenv.Load()

			cfg, err := config.Load(a.configPath)
			if err != nil {
				return err
			}
			logger.SetLevel(logger.ParseLevel(cfg.LogLevel))
			a.cfg = cfg
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "YAML config file (default $"+config.EnvConfig+")")

	serve := newServeCmd(a)
	cmd.RunE = serve.RunE
	cmd.Flags().AddFlagSet(serve.Flags())

	cmd.AddCommand(serve, newScanCmd(a))
	return cmd
}
