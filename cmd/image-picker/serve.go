package main

import (
	"github.com/spf13/cobra"

	"github.com/ironsheep/image-picker-mcp/internal/imaging"
	"github.com/ironsheep/image-picker-mcp/internal/library"
	"github.com/ironsheep/image-picker-mcp/internal/logger"
	"github.com/ironsheep/image-picker-mcp/internal/server"
)

func newServeCmd(a *app) *cobra.Command {
	var libraryDir string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP server on stdin/stdout",
		Long: `Runs the picker MCP server. Requests are read from stdin and responses
and notifications are written to stdout; logs go to stderr.`,
		Example: `  # Serve the photos in ~/Pictures
  image-picker serve --library ~/Pictures

  # Use a config file
  image-picker serve --config picker.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := a.cfg
			if libraryDir != "" {
				cfg.Library = libraryDir
			}

			idx, err := library.NewFSIndex(cfg.Library, library.FSOptions{
				AutoAuthorize: cfg.AutoAuthorize,
				Watch:         cfg.Watch,
			})
			if err != nil {
				return err
			}
			defer idx.Close()

			opts, err := cfg.SessionOptions()
			if err != nil {
				return err
			}

			srv := server.New(server.Options{
				Index:   idx,
				Decoder: imaging.NewFileDecoder(),
				Session: opts,
				Version: Version,
			})

			logger.Info("image picker MCP server starting",
				"version", Version,
				"commit", GitCommit,
				"built", BuildTime,
				"library", idx.Root(),
				"cache", cfg.Cache.Bytes.String(),
			)

			done := make(chan error, 1)
			go func() {
				done <- srv.Serve(cmd.InOrStdin(), cmd.OutOrStdout())
			}()

			select {
			case err := <-done:
				return err
			case <-cmd.Context().Done():
				logger.Info("shutting down")
				srv.Close()
				return nil
			}
		},
	}

	cmd.Flags().StringVarP(&libraryDir, "library", "l", "", "Photo library directory (overrides config)")
	return cmd
}
