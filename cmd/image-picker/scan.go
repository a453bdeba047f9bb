package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/ironsheep/image-picker-mcp/internal/asset"
	"github.com/ironsheep/image-picker-mcp/internal/library"
)

func newScanCmd(a *app) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "scan [directory]",
		Short: "List the first page of a library",
		Long: `Lists the newest items of a library the way a picker session would load
them, using the configured filter. Useful to check a library before
serving it.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := a.cfg
			dir := cfg.Library
			if len(args) == 1 {
				dir = args[0]
			}
			if limit <= 0 {
				limit = cfg.PageSize
			}

			idx, err := library.NewFSIndex(dir, library.FSOptions{AutoAuthorize: true})
			if err != nil {
				return err
			}
			defer idx.Close()

			if state := idx.AuthorizationState(); state != asset.Authorized {
				return fmt.Errorf("cannot read %s: access %s", idx.Root(), state)
			}

			filter, err := cfg.Filter()
			if err != nil {
				return err
			}
			items, err := idx.Query(cmd.Context(), filter, limit)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "#\tID\tTYPE\tSIZE\tSUBTYPES\tCREATED")
			for i, it := range items {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%dx%d\t%v\t%s\n",
					i, it.ID, it.MediaType, it.PixelWidth, it.PixelHeight,
					it.Subtypes.Names(), humanize.Time(it.CreatedAt))
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(out, "\n%s items from %s\n", humanize.Comma(int64(len(items))), idx.Root())
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Number of items to list (default page size)")
	return cmd
}
