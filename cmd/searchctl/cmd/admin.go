package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	searchhttp "github.com/sedirimou/Gameva-sub003/internal/handler/http"
)

const adminPath = "/api/v1/admin/search"

func newStatsCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show search index statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var resp searchhttp.StatsResponse
			if err := opts.client().GetJSON(cmd.Context(), adminPath+"?action="+searchhttp.ActionStats, &resp); err != nil {
				return fmt.Errorf("stats: %w", err)
			}
			if done, err := opts.printJSON(cmd.OutOrStdout(), resp); done || err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Index:     %s\n", resp.Name)
			fmt.Fprintf(out, "Documents: %d\n", resp.TotalDocuments)
			if !resp.Created.IsZero() {
				fmt.Fprintf(out, "Created:   %s\n", resp.Created.Format(time.RFC3339))
			}
			return nil
		},
	}
}

func newReindexCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "reindex",
		Short: "Rebuild the search index from the catalog",
		Long: `Rebuild the search index from every active product in the catalog.

The command waits until the rebuild finishes. A concurrent rebuild is
rejected by the service with a conflict.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var resp searchhttp.ReindexResponse
			req := searchhttp.AdminRequest{Action: searchhttp.ActionReindex}
			if err := opts.client().PostJSON(cmd.Context(), adminPath, req, &resp); err != nil {
				return fmt.Errorf("reindex: %w", err)
			}
			if done, err := opts.printJSON(cmd.OutOrStdout(), resp); done || err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s (strategy %s, %d failed)\n", resp.Message, resp.Strategy, resp.Failed)
			return nil
		},
	}
}

func newClearCmd(opts *options) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove every document from the search index",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !yes {
				return fmt.Errorf("refusing to clear the index without --yes")
			}
			var resp searchhttp.MessageResponse
			req := searchhttp.AdminRequest{Action: searchhttp.ActionClear}
			if err := opts.client().PostJSON(cmd.Context(), adminPath, req, &resp); err != nil {
				return fmt.Errorf("clear: %w", err)
			}
			if done, err := opts.printJSON(cmd.OutOrStdout(), resp); done || err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), resp.Message)
			return nil
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "Confirm clearing the index")
	return cmd
}
