package cmd

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	searchhttp "github.com/sedirimou/Gameva-sub003/internal/handler/http"
)

func newSearchCmd(opts *options) *cobra.Command {
	var (
		limit     int
		offset    int
		platforms string
		genres    string
		sort      string
	)

	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Run a storefront search",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			params := url.Values{}
			if len(args) == 1 {
				params.Set("q", args[0])
			}
			params.Set("limit", strconv.Itoa(limit))
			params.Set("offset", strconv.Itoa(offset))
			if platforms != "" {
				params.Set("platforms", platforms)
			}
			if genres != "" {
				params.Set("genres", genres)
			}
			if sort != "" {
				params.Set("sort", sort)
			}

			var resp searchhttp.SearchResponse
			if err := opts.client().GetJSON(cmd.Context(), "/api/v1/search?"+params.Encode(), &resp); err != nil {
				return fmt.Errorf("search: %w", err)
			}
			if done, err := opts.printJSON(cmd.OutOrStdout(), resp); done || err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tPLATFORM\tPRICE")
			for _, item := range resp.Results {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%.2f\n", item.ID, item.Name, item.Platform, item.FinalPrice)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(out, "\n%d of %d results\n", len(resp.Results), resp.Total)
			if resp.Advisory != "" {
				fmt.Fprintf(out, "note: %s\n", resp.Advisory)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum results")
	cmd.Flags().IntVar(&offset, "offset", 0, "Results to skip")
	cmd.Flags().StringVar(&platforms, "platforms", "", "Comma-separated platform filter")
	cmd.Flags().StringVar(&genres, "genres", "", "Comma-separated genre filter")
	cmd.Flags().StringVar(&sort, "sort", "", "Sort order (relevance, price_asc, price_desc, newest, name_asc)")
	return cmd
}

func newSuggestCmd(opts *options) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "suggest <prefix>",
		Short: "Show autocomplete suggestions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			params := url.Values{}
			params.Set("q", args[0])
			params.Set("limit", strconv.Itoa(limit))

			var resp searchhttp.SuggestResponse
			if err := opts.client().GetJSON(cmd.Context(), "/api/v1/search/suggest?"+params.Encode(), &resp); err != nil {
				return fmt.Errorf("suggest: %w", err)
			}
			if done, err := opts.printJSON(cmd.OutOrStdout(), resp); done || err != nil {
				return err
			}
			if len(resp.Suggestions) > 0 {
				fmt.Fprintln(cmd.OutOrStdout(), strings.Join(resp.Suggestions, "\n"))
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 5, "Maximum suggestions")
	return cmd
}
