// Package cmd provides the commands of searchctl, the operator CLI for the
// search service.
package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	pkgconfig "github.com/sedirimou/Gameva-sub003/pkg/config"
	"github.com/sedirimou/Gameva-sub003/pkg/httpclient"
)

const envPrefix = "SEARCHCTL_"

// Settings are read from SEARCHCTL_* variables; flags override them.
type Settings struct {
	URL     string        `env:"URL" envDefault:"http://localhost:8010"`
	Token   string        `env:"ADMIN_TOKEN"`
	Timeout time.Duration `env:"TIMEOUT" envDefault:"30m"`
}

type options struct {
	settings Settings
	json     bool
}

func (o *options) client() *httpclient.Client {
	cfg := httpclient.DefaultConfig(o.settings.URL)
	cfg.Token = o.settings.Token
	cfg.Timeout = o.settings.Timeout
	return httpclient.New(cfg)
}

// printJSON writes v indented when --json is set and reports whether it did.
func (o *options) printJSON(w io.Writer, v any) (bool, error) {
	if !o.json {
		return false, nil
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return true, enc.Encode(v)
}

// NewRootCmd creates the root command for searchctl.
func NewRootCmd() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "searchctl",
		Short: "Operate the storefront search service",
		Long: `searchctl talks to a running search service over HTTP.

Admin commands (stats, reindex, clear) need an admin token, taken from
--token or SEARCHCTL_ADMIN_TOKEN.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			var env Settings
			if err := pkgconfig.LoadWithPrefix(&env, envPrefix); err != nil {
				return err
			}
			flags := cmd.Flags()
			if !flags.Changed("url") {
				opts.settings.URL = env.URL
			}
			if !flags.Changed("token") {
				opts.settings.Token = env.Token
			}
			if !flags.Changed("timeout") {
				opts.settings.Timeout = env.Timeout
			}
			if opts.settings.URL == "" {
				return fmt.Errorf("service URL is required")
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.settings.URL, "url", "", "Search service base URL")
	cmd.PersistentFlags().StringVar(&opts.settings.Token, "token", "", "Admin bearer token")
	cmd.PersistentFlags().DurationVar(&opts.settings.Timeout, "timeout", 0, "Request timeout")
	cmd.PersistentFlags().BoolVar(&opts.json, "json", false, "Output as JSON")

	cmd.AddCommand(
		newStatsCmd(opts),
		newReindexCmd(opts),
		newClearCmd(opts),
		newSearchCmd(opts),
		newSuggestCmd(opts),
	)
	return cmd
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}
