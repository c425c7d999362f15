package commands

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/pagewise/pagewise/internal/appctx"
	"github.com/pagewise/pagewise/internal/config"
	"github.com/pagewise/pagewise/internal/output"
)

// NewConfigCmd creates the config command.
func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show configuration",
		Long: `Show pagewise configuration.

Configuration is loaded from multiple sources with the following precedence:
  flags > env > --config file > local > global > defaults

The token may also come from the system keyring, stored under the
"pagewise" service with the API host as the account.

Config locations:
  - Global: ~/.config/pagewise/config.{json,yaml}
  - Local:  .pagewise/config.{json,yaml}`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigShow(cmd)
		},
	}

	cmd.AddCommand(newConfigShowCmd())
	return cmd
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show effective configuration",
		Long:  "Display the current effective configuration with source information.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigShow(cmd)
		},
	}
}

type configEntry struct {
	Key    string `json:"key" yaml:"key"`
	Value  string `json:"value" yaml:"value"`
	Source string `json:"source" yaml:"source"`
}

func runConfigShow(cmd *cobra.Command) error {
	app := appctx.FromContext(cmd.Context())
	return app.OK(configEntries(app.Config), output.WithSummary("Effective configuration"))
}

func configEntries(cfg *config.Config) []configEntry {
	keys := []struct {
		key   string
		value string
	}{
		{"base_url", cfg.BaseURL},
		{"token", maskToken(cfg.Token)},
		{"page_size", strconv.Itoa(cfg.PageSize)},
		{"format", cfg.Format},
		{"timeout", cfg.Timeout.String()},
		{"cache_dir", cfg.CacheDir},
		{"stats", fmt.Sprintf("%t", cfg.Stats != nil && *cfg.Stats)},
		{"verbose", strconv.Itoa(derefInt(cfg.Verbose))},
	}

	entries := make([]configEntry, 0, len(keys))
	for _, k := range keys {
		source := cfg.Sources[k.key]
		if source == "" {
			source = string(config.SourceDefault)
		}
		entries = append(entries, configEntry{Key: k.key, Value: k.value, Source: source})
	}
	return entries
}

// maskToken keeps the last four characters of long tokens.
func maskToken(token string) string {
	switch {
	case token == "":
		return "(none)"
	case len(token) <= 8:
		return "****"
	default:
		return "****" + token[len(token)-4:]
	}
}

func derefInt(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}
