// Package cli wires the root command, global flags and exit codes.
package cli

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"pkt.systems/pslog"

	"github.com/pagewise/pagewise/internal/appctx"
	"github.com/pagewise/pagewise/internal/commands"
	"github.com/pagewise/pagewise/internal/config"
	"github.com/pagewise/pagewise/internal/output"
	"github.com/pagewise/pagewise/internal/version"
)

var shorthandFlagRe = regexp.MustCompile(`unknown shorthand flag: '.' in (-\w)`)

// NewRootCmd creates the root cobra command.
func NewRootCmd() *cobra.Command {
	var flags appctx.GlobalFlags

	cmd := &cobra.Command{
		Use:           "pagewise",
		Short:         "Page through GitHub listings",
		Long:          "pagewise loads GitHub listings one page at a time and reports every loading, data and error state on the way.",
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Skip setup for help and version commands
			if cmd.Name() == "help" || cmd.Name() == "version" {
				return nil
			}

			cfg, err := config.Load(config.FlagOverrides{
				BaseURL:    flags.BaseURL,
				Token:      flags.Token,
				PageSize:   flags.PageSize,
				Format:     flags.Format,
				CacheDir:   flags.CacheDir,
				ConfigFile: flags.ConfigFile,
			})
			if err != nil {
				return &output.Error{Code: output.CodeUsage, Message: err.Error(), Cause: err}
			}

			log := pslog.Ctx(cmd.Context())
			for _, w := range cfg.Warnings {
				log.Warn("config", "warning", w)
			}

			resolvePreferences(cmd, cfg, &flags)

			app, err := appctx.NewApp(cfg, flags, cmd.OutOrStdout(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			cmd.SetContext(appctx.WithApp(cmd.Context(), app))
			return nil
		},
	}

	// Allow flags anywhere in the command line
	cmd.Flags().SetInterspersed(true)
	cmd.PersistentFlags().SetInterspersed(true)

	// Output flags
	cmd.PersistentFlags().StringVarP(&flags.Format, "format", "f", "", "Output format: text, json, or yaml")
	cmd.PersistentFlags().StringVar(&flags.JQ, "jq", "", "Filter JSON output with a jq expression")
	cmd.PersistentFlags().BoolVar(&flags.Styled, "styled", false, "Force styled output (ANSI colors)")

	// Source flags
	cmd.PersistentFlags().IntVar(&flags.PageSize, "page-size", 0, "Items per page (1-100)")
	cmd.PersistentFlags().StringVar(&flags.BaseURL, "base-url", "", "GitHub API base URL")
	cmd.PersistentFlags().StringVar(&flags.Token, "token", "", "GitHub token")
	cmd.PersistentFlags().StringVar(&flags.ConfigFile, "config", "", "Config file (JSON or YAML)")
	cmd.PersistentFlags().StringVar(&flags.CacheDir, "cache-dir", "", "Cache directory")

	// Behavior flags
	cmd.PersistentFlags().CountVarP(&flags.Verbose, "verbose", "v", "Verbose output (-v for transitions, -vv for requests)")
	cmd.PersistentFlags().BoolVar(&flags.Stats, "stats", false, "Show session statistics")

	return cmd
}

// resolvePreferences applies config values for behavior flags that were
// not set on the command line.
func resolvePreferences(cmd *cobra.Command, cfg *config.Config, flags *appctx.GlobalFlags) {
	if !flagChanged(cmd, "stats") && cfg.Stats != nil {
		flags.Stats = *cfg.Stats
	}
	if !flagChanged(cmd, "verbose") && cfg.Verbose != nil {
		flags.Verbose = *cfg.Verbose
	}
}

func flagChanged(cmd *cobra.Command, name string) bool {
	for _, fs := range []*pflag.FlagSet{cmd.Flags(), cmd.PersistentFlags()} {
		if f := fs.Lookup(name); f != nil && f.Changed {
			return true
		}
	}
	return false
}

// NewCommand builds the root command with every subcommand attached.
func NewCommand() *cobra.Command {
	cmd := NewRootCmd()
	cmd.AddCommand(commands.NewReposCmd())
	cmd.AddCommand(commands.NewConfigCmd())
	cmd.AddCommand(commands.NewGuardCmd())
	cmd.AddCommand(commands.NewVersionCmd())
	return cmd
}

// Execute runs the CLI with os.Args and returns the process exit code.
func Execute(ctx context.Context) int {
	return run(ctx, NewCommand())
}

func run(ctx context.Context, cmd *cobra.Command) int {
	// Use ExecuteContextC to get the executed command (for correct context access)
	executedCmd, err := cmd.ExecuteContextC(ctx)
	if err == nil {
		return output.ExitOK
	}

	err = transformCobraError(err)
	apiErr := output.AsError(err)
	pslog.Ctx(ctx).Debug("command failed", "code", apiErr.Code, "err", err)

	// app.Err prints stats when --stats is set
	if executedCmd != nil && executedCmd.Context() != nil {
		if app := appctx.FromContext(executedCmd.Context()); app != nil {
			if werr := app.Err(err); werr != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), err)
			}
			return apiErr.ExitCode()
		}
	}

	// Setup failed before the app existed
	format, _ := cmd.PersistentFlags().GetString("format")
	f, ferr := output.ParseFormat(format)
	if ferr != nil {
		f = output.FormatText
	}
	w, werr := output.New(output.Options{Format: f, Writer: cmd.OutOrStdout()})
	if werr != nil || w.Err(err) != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), err)
	}
	return apiErr.ExitCode()
}

// transformCobraError turns cobra's parse errors into usage errors with
// consistent wording.
func transformCobraError(err error) error {
	msg := err.Error()

	if flag, ok := strings.CutPrefix(msg, "flag needs an argument: "); ok {
		return output.ErrUsage(flag + " requires a value")
	}

	if flag, ok := strings.CutPrefix(msg, "unknown flag: "); ok {
		return output.ErrUsage("Unknown option: " + flag)
	}

	if strings.HasPrefix(msg, "unknown shorthand flag: ") {
		if matches := shorthandFlagRe.FindStringSubmatch(msg); len(matches) > 1 {
			return output.ErrUsage("Unknown option: " + matches[1])
		}
	}

	if strings.HasPrefix(msg, "unknown command ") {
		return output.ErrUsageHint(strings.SplitN(msg, "\n", 2)[0], "Run 'pagewise --help' for usage")
	}

	if strings.Contains(msg, "invalid argument") {
		return output.ErrUsage(msg)
	}

	if strings.Contains(msg, "arg(s), received") {
		return output.ErrUsage(msg)
	}

	return err
}
