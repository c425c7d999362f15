// Package appctx holds the per-invocation application state shared by
// commands.
package appctx

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pagewise/pagewise/internal/config"
	"github.com/pagewise/pagewise/internal/github"
	"github.com/pagewise/pagewise/internal/observability"
	"github.com/pagewise/pagewise/internal/output"
	"github.com/pagewise/pagewise/internal/resilience"
)

type contextKey string

const appKey contextKey = "app"

// App holds the shared application context for all commands.
type App struct {
	Config *config.Config
	Output *output.Writer

	Collector *observability.SessionCollector
	Hooks     *observability.CLIHooks

	Flags GlobalFlags

	Stdout io.Writer
	Stderr io.Writer
}

// GlobalFlags holds values for global CLI flags.
type GlobalFlags struct {
	Format     string
	JQ         string
	Styled     bool
	PageSize   int
	BaseURL    string
	Token      string
	ConfigFile string
	CacheDir   string

	Verbose int // 0=off, 1=transitions, 2=transitions+requests
	Stats   bool
}

// NewApp creates the application context. stdout and stderr default to
// the process streams.
func NewApp(cfg *config.Config, flags GlobalFlags, stdout, stderr io.Writer) (*App, error) {
	if stdout == nil {
		stdout = os.Stdout
	}
	if stderr == nil {
		stderr = os.Stderr
	}

	collector := observability.NewSessionCollector()
	hooks := observability.NewCLIHooks(verboseLevel(flags.Verbose), collector, observability.NewTraceWriterTo(stderr))

	app := &App{
		Config:    cfg,
		Collector: collector,
		Hooks:     hooks,
		Flags:     flags,
		Stdout:    stdout,
		Stderr:    stderr,
	}
	w, err := app.newWriter(false)
	if err != nil {
		return nil, err
	}
	app.Output = w
	return app, nil
}

// verboseLevel combines -v flags with PAGEWISE_DEBUG ("1", "2", or "true").
func verboseLevel(flag int) int {
	level := flag
	if v := os.Getenv("PAGEWISE_DEBUG"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			level = max(level, n)
		} else if v == "true" {
			level = 2
		}
	}
	return min(level, 2)
}

func (a *App) newWriter(stream bool) (*output.Writer, error) {
	format, err := output.ParseFormat(a.Config.Format)
	if err != nil {
		return nil, err
	}
	return output.New(output.Options{
		Format:      format,
		Writer:      a.Stdout,
		JQ:          a.Flags.JQ,
		Stream:      stream,
		ForceStyled: a.Flags.Styled,
	})
}

// StreamOutput returns a writer that emits one document per envelope.
func (a *App) StreamOutput() (*output.Writer, error) {
	return a.newWriter(true)
}

// GitHub returns a client configured from the resolved config.
func (a *App) GitHub() *github.Client {
	return github.NewClient(github.Options{
		BaseURL: a.Config.BaseURL,
		Token:   a.Config.Token,
		Hooks:   a.Hooks,
	})
}

// ResilienceStore returns the cross-process guard state store.
func (a *App) ResilienceStore() *resilience.Store {
	return resilience.NewStore(filepath.Join(a.Config.CacheDir, "resilience"))
}

// OK outputs a success response, including stats if --stats is set.
func (a *App) OK(data any, opts ...output.ResponseOption) error {
	if a.Flags.Stats && a.Collector != nil {
		opts = append(opts, output.WithMeta("stats", a.Collector.Summary()))
	}
	return a.Output.OK(data, opts...)
}

// Err outputs an error response, printing stats to stderr if --stats is set.
func (a *App) Err(err error) error {
	if outputErr := a.Output.Err(err); outputErr != nil {
		return outputErr
	}
	if a.Flags.Stats && a.Collector != nil {
		a.PrintStats()
	}
	return nil
}

// PrintStats writes a one-line session summary to stderr.
func (a *App) PrintStats() {
	if parts := a.Collector.Summary().FormatParts(); len(parts) > 0 {
		fmt.Fprintf(a.Stderr, "Stats: %s\n", strings.Join(parts, " | "))
	}
}

// WithApp stores the app in the context.
func WithApp(ctx context.Context, app *App) context.Context {
	return context.WithValue(ctx, appKey, app)
}

// FromContext retrieves the app from the context.
func FromContext(ctx context.Context) *App {
	app, _ := ctx.Value(appKey).(*App)
	return app
}
