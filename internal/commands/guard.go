package commands

import (
	"fmt"
	"math"

	"github.com/spf13/cobra"

	"github.com/pagewise/pagewise/internal/appctx"
	"github.com/pagewise/pagewise/internal/output"
	"github.com/pagewise/pagewise/internal/resilience"
)

// NewGuardCmd creates the guard command for inspecting the circuit
// breaker and rate limiter shared across invocations.
func NewGuardCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "guard",
		Short: "Inspect request guard state",
		Long: `Inspect the circuit breaker and rate limiter that protect the GitHub API.

Guard state is kept per API host under the cache directory and shared by
every pagewise process.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGuardStatus(cmd)
		},
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "status",
			Short: "Show circuit and rate limit state",
			RunE: func(cmd *cobra.Command, args []string) error {
				return runGuardStatus(cmd)
			},
		},
		&cobra.Command{
			Use:   "reset",
			Short: "Close the circuit and refill the rate limiter",
			RunE: func(cmd *cobra.Command, args []string) error {
				return runGuardReset(cmd)
			},
		},
	)

	return cmd
}

type guardStatus struct {
	Host    string `json:"host" yaml:"host"`
	Circuit string `json:"circuit" yaml:"circuit"`
	Tokens  int    `json:"tokens" yaml:"tokens"`
	Path    string `json:"path" yaml:"path"`
}

func guardFor(app *appctx.App) (*resilience.CircuitBreaker, *resilience.RateLimiter, *resilience.Store, string) {
	store := app.ResilienceStore()
	host := app.GitHub().Host()
	cfg := resilience.DefaultConfig()
	return resilience.NewCircuitBreaker(store, host, cfg), resilience.NewRateLimiter(store, host, cfg), store, host
}

func runGuardStatus(cmd *cobra.Command) error {
	app := appctx.FromContext(cmd.Context())
	breaker, limiter, store, host := guardFor(app)

	state, err := breaker.State()
	if err != nil {
		return fmt.Errorf("reading circuit state: %w", err)
	}
	tokens, err := limiter.Tokens()
	if err != nil {
		return fmt.Errorf("reading rate limiter: %w", err)
	}

	return app.OK(guardStatus{
		Host:    host,
		Circuit: string(state),
		Tokens:  int(math.Floor(tokens)),
		Path:    store.Path(),
	}, output.WithSummary(fmt.Sprintf("%s: circuit %s", host, state)))
}

func runGuardReset(cmd *cobra.Command) error {
	app := appctx.FromContext(cmd.Context())
	breaker, limiter, _, host := guardFor(app)

	if err := breaker.Reset(); err != nil {
		return fmt.Errorf("resetting circuit: %w", err)
	}
	if err := limiter.Reset(); err != nil {
		return fmt.Errorf("resetting rate limiter: %w", err)
	}

	return app.OK(map[string]any{"host": host, "reset": true},
		output.WithSummary(fmt.Sprintf("%s: guard reset", host)))
}
