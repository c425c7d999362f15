package commands

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pagewise/pagewise/internal/github"
	"github.com/pagewise/pagewise/internal/output"
	"github.com/pagewise/pagewise/internal/resilience"
)

// convertError maps GitHub and guard errors to CLI errors with exit
// codes. The original error stays reachable through Unwrap.
func convertError(err error, user string) error {
	if err == nil {
		return nil
	}

	var (
		rejected  *resilience.RejectedError
		rateLimit *github.RateLimitError
		apiErr    *github.APIError
		out       *output.Error
	)
	switch {
	case errors.As(err, &out):
		return out
	case errors.As(err, &rejected) && errors.Is(err, resilience.ErrCircuitOpen):
		out = output.ErrUnavailable("Requests to GitHub are paused after repeated failures")
	case errors.As(err, &rejected):
		out = output.ErrRateLimit(rejected.Wait)
	case errors.As(err, &rateLimit):
		var wait time.Duration
		if !rateLimit.Reset.IsZero() {
			wait = max(time.Until(rateLimit.Reset), 0)
		}
		out = output.ErrRateLimit(wait)
	case errors.Is(err, github.ErrUnauthorized):
		out = output.ErrAuth("GitHub rejected the token")
	case errors.Is(err, github.ErrNotFound):
		out = output.ErrNotFound("user", user)
	case errors.Is(err, github.ErrNetwork):
		out = output.ErrNetwork(err)
	case errors.Is(err, context.DeadlineExceeded):
		out = output.ErrNetwork(fmt.Errorf("request timed out: %w", err))
	case errors.As(err, &apiErr):
		msg := apiErr.Message
		if msg == "" {
			msg = fmt.Sprintf("GitHub request failed (HTTP %d)", apiErr.StatusCode)
		}
		out = output.ErrAPI(apiErr.StatusCode, msg)
	default:
		return err
	}
	out.Cause = err
	return out
}
