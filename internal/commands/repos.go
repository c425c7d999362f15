package commands

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"pkt.systems/pslog"

	"github.com/pagewise/pagewise/internal/appctx"
	"github.com/pagewise/pagewise/internal/cache"
	"github.com/pagewise/pagewise/internal/feed"
	"github.com/pagewise/pagewise/internal/github"
	"github.com/pagewise/pagewise/internal/live"
	"github.com/pagewise/pagewise/internal/output"
	"github.com/pagewise/pagewise/internal/paging"
	"github.com/pagewise/pagewise/internal/repository"
	"github.com/pagewise/pagewise/internal/resilience"
)

// maxRetryWait caps how long a retry waits on a rate limit block.
const maxRetryWait = 30 * time.Second

type reposOptions struct {
	pages      int
	retries    int
	refresh    bool
	retryDelay time.Duration
	guard      resilience.Config
}

// NewReposCmd creates the repos command.
func NewReposCmd() *cobra.Command {
	opts := reposOptions{retryDelay: time.Second, guard: resilience.DefaultConfig()}

	cmd := &cobra.Command{
		Use:   "repos <user>",
		Short: "List a user's repositories page by page",
		Long: `List a GitHub user's public repositories.

Pages are requested one at a time as the previous page settles. Every
status change is printed: loading, data, errors and the end of the list.
Failed pages are retried up to --retries times.`,
		Example: `  pagewise repos octocat
  pagewise repos torvalds --pages 0 --format json
  pagewise repos octocat --jq '.data[]?.name'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := appctx.FromContext(cmd.Context())
			return runRepos(cmd.Context(), app, args[0], opts)
		},
	}

	cmd.Flags().IntVar(&opts.pages, "pages", 1, "Number of pages to load (0 for all)")
	cmd.Flags().IntVar(&opts.retries, "retries", 2, "Retries per failed page")
	cmd.Flags().BoolVar(&opts.refresh, "refresh", false, "Refresh after the first page settles")

	return cmd
}

func runRepos(ctx context.Context, app *appctx.App, user string, opts reposOptions) error {
	if opts.pages < 0 {
		return output.ErrUsage("--pages must be zero or positive")
	}
	if opts.retries < 0 {
		return output.ErrUsage("--retries must be zero or positive")
	}

	log := pslog.Ctx(ctx).With("user", user)
	ctx = pslog.ContextWithLogger(ctx, log)

	client := app.GitHub()
	source := resilience.NewGuard[github.Repo](
		github.ReposSource{Client: client, User: user},
		app.ResilienceStore(), client.Host(), opts.guard,
	)
	repo := repository.New(cache.New[github.Repo](), source)

	machineOpts := []paging.Option{
		paging.WithLogger(log),
		paging.WithObserver(app.Hooks.OnTransition),
	}
	if app.Config.Timeout > 0 {
		machineOpts = append(machineOpts, paging.WithTimeout(app.Config.Timeout))
	}
	if opts.refresh {
		machineOpts = append(machineOpts, paging.WithRefreshProjection())
	}
	machine := feed.New[github.Repo](repo, feed.NewLogErrorLogger(log), app.Config.PageSize, machineOpts...)
	defer machine.Close()

	out, err := app.StreamOutput()
	if err != nil {
		return err
	}

	d := &reposDriver{
		user:    user,
		opts:    opts,
		machine: machine,
		out:     out,
	}
	if err := d.run(ctx); err != nil {
		return err
	}
	if app.Flags.Stats {
		app.PrintStats()
	}
	return nil
}

// reposDriver plays the part of a scrolling list: it renders each
// snapshot, asks for the next page when one settles, and retries
// failures.
type reposDriver struct {
	user    string
	opts    reposOptions
	machine *paging.Machine[github.Repo]
	out     *output.Writer

	printed   int
	retries   int
	refreshed bool
}

func (d *reposDriver) run(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	watchCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	results := d.machine.Results().Watch(watchCtx, live.WithBuffer(32))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case r, ok := <-results:
			if !ok {
				return ctx.Err()
			}
			if err := d.render(r); err != nil {
				return err
			}
			done, err := d.step(ctx, r)
			if done || err != nil {
				return err
			}
		}
	}
}

func (d *reposDriver) step(ctx context.Context, r paging.PagedResult[github.Repo]) (bool, error) {
	switch r.Status.Kind {
	case paging.Normal:
		d.retries = 0
		if d.refreshPending() {
			return false, nil
		}
		if d.opts.pages > 0 && pagesLoaded(len(r.Data), d.machine.PageSize()) >= d.opts.pages {
			return true, nil
		}
		d.machine.OnDataBound(len(r.Data) - 1)
	case paging.EndReached, paging.EmptyState:
		d.retries = 0
		return !d.refreshPending(), nil
	case paging.ErrorLoadingInitial, paging.RefreshingError:
		return d.retry(ctx, r.Status.Cause, d.machine.RetryLoadingInitial)
	case paging.ErrorLoadingMore:
		return d.retry(ctx, r.Status.Cause, d.machine.RetryLoadingMore)
	}
	return false, nil
}

func (d *reposDriver) refreshPending() bool {
	if !d.opts.refresh || d.refreshed {
		return false
	}
	d.refreshed = true
	d.printed = 0
	d.machine.Fetch()
	return true
}

func (d *reposDriver) retry(ctx context.Context, cause error, again func()) (bool, error) {
	if d.retries >= d.opts.retries || permanent(cause) {
		return true, convertError(cause, d.user)
	}
	d.retries++

	wait := d.opts.retryDelay
	var rejected *resilience.RejectedError
	if errors.As(cause, &rejected) && rejected.Wait > wait {
		wait = min(rejected.Wait, maxRetryWait)
	}
	pslog.Ctx(ctx).Debug("retrying page", "attempt", d.retries, "wait", wait, "err", cause)

	if wait > 0 {
		select {
		case <-ctx.Done():
			return true, ctx.Err()
		case <-time.After(wait):
		}
	}
	again()
	return false, nil
}

func (d *reposDriver) render(r paging.PagedResult[github.Repo]) error {
	var problem string
	if r.Status.Cause != nil {
		problem = r.Status.Cause.Error()
	}

	// Only rows not yet shown are printed, once their page has settled.
	var data any
	if !r.Status.Kind.IsLoading() && !r.Status.Kind.IsError() && len(r.Data) > d.printed {
		data = r.Data[d.printed:]
		d.printed = len(r.Data)
	}

	return d.out.OK(data,
		output.WithSummary(fmt.Sprintf("%s: %s", d.user, countNoun(len(r.Data), "repository", "repositories"))),
		output.WithStatus(r.Status.Kind.String(), problem),
		output.WithMeta("count", len(r.Data)),
	)
}

// permanent reports whether retrying cause cannot help.
func permanent(err error) bool {
	var p interface{ Permanent() bool }
	return errors.As(err, &p) && p.Permanent()
}

func pagesLoaded(count, pageSize int) int {
	return (count + pageSize - 1) / pageSize
}

func countNoun(n int, one, many string) string {
	if n == 1 {
		return "1 " + one
	}
	return fmt.Sprintf("%d %s", n, many)
}
