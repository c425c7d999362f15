package commands

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pagewise/pagewise/internal/github"
	"github.com/pagewise/pagewise/internal/output"
	"github.com/pagewise/pagewise/internal/resilience"
)

func testReposOptions(pages, retries int) reposOptions {
	return reposOptions{pages: pages, retries: retries, guard: resilience.DefaultConfig()}
}

func TestReposLoadsRequestedPages(t *testing.T) {
	gh := &fakeGitHub{repos: map[string]int{"octocat": 7}}
	app, buf := setupTestApp(t, gh, "json")

	require.NoError(t, runRepos(context.Background(), app, "octocat", testReposOptions(2, 0)))

	docs := decodeStream(t, buf)
	assert.Equal(t, []string{"loading_initial", "normal", "loading_more", "normal"}, statuses(docs))
	assert.Equal(t, []string{"repo-0", "repo-1", "repo-2", "repo-3", "repo-4", "repo-5"}, rowNames(docs))

	last := docs[len(docs)-1]
	assert.Equal(t, "octocat: 6 repositories", last.Summary)
	assert.EqualValues(t, 6, last.Meta["count"])
	assert.Equal(t, 2, gh.requestCount())
}

func TestReposLoadsAllPages(t *testing.T) {
	gh := &fakeGitHub{repos: map[string]int{"octocat": 7}}
	app, buf := setupTestApp(t, gh, "json")

	require.NoError(t, runRepos(context.Background(), app, "octocat", testReposOptions(0, 0)))

	docs := decodeStream(t, buf)
	require.NotEmpty(t, docs)
	assert.Equal(t, "end_reached", docs[len(docs)-1].Status)
	assert.Len(t, rowNames(docs), 7, "every repository printed exactly once")
	assert.Equal(t, 3, gh.requestCount())
}

func TestReposEmptyUser(t *testing.T) {
	gh := &fakeGitHub{repos: map[string]int{"ghost": 0}}
	app, buf := setupTestApp(t, gh, "json")

	require.NoError(t, runRepos(context.Background(), app, "ghost", testReposOptions(0, 0)))

	docs := decodeStream(t, buf)
	assert.Equal(t, []string{"loading_initial", "empty_state"}, statuses(docs))
	assert.Equal(t, "ghost: 0 repositories", docs[1].Summary)
}

func TestReposUnknownUser(t *testing.T) {
	gh := &fakeGitHub{repos: map[string]int{}}
	app, buf := setupTestApp(t, gh, "json")

	err := runRepos(context.Background(), app, "nobody", testReposOptions(1, 2))
	require.Error(t, err)
	assert.Equal(t, 1, gh.requestCount(), "permanent errors are not retried")

	var e *output.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, output.CodeNotFound, e.Code)
	assert.ErrorIs(t, err, github.ErrNotFound)

	docs := decodeStream(t, buf)
	assert.Equal(t, []string{"loading_initial", "error_loading_initial"}, statuses(docs))
	assert.NotEmpty(t, docs[1].Problem)
}

func TestReposRetriesInitialFailure(t *testing.T) {
	gh := &fakeGitHub{
		repos: map[string]int{"octocat": 2},
		fail:  map[int]int{1: http.StatusInternalServerError},
	}
	app, buf := setupTestApp(t, gh, "json")

	require.NoError(t, runRepos(context.Background(), app, "octocat", testReposOptions(1, 1)))

	docs := decodeStream(t, buf)
	assert.Equal(t, []string{"loading_initial", "error_loading_initial", "loading_initial", "end_reached"}, statuses(docs))
	assert.Equal(t, []string{"repo-0", "repo-1"}, rowNames(docs))
}

func TestReposRetriesLoadMoreFailure(t *testing.T) {
	gh := &fakeGitHub{
		repos: map[string]int{"octocat": 5},
		fail:  map[int]int{2: http.StatusInternalServerError},
	}
	app, buf := setupTestApp(t, gh, "json")

	require.NoError(t, runRepos(context.Background(), app, "octocat", testReposOptions(0, 1)))

	docs := decodeStream(t, buf)
	assert.Equal(t, []string{
		"loading_initial", "normal",
		"loading_more", "error_loading_more",
		"loading_more", "end_reached",
	}, statuses(docs))
	assert.Len(t, rowNames(docs), 5)
}

func TestReposGivesUpAfterRetries(t *testing.T) {
	gh := &fakeGitHub{
		repos: map[string]int{"octocat": 2},
		fail:  map[int]int{1: http.StatusInternalServerError, 2: http.StatusInternalServerError},
	}
	app, _ := setupTestApp(t, gh, "json")

	err := runRepos(context.Background(), app, "octocat", testReposOptions(1, 1))

	var e *output.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, output.CodeAPI, e.Code)
	assert.Equal(t, 2, gh.requestCount())
}

func TestReposRefreshReplacesRows(t *testing.T) {
	gh := &fakeGitHub{repos: map[string]int{"octocat": 5}}
	app, buf := setupTestApp(t, gh, "json")

	opts := testReposOptions(1, 0)
	opts.refresh = true
	require.NoError(t, runRepos(context.Background(), app, "octocat", opts))

	docs := decodeStream(t, buf)
	assert.Equal(t, []string{"loading_initial", "normal", "refreshing", "normal"}, statuses(docs))
	assert.Equal(t, []string{"repo-0", "repo-1", "repo-2", "repo-0", "repo-1", "repo-2"}, rowNames(docs))
	assert.Equal(t, 2, gh.requestCount())
}

func TestReposRejectsNegativeFlags(t *testing.T) {
	app, _ := setupTestApp(t, &fakeGitHub{}, "json")

	err := runRepos(context.Background(), app, "octocat", testReposOptions(-1, 0))
	var e *output.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, output.CodeUsage, e.Code)

	err = runRepos(context.Background(), app, "octocat", testReposOptions(1, -1))
	require.ErrorAs(t, err, &e)
	assert.Equal(t, output.CodeUsage, e.Code)
}

func TestReposCanceled(t *testing.T) {
	gh := &fakeGitHub{repos: map[string]int{"octocat": 3}}
	app, _ := setupTestApp(t, gh, "json")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := runRepos(ctx, app, "octocat", testReposOptions(1, 0))
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestReposCmdTextOutput(t *testing.T) {
	gh := &fakeGitHub{repos: map[string]int{"octocat": 2}}
	app, buf := setupTestApp(t, gh, "text")

	require.NoError(t, executeCommand(NewReposCmd(), app, "octocat"))

	out := buf.String()
	assert.Contains(t, out, "repo-0")
	assert.Contains(t, out, "repo-1")
	assert.Contains(t, out, "end_reached")
	assert.Contains(t, out, "octocat: 2 repositories")
}

func TestReposCmdRequiresUser(t *testing.T) {
	app, _ := setupTestApp(t, &fakeGitHub{}, "json")
	assert.Error(t, executeCommand(NewReposCmd(), app))
}

func TestPagesLoaded(t *testing.T) {
	assert.Equal(t, 0, pagesLoaded(0, 3))
	assert.Equal(t, 1, pagesLoaded(3, 3))
	assert.Equal(t, 2, pagesLoaded(4, 3))
}
