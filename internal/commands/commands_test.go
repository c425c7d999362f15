package commands

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"

	"github.com/pagewise/pagewise/internal/appctx"
	"github.com/pagewise/pagewise/internal/config"
)

// fakeGitHub serves /users/{user}/repos from an in-memory list.
type fakeGitHub struct {
	mu       sync.Mutex
	repos    map[string]int
	fail     map[int]int // request number -> status
	requests []string
}

func (f *fakeGitHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.requests = append(f.requests, r.URL.RequestURI())
	n := len(f.requests)
	status := f.fail[n]
	f.mu.Unlock()

	if status != 0 {
		w.WriteHeader(status)
		fmt.Fprintf(w, `{"message":"injected failure %d"}`, n)
		return
	}

	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(parts) != 3 || parts[0] != "users" || parts[2] != "repos" {
		http.NotFound(w, r)
		return
	}
	total, ok := f.repos[parts[1]]
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"message":"Not Found"}`)
		return
	}

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	start := min((page-1)*perPage, total)
	end := min(start+perPage, total)

	items := make([]map[string]any, 0, end-start)
	for i := start; i < end; i++ {
		items = append(items, map[string]any{
			"node_id":        fmt.Sprintf("R_%d", i),
			"name":           fmt.Sprintf("repo-%d", i),
			"private":        false,
			"watchers_count": i,
		})
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(items)
}

func (f *fakeGitHub) requestCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func setupTestApp(t *testing.T, gh *fakeGitHub, format string) (*appctx.App, *bytes.Buffer) {
	t.Helper()
	keyring.MockInit()

	srv := httptest.NewServer(gh)
	t.Cleanup(srv.Close)

	cfg := config.Default()
	cfg.BaseURL = srv.URL
	cfg.PageSize = 3
	cfg.Format = format
	cfg.CacheDir = t.TempDir()
	cfg.Sources = map[string]string{"base_url": string(config.SourceFlag)}

	buf := &bytes.Buffer{}
	app, err := appctx.NewApp(cfg, appctx.GlobalFlags{}, buf, &bytes.Buffer{})
	require.NoError(t, err)
	return app, buf
}

func executeCommand(cmd *cobra.Command, app *appctx.App, args ...string) error {
	ctx := appctx.WithApp(context.Background(), app)
	cmd.SetContext(ctx)
	cmd.SetArgs(args)
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	return cmd.Execute()
}

type envelope struct {
	OK      bool             `json:"ok"`
	Data    []map[string]any `json:"data"`
	Summary string           `json:"summary"`
	Status  string           `json:"status"`
	Problem string           `json:"error"`
	Meta    map[string]any   `json:"meta"`
}

func decodeStream(t *testing.T, buf *bytes.Buffer) []envelope {
	t.Helper()
	var out []envelope
	scanner := bufio.NewScanner(bytes.NewReader(buf.Bytes()))
	for scanner.Scan() {
		var e envelope
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &e), "line %q", scanner.Text())
		out = append(out, e)
	}
	return out
}

func statuses(docs []envelope) []string {
	out := make([]string, len(docs))
	for i, d := range docs {
		out[i] = d.Status
	}
	return out
}

func rowNames(docs []envelope) []string {
	var out []string
	for _, d := range docs {
		for _, row := range d.Data {
			out = append(out, row["name"].(string))
		}
	}
	return out
}
