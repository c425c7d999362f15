package github

import (
	"context"

	"github.com/pagewise/pagewise/internal/repository"
)

// ReposSource pages through one user's repositories.
type ReposSource struct {
	Client *Client
	User   string
}

var _ repository.RemoteSource[Repo] = ReposSource{}

func (s ReposSource) FetchPage(ctx context.Context, page, perPage int) ([]Repo, error) {
	return s.Client.ListUserRepos(ctx, s.User, page, perPage)
}
