package github

// Repo is a repository as shown to users.
type Repo struct {
	NodeID      string `json:"node_id" yaml:"node_id"`
	Name        string `json:"name" yaml:"name"`
	Private     bool   `json:"private" yaml:"private"`
	HTMLURL     string `json:"html_url" yaml:"html_url"`
	Description string `json:"description" yaml:"description"`
	Watchers    int    `json:"watchers" yaml:"watchers"`
}

// repoResponse is the wire shape of one element of
// GET /users/{user}/repos. Nullable fields decode to nil.
type repoResponse struct {
	NodeID      string  `json:"node_id"`
	Name        string  `json:"name"`
	Private     bool    `json:"private"`
	HTMLURL     *string `json:"html_url"`
	Description *string `json:"description"`
	Watchers    *int    `json:"watchers_count"`
}

func (r repoResponse) toRepo() Repo {
	repo := Repo{NodeID: r.NodeID, Name: r.Name, Private: r.Private}
	if r.HTMLURL != nil {
		repo.HTMLURL = *r.HTMLURL
	}
	if r.Description != nil {
		repo.Description = *r.Description
	}
	if r.Watchers != nil {
		repo.Watchers = *r.Watchers
	}
	return repo
}
