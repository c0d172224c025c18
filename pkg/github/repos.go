package github

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/codeGROOVE-dev/issue-pilot/pkg/types"
)

// CreateCommitRequest contains the fields for creating a git commit.
type CreateCommitRequest struct {
	Message string   `json:"message"`
	Tree    string   `json:"tree"`
	Parents []string `json:"parents"`
}

// ListBranches returns the names of every branch in the repository.
func (c *Client) ListBranches(ctx context.Context, owner, repo string) ([]string, error) {
	var names []string
	for page := 1; ; page++ {
		var branches []struct {
			Name string `json:"name"`
		}
		path := fmt.Sprintf("/repos/%s/%s/branches?per_page=%d&page=%d", owner, repo, perPageLimit, page)
		if err := c.getJSON(ctx, path, &branches); err != nil {
			return nil, fmt.Errorf("listing branches of %s/%s: %w", owner, repo, err)
		}
		for _, b := range branches {
			names = append(names, b.Name)
		}
		if len(branches) < perPageLimit {
			break
		}
	}
	slog.DebugContext(ctx, "Listed branches", "component", "api", "owner", owner, "repo", repo, "count", len(names))
	return names, nil
}

// Ref looks up a git reference such as "heads/main".
func (c *Client) Ref(ctx context.Context, owner, repo, ref string) (*types.Ref, error) {
	var result types.Ref
	path := fmt.Sprintf("/repos/%s/%s/git/ref/%s", owner, repo, strings.TrimPrefix(ref, "refs/"))
	if err := c.getJSON(ctx, path, &result); err != nil {
		return nil, fmt.Errorf("getting ref %s in %s/%s: %w", ref, owner, repo, err)
	}
	return &result, nil
}

// CreateRef creates a fully qualified reference such as "refs/heads/feature".
func (c *Client) CreateRef(ctx context.Context, owner, repo, ref, sha string) (*types.Ref, error) {
	if !strings.HasPrefix(ref, "refs/") {
		ref = "refs/" + ref
	}
	request := struct {
		Ref string `json:"ref"`
		SHA string `json:"sha"`
	}{Ref: ref, SHA: sha}

	var result types.Ref
	path := fmt.Sprintf("/repos/%s/%s/git/refs", owner, repo)
	if err := c.sendJSON(ctx, http.MethodPost, path, request, &result); err != nil {
		return nil, fmt.Errorf("creating ref %s in %s/%s: %w", ref, owner, repo, err)
	}
	return &result, nil
}

// UpdateRef points ref ("heads/feature") at sha.
func (c *Client) UpdateRef(ctx context.Context, owner, repo, ref, sha string, force bool) (*types.Ref, error) {
	request := struct {
		SHA   string `json:"sha"`
		Force bool   `json:"force"`
	}{SHA: sha, Force: force}

	var result types.Ref
	path := fmt.Sprintf("/repos/%s/%s/git/refs/%s", owner, repo, strings.TrimPrefix(ref, "refs/"))
	if err := c.sendJSON(ctx, http.MethodPatch, path, request, &result); err != nil {
		return nil, fmt.Errorf("updating ref %s in %s/%s: %w", ref, owner, repo, err)
	}
	return &result, nil
}

// Commit fetches a git commit object.
func (c *Client) Commit(ctx context.Context, owner, repo, sha string) (*types.Commit, error) {
	var commit types.Commit
	path := fmt.Sprintf("/repos/%s/%s/git/commits/%s", owner, repo, sha)
	if err := c.getJSON(ctx, path, &commit); err != nil {
		return nil, fmt.Errorf("getting commit %s in %s/%s: %w", sha, owner, repo, err)
	}
	return &commit, nil
}

// CreateCommit creates a git commit object.
func (c *Client) CreateCommit(ctx context.Context, owner, repo string, request CreateCommitRequest) (*types.Commit, error) {
	var commit types.Commit
	path := fmt.Sprintf("/repos/%s/%s/git/commits", owner, repo)
	if err := c.sendJSON(ctx, http.MethodPost, path, request, &commit); err != nil {
		return nil, fmt.Errorf("creating commit in %s/%s: %w", owner, repo, err)
	}
	return &commit, nil
}

// RepositoryDispatch fires a repository_dispatch event. GitHub answers 204 with no body.
func (c *Client) RepositoryDispatch(ctx context.Context, owner, repo, eventType string, payload any) error {
	request := struct {
		ClientPayload any    `json:"client_payload"`
		EventType     string `json:"event_type"`
	}{EventType: eventType, ClientPayload: payload}

	path := fmt.Sprintf("/repos/%s/%s/dispatches", owner, repo)
	if err := c.sendJSON(ctx, http.MethodPost, path, request, nil); err != nil {
		return fmt.Errorf("dispatching %s to %s/%s: %w", eventType, owner, repo, err)
	}
	return nil
}
