package github

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/codeGROOVE-dev/issue-pilot/pkg/types"
)

// CreatePullRequestRequest contains the fields for opening a pull request.
type CreatePullRequestRequest struct {
	Title string `json:"title"`
	Head  string `json:"head"`
	Base  string `json:"base"`
	Body  string `json:"body,omitempty"`
	Draft bool   `json:"draft"`
}

// PullRequest fetches a single pull request. Results are never cached: callers depend on
// seeing the current title, draft flag and assignees.
func (c *Client) PullRequest(ctx context.Context, owner, repo string, number int) (*types.PullRequest, error) {
	var pr types.PullRequest
	path := fmt.Sprintf("/repos/%s/%s/pulls/%d", owner, repo, number)
	if err := c.getJSON(ctx, path, &pr); err != nil {
		return nil, fmt.Errorf("getting PR %s/%s#%d: %w", owner, repo, number, err)
	}
	return &pr, nil
}

// CreatePullRequest opens a pull request.
func (c *Client) CreatePullRequest(ctx context.Context, owner, repo string, request CreatePullRequestRequest) (*types.PullRequest, error) {
	var pr types.PullRequest
	path := fmt.Sprintf("/repos/%s/%s/pulls", owner, repo)
	if err := c.sendJSON(ctx, http.MethodPost, path, request, &pr); err != nil {
		return nil, fmt.Errorf("creating PR %s -> %s in %s/%s: %w", request.Head, request.Base, owner, repo, err)
	}
	slog.InfoContext(ctx, "Opened pull request", "component", "api", "owner", owner, "repo", repo, "pr", pr.Number, "draft", pr.Draft)
	return &pr, nil
}

// UpdatePullRequestTitle changes a pull request's title.
func (c *Client) UpdatePullRequestTitle(ctx context.Context, owner, repo string, number int, title string) error {
	request := struct {
		Title string `json:"title"`
	}{Title: title}
	path := fmt.Sprintf("/repos/%s/%s/pulls/%d", owner, repo, number)
	if err := c.sendJSON(ctx, http.MethodPatch, path, request, nil); err != nil {
		return fmt.Errorf("updating title of %s/%s#%d: %w", owner, repo, number, err)
	}
	return nil
}

// ReviewComments returns the inline comments of a single review, in GitHub's order.
func (c *Client) ReviewComments(ctx context.Context, owner, repo string, number int, reviewID int64) ([]types.ReviewComment, error) {
	var all []types.ReviewComment
	for page := 1; ; page++ {
		var comments []types.ReviewComment
		path := fmt.Sprintf("/repos/%s/%s/pulls/%d/reviews/%d/comments?per_page=%d&page=%d",
			owner, repo, number, reviewID, perPageLimit, page)
		if err := c.getJSON(ctx, path, &comments); err != nil {
			return nil, fmt.Errorf("getting comments of review %d on %s/%s#%d: %w", reviewID, owner, repo, number, err)
		}
		all = append(all, comments...)
		if len(comments) < perPageLimit {
			break
		}
	}
	return all, nil
}
