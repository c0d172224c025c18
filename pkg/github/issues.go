package github

import (
	"context"
	"fmt"
	"net/http"

	"github.com/codeGROOVE-dev/issue-pilot/pkg/types"
)

// IssueLabels returns the current labels of an issue or pull request.
func (c *Client) IssueLabels(ctx context.Context, owner, repo string, number int) ([]types.Label, error) {
	var all []types.Label
	for page := 1; ; page++ {
		var labels []types.Label
		path := fmt.Sprintf("/repos/%s/%s/issues/%d/labels?per_page=%d&page=%d", owner, repo, number, perPageLimit, page)
		if err := c.getJSON(ctx, path, &labels); err != nil {
			return nil, fmt.Errorf("getting labels of %s/%s#%d: %w", owner, repo, number, err)
		}
		all = append(all, labels...)
		if len(labels) < perPageLimit {
			break
		}
	}
	return all, nil
}

// AddLabels attaches labels to an issue or pull request.
func (c *Client) AddLabels(ctx context.Context, owner, repo string, number int, labels []string) error {
	request := struct {
		Labels []string `json:"labels"`
	}{Labels: labels}
	path := fmt.Sprintf("/repos/%s/%s/issues/%d/labels", owner, repo, number)
	if err := c.sendJSON(ctx, http.MethodPost, path, request, nil); err != nil {
		return fmt.Errorf("adding labels to %s/%s#%d: %w", owner, repo, number, err)
	}
	return nil
}

// AddAssignees assigns users to an issue or pull request.
func (c *Client) AddAssignees(ctx context.Context, owner, repo string, number int, assignees []string) error {
	request := struct {
		Assignees []string `json:"assignees"`
	}{Assignees: assignees}
	path := fmt.Sprintf("/repos/%s/%s/issues/%d/assignees", owner, repo, number)
	if err := c.sendJSON(ctx, http.MethodPost, path, request, nil); err != nil {
		return fmt.Errorf("assigning %v to %s/%s#%d: %w", assignees, owner, repo, number, err)
	}
	return nil
}

// CreateIssueReaction reacts to an issue or pull request body.
func (c *Client) CreateIssueReaction(ctx context.Context, owner, repo string, number int, content string) error {
	path := fmt.Sprintf("/repos/%s/%s/issues/%d/reactions", owner, repo, number)
	return c.react(ctx, path, content)
}

// CreateIssueCommentReaction reacts to a conversation comment.
func (c *Client) CreateIssueCommentReaction(ctx context.Context, owner, repo string, commentID int64, content string) error {
	path := fmt.Sprintf("/repos/%s/%s/issues/comments/%d/reactions", owner, repo, commentID)
	return c.react(ctx, path, content)
}

// CreateReviewCommentReaction reacts to an inline review comment.
func (c *Client) CreateReviewCommentReaction(ctx context.Context, owner, repo string, commentID int64, content string) error {
	path := fmt.Sprintf("/repos/%s/%s/pulls/comments/%d/reactions", owner, repo, commentID)
	return c.react(ctx, path, content)
}

func (c *Client) react(ctx context.Context, path, content string) error {
	request := struct {
		Content string `json:"content"`
	}{Content: content}
	if err := c.sendJSON(ctx, http.MethodPost, path, request, nil); err != nil {
		return fmt.Errorf("reacting %q at %s: %w", content, path, err)
	}
	return nil
}
