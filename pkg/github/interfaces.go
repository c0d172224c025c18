package github

import (
	"context"
	"net/http"

	"github.com/codeGROOVE-dev/issue-pilot/pkg/types"
)

// HTTPDoer provides an interface for making HTTP requests.
// This allows us to mock HTTP calls in tests.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// API defines the GitHub operations the relay performs on behalf of one installation.
//
//nolint:interfacebloat // the relay legitimately touches many GitHub endpoints
type API interface {
	// Token returns the installation access token the client authenticates with.
	Token() string

	// Repository and git data
	ListBranches(ctx context.Context, owner, repo string) ([]string, error)
	Ref(ctx context.Context, owner, repo, ref string) (*types.Ref, error)
	CreateRef(ctx context.Context, owner, repo, ref, sha string) (*types.Ref, error)
	UpdateRef(ctx context.Context, owner, repo, ref, sha string, force bool) (*types.Ref, error)
	Commit(ctx context.Context, owner, repo, sha string) (*types.Commit, error)
	CreateCommit(ctx context.Context, owner, repo string, request CreateCommitRequest) (*types.Commit, error)
	RepositoryDispatch(ctx context.Context, owner, repo, eventType string, payload any) error

	// Issue operations (issues and pull requests share numbers and labels)
	IssueLabels(ctx context.Context, owner, repo string, number int) ([]types.Label, error)
	AddLabels(ctx context.Context, owner, repo string, number int, labels []string) error
	AddAssignees(ctx context.Context, owner, repo string, number int, assignees []string) error
	CreateIssueReaction(ctx context.Context, owner, repo string, number int, content string) error
	CreateIssueCommentReaction(ctx context.Context, owner, repo string, commentID int64, content string) error

	// Pull request operations
	PullRequest(ctx context.Context, owner, repo string, number int) (*types.PullRequest, error)
	CreatePullRequest(ctx context.Context, owner, repo string, request CreatePullRequestRequest) (*types.PullRequest, error)
	UpdatePullRequestTitle(ctx context.Context, owner, repo string, number int, title string) error
	ReviewComments(ctx context.Context, owner, repo string, number int, reviewID int64) ([]types.ReviewComment, error)
	CreateReviewCommentReaction(ctx context.Context, owner, repo string, commentID int64, content string) error
	MarkReadyForReview(ctx context.Context, nodeID string) error
}

// Installations hands out API clients authenticated as a specific App installation.
type Installations interface {
	ForInstallation(ctx context.Context, installationID int64) (API, error)
}

// Ensure Client and App satisfy their interfaces.
var _ API = (*Client)(nil)
var _ Installations = (*App)(nil)
