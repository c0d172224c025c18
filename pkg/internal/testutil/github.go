package testutil

import (
	"context"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"sync"

	"github.com/codeGROOVE-dev/issue-pilot/pkg/github"
	"github.com/codeGROOVE-dev/issue-pilot/pkg/types"
)

// MockGitHubClient implements github.API and github.Installations for testing.
// It keeps a small in-memory model of one or more repositories so that handlers
// observe the effects of their own writes, the way they would against GitHub.
type MockGitHubClient struct {
	errors         map[string]error
	branches       map[string][]string
	commits        map[string]*types.Commit
	labels         map[string][]types.Label
	pullRequests   map[string]*types.PullRequest
	reviewComments map[int64][]types.ReviewComment
	calls          []Call
	dispatches     []DispatchCall
	installations  []int64
	token          string
	nextPR         int
	nextSHA        int
	mu             sync.Mutex
}

// Call records one method invocation on the mock.
type Call struct {
	Method string
	Args   []any
}

// DispatchCall records a call to RepositoryDispatch.
type DispatchCall struct {
	Payload   any
	Owner     string
	Repo      string
	EventType string
}

// mutatingMethods are the calls that change state on GitHub.
var mutatingMethods = map[string]bool{
	"CreateRef":                   true,
	"UpdateRef":                   true,
	"CreateCommit":                true,
	"RepositoryDispatch":          true,
	"AddLabels":                   true,
	"AddAssignees":                true,
	"CreateIssueReaction":         true,
	"CreateIssueCommentReaction":  true,
	"CreatePullRequest":           true,
	"UpdatePullRequestTitle":      true,
	"CreateReviewCommentReaction": true,
	"MarkReadyForReview":          true,
}

// NewMockGitHubClient creates a new MockGitHubClient.
func NewMockGitHubClient() *MockGitHubClient {
	return &MockGitHubClient{
		errors:         make(map[string]error),
		branches:       make(map[string][]string),
		commits:        make(map[string]*types.Commit),
		labels:         make(map[string][]types.Label),
		pullRequests:   make(map[string]*types.PullRequest),
		reviewComments: make(map[int64][]types.ReviewComment),
		token:          "ghs_test_token",
		nextPR:         100,
	}
}

func repoKey(owner, repo string) string {
	return owner + "/" + repo
}

func issueKey(owner, repo string, number int) string {
	return fmt.Sprintf("%s/%s#%d", owner, repo, number)
}

// SetError makes every call to method fail with err.
func (m *MockGitHubClient) SetError(method string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors[method] = err
}

// SetToken sets the token returned by Token.
func (m *MockGitHubClient) SetToken(token string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = token
}

// AddBranch adds a branch pointing at sha. The base commit is registered too.
func (m *MockGitHubClient) AddBranch(owner, repo, name, sha string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.branches[repoKey(owner, repo)] = append(m.branches[repoKey(owner, repo)], name)
	m.commits[repoKey(owner, repo)+"@"+name] = &types.Commit{SHA: sha}
	if _, ok := m.commits[sha]; !ok {
		c := &types.Commit{SHA: sha}
		c.Tree.SHA = "tree-" + sha
		m.commits[sha] = c
	}
}

// Branches returns the branch names of a repository.
func (m *MockGitHubClient) Branches(owner, repo string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.branches[repoKey(owner, repo)])
}

// SetLabels replaces the labels of an issue or pull request.
func (m *MockGitHubClient) SetLabels(owner, repo string, number int, names ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	labels := make([]types.Label, 0, len(names))
	for _, n := range names {
		labels = append(labels, types.Label{Name: n})
	}
	m.labels[issueKey(owner, repo, number)] = labels
}

// Labels returns the label names of an issue or pull request.
func (m *MockGitHubClient) Labels(owner, repo string, number int) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var names []string
	for _, l := range m.labels[issueKey(owner, repo, number)] {
		names = append(names, l.Name)
	}
	return names
}

// SetPullRequest stores a pull request.
func (m *MockGitHubClient) SetPullRequest(owner, repo string, pr *types.PullRequest) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pullRequests[issueKey(owner, repo, pr.Number)] = pr
}

// GetPullRequest returns a copy of a stored pull request, or nil.
func (m *MockGitHubClient) GetPullRequest(owner, repo string, number int) *types.PullRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	pr, ok := m.pullRequests[issueKey(owner, repo, number)]
	if !ok {
		return nil
	}
	cp := *pr
	cp.Assignees = slices.Clone(pr.Assignees)
	return &cp
}

// SetReviewComments stores the inline comments of a review.
func (m *MockGitHubClient) SetReviewComments(reviewID int64, comments []types.ReviewComment) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reviewComments[reviewID] = comments
}

// Calls returns every recorded call.
func (m *MockGitHubClient) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.calls)
}

// CallsTo returns the recorded calls of one method.
func (m *MockGitHubClient) CallsTo(method string) []Call {
	var matched []Call
	for _, c := range m.Calls() {
		if c.Method == method {
			matched = append(matched, c)
		}
	}
	return matched
}

// MutatingCalls returns the recorded calls that would change state on GitHub.
func (m *MockGitHubClient) MutatingCalls() []Call {
	var matched []Call
	for _, c := range m.Calls() {
		if mutatingMethods[c.Method] {
			matched = append(matched, c)
		}
	}
	return matched
}

// Dispatches returns the recorded repository_dispatch calls.
func (m *MockGitHubClient) Dispatches() []DispatchCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.dispatches)
}

// InstallationIDs returns the installation IDs clients were requested for.
func (m *MockGitHubClient) InstallationIDs() []int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.installations)
}

// record logs a call and returns the configured error for it. Callers hold m.mu.
func (m *MockGitHubClient) record(method string, args ...any) error {
	m.calls = append(m.calls, Call{Method: method, Args: args})
	return m.errors[method]
}

// ForInstallation implements github.Installations by returning the mock itself.
func (m *MockGitHubClient) ForInstallation(_ context.Context, installationID int64) (github.API, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.installations = append(m.installations, installationID)
	if err := m.errors["ForInstallation"]; err != nil {
		return nil, err
	}
	return m, nil
}

// Token implements github.API.
func (m *MockGitHubClient) Token() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token
}

// ListBranches implements github.API.
func (m *MockGitHubClient) ListBranches(_ context.Context, owner, repo string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("ListBranches", owner, repo); err != nil {
		return nil, err
	}
	return slices.Clone(m.branches[repoKey(owner, repo)]), nil
}

// Ref implements github.API.
func (m *MockGitHubClient) Ref(_ context.Context, owner, repo, ref string) (*types.Ref, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("Ref", owner, repo, ref); err != nil {
		return nil, err
	}
	name := strings.TrimPrefix(strings.TrimPrefix(ref, "refs/"), "heads/")
	head, ok := m.commits[repoKey(owner, repo)+"@"+name]
	if !ok {
		return nil, &github.APIError{StatusCode: http.StatusNotFound, Message: "Not Found"}
	}
	result := &types.Ref{Ref: "refs/heads/" + name}
	result.Object.SHA = head.SHA
	result.Object.Type = "commit"
	return result, nil
}

// CreateRef implements github.API. Creating an existing branch fails the way GitHub does.
func (m *MockGitHubClient) CreateRef(_ context.Context, owner, repo, ref, sha string) (*types.Ref, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("CreateRef", owner, repo, ref, sha); err != nil {
		return nil, err
	}
	name := strings.TrimPrefix(ref, "refs/heads/")
	if slices.Contains(m.branches[repoKey(owner, repo)], name) {
		return nil, &github.APIError{StatusCode: http.StatusUnprocessableEntity, Message: "Reference already exists"}
	}
	m.branches[repoKey(owner, repo)] = append(m.branches[repoKey(owner, repo)], name)
	m.commits[repoKey(owner, repo)+"@"+name] = &types.Commit{SHA: sha}
	result := &types.Ref{Ref: ref}
	result.Object.SHA = sha
	return result, nil
}

// UpdateRef implements github.API.
func (m *MockGitHubClient) UpdateRef(_ context.Context, owner, repo, ref, sha string, force bool) (*types.Ref, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("UpdateRef", owner, repo, ref, sha, force); err != nil {
		return nil, err
	}
	name := strings.TrimPrefix(strings.TrimPrefix(ref, "refs/"), "heads/")
	m.commits[repoKey(owner, repo)+"@"+name] = &types.Commit{SHA: sha}
	result := &types.Ref{Ref: "refs/heads/" + name}
	result.Object.SHA = sha
	return result, nil
}

// Commit implements github.API.
func (m *MockGitHubClient) Commit(_ context.Context, owner, repo, sha string) (*types.Commit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("Commit", owner, repo, sha); err != nil {
		return nil, err
	}
	c, ok := m.commits[sha]
	if !ok {
		return nil, &github.APIError{StatusCode: http.StatusNotFound, Message: "Not Found"}
	}
	cp := *c
	return &cp, nil
}

// CreateCommit implements github.API.
func (m *MockGitHubClient) CreateCommit(_ context.Context, owner, repo string, request github.CreateCommitRequest) (*types.Commit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("CreateCommit", owner, repo, request); err != nil {
		return nil, err
	}
	m.nextSHA++
	c := &types.Commit{SHA: fmt.Sprintf("commit-%d", m.nextSHA), Message: request.Message}
	c.Tree.SHA = request.Tree
	m.commits[c.SHA] = c
	cp := *c
	return &cp, nil
}

// RepositoryDispatch implements github.API.
func (m *MockGitHubClient) RepositoryDispatch(_ context.Context, owner, repo, eventType string, payload any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("RepositoryDispatch", owner, repo, eventType, payload); err != nil {
		return err
	}
	m.dispatches = append(m.dispatches, DispatchCall{Owner: owner, Repo: repo, EventType: eventType, Payload: payload})
	return nil
}

// IssueLabels implements github.API.
func (m *MockGitHubClient) IssueLabels(_ context.Context, owner, repo string, number int) ([]types.Label, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("IssueLabels", owner, repo, number); err != nil {
		return nil, err
	}
	return slices.Clone(m.labels[issueKey(owner, repo, number)]), nil
}

// AddLabels implements github.API.
func (m *MockGitHubClient) AddLabels(_ context.Context, owner, repo string, number int, labels []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("AddLabels", owner, repo, number, labels); err != nil {
		return err
	}
	key := issueKey(owner, repo, number)
	for _, name := range labels {
		if !slices.ContainsFunc(m.labels[key], func(l types.Label) bool { return l.Name == name }) {
			m.labels[key] = append(m.labels[key], types.Label{Name: name})
		}
	}
	return nil
}

// AddAssignees implements github.API.
func (m *MockGitHubClient) AddAssignees(_ context.Context, owner, repo string, number int, assignees []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("AddAssignees", owner, repo, number, assignees); err != nil {
		return err
	}
	if pr, ok := m.pullRequests[issueKey(owner, repo, number)]; ok {
		for _, login := range assignees {
			if !pr.HasAssignee(login) {
				pr.Assignees = append(pr.Assignees, types.Actor{Login: login, Type: types.ActorUser})
			}
		}
	}
	return nil
}

// CreateIssueReaction implements github.API.
func (m *MockGitHubClient) CreateIssueReaction(_ context.Context, owner, repo string, number int, content string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.record("CreateIssueReaction", owner, repo, number, content)
}

// CreateIssueCommentReaction implements github.API.
func (m *MockGitHubClient) CreateIssueCommentReaction(_ context.Context, owner, repo string, commentID int64, content string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.record("CreateIssueCommentReaction", owner, repo, commentID, content)
}

// PullRequest implements github.API.
func (m *MockGitHubClient) PullRequest(_ context.Context, owner, repo string, number int) (*types.PullRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("PullRequest", owner, repo, number); err != nil {
		return nil, err
	}
	pr, ok := m.pullRequests[issueKey(owner, repo, number)]
	if !ok {
		return nil, &github.APIError{StatusCode: http.StatusNotFound, Message: "Not Found"}
	}
	cp := *pr
	cp.Assignees = slices.Clone(pr.Assignees)
	return &cp, nil
}

// CreatePullRequest implements github.API.
func (m *MockGitHubClient) CreatePullRequest(_ context.Context, owner, repo string, request github.CreatePullRequestRequest) (*types.PullRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("CreatePullRequest", owner, repo, request); err != nil {
		return nil, err
	}
	m.nextPR++
	pr := &types.PullRequest{
		Number: m.nextPR,
		NodeID: fmt.Sprintf("PR_node_%d", m.nextPR),
		Title:  request.Title,
		Body:   request.Body,
		Draft:  request.Draft,
		State:  "open",
		Head:   types.Branch{Ref: request.Head},
		Base:   types.Branch{Ref: request.Base},
		User:   types.Actor{Login: "issue-pilot[bot]", Type: types.ActorBot},
	}
	m.pullRequests[issueKey(owner, repo, pr.Number)] = pr
	cp := *pr
	return &cp, nil
}

// UpdatePullRequestTitle implements github.API.
func (m *MockGitHubClient) UpdatePullRequestTitle(_ context.Context, owner, repo string, number int, title string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("UpdatePullRequestTitle", owner, repo, number, title); err != nil {
		return err
	}
	if pr, ok := m.pullRequests[issueKey(owner, repo, number)]; ok {
		pr.Title = title
	}
	return nil
}

// ReviewComments implements github.API.
func (m *MockGitHubClient) ReviewComments(_ context.Context, owner, repo string, number int, reviewID int64) ([]types.ReviewComment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("ReviewComments", owner, repo, number, reviewID); err != nil {
		return nil, err
	}
	return slices.Clone(m.reviewComments[reviewID]), nil
}

// CreateReviewCommentReaction implements github.API.
func (m *MockGitHubClient) CreateReviewCommentReaction(_ context.Context, owner, repo string, commentID int64, content string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.record("CreateReviewCommentReaction", owner, repo, commentID, content)
}

// MarkReadyForReview implements github.API.
func (m *MockGitHubClient) MarkReadyForReview(_ context.Context, nodeID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("MarkReadyForReview", nodeID); err != nil {
		return err
	}
	for _, pr := range m.pullRequests {
		if pr.NodeID == nodeID {
			pr.Draft = false
		}
	}
	return nil
}

var (
	_ github.API           = (*MockGitHubClient)(nil)
	_ github.Installations = (*MockGitHubClient)(nil)
)
