// Package types contains the GitHub data structures shared by the relay packages.
//
//nolint:revive // "types" is a standard Go package name for shared data structures
package types

import (
	"encoding/json"
	"strings"
)

// Actor types reported by GitHub in the "type" field of a user record.
const (
	ActorUser = "User"
	ActorBot  = "Bot"
)

// botLoginSuffix marks accounts generated by GitHub Apps.
const botLoginSuffix = "[bot]"

// Actor is the user or bot that caused a webhook event.
type Actor struct {
	Login string `json:"login"`
	Type  string `json:"type,omitempty"`
}

// Kind returns the actor's type. A "[bot]" login is a Bot whatever type GitHub reported.
func (a Actor) Kind() string {
	if a.Type == ActorBot || strings.HasSuffix(a.Login, botLoginSuffix) {
		return ActorBot
	}
	if a.Type != "" {
		return a.Type
	}
	return ActorUser
}

// Label is an issue or pull request label.
type Label struct {
	Name string `json:"name"`
}

// Repository identifies the repository an event belongs to.
type Repository struct {
	Owner         Actor  `json:"owner"`
	Name          string `json:"name"`
	FullName      string `json:"full_name,omitempty"`
	DefaultBranch string `json:"default_branch,omitempty"`
}

// Installation is the GitHub App installation that delivered an event.
type Installation struct {
	ID int64 `json:"id"`
}

// IssuePRRef is present on issues that are actually pull requests.
type IssuePRRef struct {
	URL string `json:"url,omitempty"`
}

// Issue represents a GitHub issue. Issues and pull requests share one numbering space.
type Issue struct {
	PullRequest *IssuePRRef `json:"pull_request,omitempty"`
	Title       string      `json:"title"`
	Body        string      `json:"body,omitempty"`
	Labels      []Label     `json:"labels,omitempty"`
	Number      int         `json:"number"`
}

// IsPullRequest reports whether the issue is a pull request.
func (i Issue) IsPullRequest() bool {
	return i.PullRequest != nil
}

// Branch is the head or base side of a pull request.
type Branch struct {
	Ref string `json:"ref"`
	SHA string `json:"sha,omitempty"`
}

// PullRequest represents a GitHub pull request. When decoded from JSON it keeps the
// original document so re-encoding forwards every field GitHub sent.
type PullRequest struct {
	raw       json.RawMessage
	User      Actor   `json:"user"`
	Head      Branch  `json:"head"`
	Base      Branch  `json:"base"`
	NodeID    string  `json:"node_id,omitempty"`
	Title     string  `json:"title"`
	Body      string  `json:"body,omitempty"`
	State     string  `json:"state,omitempty"`
	HTMLURL   string  `json:"html_url,omitempty"`
	Assignees []Actor `json:"assignees,omitempty"`
	Labels    []Label `json:"labels,omitempty"`
	Number    int     `json:"number"`
	Draft     bool    `json:"draft"`
}

type pullRequestFields PullRequest

// UnmarshalJSON decodes a pull request and retains the raw document.
func (pr *PullRequest) UnmarshalJSON(data []byte) error {
	var f pullRequestFields
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	*pr = PullRequest(f)
	pr.raw = append(json.RawMessage(nil), data...)
	return nil
}

// MarshalJSON returns the document the pull request was decoded from, if any.
func (pr PullRequest) MarshalJSON() ([]byte, error) {
	if len(pr.raw) > 0 {
		return pr.raw, nil
	}
	return json.Marshal(pullRequestFields(pr))
}

// HasAssignee reports whether login is among the pull request's assignees.
func (pr *PullRequest) HasAssignee(login string) bool {
	for _, a := range pr.Assignees {
		if a.Login == login {
			return true
		}
	}
	return false
}

// Comment is an issue (conversation) comment.
type Comment struct {
	User Actor  `json:"user"`
	Body string `json:"body"`
	ID   int64  `json:"id"`
}

// Review is a submitted pull request review.
type Review struct {
	User  Actor  `json:"user"`
	Body  string `json:"body"`
	State string `json:"state"`
	ID    int64  `json:"id"`
}

// ReviewComment is an inline comment attached to a review. Like PullRequest it
// re-encodes to the exact document it was decoded from.
type ReviewComment struct {
	raw      json.RawMessage
	Line     *int   `json:"line,omitempty"`
	User     Actor  `json:"user"`
	Path     string `json:"path"`
	Body     string `json:"body"`
	DiffHunk string `json:"diff_hunk,omitempty"`
	ID       int64  `json:"id"`
}

type reviewCommentFields ReviewComment

// UnmarshalJSON decodes a review comment and retains the raw document.
func (c *ReviewComment) UnmarshalJSON(data []byte) error {
	var f reviewCommentFields
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	*c = ReviewComment(f)
	c.raw = append(json.RawMessage(nil), data...)
	return nil
}

// MarshalJSON returns the document the comment was decoded from, if any.
func (c ReviewComment) MarshalJSON() ([]byte, error) {
	if len(c.raw) > 0 {
		return c.raw, nil
	}
	return json.Marshal(reviewCommentFields(c))
}

// WorkflowRun is a GitHub Actions run reported by a workflow_run event.
type WorkflowRun struct {
	Name         string `json:"name"`
	DisplayTitle string `json:"display_title"`
	Status       string `json:"status"`
	Conclusion   string `json:"conclusion,omitempty"`
	HeadBranch   string `json:"head_branch,omitempty"`
	Event        string `json:"event,omitempty"`
	ID           int64  `json:"id"`
}

// Workflow is the workflow definition a run belongs to.
type Workflow struct {
	Name string `json:"name"`
	Path string `json:"path,omitempty"`
	ID   int64  `json:"id"`
}

// Ref is a git reference.
type Ref struct {
	Ref    string `json:"ref"`
	Object struct {
		SHA  string `json:"sha"`
		Type string `json:"type"`
	} `json:"object"`
}

// Commit is a git commit object.
type Commit struct {
	SHA     string `json:"sha"`
	Message string `json:"message,omitempty"`
	Tree    struct {
		SHA string `json:"sha"`
	} `json:"tree"`
}

// DispatchPayload is the client_payload sent with a repository_dispatch event.
// Field names and order are part of the executor contract and must not change.
//
//nolint:govet // field order mirrors the wire format
type DispatchPayload struct {
	OriginalEventName    string `json:"original_event_name"`
	OriginalEventPayload any    `json:"original_event_payload"`
	GitHubAppToken       string `json:"github_app_token"`
	Branch               string `json:"branch"`
	PRNumber             int    `json:"pr_number"`
	AssigneeUser         string `json:"assignee_user"`
}
