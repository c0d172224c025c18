package relay

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/codeGROOVE-dev/issue-pilot/pkg/types"
)

// Webhook event names handled by the relay.
const (
	EventIssues            = "issues"
	EventIssueComment      = "issue_comment"
	EventPullRequestReview = "pull_request_review"
	EventWorkflowRun       = "workflow_run"
)

// ErrMalformedPayload is returned by ParseEvent for bodies that are not a JSON object.
var ErrMalformedPayload = errors.New("malformed webhook payload")

// Event is one of the webhook events the relay understands. The set is closed: Handle
// switches over every implementation.
type Event interface {
	// Name returns the X-GitHub-Event value the event arrived with.
	Name() string
	sealed()
}

// envelope holds the fields common to every webhook payload.
type envelope struct {
	Repository   types.Repository   `json:"repository"`
	Sender       types.Actor        `json:"sender"`
	Action       string             `json:"action"`
	Installation types.Installation `json:"installation"`
}

// IssuesEvent is an "issues" webhook.
type IssuesEvent struct {
	Payload map[string]any `json:"-"` // raw inbound payload, forwarded downstream
	Label   *types.Label   `json:"label"`
	Issue   types.Issue    `json:"issue"`
	envelope
}

// IssueCommentEvent is an "issue_comment" webhook.
type IssueCommentEvent struct {
	Payload map[string]any `json:"-"`
	Comment types.Comment  `json:"comment"`
	Issue   types.Issue    `json:"issue"`
	envelope
}

// PullRequestReviewEvent is a "pull_request_review" webhook.
type PullRequestReviewEvent struct {
	Payload     map[string]any    `json:"-"`
	Review      types.Review      `json:"review"`
	PullRequest types.PullRequest `json:"pull_request"`
	envelope
}

// WorkflowRunEvent is a "workflow_run" webhook.
type WorkflowRunEvent struct {
	Payload     map[string]any    `json:"-"`
	Workflow    types.Workflow    `json:"workflow"`
	WorkflowRun types.WorkflowRun `json:"workflow_run"`
	envelope
}

// UnsupportedEvent is any other webhook, including "ping".
type UnsupportedEvent struct {
	Type string
}

// Name implements Event.
func (*IssuesEvent) Name() string { return EventIssues }

// Name implements Event.
func (*IssueCommentEvent) Name() string { return EventIssueComment }

// Name implements Event.
func (*PullRequestReviewEvent) Name() string { return EventPullRequestReview }

// Name implements Event.
func (*WorkflowRunEvent) Name() string { return EventWorkflowRun }

// Name implements Event.
func (e *UnsupportedEvent) Name() string { return e.Type }

func (*IssuesEvent) sealed()            {}
func (*IssueCommentEvent) sealed()      {}
func (*PullRequestReviewEvent) sealed() {}
func (*WorkflowRunEvent) sealed()       {}
func (*UnsupportedEvent) sealed()       {}

// ParseEvent decodes a webhook body according to its X-GitHub-Event type.
func ParseEvent(eventType string, body []byte) (Event, error) {
	raw, err := decodeObject(body)
	if err != nil {
		return nil, err
	}

	var ev Event
	var target any
	switch eventType {
	case EventIssues:
		e := &IssuesEvent{Payload: raw}
		ev, target = e, e
	case EventIssueComment:
		e := &IssueCommentEvent{Payload: raw}
		ev, target = e, e
	case EventPullRequestReview:
		e := &PullRequestReviewEvent{Payload: raw}
		ev, target = e, e
	case EventWorkflowRun:
		e := &WorkflowRunEvent{Payload: raw}
		ev, target = e, e
	default:
		return &UnsupportedEvent{Type: eventType}, nil
	}

	if err := json.Unmarshal(body, target); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrMalformedPayload, eventType, err)
	}
	return ev, nil
}

// decodeObject decodes body into a generic map, keeping numbers exact so the payload
// re-encodes unchanged.
func decodeObject(body []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}
	if raw == nil {
		return nil, fmt.Errorf("%w: not a JSON object", ErrMalformedPayload)
	}
	return raw, nil
}
