package relay

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/codeGROOVE-dev/issue-pilot/pkg/github"
)

// Status is the outcome of handling an event.
type Status int

// Event outcomes.
const (
	Ignored   Status = iota // admission check failed; nothing was changed
	Triggered               // a downstream run was dispatched
	Logged                  // workflow_run events: recorded, possibly reconciled
)

func (s Status) String() string {
	switch s {
	case Triggered:
		return "triggered"
	case Logged:
		return "logged"
	default:
		return "ignored"
	}
}

// Result is returned for every handled event.
type Result struct {
	Message string
	Kind    string // review classification, set for review events that dispatched
	Status  Status
}

func ignored(msg string) Result {
	return Result{Status: Ignored, Message: msg}
}

// Handle routes ev to its handler. Admission failures are not errors.
func (r *Relay) Handle(ctx context.Context, ev Event) (Result, error) {
	switch e := ev.(type) {
	case *IssuesEvent:
		return r.handleIssues(ctx, e)
	case *IssueCommentEvent:
		return r.handleIssueComment(ctx, e)
	case *PullRequestReviewEvent:
		return r.handlePullRequestReview(ctx, e)
	case *WorkflowRunEvent:
		return r.handleWorkflowRun(ctx, e)
	case *UnsupportedEvent:
		slog.InfoContext(ctx, "Event ignored: unsupported type", "event", e.Type)
		return ignored("Event ignored"), nil
	default:
		return Result{}, fmt.Errorf("unhandled event type %T", ev)
	}
}

func (r *Relay) client(ctx context.Context, installationID int64) (github.API, error) {
	api, err := r.installations.ForInstallation(ctx, installationID)
	if err != nil {
		return nil, fmt.Errorf("authenticating installation %d: %w", installationID, err)
	}
	return api, nil
}

// handleIssues opens a draft pull request on a fresh branch when an issue gets the target
// label, then dispatches it as a newly opened pull request.
func (r *Relay) handleIssues(ctx context.Context, ev *IssuesEvent) (Result, error) {
	if ev.Action != "labeled" || ev.Label == nil || ev.Label.Name != r.cfg.TargetLabel {
		labelName := ""
		if ev.Label != nil {
			labelName = ev.Label.Name
		}
		slog.InfoContext(ctx, "Issue ignored", "action", ev.Action, "label", labelName)
		return ignored("Ignored"), nil
	}

	if IsBot(ev.Sender) {
		slog.InfoContext(ctx, "Issue ignored: labeled by bot", "sender", ev.Sender.Login)
		return ignored("Ignored bot label"), nil
	}

	owner, repo := ev.Repository.Owner.Login, ev.Repository.Name
	issue := ev.Issue
	slog.InfoContext(ctx, "Processing labeled issue", "owner", owner, "repo", repo, "issue", issue.Number)

	api, err := r.client(ctx, ev.Installation.ID)
	if err != nil {
		return Result{}, err
	}

	if err := api.CreateIssueReaction(ctx, owner, repo, issue.Number, Reaction); err != nil {
		slog.WarnContext(ctx, "Issue reaction failed", "owner", owner, "repo", repo, "issue", issue.Number, "error", err)
	}

	base := r.cfg.DefaultBranch
	baseRef, err := api.Ref(ctx, owner, repo, "heads/"+base)
	if github.IsNotFound(err) {
		return Result{}, fmt.Errorf("%w: default branch %q does not exist in %s/%s: %w", ErrBaseBranchMissing, base, owner, repo, err)
	}
	if err != nil {
		return Result{}, fmt.Errorf("resolving %s: %w", base, err)
	}
	baseSHA := baseRef.Object.SHA

	branch, err := r.createIssueBranch(ctx, api, owner, repo, issue.Number, issue.Title, baseSHA)
	if err != nil {
		return Result{}, err
	}

	// An empty commit gives the branch a diff against base so a pull request can be opened.
	baseCommit, err := api.Commit(ctx, owner, repo, baseSHA)
	if err != nil {
		return Result{}, fmt.Errorf("reading base commit: %w", err)
	}
	commit, err := api.CreateCommit(ctx, owner, repo, github.CreateCommitRequest{
		Message: fmt.Sprintf("chore: initial commit for issue #%d", issue.Number),
		Tree:    baseCommit.Tree.SHA,
		Parents: []string{baseSHA},
	})
	if err != nil {
		return Result{}, fmt.Errorf("creating initial commit: %w", err)
	}
	if _, err := api.UpdateRef(ctx, owner, repo, "heads/"+branch, commit.SHA, true); err != nil {
		return Result{}, fmt.Errorf("advancing %s: %w", branch, err)
	}

	pr, err := api.CreatePullRequest(ctx, owner, repo, github.CreatePullRequestRequest{
		Title: r.cfg.TitlePrefix + issue.Title,
		Head:  branch,
		Base:  base,
		Body:  pullRequestBody(issue.Number, issue.Body),
		Draft: true,
	})
	if err != nil {
		return Result{}, err
	}

	// Later comments and reviews on the pull request are only admitted with the label.
	if err := api.AddLabels(ctx, owner, repo, pr.Number, []string{r.cfg.TargetLabel}); err != nil {
		return Result{}, fmt.Errorf("labeling PR #%d: %w", pr.Number, err)
	}
	slog.InfoContext(ctx, "PR labeled", "owner", owner, "repo", repo, "pr", pr.Number, "label", r.cfg.TargetLabel)

	err = r.Dispatch(ctx, api, DispatchRequest{
		Owner:     owner,
		Repo:      repo,
		EventName: "pull_request",
		EventPayload: map[string]any{
			"action":       "opened",
			"number":       pr.Number,
			"pull_request": pr,
			"repository":   ev.Payload["repository"],
			"sender":       ev.Payload["sender"],
			"installation": ev.Payload["installation"],
		},
		Token:        api.Token(),
		Branch:       branch,
		PRNumber:     pr.Number,
		AssigneeUser: ev.Sender.Login,
	})
	if err != nil {
		return Result{}, err
	}
	return Result{Status: Triggered, Message: "PR created and workflow triggered!"}, nil
}

func pullRequestBody(issueNumber int, issueBody string) string {
	if issueBody == "" {
		issueBody = "No description provided."
	}
	return fmt.Sprintf("This PR is being automatically worked on by Claude to address issue #%d.\n\n**Original Issue Description:**\n\n> %s",
		issueNumber, issueBody)
}

// handleIssueComment forwards a new comment on a managed pull request.
func (r *Relay) handleIssueComment(ctx context.Context, ev *IssueCommentEvent) (Result, error) {
	if ev.Action != "created" || !ev.Issue.IsPullRequest() {
		slog.InfoContext(ctx, "Comment ignored: not a new comment on PR", "action", ev.Action)
		return ignored("Ignored: not a new comment on a PR."), nil
	}
	if IsBot(ev.Sender) {
		slog.InfoContext(ctx, "Comment ignored: from bot", "sender", ev.Sender.Login)
		return ignored("Ignored bot comment"), nil
	}

	owner, repo := ev.Repository.Owner.Login, ev.Repository.Name
	prNumber := ev.Issue.Number

	api, err := r.client(ctx, ev.Installation.ID)
	if err != nil {
		return Result{}, err
	}
	managed, err := r.HasTriggerLabel(ctx, api, owner, repo, prNumber)
	if err != nil {
		return Result{}, err
	}
	if !managed {
		slog.InfoContext(ctx, "Comment ignored: PR missing trigger label", "owner", owner, "repo", repo, "pr", prNumber)
		return ignored("Not a managed PR"), nil
	}

	slog.InfoContext(ctx, "Processing comment", "owner", owner, "repo", repo, "pr", prNumber, "comment", ev.Comment.ID)

	pr, err := api.PullRequest(ctx, owner, repo, prNumber)
	if err != nil {
		return Result{}, err
	}

	if err := api.CreateIssueCommentReaction(ctx, owner, repo, ev.Comment.ID, Reaction); err != nil {
		slog.WarnContext(ctx, "Comment reaction failed", "owner", owner, "repo", repo, "comment", ev.Comment.ID, "error", err)
	}

	err = r.Dispatch(ctx, api, DispatchRequest{
		Owner:        owner,
		Repo:         repo,
		EventName:    EventIssueComment,
		EventPayload: ev.Payload,
		Token:        api.Token(),
		Branch:       pr.Head.Ref,
		PRNumber:     prNumber,
		AssigneeUser: ev.Sender.Login,
	})
	if err != nil {
		return Result{}, err
	}
	return Result{Status: Triggered, Message: "Comment processing triggered"}, nil
}

// handlePullRequestReview forwards a submitted review on a managed pull request, either as
// a single code comment or as one consolidated review.
func (r *Relay) handlePullRequestReview(ctx context.Context, ev *PullRequestReviewEvent) (Result, error) {
	if ev.Action != "submitted" {
		slog.InfoContext(ctx, "Review ignored", "action", ev.Action)
		return ignored("Ignored action"), nil
	}
	if IsBot(ev.Sender) {
		slog.InfoContext(ctx, "Review ignored: from bot", "sender", ev.Sender.Login)
		return ignored("Ignored bot"), nil
	}

	owner, repo := ev.Repository.Owner.Login, ev.Repository.Name
	prNumber := ev.PullRequest.Number
	branch := ev.PullRequest.Head.Ref

	api, err := r.client(ctx, ev.Installation.ID)
	if err != nil {
		return Result{}, err
	}
	managed, err := r.HasTriggerLabel(ctx, api, owner, repo, prNumber)
	if err != nil {
		return Result{}, err
	}
	if !managed {
		slog.InfoContext(ctx, "Review ignored: PR missing trigger label", "owner", owner, "repo", repo, "pr", prNumber)
		return ignored("Ignored: no trigger label"), nil
	}

	comments, err := api.ReviewComments(ctx, owner, repo, prNumber, ev.Review.ID)
	if err != nil {
		return Result{}, fmt.Errorf("fetching review comments: %w", err)
	}

	kind := Classify(len(comments), ev.Review.State)
	slog.InfoContext(ctx, "Review analyzed", "owner", owner, "repo", repo, "pr", prNumber,
		"review", ev.Review.ID, "comments", len(comments), "state", ev.Review.State, "kind", kind.String())

	reactToReviewComments(ctx, api, owner, repo, comments)

	req := DispatchRequest{
		Owner:        owner,
		Repo:         repo,
		Token:        api.Token(),
		Branch:       branch,
		PRNumber:     prNumber,
		AssigneeUser: ev.Sender.Login,
	}
	var msg string
	if kind == StandaloneCodeComment {
		req.EventName = "pull_request_review_comment"
		req.EventPayload = standaloneCommentPayload(ev, comments[0])
		msg = "Single code comment processing triggered"
	} else {
		body := ReviewBody(ev.Review.Body, comments)
		req.EventName = EventPullRequestReview
		req.EventPayload = consolidatedReviewPayload(ev, body, comments)
		msg = fmt.Sprintf("Review processing triggered with %d comments", len(comments))
	}

	if err := r.Dispatch(ctx, api, req); err != nil {
		return Result{}, err
	}
	return Result{Status: Triggered, Kind: kind.String(), Message: msg}, nil
}

// handleWorkflowRun reconciles the pull request of a successfully completed run. Every
// workflow_run event is acknowledged, including ones that fail to reconcile.
func (r *Relay) handleWorkflowRun(ctx context.Context, ev *WorkflowRunEvent) (Result, error) {
	run := ev.WorkflowRun
	status := run.Conclusion
	if status == "" {
		status = run.Status
	}
	slog.InfoContext(ctx, "Workflow run event", "action", ev.Action, "workflow", ev.Workflow.Name, "status", status)

	result := Result{Status: Logged, Message: fmt.Sprintf("Workflow run event logged: %s (%s)", run.Name, ev.Action)}
	if ev.Action != "completed" || run.Conclusion != "success" {
		return result, nil
	}

	owner, repo := ev.Repository.Owner.Login, ev.Repository.Name
	api, err := r.client(ctx, ev.Installation.ID)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to reconcile PR", "owner", owner, "repo", repo, "run", run.ID, "error", err)
		return result, nil
	}
	if _, err := r.Reconcile(ctx, api, owner, repo, run); err != nil {
		slog.ErrorContext(ctx, "Failed to reconcile PR", "owner", owner, "repo", repo, "run", run.ID, "error", err)
	}
	return result, nil
}
