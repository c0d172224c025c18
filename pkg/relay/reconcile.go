package relay

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/codeGROOVE-dev/issue-pilot/pkg/github"
	"github.com/codeGROOVE-dev/issue-pilot/pkg/types"
)

// runTitlePattern is the back-channel the executor embeds in its run title.
var runTitlePattern = regexp.MustCompile(`PR#(\d+) - User:([\w-]+)`)

// RunContext is what a completed run's title tells us about the work it did.
type RunContext struct {
	AssigneeUser string
	PRNumber     int
}

// ParseRunTitle extracts "PR#<number> - User:<login>" from a run's display title.
func ParseRunTitle(title string) (RunContext, bool) {
	m := runTitlePattern.FindStringSubmatch(title)
	if m == nil {
		return RunContext{}, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n <= 0 {
		return RunContext{}, false
	}
	return RunContext{PRNumber: n, AssigneeUser: m[2]}, true
}

// ReconcileReport records what Reconcile changed.
type ReconcileReport struct {
	Skipped      string // reason nothing was attempted, if any
	Errors       []error
	PRNumber     int
	Assigned     bool
	TitleUpdated bool
	MarkedReady  bool
}

// Changed reports whether any mutation succeeded.
func (rep ReconcileReport) Changed() bool {
	return rep.Assigned || rep.TitleUpdated || rep.MarkedReady
}

// Reconcile brings a managed pull request to its post-run state: assigned to the user who
// asked for the work, title prefix removed, and ready for review. Each step only mutates
// when needed, so running it again on a reconciled pull request makes no writes. A failed
// step is logged and does not undo or block the others.
func (r *Relay) Reconcile(ctx context.Context, api github.API, owner, repo string, run types.WorkflowRun) (ReconcileReport, error) {
	rc, ok := ParseRunTitle(run.DisplayTitle)
	if !ok {
		slog.WarnContext(ctx, "Could not parse PR info from workflow title", "owner", owner, "repo", repo, "title", run.DisplayTitle)
		return ReconcileReport{Skipped: "unrecognized run title"}, nil
	}
	report := ReconcileReport{PRNumber: rc.PRNumber}

	pr, err := api.PullRequest(ctx, owner, repo, rc.PRNumber)
	if err != nil {
		return report, fmt.Errorf("fetching PR #%d: %w", rc.PRNumber, err)
	}

	managed, err := r.HasTriggerLabel(ctx, api, owner, repo, rc.PRNumber)
	if err != nil {
		return report, err
	}
	if !managed {
		slog.WarnContext(ctx, "PR missing target label, skipping", "owner", owner, "repo", repo, "pr", rc.PRNumber, "label", r.cfg.TargetLabel)
		report.Skipped = "target label removed"
		return report, nil
	}

	if !pr.HasAssignee(rc.AssigneeUser) {
		if err := api.AddAssignees(ctx, owner, repo, rc.PRNumber, []string{rc.AssigneeUser}); err != nil {
			slog.ErrorContext(ctx, "Failed to assign PR", "owner", owner, "repo", repo, "pr", rc.PRNumber, "user", rc.AssigneeUser, "error", err)
			report.Errors = append(report.Errors, err)
		} else {
			slog.InfoContext(ctx, "PR assigned", "owner", owner, "repo", repo, "pr", rc.PRNumber, "user", rc.AssigneeUser)
			report.Assigned = true
		}
	}

	if title, ok := strings.CutPrefix(pr.Title, r.cfg.TitlePrefix); ok {
		if err := api.UpdatePullRequestTitle(ctx, owner, repo, rc.PRNumber, title); err != nil {
			slog.ErrorContext(ctx, "Failed to update PR title", "owner", owner, "repo", repo, "pr", rc.PRNumber, "error", err)
			report.Errors = append(report.Errors, err)
		} else {
			slog.InfoContext(ctx, "PR title updated", "owner", owner, "repo", repo, "pr", rc.PRNumber, "title", title)
			report.TitleUpdated = true
		}
	}

	if pr.Draft {
		if err := api.MarkReadyForReview(ctx, pr.NodeID); err != nil {
			slog.ErrorContext(ctx, "Failed to mark PR ready for review", "owner", owner, "repo", repo, "pr", rc.PRNumber, "error", err)
			report.Errors = append(report.Errors, err)
		} else {
			slog.InfoContext(ctx, "PR marked as ready for review", "owner", owner, "repo", repo, "pr", rc.PRNumber)
			report.MarkedReady = true
		}
	}

	if report.Changed() {
		slog.InfoContext(ctx, "PR reconciled", "owner", owner, "repo", repo, "pr", rc.PRNumber, "user", rc.AssigneeUser)
	}
	return report, nil
}
