package relay

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/codeGROOVE-dev/issue-pilot/pkg/github"
	"github.com/codeGROOVE-dev/issue-pilot/pkg/types"
)

// DispatchRequest describes one downstream work request.
type DispatchRequest struct {
	EventPayload any
	Owner        string
	Repo         string
	EventName    string // webhook event name the executor should act as if it received
	Token        string
	Branch       string
	AssigneeUser string // human who caused the event
	PRNumber     int
}

// Dispatch sends a single repository_dispatch event carrying the standard payload. It is
// never retried: a failure is returned and the webhook's redelivery is the only recovery.
func (r *Relay) Dispatch(ctx context.Context, api github.API, req DispatchRequest) error {
	payload := types.DispatchPayload{
		OriginalEventName:    req.EventName,
		OriginalEventPayload: req.EventPayload,
		GitHubAppToken:       req.Token,
		Branch:               req.Branch,
		PRNumber:             req.PRNumber,
		AssigneeUser:         req.AssigneeUser,
	}
	if err := api.RepositoryDispatch(ctx, req.Owner, req.Repo, r.cfg.DispatchEvent, payload); err != nil {
		return fmt.Errorf("dispatching %s for PR #%d: %w", req.EventName, req.PRNumber, err)
	}
	slog.InfoContext(ctx, "Workflow dispatched", "owner", req.Owner, "repo", req.Repo,
		"event", req.EventName, "pr", req.PRNumber, "branch", req.Branch, "assignee", req.AssigneeUser)
	return nil
}
