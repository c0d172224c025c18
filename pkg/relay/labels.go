package relay

import (
	"context"
	"fmt"

	"github.com/codeGROOVE-dev/issue-pilot/pkg/github"
)

// HasTriggerLabel reports whether the issue or pull request currently carries the target
// label. Labels are always fetched fresh; a failed fetch is an error, never a default.
func (r *Relay) HasTriggerLabel(ctx context.Context, api github.API, owner, repo string, number int) (bool, error) {
	labels, err := api.IssueLabels(ctx, owner, repo, number)
	if err != nil {
		return false, fmt.Errorf("checking trigger label: %w", err)
	}
	for _, l := range labels {
		if l.Name == r.cfg.TargetLabel {
			return true, nil
		}
	}
	return false, nil
}
