package relay

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/codeGROOVE-dev/issue-pilot/pkg/github"
	"github.com/codeGROOVE-dev/issue-pilot/pkg/types"
)

// ReviewKind is how a submitted review is routed downstream.
type ReviewKind int

// Review kinds.
const (
	ConsolidatedReview ReviewKind = iota
	StandaloneCodeComment
)

const (
	reviewFeedbackHeader = "Please address the following review feedback:\n\n"
	reviewFallbackBody   = "Please review and improve this pull request."
)

func (k ReviewKind) String() string {
	if k == StandaloneCodeComment {
		return "SingleCodeComment"
	}
	return "PullRequestReviewCompleted"
}

// Classify treats a review holding exactly one inline comment and no verdict as a single
// code comment. Everything else is a consolidated review.
func Classify(commentCount int, reviewState string) ReviewKind {
	if commentCount == 1 && strings.EqualFold(reviewState, "commented") {
		return StandaloneCodeComment
	}
	return ConsolidatedReview
}

// ReviewBody returns the instruction text for a consolidated review: the review's own body
// when it has one, otherwise a bulleted list of the inline comments.
func ReviewBody(reviewBody string, comments []types.ReviewComment) string {
	if body := strings.TrimSpace(reviewBody); body != "" {
		return body
	}
	if len(comments) == 0 {
		return reviewFallbackBody
	}
	lines := make([]string, 0, len(comments))
	for _, c := range comments {
		location := c.Path
		if c.Line != nil && *c.Line != 0 {
			location = fmt.Sprintf("%s:%d", c.Path, *c.Line)
		}
		lines = append(lines, fmt.Sprintf("- %s: %s", location, strings.TrimSpace(c.Body)))
	}
	return reviewFeedbackHeader + strings.Join(lines, "\n")
}

// standaloneCommentPayload builds the synthetic pull_request_review_comment event for a
// review with a single inline comment.
func standaloneCommentPayload(ev *PullRequestReviewEvent, comment types.ReviewComment) map[string]any {
	return map[string]any{
		"action":       "created",
		"comment":      comment,
		"pull_request": ev.Payload["pull_request"],
		"repository":   ev.Payload["repository"],
		"sender":       ev.Payload["sender"],
		"installation": ev.Payload["installation"],
	}
}

// consolidatedReviewPayload copies the inbound payload, replaces review.body with body and
// attaches every inline comment under review_comments.
func consolidatedReviewPayload(ev *PullRequestReviewEvent, body string, comments []types.ReviewComment) map[string]any {
	payload := make(map[string]any, len(ev.Payload)+1)
	for k, v := range ev.Payload {
		payload[k] = v
	}

	review := make(map[string]any)
	if orig, ok := ev.Payload["review"].(map[string]any); ok {
		for k, v := range orig {
			review[k] = v
		}
	}
	review["body"] = body
	payload["review"] = review

	if comments == nil {
		comments = []types.ReviewComment{}
	}
	payload["review_comments"] = comments
	return payload
}

// reactToReviewComments acknowledges every comment concurrently. Failures are logged and
// never stop the others.
func reactToReviewComments(ctx context.Context, api github.API, owner, repo string, comments []types.ReviewComment) {
	var wg sync.WaitGroup
	for _, c := range comments {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			if err := api.CreateReviewCommentReaction(ctx, owner, repo, id, Reaction); err != nil {
				slog.WarnContext(ctx, "Comment reaction failed", "owner", owner, "repo", repo, "comment", id, "error", err)
			}
		}(c.ID)
	}
	wg.Wait()
}
