package relay

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/codeGROOVE-dev/issue-pilot/pkg/github"
)

var (
	titleDisallowed = regexp.MustCompile(`[^a-z0-9\s-]`)
	whitespaceRun   = regexp.MustCompile(`\s+`)
	hyphenRun       = regexp.MustCompile(`-+`)
)

// SanitizeTitle reduces an issue title to lowercase alphanumerics separated by single hyphens.
func SanitizeTitle(title string) string {
	s := strings.ToLower(title)
	s = titleDisallowed.ReplaceAllString(s, "")
	s = whitespaceRun.ReplaceAllString(s, "-")
	s = hyphenRun.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

// BranchName composes prefix + issue + "-" + title + "-" + seq, truncating the sanitized
// title so the whole name fits in 32 characters. The result only exceeds the limit when the
// prefix, issue number and sequence alone are longer than that.
func BranchName(prefix string, issueNumber int, sanitizedTitle string, seq int) string {
	base := prefix + strconv.Itoa(issueNumber) + "-"
	suffix := "-" + strconv.Itoa(seq)

	maxTitle := maxBranchNameLength - len(base) - len(suffix)
	title := sanitizedTitle
	if maxTitle <= 0 {
		title = ""
	} else if len(title) > maxTitle {
		title = strings.TrimSuffix(title[:maxTitle], "-")
	}
	return base + title + suffix
}

// issueBranchPrefix is the prefix shared by every branch generated for an issue.
func (r *Relay) issueBranchPrefix(issueNumber int) string {
	return r.cfg.BranchPrefix + strconv.Itoa(issueNumber) + "-"
}

// nextBranchSequence counts the existing branches of an issue and returns count+1.
func (r *Relay) nextBranchSequence(ctx context.Context, api github.API, owner, repo string, issueNumber int) (int, error) {
	branches, err := api.ListBranches(ctx, owner, repo)
	if err != nil {
		return 0, fmt.Errorf("listing branches: %w", err)
	}
	prefix := r.issueBranchPrefix(issueNumber)
	existing := 0
	for _, b := range branches {
		if strings.HasPrefix(b, prefix) {
			existing++
		}
	}
	return existing + 1, nil
}

// GenerateBranchName returns the next branch name for an issue given the branches that
// currently exist. Two concurrent callers may compute the same name; createIssueBranch
// resolves that.
func (r *Relay) GenerateBranchName(ctx context.Context, api github.API, owner, repo string, issueNumber int, issueTitle string) (string, error) {
	seq, err := r.nextBranchSequence(ctx, api, owner, repo, issueNumber)
	if err != nil {
		return "", err
	}
	return BranchName(r.cfg.BranchPrefix, issueNumber, SanitizeTitle(issueTitle), seq), nil
}

// createIssueBranch allocates a branch name for an issue and creates it at sha. A name
// taken between listing and creation bumps the sequence number, up to maxBranchAttempts.
// With a Locker configured, allocation is serialized per issue.
func (r *Relay) createIssueBranch(ctx context.Context, api github.API, owner, repo string, issueNumber int, issueTitle, sha string) (string, error) {
	if r.locker != nil {
		key := fmt.Sprintf("branch:%s/%s#%d", owner, repo, issueNumber)
		unlock, err := r.locker.Lock(ctx, key, branchLockTTL)
		if err != nil {
			return "", fmt.Errorf("locking branch allocation: %w", err)
		}
		defer func() {
			if err := unlock(context.WithoutCancel(ctx)); err != nil {
				slog.WarnContext(ctx, "Failed to release branch lock", "key", key, "error", err)
			}
		}()
	}

	seq, err := r.nextBranchSequence(ctx, api, owner, repo, issueNumber)
	if err != nil {
		return "", err
	}
	sanitized := SanitizeTitle(issueTitle)

	for attempt := 1; ; attempt++ {
		name := BranchName(r.cfg.BranchPrefix, issueNumber, sanitized, seq)
		_, err := api.CreateRef(ctx, owner, repo, "refs/heads/"+name, sha)
		if err == nil {
			slog.InfoContext(ctx, "Branch created", "owner", owner, "repo", repo, "issue", issueNumber, "branch", name)
			return name, nil
		}
		if !github.IsReferenceExists(err) || attempt >= maxBranchAttempts {
			return "", fmt.Errorf("creating branch %s: %w", name, err)
		}
		slog.WarnContext(ctx, "Branch already exists, trying next sequence number",
			"owner", owner, "repo", repo, "issue", issueNumber, "branch", name, "attempt", attempt)
		seq++
	}
}
