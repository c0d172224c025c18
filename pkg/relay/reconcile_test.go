package relay

import (
	"context"
	"errors"
	"testing"

	"github.com/codeGROOVE-dev/issue-pilot/pkg/internal/testutil"
	"github.com/codeGROOVE-dev/issue-pilot/pkg/types"
)

func TestParseRunTitle(t *testing.T) {
	tests := []struct {
		title  string
		want   RunContext
		wantOK bool
	}{
		{"Build PR#42 - User:bob", RunContext{PRNumber: 42, AssigneeUser: "bob"}, true},
		{"Claude PR#7 - User:jane-doe (retry)", RunContext{PRNumber: 7, AssigneeUser: "jane-doe"}, true},
		{"PR#42 User:bob", RunContext{}, false},
		{"PR#0 - User:bob", RunContext{}, false},
		{"nightly build", RunContext{}, false},
		{"", RunContext{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.title, func(t *testing.T) {
			got, ok := ParseRunTitle(tt.title)
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("ParseRunTitle(%q) = %+v, %v; want %+v, %v", tt.title, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

// draftPR is the state a freshly opened managed pull request is in.
func draftPR() *types.PullRequest {
	return &types.PullRequest{
		Number: 42,
		NodeID: "PR_kwDOAAAB",
		Title:  "[WIP] Add feature",
		Draft:  true,
		Head:   types.Branch{Ref: "prefix-41-add-feature-1"},
	}
}

func TestReconcile(t *testing.T) {
	ctx := context.Background()
	client := testutil.NewMockGitHubClient()
	r := newTestRelay(t, client)
	client.SetPullRequest(testOwner, testRepo, draftPR())
	client.SetLabels(testOwner, testRepo, 42, testLabel)

	report, err := r.Reconcile(ctx, client, testOwner, testRepo, types.WorkflowRun{DisplayTitle: "Build PR#42 - User:bob"})
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if !report.Assigned || !report.TitleUpdated || !report.MarkedReady {
		t.Errorf("report = %+v, want every step applied", report)
	}

	pr := client.GetPullRequest(testOwner, testRepo, 42)
	if !pr.HasAssignee("bob") {
		t.Errorf("assignees = %v, want bob", pr.Assignees)
	}
	if pr.Title != "Add feature" {
		t.Errorf("title = %q, want %q", pr.Title, "Add feature")
	}
	if pr.Draft {
		t.Error("expected PR to be ready for review")
	}
}

func TestReconcile_Idempotent(t *testing.T) {
	ctx := context.Background()
	client := testutil.NewMockGitHubClient()
	r := newTestRelay(t, client)
	client.SetPullRequest(testOwner, testRepo, draftPR())
	client.SetLabels(testOwner, testRepo, 42, testLabel)
	run := types.WorkflowRun{DisplayTitle: "Build PR#42 - User:bob"}

	if _, err := r.Reconcile(ctx, client, testOwner, testRepo, run); err != nil {
		t.Fatalf("first Reconcile() error = %v", err)
	}
	before := len(client.MutatingCalls())
	if before != 3 {
		t.Errorf("first run mutations = %d, want 3", before)
	}

	report, err := r.Reconcile(ctx, client, testOwner, testRepo, run)
	if err != nil {
		t.Fatalf("second Reconcile() error = %v", err)
	}
	if report.Changed() {
		t.Errorf("second report = %+v, want no changes", report)
	}
	if after := len(client.MutatingCalls()); after != before {
		t.Errorf("second run made %d mutating calls", after-before)
	}
}

func TestReconcile_Skips(t *testing.T) {
	ctx := context.Background()

	t.Run("unparseable title", func(t *testing.T) {
		client := testutil.NewMockGitHubClient()
		r := newTestRelay(t, client)
		report, err := r.Reconcile(ctx, client, testOwner, testRepo, types.WorkflowRun{DisplayTitle: "CI"})
		if err != nil {
			t.Fatalf("Reconcile() error = %v", err)
		}
		if report.Skipped == "" {
			t.Error("expected a skip reason")
		}
		if n := len(client.Calls()); n != 0 {
			t.Errorf("calls = %d, want 0", n)
		}
	})

	t.Run("label removed", func(t *testing.T) {
		client := testutil.NewMockGitHubClient()
		r := newTestRelay(t, client)
		client.SetPullRequest(testOwner, testRepo, draftPR())
		client.SetLabels(testOwner, testRepo, 42, "bug")

		report, err := r.Reconcile(ctx, client, testOwner, testRepo, types.WorkflowRun{DisplayTitle: "Build PR#42 - User:bob"})
		if err != nil {
			t.Fatalf("Reconcile() error = %v", err)
		}
		if report.Skipped == "" || report.Changed() {
			t.Errorf("report = %+v, want skipped", report)
		}
		if n := len(client.MutatingCalls()); n != 0 {
			t.Errorf("mutating calls = %d, want 0", n)
		}
	})

	t.Run("PR fetch fails", func(t *testing.T) {
		client := testutil.NewMockGitHubClient()
		r := newTestRelay(t, client)
		if _, err := r.Reconcile(ctx, client, testOwner, testRepo, types.WorkflowRun{DisplayTitle: "Build PR#42 - User:bob"}); err == nil {
			t.Error("expected error for missing PR")
		}
	})
}

func TestReconcile_StepFailureDoesNotBlockOthers(t *testing.T) {
	ctx := context.Background()
	client := testutil.NewMockGitHubClient()
	r := newTestRelay(t, client)
	client.SetPullRequest(testOwner, testRepo, draftPR())
	client.SetLabels(testOwner, testRepo, 42, testLabel)
	boom := errors.New("boom")
	client.SetError("UpdatePullRequestTitle", boom)

	report, err := r.Reconcile(ctx, client, testOwner, testRepo, types.WorkflowRun{DisplayTitle: "Build PR#42 - User:bob"})
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if !report.Assigned || report.TitleUpdated || !report.MarkedReady {
		t.Errorf("report = %+v, want assign and ready only", report)
	}
	if len(report.Errors) != 1 || !errors.Is(report.Errors[0], boom) {
		t.Errorf("report.Errors = %v, want [%v]", report.Errors, boom)
	}

	pr := client.GetPullRequest(testOwner, testRepo, 42)
	if pr.Title != "[WIP] Add feature" {
		t.Errorf("title = %q, want unchanged", pr.Title)
	}
	if pr.Draft {
		t.Error("expected PR to be ready for review despite title failure")
	}
}

func TestReconcile_AlreadyAssignedOnlyFixesRest(t *testing.T) {
	ctx := context.Background()
	client := testutil.NewMockGitHubClient()
	r := newTestRelay(t, client)
	pr := draftPR()
	pr.Assignees = []types.Actor{{Login: "bob"}}
	pr.Draft = false
	client.SetPullRequest(testOwner, testRepo, pr)
	client.SetLabels(testOwner, testRepo, 42, testLabel)

	report, err := r.Reconcile(ctx, client, testOwner, testRepo, types.WorkflowRun{DisplayTitle: "Build PR#42 - User:bob"})
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if report.Assigned || !report.TitleUpdated || report.MarkedReady {
		t.Errorf("report = %+v, want title only", report)
	}
	calls := client.MutatingCalls()
	if len(calls) != 1 || calls[0].Method != "UpdatePullRequestTitle" {
		t.Errorf("mutating calls = %+v, want one title update", calls)
	}
}
