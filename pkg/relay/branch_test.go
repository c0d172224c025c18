package relay

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/codeGROOVE-dev/issue-pilot/pkg/github"
	"github.com/codeGROOVE-dev/issue-pilot/pkg/internal/testutil"
)

func TestSanitizeTitle(t *testing.T) {
	tests := []struct {
		title string
		want  string
	}{
		{"Fix Bug!! #123", "fix-bug-123"},
		{"Fix typo", "fix-typo"},
		{"  leading and trailing  ", "leading-and-trailing"},
		{"multiple   spaces\tand\ttabs", "multiple-spaces-and-tabs"},
		{"already-hyphenated--title", "already-hyphenated-title"},
		{"- dash - separated -", "dash-separated"},
		{"Ünïcödé títle", "ncd-ttle"},
		{"!!!", ""},
		{"", ""},
		{"CamelCase_and_underscores", "camelcaseandunderscores"},
	}
	for _, tt := range tests {
		t.Run(tt.title, func(t *testing.T) {
			if got := SanitizeTitle(tt.title); got != tt.want {
				t.Errorf("SanitizeTitle(%q) = %q, want %q", tt.title, got, tt.want)
			}
		})
	}
}

func TestBranchName(t *testing.T) {
	tests := []struct {
		name   string
		prefix string
		title  string
		want   string
		issue  int
		seq    int
	}{
		{name: "short title", prefix: "prefix-", issue: 7, title: "fix-typo", seq: 1, want: "prefix-7-fix-typo-1"},
		{name: "empty title", prefix: "prefix", issue: 7, title: "", seq: 1, want: "prefix7--1"},
		{
			name: "truncated", prefix: "claude/issue-", issue: 42,
			title: "add-support-for-very-long-titles", seq: 3,
			want: "claude/issue-42-add-support-fo-3",
		},
		{
			name: "truncation leaves trailing hyphen", prefix: "claude/issue-", issue: 42,
			title: "add-support-f-rest", seq: 3,
			want: "claude/issue-42-add-support-f-3",
		},
		{
			name: "no room for title", prefix: "a-very-long-branch-prefix-that/", issue: 1234,
			title: "anything", seq: 1,
			want: "a-very-long-branch-prefix-that/1234--1",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := BranchName(tt.prefix, tt.issue, tt.title, tt.seq); got != tt.want {
				t.Errorf("BranchName() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestBranchName_MaxLength(t *testing.T) {
	titles := []string{
		"",
		"Fix typo",
		"Implement the entire feature request described in the linked design document",
		strings.Repeat("a", 200),
		strings.Repeat("ab-", 40),
		"Fix Bug!! #123",
	}
	for _, title := range titles {
		for _, issue := range []int{1, 42, 9999, 123456} {
			for _, seq := range []int{1, 9, 10, 250} {
				name := BranchName("claude/issue-", issue, SanitizeTitle(title), seq)
				if len(name) > maxBranchNameLength {
					t.Errorf("BranchName(%q, %d, %d) = %q has length %d", title, issue, seq, name, len(name))
				}
				if !strings.HasSuffix(name, fmt.Sprintf("-%d", seq)) {
					t.Errorf("BranchName(%q, %d, %d) = %q lacks sequence suffix", title, issue, seq, name)
				}
			}
		}
	}
}

func TestGenerateBranchName_Sequence(t *testing.T) {
	ctx := context.Background()

	for k := 0; k < 4; k++ {
		t.Run(fmt.Sprintf("%d existing", k), func(t *testing.T) {
			client := testutil.NewMockGitHubClient()
			r := newTestRelay(t, client)
			client.AddBranch(testOwner, testRepo, "main", "base-sha")
			client.AddBranch(testOwner, testRepo, "prefix-70-unrelated-1", "base-sha")
			for i := 1; i <= k; i++ {
				client.AddBranch(testOwner, testRepo, fmt.Sprintf("prefix-7-fix-typo-%d", i), "base-sha")
			}

			got, err := r.GenerateBranchName(ctx, client, testOwner, testRepo, 7, "Fix typo")
			if err != nil {
				t.Fatalf("GenerateBranchName() error = %v", err)
			}
			want := fmt.Sprintf("prefix-7-fix-typo-%d", k+1)
			if got != want {
				t.Errorf("GenerateBranchName() = %q, want %q", got, want)
			}
		})
	}
}

func TestGenerateBranchName_ListError(t *testing.T) {
	client := testutil.NewMockGitHubClient()
	r := newTestRelay(t, client)
	boom := errors.New("boom")
	client.SetError("ListBranches", boom)

	if _, err := r.GenerateBranchName(context.Background(), client, testOwner, testRepo, 7, "Fix typo"); !errors.Is(err, boom) {
		t.Errorf("error = %v, want %v", err, boom)
	}
}

// racingClient creates a competing branch right after the relay lists branches, the way
// a concurrent redelivery would.
type racingClient struct {
	*testutil.MockGitHubClient
	competitor string
	once       sync.Once
}

func (c *racingClient) ListBranches(ctx context.Context, owner, repo string) ([]string, error) {
	branches, err := c.MockGitHubClient.ListBranches(ctx, owner, repo)
	c.once.Do(func() {
		c.AddBranch(owner, repo, c.competitor, "base-sha")
	})
	return branches, err
}

func TestCreateIssueBranch_RetriesOnConflict(t *testing.T) {
	ctx := context.Background()
	mock := testutil.NewMockGitHubClient()
	mock.AddBranch(testOwner, testRepo, "main", "base-sha")
	client := &racingClient{MockGitHubClient: mock, competitor: "prefix-7-fix-typo-1"}
	r := newTestRelay(t, mock)

	got, err := r.createIssueBranch(ctx, client, testOwner, testRepo, 7, "Fix typo", "base-sha")
	if err != nil {
		t.Fatalf("createIssueBranch() error = %v", err)
	}
	if got != "prefix-7-fix-typo-2" {
		t.Errorf("createIssueBranch() = %q, want %q", got, "prefix-7-fix-typo-2")
	}
	if n := len(mock.CallsTo("CreateRef")); n != 2 {
		t.Errorf("CreateRef calls = %d, want 2", n)
	}
}

func TestCreateIssueBranch_GivesUp(t *testing.T) {
	ctx := context.Background()
	client := testutil.NewMockGitHubClient()
	r := newTestRelay(t, client)
	client.SetError("CreateRef", &github.APIError{StatusCode: http.StatusUnprocessableEntity, Message: "Reference already exists"})

	_, err := r.createIssueBranch(ctx, client, testOwner, testRepo, 7, "Fix typo", "base-sha")
	if !github.IsReferenceExists(err) {
		t.Fatalf("error = %v, want reference exists", err)
	}
	if n := len(client.CallsTo("CreateRef")); n != maxBranchAttempts {
		t.Errorf("CreateRef calls = %d, want %d", n, maxBranchAttempts)
	}
}

func TestCreateIssueBranch_OtherErrorsNotRetried(t *testing.T) {
	ctx := context.Background()
	client := testutil.NewMockGitHubClient()
	r := newTestRelay(t, client)
	client.SetError("CreateRef", &github.APIError{StatusCode: http.StatusForbidden, Message: "Resource not accessible by integration"})

	if _, err := r.createIssueBranch(ctx, client, testOwner, testRepo, 7, "Fix typo", "base-sha"); err == nil {
		t.Fatal("expected error")
	}
	if n := len(client.CallsTo("CreateRef")); n != 1 {
		t.Errorf("CreateRef calls = %d, want 1", n)
	}
}

func TestCreateIssueBranch_SerializedByLocker(t *testing.T) {
	ctx := context.Background()
	client := testutil.NewMockGitHubClient()
	client.AddBranch(testOwner, testRepo, "main", "base-sha")
	locker := &fakeLocker{}
	r := newTestRelay(t, client, WithLocker(locker))

	var wg sync.WaitGroup
	names := make([]string, 2)
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			names[i], errs[i] = r.createIssueBranch(ctx, client, testOwner, testRepo, 7, "Fix typo", "base-sha")
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("createIssueBranch #%d error = %v", i, err)
		}
	}
	if names[0] == names[1] {
		t.Errorf("both calls produced %q", names[0])
	}
	// Serialized allocation never hits a conflict.
	if n := len(client.CallsTo("CreateRef")); n != 2 {
		t.Errorf("CreateRef calls = %d, want 2", n)
	}
	wantKey := "branch:acme/widgets#7"
	for _, k := range locker.keys {
		if k != wantKey {
			t.Errorf("lock key = %q, want %q", k, wantKey)
		}
	}
	if locker.freed != 2 {
		t.Errorf("locks released = %d, want 2", locker.freed)
	}
}

func TestCreateIssueBranch_LockError(t *testing.T) {
	client := testutil.NewMockGitHubClient()
	boom := errors.New("redis down")
	r := newTestRelay(t, client, WithLocker(&fakeLocker{err: boom}))

	if _, err := r.createIssueBranch(context.Background(), client, testOwner, testRepo, 7, "Fix typo", "base-sha"); !errors.Is(err, boom) {
		t.Errorf("error = %v, want %v", err, boom)
	}
	if n := len(client.CallsTo("CreateRef")); n != 0 {
		t.Errorf("CreateRef calls = %d, want 0", n)
	}
}
