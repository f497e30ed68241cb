package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SamuelHanono/devin-sheriff/internal/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(filepath.Join(t.TempDir(), "sheriff.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func seedRepo(t *testing.T, store *Store) *types.Repo {
	t.Helper()
	repo := &types.Repo{
		Owner: "octocat",
		Name:  "hello-world",
		URL:   "https://github.com/octocat/hello-world",
	}
	require.NoError(t, store.CreateRepo(context.Background(), repo))
	return repo
}

func seedIssue(t *testing.T, store *Store, repoID int64, number int) *types.Issue {
	t.Helper()
	issue := &types.Issue{
		RepoID: repoID,
		Number: number,
		Title:  "Fix login timeout",
		Body:   "Sessions expire too early",
	}
	require.NoError(t, store.CreateIssue(context.Background(), issue))
	return issue
}

func TestRepoRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	repo := seedRepo(t, store)

	require.NotZero(t, repo.ID)
	assert.Equal(t, "main", repo.DefaultBranch)

	got, err := store.GetRepoByURL(ctx, repo.URL)
	require.NoError(t, err)
	assert.Equal(t, repo.ID, got.ID)
	assert.Equal(t, "octocat", got.Owner)

	repos, err := store.ListRepos(ctx)
	require.NoError(t, err)
	assert.Len(t, repos, 1)
}

func TestGetRepoNotFound(t *testing.T) {
	store := newTestStore(t)
	_, err := store.GetRepo(context.Background(), 999)
	assert.True(t, errors.Is(err, types.ErrNotFound))
}

func TestIssueDefaultsAndRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	repo := seedRepo(t, store)
	issue := seedIssue(t, store, repo.ID, 42)

	got, err := store.GetIssueByNumber(ctx, repo.ID, 42)
	require.NoError(t, err)
	assert.Equal(t, issue.ID, got.ID)
	assert.Equal(t, types.StateOpen, got.State)
	assert.Equal(t, types.StatusNew, got.Status)
	assert.Equal(t, types.CIUnknown, got.CIStatus)
	assert.Zero(t, got.RetryCount)
	assert.Nil(t, got.Plan)
}

func TestDuplicateIssueNumberRejected(t *testing.T) {
	store := newTestStore(t)
	repo := seedRepo(t, store)
	seedIssue(t, store, repo.ID, 42)

	dup := &types.Issue{RepoID: repo.ID, Number: 42, Title: "duplicate"}
	err := store.CreateIssue(context.Background(), dup)
	assert.Error(t, err, "(repo, number) must be unique")
}

func TestUpdateIssuePlanRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	repo := seedRepo(t, store)
	issue := seedIssue(t, store, repo.ID, 42)

	plan := &types.Plan{
		Summary:       "extend session keepalive",
		FilesToChange: []string{"auth/session.go"},
		ActionPlan:    []string{"bump timeout", "add test"},
		Confidence:    90,
		RiskTier:      types.RiskHigh,
	}
	require.NoError(t, store.UpdateIssue(ctx, issue.ID, map[string]interface{}{
		"plan":   plan,
		"status": types.StatusScoped,
	}))

	got, err := store.GetIssue(ctx, issue.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusScoped, got.Status)
	require.NotNil(t, got.Plan)
	assert.Equal(t, plan.Summary, got.Plan.Summary)
	assert.Equal(t, plan.FilesToChange, got.Plan.FilesToChange)
	assert.Equal(t, types.RiskHigh, got.Plan.RiskTier)

	// Clearing the plan stores NULL.
	require.NoError(t, store.UpdateIssue(ctx, issue.ID, map[string]interface{}{
		"plan":   (*types.Plan)(nil),
		"status": types.StatusNew,
	}))
	got, err = store.GetIssue(ctx, issue.ID)
	require.NoError(t, err)
	assert.Nil(t, got.Plan)
}

func TestUpdateIssueRejectsUnknownField(t *testing.T) {
	store := newTestStore(t)
	repo := seedRepo(t, store)
	issue := seedIssue(t, store, repo.ID, 1)

	err := store.UpdateIssue(context.Background(), issue.ID, map[string]interface{}{
		"assignee": "nobody",
	})
	assert.True(t, errors.Is(err, types.ErrValidation))
}

func TestUpdateIssueRetryCeiling(t *testing.T) {
	store := newTestStore(t)
	repo := seedRepo(t, store)
	issue := seedIssue(t, store, repo.ID, 1)

	err := store.UpdateIssue(context.Background(), issue.ID, map[string]interface{}{
		"retry_count": types.MaxHealRetries + 1,
	})
	assert.True(t, errors.Is(err, types.ErrValidation))
}

func TestClaimIssueSerialization(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	repo := seedRepo(t, store)
	issue := seedIssue(t, store, repo.ID, 1)

	require.NoError(t, store.ClaimIssue(ctx, issue.ID, "worker-a"))

	err := store.ClaimIssue(ctx, issue.ID, "worker-b")
	assert.True(t, errors.Is(err, types.ErrSessionActive), "second claim must be rejected")

	// Releasing with the wrong holder is a no-op; the claim stays.
	require.NoError(t, store.ReleaseIssue(ctx, issue.ID, "worker-b"))
	err = store.ClaimIssue(ctx, issue.ID, "worker-b")
	assert.True(t, errors.Is(err, types.ErrSessionActive))

	require.NoError(t, store.ReleaseIssue(ctx, issue.ID, "worker-a"))
	assert.NoError(t, store.ClaimIssue(ctx, issue.ID, "worker-b"))
}

func TestSessionHistory(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	repo := seedRepo(t, store)
	issue := seedIssue(t, store, repo.ID, 1)

	first := &types.Session{
		IssueID:  issue.ID,
		Type:     types.SessionScope,
		RemoteID: "devin-abc",
		Status:   "completed",
		Result:   []byte(`{"summary":"x","confidence":80}`),
	}
	require.NoError(t, store.RecordSession(ctx, first))

	second := &types.Session{
		IssueID:  issue.ID,
		Type:     types.SessionExecute,
		RemoteID: "devin-def",
		Status:   "completed",
	}
	require.NoError(t, store.RecordSession(ctx, second))

	sessions, err := store.GetSessions(ctx, issue.ID)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, types.SessionExecute, sessions[0].Type, "newest first")
	assert.Equal(t, types.SessionScope, sessions[1].Type)
	assert.JSONEq(t, `{"summary":"x","confidence":80}`, string(sessions[1].Result))
}

func TestDeleteRepoCascades(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	repo := seedRepo(t, store)
	issue := seedIssue(t, store, repo.ID, 1)
	require.NoError(t, store.RecordSession(ctx, &types.Session{
		IssueID: issue.ID,
		Type:    types.SessionScope,
	}))

	require.NoError(t, store.DeleteRepo(ctx, repo.ID))

	_, err := store.GetIssue(ctx, issue.ID)
	assert.True(t, errors.Is(err, types.ErrNotFound))

	sessions, err := store.GetSessions(ctx, issue.ID)
	require.NoError(t, err)
	assert.Empty(t, sessions)
}

func TestFactoryReset(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	repo := seedRepo(t, store)
	seedIssue(t, store, repo.ID, 1)

	require.NoError(t, store.Reset(ctx))

	repos, err := store.ListRepos(ctx)
	require.NoError(t, err)
	assert.Empty(t, repos)

	// Schema is usable again after reset.
	seedRepo(t, store)
}
