package archive

import (
	"strings"
	"testing"

	"github.com/SamuelHanono/devin-sheriff/internal/types"
)

func resolvedIssue(number int, title string) *types.Issue {
	return &types.Issue{
		RepoID: 1,
		Number: number,
		Title:  title,
		State:  types.StateClosed,
		Status: types.StatusDone,
		Plan: &types.Plan{
			Summary:       "fixed by adjusting the session keepalive",
			FilesToChange: []string{"auth/session.go"},
			Confidence:    85,
		},
	}
}

func TestFindSimilarResolved(t *testing.T) {
	pool := []*types.Issue{
		resolvedIssue(10, "Fix login timeout bug"),
		resolvedIssue(11, "Update changelog formatting"),
	}

	matches := FindSimilarResolved("Login timeout error on mobile", pool, 0)
	if len(matches) != 1 {
		t.Fatalf("expected 1 match, got %d", len(matches))
	}
	if matches[0].Issue.Number != 10 {
		t.Errorf("expected issue #10 as match, got #%d", matches[0].Issue.Number)
	}
	if matches[0].Ratio <= SimilarityThreshold {
		t.Errorf("match ratio %.3f should exceed threshold %.1f", matches[0].Ratio, SimilarityThreshold)
	}
}

func TestFindSimilarResolvedSkipsUnresolved(t *testing.T) {
	stillOpen := resolvedIssue(20, "Fix login timeout bug")
	stillOpen.State = types.StateOpen
	stillOpen.Status = types.StatusPROpen
	stillOpen.PRURL = "https://github.com/o/r/pull/3"

	failed := resolvedIssue(21, "Fix login timeout bug")
	failed.Status = types.StatusFailed

	matches := FindSimilarResolved("Login timeout error on mobile", []*types.Issue{stillOpen, failed}, 0)
	if len(matches) != 0 {
		t.Fatalf("open or failed issues must not qualify, got %d matches", len(matches))
	}
}

func TestFindSimilarResolvedTopN(t *testing.T) {
	pool := []*types.Issue{
		resolvedIssue(1, "Fix login timeout bug"),
		resolvedIssue(2, "Login timeout on dashboard"),
		resolvedIssue(3, "Login timeout when idle"),
	}

	matches := FindSimilarResolved("Login timeout error", pool, 0)
	if len(matches) != DefaultTopN {
		t.Fatalf("expected top %d matches, got %d", DefaultTopN, len(matches))
	}
	if matches[0].Ratio < matches[1].Ratio {
		t.Error("matches must be sorted descending by ratio")
	}
}

func TestBuildContext(t *testing.T) {
	pool := []*types.Issue{resolvedIssue(10, "Fix login timeout bug")}
	matches := FindSimilarResolved("Login timeout error on mobile", pool, 0)

	ctx := BuildContext(matches)
	if !strings.Contains(ctx, "#10") {
		t.Errorf("context missing issue number: %q", ctx)
	}
	if !strings.Contains(ctx, "auth/session.go") {
		t.Errorf("context missing files list: %q", ctx)
	}
	if !strings.Contains(ctx, "solved similar issues") {
		t.Errorf("context missing preamble: %q", ctx)
	}
}

func TestBuildContextEmpty(t *testing.T) {
	if got := BuildContext(nil); got != "" {
		t.Errorf("no matches must yield empty context, got %q", got)
	}
}

func TestRatio(t *testing.T) {
	if got := Ratio("", ""); got != 1.0 {
		t.Errorf("Ratio of two empty strings = %v, want 1", got)
	}
	if got := Ratio("abc", ""); got != 0.0 {
		t.Errorf("Ratio against empty string = %v, want 0", got)
	}
	if got := Ratio("abc", "abc"); got != 1.0 {
		t.Errorf("Ratio of identical strings = %v, want 1", got)
	}
	// "abcd" vs "bcde": longest common block "bcd" -> 2*3/8
	if got := Ratio("abcd", "bcde"); got != 0.75 {
		t.Errorf("Ratio(abcd, bcde) = %v, want 0.75", got)
	}
}
