package github

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SamuelHanono/devin-sheriff/internal/types"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient("test-token", WithBaseURL(server.URL))
}

func TestVerifyAuth(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		assert.Equal(t, "2022-11-28", r.Header.Get("X-GitHub-Api-Version"))
		json.NewEncoder(w).Encode(map[string]string{"login": "octocat"})
	}))

	login, err := client.VerifyAuth(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "octocat", login)
}

func TestListOpenIssuesFiltersPullRequests(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[
			{"number": 1, "title": "real issue", "state": "open"},
			{"number": 2, "title": "a PR", "state": "open", "pull_request": {"url": "x"}},
			{"number": 3, "title": "another issue", "state": "open"}
		]`)
	}))

	issues, err := client.ListOpenIssues(context.Background(), "o", "r")
	require.NoError(t, err)
	require.Len(t, issues, 2)
	assert.Equal(t, 1, issues[0].Number)
	assert.Equal(t, 3, issues[1].Number)
}

func TestListOpenIssuesPagination(t *testing.T) {
	var server *httptest.Server
	mux := http.NewServeMux()
	page := 0
	mux.HandleFunc("/repos/o/r/issues", func(w http.ResponseWriter, r *http.Request) {
		page++
		if page == 1 {
			w.Header().Set("Link", fmt.Sprintf(`<%s/repos/o/r/issues?state=open&page=2>; rel="next"`, server.URL))
			fmt.Fprint(w, `[{"number": 1, "title": "first", "state": "open"}]`)
			return
		}
		fmt.Fprint(w, `[{"number": 2, "title": "second", "state": "open"}]`)
	})
	server = httptest.NewServer(mux)
	defer server.Close()

	client := NewClient("test-token", WithBaseURL(server.URL))
	issues, err := client.ListOpenIssues(context.Background(), "o", "r")
	require.NoError(t, err)
	require.Len(t, issues, 2)
	assert.Equal(t, 2, page, "both pages must be fetched")
}

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		name   string
		code   int
		target error
	}{
		{"forbidden is permission denied", http.StatusForbidden, types.ErrPermissionDenied},
		{"missing is not found", http.StatusNotFound, types.ErrNotFound},
		{"server error is transport", http.StatusBadGateway, types.ErrTransport},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "denied", tt.code)
			}))
			_, err := client.GetIssue(context.Background(), "o", "r", 1)
			assert.True(t, errors.Is(err, tt.target), "got %v", err)
		})
	}
}

func TestCloseIssueRetriesTransient(t *testing.T) {
	attempts := 0
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			http.Error(w, "flaky", http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, `{}`)
	}))

	err := client.CloseIssue(context.Background(), "o", "r", 7)
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestCloseIssueDoesNotRetryPermissionDenied(t *testing.T) {
	attempts := 0
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		http.Error(w, "denied", http.StatusForbidden)
	}))

	err := client.CloseIssue(context.Background(), "o", "r", 7)
	assert.True(t, errors.Is(err, types.ErrPermissionDenied))
	assert.Equal(t, 1, attempts, "permission errors are permanent")
}

func TestGetPullRequest(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"number": 5, "state": "closed", "merged": true, "head": {"sha": "abc123"}, "html_url": "https://github.com/o/r/pull/5"}`)
	}))

	pr, err := client.GetPullRequest(context.Background(), "o", "r", 5)
	require.NoError(t, err)
	assert.True(t, pr.Merged)
	assert.Equal(t, "abc123", pr.Head.SHA)
}

func TestParseRepoURL(t *testing.T) {
	owner, name, err := ParseRepoURL("https://github.com/octocat/hello-world")
	require.NoError(t, err)
	assert.Equal(t, "octocat", owner)
	assert.Equal(t, "hello-world", name)

	owner, name, err = ParseRepoURL("https://github.com/octocat/hello-world.git")
	require.NoError(t, err)
	assert.Equal(t, "hello-world", name)
	_ = owner

	_, _, err = ParseRepoURL("https://example.com/not/github")
	assert.True(t, errors.Is(err, types.ErrValidation))
}

func TestParsePRNumber(t *testing.T) {
	n, err := ParsePRNumber("https://github.com/o/r/pull/123")
	require.NoError(t, err)
	assert.Equal(t, 123, n)

	_, err = ParsePRNumber("https://github.com/o/r/issues/123")
	assert.True(t, errors.Is(err, types.ErrValidation))
}
