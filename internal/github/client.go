// Package github is a minimal REST client for the remote issue tracker.
// Transport and auth mechanics live here; callers treat it as an opaque
// collaborator.
package github

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"

	"github.com/SamuelHanono/devin-sheriff/internal/types"
)

// DefaultBaseURL is the GitHub REST API endpoint.
const DefaultBaseURL = "https://api.github.com"

const perPage = 100

// Client talks to the GitHub REST API with a personal access token.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the API endpoint (used by tests).
func WithBaseURL(url string) Option {
	return func(c *Client) { c.baseURL = strings.TrimSuffix(url, "/") }
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// NewClient creates a client authenticated with the given token.
func NewClient(token string, opts ...Option) *Client {
	c := &Client{
		baseURL:    DefaultBaseURL,
		token:      token,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		// Well under GitHub's secondary rate limits.
		limiter: rate.NewLimiter(rate.Limit(5), 10),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RemoteIssue is an issue as reported by the tracker.
type RemoteIssue struct {
	Number int    `json:"number"`
	Title  string `json:"title"`
	Body   string `json:"body"`
	State  string `json:"state"`
	// PullRequest is set when the "issue" is actually a pull request.
	// The list endpoint returns both; callers must see only real issues.
	PullRequest *struct {
		URL string `json:"url"`
	} `json:"pull_request,omitempty"`
}

// RepoDetails is basic repository metadata.
type RepoDetails struct {
	FullName      string `json:"full_name"`
	DefaultBranch string `json:"default_branch"`
	HTMLURL       string `json:"html_url"`
}

// PullRequest is the subset of PR fields the pipeline needs.
type PullRequest struct {
	Number  int    `json:"number"`
	State   string `json:"state"`
	Merged  bool   `json:"merged"`
	Head    PRHead `json:"head"`
	HTMLURL string `json:"html_url"`
}

// PRHead identifies the PR's head commit.
type PRHead struct {
	SHA string `json:"sha"`
}

// CommitStatus is one legacy commit-status entry.
type CommitStatus struct {
	Context     string `json:"context"`
	State       string `json:"state"` // success, failure, error, pending
	Description string `json:"description"`
	TargetURL   string `json:"target_url"`
}

// CheckRun is one check-run entry.
type CheckRun struct {
	Name       string `json:"name"`
	Status     string `json:"status"`     // queued, in_progress, completed
	Conclusion string `json:"conclusion"` // success, failure, cancelled, timed_out, ...
	DetailsURL string `json:"details_url"`
}

// VerifyAuth checks the token and returns the authenticated login.
func (c *Client) VerifyAuth(ctx context.Context) (string, error) {
	var user struct {
		Login string `json:"login"`
	}
	if err := c.do(ctx, http.MethodGet, "/user", nil, &user); err != nil {
		return "", err
	}
	return user.Login, nil
}

// GetRepo fetches repository metadata (default branch, canonical URL).
func (c *Client) GetRepo(ctx context.Context, owner, name string) (*RepoDetails, error) {
	var details RepoDetails
	path := fmt.Sprintf("/repos/%s/%s", owner, name)
	if err := c.do(ctx, http.MethodGet, path, nil, &details); err != nil {
		return nil, err
	}
	return &details, nil
}

// ListOpenIssues fetches the full current set of open issues for a repo,
// following pagination. Pull-request entries are filtered out.
func (c *Client) ListOpenIssues(ctx context.Context, owner, name string) ([]RemoteIssue, error) {
	path := fmt.Sprintf("/repos/%s/%s/issues?state=open&per_page=%d", owner, name, perPage)

	var issues []RemoteIssue
	for path != "" {
		var page []RemoteIssue
		next, err := c.doPaged(ctx, path, &page)
		if err != nil {
			return nil, err
		}
		for _, issue := range page {
			if issue.PullRequest != nil {
				continue
			}
			issues = append(issues, issue)
		}
		path = next
	}
	return issues, nil
}

// GetIssue fetches a single issue.
func (c *Client) GetIssue(ctx context.Context, owner, name string, number int) (*RemoteIssue, error) {
	var issue RemoteIssue
	path := fmt.Sprintf("/repos/%s/%s/issues/%d", owner, name, number)
	if err := c.do(ctx, http.MethodGet, path, nil, &issue); err != nil {
		return nil, err
	}
	return &issue, nil
}

// CloseIssue closes an issue on the tracker. Transient transport failures
// are retried with exponential backoff; the PATCH is idempotent.
func (c *Client) CloseIssue(ctx context.Context, owner, name string, number int) error {
	path := fmt.Sprintf("/repos/%s/%s/issues/%d", owner, name, number)
	body := map[string]string{"state": "closed"}

	operation := func() error {
		err := c.do(ctx, http.MethodPatch, path, body, nil)
		if err == nil {
			return nil
		}
		if isPermanent(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3), ctx)
	return backoff.Retry(operation, policy)
}

// CreateIssue opens a new issue on the tracker.
func (c *Client) CreateIssue(ctx context.Context, owner, name, title, body string) (*RemoteIssue, error) {
	var issue RemoteIssue
	path := fmt.Sprintf("/repos/%s/%s/issues", owner, name)
	payload := map[string]string{"title": title, "body": body}
	if err := c.do(ctx, http.MethodPost, path, payload, &issue); err != nil {
		return nil, err
	}
	return &issue, nil
}

// GetPullRequest fetches a pull request.
func (c *Client) GetPullRequest(ctx context.Context, owner, name string, number int) (*PullRequest, error) {
	var pr PullRequest
	path := fmt.Sprintf("/repos/%s/%s/pulls/%d", owner, name, number)
	if err := c.do(ctx, http.MethodGet, path, nil, &pr); err != nil {
		return nil, err
	}
	return &pr, nil
}

// GetCombinedStatus fetches legacy commit statuses for a ref.
func (c *Client) GetCombinedStatus(ctx context.Context, owner, name, ref string) ([]CommitStatus, error) {
	var combined struct {
		State    string         `json:"state"`
		Statuses []CommitStatus `json:"statuses"`
	}
	path := fmt.Sprintf("/repos/%s/%s/commits/%s/status", owner, name, ref)
	if err := c.do(ctx, http.MethodGet, path, nil, &combined); err != nil {
		return nil, err
	}
	return combined.Statuses, nil
}

// ListCheckRuns fetches check runs for a ref.
func (c *Client) ListCheckRuns(ctx context.Context, owner, name, ref string) ([]CheckRun, error) {
	var resp struct {
		CheckRuns []CheckRun `json:"check_runs"`
	}
	path := fmt.Sprintf("/repos/%s/%s/commits/%s/check-runs", owner, name, ref)
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.CheckRuns, nil
}

func isPermanent(err error) bool {
	return errors.Is(err, types.ErrPermissionDenied) || errors.Is(err, types.ErrNotFound)
}

// do executes one API round trip and classifies failures: 403 is a token
// scope problem, 404 a missing resource, anything else a transport error.
func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	_, err := c.request(ctx, method, path, body, out)
	return err
}

// doPaged is do for GET list endpoints; it returns the rel="next" path from
// the Link header, or "" when this was the last page.
func (c *Client) doPaged(ctx context.Context, path string, out interface{}) (string, error) {
	resp, err := c.request(ctx, http.MethodGet, path, nil, out)
	if err != nil {
		return "", err
	}
	return nextPath(resp.Header.Get("Link"), c.baseURL), nil
}

func (c *Client) request(ctx context.Context, method, path string, body, out interface{}) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %v", types.ErrTransport, method, path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%w: %s %s (check the token's repo scope)",
			types.ErrPermissionDenied, method, path)
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s %s", types.ErrNotFound, method, path)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: %s %s returned %d: %s",
			types.ErrTransport, method, path, resp.StatusCode, bytes.TrimSpace(detail))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return nil, fmt.Errorf("%w: failed to decode response: %v", types.ErrTransport, err)
		}
	}
	return resp, nil
}

var linkNextRegex = regexp.MustCompile(`<([^>]+)>\s*;\s*rel="next"`)

// nextPath extracts the rel="next" URL from a Link header and strips the
// base URL so it can be fed back through request.
func nextPath(linkHeader, baseURL string) string {
	m := linkNextRegex.FindStringSubmatch(linkHeader)
	if m == nil {
		return ""
	}
	return strings.TrimPrefix(m[1], baseURL)
}

var (
	repoURLRegex = regexp.MustCompile(`github\.com/([^/]+)/([^/]+)`)
	prURLRegex   = regexp.MustCompile(`/pull/(\d+)`)
)

// ParseRepoURL extracts owner and name from a github.com repository URL.
func ParseRepoURL(url string) (owner, name string, err error) {
	m := repoURLRegex.FindStringSubmatch(url)
	if m == nil {
		return "", "", fmt.Errorf("%w: invalid repo URL %q (expected https://github.com/owner/repo)",
			types.ErrValidation, url)
	}
	return m[1], strings.TrimSuffix(m[2], ".git"), nil
}

// ParsePRNumber extracts the pull request number from a PR URL.
func ParsePRNumber(url string) (int, error) {
	m := prURLRegex.FindStringSubmatch(url)
	if m == nil {
		return 0, fmt.Errorf("%w: no pull request number in %q", types.ErrValidation, url)
	}
	return strconv.Atoi(m[1])
}
