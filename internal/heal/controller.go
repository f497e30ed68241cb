// Package heal inspects CI outcomes for an issue's PR and decides whether
// to re-invoke execution with failure context, bounded by a retry ceiling.
package heal

import (
	"context"
	"fmt"
	"strings"

	"github.com/SamuelHanono/devin-sheriff/internal/github"
	"github.com/SamuelHanono/devin-sheriff/internal/types"
)

const (
	maxNamedFailures = 5
	maxFieldLen      = 200
	maxContextLen    = 1500
)

// Failure is one named CI failure.
type Failure struct {
	Name   string
	Detail string
	URL    string
}

// CIResult is the aggregated CI outcome for a PR head commit.
type CIResult struct {
	Status   types.CIStatus
	Failures []Failure
}

// TrackerClient is the slice of the tracker API the controller needs.
type TrackerClient interface {
	GetPullRequest(ctx context.Context, owner, name string, number int) (*github.PullRequest, error)
	GetCombinedStatus(ctx context.Context, owner, name, ref string) ([]github.CommitStatus, error)
	ListCheckRuns(ctx context.Context, owner, name, ref string) ([]github.CheckRun, error)
}

// Controller drives CI inspection and bounded auto-heal.
type Controller struct {
	gh TrackerClient
}

// NewController creates a controller over the given tracker client.
func NewController(gh TrackerClient) *Controller {
	return &Controller{gh: gh}
}

// CheckCI resolves the PR's head commit and aggregates both the legacy
// commit-status API and the check-runs API into one CI result. Valid only
// for issues in PR_OPEN with a PR reference.
func (c *Controller) CheckCI(ctx context.Context, repo *types.Repo, issue *types.Issue) (*CIResult, error) {
	if issue.Status != types.StatusPROpen || issue.PRURL == "" {
		return nil, fmt.Errorf("%w: issue #%d is %s, CI checks need an open PR",
			types.ErrValidation, issue.Number, issue.Status)
	}

	prNumber, err := github.ParsePRNumber(issue.PRURL)
	if err != nil {
		return nil, err
	}
	pr, err := c.gh.GetPullRequest(ctx, repo.Owner, repo.Name, prNumber)
	if err != nil {
		return nil, err
	}

	statuses, err := c.gh.GetCombinedStatus(ctx, repo.Owner, repo.Name, pr.Head.SHA)
	if err != nil {
		return nil, err
	}
	runs, err := c.gh.ListCheckRuns(ctx, repo.Owner, repo.Name, pr.Head.SHA)
	if err != nil {
		return nil, err
	}

	result := Aggregate(statuses, runs)
	return &result, nil
}

// Aggregate folds commit statuses and check runs into one CI status. Any
// failure forces failing regardless of pending checks; no failures, no
// pending, and either a success or no checks configured yields passing.
func Aggregate(statuses []github.CommitStatus, runs []github.CheckRun) CIResult {
	var failures []Failure
	pending := false
	succeeded := false

	for _, s := range statuses {
		switch s.State {
		case "failure", "error":
			failures = append(failures, Failure{Name: s.Context, Detail: s.Description, URL: s.TargetURL})
		case "pending":
			pending = true
		case "success":
			succeeded = true
		}
	}

	for _, r := range runs {
		if r.Status != "completed" {
			pending = true
			continue
		}
		switch r.Conclusion {
		case "failure", "timed_out", "cancelled", "startup_failure":
			failures = append(failures, Failure{
				Name:   r.Name,
				Detail: "check run concluded " + r.Conclusion,
				URL:    r.DetailsURL,
			})
		case "success", "neutral", "skipped":
			succeeded = true
		}
	}

	switch {
	case len(failures) > 0:
		return CIResult{Status: types.CIFailing, Failures: failures}
	case pending:
		return CIResult{Status: types.CIPending}
	case succeeded || (len(statuses) == 0 && len(runs) == 0):
		return CIResult{Status: types.CIPassing}
	default:
		return CIResult{Status: types.CIUnknown}
	}
}

// TriggerHeal checks the retry ceiling, increments the issue's retry count
// in memory, and returns the failure context for the subsequent execute
// call. The caller persists the incremented count. The ceiling is a hard
// stop: beyond it the issue requires manual intervention.
func (c *Controller) TriggerHeal(issue *types.Issue, failures []Failure) (string, error) {
	if issue.RetryCount >= types.MaxHealRetries {
		return "", fmt.Errorf("%w: issue #%d already healed %d times",
			types.ErrMaxRetries, issue.Number, issue.RetryCount)
	}
	issue.RetryCount++
	return BuildFailureContext(failures), nil
}

// BuildFailureContext renders a bounded description of CI failures for the
// heal prompt: at most 5 named failures, each field truncated, the whole
// context capped near 1500 characters to respect prompt size limits.
func BuildFailureContext(failures []Failure) string {
	if len(failures) > maxNamedFailures {
		failures = failures[:maxNamedFailures]
	}

	var b strings.Builder
	b.WriteString("CI failures to fix:\n")
	for _, f := range failures {
		b.WriteString("- " + truncate(f.Name, maxFieldLen))
		if f.Detail != "" {
			b.WriteString(": " + truncate(f.Detail, maxFieldLen))
		}
		if f.URL != "" {
			b.WriteString(" (" + truncate(f.URL, maxFieldLen) + ")")
		}
		b.WriteString("\n")
	}

	context := b.String()
	if len(context) > maxContextLen {
		context = context[:maxContextLen]
	}
	return context
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
