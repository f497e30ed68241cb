// Package orchestrator owns the issue lifecycle state machine. It sequences
// remote agent sessions, archive retrieval, risk classification, and CI
// healing, and commits the resulting status transitions. Each long-running
// transition executes on its own worker, serialized per issue by the store's
// claim primitive; a second request for a claimed issue is rejected, not
// queued.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/SamuelHanono/devin-sheriff/internal/archive"
	"github.com/SamuelHanono/devin-sheriff/internal/devin"
	"github.com/SamuelHanono/devin-sheriff/internal/github"
	"github.com/SamuelHanono/devin-sheriff/internal/heal"
	"github.com/SamuelHanono/devin-sheriff/internal/risk"
	"github.com/SamuelHanono/devin-sheriff/internal/storage"
	"github.com/SamuelHanono/devin-sheriff/internal/types"
)

// AgentClient drives remote agent sessions.
type AgentClient interface {
	CreateSession(ctx context.Context, prompt string) (*devin.Handle, error)
	Resolve(ctx context.Context, h *devin.Handle, maxWait time.Duration) (devin.Result, *devin.SessionStatus, error)
}

// TrackerClient is the slice of the tracker API the orchestrator needs:
// CI inspection plus closing issues.
type TrackerClient interface {
	GetPullRequest(ctx context.Context, owner, name string, number int) (*github.PullRequest, error)
	GetCombinedStatus(ctx context.Context, owner, name, ref string) ([]github.CommitStatus, error)
	ListCheckRuns(ctx context.Context, owner, name, ref string) ([]github.CheckRun, error)
	CloseIssue(ctx context.Context, owner, name string, number int) error
}

// Notifier receives fire-and-forget pipeline event notifications.
type Notifier interface {
	ScopeComplete(ctx context.Context, issueNumber int, title string, confidence int)
	PROpened(ctx context.Context, issueNumber int, title, prURL string)
	AutoHealTriggered(ctx context.Context, issueNumber, retryCount int)
}

// Orchestrator sequences transitions for issues in one store.
type Orchestrator struct {
	store    storage.Storage
	agent    AgentClient
	gh       TrackerClient
	healer   *heal.Controller
	notifier Notifier
}

// New creates an orchestrator. notifier may be nil.
func New(store storage.Storage, agent AgentClient, gh TrackerClient, notifier Notifier) *Orchestrator {
	return &Orchestrator{
		store:    store,
		agent:    agent,
		gh:       gh,
		healer:   heal.NewController(gh),
		notifier: notifier,
	}
}

// StartScope launches a scope session for an issue in NEW (or re-enterable
// DONE/FAILED). On success the worker writes the plan, risk tier, and status
// SCOPED. Unparseable agent output still transitions to SCOPED, with a
// placeholder plan and last_error set, so the attempt is not silently lost.
func (o *Orchestrator) StartScope(ctx context.Context, repo *types.Repo, issue *types.Issue) (*Handle, error) {
	if !issue.Status.Scopable() {
		return nil, fmt.Errorf("%w: issue #%d is %s, scope requires NEW, DONE, or FAILED",
			types.ErrValidation, issue.Number, issue.Status)
	}
	return o.startWorker(ctx, issue, types.SessionScope, func(ctx context.Context) Outcome {
		return o.runScope(ctx, repo, issue, types.SessionScope, "")
	})
}

// StartRescope launches a refinement session for a SCOPED issue. The notes
// are required free text; the replacement plan keeps status at SCOPED.
func (o *Orchestrator) StartRescope(ctx context.Context, repo *types.Repo, issue *types.Issue, notes string) (*Handle, error) {
	if strings.TrimSpace(notes) == "" {
		return nil, fmt.Errorf("%w: rescope requires refinement notes", types.ErrValidation)
	}
	if issue.Status != types.StatusScoped || issue.Plan == nil {
		return nil, fmt.Errorf("%w: issue #%d is %s, rescope requires SCOPED",
			types.ErrValidation, issue.Number, issue.Status)
	}
	return o.startWorker(ctx, issue, types.SessionRescope, func(ctx context.Context) Outcome {
		return o.runScope(ctx, repo, issue, types.SessionRescope, notes)
	})
}

// StartExecute launches an execute session for a SCOPED issue. planOverride,
// when non-nil, is a session-local edit of the stored plan and is never
// persisted. The issue is EXECUTING while the worker runs; success advances
// to PR_OPEN, failure restores SCOPED with the plan intact.
func (o *Orchestrator) StartExecute(ctx context.Context, repo *types.Repo, issue *types.Issue, planOverride *types.Plan) (*Handle, error) {
	if issue.Status != types.StatusScoped {
		return nil, fmt.Errorf("%w: issue #%d is %s, execute requires SCOPED",
			types.ErrValidation, issue.Number, issue.Status)
	}
	plan := planOverride
	if plan == nil {
		plan = issue.Plan
	}
	if plan == nil {
		return nil, fmt.Errorf("%w: issue #%d has no plan", types.ErrValidation, issue.Number)
	}
	if err := plan.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrValidation, err)
	}

	return o.startWorker(ctx, issue, types.SessionExecute, func(ctx context.Context) Outcome {
		if err := o.store.UpdateIssue(ctx, issue.ID, map[string]interface{}{
			"status": types.StatusExecuting,
		}); err != nil {
			return Outcome{Err: err}
		}
		outcome := o.runExecute(ctx, repo, issue, plan, "")
		if outcome.Err != nil {
			// The attempt is retryable without losing the plan.
			if err := o.store.UpdateIssue(ctx, issue.ID, map[string]interface{}{
				"status":     types.StatusScoped,
				"last_error": outcome.Err.Error(),
			}); err != nil {
				slog.Error("failed to restore status after execute failure",
					"issue", issue.Number, "error", err)
			}
		}
		return outcome
	})
}

// StartTribunal launches an advisory review of the issue's plan. The verdict
// is returned through the handle; issue state is never altered.
func (o *Orchestrator) StartTribunal(ctx context.Context, repo *types.Repo, issue *types.Issue) (*Handle, error) {
	if issue.Plan == nil {
		return nil, fmt.Errorf("%w: issue #%d has no plan to review", types.ErrValidation, issue.Number)
	}
	return o.startWorker(ctx, issue, types.SessionTribunal, func(ctx context.Context) Outcome {
		prompt := devin.BuildTribunalPrompt(repo, issue, issue.Plan)
		result, err := o.invokeAgent(ctx, issue, types.SessionTribunal, prompt)
		if err != nil {
			return Outcome{Err: err}
		}
		if result.Failed() {
			return Outcome{Err: fmt.Errorf("%w: tribunal output unusable: %s",
				types.ErrRemoteExecution, result.ErrorMessage())}
		}
		return Outcome{Issue: issue, Review: result}
	})
}

// Heal checks CI for a PR_OPEN issue and, when it is failing and the retry
// ceiling allows, launches an auto-heal execute pass with the failure
// context. The 4th attempt is rejected with ErrMaxRetries.
func (o *Orchestrator) Heal(ctx context.Context, repo *types.Repo, issue *types.Issue) (*Handle, error) {
	holder, err := o.claim(ctx, issue)
	if err != nil {
		return nil, err
	}

	ci, err := o.healer.CheckCI(ctx, repo, issue)
	if err != nil {
		o.release(ctx, issue, holder)
		return nil, err
	}
	if ci.Status != types.CIFailing {
		o.release(ctx, issue, holder)
		return nil, fmt.Errorf("%w: issue #%d CI is %s, heal requires failing",
			types.ErrValidation, issue.Number, ci.Status)
	}

	failureContext, err := o.healer.TriggerHeal(issue, ci.Failures)
	if err != nil {
		o.release(ctx, issue, holder)
		return nil, err
	}
	err = o.store.UpdateIssue(ctx, issue.ID, map[string]interface{}{
		"status":      types.StatusExecuting,
		"ci_status":   types.CIFailing,
		"retry_count": issue.RetryCount,
	})
	if err != nil {
		o.release(ctx, issue, holder)
		return nil, err
	}
	if o.notifier != nil {
		o.notifier.AutoHealTriggered(ctx, issue.Number, issue.RetryCount)
	}

	h := newHandle(issue.Number, types.SessionExecute)
	go func() {
		outcome := o.runExecute(ctx, repo, issue, issue.Plan, failureContext)
		if outcome.Err != nil {
			// A failed heal pass is terminal for the automatic path.
			if err := o.store.UpdateIssue(ctx, issue.ID, map[string]interface{}{
				"status":     types.StatusFailed,
				"last_error": outcome.Err.Error(),
			}); err != nil {
				slog.Error("failed to mark issue failed after heal",
					"issue", issue.Number, "error", err)
			}
		}
		o.release(context.Background(), issue, holder)
		h.resolve(outcome)
	}()
	return h, nil
}

// CheckCI aggregates CI for a PR_OPEN issue and persists the result.
func (o *Orchestrator) CheckCI(ctx context.Context, repo *types.Repo, issue *types.Issue) (*heal.CIResult, error) {
	holder, err := o.claim(ctx, issue)
	if err != nil {
		return nil, err
	}
	defer o.release(ctx, issue, holder)

	ci, err := o.healer.CheckCI(ctx, repo, issue)
	if err != nil {
		return nil, err
	}
	err = o.store.UpdateIssue(ctx, issue.ID, map[string]interface{}{
		"ci_status": ci.Status,
	})
	if err != nil {
		return nil, err
	}
	return ci, nil
}

// Discard throws away a SCOPED issue's plan and returns it to NEW.
func (o *Orchestrator) Discard(ctx context.Context, issue *types.Issue) (*types.Issue, error) {
	if issue.Status != types.StatusScoped {
		return nil, fmt.Errorf("%w: issue #%d is %s, discard requires SCOPED",
			types.ErrValidation, issue.Number, issue.Status)
	}
	holder, err := o.claim(ctx, issue)
	if err != nil {
		return nil, err
	}
	defer o.release(ctx, issue, holder)

	err = o.store.UpdateIssue(ctx, issue.ID, map[string]interface{}{
		"status":     types.StatusNew,
		"plan":       (*types.Plan)(nil),
		"last_error": "",
	})
	if err != nil {
		return nil, err
	}
	return o.store.GetIssue(ctx, issue.ID)
}

// Reset returns an issue to NEW from any status, clearing plan, PR, and CI
// state. retry_count is deliberately preserved: the heal ceiling counts
// attempts per issue, not per plan.
func (o *Orchestrator) Reset(ctx context.Context, issue *types.Issue) (*types.Issue, error) {
	holder, err := o.claim(ctx, issue)
	if err != nil {
		return nil, err
	}
	defer o.release(ctx, issue, holder)

	err = o.store.UpdateIssue(ctx, issue.ID, map[string]interface{}{
		"status":     types.StatusNew,
		"plan":       (*types.Plan)(nil),
		"pr_url":     "",
		"ci_status":  types.CIUnknown,
		"last_error": "",
	})
	if err != nil {
		return nil, err
	}
	return o.store.GetIssue(ctx, issue.ID)
}

// Close marks an issue DONE from any status. With closeRemote, the remote
// issue is closed first; a tracker failure there aborts the transition.
func (o *Orchestrator) Close(ctx context.Context, repo *types.Repo, issue *types.Issue, closeRemote bool) (*types.Issue, error) {
	holder, err := o.claim(ctx, issue)
	if err != nil {
		return nil, err
	}
	defer o.release(ctx, issue, holder)

	if closeRemote && issue.State == types.StateOpen {
		if err := o.gh.CloseIssue(ctx, repo.Owner, repo.Name, issue.Number); err != nil {
			return nil, err
		}
	}
	err = o.store.UpdateIssue(ctx, issue.ID, map[string]interface{}{
		"status": types.StatusDone,
		"state":  types.StateClosed,
	})
	if err != nil {
		return nil, err
	}
	return o.store.GetIssue(ctx, issue.ID)
}

// startWorker claims the issue, spawns the transition worker, and returns
// its handle. Claim rejection (ErrSessionActive) is synchronous.
func (o *Orchestrator) startWorker(ctx context.Context, issue *types.Issue, kind types.SessionType, run func(context.Context) Outcome) (*Handle, error) {
	holder, err := o.claim(ctx, issue)
	if err != nil {
		return nil, err
	}
	h := newHandle(issue.Number, kind)
	go func() {
		outcome := run(ctx)
		// Release before resolving: a caller chaining transitions off Done
		// must never see its own finished worker's claim.
		o.release(context.Background(), issue, holder)
		h.resolve(outcome)
	}()
	return h, nil
}

func (o *Orchestrator) claim(ctx context.Context, issue *types.Issue) (string, error) {
	holder := "orch:" + uuid.NewString()
	if err := o.store.ClaimIssue(ctx, issue.ID, holder); err != nil {
		return "", err
	}
	return holder, nil
}

func (o *Orchestrator) release(ctx context.Context, issue *types.Issue, holder string) {
	if err := o.store.ReleaseIssue(ctx, issue.ID, holder); err != nil {
		slog.Error("failed to release issue claim", "issue", issue.Number, "error", err)
	}
}

// runScope drives a scope or rescope session and commits the plan.
func (o *Orchestrator) runScope(ctx context.Context, repo *types.Repo, issue *types.Issue, kind types.SessionType, notes string) Outcome {
	var prompt string
	if kind == types.SessionRescope {
		prompt = devin.BuildRescopePrompt(repo, issue, issue.Plan, notes)
	} else {
		prompt = devin.BuildScopePrompt(repo, issue, o.archiveContext(ctx, repo, issue))
	}

	result, err := o.invokeAgent(ctx, issue, kind, prompt)
	if err != nil {
		return Outcome{Err: err}
	}

	lastError := ""
	var plan *types.Plan
	if result.Failed() {
		lastError = result.ErrorMessage()
	} else if plan, err = result.ToPlan(); err != nil {
		lastError = err.Error()
		plan = nil
	}
	if plan == nil {
		if kind == types.SessionRescope {
			// The approved plan stays; only the failed refinement is recorded.
			if err := o.store.UpdateIssue(ctx, issue.ID, map[string]interface{}{
				"last_error": lastError,
			}); err != nil {
				return Outcome{Err: err}
			}
			updated, err := o.store.GetIssue(ctx, issue.ID)
			return Outcome{Issue: updated, Err: err}
		}
		// Plan present but erroneous: the operator sees the failure on the
		// issue instead of losing the attempt.
		plan = &types.Plan{Summary: "scope output could not be parsed, re-run scope", Confidence: 0}
	}
	plan.RiskTier, plan.RiskRationale = risk.Classify(plan.FilesToChange)

	err = o.store.UpdateIssue(ctx, issue.ID, map[string]interface{}{
		"status":     types.StatusScoped,
		"plan":       plan,
		"last_error": lastError,
	})
	if err != nil {
		return Outcome{Err: err}
	}

	if o.notifier != nil && lastError == "" {
		o.notifier.ScopeComplete(ctx, issue.Number, issue.Title, plan.Confidence)
	}
	updated, err := o.store.GetIssue(ctx, issue.ID)
	return Outcome{Issue: updated, Err: err}
}

// runExecute drives one execute session (normal or heal) and commits
// PR_OPEN on success. Failure handling is the caller's: the normal path
// restores SCOPED, the heal path marks FAILED.
func (o *Orchestrator) runExecute(ctx context.Context, repo *types.Repo, issue *types.Issue, plan *types.Plan, ciFailureContext string) Outcome {
	prompt := devin.BuildExecutePrompt(repo, issue, plan, ciFailureContext)
	result, err := o.invokeAgent(ctx, issue, types.SessionExecute, prompt)
	if err != nil {
		return Outcome{Err: err}
	}
	if result.Failed() {
		return Outcome{Err: fmt.Errorf("%w: execute output unusable: %s",
			types.ErrRemoteExecution, result.ErrorMessage())}
	}
	prURL := result.PRURL()
	if prURL == "" {
		return Outcome{Err: fmt.Errorf("%w: execute result has no pull request reference",
			types.ErrRemoteExecution)}
	}

	err = o.store.UpdateIssue(ctx, issue.ID, map[string]interface{}{
		"status":     types.StatusPROpen,
		"pr_url":     prURL,
		"ci_status":  types.CIPending,
		"last_error": "",
	})
	if err != nil {
		return Outcome{Err: err}
	}

	if o.notifier != nil {
		o.notifier.PROpened(ctx, issue.Number, issue.Title, prURL)
	}
	updated, err := o.store.GetIssue(ctx, issue.ID)
	return Outcome{Issue: updated, Err: err}
}

// invokeAgent runs one full remote session and records the audit trail.
// Only parse failures come back as a result; everything else is an error
// that leaves issue state untouched.
func (o *Orchestrator) invokeAgent(ctx context.Context, issue *types.Issue, kind types.SessionType, prompt string) (devin.Result, error) {
	handle, err := o.agent.CreateSession(ctx, prompt)
	if err != nil {
		return nil, err
	}
	slog.Info("session started", "issue", issue.Number, "type", kind, "session_id", handle.SessionID)

	result, status, err := o.agent.Resolve(ctx, handle, devin.MaxWaitFor(kind))
	o.recordSession(ctx, issue.ID, kind, handle.SessionID, status, result)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// recordSession appends a best-effort audit record. The issue's own fields
// remain the source of truth; a failed write here is only logged.
func (o *Orchestrator) recordSession(ctx context.Context, issueID int64, kind types.SessionType, remoteID string, status *devin.SessionStatus, result devin.Result) {
	statusText := "error"
	if status != nil {
		statusText = status.StatusEnum
	}
	var resultJSON json.RawMessage
	if result != nil {
		if data, err := json.Marshal(result); err == nil {
			resultJSON = data
		}
	}
	session := &types.Session{
		IssueID:  issueID,
		Type:     kind,
		RemoteID: remoteID,
		Status:   statusText,
		Result:   resultJSON,
	}
	if err := o.store.RecordSession(ctx, session); err != nil {
		slog.Warn("failed to record session", "issue_id", issueID, "error", err)
	}
}

// archiveContext retrieves precedent from the repo's resolved issues. Any
// storage failure just means scoping proceeds without historical context.
func (o *Orchestrator) archiveContext(ctx context.Context, repo *types.Repo, issue *types.Issue) string {
	pool, err := o.store.ListIssues(ctx, repo.ID)
	if err != nil {
		slog.Warn("could not load archive pool", "repo", repo.FullName(), "error", err)
		return ""
	}
	candidates := pool[:0]
	for _, candidate := range pool {
		if candidate.ID != issue.ID {
			candidates = append(candidates, candidate)
		}
	}
	return archive.BuildContext(archive.FindSimilarResolved(issue.Title, candidates, archive.DefaultTopN))
}
