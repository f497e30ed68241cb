// Package syncer reconciles local issue records with the remote tracker's
// current open-issue set. Content fields (title, body, open state) are
// overwritten from the tracker; remediation state accumulated locally is
// never lost by a sync pass.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/SamuelHanono/devin-sheriff/internal/github"
	"github.com/SamuelHanono/devin-sheriff/internal/storage"
	"github.com/SamuelHanono/devin-sheriff/internal/types"
)

// prSyncWorkers bounds concurrent PR lookups during the secondary pass.
const prSyncWorkers = 4

// TrackerClient is the slice of the tracker API the syncer needs.
type TrackerClient interface {
	ListOpenIssues(ctx context.Context, owner, name string) ([]github.RemoteIssue, error)
	GetPullRequest(ctx context.Context, owner, name string, number int) (*github.PullRequest, error)
	CloseIssue(ctx context.Context, owner, name string, number int) error
}

// Syncer runs reconciliation passes for one store against one tracker.
type Syncer struct {
	store storage.Storage
	gh    TrackerClient
}

// New creates a syncer.
func New(store storage.Storage, gh TrackerClient) *Syncer {
	return &Syncer{store: store, gh: gh}
}

// Summary counts the mutations applied by one sync pass.
type Summary struct {
	Created int
	Updated int
	Closed  int
	Skipped int
}

func (s Summary) String() string {
	out := fmt.Sprintf("Synced: %d new, %d updated, %d closed", s.Created, s.Updated, s.Closed)
	if s.Skipped > 0 {
		out += fmt.Sprintf(" (%d skipped, transition in flight)", s.Skipped)
	}
	return out
}

// Sync makes local records reflect the tracker's open-issue set for one
// repository. Set-difference reconciliation: open remote issues absent
// locally are created as NEW; present ones get title/body overwritten, and a
// locally closed issue seen open again is reopened (DONE resets to NEW and
// the stale plan is cleared). Local open issues that dropped out of the
// remote set are closed as DONE. Idempotent under repeated application.
func (s *Syncer) Sync(ctx context.Context, repo *types.Repo) (*Summary, error) {
	remote, err := s.gh.ListOpenIssues(ctx, repo.Owner, repo.Name)
	if err != nil {
		return nil, fmt.Errorf("sync aborted for %s: %w", repo.FullName(), err)
	}
	local, err := s.store.ListIssues(ctx, repo.ID)
	if err != nil {
		return nil, fmt.Errorf("sync aborted for %s: %w", repo.FullName(), err)
	}

	localByNumber := make(map[int]*types.Issue, len(local))
	for _, issue := range local {
		localByNumber[issue.Number] = issue
	}
	remoteNumbers := make(map[int]bool, len(remote))

	var summary Summary
	for _, ri := range remote {
		remoteNumbers[ri.Number] = true

		existing, ok := localByNumber[ri.Number]
		if !ok {
			issue := &types.Issue{
				RepoID: repo.ID,
				Number: ri.Number,
				Title:  ri.Title,
				Body:   ri.Body,
				State:  types.StateOpen,
				Status: types.StatusNew,
			}
			if err := s.store.CreateIssue(ctx, issue); err != nil {
				return &summary, fmt.Errorf("sync aborted at issue #%d: %w", ri.Number, err)
			}
			summary.Created++
			continue
		}

		updates := map[string]interface{}{}
		if existing.Title != ri.Title {
			updates["title"] = ri.Title
		}
		if existing.Body != ri.Body {
			updates["body"] = ri.Body
		}
		if existing.State == types.StateClosed {
			// Reopened remotely. A DONE issue loses its resolution: back to
			// NEW with the stale plan cleared.
			updates["state"] = types.StateOpen
			if existing.Status == types.StatusDone {
				updates["status"] = types.StatusNew
				updates["plan"] = (*types.Plan)(nil)
			}
		}
		if len(updates) == 0 {
			continue
		}

		applied, err := s.applyUpdates(ctx, existing, updates)
		if err != nil {
			return &summary, fmt.Errorf("sync aborted at issue #%d: %w", ri.Number, err)
		}
		if applied {
			summary.Updated++
		} else {
			summary.Skipped++
		}
	}

	// Local open issues that vanished from the remote open set were closed
	// remotely without going through the pipeline.
	for _, issue := range local {
		if issue.State != types.StateOpen || remoteNumbers[issue.Number] {
			continue
		}
		applied, err := s.applyUpdates(ctx, issue, map[string]interface{}{
			"state":  types.StateClosed,
			"status": types.StatusDone,
		})
		if err != nil {
			return &summary, fmt.Errorf("sync aborted at issue #%d: %w", issue.Number, err)
		}
		if applied {
			summary.Closed++
		} else {
			summary.Skipped++
		}
	}

	slog.Info("sync complete", "repo", repo.FullName(),
		"new", summary.Created, "updated", summary.Updated,
		"closed", summary.Closed, "skipped", summary.Skipped)
	return &summary, nil
}

// applyUpdates writes an update set for one issue. Updates that touch state
// or status are serialized against orchestrator transitions via the issue
// claim; when the claim is held elsewhere, only the content fields are
// written and the status-bearing part of the update is skipped.
func (s *Syncer) applyUpdates(ctx context.Context, issue *types.Issue, updates map[string]interface{}) (bool, error) {
	_, hasState := updates["state"]
	_, hasStatus := updates["status"]
	if !hasState && !hasStatus {
		return true, s.store.UpdateIssue(ctx, issue.ID, updates)
	}

	holder := "sync:" + uuid.NewString()
	if err := s.store.ClaimIssue(ctx, issue.ID, holder); err != nil {
		if !errors.Is(err, types.ErrSessionActive) {
			return false, err
		}
		slog.Warn("skipping status sync, transition in flight", "issue", issue.Number)
		content := map[string]interface{}{}
		for _, key := range []string{"title", "body"} {
			if v, ok := updates[key]; ok {
				content[key] = v
			}
		}
		if len(content) > 0 {
			if err := s.store.UpdateIssue(ctx, issue.ID, content); err != nil {
				return false, err
			}
		}
		return false, nil
	}
	defer s.store.ReleaseIssue(ctx, issue.ID, holder)

	return true, s.store.UpdateIssue(ctx, issue.ID, updates)
}

// SyncPRStatuses is the secondary reconciliation pass, restricted to issues
// in PR_OPEN: each referenced PR is fetched, and a merged PR transitions its
// issue to DONE/closed, closing the remote issue best-effort. PR lookups for
// different issues run in parallel.
func (s *Syncer) SyncPRStatuses(ctx context.Context, repo *types.Repo) (int, error) {
	issues, err := s.store.ListIssuesByStatus(ctx, repo.ID, types.StatusPROpen)
	if err != nil {
		return 0, fmt.Errorf("pr sync aborted for %s: %w", repo.FullName(), err)
	}

	var merged atomic.Int64
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(prSyncWorkers)
	for _, issue := range issues {
		issue := issue
		g.Go(func() error {
			did, err := s.syncOnePR(ctx, repo, issue)
			if err != nil {
				return err
			}
			if did {
				merged.Add(1)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return int(merged.Load()), err
	}
	return int(merged.Load()), nil
}

func (s *Syncer) syncOnePR(ctx context.Context, repo *types.Repo, issue *types.Issue) (bool, error) {
	prNumber, err := github.ParsePRNumber(issue.PRURL)
	if err != nil {
		slog.Warn("skipping pr sync, unparseable pr reference",
			"issue", issue.Number, "pr_url", issue.PRURL)
		return false, nil
	}
	pr, err := s.gh.GetPullRequest(ctx, repo.Owner, repo.Name, prNumber)
	if err != nil {
		return false, fmt.Errorf("pr sync failed for issue #%d: %w", issue.Number, err)
	}
	if !pr.Merged {
		return false, nil
	}

	holder := "sync:" + uuid.NewString()
	if err := s.store.ClaimIssue(ctx, issue.ID, holder); err != nil {
		if errors.Is(err, types.ErrSessionActive) {
			slog.Warn("skipping pr sync, transition in flight", "issue", issue.Number)
			return false, nil
		}
		return false, err
	}
	defer s.store.ReleaseIssue(ctx, issue.ID, holder)

	// Closing the remote issue is best-effort: the merge already resolved
	// the work, so a failed close must not block the local transition.
	if err := s.gh.CloseIssue(ctx, repo.Owner, repo.Name, issue.Number); err != nil {
		slog.Warn("failed to close remote issue after merge",
			"issue", issue.Number, "error", err)
	}
	err = s.store.UpdateIssue(ctx, issue.ID, map[string]interface{}{
		"state":     types.StateClosed,
		"status":    types.StatusDone,
		"ci_status": types.CIPassing,
	})
	if err != nil {
		return false, fmt.Errorf("pr sync failed for issue #%d: %w", issue.Number, err)
	}
	slog.Info("pr merged, issue closed", "issue", issue.Number, "pr", prNumber)
	return true, nil
}
