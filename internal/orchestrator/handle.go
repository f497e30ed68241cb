package orchestrator

import (
	"context"

	"github.com/SamuelHanono/devin-sheriff/internal/devin"
	"github.com/SamuelHanono/devin-sheriff/internal/types"
)

// Outcome is the terminal result of one transition worker.
type Outcome struct {
	// Issue is the post-transition issue, freshly read from the store.
	// Nil when the transition failed before any state change.
	Issue *types.Issue
	// Review carries the advisory verdict for tribunal sessions.
	Review devin.Result
	Err    error
}

// Handle is a pollable reference to one in-flight transition. The worker
// resolves it exactly once; callers await Done or poll without sharing any
// mutable state with the worker.
type Handle struct {
	IssueNumber int
	Kind        types.SessionType

	done    chan struct{}
	outcome Outcome
}

func newHandle(issueNumber int, kind types.SessionType) *Handle {
	return &Handle{IssueNumber: issueNumber, Kind: kind, done: make(chan struct{})}
}

// resolve publishes the outcome. Must be called exactly once, by the worker.
func (h *Handle) resolve(o Outcome) {
	h.outcome = o
	close(h.done)
}

// Done is closed when the transition has finished.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Poll returns the outcome if the transition has finished.
func (h *Handle) Poll() (Outcome, bool) {
	select {
	case <-h.done:
		return h.outcome, true
	default:
		return Outcome{}, false
	}
}

// Wait blocks until the transition finishes or ctx is done. Abandoning a
// handle does not cancel the remote session; it runs to its own completion.
func (h *Handle) Wait(ctx context.Context) (Outcome, error) {
	select {
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	case <-h.done:
		return h.outcome, nil
	}
}
