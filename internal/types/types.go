// Package types defines the core data model shared by all sheriff components.
package types

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Repo identifies one connected GitHub repository. Identity fields are
// immutable after connect; deleting a repo cascades to its issues.
type Repo struct {
	ID            int64     `json:"id"`
	Owner         string    `json:"owner"`
	Name          string    `json:"name"`
	URL           string    `json:"url"`
	DefaultBranch string    `json:"default_branch"`
	CreatedAt     time.Time `json:"created_at"`
}

// FullName returns the owner/name form used by the GitHub API.
func (r *Repo) FullName() string {
	return r.Owner + "/" + r.Name
}

// Status is the local remediation status of an issue, owned exclusively by
// the orchestrator. The remote open/closed state is tracked separately in
// Issue.State and owned by the reconciliation pass.
type Status string

const (
	StatusNew       Status = "NEW"
	StatusScoped    Status = "SCOPED"
	StatusExecuting Status = "EXECUTING"
	StatusPROpen    Status = "PR_OPEN"
	StatusDone      Status = "DONE"
	StatusFailed    Status = "FAILED"
)

// IsValid checks if the status value is valid
func (s Status) IsValid() bool {
	switch s {
	case StatusNew, StatusScoped, StatusExecuting, StatusPROpen, StatusDone, StatusFailed:
		return true
	}
	return false
}

// Scopable reports whether a scope session may be started from this status.
// DONE and FAILED are re-enterable: scoping them is treated like scoping NEW.
func (s Status) Scopable() bool {
	return s == StatusNew || s == StatusDone || s == StatusFailed
}

// State mirrors the remote tracker's open/closed state for an issue.
type State string

const (
	StateOpen   State = "open"
	StateClosed State = "closed"
)

// IsValid checks if the state value is valid
func (s State) IsValid() bool {
	return s == StateOpen || s == StateClosed
}

// CIStatus is the aggregated CI outcome for an issue's PR head commit.
type CIStatus string

const (
	CIPassing CIStatus = "passing"
	CIFailing CIStatus = "failing"
	CIPending CIStatus = "pending"
	CIUnknown CIStatus = "unknown"
)

// IsValid checks if the CI status value is valid
func (c CIStatus) IsValid() bool {
	switch c {
	case CIPassing, CIFailing, CIPending, CIUnknown:
		return true
	}
	return false
}

// RiskTier classifies how dangerous a plan's file changes are.
type RiskTier string

const (
	RiskHigh    RiskTier = "HIGH"
	RiskMedium  RiskTier = "MEDIUM"
	RiskLow     RiskTier = "LOW"
	RiskUnknown RiskTier = "UNKNOWN"
)

// Plan is the structured output of a completed scope or rescope session.
type Plan struct {
	Summary       string   `json:"summary"`
	FilesToChange []string `json:"files_to_change"`
	ActionPlan    []string `json:"action_plan"`
	Confidence    int      `json:"confidence"`
	// RiskTier is computed locally at scope time, not returned by the agent.
	RiskTier      RiskTier `json:"risk_tier,omitempty"`
	RiskRationale string   `json:"risk_rationale,omitempty"`
}

// Validate checks plan field ranges.
func (p *Plan) Validate() error {
	if strings.TrimSpace(p.Summary) == "" {
		return fmt.Errorf("plan summary is required")
	}
	if p.Confidence < 0 || p.Confidence > 100 {
		return fmt.Errorf("confidence must be between 0 and 100 (got %d)", p.Confidence)
	}
	return nil
}

// MaxHealRetries is the auto-heal retry ceiling. Beyond this the issue
// requires manual intervention.
const MaxHealRetries = 3

// Issue is the central entity. Content fields (Title, Body, State) mirror
// the remote tracker and are always overwritten by reconciliation; the
// remediation fields (Status, Plan, PRURL, CIStatus, RetryCount) are owned
// by the orchestrator.
type Issue struct {
	ID         int64     `json:"id"`
	RepoID     int64     `json:"repo_id"`
	Number     int       `json:"number"`
	Title      string    `json:"title"`
	Body       string    `json:"body"`
	State      State     `json:"state"`
	Status     Status    `json:"status"`
	Plan       *Plan     `json:"plan,omitempty"`
	PRURL      string    `json:"pr_url,omitempty"`
	CIStatus   CIStatus  `json:"ci_status"`
	RetryCount int       `json:"retry_count"`
	LastError  string    `json:"last_error,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Validate checks if the issue has valid field values
func (i *Issue) Validate() error {
	if i.RepoID == 0 {
		return fmt.Errorf("repo_id is required")
	}
	if i.Number <= 0 {
		return fmt.Errorf("issue number must be positive (got %d)", i.Number)
	}
	if len(i.Title) == 0 {
		return fmt.Errorf("title is required")
	}
	if !i.State.IsValid() {
		return fmt.Errorf("invalid state: %s", i.State)
	}
	if !i.Status.IsValid() {
		return fmt.Errorf("invalid status: %s", i.Status)
	}
	if !i.CIStatus.IsValid() {
		return fmt.Errorf("invalid ci status: %s", i.CIStatus)
	}
	if i.RetryCount < 0 || i.RetryCount > MaxHealRetries {
		return fmt.Errorf("retry_count must be between 0 and %d (got %d)", MaxHealRetries, i.RetryCount)
	}
	return nil
}

// CheckInvariants verifies the cross-field lifecycle invariants:
// SCOPED/EXECUTING require a plan, PR_OPEN requires a PR reference,
// and DONE implies the remote issue is closed.
func (i *Issue) CheckInvariants() error {
	switch i.Status {
	case StatusScoped, StatusExecuting:
		if i.Plan == nil {
			return fmt.Errorf("issue #%d: status %s requires a plan", i.Number, i.Status)
		}
	case StatusPROpen:
		if i.Plan == nil {
			return fmt.Errorf("issue #%d: status %s requires a plan", i.Number, i.Status)
		}
		if i.PRURL == "" {
			return fmt.Errorf("issue #%d: status PR_OPEN requires a pr reference", i.Number)
		}
	case StatusDone:
		if i.State != StateClosed {
			return fmt.Errorf("issue #%d: status DONE requires remote state closed", i.Number)
		}
	}
	return nil
}

// SessionType categorizes one remote agent invocation.
type SessionType string

const (
	SessionScope    SessionType = "scope"
	SessionRescope  SessionType = "rescope"
	SessionExecute  SessionType = "execute"
	SessionTribunal SessionType = "tribunal"
)

// IsValid checks if the session type value is valid
func (t SessionType) IsValid() bool {
	switch t {
	case SessionScope, SessionRescope, SessionExecute, SessionTribunal:
		return true
	}
	return false
}

// Session is a transient, non-authoritative audit record of one remote
// agent invocation. The issue's own fields remain the source of truth.
type Session struct {
	ID        int64           `json:"id"`
	IssueID   int64           `json:"issue_id"`
	Type      SessionType     `json:"type"`
	RemoteID  string          `json:"remote_id"`
	Status    string          `json:"status"`
	Result    json.RawMessage `json:"result,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}
