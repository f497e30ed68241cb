// Package sqlite implements the storage interface on a local SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/SamuelHanono/devin-sheriff/internal/types"
)

// Store implements the Storage interface using SQLite
type Store struct {
	db   *sql.DB
	path string
}

// New creates a new SQLite storage backend at the given path.
// Pass ":memory:" for an in-memory database.
func New(path string) (*Store, error) {
	dsn := "file::memory:?_pragma=foreign_keys(1)&_timefmt=sqlite"
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
		// WAL mode for concurrent reader/writer access between the polling
		// caller and transition workers.
		dsn = "file:" + path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_timefmt=sqlite"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &Store{db: db, path: path}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Reset drops all tables and recreates the schema (factory reset).
func (s *Store) Reset(ctx context.Context) error {
	drops := []string{
		"DROP TABLE IF EXISTS issue_claims",
		"DROP TABLE IF EXISTS sessions",
		"DROP TABLE IF EXISTS issues",
		"DROP TABLE IF EXISTS repos",
	}
	for _, stmt := range drops {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to drop tables: %w", err)
		}
	}
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to recreate schema: %w", err)
	}
	return nil
}

// CreateRepo inserts a new repo and populates its ID.
func (s *Store) CreateRepo(ctx context.Context, repo *types.Repo) error {
	if repo.Owner == "" || repo.Name == "" || repo.URL == "" {
		return fmt.Errorf("%w: repo owner, name, and url are required", types.ErrValidation)
	}
	if repo.DefaultBranch == "" {
		repo.DefaultBranch = "main"
	}
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO repos (owner, name, url, default_branch, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		repo.Owner, repo.Name, repo.URL, repo.DefaultBranch, now)
	if err != nil {
		return fmt.Errorf("failed to create repo: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get repo id: %w", err)
	}
	repo.ID = id
	repo.CreatedAt = now
	return nil
}

// GetRepo fetches a repo by ID.
func (s *Store) GetRepo(ctx context.Context, id int64) (*types.Repo, error) {
	return s.scanRepo(s.db.QueryRowContext(ctx, `
		SELECT id, owner, name, url, default_branch, created_at
		FROM repos WHERE id = ?`, id))
}

// GetRepoByURL fetches a repo by its canonical URL.
func (s *Store) GetRepoByURL(ctx context.Context, url string) (*types.Repo, error) {
	return s.scanRepo(s.db.QueryRowContext(ctx, `
		SELECT id, owner, name, url, default_branch, created_at
		FROM repos WHERE url = ?`, url))
}

// ListRepos returns all connected repos ordered by creation time.
func (s *Store) ListRepos(ctx context.Context) ([]*types.Repo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, owner, name, url, default_branch, created_at
		FROM repos ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to list repos: %w", err)
	}
	defer rows.Close()

	var repos []*types.Repo
	for rows.Next() {
		repo, err := s.scanRepo(rows)
		if err != nil {
			return nil, err
		}
		repos = append(repos, repo)
	}
	return repos, rows.Err()
}

// DeleteRepo removes a repo. Its issues, sessions, and claims cascade.
func (s *Store) DeleteRepo(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM repos WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete repo: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: repo %d", types.ErrNotFound, id)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (s *Store) scanRepo(row rowScanner) (*types.Repo, error) {
	var repo types.Repo
	err := row.Scan(&repo.ID, &repo.Owner, &repo.Name, &repo.URL, &repo.DefaultBranch, &repo.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: repo", types.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan repo: %w", err)
	}
	return &repo, nil
}

// CreateIssue inserts a new issue and populates its ID.
func (s *Store) CreateIssue(ctx context.Context, issue *types.Issue) error {
	if issue.State == "" {
		issue.State = types.StateOpen
	}
	if issue.Status == "" {
		issue.Status = types.StatusNew
	}
	if issue.CIStatus == "" {
		issue.CIStatus = types.CIUnknown
	}
	if err := issue.Validate(); err != nil {
		return fmt.Errorf("%w: %v", types.ErrValidation, err)
	}

	planJSON, err := marshalPlan(issue.Plan)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO issues (repo_id, number, title, body, state, status, scope_json,
			pr_url, ci_status, retry_count, last_error, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		issue.RepoID, issue.Number, issue.Title, issue.Body, issue.State, issue.Status,
		planJSON, issue.PRURL, issue.CIStatus, issue.RetryCount, issue.LastError, now, now)
	if err != nil {
		return fmt.Errorf("failed to create issue: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get issue id: %w", err)
	}
	issue.ID = id
	issue.CreatedAt = now
	issue.UpdatedAt = now
	return nil
}

const issueColumns = `id, repo_id, number, title, body, state, status, scope_json,
	pr_url, ci_status, retry_count, last_error, created_at, updated_at`

// GetIssue fetches an issue by its local ID.
func (s *Store) GetIssue(ctx context.Context, id int64) (*types.Issue, error) {
	return scanIssue(s.db.QueryRowContext(ctx,
		`SELECT `+issueColumns+` FROM issues WHERE id = ?`, id))
}

// GetIssueByNumber fetches an issue by its (repo, remote number) identity.
func (s *Store) GetIssueByNumber(ctx context.Context, repoID int64, number int) (*types.Issue, error) {
	return scanIssue(s.db.QueryRowContext(ctx,
		`SELECT `+issueColumns+` FROM issues WHERE repo_id = ? AND number = ?`, repoID, number))
}

// ListIssues returns all issues for a repo ordered by remote number.
func (s *Store) ListIssues(ctx context.Context, repoID int64) ([]*types.Issue, error) {
	return s.queryIssues(ctx,
		`SELECT `+issueColumns+` FROM issues WHERE repo_id = ? ORDER BY number`, repoID)
}

// ListIssuesByStatus returns a repo's issues filtered by local status.
func (s *Store) ListIssuesByStatus(ctx context.Context, repoID int64, status types.Status) ([]*types.Issue, error) {
	return s.queryIssues(ctx,
		`SELECT `+issueColumns+` FROM issues WHERE repo_id = ? AND status = ? ORDER BY number`,
		repoID, status)
}

func (s *Store) queryIssues(ctx context.Context, query string, args ...interface{}) ([]*types.Issue, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query issues: %w", err)
	}
	defer rows.Close()

	var issues []*types.Issue
	for rows.Next() {
		issue, err := scanIssue(rows)
		if err != nil {
			return nil, err
		}
		issues = append(issues, issue)
	}
	return issues, rows.Err()
}

func scanIssue(row rowScanner) (*types.Issue, error) {
	var issue types.Issue
	var scopeJSON sql.NullString
	err := row.Scan(&issue.ID, &issue.RepoID, &issue.Number, &issue.Title, &issue.Body,
		&issue.State, &issue.Status, &scopeJSON, &issue.PRURL, &issue.CIStatus,
		&issue.RetryCount, &issue.LastError, &issue.CreatedAt, &issue.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: issue", types.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan issue: %w", err)
	}
	if scopeJSON.Valid && scopeJSON.String != "" {
		var plan types.Plan
		if err := json.Unmarshal([]byte(scopeJSON.String), &plan); err != nil {
			return nil, fmt.Errorf("failed to decode stored plan: %w", err)
		}
		issue.Plan = &plan
	}
	return &issue, nil
}

// Columns UpdateIssue accepts. "plan" maps to the scope_json column.
var allowedIssueUpdates = map[string]string{
	"title":       "title",
	"body":        "body",
	"state":       "state",
	"status":      "status",
	"plan":        "scope_json",
	"pr_url":      "pr_url",
	"ci_status":   "ci_status",
	"retry_count": "retry_count",
	"last_error":  "last_error",
}

// UpdateIssue applies a partial update to an issue. The updates map is keyed
// by logical field name; unknown keys are rejected. updated_at is always
// bumped. A "plan" value must be *types.Plan (nil clears the stored plan).
func (s *Store) UpdateIssue(ctx context.Context, id int64, updates map[string]interface{}) error {
	if len(updates) == 0 {
		return fmt.Errorf("%w: no updates provided", types.ErrValidation)
	}

	// Deterministic column order keeps the generated SQL stable.
	keys := make([]string, 0, len(updates))
	for k := range updates {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sets []string
	var args []interface{}
	for _, key := range keys {
		column, ok := allowedIssueUpdates[key]
		if !ok {
			return fmt.Errorf("%w: unknown issue field %q", types.ErrValidation, key)
		}
		value := updates[key]
		if key == "plan" {
			plan, ok := value.(*types.Plan)
			if !ok && value != nil {
				return fmt.Errorf("%w: plan must be *types.Plan", types.ErrValidation)
			}
			planJSON, err := marshalPlan(plan)
			if err != nil {
				return err
			}
			value = planJSON
		}
		if key == "retry_count" {
			if n, ok := value.(int); ok && (n < 0 || n > types.MaxHealRetries) {
				return fmt.Errorf("%w: retry_count %d out of range", types.ErrValidation, n)
			}
		}
		sets = append(sets, column+" = ?")
		args = append(args, value)
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, time.Now().UTC())
	args = append(args, id)

	res, err := s.db.ExecContext(ctx,
		"UPDATE issues SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...)
	if err != nil {
		return fmt.Errorf("failed to update issue: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: issue %d", types.ErrNotFound, id)
	}
	return nil
}

func marshalPlan(plan *types.Plan) (interface{}, error) {
	if plan == nil {
		return nil, nil
	}
	data, err := json.Marshal(plan)
	if err != nil {
		return nil, fmt.Errorf("failed to encode plan: %w", err)
	}
	return string(data), nil
}

// ClaimIssue atomically claims an issue for one transition holder. Fails
// with ErrSessionActive if another claim is outstanding; a second request
// is rejected, never queued.
func (s *Store) ClaimIssue(ctx context.Context, issueID int64, holder string) error {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO issue_claims (issue_id, holder, claimed_at)
		VALUES (?, ?, ?)
		ON CONFLICT(issue_id) DO NOTHING`,
		issueID, holder, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to claim issue: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check claim result: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: issue %d", types.ErrSessionActive, issueID)
	}
	return nil
}

// ReleaseIssue releases a claim held by the given holder. Releasing a claim
// you do not hold is a no-op.
func (s *Store) ReleaseIssue(ctx context.Context, issueID int64, holder string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM issue_claims WHERE issue_id = ? AND holder = ?`, issueID, holder)
	if err != nil {
		return fmt.Errorf("failed to release issue: %w", err)
	}
	return nil
}

// RecordSession appends one session audit record.
func (s *Store) RecordSession(ctx context.Context, session *types.Session) error {
	if !session.Type.IsValid() {
		return fmt.Errorf("%w: invalid session type %q", types.ErrValidation, session.Type)
	}
	var resultJSON interface{}
	if len(session.Result) > 0 {
		resultJSON = string(session.Result)
	}
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (issue_id, session_type, remote_id, status, result_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		session.IssueID, session.Type, session.RemoteID, session.Status, resultJSON, now)
	if err != nil {
		return fmt.Errorf("failed to record session: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get session id: %w", err)
	}
	session.ID = id
	session.CreatedAt = now
	return nil
}

// GetSessions returns an issue's session history, newest first.
func (s *Store) GetSessions(ctx context.Context, issueID int64) ([]*types.Session, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, issue_id, session_type, remote_id, status, result_json, created_at
		FROM sessions WHERE issue_id = ? ORDER BY created_at DESC, id DESC`, issueID)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*types.Session
	for rows.Next() {
		var session types.Session
		var resultJSON sql.NullString
		err := rows.Scan(&session.ID, &session.IssueID, &session.Type, &session.RemoteID,
			&session.Status, &resultJSON, &session.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		if resultJSON.Valid {
			session.Result = json.RawMessage(resultJSON.String)
		}
		sessions = append(sessions, &session)
	}
	return sessions, rows.Err()
}
