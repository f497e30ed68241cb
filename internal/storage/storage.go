// Package storage defines the durable store for repos, issues, and session
// history, plus the per-issue claim primitive that serializes transitions.
package storage

import (
	"context"
	"os"
	"path/filepath"

	"github.com/SamuelHanono/devin-sheriff/internal/storage/sqlite"
	"github.com/SamuelHanono/devin-sheriff/internal/types"
)

// Storage is the interface for the local keyed store.
type Storage interface {
	// Repos
	CreateRepo(ctx context.Context, repo *types.Repo) error
	GetRepo(ctx context.Context, id int64) (*types.Repo, error)
	GetRepoByURL(ctx context.Context, url string) (*types.Repo, error)
	ListRepos(ctx context.Context) ([]*types.Repo, error)
	DeleteRepo(ctx context.Context, id int64) error

	// Issues
	CreateIssue(ctx context.Context, issue *types.Issue) error
	GetIssue(ctx context.Context, id int64) (*types.Issue, error)
	GetIssueByNumber(ctx context.Context, repoID int64, number int) (*types.Issue, error)
	ListIssues(ctx context.Context, repoID int64) ([]*types.Issue, error)
	ListIssuesByStatus(ctx context.Context, repoID int64, status types.Status) ([]*types.Issue, error)
	UpdateIssue(ctx context.Context, id int64, updates map[string]interface{}) error

	// Per-issue transition claims. ClaimIssue is atomic: it fails with
	// types.ErrSessionActive when another holder already has the claim.
	ClaimIssue(ctx context.Context, issueID int64, holder string) error
	ReleaseIssue(ctx context.Context, issueID int64, holder string) error

	// Session history (append-only audit trail)
	RecordSession(ctx context.Context, session *types.Session) error
	GetSessions(ctx context.Context, issueID int64) ([]*types.Session, error)

	// Lifecycle
	Reset(ctx context.Context) error
	Close() error
}

// Config holds database configuration
type Config struct {
	// Path is the SQLite database file path.
	// Special value ":memory:" creates an in-memory database (useful for tests).
	Path string
}

// DefaultConfig returns a config pointing at ~/.devin-sheriff/sheriff.db.
func DefaultConfig() *Config {
	return &Config{Path: DefaultPath()}
}

// DefaultPath returns the standard database location.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "sheriff.db"
	}
	return filepath.Join(home, ".devin-sheriff", "sheriff.db")
}

// NewStorage creates a new SQLite storage backend.
func NewStorage(ctx context.Context, cfg *Config) (Storage, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Path == "" {
		cfg.Path = DefaultPath()
	}
	return sqlite.New(cfg.Path)
}
