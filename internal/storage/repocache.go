package storage

import (
	"context"
	"sync"
	"time"

	"github.com/SamuelHanono/devin-sheriff/internal/types"
)

// DefaultRepoCacheTTL bounds how stale the cached repo list may get.
const DefaultRepoCacheTTL = 30 * time.Second

// RepoCache is a short-lived read-through cache over ListRepos. It is owned
// by its caller, not ambient: create one where repeated repo lookups happen
// and invalidate it explicitly after connect/delete.
type RepoCache struct {
	store Storage
	ttl   time.Duration

	mu      sync.Mutex
	cached  []*types.Repo
	expires time.Time
}

// NewRepoCache wraps a store with a TTL cache. ttl <= 0 uses the default.
func NewRepoCache(store Storage, ttl time.Duration) *RepoCache {
	if ttl <= 0 {
		ttl = DefaultRepoCacheTTL
	}
	return &RepoCache{store: store, ttl: ttl}
}

// List returns the repo list, reading through to the store when the cached
// copy is missing or expired.
func (c *RepoCache) List(ctx context.Context) ([]*types.Repo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cached != nil && time.Now().Before(c.expires) {
		return c.cached, nil
	}

	repos, err := c.store.ListRepos(ctx)
	if err != nil {
		return nil, err
	}
	c.cached = repos
	c.expires = time.Now().Add(c.ttl)
	return repos, nil
}

// Invalidate drops the cached list. The next List reads through.
func (c *RepoCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cached = nil
}
