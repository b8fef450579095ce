package match

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/teemates/realtime/errors"
)

// precomputeWorkers bounds concurrent scoring passes during bulk precompute
const precomputeWorkers = 4

// Recommender produces fresh recommendations for a user. The Engine is
// the production implementation; tests substitute counting fakes.
type Recommender interface {
	MatchesForUser(ctx context.Context, userID string, limit int) ([]Match, error)
}

// CacheConfig holds cache sizing and lifetime parameters
type CacheConfig struct {
	TTL        time.Duration // entry lifetime
	MaxEntries int           // oldest entries evicted beyond this
	MaxResults int           // matches computed and stored per subject
}

// GetOptions control a single cache read
type GetOptions struct {
	ForceRefresh bool // bypass a fresh entry and recompute
	Limit        int  // cap on returned matches (0 = all cached)
}

type cacheEntry struct {
	matches     []Match
	generatedAt time.Time
	expiresAt   time.Time
}

// Cache memoizes recommendation sets per subject user. Entries are
// replaced or deleted whole; individual matches are never patched in
// place. The full breakdown is cached with each match, so a cache hit
// returns exactly what a fresh scoring pass returned.
type Cache struct {
	recommender Recommender
	cfg         CacheConfig
	logger      *zap.SugaredLogger
	now         func() time.Time

	mu      sync.RWMutex
	entries map[string]*cacheEntry
}

// NewCache creates a recommendation cache over the given recommender
func NewCache(recommender Recommender, cfg CacheConfig, logger *zap.SugaredLogger) *Cache {
	if cfg.TTL <= 0 {
		cfg.TTL = 15 * time.Minute
	}
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = 10000
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = 20
	}
	return &Cache{
		recommender: recommender,
		cfg:         cfg,
		logger:      logger.Named("match-cache"),
		now:         time.Now,
		entries:     make(map[string]*cacheEntry),
	}
}

// Get returns recommendations for the subject, serving a fresh cached
// entry when present and recomputing otherwise.
func (c *Cache) Get(ctx context.Context, subjectID string, opts GetOptions) ([]Match, error) {
	if !opts.ForceRefresh {
		if matches, ok := c.lookup(subjectID); ok {
			return capMatches(matches, opts.Limit), nil
		}
	}

	matches, err := c.recommender.MatchesForUser(ctx, subjectID, c.cfg.MaxResults)
	if err != nil {
		return nil, errors.Wrapf(err, "compute recommendations for %s", subjectID)
	}

	c.store(subjectID, matches)
	return capMatches(matches, opts.Limit), nil
}

// lookup returns a copy of a fresh entry's matches
func (c *Cache) lookup(subjectID string) ([]Match, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[subjectID]
	if !ok || c.now().After(entry.expiresAt) {
		return nil, false
	}
	return append([]Match(nil), entry.matches...), true
}

// store replaces the subject's entry wholesale
func (c *Cache) store(subjectID string, matches []Match) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.entries[subjectID] = &cacheEntry{
		matches:     append([]Match(nil), matches...),
		generatedAt: now,
		expiresAt:   now.Add(c.cfg.TTL),
	}

	// Evict oldest entries beyond the size cap
	for len(c.entries) > c.cfg.MaxEntries {
		oldestID := ""
		var oldestAt time.Time
		for id, e := range c.entries {
			if oldestID == "" || e.generatedAt.Before(oldestAt) {
				oldestID = id
				oldestAt = e.generatedAt
			}
		}
		delete(c.entries, oldestID)
	}
}

// Invalidate removes the subject's own entry and every entry whose
// matches reference id as a target opportunity. The id may therefore be
// either a user ID or an opportunity ID.
func (c *Cache) Invalidate(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, id)

	for subjectID, entry := range c.entries {
		for _, m := range entry.matches {
			if m.OpportunityID == id {
				delete(c.entries, subjectID)
				break
			}
		}
	}
}

// EvictExpired drops all entries past their TTL. Returns the count removed.
func (c *Cache) EvictExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for id, entry := range c.entries {
		if now.After(entry.expiresAt) {
			delete(c.entries, id)
			removed++
		}
	}
	return removed
}

// Len returns the number of cached entries
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Precompute warms the cache for a batch of subjects with bounded
// concurrency. Individual failures are logged and skipped; the batch
// always runs to completion.
func (c *Cache) Precompute(ctx context.Context, subjectIDs []string) {
	sem := make(chan struct{}, precomputeWorkers)
	var wg sync.WaitGroup

	for _, id := range subjectIDs {
		select {
		case <-ctx.Done():
			wg.Wait()
			return
		case sem <- struct{}{}:
		}

		wg.Add(1)
		go func(subjectID string) {
			defer wg.Done()
			defer func() { <-sem }()

			if _, err := c.Get(ctx, subjectID, GetOptions{ForceRefresh: true}); err != nil {
				c.logger.Warnw("Precompute failed for subject",
					"subject_id", subjectID, "error", err)
			}
		}(id)
	}

	wg.Wait()
}
