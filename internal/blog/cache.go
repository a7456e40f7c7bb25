package blog

import (
	"context"
	"sync"
	"time"

	"github.com/aTylerRobertson/sheet-posting/internal/instrumentation"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// sheet tabs holding the blog content
const (
	sheetPosts    = "Posts"
	sheetSettings = "Settings"
)

type sheetFetcher interface {
	Fetch(ctx context.Context, spreadsheetID, sheet string) (string, error)
}

// CacheEntry is the parsed content of one spreadsheet-backed blog.
// Entries are never mutated in place - a refresh replaces the whole
// entry, so concurrent readers cannot observe a half-updated blog.
type CacheEntry struct {
	SpreadsheetID string
	Meta          Metadata
	FetchedAt     time.Time

	result *ParseResult
}

// Posts returns all visible posts, in sheet order.
func (e *CacheEntry) Posts() []Post {
	return e.result.Posts
}

// Post finds a post by slug, case-insensitively.
func (e *CacheEntry) Post(slug string) (Post, bool) {
	return e.result.Lookup(slug)
}

// Cache keeps one parsed entry per spreadsheet identifier, refreshed
// when older than the TTL. The cache is the only thing standing between
// incoming traffic and the spreadsheet export endpoint.
type Cache struct {
	fetcher sheetFetcher
	ttl     time.Duration
	instr   *instrumentation.Instrumentation

	mutex   sync.RWMutex
	entries map[string]*CacheEntry

	group singleflight.Group

	// replaced in tests
	now func() time.Time
}

func NewCache(fetcher sheetFetcher, ttl time.Duration, instr *instrumentation.Instrumentation) *Cache {
	return &Cache{
		fetcher: fetcher,
		ttl:     ttl,
		instr:   instr,
		entries: make(map[string]*CacheEntry),
		now:     time.Now,
	}
}

func (c *Cache) entry(spreadsheetID string) *CacheEntry {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return c.entries[spreadsheetID]
}

func (c *Cache) fresh(entry *CacheEntry) bool {
	return entry != nil && c.now().Sub(entry.FetchedAt) < c.ttl
}

// GetOrFetch returns the cached entry for the given spreadsheet,
// refreshing it first when it is missing or expired. Concurrent callers
// for the same spreadsheet share a single in-flight refresh; callers
// for different spreadsheets never contend on it.
//
// A failed refresh falls back to the last good entry when one exists;
// the error surfaces only when the blog was never fetched successfully.
func (c *Cache) GetOrFetch(ctx context.Context, spreadsheetID string) (*CacheEntry, error) {
	if entry := c.entry(spreadsheetID); c.fresh(entry) {
		if c.instr != nil {
			c.instr.CounterCacheHits.Inc()
		}
		return entry, nil
	}

	if c.instr != nil {
		c.instr.CounterCacheMisses.Inc()
	}

	v, err, _ := c.group.Do(spreadsheetID, func() (interface{}, error) {
		// another flight could have just refreshed this entry
		if entry := c.entry(spreadsheetID); c.fresh(entry) {
			return entry, nil
		}

		entry, err := c.refresh(ctx, spreadsheetID)
		if err == nil {
			return entry, nil
		}

		// stale-but-available: an expired entry beats an error page
		if stale := c.entry(spreadsheetID); stale != nil {
			log.Warnf("refresh blog [%s] failed, serving entry from %s: %s",
				spreadsheetID, stale.FetchedAt.Format(time.RFC3339), err)
			if c.instr != nil {
				c.instr.CounterCacheStaleServed.Inc()
			}
			return stale, nil
		}

		return nil, err
	})
	if err != nil {
		return nil, err
	}

	return v.(*CacheEntry), nil
}

func (c *Cache) refresh(ctx context.Context, spreadsheetID string) (*CacheEntry, error) {
	if c.instr != nil {
		c.instr.CounterSheetFetches.Inc()
	}

	rawPosts, err := c.fetcher.Fetch(ctx, spreadsheetID, sheetPosts)
	if err != nil {
		if c.instr != nil {
			c.instr.CounterSheetFetchErrors.Inc()
		}
		return nil, err
	}

	result, err := ParsePosts(rawPosts)
	if err != nil {
		return nil, err
	}

	var meta Metadata
	rawSettings, err := c.fetcher.Fetch(ctx, spreadsheetID, sheetSettings)
	if err != nil {
		// a blog without a settings tab still works, with default metadata
		log.Debugf("fetch settings for blog [%s]: %s", spreadsheetID, err)
	} else {
		meta = ParseMetadata(rawSettings)
	}

	entry := &CacheEntry{
		SpreadsheetID: spreadsheetID,
		Meta:          meta,
		FetchedAt:     c.now(),
		result:        result,
	}

	c.mutex.Lock()
	c.entries[spreadsheetID] = entry
	c.mutex.Unlock()

	log.Tracef("blog [%s] refreshed: %d posts, %d rows dropped",
		spreadsheetID, len(result.Posts), result.Dropped)

	return entry, nil
}

// Invalidate drops the cached entry so the next read fetches anew.
func (c *Cache) Invalidate(spreadsheetID string) {
	c.mutex.Lock()
	delete(c.entries, spreadsheetID)
	c.mutex.Unlock()
}
