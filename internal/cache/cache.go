// Package cache provides the query result cache. Entries are keyed by normalized query and
// scope, expire after a TTL, and are dropped as soon as any document they cover changes.
package cache

import (
	"container/list"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"
	"time"

	"github.com/hyperjump/shiryo/internal/models"
	"go.uber.org/zap"
)

// Defaults for NewResultCache.
const (
	DefaultTTL           = 5 * time.Minute
	DefaultSweepInterval = time.Minute
	DefaultCapacity      = 10000
)

// VersionSource reports the live version of a document. ok is false when the document
// no longer exists.
type VersionSource interface {
	Version(id string) (version uint64, ok bool)
}

// Entry is one cached result list.
type Entry struct {
	Key             string
	Scope           string
	Results         []models.SearchHit
	CreatedAt       time.Time
	CoveredVersions map[string]uint64
}

// Stats is a point-in-time view of cache activity.
type Stats struct {
	Entries       int    `json:"entries"`
	Hits          uint64 `json:"hits"`
	Misses        uint64 `json:"misses"`
	Invalidations uint64 `json:"invalidations"`
	Evictions     uint64 `json:"evictions"`
}

// ResultCache is an LRU of query results with TTL expiry and reverse indexes from
// document id and scope to cache keys. Safe for concurrent use.
//
// Lookup never holds the cache lock while consulting the VersionSource, so callers may
// invalidate while holding their own write lock.
type ResultCache struct {
	mu       sync.Mutex
	entries  map[string]*list.Element
	lru      *list.List
	byDoc    map[string]map[string]struct{}
	byScope  map[string]map[string]struct{}
	gen      uint64
	stats    Stats
	ttl      time.Duration
	sweep    time.Duration
	capacity int
	versions VersionSource
	now      func() time.Time
	logger   *zap.Logger
}

// Option configures a ResultCache.
type Option func(*ResultCache)

// WithTTL sets how long an entry stays fresh.
func WithTTL(ttl time.Duration) Option {
	return func(c *ResultCache) { c.ttl = ttl }
}

// WithSweepInterval sets the period of the background sweep started by Start.
func WithSweepInterval(d time.Duration) Option {
	return func(c *ResultCache) { c.sweep = d }
}

// WithCapacity bounds the number of entries; the least recently used is evicted first.
func WithCapacity(n int) Option {
	return func(c *ResultCache) { c.capacity = n }
}

// WithVersionSource enables live version checks on Lookup.
func WithVersionSource(vs VersionSource) Option {
	return func(c *ResultCache) { c.versions = vs }
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *ResultCache) { c.now = now }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *ResultCache) { c.logger = logger }
}

// NewResultCache returns an empty cache.
func NewResultCache(opts ...Option) *ResultCache {
	c := &ResultCache{
		entries:  make(map[string]*list.Element),
		lru:      list.New(),
		byDoc:    make(map[string]map[string]struct{}),
		byScope:  make(map[string]map[string]struct{}),
		ttl:      DefaultTTL,
		sweep:    DefaultSweepInterval,
		capacity: DefaultCapacity,
		now:      time.Now,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetVersionSource wires the live version lookup after construction.
func (c *ResultCache) SetVersionSource(vs VersionSource) {
	c.mu.Lock()
	c.versions = vs
	c.mu.Unlock()
}

// Key derives the cache key for an already-normalized query and scope.
func Key(normalizedQuery, scope string) string {
	sum := sha256.Sum256([]byte(normalizedQuery + "\x00" + scope))
	return hex.EncodeToString(sum[:])
}

// Generation returns a counter bumped by every invalidation. Pass it to Store so results
// computed from a snapshot that predates a write are not cached.
func (c *ResultCache) Generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen
}

// Lookup returns a copy of the cached results for key. Expired entries and entries whose
// covered documents changed or disappeared are evicted and reported as misses.
func (c *ResultCache) Lookup(key string) ([]models.SearchHit, bool) {
	c.mu.Lock()
	elem, ok := c.entries[key]
	if !ok {
		c.stats.Misses++
		c.mu.Unlock()
		return nil, false
	}
	entry := elem.Value.(*Entry)
	if c.expired(entry) {
		c.removeElement(elem)
		c.stats.Misses++
		c.mu.Unlock()
		return nil, false
	}
	versions := c.versions
	c.mu.Unlock()

	if versions != nil {
		for id, v := range entry.CoveredVersions {
			if live, ok := versions.Version(id); !ok || live != v {
				c.mu.Lock()
				if cur, ok := c.entries[key]; ok && cur == elem {
					c.removeElement(elem)
				}
				c.stats.Misses++
				c.mu.Unlock()
				c.logger.Debug("cache entry stale", zap.String("doc_id", id), zap.Uint64("cached_version", v))
				return nil, false
			}
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if cur, ok := c.entries[key]; !ok || cur != elem {
		c.stats.Misses++
		return nil, false
	}
	c.lru.MoveToFront(elem)
	c.stats.Hits++
	return append([]models.SearchHit(nil), entry.Results...), true
}

// Store caches results for key. covered maps every document that was scored for the
// query to the version it had. The store is skipped when an invalidation happened after
// gen was read.
func (c *ResultCache) Store(key, scope string, gen uint64, results []models.SearchHit, covered map[string]uint64) bool {
	entry := &Entry{
		Key:             key,
		Scope:           scope,
		Results:         append([]models.SearchHit(nil), results...),
		CreatedAt:       c.now(),
		CoveredVersions: make(map[string]uint64, len(covered)),
	}
	for id, v := range covered {
		entry.CoveredVersions[id] = v
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return false
	}
	if elem, ok := c.entries[key]; ok {
		c.removeElement(elem)
	}
	elem := c.lru.PushFront(entry)
	c.entries[key] = elem
	for id := range entry.CoveredVersions {
		addRef(c.byDoc, id, key)
	}
	addRef(c.byScope, scope, key)

	for c.capacity > 0 && c.lru.Len() > c.capacity {
		c.removeElement(c.lru.Back())
		c.stats.Evictions++
	}
	return true
}

// Invalidate drops every entry that covers documentID, and every entry scoped to folder
// or to one of its ancestors (including the corpus root ""). The second rule catches
// entries that should now include a document they never saw.
func (c *ResultCache) Invalidate(documentID, folder string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++

	keys := make(map[string]struct{})
	for k := range c.byDoc[documentID] {
		keys[k] = struct{}{}
	}
	for _, scope := range scopeChain(folder) {
		for k := range c.byScope[scope] {
			keys[k] = struct{}{}
		}
	}
	for k := range keys {
		if elem, ok := c.entries[k]; ok {
			c.removeElement(elem)
		}
	}
	c.stats.Invalidations += uint64(len(keys))
	return len(keys)
}

// Purge drops every entry.
func (c *ResultCache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	c.entries = make(map[string]*list.Element)
	c.lru.Init()
	c.byDoc = make(map[string]map[string]struct{})
	c.byScope = make(map[string]map[string]struct{})
}

// Sweep removes expired entries and returns how many were removed.
func (c *ResultCache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	for elem := c.lru.Back(); elem != nil; {
		prev := elem.Prev()
		if c.expired(elem.Value.(*Entry)) {
			c.removeElement(elem)
			removed++
		}
		elem = prev
	}
	return removed
}

// Start runs Sweep periodically until ctx is done.
func (c *ResultCache) Start(ctx context.Context) {
	if c.sweep <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(c.sweep)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := c.Sweep(); n > 0 {
					c.logger.Debug("cache sweep", zap.Int("expired", n))
				}
			}
		}
	}()
}

// Len returns the number of entries, including expired ones not yet swept.
func (c *ResultCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// Stats returns counters since creation.
func (c *ResultCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats
	s.Entries = c.lru.Len()
	return s
}

func (c *ResultCache) expired(e *Entry) bool {
	return c.ttl > 0 && c.now().Sub(e.CreatedAt) >= c.ttl
}

// removeElement unlinks elem from the list, the key map and both reverse indexes.
// Callers hold c.mu.
func (c *ResultCache) removeElement(elem *list.Element) {
	entry := elem.Value.(*Entry)
	c.lru.Remove(elem)
	delete(c.entries, entry.Key)
	for id := range entry.CoveredVersions {
		dropRef(c.byDoc, id, entry.Key)
	}
	dropRef(c.byScope, entry.Scope, entry.Key)
}

func addRef(idx map[string]map[string]struct{}, ref, key string) {
	set, ok := idx[ref]
	if !ok {
		set = make(map[string]struct{})
		idx[ref] = set
	}
	set[key] = struct{}{}
}

func dropRef(idx map[string]map[string]struct{}, ref, key string) {
	set, ok := idx[ref]
	if !ok {
		return
	}
	delete(set, key)
	if len(set) == 0 {
		delete(idx, ref)
	}
}

// scopeChain returns folder and all of its ancestors, ending with the root "".
// "sales/pricing" yields ["sales/pricing", "sales", ""].
func scopeChain(folder string) []string {
	chain := []string{}
	for folder != "" {
		chain = append(chain, folder)
		i := strings.LastIndexByte(folder, '/')
		if i < 0 {
			break
		}
		folder = folder[:i]
	}
	return append(chain, "")
}
