package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"hybridrag/internal/domain"
)

// QueryCache is a bounded LRU of retrieval results with a TTL. Entries are
// tagged with the index generation they were computed against; Invalidate
// bumps the generation and drops everything.
type QueryCache struct {
	mu       sync.RWMutex
	entries  map[string]*cacheEntry
	order    []string
	maxSize  int
	ttl      time.Duration
	indexGen uint64

	group singleflight.Group
	now   func() time.Time
}

type cacheEntry struct {
	results   []domain.ScoredRecord
	timestamp time.Time
	indexGen  uint64
}

func NewQueryCache(maxSize int, ttl time.Duration) *QueryCache {
	if maxSize <= 0 {
		maxSize = 100
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &QueryCache{
		entries: make(map[string]*cacheEntry),
		order:   make([]string, 0, maxSize),
		maxSize: maxSize,
		ttl:     ttl,
		now:     time.Now,
	}
}

// Key identifies a retrieval. Role order does not matter.
func Key(query string, roles []string, topK int) string {
	sorted := append([]string(nil), domain.NormalizeRoles(roles)...)
	sort.Strings(sorted)

	var b strings.Builder
	b.WriteString(strings.TrimSpace(query))
	b.WriteByte(0)
	b.WriteString(strings.Join(sorted, ","))
	b.WriteByte(0)
	b.WriteString(strconv.Itoa(topK))

	hash := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(hash[:16])
}

// Generation returns the current index generation.
func (c *QueryCache) Generation() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.indexGen
}

func (c *QueryCache) Get(key string) ([]domain.ScoredRecord, bool) {
	c.mu.RLock()
	entry, exists := c.entries[key]
	currentGen := c.indexGen
	c.mu.RUnlock()

	if !exists {
		return nil, false
	}

	if c.now().Sub(entry.timestamp) > c.ttl || entry.indexGen != currentGen {
		c.mu.Lock()
		if c.entries[key] == entry {
			delete(c.entries, key)
			c.removeFromOrder(key)
		}
		c.mu.Unlock()
		return nil, false
	}

	c.mu.Lock()
	c.moveToEnd(key)
	c.mu.Unlock()

	return cloneResults(entry.results), true
}

// Put stores results computed against generation gen. Results from an older
// generation are dropped.
func (c *QueryCache) Put(key string, gen uint64, results []domain.ScoredRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.indexGen {
		return
	}

	entry := &cacheEntry{
		results:   cloneResults(results),
		timestamp: c.now(),
		indexGen:  gen,
	}

	if _, exists := c.entries[key]; exists {
		c.entries[key] = entry
		c.moveToEnd(key)
		return
	}

	if len(c.entries) >= c.maxSize {
		c.evictOldest()
	}

	c.entries[key] = entry
	c.order = append(c.order, key)
}

// GetOrCompute returns cached results for key or runs compute, coalescing
// concurrent callers with the same key. hit reports a cache hit.
func (c *QueryCache) GetOrCompute(key string, compute func() ([]domain.ScoredRecord, error)) (results []domain.ScoredRecord, hit bool, err error) {
	if results, ok := c.Get(key); ok {
		return results, true, nil
	}

	gen := c.Generation()
	v, err, _ := c.group.Do(key+"@"+strconv.FormatUint(gen, 10), func() (any, error) {
		res, err := compute()
		if err != nil {
			return nil, err
		}
		c.Put(key, gen, res)
		return res, nil
	})
	if err != nil {
		return nil, false, err
	}
	return cloneResults(v.([]domain.ScoredRecord)), false, nil
}

func (c *QueryCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*cacheEntry)
	c.order = c.order[:0]
	c.indexGen++
}

func (c *QueryCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *QueryCache) evictOldest() {
	if len(c.order) == 0 {
		return
	}
	oldest := c.order[0]
	c.order = c.order[1:]
	delete(c.entries, oldest)
}

func (c *QueryCache) moveToEnd(key string) {
	c.removeFromOrder(key)
	c.order = append(c.order, key)
}

func (c *QueryCache) removeFromOrder(key string) {
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			return
		}
	}
}

func cloneResults(in []domain.ScoredRecord) []domain.ScoredRecord {
	if in == nil {
		return nil
	}
	out := make([]domain.ScoredRecord, len(in))
	copy(out, in)
	return out
}
