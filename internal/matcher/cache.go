package matcher

import (
	"container/list"
	"regexp"
	"sync"
)

// DefaultCacheSize bounds the process-wide regex cache
const DefaultCacheSize = 256

var defaultCache = NewCache(DefaultCacheSize)

// Cache is an LRU of compiled, fully anchored regular expressions. Compile
// failures are cached as well so a bad pattern is parsed once.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*list.Element
	lru     *list.List
	maxSize int
	stats   CacheStats
}

// CacheStats tracks cache performance
type CacheStats struct {
	Hits      int64
	Misses    int64
	Evictions int64
}

type cacheEntry struct {
	expr string
	re   *regexp.Regexp
	err  error
}

// NewCache creates a cache holding at most maxSize expressions
func NewCache(maxSize int) *Cache {
	if maxSize < 1 {
		maxSize = 1
	}
	return &Cache{
		entries: make(map[string]*list.Element),
		lru:     list.New(),
		maxSize: maxSize,
	}
}

// Get returns the compiled form of expr anchored at both ends
func (c *Cache) Get(expr string) (*regexp.Regexp, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[expr]; ok {
		c.lru.MoveToFront(el)
		c.stats.Hits++
		e := el.Value.(*cacheEntry)
		return e.re, e.err
	}
	c.stats.Misses++

	// validate the bare expression first so errors quote what the user wrote
	re, err := regexp.Compile(expr)
	if err == nil {
		re, err = regexp.Compile(`^(?:` + expr + `)$`)
	}
	if err != nil {
		re = nil
	}

	if c.lru.Len() >= c.maxSize {
		c.evict()
	}
	c.entries[expr] = c.lru.PushFront(&cacheEntry{expr: expr, re: re, err: err})
	return re, err
}

func (c *Cache) evict() {
	back := c.lru.Back()
	if back == nil {
		return
	}
	delete(c.entries, back.Value.(*cacheEntry).expr)
	c.lru.Remove(back)
	c.stats.Evictions++
}

// Len is the number of cached expressions
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// Stats returns a snapshot of the cache counters
func (c *Cache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}
