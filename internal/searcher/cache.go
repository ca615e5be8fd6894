package searcher

import (
	"context"
	"crypto/sha256"
	"fmt"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/dshills/codescope/pkg/types"
)

const (
	// DefaultQueryCacheSize is the number of cached responses per engine
	DefaultQueryCacheSize = 1000

	// DefaultQueryCacheTTL bounds how long a response is reused
	DefaultQueryCacheTTL = time.Hour
)

// cacheEntry represents a cached response with expiration time
type cacheEntry struct {
	results   []types.MatchResult
	expiresAt time.Time
}

// CachingEngine memoizes another engine's responses in an LRU. Keys include
// the corpus root and generation when the corpus exposes one, so a reindex
// naturally misses the cache.
type CachingEngine struct {
	inner Engine
	ttl   time.Duration
	cache *lru.Cache[[32]byte, *cacheEntry]
	mu    sync.RWMutex
}

// generational is implemented by corpora that version their contents
type generational interface {
	Generation() uint64
}

// NewCachingEngine wraps inner with an LRU of size entries
func NewCachingEngine(inner Engine, size int, ttl time.Duration) (*CachingEngine, error) {
	if size <= 0 {
		size = DefaultQueryCacheSize
	}
	if ttl <= 0 {
		ttl = DefaultQueryCacheTTL
	}
	cache, err := lru.New[[32]byte, *cacheEntry](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create LRU cache: %w", err)
	}
	return &CachingEngine{inner: inner, ttl: ttl, cache: cache}, nil
}

// Kind implements Engine
func (e *CachingEngine) Kind() types.EngineKind { return e.inner.Kind() }

// Search implements Engine. Errors are never cached.
func (e *CachingEngine) Search(ctx context.Context, c Corpus, req Request) ([]types.MatchResult, error) {
	key := e.key(c, req)
	if res, ok := e.lookup(key); ok {
		return res, nil
	}
	res, err := e.inner.Search(ctx, c, req)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	e.cache.Add(key, &cacheEntry{results: copyResults(res), expiresAt: time.Now().Add(e.ttl)})
	e.mu.Unlock()
	return res, nil
}

func (e *CachingEngine) lookup(key [32]byte) ([]types.MatchResult, bool) {
	e.mu.RLock()
	entry, found := e.cache.Get(key)
	if !found {
		e.mu.RUnlock()
		return nil, false
	}
	if time.Now().After(entry.expiresAt) {
		e.mu.RUnlock()
		e.mu.Lock()
		e.cache.Remove(key)
		e.mu.Unlock()
		return nil, false
	}
	res := copyResults(entry.results)
	e.mu.RUnlock()
	return res, true
}

// Len returns the number of cached responses
func (e *CachingEngine) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.cache.Len()
}

// Purge drops every cached response
func (e *CachingEngine) Purge() {
	e.mu.Lock()
	e.cache.Purge()
	e.mu.Unlock()
}

// key hashes a deterministic rendering of the request and corpus version
func (e *CachingEngine) key(c Corpus, req Request) [32]byte {
	var data strings.Builder
	data.WriteString(string(e.inner.Kind()))
	data.WriteString("|")
	data.WriteString(c.Root())
	if g, ok := c.(generational); ok {
		fmt.Fprintf(&data, "|gen:%d", g.Generation())
	}
	fmt.Fprintf(&data, "|%t|%t|%d|", req.Regex, req.CaseInsensitive, req.Limit)
	data.WriteString(req.Query)
	return sha256.Sum256([]byte(data.String()))
}

// copyResults deep-copies results so callers cannot mutate cached entries
func copyResults(src []types.MatchResult) []types.MatchResult {
	if src == nil {
		return nil
	}
	dst := make([]types.MatchResult, len(src))
	copy(dst, src)
	for i := range dst {
		if dst[i].Symbol != nil {
			sym := *dst[i].Symbol
			dst[i].Symbol = &sym
		}
	}
	return dst
}
