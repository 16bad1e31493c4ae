package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/avolkov/graphrag/internal/core/domain"
	"github.com/avolkov/graphrag/internal/core/ports"
)

// MemoryResultCache is the process-wide fused-result cache. Entries are
// immutable once written: concurrent identical queries may duplicate upstream
// work but can never corrupt a cached entry.
type MemoryResultCache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
}

type cacheEntry struct {
	response *domain.SearchResponse
	expires  time.Time
}

func NewMemoryResultCache() *MemoryResultCache {
	return &MemoryResultCache{entries: make(map[string]cacheEntry)}
}

func (c *MemoryResultCache) Get(key string) (*domain.SearchResponse, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if time.Now().After(entry.expires) {
		delete(c.entries, key)
		return nil, false
	}
	return entry.response, true
}

func (c *MemoryResultCache) Put(key string, response *domain.SearchResponse, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.entries[key]; exists {
		return
	}
	c.entries[key] = cacheEntry{response: response, expires: time.Now().Add(ttl)}
}

// documentIDPattern recognizes trivial identifier queries that can skip the
// hybrid path entirely.
var documentIDPattern = regexp.MustCompile(`^(?:doc[-_][A-Za-z0-9-]+|[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12})$`)

// CachedSearchUC is the thin coordination layer in front of the hybrid
// engine: TTL cache by normalized query+filters, plus a tier router that
// sends bare document-id queries straight to a lexical lookup.
type CachedSearchUC struct {
	inner   ports.SearchService
	vectors ports.VectorStore
	cache   ports.ResultCache
	ttl     time.Duration
	logger  *slog.Logger
}

func NewCachedSearch(inner ports.SearchService, vectors ports.VectorStore, cache ports.ResultCache, ttl time.Duration, logger *slog.Logger) *CachedSearchUC {
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedSearchUC{inner: inner, vectors: vectors, cache: cache, ttl: ttl, logger: logger}
}

func (uc *CachedSearchUC) Search(ctx context.Context, query domain.SearchQuery) (*domain.SearchResponse, error) {
	trimmed := strings.TrimSpace(query.Text)

	if documentIDPattern.MatchString(trimmed) {
		if response, err := uc.lookupByID(ctx, trimmed, query); err == nil {
			return response, nil
		}
		// Fall through to the hybrid path when the direct lookup finds nothing.
	}

	key := cacheKey(query)
	if cached, ok := uc.cache.Get(key); ok {
		hit := *cached
		hit.CacheHit = true
		return &hit, nil
	}

	response, err := uc.inner.Search(ctx, query)
	if err != nil {
		return nil, err
	}
	uc.cache.Put(key, response, uc.ttl)
	return response, nil
}

// lookupByID serves identifier queries from the lexical index restricted to
// that document.
func (uc *CachedSearchUC) lookupByID(ctx context.Context, docID string, query domain.SearchQuery) (*domain.SearchResponse, error) {
	started := time.Now()
	filter := query.Filter
	filter.DocumentIDs = []string{docID}

	limit := query.Limit
	if limit <= 0 {
		limit = 10
	}
	results, err := uc.vectors.SearchLexical(ctx, docID, limit, filter)
	if err != nil {
		return nil, domain.WrapError(domain.ErrUpstream, "identifier lookup", err)
	}
	if len(results) == 0 {
		return nil, domain.WrapError(domain.ErrDocumentNotFound, "identifier lookup", fmt.Errorf("no chunks for %s", docID))
	}
	return &domain.SearchResponse{
		Results:        results,
		KeywordResults: results,
		ExecutionTime:  time.Since(started),
	}, nil
}

func cacheKey(query domain.SearchQuery) string {
	normalized := strings.Join(strings.Fields(strings.ToLower(query.Text)), " ")
	return fmt.Sprintf("%s|%s|%d|%.3f", normalized, query.Filter.CacheKeyPart(), query.Limit, query.Threshold)
}
