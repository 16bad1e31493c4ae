package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/avolkov/graphrag/internal/core/domain"
)

func TestCachedSearchServesRepeatQueryFromCache(t *testing.T) {
	inner := &fakeInnerSearch{response: &domain.SearchResponse{
		Results: []domain.SearchResult{{DocumentID: "doc-1", Score: 0.8}},
	}}
	uc := NewCachedSearch(inner, &fakeVectors{}, NewMemoryResultCache(), time.Minute, nil)
	ctx := context.Background()
	query := domain.SearchQuery{Text: "lightfield display"}

	first, err := uc.Search(ctx, query)
	if err != nil {
		t.Fatalf("first search: %v", err)
	}
	if first.CacheHit {
		t.Fatal("first response must not be a cache hit")
	}

	second, err := uc.Search(ctx, query)
	if err != nil {
		t.Fatalf("second search: %v", err)
	}
	if !second.CacheHit {
		t.Fatal("expected second response from cache")
	}
	if inner.calls != 1 {
		t.Fatalf("expected 1 inner search, got %d", inner.calls)
	}
}

func TestCachedSearchNormalizesQueryText(t *testing.T) {
	inner := &fakeInnerSearch{response: &domain.SearchResponse{}}
	uc := NewCachedSearch(inner, &fakeVectors{}, NewMemoryResultCache(), time.Minute, nil)
	ctx := context.Background()

	if _, err := uc.Search(ctx, domain.SearchQuery{Text: "Lightfield   Display"}); err != nil {
		t.Fatalf("first search: %v", err)
	}
	if _, err := uc.Search(ctx, domain.SearchQuery{Text: "lightfield display"}); err != nil {
		t.Fatalf("second search: %v", err)
	}
	if inner.calls != 1 {
		t.Fatalf("expected normalized queries to share a cache entry, got %d inner searches", inner.calls)
	}
}

func TestCachedSearchKeysIncludeFilters(t *testing.T) {
	inner := &fakeInnerSearch{response: &domain.SearchResponse{}}
	uc := NewCachedSearch(inner, &fakeVectors{}, NewMemoryResultCache(), time.Minute, nil)
	ctx := context.Background()

	if _, err := uc.Search(ctx, domain.SearchQuery{Text: "backlight"}); err != nil {
		t.Fatalf("first search: %v", err)
	}
	filtered := domain.SearchQuery{Text: "backlight", Filter: domain.SearchFilter{DocTypes: []string{"patent"}}}
	if _, err := uc.Search(ctx, filtered); err != nil {
		t.Fatalf("filtered search: %v", err)
	}
	if inner.calls != 2 {
		t.Fatalf("expected distinct cache entries per filter, got %d inner searches", inner.calls)
	}
}

func TestMemoryResultCacheExpiresEntries(t *testing.T) {
	cache := NewMemoryResultCache()
	cache.Put("k", &domain.SearchResponse{}, 10*time.Millisecond)

	if _, ok := cache.Get("k"); !ok {
		t.Fatal("expected fresh entry")
	}
	time.Sleep(25 * time.Millisecond)
	if _, ok := cache.Get("k"); ok {
		t.Fatal("expected expired entry to be evicted")
	}
}

func TestMemoryResultCacheFirstWriteWins(t *testing.T) {
	cache := NewMemoryResultCache()
	first := &domain.SearchResponse{Results: []domain.SearchResult{{DocumentID: "doc-1"}}}
	second := &domain.SearchResponse{Results: []domain.SearchResult{{DocumentID: "doc-2"}}}

	cache.Put("k", first, time.Minute)
	cache.Put("k", second, time.Minute)

	got, ok := cache.Get("k")
	if !ok {
		t.Fatal("expected cached entry")
	}
	if got.Results[0].DocumentID != "doc-1" {
		t.Fatalf("expected first write kept, got %s", got.Results[0].DocumentID)
	}
}

func TestIdentifierQueryRoutesToLexicalLookup(t *testing.T) {
	inner := &fakeInnerSearch{response: &domain.SearchResponse{}}
	vectors := &fakeVectors{lexResults: []domain.SearchResult{{DocumentID: "doc-42", Score: 1.0}}}
	uc := NewCachedSearch(inner, vectors, NewMemoryResultCache(), time.Minute, nil)

	response, err := uc.Search(context.Background(), domain.SearchQuery{Text: "doc-42"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if inner.calls != 0 {
		t.Fatalf("expected hybrid path skipped, got %d inner searches", inner.calls)
	}
	if len(response.Results) != 1 || response.Results[0].DocumentID != "doc-42" {
		t.Fatalf("expected direct lookup results, got %+v", response.Results)
	}
	if len(vectors.lastLexFilter.DocumentIDs) != 1 || vectors.lastLexFilter.DocumentIDs[0] != "doc-42" {
		t.Fatalf("expected lookup restricted to doc-42, got %+v", vectors.lastLexFilter)
	}
}

func TestIdentifierQueryFallsThroughWhenUnknown(t *testing.T) {
	inner := &fakeInnerSearch{response: &domain.SearchResponse{}}
	vectors := &fakeVectors{}
	uc := NewCachedSearch(inner, vectors, NewMemoryResultCache(), time.Minute, nil)

	if _, err := uc.Search(context.Background(), domain.SearchQuery{Text: "doc-unknown"}); err != nil {
		t.Fatalf("search: %v", err)
	}
	if inner.calls != 1 {
		t.Fatalf("expected fall-through to hybrid search, got %d inner searches", inner.calls)
	}
}
