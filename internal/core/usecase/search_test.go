package usecase

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/avolkov/graphrag/internal/core/domain"
)

func newSearchConfig() HybridSearchConfig {
	cfg := DefaultHybridSearchConfig()
	cfg.RerankEnabled = false
	return cfg
}

func TestSearchRejectsBlankQuery(t *testing.T) {
	uc := NewHybridSearch(newFakeGraph(), &fakeVectors{}, &fakeEmbedder{}, nil, newSearchConfig(), nil)

	_, err := uc.Search(context.Background(), domain.SearchQuery{Text: "   "})
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestSearchFusesBothChannels(t *testing.T) {
	vectors := &fakeVectors{
		semResults: []domain.SearchResult{{DocumentID: "doc-1", ChunkID: "c1", Score: 0.8}},
		lexResults: []domain.SearchResult{{DocumentID: "doc-1", ChunkID: "c1", Score: 0.5}},
	}
	uc := NewHybridSearch(newFakeGraph(), vectors, &fakeEmbedder{}, nil, newSearchConfig(), nil)

	response, err := uc.Search(context.Background(), domain.SearchQuery{Text: "lightfield display"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(response.Results) != 1 {
		t.Fatalf("expected 1 fused result, got %d", len(response.Results))
	}
	if math.Abs(response.Results[0].Score-0.68) > 1e-9 {
		t.Fatalf("expected fused score 0.68, got %f", response.Results[0].Score)
	}
	if len(response.SemanticResults) != 1 || len(response.KeywordResults) != 1 {
		t.Fatal("expected per-channel results preserved on the response")
	}
}

func TestSearchExpandsQueryFromGraph(t *testing.T) {
	graph := newFakeGraph()
	graph.related = map[string][]string{
		"dlb": {"Diffractive Backlight", "Leia Inc"},
	}
	vectors := &fakeVectors{
		lexResults: []domain.SearchResult{{DocumentID: "doc-1", Score: 0.5}},
	}
	uc := NewHybridSearch(graph, vectors, &fakeEmbedder{}, nil, newSearchConfig(), nil)

	response, err := uc.Search(context.Background(), domain.SearchQuery{Text: "DLB"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	want := "DLB OR Diffractive Backlight OR Leia Inc"
	if response.ExpandedQuery != want {
		t.Fatalf("expected expanded query %q, got %q", want, response.ExpandedQuery)
	}
	if vectors.lastLexQuery != want {
		t.Fatalf("expected channels to receive the expanded query, got %q", vectors.lastLexQuery)
	}
}

func TestSearchSwallowsExpansionFailure(t *testing.T) {
	graph := newFakeGraph()
	graph.relatedErr = errors.New("graph down")
	vectors := &fakeVectors{
		lexResults: []domain.SearchResult{{DocumentID: "doc-1", Score: 0.5}},
	}
	uc := NewHybridSearch(graph, vectors, &fakeEmbedder{}, nil, newSearchConfig(), nil)

	response, err := uc.Search(context.Background(), domain.SearchQuery{Text: "lightfield"})
	if err != nil {
		t.Fatalf("expected expansion failure swallowed, got %v", err)
	}
	if response.ExpandedQuery != "" {
		t.Fatalf("expected no expansion, got %q", response.ExpandedQuery)
	}
}

func TestSearchDegradesToSurvivingChannel(t *testing.T) {
	vectors := &fakeVectors{
		lexResults: []domain.SearchResult{{DocumentID: "doc-1", ChunkID: "c1", Score: 0.5}},
	}
	embedder := &fakeEmbedder{err: errors.New("ollama unreachable")}
	uc := NewHybridSearch(newFakeGraph(), vectors, embedder, nil, newSearchConfig(), nil)

	response, err := uc.Search(context.Background(), domain.SearchQuery{Text: "lightfield"})
	if err != nil {
		t.Fatalf("expected degraded search to succeed, got %v", err)
	}
	if len(response.Results) != 1 {
		t.Fatalf("expected lexical results, got %d", len(response.Results))
	}
	if math.Abs(response.Results[0].Score-0.2) > 1e-9 {
		t.Fatalf("expected keyword-weighted score 0.2, got %f", response.Results[0].Score)
	}
}

func TestSearchFailsWhenBothChannelsFail(t *testing.T) {
	vectors := &fakeVectors{lexErr: errors.New("qdrant down")}
	embedder := &fakeEmbedder{err: errors.New("ollama down")}
	uc := NewHybridSearch(newFakeGraph(), vectors, embedder, nil, newSearchConfig(), nil)

	_, err := uc.Search(context.Background(), domain.SearchQuery{Text: "lightfield"})
	if !domain.IsKind(err, domain.ErrSearchFailed) {
		t.Fatalf("expected search failed, got %v", err)
	}
}

func TestSearchHonorsQueryLimit(t *testing.T) {
	vectors := &fakeVectors{
		lexResults: []domain.SearchResult{
			{DocumentID: "doc-1", ChunkID: "c1", Score: 0.9},
			{DocumentID: "doc-2", ChunkID: "c1", Score: 0.8},
			{DocumentID: "doc-3", ChunkID: "c1", Score: 0.7},
		},
	}
	uc := NewHybridSearch(newFakeGraph(), vectors, &fakeEmbedder{}, nil, newSearchConfig(), nil)

	response, err := uc.Search(context.Background(), domain.SearchQuery{Text: "lightfield", Limit: 2})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(response.Results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(response.Results))
	}
}

func TestSearchUsesRRFStrategyWhenConfigured(t *testing.T) {
	cfg := newSearchConfig()
	cfg.FusionStrategy = "rrf"
	vectors := &fakeVectors{
		semResults: []domain.SearchResult{{DocumentID: "doc-1", ChunkID: "c1", Score: 0.8}},
		lexResults: []domain.SearchResult{{DocumentID: "doc-1", ChunkID: "c1", Score: 0.5}},
	}
	uc := NewHybridSearch(newFakeGraph(), vectors, &fakeEmbedder{}, nil, cfg, nil)

	response, err := uc.Search(context.Background(), domain.SearchQuery{Text: "lightfield"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	want := 2.0 / 61.0
	if math.Abs(response.Results[0].Score-want) > 1e-9 {
		t.Fatalf("expected rrf score %f, got %f", want, response.Results[0].Score)
	}
}
