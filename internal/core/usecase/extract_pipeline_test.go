package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/avolkov/graphrag/internal/core/domain"
)

func newTestPipeline(docs *fakeDocs, graph *fakeGraph) *GraphPipelineUC {
	resolver := NewEntityResolver(graph, DefaultResolverConfig(), nil)
	extractor := NewRelationshipExtractor(nil)
	return NewGraphPipeline(docs, extractor, resolver, graph, 0, nil)
}

func TestProcessDocumentPersistsEntitiesAndEdges(t *testing.T) {
	graph := newFakeGraph()
	docs := &fakeDocs{
		meta: &domain.DocumentMeta{
			Title:   "Diffractive backlight",
			Authors: []string{"David Fattal"},
		},
		chunks: []string{"The waveguide was invented by David Fattal."},
	}
	pipeline := newTestPipeline(docs, graph)

	report, err := pipeline.ProcessDocument(context.Background(), "doc-1")
	if err != nil {
		t.Fatalf("process: %v", err)
	}

	if graph.entityCount() != 1 {
		t.Fatalf("expected 1 resolved entity, got %d", graph.entityCount())
	}
	// author_of from metadata plus inventor_of from text.
	if graph.edgeCount() != 2 {
		t.Fatalf("expected 2 edges, got %d", graph.edgeCount())
	}
	if report.EntitiesCreated != 1 || report.EntitiesFailed != 0 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if report.EdgesInserted != 2 || report.EdgesSkipped != 0 {
		t.Fatalf("expected 2 inserted edges in report, got %+v", report)
	}
}

func TestProcessDocumentIsIdempotentForEdges(t *testing.T) {
	graph := newFakeGraph()
	docs := &fakeDocs{
		meta: &domain.DocumentMeta{
			Title:   "Diffractive backlight",
			Authors: []string{"David Fattal"},
		},
		chunks: []string{"The waveguide was invented by David Fattal."},
	}
	pipeline := newTestPipeline(docs, graph)
	ctx := context.Background()

	if _, err := pipeline.ProcessDocument(ctx, "doc-1"); err != nil {
		t.Fatalf("first run: %v", err)
	}
	edgesAfterFirst := graph.edgeCount()

	report, err := pipeline.ProcessDocument(ctx, "doc-1")
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if graph.edgeCount() != edgesAfterFirst {
		t.Fatalf("expected edge count unchanged at %d, got %d", edgesAfterFirst, graph.edgeCount())
	}
	if graph.entityCount() != 1 {
		t.Fatalf("expected no duplicate entities, got %d", graph.entityCount())
	}
	if report.EdgesInserted != 0 || report.EdgesSkipped != 2 {
		t.Fatalf("expected second run to skip both edges, got %+v", report)
	}
	if report.EntitiesMerged != 1 || report.EntitiesCreated != 0 {
		t.Fatalf("expected second run to merge, got %+v", report)
	}
}

func TestProcessDocumentResolvesInConfiguredBatches(t *testing.T) {
	graph := newFakeGraph()
	resolver := &countingResolver{EntityResolver: NewEntityResolver(graph, DefaultResolverConfig(), nil)}
	docs := &fakeDocs{
		meta: &domain.DocumentMeta{
			Title:   "Diffractive backlight",
			Authors: []string{"David Fattal", "Pierre St Hilaire", "Zhen Peng"},
		},
	}
	pipeline := NewGraphPipeline(docs, NewRelationshipExtractor(nil), resolver, graph, 2, nil)

	if _, err := pipeline.ProcessDocument(context.Background(), "doc-1"); err != nil {
		t.Fatalf("process: %v", err)
	}
	if len(resolver.batchSizes) != 2 || resolver.batchSizes[0] != 2 || resolver.batchSizes[1] != 1 {
		t.Fatalf("expected candidate batches of 2 and 1, got %v", resolver.batchSizes)
	}
	if graph.entityCount() != 3 {
		t.Fatalf("expected 3 resolved entities, got %d", graph.entityCount())
	}
}

func TestProcessDocumentPropagatesMissingDocument(t *testing.T) {
	docs := &fakeDocs{
		metaErr: domain.WrapError(domain.ErrDocumentNotFound, "get document", errors.New("doc-9")),
	}
	pipeline := newTestPipeline(docs, newFakeGraph())

	_, err := pipeline.ProcessDocument(context.Background(), "doc-9")
	if !domain.IsKind(err, domain.ErrDocumentNotFound) {
		t.Fatalf("expected document not found, got %v", err)
	}
}
