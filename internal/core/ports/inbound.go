package ports

import (
	"context"

	"github.com/avolkov/graphrag/internal/core/domain"
)

// EntityResolver canonicalizes extracted mentions into the entity registry.
type EntityResolver interface {
	Resolve(ctx context.Context, candidate domain.EntityCandidate) (*domain.Resolution, error)
	ResolveBatch(ctx context.Context, candidates []domain.EntityCandidate) (*domain.BatchResolution, error)
	FindAndMergeDuplicates(ctx context.Context, kind domain.EntityKind) (*domain.MergeReport, error)
}

// RelationshipExtractor mines typed edges from document text.
type RelationshipExtractor interface {
	ExtractFromDocument(ctx context.Context, docID string, meta *domain.DocumentMeta, chunks []string) (*domain.ExtractionResult, error)
}

// GraphPipeline runs extraction and resolution for one document end to end.
type GraphPipeline interface {
	ProcessDocument(ctx context.Context, documentID string) (*domain.ProcessReport, error)
}

// SearchService answers free-text queries through the hybrid path.
type SearchService interface {
	Search(ctx context.Context, query domain.SearchQuery) (*domain.SearchResponse, error)
}
