package ports

import (
	"context"
	"time"

	"github.com/avolkov/graphrag/internal/core/domain"
)

// GraphStore persists the knowledge-graph tables: entities, aliases, edges.
type GraphStore interface {
	CreateEntity(ctx context.Context, entity *domain.Entity) error
	GetEntityByID(ctx context.Context, id string) (*domain.Entity, error)
	GetEntityByName(ctx context.Context, name string, kind domain.EntityKind) (*domain.Entity, error)
	// ListEntitiesByKind returns up to limit entities ordered by mention_count desc.
	ListEntitiesByKind(ctx context.Context, kind domain.EntityKind, limit int) ([]*domain.Entity, error)
	UpdateEntityStats(ctx context.Context, id string, mentionCount int, authorityScore float64, description string) error
	DeleteEntity(ctx context.Context, id string) error

	CreateAlias(ctx context.Context, alias *domain.Alias) error
	GetAliasByText(ctx context.Context, alias string, kind domain.EntityKind) (*domain.Alias, error)
	ListAliasesByEntity(ctx context.Context, entityID string) ([]domain.Alias, error)
	ReassignAliases(ctx context.Context, fromEntityID, toEntityID string) error

	// EdgeExists reports whether an edge with the same (src, relation, dst)
	// triple is already stored.
	EdgeExists(ctx context.Context, src domain.NodeRef, relation domain.RelationType, dst domain.NodeRef) (bool, error)
	CreateEdge(ctx context.Context, edge *domain.Relationship) error
	// RelatedEntityNames returns names of entities one hop away from any entity
	// whose name or alias matches the given text. Used by query expansion.
	RelatedEntityNames(ctx context.Context, name string, limit int) ([]string, error)
}

// VectorStore is the dual-index document store: dense vector similarity plus
// lexical full-text relevance, both under the same filter semantics.
type VectorStore interface {
	Search(ctx context.Context, queryVector []float32, limit int, threshold float64, filter domain.SearchFilter) ([]domain.SearchResult, error)
	SearchLexical(ctx context.Context, queryText string, limit int, filter domain.SearchFilter) ([]domain.SearchResult, error)
}

// Embedder builds the query vector. Chunk embeddings are precomputed upstream.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// RankedIndex maps a reranked position back to the input slice.
type RankedIndex struct {
	Index     int
	Relevance float64
}

// Reranker is the external precision reranking capability. It is rate-limited
// and may fail; every call site must have a fallback path.
type Reranker interface {
	Rerank(ctx context.Context, query string, documents []string, topN int) ([]RankedIndex, error)
}

// DocumentReader exposes the document metadata the graph pipeline consumes.
type DocumentReader interface {
	GetDocumentMeta(ctx context.Context, id string) (*domain.DocumentMeta, error)
	GetDocumentChunks(ctx context.Context, id string) ([]string, error)
}

// ExtractionQueue delivers document ids whose text is ready for graph mining.
type ExtractionQueue interface {
	PublishDocumentExtracted(ctx context.Context, documentID string) error
	SubscribeDocumentExtracted(ctx context.Context, handler func(context.Context, string) error) error
}

// ResultCache stores fused search responses keyed by normalized query+filters.
// Entries are immutable once written.
type ResultCache interface {
	Get(key string) (*domain.SearchResponse, bool)
	Put(key string, response *domain.SearchResponse, ttl time.Duration)
}
