package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/avolkov/graphrag/internal/core/domain"
	"github.com/avolkov/graphrag/internal/core/ports"
)

// fakeGraph is an in-memory GraphStore used across the usecase tests.
type fakeGraph struct {
	mu       sync.Mutex
	entities map[string]*domain.Entity
	aliases  map[string]*domain.Alias
	edges    map[string]*domain.Relationship

	createEntityErrFor string
	related            map[string][]string
	relatedErr         error
}

func newFakeGraph() *fakeGraph {
	return &fakeGraph{
		entities: make(map[string]*domain.Entity),
		aliases:  make(map[string]*domain.Alias),
		edges:    make(map[string]*domain.Relationship),
	}
}

func (g *fakeGraph) CreateEntity(_ context.Context, entity *domain.Entity) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.createEntityErrFor != "" && entity.Name == g.createEntityErrFor {
		return errors.New("create refused")
	}
	clone := *entity
	g.entities[entity.ID] = &clone
	return nil
}

func (g *fakeGraph) GetEntityByID(_ context.Context, id string) (*domain.Entity, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	entity, ok := g.entities[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrEntityNotFound, "get entity", errors.New(id))
	}
	clone := *entity
	return &clone, nil
}

func (g *fakeGraph) GetEntityByName(_ context.Context, name string, kind domain.EntityKind) (*domain.Entity, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, entity := range g.entities {
		if entity.Kind == kind && strings.EqualFold(entity.Name, name) {
			clone := *entity
			return &clone, nil
		}
	}
	return nil, domain.WrapError(domain.ErrEntityNotFound, "get entity by name", errors.New(name))
}

func (g *fakeGraph) ListEntitiesByKind(_ context.Context, kind domain.EntityKind, limit int) ([]*domain.Entity, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []*domain.Entity
	for _, entity := range g.entities {
		if entity.Kind == kind {
			clone := *entity
			out = append(out, &clone)
		}
	}
	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j].MentionCount > out[i].MentionCount {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (g *fakeGraph) UpdateEntityStats(_ context.Context, id string, mentionCount int, authorityScore float64, description string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	entity, ok := g.entities[id]
	if !ok {
		return domain.WrapError(domain.ErrEntityNotFound, "update entity stats", errors.New(id))
	}
	entity.MentionCount = mentionCount
	entity.AuthorityScore = authorityScore
	entity.Description = description
	return nil
}

func (g *fakeGraph) DeleteEntity(_ context.Context, id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.entities, id)
	return nil
}

func (g *fakeGraph) CreateAlias(_ context.Context, alias *domain.Alias) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	clone := *alias
	g.aliases[alias.ID] = &clone
	return nil
}

func (g *fakeGraph) GetAliasByText(_ context.Context, text string, kind domain.EntityKind) (*domain.Alias, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	var best *domain.Alias
	for _, alias := range g.aliases {
		if !strings.EqualFold(alias.Alias, text) {
			continue
		}
		entity, ok := g.entities[alias.EntityID]
		if !ok || entity.Kind != kind {
			continue
		}
		if best == nil || alias.Confidence > best.Confidence {
			best = alias
		}
	}
	if best == nil {
		return nil, domain.WrapError(domain.ErrEntityNotFound, "get alias", errors.New(text))
	}
	clone := *best
	return &clone, nil
}

func (g *fakeGraph) ListAliasesByEntity(_ context.Context, entityID string) ([]domain.Alias, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []domain.Alias
	for _, alias := range g.aliases {
		if alias.EntityID == entityID {
			out = append(out, *alias)
		}
	}
	return out, nil
}

func (g *fakeGraph) ReassignAliases(_ context.Context, fromEntityID, toEntityID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, alias := range g.aliases {
		if alias.EntityID == fromEntityID {
			alias.EntityID = toEntityID
		}
	}
	return nil
}

func (g *fakeGraph) EdgeExists(_ context.Context, src domain.NodeRef, relation domain.RelationType, dst domain.NodeRef) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	key := domain.Relationship{Src: src, Relation: relation, Dst: dst}.TripleKey()
	_, ok := g.edges[key]
	return ok, nil
}

func (g *fakeGraph) CreateEdge(_ context.Context, edge *domain.Relationship) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	clone := *edge
	g.edges[edge.TripleKey()] = &clone
	return nil
}

func (g *fakeGraph) RelatedEntityNames(_ context.Context, name string, limit int) ([]string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.relatedErr != nil {
		return nil, g.relatedErr
	}
	names := g.related[strings.ToLower(name)]
	if limit > 0 && len(names) > limit {
		names = names[:limit]
	}
	return names, nil
}

func (g *fakeGraph) entityCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.entities)
}

func (g *fakeGraph) edgeCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.edges)
}

type fakeDocs struct {
	meta    *domain.DocumentMeta
	chunks  []string
	metaErr error
}

func (d *fakeDocs) GetDocumentMeta(_ context.Context, id string) (*domain.DocumentMeta, error) {
	if d.metaErr != nil {
		return nil, d.metaErr
	}
	meta := *d.meta
	meta.ID = id
	return &meta, nil
}

func (d *fakeDocs) GetDocumentChunks(_ context.Context, _ string) ([]string, error) {
	return d.chunks, nil
}

type fakeVectors struct {
	mu sync.Mutex

	semResults []domain.SearchResult
	semErr     error
	lexResults []domain.SearchResult
	lexErr     error

	lastLexQuery  string
	lastLexFilter domain.SearchFilter
	lexCalls      int
}

func (v *fakeVectors) Search(_ context.Context, _ []float32, _ int, _ float64, _ domain.SearchFilter) ([]domain.SearchResult, error) {
	if v.semErr != nil {
		return nil, v.semErr
	}
	return v.semResults, nil
}

func (v *fakeVectors) SearchLexical(_ context.Context, queryText string, _ int, filter domain.SearchFilter) ([]domain.SearchResult, error) {
	v.mu.Lock()
	v.lastLexQuery = queryText
	v.lastLexFilter = filter
	v.lexCalls++
	v.mu.Unlock()
	if v.lexErr != nil {
		return nil, v.lexErr
	}
	return v.lexResults, nil
}

type fakeEmbedder struct {
	vector []float32
	err    error
}

func (e *fakeEmbedder) EmbedQuery(_ context.Context, _ string) ([]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	if e.vector == nil {
		return []float32{0.1, 0.2, 0.3}, nil
	}
	return e.vector, nil
}

type fakeReranker struct {
	ranked    []ports.RankedIndex
	err       error
	panicked  bool
	calls     int
	documents []string
}

func (r *fakeReranker) Rerank(_ context.Context, _ string, documents []string, _ int) ([]ports.RankedIndex, error) {
	r.calls++
	r.documents = documents
	if r.panicked {
		panic("reranker exploded")
	}
	return r.ranked, r.err
}

// countingResolver wraps a resolver and records the slice size of every
// ResolveBatch call.
type countingResolver struct {
	ports.EntityResolver
	batchSizes []int
}

func (r *countingResolver) ResolveBatch(ctx context.Context, candidates []domain.EntityCandidate) (*domain.BatchResolution, error) {
	r.batchSizes = append(r.batchSizes, len(candidates))
	return r.EntityResolver.ResolveBatch(ctx, candidates)
}

type fakeInnerSearch struct {
	response *domain.SearchResponse
	err      error
	calls    int
}

func (s *fakeInnerSearch) Search(_ context.Context, _ domain.SearchQuery) (*domain.SearchResponse, error) {
	s.calls++
	return s.response, s.err
}
