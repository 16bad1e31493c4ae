package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/avolkov/graphrag/internal/core/domain"
	"github.com/avolkov/graphrag/internal/core/ports"
)

// defaultResolveBatchSize bounds one ResolveBatch call when no batch size is
// configured.
const defaultResolveBatchSize = 100

// GraphPipelineUC runs extraction and resolution for one document: mine
// tuples, resolve entity candidates into the registry, persist edges
// idempotently.
type GraphPipelineUC struct {
	docs      ports.DocumentReader
	extractor ports.RelationshipExtractor
	resolver  ports.EntityResolver
	graph     ports.GraphStore
	batchSize int
	logger    *slog.Logger
}

func NewGraphPipeline(
	docs ports.DocumentReader,
	extractor ports.RelationshipExtractor,
	resolver ports.EntityResolver,
	graph ports.GraphStore,
	batchSize int,
	logger *slog.Logger,
) *GraphPipelineUC {
	if batchSize <= 0 {
		batchSize = defaultResolveBatchSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &GraphPipelineUC{
		docs:      docs,
		extractor: extractor,
		resolver:  resolver,
		graph:     graph,
		batchSize: batchSize,
		logger:    logger,
	}
}

func (uc *GraphPipelineUC) ProcessDocument(ctx context.Context, documentID string) (*domain.ProcessReport, error) {
	meta, err := uc.docs.GetDocumentMeta(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("fetch document meta: %w", err)
	}
	chunks, err := uc.docs.GetDocumentChunks(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("fetch document chunks: %w", err)
	}

	extraction, err := uc.extractor.ExtractFromDocument(ctx, documentID, meta, chunks)
	if err != nil {
		return nil, fmt.Errorf("extract relationships: %w", err)
	}

	batch, err := uc.resolveInBatches(ctx, extraction.Entities)
	if err != nil {
		return nil, fmt.Errorf("resolve entities: %w", err)
	}

	report := &domain.ProcessReport{EntitiesFailed: batch.Failed}
	for _, resolution := range batch.Resolutions {
		if resolution.Created {
			report.EntitiesCreated++
		} else if resolution.Entity != nil {
			report.EntitiesMerged++
		}
	}

	report.EdgesInserted, report.EdgesSkipped = uc.persistEdges(ctx, documentID, extraction.Relationships, batch)
	uc.logger.Info("document graphed",
		"document", documentID,
		"entities_created", report.EntitiesCreated,
		"entities_merged", report.EntitiesMerged,
		"entities_failed", report.EntitiesFailed,
		"edges_inserted", report.EdgesInserted,
		"edges_skipped", report.EdgesSkipped)
	return report, nil
}

// resolveInBatches feeds candidates to the resolver in batchSize slices and
// folds the partial results into one aggregate.
func (uc *GraphPipelineUC) resolveInBatches(ctx context.Context, candidates []domain.EntityCandidate) (*domain.BatchResolution, error) {
	batch := &domain.BatchResolution{}
	for start := 0; start < len(candidates); start += uc.batchSize {
		end := start + uc.batchSize
		if end > len(candidates) {
			end = len(candidates)
		}
		part, err := uc.resolver.ResolveBatch(ctx, candidates[start:end])
		if err != nil {
			return nil, err
		}
		batch.Succeeded += part.Succeeded
		batch.Failed += part.Failed
		batch.Resolutions = append(batch.Resolutions, part.Resolutions...)
	}
	return batch, nil
}

// persistEdges resolves textual placeholders to node ids and writes edges
// with an existence check first, so re-processing a document never duplicates
// a (src, relation, dst) triple. Per-edge failures are logged and skipped.
func (uc *GraphPipelineUC) persistEdges(ctx context.Context, documentID string, rels []domain.ExtractedRelationship, batch *domain.BatchResolution) (inserted, skipped int) {
	names := nameIndex(batch)

	for _, rel := range rels {
		src, ok := uc.resolveRef(ctx, documentID, rel.SrcName, rel.SrcType, names)
		if !ok {
			skipped++
			continue
		}
		dst, ok := uc.resolveRef(ctx, documentID, rel.DstName, rel.DstType, names)
		if !ok {
			skipped++
			continue
		}

		exists, err := uc.graph.EdgeExists(ctx, src, rel.Relation, dst)
		if err != nil {
			skipped++
			uc.logger.Warn("edge existence check failed", "relation", rel.Relation, "error", err)
			continue
		}
		if exists {
			skipped++
			continue
		}

		edge := domain.Relationship{
			ID:                 uuid.NewString(),
			Src:                src,
			Relation:           rel.Relation,
			Dst:                dst,
			Weight:             rel.Weight,
			EvidenceText:       rel.EvidenceText,
			EvidenceDocumentID: documentID,
			CreatedAt:          time.Now().UTC(),
		}
		if err := uc.graph.CreateEdge(ctx, &edge); err != nil {
			skipped++
			uc.logger.Warn("edge insert failed", "relation", rel.Relation, "error", err)
			continue
		}
		inserted++
	}
	return inserted, skipped
}

// resolveRef maps an extracted name to a node reference: documents resolve to
// the current document id, entity names resolve through the batch's
// resolutions, then exact name lookup, then the alias table.
func (uc *GraphPipelineUC) resolveRef(ctx context.Context, documentID, name string, nodeType domain.NodeType, names map[string]string) (domain.NodeRef, bool) {
	if nodeType == domain.NodeDocument {
		return domain.NodeRef{ID: documentID, Type: domain.NodeDocument}, true
	}
	if name == "" {
		return domain.NodeRef{}, false
	}

	if id, ok := names[normalizeName(name)]; ok {
		return domain.NodeRef{ID: id, Type: domain.NodeEntity}, true
	}

	for _, kind := range []domain.EntityKind{domain.KindPerson, domain.KindOrg, domain.KindProduct, domain.KindAlgorithm, domain.KindMaterial, domain.KindConcept} {
		if entity, err := uc.graph.GetEntityByName(ctx, name, kind); err == nil {
			return domain.NodeRef{ID: entity.ID, Type: domain.NodeEntity}, true
		}
		if alias, err := uc.graph.GetAliasByText(ctx, name, kind); err == nil {
			return domain.NodeRef{ID: alias.EntityID, Type: domain.NodeEntity}, true
		}
	}

	uc.logger.Debug("unresolvable edge endpoint", "name", name)
	return domain.NodeRef{}, false
}

func nameIndex(batch *domain.BatchResolution) map[string]string {
	names := make(map[string]string, len(batch.Resolutions))
	for _, res := range batch.Resolutions {
		if res.Entity == nil {
			continue
		}
		names[normalizeName(res.Entity.Name)] = res.Entity.ID
	}
	return names
}
