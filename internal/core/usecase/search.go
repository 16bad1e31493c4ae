package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/avolkov/graphrag/internal/core/domain"
	"github.com/avolkov/graphrag/internal/core/ports"
)

// expansionLimit caps how many related entity names query expansion appends.
const expansionLimit = 3

type HybridSearchConfig struct {
	SemanticWeight float64
	KeywordWeight  float64
	Threshold      float64
	// MaxResults is the per-channel candidate pull before fusion.
	MaxResults int
	FinalLimit int
	// FusionStrategy is "weighted" (default) or "rrf".
	FusionStrategy string
	RRFK           int
	RerankEnabled  bool
	// TimeoutMS bounds the whole search; 0 disables the deadline.
	TimeoutMS int
}

func DefaultHybridSearchConfig() HybridSearchConfig {
	return HybridSearchConfig{
		SemanticWeight: 0.6,
		KeywordWeight:  0.4,
		Threshold:      0.35,
		MaxResults:     50,
		FinalLimit:     10,
		FusionStrategy: "weighted",
		RRFK:           60,
		RerankEnabled:  true,
		TimeoutMS:      5000,
	}
}

// HybridSearchUC answers free-text queries: best-effort graph expansion,
// parallel semantic+lexical retrieval, fusion, optimized reranking.
type HybridSearchUC struct {
	graph     ports.GraphStore
	vectors   ports.VectorStore
	embedder  ports.Embedder
	optimizer *OptimizedRerankerUC
	cfg       HybridSearchConfig
	logger    *slog.Logger
}

func NewHybridSearch(
	graph ports.GraphStore,
	vectors ports.VectorStore,
	embedder ports.Embedder,
	optimizer *OptimizedRerankerUC,
	cfg HybridSearchConfig,
	logger *slog.Logger,
) *HybridSearchUC {
	if cfg.SemanticWeight == 0 && cfg.KeywordWeight == 0 {
		cfg = DefaultHybridSearchConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &HybridSearchUC{
		graph:     graph,
		vectors:   vectors,
		embedder:  embedder,
		optimizer: optimizer,
		cfg:       cfg,
		logger:    logger,
	}
}

func (uc *HybridSearchUC) Search(ctx context.Context, query domain.SearchQuery) (*domain.SearchResponse, error) {
	started := time.Now()

	if strings.TrimSpace(query.Text) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "search", fmt.Errorf("empty query"))
	}
	if uc.cfg.TimeoutMS > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(uc.cfg.TimeoutMS)*time.Millisecond)
		defer cancel()
	}

	limit := query.Limit
	if limit <= 0 {
		limit = uc.cfg.FinalLimit
	}
	threshold := query.Threshold
	if threshold <= 0 {
		threshold = uc.cfg.Threshold
	}

	expandedText := uc.expandQuery(ctx, query.Text)

	semantic, lexical, degraded, err := uc.retrieveBoth(ctx, expandedText, threshold, query.Filter)
	if err != nil {
		return nil, domain.WrapError(domain.ErrSearchFailed, "search", err)
	}

	var fused []domain.SearchResult
	if uc.cfg.FusionStrategy == "rrf" {
		fused = fuseRRF(semantic, lexical, uc.cfg.RRFK)
	} else {
		fused = fuseWeighted(semantic, lexical, uc.cfg.SemanticWeight, uc.cfg.KeywordWeight)
	}

	response := &domain.SearchResponse{
		SemanticResults:  semantic,
		KeywordResults:   lexical,
		DegradedChannels: degraded,
	}
	if expandedText != query.Text {
		response.ExpandedQuery = expandedText
	}

	if uc.cfg.RerankEnabled && uc.optimizer != nil && len(fused) > 0 {
		// Reranking sees the raw query, not the expanded one.
		outcome := uc.optimizer.Rerank(ctx, query.Text, fused, limit)
		response.Results = outcome.Results
		response.Reranked = outcome.Strategy == domain.StrategyOptimized
		response.RerankStrategy = outcome.Strategy
		metrics := outcome.Metrics
		response.RerankMetrics = &metrics
	} else {
		response.Results = trimResults(fused, limit)
	}

	response.ExecutionTime = time.Since(started)
	return response, nil
}

// expandQuery attempts a one-hop relationship lookup for the raw query and
// appends related entity names as an OR-expansion. Expansion is best-effort:
// any failure falls back to the original query.
func (uc *HybridSearchUC) expandQuery(ctx context.Context, text string) string {
	names, err := uc.graph.RelatedEntityNames(ctx, text, expansionLimit)
	if err != nil {
		uc.logger.Debug("query expansion skipped", "error", err)
		return text
	}
	if len(names) == 0 {
		return text
	}
	return text + " OR " + strings.Join(names, " OR ")
}

// retrieveBoth runs the two channels concurrently under identical filters.
// One failing channel degrades to its counterpart's results; both failing is
// the one condition that fails the search.
func (uc *HybridSearchUC) retrieveBoth(ctx context.Context, text string, threshold float64, filter domain.SearchFilter) (semantic, lexical []domain.SearchResult, degraded []string, err error) {
	var semErr, kwErr error

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		vector, embedErr := uc.embedder.EmbedQuery(gctx, text)
		if embedErr != nil {
			semErr = domain.WrapError(domain.ErrUpstream, "embed query", embedErr)
			return nil
		}
		results, searchErr := uc.vectors.Search(gctx, vector, uc.cfg.MaxResults, threshold, filter)
		if searchErr != nil {
			semErr = domain.WrapError(domain.ErrUpstream, "semantic search", searchErr)
			return nil
		}
		semantic = results
		return nil
	})
	g.Go(func() error {
		results, searchErr := uc.vectors.SearchLexical(gctx, text, uc.cfg.MaxResults, filter)
		if searchErr != nil {
			kwErr = domain.WrapError(domain.ErrUpstream, "lexical search", searchErr)
			return nil
		}
		lexical = results
		return nil
	})
	_ = g.Wait()

	if semErr != nil {
		degraded = append(degraded, "semantic")
		uc.logger.Warn("semantic channel degraded", "error", semErr)
	}
	if kwErr != nil {
		degraded = append(degraded, "keyword")
		uc.logger.Warn("lexical channel degraded", "error", kwErr)
	}
	if semErr != nil && kwErr != nil {
		return nil, nil, degraded, fmt.Errorf("both channels failed: %w; %w", semErr, kwErr)
	}
	return semantic, lexical, degraded, nil
}
