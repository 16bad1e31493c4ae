package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/avolkov/graphrag/internal/config"
	"github.com/avolkov/graphrag/internal/core/ports"
	"github.com/avolkov/graphrag/internal/core/usecase"
	neo4jstore "github.com/avolkov/graphrag/internal/infrastructure/graph/neo4j"
	"github.com/avolkov/graphrag/internal/infrastructure/llm/ollama"
	"github.com/avolkov/graphrag/internal/infrastructure/queue/nats"
	"github.com/avolkov/graphrag/internal/infrastructure/rerank/crossencoder"
	"github.com/avolkov/graphrag/internal/infrastructure/repository/postgres"
	"github.com/avolkov/graphrag/internal/infrastructure/resilience"
	"github.com/avolkov/graphrag/internal/infrastructure/vector/qdrant"
)

type App struct {
	Config config.Config
	Logger *slog.Logger

	Graph    ports.GraphStore
	Docs     ports.DocumentReader
	Queue    *nats.Queue
	SearchUC ports.SearchService
	Resolver ports.EntityResolver
	Pipeline ports.GraphPipeline

	closeFn func()
}

func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	repo := postgres.NewGraphRepository(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	exec := resilience.NewExecutor(resilience.DefaultConfig(), logger)

	var graph ports.GraphStore = repo
	var closeGraph func()
	if cfg.GraphBackend == "neo4j" {
		store, err := neo4jstore.NewStore(cfg.Neo4jURI, cfg.Neo4jUser, cfg.Neo4jPassword, cfg.Neo4jDatabase)
		if err != nil {
			return nil, fmt.Errorf("open neo4j: %w", err)
		}
		if err := store.EnsureIndexes(ctx); err != nil {
			return nil, fmt.Errorf("ensure neo4j indexes: %w", err)
		}
		graph = store
		closeGraph = func() { _ = store.Close(context.Background()) }
	}

	queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
		ResilienceExecutor: exec,
		Logger:             logger,
	})
	if err != nil {
		return nil, fmt.Errorf("init message queue: %w", err)
	}

	embedder := ollama.New(cfg.OllamaURL, cfg.OllamaEmbedModel, exec)
	vectors := qdrant.New(cfg.QdrantURL, cfg.QdrantCollection)

	var reranker ports.Reranker
	if cfg.RerankEnabled {
		reranker = crossencoder.New(cfg.RerankerURL, cfg.RerankModel, cfg.RerankRPS, exec)
	}
	optimizer := usecase.NewOptimizedReranker(reranker, usecase.OptimizedRerankConfig{
		MaxInitialCandidates:  cfg.MaxInitialCandidates,
		EarlyFilterThreshold:  cfg.EarlyFilterThreshold,
		MinQualityCandidates:  cfg.MinQualityCandidates,
		DiversityPreservation: cfg.DiversityPreservation,
	}, logger)

	resolver := usecase.NewEntityResolver(graph, usecase.ResolverConfig{
		ExactThreshold:      cfg.ExactMatchThreshold,
		FuzzyThreshold:      cfg.FuzzyMatchThreshold,
		ContextualThreshold: cfg.ContextualMatchThreshold,
	}, logger)
	extractor := usecase.NewRelationshipExtractor(logger)
	pipeline := usecase.NewGraphPipeline(repo, extractor, resolver, graph, cfg.BatchSize, logger)

	hybrid := usecase.NewHybridSearch(graph, vectors, embedder, optimizer, usecase.HybridSearchConfig{
		SemanticWeight: cfg.SemanticWeight,
		KeywordWeight:  cfg.KeywordWeight,
		Threshold:      cfg.Threshold,
		MaxResults:     cfg.MaxResults,
		FinalLimit:     cfg.FinalLimit,
		FusionStrategy: cfg.FusionStrategy,
		RRFK:           cfg.FusionRRFK,
		RerankEnabled:  cfg.RerankEnabled,
		TimeoutMS:      cfg.TimeoutMS,
	}, logger)

	cache := usecase.NewMemoryResultCache()
	cached := usecase.NewCachedSearch(hybrid, vectors, cache, time.Duration(cfg.CacheTTLSeconds)*time.Second, logger)

	return &App{
		Config: cfg,
		Logger: logger,

		Graph:    graph,
		Docs:     repo,
		Queue:    queue,
		SearchUC: cached,
		Resolver: resolver,
		Pipeline: pipeline,

		closeFn: func() {
			queue.Close()
			if closeGraph != nil {
				closeGraph()
			}
			_ = db.Close()
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}
