package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/avolkov/graphrag/internal/core/domain"
	"github.com/avolkov/graphrag/internal/core/ports"
)

// fuzzyCandidateSample bounds how many same-kind entities the fuzzy and
// contextual strategies compare against per resolution.
const fuzzyCandidateSample = 50

// weakAliasLimit caps how many near-miss matches receive weak aliases when a
// new entity is created despite partial matches.
const weakAliasLimit = 3

// ResolverConfig carries the tunable matching thresholds. The defaults are
// empirically chosen and exposed through configuration rather than hardcoded.
type ResolverConfig struct {
	ExactThreshold      float64
	FuzzyThreshold      float64
	ContextualThreshold float64
	DefaultAliasScore   float64
}

func DefaultResolverConfig() ResolverConfig {
	return ResolverConfig{
		ExactThreshold:      0.95,
		FuzzyThreshold:      0.85,
		ContextualThreshold: 0.7,
		DefaultAliasScore:   0.8,
	}
}

type EntityResolverUC struct {
	graph  ports.GraphStore
	cfg    ResolverConfig
	logger *slog.Logger
}

func NewEntityResolver(graph ports.GraphStore, cfg ResolverConfig, logger *slog.Logger) *EntityResolverUC {
	def := DefaultResolverConfig()
	if cfg.ExactThreshold <= 0 {
		cfg.ExactThreshold = def.ExactThreshold
	}
	if cfg.FuzzyThreshold <= 0 {
		cfg.FuzzyThreshold = def.FuzzyThreshold
	}
	if cfg.ContextualThreshold <= 0 {
		cfg.ContextualThreshold = def.ContextualThreshold
	}
	if cfg.DefaultAliasScore <= 0 {
		cfg.DefaultAliasScore = def.DefaultAliasScore
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &EntityResolverUC{graph: graph, cfg: cfg, logger: logger}
}

// Resolve canonicalizes one candidate mention. A candidate missing name or
// kind yields an empty resolution, never an error.
func (uc *EntityResolverUC) Resolve(ctx context.Context, candidate domain.EntityCandidate) (*domain.Resolution, error) {
	if candidate.Name == "" || !candidate.Kind.Valid() {
		return &domain.Resolution{MatchType: domain.MatchNone}, nil
	}

	matches := uc.collectMatches(ctx, candidate)
	if len(matches) == 0 {
		return uc.createEntity(ctx, candidate, nil)
	}

	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	best := matches[0]

	switch {
	case best.Score >= uc.cfg.ExactThreshold:
		return uc.mergeInto(ctx, best, candidate, false)
	case best.Score >= uc.cfg.FuzzyThreshold:
		return uc.mergeInto(ctx, best, candidate, true)
	default:
		return uc.createEntity(ctx, candidate, matches)
	}
}

// ResolveBatch processes candidates sequentially with per-item isolation: a
// failing candidate is logged and skipped, never aborting the batch.
func (uc *EntityResolverUC) ResolveBatch(ctx context.Context, candidates []domain.EntityCandidate) (*domain.BatchResolution, error) {
	batch := &domain.BatchResolution{}
	for _, candidate := range candidates {
		if err := ctx.Err(); err != nil {
			return batch, err
		}
		resolution, err := uc.Resolve(ctx, candidate)
		if err != nil {
			batch.Failed++
			uc.logger.Warn("entity resolution failed",
				"name", candidate.Name, "kind", candidate.Kind, "error", err)
			continue
		}
		batch.Succeeded++
		batch.Resolutions = append(batch.Resolutions, *resolution)
	}
	return batch, nil
}

// collectMatches runs the four strategies in parallel and merges their votes,
// deduplicated by (entity id, match type). Strategy failures are swallowed:
// a degraded match list beats a failed resolution.
func (uc *EntityResolverUC) collectMatches(ctx context.Context, candidate domain.EntityCandidate) []domain.EntityMatch {
	var (
		mu      sync.Mutex
		matches []domain.EntityMatch
	)
	add := func(found []domain.EntityMatch) {
		mu.Lock()
		matches = append(matches, found...)
		mu.Unlock()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { add(uc.exactMatches(gctx, candidate)); return nil })
	g.Go(func() error { add(uc.fuzzyMatches(gctx, candidate)); return nil })
	g.Go(func() error { add(uc.aliasMatches(gctx, candidate)); return nil })
	g.Go(func() error { add(uc.contextualMatches(gctx, candidate)); return nil })
	_ = g.Wait()

	return dedupeMatches(matches)
}

func (uc *EntityResolverUC) exactMatches(ctx context.Context, candidate domain.EntityCandidate) []domain.EntityMatch {
	entity, err := uc.graph.GetEntityByName(ctx, candidate.Name, candidate.Kind)
	if err != nil {
		if !domain.IsKind(err, domain.ErrEntityNotFound) {
			uc.logger.Warn("exact match lookup failed", "name", candidate.Name, "error", err)
		}
		return nil
	}
	return []domain.EntityMatch{{Entity: entity, Type: domain.MatchExact, Score: 1.0}}
}

func (uc *EntityResolverUC) fuzzyMatches(ctx context.Context, candidate domain.EntityCandidate) []domain.EntityMatch {
	sample, err := uc.graph.ListEntitiesByKind(ctx, candidate.Kind, fuzzyCandidateSample)
	if err != nil {
		uc.logger.Warn("fuzzy match sample failed", "kind", candidate.Kind, "error", err)
		return nil
	}
	var out []domain.EntityMatch
	for _, entity := range sample {
		score := nameSimilarity(candidate.Name, entity.Name)
		if score >= uc.cfg.FuzzyThreshold {
			out = append(out, domain.EntityMatch{Entity: entity, Type: domain.MatchFuzzy, Score: score})
		}
	}
	return out
}

func (uc *EntityResolverUC) aliasMatches(ctx context.Context, candidate domain.EntityCandidate) []domain.EntityMatch {
	alias, err := uc.graph.GetAliasByText(ctx, candidate.Name, candidate.Kind)
	if err != nil {
		if !domain.IsKind(err, domain.ErrEntityNotFound) {
			uc.logger.Warn("alias lookup failed", "name", candidate.Name, "error", err)
		}
		return nil
	}
	entity, err := uc.graph.GetEntityByID(ctx, alias.EntityID)
	if err != nil {
		return nil
	}
	score := alias.Confidence
	if score <= 0 {
		score = uc.cfg.DefaultAliasScore
	}
	return []domain.EntityMatch{{Entity: entity, Type: domain.MatchAlias, Score: score}}
}

func (uc *EntityResolverUC) contextualMatches(ctx context.Context, candidate domain.EntityCandidate) []domain.EntityMatch {
	if candidate.Description == "" {
		return nil
	}
	keywords := descriptionKeywords(candidate.Description)
	if len(keywords) == 0 {
		return nil
	}
	sample, err := uc.graph.ListEntitiesByKind(ctx, candidate.Kind, fuzzyCandidateSample)
	if err != nil {
		uc.logger.Warn("contextual match sample failed", "kind", candidate.Kind, "error", err)
		return nil
	}
	var out []domain.EntityMatch
	for _, entity := range sample {
		if entity.Description == "" {
			continue
		}
		score := keywordJaccard(keywords, descriptionKeywords(entity.Description))
		if score >= uc.cfg.ContextualThreshold {
			out = append(out, domain.EntityMatch{Entity: entity, Type: domain.MatchContextual, Score: score})
		}
	}
	return out
}

func dedupeMatches(matches []domain.EntityMatch) []domain.EntityMatch {
	seen := make(map[string]struct{}, len(matches))
	out := matches[:0]
	for _, m := range matches {
		if m.Entity == nil {
			continue
		}
		key := m.Entity.ID + ":" + string(m.Type)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, m)
	}
	return out
}

// mergeInto folds the candidate's stats into an existing entity. When the
// match is below the exact threshold, the candidate name is also recorded as
// an alias at the match score.
func (uc *EntityResolverUC) mergeInto(ctx context.Context, match domain.EntityMatch, candidate domain.EntityCandidate, recordAlias bool) (*domain.Resolution, error) {
	entity := *match.Entity
	entity.MentionCount += candidateMentions(candidate)
	entity.AuthorityScore = maxFloat(entity.AuthorityScore, authorityScore(candidate, entity.MentionCount))
	if entity.Description == "" && candidate.Description != "" {
		entity.Description = candidate.Description
	}

	if err := uc.graph.UpdateEntityStats(ctx, entity.ID, entity.MentionCount, entity.AuthorityScore, entity.Description); err != nil {
		return nil, fmt.Errorf("merge entity stats: %w", err)
	}

	resolution := &domain.Resolution{
		Entity:     &entity,
		Confidence: match.Score,
		MatchType:  match.Type,
	}

	if recordAlias && normalizeName(candidate.Name) != normalizeName(entity.Name) {
		alias := domain.Alias{
			ID:         uuid.NewString(),
			EntityID:   entity.ID,
			Alias:      candidate.Name,
			Confidence: match.Score,
			CreatedAt:  time.Now().UTC(),
		}
		if err := uc.graph.CreateAlias(ctx, &alias); err != nil {
			uc.logger.Warn("record merge alias failed", "alias", candidate.Name, "entity", entity.ID, "error", err)
		} else {
			resolution.Aliases = append(resolution.Aliases, alias)
		}
	}

	uc.logger.Debug("entity merged",
		"entity", entity.ID, "name", entity.Name, "match", match.Type, "score", match.Score)
	return resolution, nil
}

// createEntity registers a new entity. Near-miss matches scoring >= 0.5 get
// weak aliases (half the match score) without having their stats touched.
func (uc *EntityResolverUC) createEntity(ctx context.Context, candidate domain.EntityCandidate, nearMisses []domain.EntityMatch) (*domain.Resolution, error) {
	now := time.Now().UTC()
	mentions := candidateMentions(candidate)
	entity := &domain.Entity{
		ID:             uuid.NewString(),
		Name:           candidate.Name,
		Kind:           candidate.Kind,
		Description:    candidate.Description,
		AuthorityScore: authorityScore(candidate, mentions),
		MentionCount:   mentions,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := uc.graph.CreateEntity(ctx, entity); err != nil {
		return nil, fmt.Errorf("create entity: %w", err)
	}

	resolution := &domain.Resolution{
		Entity:    entity,
		MatchType: domain.MatchNone,
		Created:   true,
	}

	attached := 0
	for _, miss := range nearMisses {
		if attached >= weakAliasLimit {
			break
		}
		if miss.Score < 0.5 {
			continue
		}
		alias := domain.Alias{
			ID:         uuid.NewString(),
			EntityID:   miss.Entity.ID,
			Alias:      candidate.Name,
			Confidence: miss.Score * 0.5,
			CreatedAt:  now,
		}
		if err := uc.graph.CreateAlias(ctx, &alias); err != nil {
			uc.logger.Warn("record weak alias failed", "alias", candidate.Name, "entity", miss.Entity.ID, "error", err)
			continue
		}
		resolution.Aliases = append(resolution.Aliases, alias)
		attached++
	}

	uc.logger.Debug("entity created", "entity", entity.ID, "name", entity.Name, "kind", entity.Kind)
	return resolution, nil
}

// authorityScore recomputes the heuristic prominence measure:
// base 0.5 (or candidate-supplied) + 0.1 per source + 0.05 per mention
// context + up to 0.3 from mention volume, capped at 1.0.
func authorityScore(candidate domain.EntityCandidate, mentionCount int) float64 {
	base := 0.5
	if candidate.BaseAuthority > 0 {
		base = candidate.BaseAuthority
	}
	score := base +
		0.1*float64(len(candidate.Sources)) +
		0.05*float64(len(candidate.MentionContexts)) +
		minFloat(0.3, 0.1*float64(mentionCount))
	return minFloat(1.0, score)
}

func candidateMentions(candidate domain.EntityCandidate) int {
	if candidate.MentionCount > 0 {
		return candidate.MentionCount
	}
	return 1
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
