package usecase

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/avolkov/graphrag/internal/core/domain"
	"github.com/avolkov/graphrag/internal/core/ports"
)

// Fast pre-score weights. Cheap triage before the expensive reranker.
const (
	titleMatchWeight       = 0.3
	contentRelevanceWeight = 0.25
	existingScoreWeight    = 0.25
	authorityWeight        = 0.1
	recencyWeight          = 0.1
)

// fingerprintLength is how many normalized characters identify near-duplicate
// content for diversity preservation.
const fingerprintLength = 200

// diversityHeadCount results at the head of the reduced list bypass the
// duplicate-fingerprint filter.
const diversityHeadCount = 3

// rerankContentLimit truncates per-item content sent to the external
// reranker to control payload size.
const rerankContentLimit = 1000

const neutralFallbackScore = 0.5

type OptimizedRerankConfig struct {
	MaxInitialCandidates  int
	EarlyFilterThreshold  float64
	MinQualityCandidates  int
	DiversityPreservation bool
}

func DefaultOptimizedRerankConfig() OptimizedRerankConfig {
	return OptimizedRerankConfig{
		MaxInitialCandidates:  25,
		EarlyFilterThreshold:  0.4,
		MinQualityCandidates:  8,
		DiversityPreservation: true,
	}
}

// candidateScore wraps one search result with its ephemeral scoring state.
// It lives only for the duration of one reranking call.
type candidateScore struct {
	result        domain.SearchResult
	originalScore float64
	fastScore     float64
	fingerprint   string
}

// OptimizedRerankerUC is the performance layer between fusion and precision
// reranking: fast pre-scoring, aggressive candidate reduction, diversity
// preservation, precision rerank with fallback.
type OptimizedRerankerUC struct {
	reranker ports.Reranker
	cfg      OptimizedRerankConfig
	logger   *slog.Logger
}

func NewOptimizedReranker(reranker ports.Reranker, cfg OptimizedRerankConfig, logger *slog.Logger) *OptimizedRerankerUC {
	if cfg.MaxInitialCandidates <= 0 {
		cfg = DefaultOptimizedRerankConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &OptimizedRerankerUC{reranker: reranker, cfg: cfg, logger: logger}
}

// Rerank never fails: a panic anywhere in the pipeline degrades to the first
// targetCount original candidates with a neutral quality score.
func (uc *OptimizedRerankerUC) Rerank(ctx context.Context, query string, candidates []domain.SearchResult, targetCount int) (outcome domain.RerankOutcome) {
	started := time.Now()
	if targetCount <= 0 {
		targetCount = len(candidates)
	}

	defer func() {
		if r := recover(); r != nil {
			uc.logger.Error("rerank pipeline failed", "panic", r)
			outcome = uc.fallbackSimple(candidates, targetCount, started)
		}
	}()

	if len(candidates) == 0 {
		return domain.RerankOutcome{Strategy: domain.StrategyOptimized, Metrics: domain.RerankMetrics{Elapsed: time.Since(started)}}
	}

	scored := uc.fastPreScore(query, candidates)
	reduced := uc.reduce(scored)
	// The precision reranker cuts the set further; reduction metrics describe
	// the triage stage, so the count is taken here.
	reducedCount := len(reduced)

	strategy := domain.StrategyOptimized
	if len(reduced) > targetCount {
		reduced, strategy = uc.precisionRerank(ctx, query, reduced, targetCount)
	}
	results := make([]domain.SearchResult, 0, len(reduced))
	for _, c := range reduced {
		results = append(results, c.result)
	}
	results = trimResults(results, targetCount)

	return domain.RerankOutcome{
		Results:  results,
		Strategy: strategy,
		Metrics:  uc.buildMetrics(len(candidates), reducedCount, results, started),
	}
}

// fastPreScore computes the composite triage score per candidate.
func (uc *OptimizedRerankerUC) fastPreScore(query string, candidates []domain.SearchResult) []candidateScore {
	queryTokens := toTokenSet(query)
	now := time.Now()

	scored := make([]candidateScore, 0, len(candidates))
	for _, result := range candidates {
		title := tokenOverlap(queryTokens, toTokenSet(result.Title))
		content := tokenOverlap(queryTokens, toTokenSet(result.Content))
		existing := clamp01(result.Score)
		authority := clamp01(result.Authority)
		recency := recencyBucket(result.PublishedAt, now)

		scored = append(scored, candidateScore{
			result:        result,
			originalScore: result.Score,
			fastScore: titleMatchWeight*title +
				contentRelevanceWeight*content +
				existingScoreWeight*existing +
				authorityWeight*authority +
				recencyWeight*recency,
			fingerprint: contentFingerprint(result.Content),
		})
	}

	sort.SliceStable(scored, func(i, j int) bool { return scored[i].fastScore > scored[j].fastScore })
	return scored
}

// reduce keeps the top MinQualityCandidates unconditionally, filters the
// remainder at EarlyFilterThreshold, caps at MaxInitialCandidates, and
// optionally drops near-duplicate fingerprints past the head.
func (uc *OptimizedRerankerUC) reduce(scored []candidateScore) []candidateScore {
	keep := uc.cfg.MinQualityCandidates
	if keep > len(scored) {
		keep = len(scored)
	}

	reduced := make([]candidateScore, 0, uc.cfg.MaxInitialCandidates)
	reduced = append(reduced, scored[:keep]...)
	for _, c := range scored[keep:] {
		if c.fastScore >= uc.cfg.EarlyFilterThreshold {
			reduced = append(reduced, c)
		}
	}
	if len(reduced) > uc.cfg.MaxInitialCandidates {
		reduced = reduced[:uc.cfg.MaxInitialCandidates]
	}

	if uc.cfg.DiversityPreservation {
		reduced = preserveDiversity(reduced)
	}
	return reduced
}

func preserveDiversity(candidates []candidateScore) []candidateScore {
	out := make([]candidateScore, 0, len(candidates))
	seen := make(map[string]struct{}, len(candidates))

	for i, c := range candidates {
		if i < diversityHeadCount {
			out = append(out, c)
			seen[c.fingerprint] = struct{}{}
			continue
		}
		if c.fingerprint != "" {
			if _, dup := seen[c.fingerprint]; dup {
				continue
			}
			seen[c.fingerprint] = struct{}{}
		}
		out = append(out, c)
	}
	return out
}

// precisionRerank sends the reduced set to the external reranker. On failure
// the reduced set is sorted by original retrieval score instead; no error
// escapes.
func (uc *OptimizedRerankerUC) precisionRerank(ctx context.Context, query string, reduced []candidateScore, targetCount int) ([]candidateScore, domain.RerankStrategy) {
	if uc.reranker == nil {
		return sortByOriginalScore(reduced), domain.StrategyScoreSort
	}

	documents := make([]string, len(reduced))
	for i, c := range reduced {
		documents[i] = truncateRunes(c.result.Content, rerankContentLimit)
	}

	ranked, err := uc.reranker.Rerank(ctx, query, documents, targetCount)
	if err != nil {
		uc.logger.Warn("precision rerank degraded", "error", err)
		return sortByOriginalScore(reduced), domain.StrategyScoreSort
	}

	out := make([]candidateScore, 0, len(ranked))
	for _, r := range ranked {
		if r.Index < 0 || r.Index >= len(reduced) {
			continue
		}
		c := reduced[r.Index]
		c.result.Score = r.Relevance
		out = append(out, c)
	}
	if len(out) == 0 {
		return sortByOriginalScore(reduced), domain.StrategyScoreSort
	}
	return out, domain.StrategyOptimized
}

func sortByOriginalScore(candidates []candidateScore) []candidateScore {
	sorted := append([]candidateScore(nil), candidates...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].originalScore > sorted[j].originalScore })
	for i := range sorted {
		sorted[i].result.Score = sorted[i].originalScore
	}
	return sorted
}

func (uc *OptimizedRerankerUC) fallbackSimple(candidates []domain.SearchResult, targetCount int, started time.Time) domain.RerankOutcome {
	results := trimResults(append([]domain.SearchResult(nil), candidates...), targetCount)
	for i := range results {
		results[i].Score = neutralFallbackScore
	}
	return domain.RerankOutcome{
		Results:  results,
		Strategy: domain.StrategyFallbackSimple,
		Metrics: domain.RerankMetrics{
			OriginalCount: len(candidates),
			ReducedCount:  len(results),
			Elapsed:       time.Since(started),
			QualityScore:  neutralFallbackScore,
		},
	}
}

// buildMetrics reports reduction and a composite quality score:
// 0.7 * mean result score + 0.3 * diversity fraction.
func (uc *OptimizedRerankerUC) buildMetrics(original, reduced int, results []domain.SearchResult, started time.Time) domain.RerankMetrics {
	metrics := domain.RerankMetrics{
		OriginalCount: original,
		ReducedCount:  reduced,
		Elapsed:       time.Since(started),
	}
	if original > 0 {
		metrics.ReductionRatio = 1.0 - float64(reduced)/float64(original)
	}
	if len(results) == 0 {
		return metrics
	}

	var sum float64
	fingerprints := make(map[string]struct{}, len(results))
	for _, r := range results {
		sum += clamp01(r.Score)
		fingerprints[contentFingerprint(r.Content)] = struct{}{}
	}
	mean := sum / float64(len(results))
	diversity := float64(len(fingerprints)) / float64(len(results))
	metrics.QualityScore = 0.7*mean + 0.3*diversity
	return metrics
}

// recencyBucket maps publication age onto the fixed quality buckets.
func recencyBucket(published, now time.Time) float64 {
	if published.IsZero() {
		return 0.4
	}
	age := now.Sub(published)
	switch {
	case age < 12*30*24*time.Hour:
		return 1.0
	case age < 36*30*24*time.Hour:
		return 0.8
	case age < 60*30*24*time.Hour:
		return 0.6
	default:
		return 0.4
	}
}

// contentFingerprint normalizes the content prefix used to detect
// near-duplicate results.
func contentFingerprint(content string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(content) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
		if b.Len() >= fingerprintLength {
			break
		}
	}
	return b.String()
}

func tokenOverlap(query, doc map[string]struct{}) float64 {
	if len(query) == 0 || len(doc) == 0 {
		return 0
	}
	matches := 0
	for token := range query {
		if _, ok := doc[token]; ok {
			matches++
		}
	}
	return float64(matches) / float64(len(query))
}

func toTokenSet(s string) map[string]struct{} {
	out := make(map[string]struct{}, 16)
	var b strings.Builder
	flush := func() {
		if b.Len() > 0 {
			out[b.String()] = struct{}{}
			b.Reset()
		}
	}
	for _, r := range s {
		r = unicode.ToLower(r)
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			continue
		}
		flush()
	}
	flush()
	return out
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
