package domain

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// SearchFilter narrows both retrieval channels identically. A zero value means
// no filtering. Unsupported combinations degrade to unfiltered queries.
type SearchFilter struct {
	DocTypes    []string   `json:"doc_types,omitempty"`
	DateFrom    *time.Time `json:"date_from,omitempty"`
	DateTo      *time.Time `json:"date_to,omitempty"`
	DocumentIDs []string   `json:"document_ids,omitempty"`
	Authors     []string   `json:"authors,omitempty"`
}

func (f SearchFilter) IsZero() bool {
	return len(f.DocTypes) == 0 && f.DateFrom == nil && f.DateTo == nil &&
		len(f.DocumentIDs) == 0 && len(f.Authors) == 0
}

// CacheKeyPart renders the filter deterministically for cache keys.
func (f SearchFilter) CacheKeyPart() string {
	var b strings.Builder
	writeSorted := func(prefix string, values []string) {
		if len(values) == 0 {
			return
		}
		sorted := append([]string(nil), values...)
		sort.Strings(sorted)
		b.WriteString(prefix)
		b.WriteString(strings.Join(sorted, ","))
		b.WriteString(";")
	}
	writeSorted("types=", f.DocTypes)
	writeSorted("docs=", f.DocumentIDs)
	writeSorted("authors=", f.Authors)
	if f.DateFrom != nil {
		fmt.Fprintf(&b, "from=%d;", f.DateFrom.Unix())
	}
	if f.DateTo != nil {
		fmt.Fprintf(&b, "to=%d;", f.DateTo.Unix())
	}
	return b.String()
}

type SearchQuery struct {
	Text      string       `json:"text"`
	Filter    SearchFilter `json:"filter"`
	Limit     int          `json:"limit"`
	Threshold float64      `json:"threshold"`
}

type SearchResult struct {
	DocumentID   string            `json:"document_id"`
	ChunkID      string            `json:"chunk_id,omitempty"`
	Score        float64           `json:"score"`
	Content      string            `json:"content"`
	Title        string            `json:"title"`
	DocType      string            `json:"doc_type"`
	PageRange    string            `json:"page_range,omitempty"`
	SectionTitle string            `json:"section_title,omitempty"`
	Authority    float64           `json:"authority"`
	PublishedAt  time.Time         `json:"published_at"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// IdentityKey deduplicates results across channels. Chunk-less results
// collapse onto the parent document.
func (r SearchResult) IdentityKey() string {
	chunk := r.ChunkID
	if chunk == "" {
		chunk = "doc"
	}
	return r.DocumentID + ":" + chunk
}

type SearchResponse struct {
	Results         []SearchResult `json:"results"`
	SemanticResults []SearchResult `json:"semantic_results"`
	KeywordResults  []SearchResult `json:"keyword_results"`
	ExpandedQuery   string         `json:"expanded_query,omitempty"`
	Reranked        bool           `json:"reranked"`
	RerankStrategy  RerankStrategy `json:"rerank_strategy,omitempty"`
	RerankMetrics   *RerankMetrics `json:"rerank_metrics,omitempty"`
	// DegradedChannels names retrieval channels that failed and were skipped.
	DegradedChannels []string      `json:"degraded_channels,omitempty"`
	CacheHit         bool          `json:"cache_hit"`
	ExecutionTime    time.Duration `json:"execution_time"`
}

type RerankStrategy string

const (
	// StrategyOptimized is the full pre-score / reduce / precision-rerank path.
	StrategyOptimized RerankStrategy = "optimized"
	// StrategyScoreSort means the precision reranker failed and the reduced set
	// was sorted by original retrieval score instead.
	StrategyScoreSort RerankStrategy = "score_sort"
	// StrategyFallbackSimple means the pipeline itself failed and the original
	// candidates were returned untouched.
	StrategyFallbackSimple RerankStrategy = "fallback_simple"
)

type RerankMetrics struct {
	OriginalCount  int           `json:"original_count"`
	ReducedCount   int           `json:"reduced_count"`
	ReductionRatio float64       `json:"reduction_ratio"`
	Elapsed        time.Duration `json:"elapsed"`
	QualityScore   float64       `json:"quality_score"`
}

type RerankOutcome struct {
	Results  []SearchResult `json:"results"`
	Metrics  RerankMetrics  `json:"metrics"`
	Strategy RerankStrategy `json:"strategy"`
}
