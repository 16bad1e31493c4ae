package usecase

import (
	"sort"

	"github.com/avolkov/graphrag/internal/core/domain"
)

type fusedCandidate struct {
	result     domain.SearchResult
	semScore   float64
	kwScore    float64
	inSemantic bool
	inKeyword  bool
	rrfScore   float64
}

// fuseWeighted merges the two channels on the (documentID, chunkID) identity
// key. A chunk present in both channels scores
// semanticWeight*sem + keywordWeight*kw; a single-channel chunk scores
// weight*score for its channel.
func fuseWeighted(semantic, lexical []domain.SearchResult, semanticWeight, keywordWeight float64) []domain.SearchResult {
	acc := make(map[string]*fusedCandidate, len(semantic)+len(lexical))

	for _, r := range semantic {
		key := r.IdentityKey()
		c, ok := acc[key]
		if !ok {
			c = &fusedCandidate{result: r}
			acc[key] = c
		}
		c.result = preferRicherResult(c.result, r)
		c.inSemantic = true
		if r.Score > c.semScore {
			c.semScore = r.Score
		}
	}
	for _, r := range lexical {
		key := r.IdentityKey()
		c, ok := acc[key]
		if !ok {
			c = &fusedCandidate{result: r}
			acc[key] = c
		}
		c.result = preferRicherResult(c.result, r)
		c.inKeyword = true
		if r.Score > c.kwScore {
			c.kwScore = r.Score
		}
	}

	out := make([]domain.SearchResult, 0, len(acc))
	for _, c := range acc {
		result := c.result
		switch {
		case c.inSemantic && c.inKeyword:
			result.Score = semanticWeight*c.semScore + keywordWeight*c.kwScore
		case c.inSemantic:
			result.Score = semanticWeight * c.semScore
		default:
			result.Score = keywordWeight * c.kwScore
		}
		out = append(out, result)
	}

	sortFused(out)
	return out
}

// fuseRRF is the reciprocal-rank alternative, kept behind configuration for
// corpora where channel scores are not comparable.
func fuseRRF(semantic, lexical []domain.SearchResult, rrfK int) []domain.SearchResult {
	if rrfK <= 0 {
		rrfK = 60
	}

	acc := make(map[string]*fusedCandidate, len(semantic)+len(lexical))
	addList := func(results []domain.SearchResult) {
		for rank, r := range results {
			key := r.IdentityKey()
			c, ok := acc[key]
			if !ok {
				c = &fusedCandidate{result: r}
				acc[key] = c
			}
			c.result = preferRicherResult(c.result, r)
			c.rrfScore += 1.0 / float64(rrfK+rank+1)
		}
	}
	addList(semantic)
	addList(lexical)

	out := make([]domain.SearchResult, 0, len(acc))
	for _, c := range acc {
		result := c.result
		result.Score = c.rrfScore
		out = append(out, result)
	}

	sortFused(out)
	return out
}

func sortFused(results []domain.SearchResult) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		if results[i].DocumentID != results[j].DocumentID {
			return results[i].DocumentID < results[j].DocumentID
		}
		return results[i].ChunkID < results[j].ChunkID
	})
}

func trimResults(results []domain.SearchResult, limit int) []domain.SearchResult {
	if limit <= 0 || len(results) <= limit {
		return results
	}
	return results[:limit]
}

// preferRicherResult keeps the more complete record when the same chunk
// arrives from both channels with uneven payloads.
func preferRicherResult(current, candidate domain.SearchResult) domain.SearchResult {
	if current.DocumentID == "" && current.Content == "" {
		return candidate
	}
	if current.Content == "" && candidate.Content != "" {
		current.Content = candidate.Content
	}
	if current.Title == "" && candidate.Title != "" {
		current.Title = candidate.Title
	}
	if current.DocType == "" && candidate.DocType != "" {
		current.DocType = candidate.DocType
	}
	if current.SectionTitle == "" && candidate.SectionTitle != "" {
		current.SectionTitle = candidate.SectionTitle
	}
	if current.PublishedAt.IsZero() && !candidate.PublishedAt.IsZero() {
		current.PublishedAt = candidate.PublishedAt
	}
	if current.Authority == 0 && candidate.Authority != 0 {
		current.Authority = candidate.Authority
	}
	return current
}
