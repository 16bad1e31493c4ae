package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/avolkov/graphrag/internal/core/domain"
)

// evidenceWindow bounds the text slice kept as evidence and scanned for
// certainty markers around a pattern match.
const evidenceWindow = 160

type RelationshipExtractorUC struct {
	logger *slog.Logger
}

func NewRelationshipExtractor(logger *slog.Logger) *RelationshipExtractorUC {
	if logger == nil {
		logger = slog.Default()
	}
	return &RelationshipExtractorUC{logger: logger}
}

// ExtractFromDocument mines (subject, relation, object, evidence) tuples and
// entity candidates from the document's text and metadata. Output is
// deduplicated by (src, relation, dst).
func (uc *RelationshipExtractorUC) ExtractFromDocument(ctx context.Context, docID string, meta *domain.DocumentMeta, chunks []string) (*domain.ExtractionResult, error) {
	if docID == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "extract relationships", errors.New("empty document id"))
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	text := strings.Join(chunks, "\n")
	result := &domain.ExtractionResult{}

	for _, pattern := range relationPatterns {
		uc.applyPattern(pattern, text, result)
	}
	uc.extractFromMetadata(meta, result)
	uc.extractCitations(text, result)

	result.Relationships = dedupeExtracted(result.Relationships)
	result.Entities = dedupeCandidates(result.Entities)

	uc.logger.Debug("document mined",
		"document", docID,
		"relationships", len(result.Relationships),
		"entities", len(result.Entities))
	return result, nil
}

func (uc *RelationshipExtractorUC) applyPattern(pattern relationPattern, text string, result *domain.ExtractionResult) {
	for _, loc := range pattern.re.FindAllStringSubmatchIndex(text, -1) {
		names := captureNames(text, loc)
		if len(names) == 0 {
			continue
		}

		evidence := evidenceSlice(text, loc[0], loc[1])
		weight := minFloat(1.0, relationBaseWeight[pattern.relation]+certaintyBoost(evidence))

		rel := assignRoles(pattern.relation, names, weight, evidence)
		result.Relationships = append(result.Relationships, rel)

		for _, name := range names {
			result.Entities = append(result.Entities, domain.EntityCandidate{
				Name:            name,
				Kind:            kindForRelation(pattern.relation),
				MentionContexts: []string{evidence},
			})
		}
	}
}

// assignRoles applies the per-relation src/dst convention: authorship-style
// relations point entity -> document; two-name relations point entity ->
// entity, falling back to entity -> document when only one name matched;
// cites points document -> cited work.
func assignRoles(relation domain.RelationType, names []string, weight float64, evidence string) domain.ExtractedRelationship {
	rel := domain.ExtractedRelationship{
		Relation:     relation,
		Weight:       weight,
		EvidenceText: evidence,
	}
	switch relation {
	case domain.RelationAuthorOf, domain.RelationInventorOf, domain.RelationAssigneeOf:
		rel.SrcName, rel.SrcType = names[0], domain.NodeEntity
		rel.DstType = domain.NodeDocument
	case domain.RelationCites:
		rel.SrcType = domain.NodeDocument
		rel.DstName, rel.DstType = names[0], domain.NodeEntity
	default:
		rel.SrcName, rel.SrcType = names[0], domain.NodeEntity
		if len(names) > 1 {
			rel.DstName, rel.DstType = names[1], domain.NodeEntity
		} else {
			rel.DstType = domain.NodeDocument
		}
	}
	return rel
}

// extractFromMetadata emits author_of edges for the document's listed authors.
func (uc *RelationshipExtractorUC) extractFromMetadata(meta *domain.DocumentMeta, result *domain.ExtractionResult) {
	if meta == nil {
		return
	}
	for _, author := range meta.Authors {
		if !validAuthorName(author) {
			continue
		}
		result.Relationships = append(result.Relationships, domain.ExtractedRelationship{
			SrcName:      author,
			SrcType:      domain.NodeEntity,
			Relation:     domain.RelationAuthorOf,
			DstType:      domain.NodeDocument,
			Weight:       relationBaseWeight[domain.RelationAuthorOf],
			EvidenceText: "document metadata",
		})
		result.Entities = append(result.Entities, domain.EntityCandidate{
			Name:    author,
			Kind:    domain.KindPerson,
			Sources: []string{meta.ID},
		})
	}
}

// validAuthorName gates the structured author metadata field. Author fields
// are curated upstream, so the check is looser than the free-text capture
// gate: full names up to four words pass.
func validAuthorName(name string) bool {
	name = strings.TrimSpace(name)
	if name == "" || isNumeric(name) {
		return false
	}
	if _, ok := stopwords[strings.ToLower(name)]; ok {
		return false
	}
	words := strings.Fields(name)
	if len(words) > 4 {
		return false
	}
	first := []rune(words[0])
	return unicode.IsUpper(first[0])
}

func captureNames(text string, loc []int) []string {
	var names []string
	for g := 1; g*2 < len(loc); g++ {
		start, end := loc[g*2], loc[g*2+1]
		if start < 0 || end < 0 {
			continue
		}
		name := strings.TrimSpace(strings.Trim(text[start:end], ".,;:"))
		if validEntityName(name) {
			names = append(names, name)
		}
	}
	return names
}

// evidenceSlice widens the match to the evidence window, snapping both ends to
// rune boundaries.
func evidenceSlice(text string, start, end int) string {
	lo := start - evidenceWindow/2
	if lo < 0 {
		lo = 0
	}
	for lo > 0 && !utf8.RuneStart(text[lo]) {
		lo--
	}
	hi := end + evidenceWindow/2
	if hi > len(text) {
		hi = len(text)
	}
	for hi < len(text) && !utf8.RuneStart(text[hi]) {
		hi++
	}
	return strings.TrimSpace(text[lo:hi])
}

// truncateRunes cuts s at the byte limit without splitting a rune.
func truncateRunes(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	for limit > 0 && !utf8.RuneStart(s[limit]) {
		limit--
	}
	return s[:limit]
}

func dedupeExtracted(rels []domain.ExtractedRelationship) []domain.ExtractedRelationship {
	seen := make(map[string]struct{}, len(rels))
	out := rels[:0]
	for _, rel := range rels {
		key := rel.SrcName + "|" + string(rel.Relation) + "|" + rel.DstName + "|" + string(rel.SrcType) + "|" + string(rel.DstType)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, rel)
	}
	return out
}

func dedupeCandidates(candidates []domain.EntityCandidate) []domain.EntityCandidate {
	byKey := make(map[string]int, len(candidates))
	var out []domain.EntityCandidate
	for _, c := range candidates {
		key := normalizeName(c.Name) + "|" + string(c.Kind)
		if idx, ok := byKey[key]; ok {
			out[idx].MentionContexts = append(out[idx].MentionContexts, c.MentionContexts...)
			out[idx].Sources = append(out[idx].Sources, c.Sources...)
			out[idx].MentionCount += candidateMentions(c)
			continue
		}
		c.MentionCount = candidateMentions(c)
		byKey[key] = len(out)
		out = append(out, c)
	}
	return out
}
