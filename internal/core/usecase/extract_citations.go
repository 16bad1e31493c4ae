package usecase

import (
	"regexp"
	"strings"

	"github.com/avolkov/graphrag/internal/core/domain"
)

// maxCitationEntries bounds how many bibliography entries one document
// contributes.
const maxCitationEntries = 50

const citationConfidence = 0.8

var (
	referencesHeading = regexp.MustCompile(`(?im)^\s*(?:\d+\.?\s*)?(references|bibliography|works cited)\s*$`)
	// Entry boundaries: "[12]", "12.", or a blank line.
	citationSplitter = regexp.MustCompile(`(?m)^\s*(?:\[\d+\]|\d{1,3}\.)\s+`)
	quotedTitle      = regexp.MustCompile(`["\x{201c}]([^"\x{201d}]{8,200})["\x{201d}]`)
	sentenceTitle    = regexp.MustCompile(`(?:^|\.\s+)([A-Z][^.]{10,160})\.`)
	citationYear     = regexp.MustCompile(`\b(19|20)\d{2}\b`)
	leadingAuthor    = regexp.MustCompile(`^\s*([A-Z][A-Za-z'-]+),?\s+(?:[A-Z]\.\s*)+`)
)

// parsedCitation is one heuristically parsed bibliography entry.
type parsedCitation struct {
	Title       string
	Year        string
	FirstAuthor string
}

// extractCitations locates a references section, splits it into entries, and
// emits one cites edge per parsed reference.
func (uc *RelationshipExtractorUC) extractCitations(text string, result *domain.ExtractionResult) {
	section := referencesSection(text)
	if section == "" {
		return
	}

	for _, entry := range splitCitationEntries(section) {
		citation, ok := parseCitation(entry)
		if !ok {
			continue
		}
		evidence := truncateRunes(entry, evidenceWindow)
		result.Relationships = append(result.Relationships, domain.ExtractedRelationship{
			SrcType:      domain.NodeDocument,
			Relation:     domain.RelationCites,
			DstName:      citation.Title,
			DstType:      domain.NodeEntity,
			Weight:       citationConfidence,
			EvidenceText: strings.TrimSpace(evidence),
		})
		result.Entities = append(result.Entities, domain.EntityCandidate{
			Name: citation.Title,
			Kind: domain.KindConcept,
		})
		if citation.FirstAuthor != "" && validEntityName(citation.FirstAuthor) {
			result.Entities = append(result.Entities, domain.EntityCandidate{
				Name: citation.FirstAuthor,
				Kind: domain.KindPerson,
			})
		}
	}
}

func referencesSection(text string) string {
	loc := referencesHeading.FindStringIndex(text)
	if loc == nil {
		return ""
	}
	return text[loc[1]:]
}

func splitCitationEntries(section string) []string {
	entries := citationSplitter.Split(section, -1)
	if len(entries) <= 1 {
		entries = strings.Split(section, "\n\n")
	}

	out := make([]string, 0, len(entries))
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if len(entry) < 20 {
			continue
		}
		out = append(out, entry)
		if len(out) >= maxCitationEntries {
			break
		}
	}
	return out
}

// parseCitation pulls title (quoted first, then sentence-cased), year, and
// first author out of one entry. Entries without a recognizable title are
// dropped.
func parseCitation(entry string) (parsedCitation, bool) {
	var citation parsedCitation

	if m := quotedTitle.FindStringSubmatch(entry); m != nil {
		citation.Title = strings.TrimSpace(m[1])
	} else if m := sentenceTitle.FindStringSubmatch(entry); m != nil {
		citation.Title = strings.TrimSpace(m[1])
	}
	if citation.Title == "" {
		return parsedCitation{}, false
	}

	if m := citationYear.FindString(entry); m != "" {
		citation.Year = m
	}
	if m := leadingAuthor.FindStringSubmatch(entry); m != nil {
		citation.FirstAuthor = m[1]
	}
	return citation, true
}
