package usecase

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/avolkov/graphrag/internal/core/domain"
)

// relationPattern binds one curated regular expression to a relation type.
// Capture group 1 (and 2 where present) hold entity-name candidates.
type relationPattern struct {
	relation domain.RelationType
	re       *regexp.Regexp
}

// nameWord is one capitalized token. It never ends in punctuation, so a
// sentence-closing period stays outside the capture.
const nameWord = `[A-Z](?:[A-Za-z0-9&.-]*[A-Za-z0-9])?`

// nameFrag matches one plausible entity mention: an acronym, one or two
// capitalized words on the same line, or a lowercase technical term.
const nameFrag = `(` + nameWord + `(?:[ \t]+` + nameWord + `)?|[A-Z]{2,}|[a-z][a-z0-9-]{2,})`

var relationPatterns = []relationPattern{
	{domain.RelationAuthorOf, regexp.MustCompile(`(?i)(?:written|authored|co-authored)\s+by\s+` + nameFrag)},
	{domain.RelationAuthorOf, regexp.MustCompile(nameFrag + `\s+(?:is|are)\s+the\s+authors?\s+of`)},
	{domain.RelationInventorOf, regexp.MustCompile(`(?i)invented\s+by\s+` + nameFrag)},
	{domain.RelationInventorOf, regexp.MustCompile(nameFrag + `\s+(?:invented|devised|conceived)\s+(?:the|this|a)\b`)},
	{domain.RelationAssigneeOf, regexp.MustCompile(`(?i)assign(?:ed|ee)(?:\s+to)?[:\s]+` + nameFrag)},
	{domain.RelationAssigneeOf, regexp.MustCompile(nameFrag + `\s+(?:holds|owns)\s+the\s+patent`)},
	{domain.RelationImplements, regexp.MustCompile(nameFrag + `\s+implements\s+` + nameFrag)},
	{domain.RelationImplements, regexp.MustCompile(nameFrag + `\s+(?:is\s+an?\s+implementation\s+of)\s+` + nameFrag)},
	{domain.RelationUsedIn, regexp.MustCompile(nameFrag + `\s+(?:is\s+)?used\s+in\s+` + nameFrag)},
	{domain.RelationUsedIn, regexp.MustCompile(nameFrag + `\s+(?:relies|builds)\s+on\s+` + nameFrag)},
	{domain.RelationCites, regexp.MustCompile(`(?i)(?:cites|citing|as\s+described\s+in)\s+` + nameFrag)},
	{domain.RelationSupersedes, regexp.MustCompile(nameFrag + `\s+(?:supersedes|replaces|obsoletes)\s+` + nameFrag)},
	{domain.RelationSimilarTo, regexp.MustCompile(nameFrag + `\s+(?:is\s+similar\s+to|resembles|is\s+comparable\s+to)\s+` + nameFrag)},
}

// relationBaseWeight is the per-type confidence before contextual boosts.
var relationBaseWeight = map[domain.RelationType]float64{
	domain.RelationAuthorOf:   0.9,
	domain.RelationInventorOf: 0.9,
	domain.RelationAssigneeOf: 0.9,
	domain.RelationCites:      0.8,
	domain.RelationImplements: 0.7,
	domain.RelationUsedIn:     0.7,
	domain.RelationSupersedes: 0.6,
	domain.RelationSimilarTo:  0.4,
}

// certaintyMarkers boost confidence when present near a match, +0.1 each
// capped at +0.3 total.
var certaintyMarkers = []string{
	"clearly", "explicitly", "patent", "developed", "demonstrated",
	"established", "confirmed", "officially",
}

const (
	certaintyBoostPerMarker = 0.1
	certaintyBoostCap       = 0.3
)

// certaintyBoost scans the evidence window for certainty markers.
func certaintyBoost(window string) float64 {
	lower := strings.ToLower(window)
	boost := 0.0
	for _, marker := range certaintyMarkers {
		if strings.Contains(lower, marker) {
			boost += certaintyBoostPerMarker
		}
		if boost >= certaintyBoostCap {
			return certaintyBoostCap
		}
	}
	return boost
}

// lowercase terms that are real entities despite failing the proper-noun test.
var knownTechnicalTerms = map[string]struct{}{
	"backlight": {}, "lightfield": {}, "holography": {}, "nanotubes": {},
	"graphene": {}, "perovskite": {}, "transformer": {}, "autostereoscopy": {},
	"photolithography": {}, "waveguide": {}, "metasurface": {}, "diffraction": {},
}

// validEntityName is the gate every capture-group candidate passes before
// becoming an entity mention. It rejects stopwords, pure numbers, and single
// lowercase tokens; it accepts acronyms, proper nouns of one or two words, and
// known lowercase technical terms.
func validEntityName(name string) bool {
	name = strings.TrimSpace(name)
	if name == "" {
		return false
	}
	lower := strings.ToLower(name)
	if _, ok := stopwords[lower]; ok {
		return false
	}
	if isNumeric(name) {
		return false
	}

	words := strings.Fields(name)
	if len(words) == 1 {
		word := words[0]
		if isAcronym(word) {
			return true
		}
		if _, ok := knownTechnicalTerms[lower]; ok {
			return true
		}
		runes := []rune(word)
		if len(runes) == 1 && unicode.IsLower(runes[0]) {
			return false
		}
		return unicode.IsUpper(runes[0])
	}
	if len(words) > 2 {
		return false
	}
	// Multi-word names need a capitalized head.
	first := []rune(words[0])
	return unicode.IsUpper(first[0])
}

func isAcronym(word string) bool {
	upper := 0
	for _, r := range word {
		if unicode.IsUpper(r) {
			upper++
		} else if !unicode.IsDigit(r) {
			return false
		}
	}
	return upper >= 2
}

func isNumeric(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) && r != '.' && r != ',' {
			return false
		}
	}
	return true
}

// kindForRelation guesses the entity kind a relation's subject usually has.
func kindForRelation(relation domain.RelationType) domain.EntityKind {
	switch relation {
	case domain.RelationAuthorOf, domain.RelationInventorOf:
		return domain.KindPerson
	case domain.RelationAssigneeOf:
		return domain.KindOrg
	case domain.RelationImplements:
		return domain.KindAlgorithm
	case domain.RelationUsedIn, domain.RelationSupersedes, domain.RelationSimilarTo:
		return domain.KindProduct
	default:
		return domain.KindConcept
	}
}
