package usecase

import (
	"strings"
	"unicode"
)

// Corporate suffixes and honorifics carry no identity signal and are stripped
// before name comparison.
var (
	corporateSuffixes = map[string]struct{}{
		"inc": {}, "incorporated": {}, "corp": {}, "corporation": {},
		"ltd": {}, "limited": {}, "llc": {}, "gmbh": {}, "co": {},
		"company": {}, "sa": {}, "ag": {}, "plc": {},
	}
	honorifics = map[string]struct{}{
		"dr": {}, "mr": {}, "mrs": {}, "ms": {}, "prof": {}, "professor": {},
		"sir": {}, "phd": {},
	}
	stopwords = map[string]struct{}{
		"a": {}, "an": {}, "the": {}, "and": {}, "or": {}, "but": {}, "of": {},
		"in": {}, "on": {}, "at": {}, "to": {}, "for": {}, "with": {}, "by": {},
		"from": {}, "as": {}, "is": {}, "are": {}, "was": {}, "were": {},
		"be": {}, "been": {}, "this": {}, "that": {}, "these": {}, "those": {},
		"it": {}, "its": {}, "which": {}, "who": {}, "whom": {}, "what": {},
		"when": {}, "where": {}, "how": {}, "such": {}, "than": {}, "then": {},
		"can": {}, "may": {}, "will": {}, "has": {}, "have": {}, "had": {},
		"not": {}, "no": {}, "also": {}, "into": {}, "their": {}, "using": {},
		"used": {}, "use": {}, "based": {}, "we": {}, "our": {}, "they": {},
	}
)

// normalizeName lowercases, strips punctuation, and drops corporate suffixes
// and honorifics so that "Leia Inc." and "leia inc" compare equal.
func normalizeName(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			b.WriteRune(r)
		} else {
			b.WriteRune(' ')
		}
	}

	fields := strings.Fields(b.String())
	kept := make([]string, 0, len(fields))
	for i, tok := range fields {
		if _, ok := corporateSuffixes[tok]; ok && i > 0 {
			continue
		}
		if _, ok := honorifics[tok]; ok && i == 0 && len(fields) > 1 {
			continue
		}
		kept = append(kept, tok)
	}
	return strings.Join(kept, " ")
}

// nameSimilarity is the normalized Levenshtein ratio over normalized names:
// 1 - distance/maxLen, in [0,1]. Identical strings score 1.0 and the score is
// invariant under case and whitespace normalization.
func nameSimilarity(a, b string) float64 {
	na, nb := normalizeName(a), normalizeName(b)
	if na == nb {
		return 1.0
	}
	if na == "" || nb == "" {
		return 0.0
	}
	dist := levenshtein(na, nb)
	maxLen := len([]rune(na))
	if l := len([]rune(nb)); l > maxLen {
		maxLen = l
	}
	return 1.0 - float64(dist)/float64(maxLen)
}

func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}

	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min3(curr[j-1]+1, prev[j]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}

// descriptionKeywords tokenizes a description, drops stopwords and short
// tokens, and returns the distinct keyword set used for contextual matching.
func descriptionKeywords(description string) map[string]struct{} {
	out := make(map[string]struct{})
	var b strings.Builder
	flush := func() {
		tok := b.String()
		b.Reset()
		if len(tok) < 3 {
			return
		}
		if _, ok := stopwords[tok]; ok {
			return
		}
		out[tok] = struct{}{}
	}
	for _, r := range strings.ToLower(description) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			continue
		}
		if b.Len() > 0 {
			flush()
		}
	}
	if b.Len() > 0 {
		flush()
	}
	return out
}

// keywordJaccard returns the Jaccard similarity of two keyword sets.
func keywordJaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0.0
	}
	intersection := 0
	for k := range a {
		if _, ok := b[k]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0.0
	}
	return float64(intersection) / float64(union)
}
