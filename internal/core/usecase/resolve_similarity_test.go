package usecase

import (
	"math"
	"testing"
)

func TestNameSimilarityIdenticalNames(t *testing.T) {
	for _, name := range []string{"David Fattal", "Leia Inc", "DLB", "diffractive backlight"} {
		if got := nameSimilarity(name, name); got != 1.0 {
			t.Fatalf("similarity(%q, %q) = %f, want 1.0", name, name, got)
		}
	}
}

func TestNameSimilarityIgnoresCaseSuffixesAndHonorifics(t *testing.T) {
	cases := []struct{ a, b string }{
		{"Leia Inc.", "leia inc"},
		{"Leia Inc", "Leia Incorporated"},
		{"Dr. David Fattal", "David Fattal"},
		{"  Leia   Inc  ", "Leia Inc"},
	}
	for _, tc := range cases {
		if got := nameSimilarity(tc.a, tc.b); got != 1.0 {
			t.Fatalf("similarity(%q, %q) = %f, want 1.0", tc.a, tc.b, got)
		}
	}
}

func TestNameSimilaritySingleEditDistance(t *testing.T) {
	// 10 normalized runes, one substitution.
	got := nameSimilarity("Perovskite", "Perovskyte")
	if math.Abs(got-0.9) > 1e-9 {
		t.Fatalf("similarity = %f, want 0.9", got)
	}
}

func TestNameSimilarityUnrelatedNamesScoreLow(t *testing.T) {
	got := nameSimilarity("David Fattal", "Quantum Dot Array")
	if got < 0 || got >= 0.5 {
		t.Fatalf("expected a low score in [0, 0.5), got %f", got)
	}
}

func TestNameSimilarityEmptyAfterNormalization(t *testing.T) {
	if got := nameSimilarity("...", "David Fattal"); got != 0.0 {
		t.Fatalf("expected 0.0 for empty normalized name, got %f", got)
	}
}

func TestNormalizeNameKeepsLeadingSuffixWord(t *testing.T) {
	// A suffix token in head position is part of the name, not noise.
	if got := normalizeName("Co Op Labs"); got != "co op labs" {
		t.Fatalf("normalizeName = %q, want %q", got, "co op labs")
	}
}

func TestDescriptionKeywordsDropStopwordsAndShortTokens(t *testing.T) {
	keywords := descriptionKeywords("The inventor of a diffractive backlight for 3D displays")
	for _, want := range []string{"inventor", "diffractive", "backlight", "displays"} {
		if _, ok := keywords[want]; !ok {
			t.Fatalf("expected keyword %q in %v", want, keywords)
		}
	}
	for _, drop := range []string{"the", "of", "a", "for", "3d"} {
		if _, ok := keywords[drop]; ok {
			t.Fatalf("did not expect token %q in %v", drop, keywords)
		}
	}
}

func TestKeywordJaccard(t *testing.T) {
	a := map[string]struct{}{"backlight": {}, "display": {}, "waveguide": {}}
	b := map[string]struct{}{"backlight": {}, "display": {}, "hologram": {}}

	got := keywordJaccard(a, b)
	if math.Abs(got-0.5) > 1e-9 {
		t.Fatalf("jaccard = %f, want 0.5", got)
	}
	if keywordJaccard(a, map[string]struct{}{}) != 0.0 {
		t.Fatal("expected 0.0 against an empty set")
	}
	if keywordJaccard(a, a) != 1.0 {
		t.Fatal("expected 1.0 against itself")
	}
}
