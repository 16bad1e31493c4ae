package domain

import "time"

type EntityKind string

const (
	KindPerson    EntityKind = "person"
	KindOrg       EntityKind = "org"
	KindProduct   EntityKind = "product"
	KindAlgorithm EntityKind = "algorithm"
	KindMaterial  EntityKind = "material"
	KindConcept   EntityKind = "concept"
)

func EntityKinds() []EntityKind {
	return []EntityKind{KindPerson, KindOrg, KindProduct, KindAlgorithm, KindMaterial, KindConcept}
}

func (k EntityKind) Valid() bool {
	switch k {
	case KindPerson, KindOrg, KindProduct, KindAlgorithm, KindMaterial, KindConcept:
		return true
	}
	return false
}

// Entity is a canonical real-world thing in the knowledge graph.
// Rows are mutated only through resolve/merge operations.
type Entity struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	Kind           EntityKind `json:"kind"`
	Description    string     `json:"description"`
	AuthorityScore float64    `json:"authority_score"`
	MentionCount   int        `json:"mention_count"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// Alias is an alternate name linked to a canonical entity. The entity id is a
// back-reference, not ownership.
type Alias struct {
	ID         string    `json:"id"`
	EntityID   string    `json:"entity_id"`
	Alias      string    `json:"alias"`
	Confidence float64   `json:"confidence"`
	IsPrimary  bool      `json:"is_primary"`
	CreatedAt  time.Time `json:"created_at"`
}

// EntityCandidate is an extracted mention awaiting resolution against the registry.
type EntityCandidate struct {
	Name            string     `json:"name"`
	Kind            EntityKind `json:"kind"`
	Description     string     `json:"description"`
	MentionCount    int        `json:"mention_count"`
	Sources         []string   `json:"sources"`
	MentionContexts []string   `json:"mention_contexts"`
	// BaseAuthority overrides the 0.5 authority base when > 0.
	BaseAuthority float64 `json:"base_authority"`
}

type MatchType string

const (
	MatchExact      MatchType = "exact"
	MatchFuzzy      MatchType = "fuzzy"
	MatchAlias      MatchType = "alias"
	MatchContextual MatchType = "contextual"
	MatchNone       MatchType = "none"
)

// EntityMatch is one strategy's vote for a candidate/entity pairing.
type EntityMatch struct {
	Entity *Entity
	Type   MatchType
	Score  float64
}

// Resolution is the outcome of resolving one candidate.
type Resolution struct {
	Entity     *Entity   `json:"entity"`
	Aliases    []Alias   `json:"aliases"`
	Confidence float64   `json:"confidence"`
	MatchType  MatchType `json:"match_type"`
	Created    bool      `json:"created"`
}

// BatchResolution reports aggregate counts for a batch run with per-item isolation.
type BatchResolution struct {
	Resolutions []Resolution `json:"resolutions"`
	Succeeded   int          `json:"succeeded"`
	Failed      int          `json:"failed"`
}

// MergeReport summarizes one duplicate sweep over a kind.
type MergeReport struct {
	Examined int `json:"examined"`
	Merged   int `json:"merged"`
	Failed   int `json:"failed"`
}
