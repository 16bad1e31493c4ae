package domain

import (
	"fmt"
	"time"
)

type RelationType string

const (
	RelationAuthorOf   RelationType = "author_of"
	RelationInventorOf RelationType = "inventor_of"
	RelationAssigneeOf RelationType = "assignee_of"
	RelationImplements RelationType = "implements"
	RelationUsedIn     RelationType = "used_in"
	RelationCites      RelationType = "cites"
	RelationSupersedes RelationType = "supersedes"
	RelationSimilarTo  RelationType = "similar_to"
)

func RelationTypes() []RelationType {
	return []RelationType{
		RelationAuthorOf, RelationInventorOf, RelationAssigneeOf,
		RelationImplements, RelationUsedIn, RelationCites,
		RelationSupersedes, RelationSimilarTo,
	}
}

type NodeType string

const (
	NodeEntity   NodeType = "entity"
	NodeDocument NodeType = "document"
)

// NodeRef points at either an entity or a document.
type NodeRef struct {
	ID   string   `json:"id"`
	Type NodeType `json:"type"`
}

// Relationship is a directed, weighted, evidence-backed edge.
// No two stored edges share the same (src, relation, dst) triple.
type Relationship struct {
	ID                 string       `json:"id"`
	Src                NodeRef      `json:"src"`
	Relation           RelationType `json:"relation"`
	Dst                NodeRef      `json:"dst"`
	Weight             float64      `json:"weight"`
	EvidenceText       string       `json:"evidence_text"`
	EvidenceDocumentID string       `json:"evidence_document_id"`
	CreatedAt          time.Time    `json:"created_at"`
}

// TripleKey is the idempotency key for edge inserts.
func (r Relationship) TripleKey() string {
	return fmt.Sprintf("%s:%s|%s|%s:%s", r.Src.Type, r.Src.ID, r.Relation, r.Dst.Type, r.Dst.ID)
}

// ExtractedRelationship carries textual entity names before resolution maps
// them to real ids.
type ExtractedRelationship struct {
	SrcName      string       `json:"src_name"`
	SrcType      NodeType     `json:"src_type"`
	Relation     RelationType `json:"relation"`
	DstName      string       `json:"dst_name"`
	DstType      NodeType     `json:"dst_type"`
	Weight       float64      `json:"weight"`
	EvidenceText string       `json:"evidence_text"`
}

// ExtractionResult is the output of mining one document.
type ExtractionResult struct {
	Relationships []ExtractedRelationship `json:"relationships"`
	Entities      []EntityCandidate       `json:"entities"`
}

// ProcessReport summarizes one document run through the graph pipeline.
type ProcessReport struct {
	EntitiesCreated int `json:"entities_created"`
	EntitiesMerged  int `json:"entities_merged"`
	EntitiesFailed  int `json:"entities_failed"`
	EdgesInserted   int `json:"edges_inserted"`
	EdgesSkipped    int `json:"edges_skipped"`
}

// DocumentMeta is the slice of document metadata the graph pipeline reads.
// Ingestion owns the full document record.
type DocumentMeta struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	DocType   string    `json:"doc_type"`
	Authors   []string  `json:"authors"`
	CreatedAt time.Time `json:"created_at"`
}
