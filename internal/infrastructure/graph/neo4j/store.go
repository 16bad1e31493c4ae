// Package neo4j is the alternate graph backend, selected with
// GRAPH_BACKEND=neo4j. Entities and documents become labeled nodes, edges
// become typed relationships on a shared RELATES label.
package neo4j

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/db"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"

	"github.com/avolkov/graphrag/internal/core/domain"
)

type Store struct {
	client   neo4j.DriverWithContext
	database string
}

func NewStore(uri, username, password, database string) (*Store, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(username, password, ""))
	if err != nil {
		return nil, fmt.Errorf("create neo4j driver: %w", err)
	}
	if database == "" {
		database = "neo4j"
	}
	return &Store{client: driver, database: database}, nil
}

func (s *Store) Close(ctx context.Context) error {
	return s.client.Close(ctx)
}

// EnsureIndexes creates the lookup indexes both resolution paths depend on.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	session := s.client.NewSession(ctx, neo4j.SessionConfig{DatabaseName: s.database})
	defer session.Close(ctx)

	indexes := []string{
		"CREATE INDEX entity_id IF NOT EXISTS FOR (n:Entity) ON (n.id)",
		"CREATE INDEX entity_name_kind IF NOT EXISTS FOR (n:Entity) ON (n.name_lower, n.kind)",
		"CREATE INDEX entity_kind_mentions IF NOT EXISTS FOR (n:Entity) ON (n.kind, n.mention_count)",
		"CREATE INDEX alias_text IF NOT EXISTS FOR (a:Alias) ON (a.alias_lower)",
	}
	for _, query := range indexes {
		if _, err := session.Run(ctx, query, nil); err != nil {
			return fmt.Errorf("create index: %w", err)
		}
	}
	return nil
}

func (s *Store) CreateEntity(ctx context.Context, entity *domain.Entity) error {
	session := s.client.NewSession(ctx, neo4j.SessionConfig{DatabaseName: s.database})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		query := `
			MERGE (n:Entity {id: $id})
			SET n.name = $name,
				n.name_lower = toLower($name),
				n.kind = $kind,
				n.description = $description,
				n.authority_score = $authority_score,
				n.mention_count = $mention_count,
				n.created_at = $created_at,
				n.updated_at = $updated_at
		`
		_, err := tx.Run(ctx, query, map[string]any{
			"id":              entity.ID,
			"name":            entity.Name,
			"kind":            string(entity.Kind),
			"description":     entity.Description,
			"authority_score": entity.AuthorityScore,
			"mention_count":   entity.MentionCount,
			"created_at":      entity.CreatedAt.Format(time.RFC3339),
			"updated_at":      entity.UpdatedAt.Format(time.RFC3339),
		})
		return nil, err
	})
	if err != nil {
		return fmt.Errorf("upsert entity node: %w", err)
	}
	return nil
}

func (s *Store) GetEntityByID(ctx context.Context, id string) (*domain.Entity, error) {
	return s.readEntity(ctx, `MATCH (n:Entity {id: $key}) RETURN n LIMIT 1`, id)
}

func (s *Store) GetEntityByName(ctx context.Context, name string, kind domain.EntityKind) (*domain.Entity, error) {
	session := s.client.NewSession(ctx, neo4j.SessionConfig{DatabaseName: s.database})
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
			MATCH (n:Entity {name_lower: toLower($name), kind: $kind})
			RETURN n LIMIT 1
		`, map[string]any{"name": name, "kind": string(kind)})
		if err != nil {
			return nil, err
		}
		return res.Collect(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("entity by name: %w", err)
	}

	records := result.([]*db.Record)
	if len(records) == 0 {
		return nil, domain.WrapError(domain.ErrEntityNotFound, "entity lookup", fmt.Errorf("name %q", name))
	}
	return entityFromRecord(records[0], "n")
}

func (s *Store) ListEntitiesByKind(ctx context.Context, kind domain.EntityKind, limit int) ([]*domain.Entity, error) {
	session := s.client.NewSession(ctx, neo4j.SessionConfig{DatabaseName: s.database})
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
			MATCH (n:Entity {kind: $kind})
			RETURN n
			ORDER BY n.mention_count DESC
			LIMIT $limit
		`, map[string]any{"kind": string(kind), "limit": limit})
		if err != nil {
			return nil, err
		}
		return res.Collect(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("list entities: %w", err)
	}

	records := result.([]*db.Record)
	out := make([]*domain.Entity, 0, len(records))
	for _, record := range records {
		entity, err := entityFromRecord(record, "n")
		if err != nil {
			continue
		}
		out = append(out, entity)
	}
	return out, nil
}

func (s *Store) UpdateEntityStats(ctx context.Context, id string, mentionCount int, authorityScore float64, description string) error {
	session := s.client.NewSession(ctx, neo4j.SessionConfig{DatabaseName: s.database})
	defer session.Close(ctx)

	result, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
			MATCH (n:Entity {id: $id})
			SET n.mention_count = $mention_count,
				n.authority_score = $authority_score,
				n.description = $description,
				n.updated_at = $updated_at
			RETURN n.id
		`, map[string]any{
			"id":              id,
			"mention_count":   mentionCount,
			"authority_score": authorityScore,
			"description":     description,
			"updated_at":      time.Now().UTC().Format(time.RFC3339),
		})
		if err != nil {
			return nil, err
		}
		return res.Collect(ctx)
	})
	if err != nil {
		return fmt.Errorf("update entity stats: %w", err)
	}
	if len(result.([]*db.Record)) == 0 {
		return domain.WrapError(domain.ErrEntityNotFound, "update entity stats", fmt.Errorf("id %s", id))
	}
	return nil
}

func (s *Store) DeleteEntity(ctx context.Context, id string) error {
	session := s.client.NewSession(ctx, neo4j.SessionConfig{DatabaseName: s.database})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		_, err := tx.Run(ctx, `
			MATCH (n:Entity {id: $id})
			OPTIONAL MATCH (n)<-[:ALIAS_OF]-(a:Alias)
			DETACH DELETE n, a
		`, map[string]any{"id": id})
		return nil, err
	})
	if err != nil {
		return fmt.Errorf("delete entity: %w", err)
	}
	return nil
}

func (s *Store) CreateAlias(ctx context.Context, alias *domain.Alias) error {
	session := s.client.NewSession(ctx, neo4j.SessionConfig{DatabaseName: s.database})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		query := `
			MATCH (e:Entity {id: $entity_id})
			MERGE (a:Alias {id: $id})
			SET a.alias = $alias,
				a.alias_lower = toLower($alias),
				a.confidence = $confidence,
				a.is_primary = $is_primary,
				a.created_at = $created_at
			MERGE (a)-[:ALIAS_OF]->(e)
		`
		_, err := tx.Run(ctx, query, map[string]any{
			"id":         alias.ID,
			"entity_id":  alias.EntityID,
			"alias":      alias.Alias,
			"confidence": alias.Confidence,
			"is_primary": alias.IsPrimary,
			"created_at": alias.CreatedAt.Format(time.RFC3339),
		})
		return nil, err
	})
	if err != nil {
		return fmt.Errorf("upsert alias node: %w", err)
	}
	return nil
}

func (s *Store) GetAliasByText(ctx context.Context, aliasText string, kind domain.EntityKind) (*domain.Alias, error) {
	session := s.client.NewSession(ctx, neo4j.SessionConfig{DatabaseName: s.database})
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
			MATCH (a:Alias {alias_lower: toLower($alias)})-[:ALIAS_OF]->(e:Entity {kind: $kind})
			RETURN a, e.id as entity_id
			ORDER BY a.confidence DESC
			LIMIT 1
		`, map[string]any{"alias": aliasText, "kind": string(kind)})
		if err != nil {
			return nil, err
		}
		return res.Collect(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("alias lookup: %w", err)
	}

	records := result.([]*db.Record)
	if len(records) == 0 {
		return nil, domain.WrapError(domain.ErrEntityNotFound, "alias lookup", fmt.Errorf("alias %q", aliasText))
	}
	return aliasFromRecord(records[0])
}

func (s *Store) ListAliasesByEntity(ctx context.Context, entityID string) ([]domain.Alias, error) {
	session := s.client.NewSession(ctx, neo4j.SessionConfig{DatabaseName: s.database})
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
			MATCH (a:Alias)-[:ALIAS_OF]->(e:Entity {id: $entity_id})
			RETURN a, e.id as entity_id
			ORDER BY a.confidence DESC
		`, map[string]any{"entity_id": entityID})
		if err != nil {
			return nil, err
		}
		return res.Collect(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("list aliases: %w", err)
	}

	records := result.([]*db.Record)
	out := make([]domain.Alias, 0, len(records))
	for _, record := range records {
		alias, err := aliasFromRecord(record)
		if err != nil {
			continue
		}
		out = append(out, *alias)
	}
	return out, nil
}

func (s *Store) ReassignAliases(ctx context.Context, fromEntityID, toEntityID string) error {
	session := s.client.NewSession(ctx, neo4j.SessionConfig{DatabaseName: s.database})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		_, err := tx.Run(ctx, `
			MATCH (a:Alias)-[r:ALIAS_OF]->(from:Entity {id: $from_id})
			MATCH (to:Entity {id: $to_id})
			DELETE r
			MERGE (a)-[:ALIAS_OF]->(to)
		`, map[string]any{"from_id": fromEntityID, "to_id": toEntityID})
		return nil, err
	})
	if err != nil {
		return fmt.Errorf("reassign aliases: %w", err)
	}
	return nil
}

func (s *Store) EdgeExists(ctx context.Context, src domain.NodeRef, relation domain.RelationType, dst domain.NodeRef) (bool, error) {
	session := s.client.NewSession(ctx, neo4j.SessionConfig{DatabaseName: s.database})
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
			MATCH (s {id: $src_id})-[r:RELATES {relation: $relation}]->(t {id: $dst_id})
			RETURN r.id LIMIT 1
		`, map[string]any{
			"src_id":   src.ID,
			"relation": string(relation),
			"dst_id":   dst.ID,
		})
		if err != nil {
			return nil, err
		}
		return res.Collect(ctx)
	})
	if err != nil {
		return false, fmt.Errorf("edge exists: %w", err)
	}
	return len(result.([]*db.Record)) > 0, nil
}

func (s *Store) CreateEdge(ctx context.Context, edge *domain.Relationship) error {
	session := s.client.NewSession(ctx, neo4j.SessionConfig{DatabaseName: s.database})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		// Document endpoints are merged lazily: the ingestion side owns the
		// document record, this store only needs the node to anchor edges.
		query := fmt.Sprintf(`
			MERGE (s:%s {id: $src_id})
			MERGE (t:%s {id: $dst_id})
			MERGE (s)-[r:RELATES {relation: $relation}]->(t)
			ON CREATE SET r.id = $id,
				r.weight = $weight,
				r.evidence_text = $evidence_text,
				r.evidence_document_id = $evidence_document_id,
				r.created_at = $created_at
		`, labelForNode(edge.Src.Type), labelForNode(edge.Dst.Type))

		_, err := tx.Run(ctx, query, map[string]any{
			"id":                   edge.ID,
			"src_id":               edge.Src.ID,
			"dst_id":               edge.Dst.ID,
			"relation":             string(edge.Relation),
			"weight":               edge.Weight,
			"evidence_text":        edge.EvidenceText,
			"evidence_document_id": edge.EvidenceDocumentID,
			"created_at":           edge.CreatedAt.Format(time.RFC3339),
		})
		return nil, err
	})
	if err != nil {
		return fmt.Errorf("merge edge: %w", err)
	}
	return nil
}

func (s *Store) RelatedEntityNames(ctx context.Context, name string, limit int) ([]string, error) {
	session := s.client.NewSession(ctx, neo4j.SessionConfig{DatabaseName: s.database})
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
			MATCH (target:Entity)
			WHERE target.name_lower = toLower($name)
				OR EXISTS { MATCH (a:Alias {alias_lower: toLower($name)})-[:ALIAS_OF]->(target) }
			MATCH (target)-[:RELATES]-(related:Entity)
			WHERE related.id <> target.id
			RETURN DISTINCT related.name as name
			LIMIT $limit
		`, map[string]any{"name": name, "limit": limit})
		if err != nil {
			return nil, err
		}
		return res.Collect(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("related entities: %w", err)
	}

	records := result.([]*db.Record)
	out := make([]string, 0, len(records))
	for _, record := range records {
		value, found := record.Get("name")
		if !found {
			continue
		}
		if name, ok := value.(string); ok {
			out = append(out, name)
		}
	}
	return out, nil
}

func (s *Store) readEntity(ctx context.Context, query, key string) (*domain.Entity, error) {
	session := s.client.NewSession(ctx, neo4j.SessionConfig{DatabaseName: s.database})
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, query, map[string]any{"key": key})
		if err != nil {
			return nil, err
		}
		return res.Collect(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("entity lookup: %w", err)
	}

	records := result.([]*db.Record)
	if len(records) == 0 {
		return nil, domain.WrapError(domain.ErrEntityNotFound, "entity lookup", fmt.Errorf("key %s", key))
	}
	return entityFromRecord(records[0], "n")
}

func labelForNode(nodeType domain.NodeType) string {
	if nodeType == domain.NodeDocument {
		return "Document"
	}
	return "Entity"
}

func entityFromRecord(record *db.Record, key string) (*domain.Entity, error) {
	value, found := record.Get(key)
	if !found {
		return nil, fmt.Errorf("record missing %q", key)
	}
	node, ok := value.(dbtype.Node)
	if !ok {
		return nil, fmt.Errorf("unexpected type for node: %T", value)
	}

	entity := &domain.Entity{
		ID:          stringProp(node.Props, "id"),
		Name:        stringProp(node.Props, "name"),
		Kind:        domain.EntityKind(stringProp(node.Props, "kind")),
		Description: stringProp(node.Props, "description"),
	}
	if v, ok := node.Props["authority_score"].(float64); ok {
		entity.AuthorityScore = v
	}
	if v, ok := node.Props["mention_count"].(int64); ok {
		entity.MentionCount = int(v)
	}
	entity.CreatedAt = timeProp(node.Props, "created_at")
	entity.UpdatedAt = timeProp(node.Props, "updated_at")
	return entity, nil
}

func aliasFromRecord(record *db.Record) (*domain.Alias, error) {
	value, found := record.Get("a")
	if !found {
		return nil, fmt.Errorf("record missing alias")
	}
	node, ok := value.(dbtype.Node)
	if !ok {
		return nil, fmt.Errorf("unexpected type for alias node: %T", value)
	}

	alias := &domain.Alias{
		ID:    stringProp(node.Props, "id"),
		Alias: stringProp(node.Props, "alias"),
	}
	if entityID, found := record.Get("entity_id"); found {
		if v, ok := entityID.(string); ok {
			alias.EntityID = v
		}
	}
	if v, ok := node.Props["confidence"].(float64); ok {
		alias.Confidence = v
	}
	if v, ok := node.Props["is_primary"].(bool); ok {
		alias.IsPrimary = v
	}
	alias.CreatedAt = timeProp(node.Props, "created_at")
	return alias, nil
}

func stringProp(props map[string]any, key string) string {
	if v, ok := props[key].(string); ok {
		return v
	}
	return ""
}

func timeProp(props map[string]any, key string) time.Time {
	raw, ok := props[key].(string)
	if !ok {
		return time.Time{}
	}
	parsed, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}
	}
	return parsed
}
