package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/avolkov/graphrag/internal/core/domain"
)

// GraphRepository persists the knowledge-graph tables: entities, aliases,
// edges. It also reads document metadata and chunk text owned by the
// ingestion service.
type GraphRepository struct {
	db *sql.DB
}

func NewGraphRepository(db *sql.DB) *GraphRepository {
	return &GraphRepository{db: db}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (r *GraphRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026082301)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS entities (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	kind TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	authority_score DOUBLE PRECISION NOT NULL DEFAULT 0,
	mention_count INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_entities_kind_mentions ON entities(kind, mention_count DESC);
CREATE INDEX IF NOT EXISTS idx_entities_name ON entities(lower(name));

CREATE TABLE IF NOT EXISTS aliases (
	id TEXT PRIMARY KEY,
	entity_id TEXT NOT NULL REFERENCES entities(id) ON DELETE CASCADE,
	alias TEXT NOT NULL,
	confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
	is_primary BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_aliases_alias ON aliases(lower(alias));
CREATE INDEX IF NOT EXISTS idx_aliases_entity ON aliases(entity_id);

CREATE TABLE IF NOT EXISTS edges (
	id TEXT PRIMARY KEY,
	src_id TEXT NOT NULL,
	src_type TEXT NOT NULL,
	relation TEXT NOT NULL,
	dst_id TEXT NOT NULL,
	dst_type TEXT NOT NULL,
	weight DOUBLE PRECISION NOT NULL DEFAULT 0,
	evidence_text TEXT NOT NULL DEFAULT '',
	evidence_document_id TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	UNIQUE (src_id, src_type, relation, dst_id, dst_type)
);

CREATE INDEX IF NOT EXISTS idx_edges_src ON edges(src_id);
CREATE INDEX IF NOT EXISTS idx_edges_dst ON edges(dst_id);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (r *GraphRepository) CreateEntity(ctx context.Context, entity *domain.Entity) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO entities (id, name, kind, description, authority_score, mention_count, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
`,
		entity.ID, entity.Name, string(entity.Kind), entity.Description,
		entity.AuthorityScore, entity.MentionCount, entity.CreatedAt, entity.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert entity: %w", err)
	}
	return nil
}

func (r *GraphRepository) GetEntityByID(ctx context.Context, id string) (*domain.Entity, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, name, kind, description, authority_score, mention_count, created_at, updated_at
FROM entities
WHERE id = $1
`, id)
	return scanEntity(row, id)
}

func (r *GraphRepository) GetEntityByName(ctx context.Context, name string, kind domain.EntityKind) (*domain.Entity, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, name, kind, description, authority_score, mention_count, created_at, updated_at
FROM entities
WHERE lower(name) = lower($1) AND kind = $2
LIMIT 1
`, name, string(kind))
	return scanEntity(row, name)
}

func (r *GraphRepository) ListEntitiesByKind(ctx context.Context, kind domain.EntityKind, limit int) ([]*domain.Entity, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, name, kind, description, authority_score, mention_count, created_at, updated_at
FROM entities
WHERE kind = $1
ORDER BY mention_count DESC
LIMIT $2
`, string(kind), limit)
	if err != nil {
		return nil, fmt.Errorf("list entities: %w", err)
	}
	defer rows.Close()

	var out []*domain.Entity
	for rows.Next() {
		var entity domain.Entity
		var kindRaw string
		if err := rows.Scan(
			&entity.ID, &entity.Name, &kindRaw, &entity.Description,
			&entity.AuthorityScore, &entity.MentionCount, &entity.CreatedAt, &entity.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan entity: %w", err)
		}
		entity.Kind = domain.EntityKind(kindRaw)
		out = append(out, &entity)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entities: %w", err)
	}
	return out, nil
}

func (r *GraphRepository) UpdateEntityStats(ctx context.Context, id string, mentionCount int, authorityScore float64, description string) error {
	result, err := r.db.ExecContext(ctx, `
UPDATE entities
SET mention_count = $2, authority_score = $3, description = $4, updated_at = $5
WHERE id = $1
`, id, mentionCount, authorityScore, description, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update entity stats: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update entity stats rows: %w", err)
	}
	if affected == 0 {
		return domain.WrapError(domain.ErrEntityNotFound, "update entity stats", fmt.Errorf("id %s", id))
	}
	return nil
}

func (r *GraphRepository) DeleteEntity(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM entities WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete entity: %w", err)
	}
	return nil
}

func (r *GraphRepository) CreateAlias(ctx context.Context, alias *domain.Alias) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO aliases (id, entity_id, alias, confidence, is_primary, created_at)
VALUES ($1,$2,$3,$4,$5,$6)
`, alias.ID, alias.EntityID, alias.Alias, alias.Confidence, alias.IsPrimary, alias.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert alias: %w", err)
	}
	return nil
}

func (r *GraphRepository) GetAliasByText(ctx context.Context, aliasText string, kind domain.EntityKind) (*domain.Alias, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT a.id, a.entity_id, a.alias, a.confidence, a.is_primary, a.created_at
FROM aliases a
JOIN entities e ON e.id = a.entity_id
WHERE lower(a.alias) = lower($1) AND e.kind = $2
ORDER BY a.confidence DESC
LIMIT 1
`, aliasText, string(kind))

	var alias domain.Alias
	err := row.Scan(&alias.ID, &alias.EntityID, &alias.Alias, &alias.Confidence, &alias.IsPrimary, &alias.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrEntityNotFound, "alias lookup", fmt.Errorf("alias %q", aliasText))
		}
		return nil, fmt.Errorf("scan alias: %w", err)
	}
	return &alias, nil
}

func (r *GraphRepository) ListAliasesByEntity(ctx context.Context, entityID string) ([]domain.Alias, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, entity_id, alias, confidence, is_primary, created_at
FROM aliases
WHERE entity_id = $1
ORDER BY confidence DESC
`, entityID)
	if err != nil {
		return nil, fmt.Errorf("list aliases: %w", err)
	}
	defer rows.Close()

	var out []domain.Alias
	for rows.Next() {
		var alias domain.Alias
		if err := rows.Scan(&alias.ID, &alias.EntityID, &alias.Alias, &alias.Confidence, &alias.IsPrimary, &alias.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan alias: %w", err)
		}
		out = append(out, alias)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate aliases: %w", err)
	}
	return out, nil
}

func (r *GraphRepository) ReassignAliases(ctx context.Context, fromEntityID, toEntityID string) error {
	_, err := r.db.ExecContext(ctx, `
UPDATE aliases SET entity_id = $2 WHERE entity_id = $1
`, fromEntityID, toEntityID)
	if err != nil {
		return fmt.Errorf("reassign aliases: %w", err)
	}
	return nil
}

func (r *GraphRepository) EdgeExists(ctx context.Context, src domain.NodeRef, relation domain.RelationType, dst domain.NodeRef) (bool, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT 1 FROM edges
WHERE src_id = $1 AND src_type = $2 AND relation = $3 AND dst_id = $4 AND dst_type = $5
LIMIT 1
`, src.ID, string(src.Type), string(relation), dst.ID, string(dst.Type))

	var one int
	err := row.Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("edge exists: %w", err)
	}
	return true, nil
}

func (r *GraphRepository) CreateEdge(ctx context.Context, edge *domain.Relationship) error {
	// ON CONFLICT backs up the application-level existence check: the triple
	// stays unique even if two writers race.
	_, err := r.db.ExecContext(ctx, `
INSERT INTO edges (id, src_id, src_type, relation, dst_id, dst_type, weight, evidence_text, evidence_document_id, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
ON CONFLICT (src_id, src_type, relation, dst_id, dst_type) DO NOTHING
`,
		edge.ID, edge.Src.ID, string(edge.Src.Type), string(edge.Relation),
		edge.Dst.ID, string(edge.Dst.Type), edge.Weight, edge.EvidenceText,
		edge.EvidenceDocumentID, edge.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert edge: %w", err)
	}
	return nil
}

func (r *GraphRepository) RelatedEntityNames(ctx context.Context, name string, limit int) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
WITH target AS (
	SELECT id FROM entities WHERE lower(name) = lower($1)
	UNION
	SELECT entity_id FROM aliases WHERE lower(alias) = lower($1)
)
SELECT DISTINCT e.name
FROM entities e
JOIN edges ed
	ON (ed.src_id = e.id AND ed.dst_id IN (SELECT id FROM target))
	OR (ed.dst_id = e.id AND ed.src_id IN (SELECT id FROM target))
WHERE e.id NOT IN (SELECT id FROM target)
LIMIT $2
`, name, limit)
	if err != nil {
		return nil, fmt.Errorf("related entities: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var related string
		if err := rows.Scan(&related); err != nil {
			return nil, fmt.Errorf("scan related name: %w", err)
		}
		out = append(out, related)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate related names: %w", err)
	}
	return out, nil
}

// GetDocumentMeta reads the slice of the ingestion-owned documents table the
// graph pipeline needs.
func (r *GraphRepository) GetDocumentMeta(ctx context.Context, id string) (*domain.DocumentMeta, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, title, doc_type, authors, created_at
FROM documents
WHERE id = $1
`, id)

	var meta domain.DocumentMeta
	var authorsRaw []byte
	err := row.Scan(&meta.ID, &meta.Title, &meta.DocType, &authorsRaw, &meta.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrDocumentNotFound, "document meta", fmt.Errorf("id %s", id))
		}
		return nil, fmt.Errorf("scan document meta: %w", err)
	}
	if len(authorsRaw) > 0 {
		if err := json.Unmarshal(authorsRaw, &meta.Authors); err != nil {
			return nil, fmt.Errorf("unmarshal authors: %w", err)
		}
	}
	return &meta, nil
}

func (r *GraphRepository) GetDocumentChunks(ctx context.Context, id string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT content FROM document_chunks
WHERE document_id = $1
ORDER BY chunk_index
`, id)
	if err != nil {
		return nil, fmt.Errorf("list document chunks: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var content string
		if err := rows.Scan(&content); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		out = append(out, content)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chunks: %w", err)
	}
	return out, nil
}

func scanEntity(row *sql.Row, key string) (*domain.Entity, error) {
	var entity domain.Entity
	var kindRaw string
	err := row.Scan(
		&entity.ID, &entity.Name, &kindRaw, &entity.Description,
		&entity.AuthorityScore, &entity.MentionCount, &entity.CreatedAt, &entity.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrEntityNotFound, "entity lookup", fmt.Errorf("key %s", key))
		}
		return nil, fmt.Errorf("scan entity: %w", err)
	}
	entity.Kind = domain.EntityKind(kindRaw)
	return &entity, nil
}
