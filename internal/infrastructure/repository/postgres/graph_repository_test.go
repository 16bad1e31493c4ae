package postgres

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/avolkov/graphrag/internal/core/domain"
)

func newRepoWithMock(t *testing.T) (*GraphRepository, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	return &GraphRepository{db: db}, mock, func() { _ = db.Close() }
}

func TestGetEntityByNameReturnsDomainNotFound(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectQuery("SELECT id, name, kind, description").
		WithArgs("missing", string(domain.KindPerson)).
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetEntityByName(context.Background(), "missing", domain.KindPerson)
	if err == nil {
		t.Fatalf("expected error")
	}
	if !domain.IsKind(err, domain.ErrEntityNotFound) {
		t.Fatalf("expected ErrEntityNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestUpdateEntityStatsReturnsDomainNotFoundWhenNoRowsAffected(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectExec("UPDATE entities").
		WithArgs("missing", 3, 0.7, "desc", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateEntityStats(context.Background(), "missing", 3, 0.7, "desc")
	if err == nil {
		t.Fatalf("expected error")
	}
	if !domain.IsKind(err, domain.ErrEntityNotFound) {
		t.Fatalf("expected ErrEntityNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestListEntitiesByKindOrdersByMentions(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "name", "kind", "description", "authority_score", "mention_count", "created_at", "updated_at"}).
		AddRow("e1", "Leia Inc", "org", "", 0.8, 12, now, now).
		AddRow("e2", "Dimenco", "org", "", 0.6, 4, now, now)

	mock.ExpectQuery("SELECT id, name, kind, description").
		WithArgs(string(domain.KindOrg), 500).
		WillReturnRows(rows)

	entities, err := repo.ListEntitiesByKind(context.Background(), domain.KindOrg, 500)
	if err != nil {
		t.Fatalf("ListEntitiesByKind() error = %v", err)
	}
	if len(entities) != 2 {
		t.Fatalf("expected 2 entities, got %d", len(entities))
	}
	if entities[0].Name != "Leia Inc" || entities[0].MentionCount != 12 {
		t.Fatalf("unexpected first entity: %+v", entities[0])
	}
	if entities[1].Kind != domain.KindOrg {
		t.Fatalf("expected organization kind, got %s", entities[1].Kind)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestEdgeExistsDistinguishesPresence(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	src := domain.NodeRef{ID: "e1", Type: domain.NodeEntity}
	dst := domain.NodeRef{ID: "d1", Type: domain.NodeDocument}

	mock.ExpectQuery("SELECT 1 FROM edges").
		WithArgs("e1", "entity", string(domain.RelationAuthorOf), "d1", "document").
		WillReturnError(sql.ErrNoRows)

	exists, err := repo.EdgeExists(context.Background(), src, domain.RelationAuthorOf, dst)
	if err != nil {
		t.Fatalf("EdgeExists() error = %v", err)
	}
	if exists {
		t.Fatalf("expected edge to be absent")
	}

	mock.ExpectQuery("SELECT 1 FROM edges").
		WithArgs("e1", "entity", string(domain.RelationAuthorOf), "d1", "document").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))

	exists, err = repo.EdgeExists(context.Background(), src, domain.RelationAuthorOf, dst)
	if err != nil {
		t.Fatalf("EdgeExists() error = %v", err)
	}
	if !exists {
		t.Fatalf("expected edge to be present")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestGetDocumentMetaDecodesAuthors(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "title", "doc_type", "authors", "created_at"}).
		AddRow("doc-1", "Lightfield Displays", "paper", []byte(`["David Fattal","Pierre St Hilaire"]`), now)

	mock.ExpectQuery("SELECT id, title, doc_type, authors").
		WithArgs("doc-1").
		WillReturnRows(rows)

	meta, err := repo.GetDocumentMeta(context.Background(), "doc-1")
	if err != nil {
		t.Fatalf("GetDocumentMeta() error = %v", err)
	}
	if len(meta.Authors) != 2 || meta.Authors[0] != "David Fattal" {
		t.Fatalf("unexpected authors: %v", meta.Authors)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
