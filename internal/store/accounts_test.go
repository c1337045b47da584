package store

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"

	"github.com/h51assets/h51/internal/domain"
)

func newMockStore(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return sqlx.NewDb(db, "postgres"), mock
}

func TestAccountStoreGetByAPIKey(t *testing.T) {
	db, mock := newMockStore(t)
	s := NewAccountStore(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{
		"id", "name", "api_key", "allowed_ips", "requests_per_second",
		"public_backend", "secure_backend", "created_at", "updated_at",
	}).AddRow(
		"acct-1", "acme", "key-123", "{10.0.0.1}", 5,
		[]byte(`{"kind":"local","local_path":"/public"}`), []byte(`{}`), now, now,
	)
	mock.ExpectQuery(`SELECT \* FROM accounts WHERE api_key = \$1`).
		WithArgs("key-123").
		WillReturnRows(rows)

	acct, err := s.GetByAPIKey(context.Background(), "key-123")
	if err != nil {
		t.Fatalf("GetByAPIKey: %v", err)
	}
	if acct.ID != "acct-1" || acct.Name != "acme" {
		t.Fatalf("unexpected account: %+v", acct)
	}
	if acct.RequestsPerSecond == nil || *acct.RequestsPerSecond != 5 {
		t.Fatalf("expected requests_per_second=5, got %+v", acct.RequestsPerSecond)
	}
	if acct.PublicBackend.Kind != domain.BackendKindLocal {
		t.Fatalf("expected local public backend, got %+v", acct.PublicBackend)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAccountStoreGetByAPIKeyNotFound(t *testing.T) {
	db, mock := newMockStore(t)
	s := NewAccountStore(db)

	mock.ExpectQuery(`SELECT \* FROM accounts WHERE api_key = \$1`).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := s.GetByAPIKey(context.Background(), "missing")
	if err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestAccountStoreRotateAPIKey(t *testing.T) {
	db, mock := newMockStore(t)
	s := NewAccountStore(db)

	mock.ExpectExec(`UPDATE accounts SET api_key = \$1, updated_at = now\(\) WHERE id = \$2`).
		WithArgs("new-key", "acct-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := s.RotateAPIKey(context.Background(), "acct-1", "new-key"); err != nil {
		t.Fatalf("RotateAPIKey: %v", err)
	}

	mock.ExpectExec(`UPDATE accounts SET api_key = \$1, updated_at = now\(\) WHERE id = \$2`).
		WithArgs("new-key", "missing").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := s.RotateAPIKey(context.Background(), "missing", "new-key"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
