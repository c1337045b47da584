package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/h51assets/h51/internal/domain"
)

// ErrNotFound is returned by single-row lookups with no match.
var ErrNotFound = errors.New("store: not found")

// AccountStore persists domain.Account rows.
type AccountStore struct {
	db *sqlx.DB
}

// NewAccountStore wraps an existing connection.
func NewAccountStore(db *sqlx.DB) *AccountStore { return &AccountStore{db: db} }

type accountRow struct {
	ID                string         `db:"id"`
	Name              string         `db:"name"`
	APIKey            string         `db:"api_key"`
	AllowedIPs        pq.StringArray `db:"allowed_ips"`
	RequestsPerSecond sql.NullInt64  `db:"requests_per_second"`
	PublicBackend     []byte         `db:"public_backend"`
	SecureBackend     []byte         `db:"secure_backend"`
	CreatedAt         time.Time      `db:"created_at"`
	UpdatedAt         time.Time      `db:"updated_at"`
}

func (r accountRow) toDomain() (*domain.Account, error) {
	a := &domain.Account{
		ID:         r.ID,
		Name:       r.Name,
		APIKey:     r.APIKey,
		AllowedIPs: []string(r.AllowedIPs),
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
	}
	if r.RequestsPerSecond.Valid {
		n := int(r.RequestsPerSecond.Int64)
		a.RequestsPerSecond = &n
	}
	if err := json.Unmarshal(r.PublicBackend, &a.PublicBackend); err != nil {
		return nil, fmt.Errorf("decode public_backend: %w", err)
	}
	if err := json.Unmarshal(r.SecureBackend, &a.SecureBackend); err != nil {
		return nil, fmt.Errorf("decode secure_backend: %w", err)
	}
	return a, nil
}

func (s *AccountStore) GetByAPIKey(ctx context.Context, apiKey string) (*domain.Account, error) {
	var row accountRow
	err := s.db.GetContext(ctx, &row, `SELECT * FROM accounts WHERE api_key = $1`, apiKey)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return row.toDomain()
}

func (s *AccountStore) GetByID(ctx context.Context, id string) (*domain.Account, error) {
	var row accountRow
	err := s.db.GetContext(ctx, &row, `SELECT * FROM accounts WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return row.toDomain()
}

// Create inserts a new account.
func (s *AccountStore) Create(ctx context.Context, a *domain.Account) error {
	publicBackend, err := json.Marshal(a.PublicBackend)
	if err != nil {
		return err
	}
	secureBackend, err := json.Marshal(a.SecureBackend)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO accounts (id, name, api_key, allowed_ips, requests_per_second, public_backend, secure_backend)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, a.ID, a.Name, a.APIKey, pq.StringArray(a.AllowedIPs), a.RequestsPerSecond, publicBackend, secureBackend)
	return err
}

// RotateAPIKey replaces the account's api_key with newKey, matching the
// "replace-and-log" invariant in §3 (callers are responsible for the log).
func (s *AccountStore) RotateAPIKey(ctx context.Context, accountID, newKey string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE accounts SET api_key = $1, updated_at = now() WHERE id = $2`, newKey, accountID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
