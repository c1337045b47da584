package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/h51assets/h51/internal/domain"
)

// AssetStore persists domain.Asset rows, with meta/variations stored as
// JSONB and mutated through atomic $set-style partial updates (§4.8/§4.9).
type AssetStore struct {
	db *sqlx.DB
}

func NewAssetStore(db *sqlx.DB) *AssetStore { return &AssetStore{db: db} }

type assetRow struct {
	ID          string         `db:"id"`
	AccountID   string         `db:"account_id"`
	Secure      bool           `db:"secure"`
	Name        string         `db:"name"`
	UID         string         `db:"uid"`
	Ext         string         `db:"ext"`
	Type        string         `db:"type"`
	ContentType string         `db:"content_type"`
	Expires     sql.NullTime   `db:"expires"`
	Meta        []byte         `db:"meta"`
	Variations  []byte         `db:"variations"`
	CreatedAt   time.Time      `db:"created_at"`
	ModifiedAt  time.Time      `db:"modified_at"`
}

func (r assetRow) toDomain() (*domain.Asset, error) {
	a := &domain.Asset{
		ID:          r.ID,
		AccountID:   r.AccountID,
		Secure:      r.Secure,
		Name:        r.Name,
		UID:         r.UID,
		Ext:         r.Ext,
		Type:        domain.AssetType(r.Type),
		ContentType: r.ContentType,
		CreatedAt:   r.CreatedAt,
		ModifiedAt:  r.ModifiedAt,
	}
	if r.Expires.Valid {
		t := r.Expires.Time
		a.Expires = &t
	}
	if len(r.Meta) > 0 {
		if err := json.Unmarshal(r.Meta, &a.Meta); err != nil {
			return nil, fmt.Errorf("decode meta: %w", err)
		}
	}
	if len(r.Variations) > 0 {
		if err := json.Unmarshal(r.Variations, &a.Variations); err != nil {
			return nil, fmt.Errorf("decode variations: %w", err)
		}
	}
	return a, nil
}

// Create inserts a new asset row. Callers must write the blob to storage
// before calling Create, so a failure here never leaves an orphan blob
// reference (§4.6's upload ordering invariant).
func (s *AssetStore) Create(ctx context.Context, a *domain.Asset) error {
	meta, err := json.Marshal(emptyIfNil(a.Meta))
	if err != nil {
		return err
	}
	variations, err := json.Marshal(emptyIfNilVariations(a.Variations))
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO assets (id, account_id, secure, name, uid, ext, type, content_type, expires, meta, variations)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, a.ID, a.AccountID, a.Secure, a.Name, a.UID, a.Ext, string(a.Type), a.ContentType, a.Expires, meta, variations)
	return err
}

func emptyIfNil(m map[string]map[string]any) map[string]map[string]any {
	if m == nil {
		return map[string]map[string]any{}
	}
	return m
}

func emptyIfNilVariations(m map[string]domain.Variation) map[string]domain.Variation {
	if m == nil {
		return map[string]domain.Variation{}
	}
	return m
}

func (s *AssetStore) GetByUID(ctx context.Context, accountID, uid string) (*domain.Asset, error) {
	var row assetRow
	err := s.db.GetContext(ctx, &row, `SELECT * FROM assets WHERE account_id = $1 AND uid = $2`, accountID, uid)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return row.toDomain()
}

func (s *AssetStore) GetByID(ctx context.Context, id string) (*domain.Asset, error) {
	var row assetRow
	err := s.db.GetContext(ctx, &row, `SELECT * FROM assets WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return row.toDomain()
}

// ListFilter holds the GET /assets query parameters (§6, §12).
type ListFilter struct {
	Query   string // matched against name, substring
	Type    domain.AssetType
	Secure  *bool // nil = any
	Before  *time.Time
	After   *time.Time
	Limit   int
	AfterUID string // cursor: uid to page after
}

func (s *AssetStore) List(ctx context.Context, accountID string, f ListFilter) ([]*domain.Asset, error) {
	limit := f.Limit
	if limit <= 0 || limit > 100 {
		limit = 100
	}

	clauses := []string{"account_id = $1", "(expires IS NULL OR expires > now())"}
	args := []any{accountID}

	if f.Query != "" {
		args = append(args, "%"+f.Query+"%")
		clauses = append(clauses, fmt.Sprintf("name ILIKE $%d", len(args)))
	}
	if f.Type != "" {
		args = append(args, string(f.Type))
		clauses = append(clauses, fmt.Sprintf("type = $%d", len(args)))
	}
	if f.Secure != nil {
		args = append(args, *f.Secure)
		clauses = append(clauses, fmt.Sprintf("secure = $%d", len(args)))
	}
	if f.Before != nil {
		args = append(args, *f.Before)
		clauses = append(clauses, fmt.Sprintf("created_at < $%d", len(args)))
	}
	if f.After != nil {
		args = append(args, *f.After)
		clauses = append(clauses, fmt.Sprintf("created_at > $%d", len(args)))
	}
	if f.AfterUID != "" {
		args = append(args, f.AfterUID)
		clauses = append(clauses, fmt.Sprintf("uid > $%d", len(args)))
	}

	args = append(args, limit)
	query := fmt.Sprintf(`
		SELECT * FROM assets
		WHERE %s
		ORDER BY uid ASC
		LIMIT $%d
	`, strings.Join(clauses, " AND "), len(args))

	var rows []assetRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}

	out := make([]*domain.Asset, 0, len(rows))
	for _, row := range rows {
		a, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

// SetMeta atomically merges value into meta[assetType][analyzerName] and
// bumps modified_at (§4.8).
func (s *AssetStore) SetMeta(ctx context.Context, assetID string, assetType domain.AssetType, analyzerName string, value any) error {
	encoded, err := json.Marshal(value)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		UPDATE assets
		SET meta = jsonb_set(
			jsonb_set(meta, ARRAY[$2::text], COALESCE(meta->$2::text, '{}'::jsonb), true),
			ARRAY[$2::text, $3::text], $4::jsonb, true
		),
		modified_at = now()
		WHERE id = $1
	`, assetID, string(assetType), analyzerName, encoded)
	return err
}

// SetVariation atomically installs variation under name and bumps
// modified_at, returning the previous Variation (if any) so the caller can
// clean up its old blob (§4.9 step 5).
func (s *AssetStore) SetVariation(ctx context.Context, assetID, name string, variation domain.Variation) (prev domain.Variation, existed bool, err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return prev, false, err
	}
	defer tx.Rollback()

	var variationsRaw []byte
	if err := tx.GetContext(ctx, &variationsRaw, `SELECT variations FROM assets WHERE id = $1 FOR UPDATE`, assetID); err != nil {
		return prev, false, err
	}
	variations := map[string]domain.Variation{}
	if len(variationsRaw) > 0 {
		if err := json.Unmarshal(variationsRaw, &variations); err != nil {
			return prev, false, fmt.Errorf("decode variations: %w", err)
		}
	}
	prev, existed = variations[name]
	variations[name] = variation

	encoded, err := json.Marshal(variations)
	if err != nil {
		return prev, existed, err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE assets SET variations = $2, modified_at = now() WHERE id = $1`, assetID, encoded); err != nil {
		return prev, existed, err
	}
	return prev, existed, tx.Commit()
}

// DeleteVariation removes a variation entry from the asset row, returning
// the removed Variation so the caller can delete its blob.
func (s *AssetStore) DeleteVariation(ctx context.Context, assetID, name string) (domain.Variation, bool, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return domain.Variation{}, false, err
	}
	defer tx.Rollback()

	var variationsRaw []byte
	if err := tx.GetContext(ctx, &variationsRaw, `SELECT variations FROM assets WHERE id = $1 FOR UPDATE`, assetID); err != nil {
		return domain.Variation{}, false, err
	}
	variations := map[string]domain.Variation{}
	if len(variationsRaw) > 0 {
		if err := json.Unmarshal(variationsRaw, &variations); err != nil {
			return domain.Variation{}, false, err
		}
	}
	removed, existed := variations[name]
	if !existed {
		return domain.Variation{}, false, nil
	}
	delete(variations, name)

	encoded, err := json.Marshal(variations)
	if err != nil {
		return removed, true, err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE assets SET variations = $2, modified_at = now() WHERE id = $1`, assetID, encoded); err != nil {
		return removed, true, err
	}
	return removed, true, tx.Commit()
}

// SetExpires atomically sets the asset's expiry to now+seconds.
func (s *AssetStore) SetExpires(ctx context.Context, assetID string, seconds int) error {
	_, err := s.db.ExecContext(ctx, `UPDATE assets SET expires = now() + ($2 * interval '1 second'), modified_at = now() WHERE id = $1`, assetID, seconds)
	return err
}

// ClearExpires atomically clears the asset's expiry (persist).
func (s *AssetStore) ClearExpires(ctx context.Context, assetID string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE assets SET expires = NULL, modified_at = now() WHERE id = $1`, assetID)
	return err
}

// ExpireAccount flags every asset owned by accountID as expired
// immediately, implementing the cascade-on-account-deletion ownership rule
// in §3.
func (s *AssetStore) ExpireAccount(ctx context.Context, accountID string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE assets SET expires = now(), modified_at = now() WHERE account_id = $1 AND (expires IS NULL OR expires > now())`, accountID)
	return err
}

// ListExpired returns up to limit assets whose expiry has passed, for the
// purge job (§4.9 design notes, §9 purge atomicity).
func (s *AssetStore) ListExpired(ctx context.Context, limit int) ([]*domain.Asset, error) {
	var rows []assetRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT * FROM assets WHERE expires IS NOT NULL AND expires <= now() ORDER BY expires ASC LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	out := make([]*domain.Asset, 0, len(rows))
	for _, row := range rows {
		a, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

// Delete removes the asset row. Callers must delete blobs first, per the
// accepted one-phase purge ordering in §9.
func (s *AssetStore) Delete(ctx context.Context, assetID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM assets WHERE id = $1`, assetID)
	return err
}
