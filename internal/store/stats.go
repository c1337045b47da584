package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/h51assets/h51/internal/domain"
)

// globalScope is the sentinel account_id for service-wide rollups (see the
// migration's comment on stats.account_id).
const globalScope = "global"

// StatsStore maintains the rolling counters surfaced by the stats endpoint
// (§4.? / §12), one row per (scope, account, stat_name).
type StatsStore struct {
	db *sqlx.DB
}

func NewStatsStore(db *sqlx.DB) *StatsStore { return &StatsStore{db: db} }

// Inc bumps statName by delta for every StatScopes(now) key, for both the
// account and the global rollup, matching the original's get_inc_keys fan
// out across all/year/year-month/year-month-day scopes.
func (s *StatsStore) Inc(ctx context.Context, accountID string, statName domain.StatName, delta int64, now time.Time) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, scope := range domain.StatScopes(now) {
		if err := upsertStat(ctx, tx, scope, accountID, statName, delta); err != nil {
			return err
		}
		if accountID != globalScope {
			if err := upsertStat(ctx, tx, scope, globalScope, statName, delta); err != nil {
				return err
			}
		}
	}
	return tx.Commit()
}

func upsertStat(ctx context.Context, tx *sqlx.Tx, scope, accountID string, statName domain.StatName, delta int64) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO stats (scope, account_id, stat_name, value)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (scope, account_id, stat_name)
		DO UPDATE SET value = stats.value + EXCLUDED.value
	`, scope, accountID, string(statName), delta)
	return err
}

// Get returns the current counter value for scope/account/statName, 0 if
// absent.
func (s *StatsStore) Get(ctx context.Context, scope, accountID string, statName domain.StatName) (int64, error) {
	var value int64
	err := s.db.GetContext(ctx, &value, `
		SELECT value FROM stats WHERE scope = $1 AND account_id = $2 AND stat_name = $3
	`, scope, accountID, string(statName))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, err
	}
	return value, nil
}

// GetAll returns every stat_name/value pair recorded for scope/account, for
// the account stats summary endpoint (§12).
func (s *StatsStore) GetAll(ctx context.Context, scope, accountID string) (map[domain.StatName]int64, error) {
	rows, err := s.db.QueryxContext(ctx, `
		SELECT stat_name, value FROM stats WHERE scope = $1 AND account_id = $2
	`, scope, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[domain.StatName]int64{}
	for rows.Next() {
		var name string
		var value int64
		if err := rows.Scan(&name, &value); err != nil {
			return nil, err
		}
		out[domain.StatName(name)] = value
	}
	return out, rows.Err()
}
