// Package apilog maintains the per-account, per-outcome-class API log
// rings described in SPEC_FULL §4.5/§12: an LPUSH+LTRIM-bounded Redis list
// per account, trimmed to API_MAX_LOG_ENTRIES on every push and to
// API_LOG_RETENTION_PERIOD by a daily maintenance pass.
package apilog

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"github.com/h51assets/h51/internal/domain"
)

// Ring appends and trims per-account API log entries.
type Ring struct {
	rdb        *redis.Client
	maxEntries int64
	retention  time.Duration
}

// New constructs a Ring bounded to maxEntries per account/outcome, with
// entries older than retention eligible for the daily Trim pass.
func New(rdb *redis.Client, maxEntries int, retention time.Duration) *Ring {
	return &Ring{rdb: rdb, maxEntries: int64(maxEntries), retention: retention}
}

func listKey(accountID string, outcome domain.APILogOutcome) string {
	return fmt.Sprintf("h51_api_log:%s:%s", accountID, outcome)
}

// Push appends entry to the account's outcome-class ring and trims it to
// maxEntries.
func (r *Ring) Push(ctx context.Context, accountID string, outcome domain.APILogOutcome, entry domain.APILogEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal log entry: %w", err)
	}
	key := listKey(accountID, outcome)
	pipe := r.rdb.TxPipeline()
	pipe.LPush(ctx, key, data)
	pipe.LTrim(ctx, key, 0, r.maxEntries-1)
	_, err = pipe.Exec(ctx)
	return err
}

// OutcomeForStatus classifies an HTTP status code into succeeded/failed.
func OutcomeForStatus(statusCode int) domain.APILogOutcome {
	if statusCode >= 200 && statusCode < 400 {
		return domain.APILogSucceeded
	}
	return domain.APILogFailed
}

// Trim drops entries older than retention from every account ring matching
// keyPattern. It is invoked by the daily cron job (cmd/h51server -
// maintenance, §13) and scans rather than requiring a tracked account list,
// since Redis has no native "list of all keys matching prefix" primitive
// other than SCAN.
func (r *Ring) Trim(ctx context.Context) error {
	cutoff := time.Now().Add(-r.retention)
	var cursor uint64
	for {
		keys, next, err := r.rdb.Scan(ctx, cursor, "h51_api_log:*", 100).Result()
		if err != nil {
			return err
		}
		for _, key := range keys {
			if err := r.trimKey(ctx, key, cutoff); err != nil {
				return err
			}
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return nil
}

func (r *Ring) trimKey(ctx context.Context, key string, cutoff time.Time) error {
	entries, err := r.rdb.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		return err
	}
	keep := entries[:0:0]
	for _, raw := range entries {
		var e domain.APILogEntry
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			continue
		}
		if e.CallTime.After(cutoff) {
			keep = append(keep, raw)
		}
	}
	if len(keep) == len(entries) {
		return nil
	}
	pipe := r.rdb.TxPipeline()
	pipe.Del(ctx, key)
	if len(keep) > 0 {
		args := make([]interface{}, len(keep))
		for i, v := range keep {
			// LPUSH reverses order; push oldest-last so the net order
			// matches the original list (newest at head).
			args[len(keep)-1-i] = v
		}
		pipe.LPush(ctx, key, args...)
	}
	_, err = pipe.Exec(ctx)
	return err
}
