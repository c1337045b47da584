// Package ratelimit implements the per-account request accounting
// described in SPEC_FULL §4.5: an atomic per-second counter backed by
// Redis's incr-with-expire primitive, plus the response headers and
// structured result the API middleware reports.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// DefaultLimit is used when an account has no per-second override.
const DefaultLimit = 10

// Result is the outcome of one Check call.
type Result struct {
	Limit     int
	Count     int
	Remaining int
	ResetIn   time.Duration
	Exceeded  bool
}

// Limiter enforces the per-account per-second request limit.
type Limiter struct {
	rdb *redis.Client
}

// New wraps an existing redis client.
func New(rdb *redis.Client) *Limiter {
	return &Limiter{rdb: rdb}
}

func key(accountID string) string {
	return fmt.Sprintf("rate:%s:requests_in_last_second", accountID)
}

// Check performs the read-TTL / conditional-increment dance from §4.5:
//  1. Read the key's TTL.
//  2. If TTL > 0, atomically increment.
//  3. Else, atomically set to 1 with a 1-second expiry.
//
// then compares the resulting count against limit (or DefaultLimit if
// limit <= 0).
func (l *Limiter) Check(ctx context.Context, accountID string, limit int) (Result, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	k := key(accountID)

	ttl, err := l.rdb.PTTL(ctx, k).Result()
	if err != nil {
		return Result{}, err
	}

	var count int64
	if ttl > 0 {
		count, err = l.rdb.Incr(ctx, k).Result()
		if err != nil {
			return Result{}, err
		}
	} else {
		pipe := l.rdb.TxPipeline()
		incr := pipe.Incr(ctx, k)
		pipe.Expire(ctx, k, time.Second)
		if _, err := pipe.Exec(ctx); err != nil {
			return Result{}, err
		}
		count = incr.Val()
		ttl = time.Second
	}

	remaining := limit - int(count)
	if remaining < 0 {
		remaining = 0
	}

	return Result{
		Limit:     limit,
		Count:     int(count),
		Remaining: remaining,
		ResetIn:   ttl,
		Exceeded:  int(count) > limit,
	}, nil
}
