package api

import (
	"context"
	"net"
	"net/http"
	"strconv"

	"github.com/h51assets/h51/internal/domain"
	"github.com/h51assets/h51/internal/store"

	apierr "github.com/h51assets/h51/infrastructure/errors"
)

const apiKeyHeader = "X-H51-APIKey"

type accountKey struct{}

func withAccount(ctx context.Context, a *domain.Account) context.Context {
	return context.WithValue(ctx, accountKey{}, a)
}

// AccountFromContext returns the authenticated account, or nil outside an
// authenticated request.
func AccountFromContext(ctx context.Context) *domain.Account {
	a, _ := ctx.Value(accountKey{}).(*domain.Account)
	return a
}

// authMiddleware implements §4.6's authentication step: look up the account
// by its X-H51-APIKey header, reject if the header is missing/unknown, then
// reject if the caller's IP isn't on the account's allow-list.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get(apiKeyHeader)
		if key == "" {
			writeError(w, apierr.Unauthorized("missing "+apiKeyHeader+" header"))
			return
		}

		account, err := s.lookupAccount(r.Context(), key)
		if err != nil {
			if err == store.ErrNotFound {
				writeError(w, apierr.Unauthorized("unknown API key"))
				return
			}
			writeError(w, apierr.Internal("account lookup failed", err))
			return
		}

		if !account.AllowsIP(clientIP(r)) {
			writeError(w, apierr.Forbidden("source IP not allowed for this account"))
			return
		}

		next.ServeHTTP(w, r.WithContext(withAccount(r.Context(), account)))
	})
}

// rateLimitMiddleware implements §4.5: an atomic per-account per-second
// counter, reporting Limit/Remaining/Reset response headers on every
// request and rejecting with 429 once the count exceeds the account's
// configured (or default) limit.
func (s *Server) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		account := AccountFromContext(r.Context())
		limit := 0
		if account.RequestsPerSecond != nil {
			limit = *account.RequestsPerSecond
		}

		result, err := s.RateLimiter.Check(r.Context(), account.ID, limit)
		if err != nil {
			writeError(w, apierr.Internal("rate limit check failed", err))
			return
		}

		w.Header().Set("X-H51-RateLimit-Limit", strconv.Itoa(result.Limit))
		w.Header().Set("X-H51-RateLimit-Remaining", strconv.Itoa(result.Remaining))
		w.Header().Set("X-H51-RateLimit-Reset", strconv.Itoa(int(result.ResetIn.Seconds())))

		if result.Exceeded {
			s.Metrics.RecordRateLimitRejection("h51_api")
			writeError(w, apierr.RateLimited("request rate limit exceeded"))
			return
		}

		next.ServeHTTP(w, r)
	})
}

// lookupAccount resolves an API key through s.accountCache before falling
// back to Postgres, since authMiddleware runs on every request.
func (s *Server) lookupAccount(ctx context.Context, apiKey string) (*domain.Account, error) {
	if cached, ok := s.accountCache.Get(apiKey); ok {
		return cached.(*domain.Account), nil
	}
	account, err := s.Accounts.GetByAPIKey(ctx, apiKey)
	if err != nil {
		return nil, err
	}
	s.accountCache.Set(apiKey, account, accountCacheTTL)
	return account, nil
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return fwd
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
