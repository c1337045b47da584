package api

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/jmoiron/sqlx"

	"github.com/h51assets/h51/internal/apilog"
	"github.com/h51assets/h51/internal/domain"
	"github.com/h51assets/h51/internal/eventbus"
	"github.com/h51assets/h51/internal/queue/memqueue"
	"github.com/h51assets/h51/internal/ratelimit"
	"github.com/h51assets/h51/internal/registry"
	"github.com/h51assets/h51/internal/store"
	"github.com/h51assets/h51/pkg/config"

	"github.com/h51assets/h51/infrastructure/logging"
	"github.com/h51assets/h51/infrastructure/metrics"
)

// testServer wires a Server the way cmd/h51server does, but against
// in-process doubles: memqueue/MemBus stand in for Redis-backed
// queue/eventbus (grounded on the teacher's fake-dependency pattern), a
// miniredis instance backs the rate limiter and api log, and sqlmock backs
// the Postgres stores so handler tests never need a live database.
func newTestServer(t *testing.T) (*Server, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	sqlxDB := sqlx.NewDb(db, "postgres")

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	cfg := &config.Config{}
	cfg.Backend.LocalFilesPath = t.TempDir()
	cfg.Server.BodyLimitBytes = 32 << 20
	cfg.Limits.APIMaxLogEntries = 100
	cfg.Limits.APILogRetention = time.Hour

	srv := New(
		store.NewAccountStore(sqlxDB),
		store.NewAssetStore(sqlxDB),
		store.NewStatsStore(sqlxDB),
		memqueue.New(),
		eventbus.NewMem(),
		ratelimit.New(rdb),
		apilog.New(rdb, cfg.Limits.APIMaxLogEntries, cfg.Limits.APILogRetention),
		registry.New(),
		cfg,
		logging.New("api_test", "error", "text"),
		metrics.New("api_test"),
	)
	return srv, mock
}

func accountRows(apiKey string) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{
		"id", "name", "api_key", "allowed_ips", "requests_per_second",
		"public_backend", "secure_backend", "created_at", "updated_at",
	}).AddRow(
		"acct-1", "acme", apiKey, "{}", nil,
		[]byte(`{"kind":"local"}`), []byte(`{}`), now, now,
	)
}

func TestAuthMiddlewareRejectsMissingKey(t *testing.T) {
	srv, _ := newTestServer(t)
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/assets", nil)

	srv.authMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not run without an API key")
	})).ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}

func TestAuthMiddlewareRejectsUnknownKey(t *testing.T) {
	srv, mock := newTestServer(t)
	mock.ExpectQuery(`SELECT \* FROM accounts WHERE api_key = \$1`).
		WithArgs("bogus").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/assets", nil)
	req.Header.Set(apiKeyHeader, "bogus")

	srv.authMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not run for an unknown API key")
	})).ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}

func TestAuthMiddlewareCachesAccountLookup(t *testing.T) {
	srv, mock := newTestServer(t)
	mock.ExpectQuery(`SELECT \* FROM accounts WHERE api_key = \$1`).
		WithArgs("key-123").
		WillReturnRows(accountRows("key-123"))

	handler := srv.authMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for i := 0; i < 2; i++ {
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/assets", nil)
		req.Header.Set(apiKeyHeader, "key-123")
		handler.ServeHTTP(rr, req)
		if rr.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i, rr.Code)
		}
	}

	// The second request must be served from s.accountCache, so the query
	// mock above should only have been hit once.
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRateLimitMiddlewareSetsHeadersUnderLimit(t *testing.T) {
	srv, _ := newTestServer(t)
	account := &domain.Account{ID: "acct-1"}

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/assets", nil)
	req = req.WithContext(withAccount(req.Context(), account))

	srv.rateLimitMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if rr.Header().Get("X-H51-RateLimit-Limit") == "" {
		t.Fatal("expected a rate limit header to be set")
	}
}

// expectStatsInc scripts the transaction StatsStore.Inc runs: one upsert per
// domain.StatScopes entry for the account plus the global rollup.
func expectStatsInc(mock sqlmock.Sqlmock) {
	mock.ExpectBegin()
	for i := 0; i < len(domain.StatScopes(time.Now()))*2; i++ {
		mock.ExpectExec(`INSERT INTO stats`).WillReturnResult(sqlmock.NewResult(0, 1))
	}
	mock.ExpectCommit()
}

func TestHandleUploadHappyPath(t *testing.T) {
	srv, mock := newTestServer(t)
	account := &domain.Account{ID: "acct-1", PublicBackend: domain.BackendSettings{Kind: domain.BackendKindLocal, LocalPath: srv.Cfg.Backend.LocalFilesPath}}

	mock.ExpectExec(`INSERT INTO assets`).WillReturnResult(sqlmock.NewResult(0, 1))
	expectStatsInc(mock) // StatAssets
	expectStatsInc(mock) // StatLength

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("file", "photo.png")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	// Minimal valid 1x1 PNG.
	png := []byte{
		0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a,
		0x00, 0x00, 0x00, 0x0d, 0x49, 0x48, 0x44, 0x52,
		0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x01,
		0x08, 0x06, 0x00, 0x00, 0x00, 0x1f, 0x15, 0xc4,
		0x89, 0x00, 0x00, 0x00, 0x0a, 0x49, 0x44, 0x41,
		0x54, 0x78, 0x9c, 0x63, 0x00, 0x01, 0x00, 0x00,
		0x05, 0x00, 0x01, 0x0d, 0x0a, 0x2d, 0xb4, 0x00,
		0x00, 0x00, 0x00, 0x49, 0x45, 0x4e, 0x44, 0xae,
		0x42, 0x60, 0x82,
	}
	if _, err := part.Write(png); err != nil {
		t.Fatalf("write png: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}

	req := httptest.NewRequest(http.MethodPut, "/assets", &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	req = req.WithContext(withAccount(req.Context(), account))
	rr := httptest.NewRecorder()

	srv.handleUpload(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
