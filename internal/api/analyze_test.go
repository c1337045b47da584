package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/gorilla/mux"

	"github.com/h51assets/h51/internal/domain"
)

// waitForSubmittedTask polls q until exactly one task is pending and returns
// its id, used to learn the server-generated task id a handler submitted
// without threading it back out of the handler itself. Runs on its own
// goroutine in every caller, so it reports failure with Errorf rather than
// Fatalf (FailNow is only safe from the test's own goroutine) and relies on
// the test's own RequestTimeout to bound the handler if it never returns a
// task id.
func waitForSubmittedTask(t *testing.T, q interface {
	PendingIDs(context.Context) ([]string, error)
}) string {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		ids, err := q.PendingIDs(context.Background())
		if err != nil {
			t.Errorf("pending ids: %v", err)
			return ""
		}
		if len(ids) == 1 {
			return ids[0]
		}
		time.Sleep(time.Millisecond)
	}
	t.Error("timed out waiting for the handler to submit its task")
	return ""
}

func newJSONBody(body string) *strings.Reader {
	return strings.NewReader(body)
}

// newAssetRows builds the sqlmock row set matching AssetStore's
// `SELECT * FROM assets` column set for a single asset.
func newAssetRows(a *domain.Asset) *sqlmock.Rows {
	now := time.Now()
	meta, _ := json.Marshal(a.Meta)
	variations, _ := json.Marshal(a.Variations)
	return sqlmock.NewRows([]string{
		"id", "account_id", "secure", "name", "uid", "ext", "type", "content_type",
		"expires", "meta", "variations", "created_at", "modified_at",
	}).AddRow(
		a.ID, a.AccountID, a.Secure, a.Name, a.UID, a.Ext, string(a.Type), a.ContentType,
		nil, meta, variations, now, now,
	)
}

// TestHandleAnalyzeAwaitsTerminalEventAndReturnsMeta exercises the
// subscribe-before-submit / await / strong-re-read path from
// SPEC_FULL §4.6: with no notification_url, the handler should block until
// the task's terminal event arrives, then return 200 with the asset's
// (now updated) meta instead of the bare task_id 202 it used to return
// unconditionally.
func TestHandleAnalyzeAwaitsTerminalEventAndReturnsMeta(t *testing.T) {
	srv, mock := newTestServer(t)
	srv.Cfg.Server.RequestTimeout = 2 * time.Second
	account := &domain.Account{ID: "acct-1"}
	asset := &domain.Asset{ID: "asset-1", AccountID: "acct-1", UID: "uid-1", Type: domain.AssetTypeFile}

	mock.ExpectQuery(`SELECT \* FROM assets WHERE account_id = \$1 AND uid = \$2`).
		WithArgs(account.ID, asset.UID).
		WillReturnRows(newAssetRows(asset))

	updated := &domain.Asset{
		ID: "asset-1", AccountID: "acct-1", UID: "uid-1", Type: domain.AssetTypeFile,
		Meta: map[string]map[string]any{"file": {"probe": "ok"}},
	}
	mock.ExpectQuery(`SELECT \* FROM assets WHERE id = \$1`).
		WithArgs(asset.ID).
		WillReturnRows(newAssetRows(updated))

	go func() {
		taskID := waitForSubmittedTask(t, srv.Queue)
		_ = srv.Events.Publish(context.Background(), domain.TaskEvent{TaskID: taskID, Type: domain.EventTaskCompleted})
	}()

	body := `{"analyzers": []}`
	req := httptest.NewRequest(http.MethodPost, "/assets/uid-1/analyze", newJSONBody(body))
	req = req.WithContext(withAccount(req.Context(), account))
	req = mux.SetURLVars(req, map[string]string{"uid": "uid-1"})
	rr := httptest.NewRecorder()

	srv.handleAnalyze(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var got analyzeResult
	if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got.UID != "uid-1" || got.Meta["file"]["probe"] != "ok" {
		t.Fatalf("expected the re-read asset's meta, got %+v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

// TestHandleAnalyzeReturnsErrorOnTaskError verifies a task_error event
// surfaces as a 500 `error` with the worker's failure reason, rather than
// the handler hanging until the request timeout.
func TestHandleAnalyzeReturnsErrorOnTaskError(t *testing.T) {
	srv, mock := newTestServer(t)
	srv.Cfg.Server.RequestTimeout = 2 * time.Second
	account := &domain.Account{ID: "acct-1"}
	asset := &domain.Asset{ID: "asset-1", AccountID: "acct-1", UID: "uid-1", Type: domain.AssetTypeFile}

	mock.ExpectQuery(`SELECT \* FROM assets WHERE account_id = \$1 AND uid = \$2`).
		WithArgs(account.ID, asset.UID).
		WillReturnRows(newAssetRows(asset))

	go func() {
		taskID := waitForSubmittedTask(t, srv.Queue)
		_ = srv.Events.Publish(context.Background(), domain.TaskEvent{TaskID: taskID, Type: domain.EventTaskError, Reason: "unknown analyzer"})
	}()

	body := `{"analyzers": []}`
	req := httptest.NewRequest(http.MethodPost, "/assets/uid-1/analyze", newJSONBody(body))
	req = req.WithContext(withAccount(req.Context(), account))
	req = mux.SetURLVars(req, map[string]string{"uid": "uid-1"})
	rr := httptest.NewRecorder()

	srv.handleAnalyze(rr, req)

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d: %s", rr.Code, rr.Body.String())
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

// TestHandleAnalyzeWithNotificationURLDoesNotAwait confirms the 202
// fire-and-forget path is unchanged when notification_url is set: the
// handler must return immediately with only the task_id, without awaiting
// the task's terminal event.
func TestHandleAnalyzeWithNotificationURLDoesNotAwait(t *testing.T) {
	srv, mock := newTestServer(t)
	account := &domain.Account{ID: "acct-1"}
	asset := &domain.Asset{ID: "asset-1", AccountID: "acct-1", UID: "uid-1", Type: domain.AssetTypeFile}

	mock.ExpectQuery(`SELECT \* FROM assets WHERE account_id = \$1 AND uid = \$2`).
		WithArgs(account.ID, asset.UID).
		WillReturnRows(newAssetRows(asset))

	body := `{"analyzers": [], "notification_url": "https://example.com/hook"}`
	req := httptest.NewRequest(http.MethodPost, "/assets/uid-1/analyze", newJSONBody(body))
	req = req.WithContext(withAccount(req.Context(), account))
	req = mux.SetURLVars(req, map[string]string{"uid": "uid-1"})
	rr := httptest.NewRecorder()

	srv.handleAnalyze(rr, req)

	if rr.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rr.Code, rr.Body.String())
	}
	var got taskAcceptedResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got.TaskID == "" {
		t.Fatal("expected a non-empty task_id")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
