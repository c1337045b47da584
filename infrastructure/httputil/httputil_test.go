package httputil

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/h51assets/h51/infrastructure/logging"
)

func TestGetAccountID(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if got := GetAccountID(req); got != "" {
		t.Fatalf("GetAccountID() = %q, want empty", got)
	}

	ctx := logging.WithUserID(context.Background(), "acct-123")
	req = req.WithContext(ctx)
	if got := GetAccountID(req); got != "acct-123" {
		t.Fatalf("GetAccountID() = %q, want acct-123", got)
	}
}

func TestRequireAccountID(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rr := httptest.NewRecorder()
	if _, ok := RequireAccountID(rr, req); ok {
		t.Fatal("RequireAccountID() should fail without an account in context")
	}
	if rr.Result().StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rr.Result().StatusCode)
	}

	ctx := logging.WithUserID(context.Background(), "acct-123")
	req = httptest.NewRequest(http.MethodGet, "/", nil).WithContext(ctx)
	rr = httptest.NewRecorder()
	accountID, ok := RequireAccountID(rr, req)
	if !ok || accountID != "acct-123" {
		t.Fatalf("RequireAccountID() = (%q,%v), want (acct-123,true)", accountID, ok)
	}
}

func TestRequireAdminRole(t *testing.T) {
	ctx := logging.WithRole(context.Background(), "admin")
	req := httptest.NewRequest(http.MethodGet, "/", nil).WithContext(ctx)
	rr := httptest.NewRecorder()
	if !RequireAdminRole(rr, req) {
		t.Fatal("RequireAdminRole() should succeed for admin role")
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	rr = httptest.NewRecorder()
	if RequireAdminRole(rr, req) {
		t.Fatal("RequireAdminRole() should fail without an admin role")
	}
	if rr.Result().StatusCode != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rr.Result().StatusCode)
	}
}

func TestWriteJSON(t *testing.T) {
	rr := httptest.NewRecorder()
	WriteJSON(rr, http.StatusOK, map[string]string{"ok": "true"})
	if rr.Result().StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Result().StatusCode)
	}
	if !strings.Contains(rr.Body.String(), "ok") {
		t.Fatalf("body = %q, want to contain ok", rr.Body.String())
	}
}

func TestWriteErrorHelpers(t *testing.T) {
	cases := []struct {
		name   string
		fn     func(http.ResponseWriter, string)
		status int
	}{
		{"BadRequest", BadRequest, http.StatusBadRequest},
		{"Unauthorized", Unauthorized, http.StatusUnauthorized},
		{"Forbidden", Forbidden, http.StatusForbidden},
		{"NotFound", NotFound, http.StatusNotFound},
		{"Conflict", Conflict, http.StatusConflict},
		{"InternalError", InternalError, http.StatusInternalServerError},
		{"ServiceUnavailable", ServiceUnavailable, http.StatusServiceUnavailable},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			c.fn(rr, "")
			if rr.Result().StatusCode != c.status {
				t.Fatalf("status = %d, want %d", rr.Result().StatusCode, c.status)
			}
		})
	}
}

func TestDecodeJSON(t *testing.T) {
	var out struct {
		Name string `json:"name"`
	}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"rotate"}`))
	rr := httptest.NewRecorder()
	if !DecodeJSON(rr, req, &out) {
		t.Fatal("DecodeJSON() should succeed")
	}
	if out.Name != "rotate" {
		t.Fatalf("Name = %q, want rotate", out.Name)
	}

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`not json`))
	rr = httptest.NewRecorder()
	if DecodeJSON(rr, req, &out) {
		t.Fatal("DecodeJSON() should fail on malformed body")
	}
}

func TestDecodeJSONOptional(t *testing.T) {
	var out struct {
		Name string `json:"name"`
	}
	req := httptest.NewRequest(http.MethodPost, "/", http.NoBody)
	rr := httptest.NewRecorder()
	if !DecodeJSONOptional(rr, req, &out) {
		t.Fatal("DecodeJSONOptional() should succeed on empty body")
	}
}

func TestPathParam(t *testing.T) {
	if got := PathParam("/assets/abc123/variations", "/assets/", "/variations"); got != "abc123" {
		t.Fatalf("PathParam() = %q, want abc123", got)
	}
}

func TestPathParamAt(t *testing.T) {
	if got := PathParamAt("/assets/abc123/variations/thumb", 1); got != "abc123" {
		t.Fatalf("PathParamAt() = %q, want abc123", got)
	}
	if got := PathParamAt("/assets/abc123", 5); got != "" {
		t.Fatalf("PathParamAt() out of range = %q, want empty", got)
	}
}

func TestQueryHelpers(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?limit=5&name=thumb&active=true", nil)
	if got := QueryInt(req, "limit", 1); got != 5 {
		t.Fatalf("QueryInt() = %d, want 5", got)
	}
	if got := QueryInt(req, "missing", 7); got != 7 {
		t.Fatalf("QueryInt() default = %d, want 7", got)
	}
	if got := QueryInt64(req, "limit", 1); got != 5 {
		t.Fatalf("QueryInt64() = %d, want 5", got)
	}
	if got := QueryString(req, "name", "x"); got != "thumb" {
		t.Fatalf("QueryString() = %q, want thumb", got)
	}
	if got := QueryBool(req, "active", false); !got {
		t.Fatal("QueryBool() = false, want true")
	}
}

func TestPaginationParams(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?offset=3&limit=500", nil)
	offset, limit := PaginationParams(req, 10, 100)
	if offset != 3 {
		t.Fatalf("offset = %d, want 3", offset)
	}
	if limit != 100 {
		t.Fatalf("limit = %d, want 100 (capped)", limit)
	}

	req = httptest.NewRequest(http.MethodGet, "/?offset=3&limit=0", nil)
	offset, limit = PaginationParams(req, 10, 100)
	if offset != 3 {
		t.Fatalf("offset = %d, want 3", offset)
	}
	if limit != 1 {
		t.Fatalf("limit = %d, want 1", limit)
	}
}

func TestWrapError(t *testing.T) {
	if WrapError(nil, "context") != nil {
		t.Fatalf("WrapError(nil) should return nil")
	}

	err := WrapError(errors.New("boom"), "context")
	if err == nil {
		t.Fatalf("WrapError() returned nil")
	}
	if !strings.Contains(err.Error(), "context") {
		t.Fatalf("wrapped error = %q, want to contain context", err.Error())
	}
}
