package middleware

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/crrserver/core/internal/authsvc"
)

func newTestAuthService(t *testing.T) *authsvc.Service {
	t.Helper()
	store, err := authsvc.OpenStore(filepath.Join(t.TempDir(), "auth.sqlite3"))
	if err != nil {
		t.Fatalf("OpenStore() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })
	tokens := authsvc.NewTokenService([]byte("test-secret-at-least-32-bytes!!!"))
	return authsvc.NewService(store, tokens, authsvc.NoopSender{}, t.TempDir(), "")
}

func TestRequireIdentityRejectsMissingCredentials(t *testing.T) {
	auth := newTestAuthService(t)

	var called bool
	handler := RequireIdentity(auth)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	req := httptest.NewRequest(http.MethodGet, "/db/foo/run", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if called {
		t.Error("handler should not be invoked without valid credentials")
	}
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestRequireIdentityStoresIdentity(t *testing.T) {
	auth := newTestAuthService(t)

	var gotID *authsvc.Identity
	handler := RequireIdentity(auth)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotID, _ = IdentityFromContext(r.Context())
	}))

	// Mint a token directly rather than going through the OTP flow, since this test only
	// exercises the middleware's context plumbing.
	token, err := authsvc.NewTokenService([]byte("test-secret-at-least-32-bytes!!!")).Mint("user-1")
	if err != nil {
		t.Fatalf("Mint() error = %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/db/foo/run", nil)
	req.AddCookie(&http.Cookie{Name: authsvc.TokenCookie, Value: token})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if gotID == nil || gotID.UserID != "user-1" {
		t.Errorf("IdentityFromContext() = %+v, want UserID user-1", gotID)
	}
}

func TestIdentityFromContextMissing(t *testing.T) {
	if _, ok := IdentityFromContext(httptest.NewRequest(http.MethodGet, "/", nil).Context()); ok {
		t.Error("IdentityFromContext() should report false when nothing was stored")
	}
}
