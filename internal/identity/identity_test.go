package identity

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/elimu-labs/cbe-compass/internal/domain"
	"github.com/elimu-labs/cbe-compass/internal/store"
)

func newTestRepo(t *testing.T) store.Repository {
	t.Helper()
	repo, err := store.NewSQLite(filepath.Join(t.TempDir(), "compass.db"))
	if err != nil {
		t.Fatalf("NewSQLite: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func TestMiddlewareIssuesCookieAndCreatesStudent(t *testing.T) {
	repo := newTestRepo(t)

	var seenUserID string
	var seenRole domain.Role
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenUserID = UserIDFromContext(r.Context())
		seenRole = RoleFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	w := httptest.NewRecorder()
	Middleware(repo, true)(next).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/me", nil))

	if seenUserID == "" {
		t.Fatal("expected a user ID in context")
	}
	if !isValidAnonID(seenUserID) {
		t.Errorf("user ID %q does not match the anonymous pattern", seenUserID)
	}
	if seenRole != domain.RoleStudent {
		t.Errorf("role = %s, want student", seenRole)
	}

	var cookie *http.Cookie
	for _, c := range w.Result().Cookies() {
		if c.Name == AnonCookieName {
			cookie = c
		}
	}
	if cookie == nil {
		t.Fatal("expected the anonymous cookie to be set")
	}
	if cookie.Value != seenUserID {
		t.Errorf("cookie value %q != context user ID %q", cookie.Value, seenUserID)
	}

	user, err := repo.GetUser(context.Background(), seenUserID)
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if user == nil || user.Role != domain.RoleStudent {
		t.Errorf("expected a student record on first contact, got %+v", user)
	}
}

func TestMiddlewareReusesValidCookie(t *testing.T) {
	repo := newTestRepo(t)

	var firstID, secondID string
	capture := func(dst *string) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			*dst = UserIDFromContext(r.Context())
		})
	}
	mw := Middleware(repo, true)

	w := httptest.NewRecorder()
	mw(capture(&firstID)).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, c := range w.Result().Cookies() {
		req.AddCookie(c)
	}
	mw(capture(&secondID)).ServeHTTP(httptest.NewRecorder(), req)

	if firstID == "" || firstID != secondID {
		t.Errorf("identity not stable across requests: %q vs %q", firstID, secondID)
	}
}

func TestMiddlewareRejectsForgedCookie(t *testing.T) {
	repo := newTestRepo(t)

	var seenID string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenID = UserIDFromContext(r.Context())
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: AnonCookieName, Value: "anon_../../etc/passwd"})
	Middleware(repo, true)(next).ServeHTTP(httptest.NewRecorder(), req)

	if seenID == "anon_../../etc/passwd" {
		t.Error("forged cookie value must not be accepted")
	}
	if !isValidAnonID(seenID) {
		t.Errorf("expected a fresh valid ID, got %q", seenID)
	}
}

func TestSanitizeSessionID(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"", DefaultSessionIDValue},
		{"  ", DefaultSessionIDValue},
		{"tab-1", "tab-1"},
		{"has spaces", DefaultSessionIDValue},
		{"ok.id:1_2-3", "ok.id:1_2-3"},
	}
	for _, tc := range cases {
		if got := sanitizeSessionID(tc.in); got != tc.want {
			t.Errorf("sanitizeSessionID(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestSessionIDFromRequest(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?session_id=tab-2", nil)
	if got := sessionIDFromRequest(req); got != "tab-2" {
		t.Errorf("query session = %q, want tab-2", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(SessionHeaderName, "tab-3")
	if got := sessionIDFromRequest(req); got != "tab-3" {
		t.Errorf("header session = %q, want tab-3", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	if got := sessionIDFromRequest(req); got != DefaultSessionIDValue {
		t.Errorf("default session = %q", got)
	}
}
