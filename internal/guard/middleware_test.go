package guard

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/haulstack/console-gateway/internal/session"
)

func protectedOK() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("protected"))
	})
}

func TestMiddlewareRedirectsAnonymousToLogin(t *testing.T) {
	store := session.NewStore()
	h := Middleware(store)(protectedOK())

	req := httptest.NewRequest(http.MethodGet, "/app/shipments?page=2", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusSeeOther {
		t.Fatalf("expected 303, got %d", rr.Code)
	}
	loc := rr.Header().Get("Location")
	if loc != "/login?redirect=%2Fapp%2Fshipments%3Fpage%3D2" {
		t.Fatalf("redirect lost the origin: %q", loc)
	}
}

func TestMiddlewareRendersForAuthenticatedUser(t *testing.T) {
	store := session.NewStore()
	store.LoginSuccess(session.User{ID: "1", Roles: []string{"user"}}, "t1", "r1")
	h := Middleware(store)(protectedOK())

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/app/home", nil))
	if rr.Code != http.StatusOK || rr.Body.String() != "protected" {
		t.Fatalf("expected protected content, got %d %q", rr.Code, rr.Body.String())
	}
}

func TestMiddlewareSendsMissingRoleToUnauthorized(t *testing.T) {
	store := session.NewStore()
	store.LoginSuccess(session.User{ID: "1", Roles: []string{"user"}}, "t1", "r1")
	h := Middleware(store, "admin")(protectedOK())

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/app/admin", nil))
	if rr.Code != http.StatusSeeOther {
		t.Fatalf("expected 303, got %d", rr.Code)
	}
	if loc := rr.Header().Get("Location"); loc != UnauthorizedPath {
		t.Fatalf("expected unauthorized redirect, got %q", loc)
	}
}

func TestMiddlewareNeverRedirectsWhileLoading(t *testing.T) {
	store := session.NewStore()
	store.LoginStart()
	h := Middleware(store, "admin")(protectedOK())

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/app/admin", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected loading page, got %d", rr.Code)
	}
	if rr.Header().Get("Location") != "" {
		t.Fatal("loading must not redirect")
	}
}

func TestMiddlewareJSONVariantUsesStatusCodes(t *testing.T) {
	store := session.NewStore()
	h := Middleware(store)(protectedOK())

	req := httptest.NewRequest(http.MethodGet, "/app/api/shipments", nil)
	req.Header.Set("Accept", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for API clients, got %d", rr.Code)
	}

	store.LoginSuccess(session.User{ID: "1", Roles: []string{"user"}}, "t1", "r1")
	h = Middleware(store, "admin")(protectedOK())
	req = httptest.NewRequest(http.MethodGet, "/app/api/admin", nil)
	req.Header.Set("Accept", "application/json")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for API clients, got %d", rr.Code)
	}
}

func TestMiddlewareReevaluatesPerRequest(t *testing.T) {
	store := session.NewStore()
	store.LoginSuccess(session.User{ID: "1", Roles: []string{"user"}}, "t1", "r1")
	h := Middleware(store)(protectedOK())

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/app/home", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected render, got %d", rr.Code)
	}

	// Session expires while the view is open: the next request redirects.
	store.RefreshFailure("expired")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/app/home", nil))
	if rr.Code != http.StatusSeeOther {
		t.Fatalf("expected redirect after expiry, got %d", rr.Code)
	}
}
