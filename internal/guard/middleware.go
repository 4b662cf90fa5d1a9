package guard

import (
	"net/http"
	"strings"

	"github.com/haulstack/console-gateway/internal/http/response"
	"github.com/haulstack/console-gateway/internal/observability"
	"github.com/haulstack/console-gateway/internal/session"
)

// Middleware executes the decision for every request so auth changes that
// happen while a view stays open are observed on its next round trip, not
// just at mount time.
func Middleware(store *session.Store, required ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			action := Decide(store.Snapshot(), required, r.URL.RequestURI())
			observability.RecordGuardDecision(r.Context(), action.Kind.String())

			switch action.Kind {
			case ActionRender:
				next.ServeHTTP(w, r)
			case ActionShowLoading:
				if wantsJSON(r) {
					response.JSON(w, r, http.StatusAccepted, map[string]string{"state": "loading"})
					return
				}
				w.Header().Set("Retry-After", "1")
				w.Header().Set("Content-Type", "text/html; charset=utf-8")
				w.WriteHeader(http.StatusOK)
				_, _ = w.Write([]byte(loadingPage))
			case ActionRedirect:
				if wantsJSON(r) {
					status := http.StatusUnauthorized
					code := "UNAUTHENTICATED"
					if action.Target == UnauthorizedPath {
						status = http.StatusForbidden
						code = "FORBIDDEN"
					}
					response.Error(w, r, status, code, "access denied", map[string]string{"redirect": action.Target})
					return
				}
				http.Redirect(w, r, action.Target, http.StatusSeeOther)
			}
		})
	}
}

func wantsJSON(r *http.Request) bool {
	accept := r.Header.Get("Accept")
	return strings.Contains(accept, "application/json") ||
		strings.HasPrefix(r.Header.Get("Content-Type"), "application/json")
}

const loadingPage = `<!doctype html><html><head><meta http-equiv="refresh" content="1"><title>Loading</title></head><body>Signing you in&hellip;</body></html>`
