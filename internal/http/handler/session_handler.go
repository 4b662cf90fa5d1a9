package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/haulstack/console-gateway/internal/auth"
	"github.com/haulstack/console-gateway/internal/guard"
	"github.com/haulstack/console-gateway/internal/http/response"
	"github.com/haulstack/console-gateway/internal/monitor"
	"github.com/haulstack/console-gateway/internal/observability"
	"github.com/haulstack/console-gateway/internal/security"
	"github.com/haulstack/console-gateway/internal/session"
	"github.com/haulstack/console-gateway/internal/upstream"
)

// SessionHandler is the console UI's window onto the session: it never talks
// to the remote auth service directly, only through auth.Service.
type SessionHandler struct {
	svc     *auth.Service
	store   *session.Store
	monitor *monitor.Monitor
	sso     *auth.SSO
}

func NewSessionHandler(svc *auth.Service, store *session.Store, mon *monitor.Monitor, sso *auth.SSO) *SessionHandler {
	return &SessionHandler{svc: svc, store: store, monitor: mon, sso: sso}
}

// SessionView is what the UI polls and streams. Tokens stay inside the
// gateway process.
type SessionView struct {
	User            *session.User    `json:"user"`
	IsAuthenticated bool             `json:"is_authenticated"`
	IsLoading       bool             `json:"is_loading"`
	Error           string           `json:"error,omitempty"`
	TokenExpiresAt  *time.Time       `json:"token_expires_at,omitempty"`
	Timeout         monitor.Snapshot `json:"timeout"`
}

func (h *SessionHandler) view() SessionView {
	snap := h.store.Snapshot()
	view := SessionView{
		User:            snap.User,
		IsAuthenticated: snap.IsAuthenticated,
		IsLoading:       snap.IsLoading,
		Error:           snap.Error,
		Timeout:         h.monitor.Snapshot(),
	}
	// Opaque tokens carry no expiry hint; that is fine.
	if snap.AccessToken != "" {
		if info, err := security.InspectAccessToken(snap.AccessToken); err == nil && !info.ExpiresAt.IsZero() {
			view.TokenExpiresAt = &info.ExpiresAt
		}
	}
	return view
}

type loginRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	RememberMe bool   `json:"rememberMe"`
}

func (h *SessionHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decode(r, &req); err != nil {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "malformed login payload", nil)
		return
	}
	if req.Email == "" || req.Password == "" {
		response.Error(w, r, http.StatusBadRequest, "VALIDATION_FAILED", "email and password are required", nil)
		return
	}
	if err := h.svc.Login(r.Context(), req.Email, req.Password, req.RememberMe); err != nil {
		observability.Audit(r, "login_failed", "email", req.Email)
		response.UpstreamError(w, r, err)
		return
	}
	observability.Audit(r, "login_succeeded", "email", req.Email)
	response.JSON(w, r, http.StatusOK, h.view())
}

func (h *SessionHandler) Logout(w http.ResponseWriter, r *http.Request) {
	h.svc.Logout(r.Context())
	observability.Audit(r, "logout")
	response.JSON(w, r, http.StatusOK, h.view())
}

func (h *SessionHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Refresh(r.Context()); err != nil {
		response.UpstreamError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, h.view())
}

func (h *SessionHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req upstream.RegisterProfile
	if err := decode(r, &req); err != nil {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "malformed registration payload", nil)
		return
	}
	user, err := h.svc.Register(r.Context(), req)
	if err != nil {
		response.UpstreamError(w, r, err)
		return
	}
	// Registration never authenticates; the new account signs in normally.
	response.JSON(w, r, http.StatusCreated, map[string]any{"user": user})
}

func (h *SessionHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := decode(r, &req); err != nil || req.Email == "" {
		response.Error(w, r, http.StatusBadRequest, "VALIDATION_FAILED", "email is required", nil)
		return
	}
	if err := h.svc.ForgotPassword(r.Context(), req.Email); err != nil {
		response.UpstreamError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, map[string]bool{"success": true})
}

func (h *SessionHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token    string `json:"token"`
		Password string `json:"password"`
	}
	if err := decode(r, &req); err != nil || req.Token == "" || req.Password == "" {
		response.Error(w, r, http.StatusBadRequest, "VALIDATION_FAILED", "token and password are required", nil)
		return
	}
	if err := h.svc.ResetPassword(r.Context(), req.Token, req.Password); err != nil {
		response.UpstreamError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, map[string]bool{"success": true})
}

func (h *SessionHandler) Current(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, r, http.StatusOK, h.view())
}

func (h *SessionHandler) History(w http.ResponseWriter, r *http.Request) {
	records, err := h.svc.LoginHistory(r.Context())
	if err != nil {
		response.UpstreamError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, map[string]any{"sessions": records})
}

func (h *SessionHandler) RevokeHistorySession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "session_id")
	if err := h.svc.RevokeSession(r.Context(), id); err != nil {
		response.UpstreamError(w, r, err)
		return
	}
	observability.Audit(r, "remote_session_revoked", "session_id", id)
	response.JSON(w, r, http.StatusOK, map[string]bool{"success": true})
}

// Activity is the UI's batched report of pointer/key/scroll events. It only
// reschedules the timeout; the warning state does not react to it.
func (h *SessionHandler) Activity(w http.ResponseWriter, _ *http.Request) {
	h.monitor.Activity()
	w.WriteHeader(http.StatusNoContent)
}

func (h *SessionHandler) StayLoggedIn(w http.ResponseWriter, r *http.Request) {
	if err := h.monitor.StayLoggedIn(r.Context()); err != nil {
		response.UpstreamError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, h.view())
}

func (h *SessionHandler) SSOLogin(w http.ResponseWriter, r *http.Request) {
	if !h.sso.Enabled() {
		response.Error(w, r, http.StatusNotFound, "SSO_DISABLED", "single sign-on is not configured", nil)
		return
	}
	redirect := r.URL.Query().Get("redirect")
	if redirect == "" || !strings.HasPrefix(redirect, "/") {
		redirect = "/"
	}
	state := uuid.NewString()
	security.SetSessionCookie(w, ssoStateCookie, state, 600)
	security.SetSessionCookie(w, ssoRedirectCookie, redirect, 600)
	response.JSON(w, r, http.StatusOK, map[string]string{"url": h.sso.LoginURL(state)})
}

const (
	ssoStateCookie    = "sso_state"
	ssoRedirectCookie = "sso_redirect"
)

// SSOCallback is where the identity provider sends the browser back. The
// gateway only verifies the state nonce; the console shell finishes the code
// exchange against the auth service.
func (h *SessionHandler) SSOCallback(w http.ResponseWriter, r *http.Request) {
	if !h.sso.Enabled() {
		response.Error(w, r, http.StatusNotFound, "SSO_DISABLED", "single sign-on is not configured", nil)
		return
	}
	state := r.URL.Query().Get("state")
	if state == "" || state != security.GetCookie(r, ssoStateCookie) {
		observability.Audit(r, "sso_state_mismatch")
		response.Error(w, r, http.StatusBadRequest, "SSO_STATE_MISMATCH", "login attempt did not originate here", nil)
		return
	}
	redirect := security.GetCookie(r, ssoRedirectCookie)
	if redirect == "" || !strings.HasPrefix(redirect, "/") {
		redirect = "/"
	}
	security.ClearSessionCookie(w, ssoStateCookie)
	security.ClearSessionCookie(w, ssoRedirectCookie)

	target := redirect
	if code := r.URL.Query().Get("code"); code != "" {
		sep := "?"
		if strings.Contains(target, "?") {
			sep = "&"
		}
		target += sep + "sso_code=" + url.QueryEscape(code)
	}
	observability.Audit(r, "sso_callback", "redirect", redirect)
	http.Redirect(w, r, target, http.StatusSeeOther)
}

// Events streams session and timeout state over SSE. The UI drives its
// warning dialog and navigation off this channel instead of polling.
func (h *SessionHandler) Events(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		response.Error(w, r, http.StatusInternalServerError, "STREAM_UNSUPPORTED", "streaming unsupported", nil)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Connection", "keep-alive")

	sub := make(chan session.Snapshot, 16)
	h.store.Subscribe(sub)
	defer h.store.Unsubscribe(sub)

	// When the UI tells us where it is, it also gets navigation verdicts
	// for that location as the session changes underneath it.
	var nav <-chan guard.Action
	if path := r.URL.Query().Get("path"); strings.HasPrefix(path, "/") {
		var roles []string
		if raw := r.URL.Query().Get("roles"); raw != "" {
			roles = strings.Split(raw, ",")
		}
		watcher := guard.NewWatcher(h.store, roles, path)
		watcher.Start()
		defer watcher.Close()
		nav = watcher.Actions()
	}

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	send := func() bool {
		payload, err := json.Marshal(h.view())
		if err != nil {
			return false
		}
		if _, err := w.Write([]byte("event: session\ndata: ")); err != nil {
			return false
		}
		if _, err := w.Write(payload); err != nil {
			return false
		}
		if _, err := w.Write([]byte("\n\n")); err != nil {
			return false
		}
		flusher.Flush()
		return true
	}

	sendNav := func(a guard.Action) bool {
		payload, err := json.Marshal(map[string]string{"action": a.Kind.String(), "target": a.Target})
		if err != nil {
			return false
		}
		if _, err := fmt.Fprintf(w, "event: navigate\ndata: %s\n\n", payload); err != nil {
			return false
		}
		flusher.Flush()
		return true
	}

	if !send() {
		return
	}
	for {
		select {
		case <-r.Context().Done():
			return
		case a := <-nav:
			if !sendNav(a) {
				return
			}
		case <-sub:
			if !send() {
				return
			}
		case <-ticker.C:
			// Keeps the countdown moving while the warning is up.
			if h.monitor.Snapshot().WarningVisible {
				if !send() {
					return
				}
			}
		}
	}
}

func decode(r *http.Request, out any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	return dec.Decode(out)
}
