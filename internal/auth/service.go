// Package auth binds the upstream auth service to the local session store.
// It is the only writer of the store besides the timeout monitor's forced
// logout path, and it owns the remember-me vault round trip.
package auth

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/haulstack/console-gateway/internal/observability"
	"github.com/haulstack/console-gateway/internal/security"
	"github.com/haulstack/console-gateway/internal/session"
	"github.com/haulstack/console-gateway/internal/upstream"
	"github.com/haulstack/console-gateway/internal/vault"
)

// API is what the service needs from the upstream client.
type API interface {
	Login(ctx context.Context, email, password string) (*upstream.LoginResult, error)
	Register(ctx context.Context, profile upstream.RegisterProfile) (*session.User, error)
	Refresh(ctx context.Context, refreshToken string) (*upstream.TokenPair, error)
	Logout(ctx context.Context) error
	ForgotPassword(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, token, newPassword string) error
	LoginHistory(ctx context.Context) ([]upstream.LoginRecord, error)
	RevokeSession(ctx context.Context, sessionID string) error
}

var ErrNoRefreshToken = errors.New("no refresh token held")

type Service struct {
	api        API
	store      *session.Store
	vault      vault.Vault
	sealer     *security.Sealer
	terminalID string
	logger     *slog.Logger

	// Concurrent refreshes are coalesced; whoever asks while one is in
	// flight shares its outcome. Logins stay last-write-wins.
	refreshGroup singleflight.Group

	mu         sync.Mutex
	remembered bool
}

func NewService(api API, store *session.Store, v vault.Vault, sealer *security.Sealer, terminalID string, logger *slog.Logger) *Service {
	return &Service{
		api:        api,
		store:      store,
		vault:      v,
		sealer:     sealer,
		terminalID: terminalID,
		logger:     logger,
	}
}

// Login authenticates against the remote service. Only an auth rejection is
// written into the store; validation, transport and server faults end the
// loading window without a verdict and propagate as typed errors for the
// caller to render.
func (s *Service) Login(ctx context.Context, email, password string, rememberMe bool) error {
	s.store.LoginStart()
	observability.RecordSessionTransition(ctx, "login_start")

	result, err := s.api.Login(ctx, email, password)
	if err != nil {
		if msg, ok := upstream.IsAuthRejected(err); ok {
			s.store.LoginFailure(msg)
			observability.RecordSessionTransition(ctx, "login_failure")
			return err
		}
		s.store.RequestAborted()
		observability.RecordSessionTransition(ctx, "login_aborted")
		return err
	}

	s.store.LoginSuccess(result.User, result.Token, result.RefreshToken)
	observability.RecordSessionTransition(ctx, "login_success")

	s.setRemembered(rememberMe)
	if rememberMe {
		if err := s.persist(ctx, &result.User, result.RefreshToken); err != nil {
			s.logger.WarnContext(ctx, "persist remembered session failed", "error", err)
		}
	} else {
		_ = s.vault.Delete(ctx, s.terminalID)
	}
	return nil
}

// Logout clears the local session no matter what the remote call does. A dead
// network must never trap an operator in a logged-in console.
func (s *Service) Logout(ctx context.Context) {
	if err := s.api.Logout(ctx); err != nil {
		s.logger.WarnContext(ctx, "remote logout failed, clearing local session anyway", "error", err)
	}
	s.store.Logout()
	s.setRemembered(false)
	_ = s.vault.Delete(ctx, s.terminalID)
	observability.RecordSessionTransition(ctx, "logout")
}

// ForceLogout is the timeout/refresh-failure path: local only, no remote call
// has a say in it.
func (s *Service) ForceLogout(ctx context.Context) {
	s.store.Logout()
	s.setRemembered(false)
	_ = s.vault.Delete(ctx, s.terminalID)
	observability.RecordSessionTransition(ctx, "forced_logout")
}

// Refresh exchanges the held refresh token for a new pair. Concurrent calls
// share a single upstream request. A rejection kills the session; a transport
// failure leaves it untouched.
func (s *Service) Refresh(ctx context.Context) error {
	_, err, _ := s.refreshGroup.Do("refresh", func() (any, error) {
		return nil, s.refreshOnce(ctx)
	})
	return err
}

func (s *Service) refreshOnce(ctx context.Context) error {
	refreshToken := s.store.RefreshToken()
	if refreshToken == "" {
		return ErrNoRefreshToken
	}
	s.store.RefreshStart()

	pair, err := s.api.Refresh(ctx, refreshToken)
	if err != nil {
		if msg, ok := upstream.IsAuthRejected(err); ok {
			s.store.RefreshFailure(msg)
			_ = s.vault.Delete(ctx, s.terminalID)
			observability.RecordRefreshAttempt(ctx, "rejected")
			return err
		}
		s.store.RequestAborted()
		observability.RecordRefreshAttempt(ctx, "transport_failure")
		return err
	}

	s.store.RefreshSuccess(pair.Token, pair.RefreshToken)
	observability.RecordRefreshAttempt(ctx, "success")

	if s.isRemembered() {
		snap := s.store.Snapshot()
		if snap.User != nil {
			if err := s.persist(ctx, snap.User, pair.RefreshToken); err != nil {
				s.logger.WarnContext(ctx, "update remembered session failed", "error", err)
			}
		}
	}
	return nil
}

// RestoreSession rehydrates a remembered session at boot by redeeming the
// sealed refresh token. A rejection discards the record; a transport failure
// leaves it for the next start.
func (s *Service) RestoreSession(ctx context.Context) error {
	rec, err := s.vault.Get(ctx, s.terminalID)
	if err != nil {
		if errors.Is(err, vault.ErrNoSession) {
			return nil
		}
		return err
	}
	refreshToken, err := s.sealer.Open(rec.SealedRefreshToken)
	if err != nil {
		s.logger.WarnContext(ctx, "discarding unreadable persisted session", "error", err)
		_ = s.vault.Delete(ctx, s.terminalID)
		return nil
	}

	pair, err := s.api.Refresh(ctx, refreshToken)
	if err != nil {
		if _, ok := upstream.IsAuthRejected(err); ok {
			_ = s.vault.Delete(ctx, s.terminalID)
			s.logger.InfoContext(ctx, "persisted session no longer valid, discarded")
			return nil
		}
		return err
	}

	user := session.User{ID: rec.UserID, Name: rec.Name, Email: rec.Email, Roles: rec.Roles}
	s.store.LoginSuccess(user, pair.Token, pair.RefreshToken)
	s.setRemembered(true)
	if err := s.persist(ctx, &user, pair.RefreshToken); err != nil {
		s.logger.WarnContext(ctx, "reseal restored session failed", "error", err)
	}
	observability.RecordSessionTransition(ctx, "session_restored")
	return nil
}

// Register creates an account. It does not authenticate: the caller goes
// through Login afterwards.
func (s *Service) Register(ctx context.Context, profile upstream.RegisterProfile) (*session.User, error) {
	return s.api.Register(ctx, profile)
}

func (s *Service) ForgotPassword(ctx context.Context, email string) error {
	return s.api.ForgotPassword(ctx, email)
}

func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	return s.api.ResetPassword(ctx, token, newPassword)
}

func (s *Service) LoginHistory(ctx context.Context) ([]upstream.LoginRecord, error) {
	return s.api.LoginHistory(ctx)
}

func (s *Service) RevokeSession(ctx context.Context, sessionID string) error {
	return s.api.RevokeSession(ctx, sessionID)
}

func (s *Service) persist(ctx context.Context, user *session.User, refreshToken string) error {
	sealed, err := s.sealer.Seal(refreshToken)
	if err != nil {
		return err
	}
	return s.vault.Put(ctx, &vault.Record{
		TerminalID:         s.terminalID,
		UserID:             user.ID,
		Name:               user.Name,
		Email:              user.Email,
		Roles:              user.Roles,
		SealedRefreshToken: sealed,
		SavedAt:            time.Now().UTC(),
	})
}

func (s *Service) setRemembered(v bool) {
	s.mu.Lock()
	s.remembered = v
	s.mu.Unlock()
}

func (s *Service) isRemembered() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remembered
}
