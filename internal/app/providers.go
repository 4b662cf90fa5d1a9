package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/haulstack/console-gateway/internal/auth"
	"github.com/haulstack/console-gateway/internal/config"
	"github.com/haulstack/console-gateway/internal/health"
	"github.com/haulstack/console-gateway/internal/http/handler"
	"github.com/haulstack/console-gateway/internal/http/router"
	"github.com/haulstack/console-gateway/internal/monitor"
	"github.com/haulstack/console-gateway/internal/observability"
	"github.com/haulstack/console-gateway/internal/security"
	"github.com/haulstack/console-gateway/internal/session"
	"github.com/haulstack/console-gateway/internal/upstream"
	"github.com/haulstack/console-gateway/internal/vault"
)

// Remembered sessions go stale upstream after 30 days; no point keeping the
// vault record longer.
const vaultRecordTTL = 30 * 24 * time.Hour

func provideStore() *session.Store {
	return session.NewStore()
}

func provideSealer(cfg *config.Config) (*security.Sealer, error) {
	key := cfg.VaultSealKey
	if key == "" {
		// Ephemeral key: remember-me still works within this process
		// lifetime, which is all the memory vault offers anyway.
		generated, err := security.NewSealKey()
		if err != nil {
			return nil, err
		}
		key = generated
	}
	return security.NewSealer(key)
}

func provideVault(cfg *config.Config, logger *slog.Logger) (vault.Vault, func(), error) {
	switch cfg.VaultBackend {
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		v := vault.NewRedisVault(client, cfg.RedisPrefix, vaultRecordTTL)
		return v, func() { _ = client.Close() }, nil
	case "database":
		db, err := vault.OpenDatabase(cfg.DatabaseDriver, cfg.DatabaseDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("open vault database: %w", err)
		}
		v, err := vault.NewGormVault(db)
		if err != nil {
			return nil, nil, err
		}
		cleanup := func() {
			if sqlDB, err := db.DB(); err == nil {
				_ = sqlDB.Close()
			}
		}
		return v, cleanup, nil
	default:
		logger.Info("using in-memory vault; remembered sessions will not survive a restart")
		return vault.NewMemoryVault(), func() {}, nil
	}
}

func provideUpstreamClient(cfg *config.Config, store *session.Store) (*upstream.Client, error) {
	return upstream.NewClient(cfg.UpstreamBaseURL, cfg.UpstreamTimeout, store.AccessToken)
}

func provideAuthService(client *upstream.Client, store *session.Store, v vault.Vault, sealer *security.Sealer, cfg *config.Config, logger *slog.Logger) *auth.Service {
	return auth.NewService(client, store, v, sealer, cfg.TerminalID, logger)
}

func provideMonitor(store *session.Store, svc *auth.Service) *monitor.Monitor {
	return monitor.New(monitor.NewRealClock(), store, svc, svc.ForceLogout)
}

func provideSSO(cfg *config.Config) *auth.SSO {
	return auth.NewSSO(auth.SSOSettings{
		ClientID:    cfg.SSOClientID,
		AuthURL:     cfg.SSOAuthURL,
		TokenURL:    cfg.SSOTokenURL,
		RedirectURL: cfg.SSORedirectURL,
		Scopes:      cfg.SSOScopes,
	})
}

func provideSessionHandler(svc *auth.Service, store *session.Store, mon *monitor.Monitor, sso *auth.SSO) *handler.SessionHandler {
	return handler.NewSessionHandler(svc, store, mon, sso)
}

func provideReadiness(v vault.Vault) *health.ProbeRunner {
	// ErrNoSession means the backend answered; anything else means the
	// vault's redis or database is down.
	vaultCheck := health.NewCheck("vault", func(ctx context.Context) error {
		if _, err := v.Get(ctx, "readiness-probe"); err != nil && !errors.Is(err, vault.ErrNoSession) {
			return err
		}
		return nil
	})
	return health.NewProbeRunner(2*time.Second, 5*time.Second, vaultCheck)
}

func provideRouter(cfg *config.Config, h *handler.SessionHandler, store *session.Store, readiness *health.ProbeRunner) http.Handler {
	policies := make([]router.RoutePolicy, 0, len(cfg.RoutePolicies))
	for _, p := range cfg.RoutePolicies {
		policies = append(policies, router.RoutePolicy{Path: p.Path, Roles: p.Roles})
	}
	return router.New(router.Dependencies{
		SessionHandler: h,
		Store:          store,
		RoutePolicies:  policies,
		Readiness:      readiness,
		LoginRateLimit: cfg.LoginRateLimitPerMinute,
		EnableOTelHTTP: cfg.OTELEnabled,
	})
}

func provideServer(cfg *config.Config, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

func provideObservability(ctx context.Context, cfg *config.Config) (*observability.Runtime, error) {
	return observability.InitRuntime(ctx, observability.Config{
		Enabled:     cfg.OTELEnabled,
		Endpoint:    cfg.OTELEndpoint,
		Insecure:    cfg.OTELInsecure,
		ServiceName: cfg.OTELServiceName,
		Environment: cfg.Environment,
	})
}

func provideLogger(runtime *observability.Runtime) *slog.Logger {
	return runtime.Logger
}
