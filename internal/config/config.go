package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the gateway's environment-driven configuration. Everything uses
// the CONSOLE_ prefix; see .env.example for the full surface.
type Config struct {
	ListenAddr  string
	Environment string

	UpstreamBaseURL string
	UpstreamTimeout time.Duration

	TerminalID string

	VaultBackend   string // memory | redis | database
	VaultSealKey   string // 32 bytes, hex
	RedisAddr      string
	RedisPrefix    string
	DatabaseDriver string // sqlite | postgres
	DatabaseDSN    string

	LoginRateLimitPerMinute int

	RoutePolicies []RoutePolicy

	OTELEnabled     bool
	OTELEndpoint    string
	OTELInsecure    bool
	OTELServiceName string

	SSOClientID    string
	SSOAuthURL     string
	SSOTokenURL    string
	SSORedirectURL string
	SSOScopes      []string

	ShutdownTimeout time.Duration
}

// RoutePolicy mirrors router.RoutePolicy without importing it; config stays a
// leaf package.
type RoutePolicy struct {
	Path  string
	Roles []string
}

func Load(ctx context.Context) (*Config, error) {
	cfg := &Config{
		ListenAddr:      envString("CONSOLE_LISTEN_ADDR", "127.0.0.1:4600"),
		Environment:     envString("CONSOLE_ENVIRONMENT", "development"),
		UpstreamBaseURL: envString("CONSOLE_UPSTREAM_BASE_URL", ""),
		TerminalID:      envString("CONSOLE_TERMINAL_ID", defaultTerminalID()),
		VaultBackend:    envString("CONSOLE_VAULT_BACKEND", "memory"),
		VaultSealKey:    envString("CONSOLE_VAULT_SEAL_KEY", ""),
		RedisAddr:       envString("CONSOLE_REDIS_ADDR", "127.0.0.1:6379"),
		RedisPrefix:     envString("CONSOLE_REDIS_PREFIX", "console_session"),
		DatabaseDriver:  envString("CONSOLE_DATABASE_DRIVER", "sqlite"),
		DatabaseDSN:     envString("CONSOLE_DATABASE_DSN", "console-gateway.db"),
		OTELEndpoint:    envString("CONSOLE_OTEL_ENDPOINT", "localhost:4317"),
		OTELServiceName: envString("CONSOLE_OTEL_SERVICE_NAME", "console-gateway"),
		SSOClientID:     envString("CONSOLE_SSO_CLIENT_ID", ""),
		SSOAuthURL:      envString("CONSOLE_SSO_AUTH_URL", ""),
		SSOTokenURL:     envString("CONSOLE_SSO_TOKEN_URL", ""),
		SSORedirectURL:  envString("CONSOLE_SSO_REDIRECT_URL", ""),
	}

	var err error
	if cfg.UpstreamTimeout, err = envDuration("CONSOLE_UPSTREAM_TIMEOUT", 15*time.Second); err != nil {
		return nil, recordAndWrap(ctx, cfg, err)
	}
	if cfg.ShutdownTimeout, err = envDuration("CONSOLE_SHUTDOWN_TIMEOUT", 10*time.Second); err != nil {
		return nil, recordAndWrap(ctx, cfg, err)
	}
	if cfg.LoginRateLimitPerMinute, err = envInt("CONSOLE_LOGIN_RATE_LIMIT_PER_MINUTE", 10); err != nil {
		return nil, recordAndWrap(ctx, cfg, err)
	}
	if cfg.OTELEnabled, err = envBool("CONSOLE_OTEL_ENABLED", false); err != nil {
		return nil, recordAndWrap(ctx, cfg, err)
	}
	if cfg.OTELInsecure, err = envBool("CONSOLE_OTEL_INSECURE", true); err != nil {
		return nil, recordAndWrap(ctx, cfg, err)
	}
	if scopes := envString("CONSOLE_SSO_SCOPES", "openid profile email"); scopes != "" {
		cfg.SSOScopes = strings.Fields(scopes)
	}
	if cfg.RoutePolicies, err = ParseRoutePolicies(envString("CONSOLE_ROUTE_POLICIES", "/app=")); err != nil {
		return nil, recordAndWrap(ctx, cfg, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, recordAndWrap(ctx, cfg, err)
	}
	recordConfigValidationEvent(ctx, cfg.Environment, "success", "none")
	return cfg, nil
}

func (c *Config) validate() error {
	if c.UpstreamBaseURL == "" {
		return fmt.Errorf("validate config: CONSOLE_UPSTREAM_BASE_URL is required")
	}
	switch c.VaultBackend {
	case "memory", "redis", "database":
	default:
		return fmt.Errorf("validate config: unknown vault backend %q", c.VaultBackend)
	}
	if c.VaultBackend == "database" {
		switch c.DatabaseDriver {
		case "sqlite", "postgres":
		default:
			return fmt.Errorf("validate config: unknown database driver %q", c.DatabaseDriver)
		}
	}
	if c.VaultBackend != "memory" && c.VaultSealKey == "" {
		return fmt.Errorf("validate config: CONSOLE_VAULT_SEAL_KEY is required for the %s vault", c.VaultBackend)
	}
	if c.LoginRateLimitPerMinute <= 0 {
		return fmt.Errorf("validate config: login rate limit must be positive")
	}
	return nil
}

// ParseRoutePolicies parses "path=role1,role2;path2=" into ordered policies.
// An empty role list gates the path on authentication only.
func ParseRoutePolicies(raw string) ([]RoutePolicy, error) {
	var policies []RoutePolicy
	for _, entry := range strings.Split(raw, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		path, roleList, found := strings.Cut(entry, "=")
		if !found {
			return nil, fmt.Errorf("parse route policy %q: missing '='", entry)
		}
		path = strings.TrimSpace(path)
		if !strings.HasPrefix(path, "/") {
			return nil, fmt.Errorf("parse route policy %q: path must start with '/'", entry)
		}
		var roles []string
		for _, role := range strings.Split(roleList, ",") {
			role = strings.TrimSpace(role)
			if role != "" {
				roles = append(roles, role)
			}
		}
		policies = append(policies, RoutePolicy{Path: path, Roles: roles})
	}
	return policies, nil
}

func defaultTerminalID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "terminal"
	}
	return host
}

func recordAndWrap(ctx context.Context, cfg *Config, err error) error {
	recordConfigValidationEvent(ctx, cfg.Environment, "failure", classifyConfigLoadError(err))
	return err
}

func envString(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return v, nil
}

func envBool(key string, fallback bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("parse %s: %w", key, err)
	}
	return v, nil
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return v, nil
}
