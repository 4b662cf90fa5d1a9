package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/haulstack/console-gateway/internal/auth"
	"github.com/haulstack/console-gateway/internal/config"
	"github.com/haulstack/console-gateway/internal/monitor"
	"github.com/haulstack/console-gateway/internal/observability"
)

// App is the assembled gateway: one HTTP server, one session, one monitor.
type App struct {
	Config        *config.Config
	Logger        *slog.Logger
	Server        *http.Server
	Observability *observability.Runtime
	Auth          *auth.Service
	Monitor       *monitor.Monitor
}

func New(cfg *config.Config, logger *slog.Logger, server *http.Server, runtime *observability.Runtime, svc *auth.Service, mon *monitor.Monitor) *App {
	return &App{
		Config:        cfg,
		Logger:        logger,
		Server:        server,
		Observability: runtime,
		Auth:          svc,
		Monitor:       mon,
	}
}

// Run serves until ctx is cancelled, then drains. A remembered session is
// redeemed before the listener opens so the first page load sees the
// restored state.
func (a *App) Run(ctx context.Context) error {
	if err := a.Auth.RestoreSession(ctx); err != nil {
		a.Logger.Warn("session restore failed", "error", err)
	}
	a.Monitor.Start()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.Logger.Info("gateway listening", "addr", a.Server.Addr, "terminal_id", a.Config.TerminalID)
		if err := a.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		return a.shutdown()
	})
	return g.Wait()
}

func (a *App) shutdown() error {
	a.Logger.Info("gateway shutting down")
	timeout := a.Config.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var errs []error
	if err := a.Server.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	a.Monitor.Close()
	if a.Observability != nil {
		if err := a.Observability.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
