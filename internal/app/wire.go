//go:build wireinject
// +build wireinject

package app

import (
	"context"

	"github.com/google/wire"

	"github.com/haulstack/console-gateway/internal/config"
)

func Initialize(ctx context.Context, cfg *config.Config) (*App, func(), error) {
	wire.Build(
		provideObservability,
		provideLogger,
		provideStore,
		provideSealer,
		provideVault,
		provideUpstreamClient,
		provideAuthService,
		provideMonitor,
		provideSSO,
		provideSessionHandler,
		provideReadiness,
		provideRouter,
		provideServer,
		New,
	)
	return nil, nil, nil
}
