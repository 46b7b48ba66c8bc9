//go:build wireinject

package di

import (
	"context"
	"log/slog"

	"github.com/google/wire"

	"github.com/sandeepkv93/security-monitoring-service/internal/app"
	"github.com/sandeepkv93/security-monitoring-service/internal/config"
	"github.com/sandeepkv93/security-monitoring-service/internal/observability"
)

func InitializeStack(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Stack, func(), error) {
	wire.Build(StackSet)
	return nil, nil, nil
}

func InitializeApp(cfg *config.Config, logger *slog.Logger, runtime *observability.Runtime, stack *Stack) (*app.App, error) {
	wire.Build(HTTPSet, app.New)
	return nil, nil
}
