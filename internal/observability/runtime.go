package observability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sandeepkv93/security-monitoring-service/internal/config"

	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Runtime owns the process telemetry providers.
type Runtime struct {
	MeterProvider  *sdkmetric.MeterProvider
	TracerProvider *sdktrace.TracerProvider
	LoggerProvider *sdklog.LoggerProvider
}

func InitRuntime(ctx context.Context, cfg *config.Config, logger *slog.Logger, lp *sdklog.LoggerProvider) (*Runtime, error) {
	rt := &Runtime{LoggerProvider: lp}
	var err error
	if rt.MeterProvider, err = InitMetrics(ctx, cfg, logger); err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}
	if rt.TracerProvider, err = InitTracing(ctx, cfg, logger); err != nil {
		_ = rt.MeterProvider.Shutdown(ctx)
		return nil, fmt.Errorf("init tracing: %w", err)
	}
	return rt, nil
}

type shutdownStep struct {
	name string
	fn   func(context.Context) error
}

// steps lists providers in flush order. The logger goes last so the other providers can
// still log while they drain.
func (r *Runtime) steps() []shutdownStep {
	var out []shutdownStep
	if r.TracerProvider != nil {
		out = append(out, shutdownStep{"tracer", r.TracerProvider.Shutdown})
	}
	if r.MeterProvider != nil {
		out = append(out, shutdownStep{"meter", r.MeterProvider.Shutdown})
	}
	if r.LoggerProvider != nil {
		out = append(out, shutdownStep{"logger", r.LoggerProvider.Shutdown})
	}
	return out
}

// Shutdown flushes every provider and joins their errors. A nil Runtime is a no-op.
func (r *Runtime) Shutdown(ctx context.Context) error {
	if r == nil {
		return nil
	}
	var errs []error
	for _, s := range r.steps() {
		if err := s.fn(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown %s provider: %w", s.name, err))
		}
	}
	return errors.Join(errs...)
}
