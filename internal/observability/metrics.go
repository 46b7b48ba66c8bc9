package observability

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/sandeepkv93/security-monitoring-service/internal/config"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

const meterName = "security-monitoring-service"

type AppMetrics struct {
	repositoryCounter   metric.Int64Counter
	loginCounter        metric.Int64Counter
	sessionCounter      metric.Int64Counter
	anomalyCounter      metric.Int64Counter
	responseCounter     metric.Int64Counter
	securityEventCount  metric.Int64Counter
	notificationCounter metric.Int64Counter
	tokenCounter        metric.Int64Counter
}

var (
	metricsMu  sync.RWMutex
	appMetrics *AppMetrics
)

func InitMetrics(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*sdkmetric.MeterProvider, error) {
	if !cfg.OTELMetricsEnabled {
		mp := sdkmetric.NewMeterProvider()
		otel.SetMeterProvider(mp)
		if err := registerMetrics(mp); err != nil {
			return nil, err
		}
		logger.Info("otel metrics disabled")
		return mp, nil
	}

	opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(cfg.OTELExporterOTLPEndpoint)}
	if cfg.OTELExporterOTLPInsecure {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}
	exporter, err := otlpmetricgrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create otlp metric exporter: %w", err)
	}

	res, err := newResource(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create metric resource: %w", err)
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(cfg.OTELMetricsExportInterval))
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(reader),
	)
	otel.SetMeterProvider(mp)
	if err := registerMetrics(mp); err != nil {
		return nil, err
	}

	logger.Info("otel metrics initialized", "endpoint", cfg.OTELExporterOTLPEndpoint)
	return mp, nil
}

func registerMetrics(mp metric.MeterProvider) error {
	meter := mp.Meter(meterName)
	var m AppMetrics
	counters := []struct {
		name string
		dst  *metric.Int64Counter
	}{
		{"repository.operations", &m.repositoryCounter},
		{"auth.login.attempts", &m.loginCounter},
		{"session.operations", &m.sessionCounter},
		{"security.anomalies.detected", &m.anomalyCounter},
		{"security.responses.executed", &m.responseCounter},
		{"security.events.logged", &m.securityEventCount},
		{"security.notifications.delivered", &m.notificationCounter},
		{"auth.access_token.validations", &m.tokenCounter},
	}
	for _, c := range counters {
		counter, err := meter.Int64Counter(c.name)
		if err != nil {
			return fmt.Errorf("create counter %s: %w", c.name, err)
		}
		*c.dst = counter
	}

	metricsMu.Lock()
	appMetrics = &m
	metricsMu.Unlock()
	return nil
}

func currentMetrics() *AppMetrics {
	metricsMu.RLock()
	defer metricsMu.RUnlock()
	return appMetrics
}

func RecordRepositoryOperation(ctx context.Context, entity, operation, outcome string) {
	m := currentMetrics()
	if m == nil {
		return
	}
	m.repositoryCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("entity", entity),
		attribute.String("operation", operation),
		attribute.String("outcome", outcome),
	))
}

func RecordAuthLogin(ctx context.Context, status string) {
	m := currentMetrics()
	if m == nil {
		return
	}
	m.loginCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

func RecordSessionOperation(ctx context.Context, operation string, count int64) {
	m := currentMetrics()
	if m == nil || count <= 0 {
		return
	}
	m.sessionCounter.Add(ctx, count, metric.WithAttributes(attribute.String("operation", operation)))
}

func RecordAnomalyDetected(ctx context.Context, anomalyType, severity string) {
	m := currentMetrics()
	if m == nil {
		return
	}
	m.anomalyCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("type", anomalyType),
		attribute.String("severity", severity),
	))
}

func RecordSecurityResponse(ctx context.Context, action, outcome string) {
	m := currentMetrics()
	if m == nil {
		return
	}
	m.responseCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("action", action),
		attribute.String("outcome", outcome),
	))
}

func RecordSecurityEvent(ctx context.Context, eventType, severity string) {
	m := currentMetrics()
	if m == nil {
		return
	}
	m.securityEventCount.Add(ctx, 1, metric.WithAttributes(
		attribute.String("event_type", eventType),
		attribute.String("severity", severity),
	))
}

func RecordNotificationDelivery(ctx context.Context, channel, outcome string) {
	m := currentMetrics()
	if m == nil {
		return
	}
	m.notificationCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("channel", channel),
		attribute.String("outcome", outcome),
	))
}

func RecordAccessTokenValidation(ctx context.Context, outcome, source string) {
	m := currentMetrics()
	if m == nil {
		return
	}
	m.tokenCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("outcome", outcome),
		attribute.String("source", source),
	))
}
