package config

import (
	"context"
	"strings"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	configMetricsOnce sync.Once
	configCounter     metric.Int64Counter
)

// recordConfigLoad counts one Load call. policySource is "file" when SECURITY_POLICY_FILE
// was set and "env" otherwise.
func recordConfigLoad(ctx context.Context, profile, policySource string, err error) {
	configMetricsOnce.Do(func() {
		counter, cerr := otel.Meter("security-monitoring-service").Int64Counter("config.load.events")
		if cerr == nil {
			configCounter = counter
		}
	})
	if configCounter == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	configCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("profile", normalizeConfigProfile(profile)),
		attribute.String("policy_source", policySource),
		attribute.String("outcome", outcome),
		attribute.String("error_class", classifyConfigLoadError(err)),
	))
}

// normalizeConfigProfile folds APP_ENV into a small fixed set so the attribute stays
// low-cardinality.
func normalizeConfigProfile(profile string) string {
	switch v := strings.TrimSpace(strings.ToLower(profile)); v {
	case "":
		return "unknown"
	case "dev", "development", "local":
		return "development"
	case "prod", "production":
		return "production"
	case "stage", "staging":
		return "staging"
	case "test", "ci":
		return "test"
	default:
		return "other"
	}
}

func classifyConfigLoadError(err error) string {
	if err == nil {
		return "none"
	}
	msg := strings.TrimSpace(err.Error())
	switch {
	case strings.Contains(msg, "SECURITY_POLICY_FILE"):
		return "policy_file"
	case strings.HasPrefix(msg, "validate config:"):
		return "validation"
	case strings.HasPrefix(msg, "parse "):
		return "parse"
	default:
		return "load"
	}
}
