package config

import (
	"context"
	"errors"
	"strings"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	loadCounterOnce sync.Once
	loadCounter     metric.Int64Counter
)

// recordLoad counts one configuration load. A nil cfg is reported with the
// "unknown" environment and no driver or reuse policy.
func recordLoad(ctx context.Context, cfg *Config, err error) {
	loadCounterOnce.Do(func() {
		counter, cerr := otel.Meter("authd/config").Int64Counter(
			"authd.config.loads",
			metric.WithDescription("Configuration loads by outcome and failure class."),
		)
		if cerr == nil {
			loadCounter = counter
		}
	})
	if loadCounter == nil {
		return
	}
	loadCounter.Add(ctx, 1, metric.WithAttributes(loadAttributes(cfg, err)...))
}

func loadAttributes(cfg *Config, err error) []attribute.KeyValue {
	env, driver, policy := "", "", ""
	if cfg != nil {
		env, driver, policy = cfg.Env, cfg.DatabaseDriver, cfg.RefreshReusePolicy
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	return []attribute.KeyValue{
		attribute.String("env", normalizeLabel(env)),
		attribute.String("database_driver", normalizeLabel(driver)),
		attribute.String("reuse_policy", normalizeLabel(policy)),
		attribute.String("outcome", outcome),
		attribute.String("error_class", classifyLoadError(err)),
	}
}

func normalizeLabel(v string) string {
	v = strings.TrimSpace(strings.ToLower(v))
	if v == "" {
		return "unknown"
	}
	return v
}

func classifyLoadError(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, ErrInvalidConfig):
		return "validation"
	case errors.Is(err, ErrMalformedValue):
		return "parse"
	case errors.Is(err, ErrReadConfigFile):
		return "read"
	default:
		return "load"
	}
}
