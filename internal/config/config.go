// Package config loads the process-wide configuration once at startup from an
// optional .env file and the environment.
package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	ReusePolicyLog         = "log"
	ReusePolicyRevokeChain = "revoke_chain"

	minSecretLength = 32
)

var (
	// ErrInvalidConfig wraps every Validate failure returned by Load.
	ErrInvalidConfig = errors.New("validate config")
	// ErrMalformedValue marks a setting that could not be parsed.
	ErrMalformedValue = errors.New("parse")
	ErrReadConfigFile = errors.New("read config file")
)

type Config struct {
	Env      string
	HTTPAddr string
	LogLevel string
	// LogFormat is "json" or "text".
	LogFormat string

	DatabaseDriver string
	DatabaseURL    string

	JWTIssuer    string
	JWTAudience  string
	JWTSecret    string
	JWTAccessTTL time.Duration

	RefreshTTL         time.Duration
	RefreshTokenPepper string
	RefreshTokenBytes  int
	RefreshReusePolicy string
	BcryptCost         int

	RedisAddr        string
	RedisPassword    string
	RedisDB          int
	NegativeCacheTTL time.Duration

	OTELServiceName           string
	OTELEnvironment           string
	OTELExporterOTLPEndpoint  string
	OTELExporterOTLPInsecure  bool
	OTELMetricsEnabled        bool
	OTELTracingEnabled        bool
	OTELLogsEnabled           bool
	OTELMetricsExportInterval time.Duration

	ShutdownTimeout time.Duration
}

// Load reads .env (when present) and the environment. Environment variables
// win over the file.
func Load() (*Config, error) {
	return LoadFile(".env")
}

func LoadFile(path string) (*Config, error) {
	cfg, err := load(path)
	recordLoad(context.Background(), cfg, err)
	return cfg, err
}

func load(path string) (*Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("env")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("%w: %w", ErrReadConfigFile, err)
			}
		}
	}
	v.AutomaticEnv()
	setDefaults(v)

	cfg := &Config{
		Env:                      v.GetString("APP_ENV"),
		HTTPAddr:                 v.GetString("HTTP_ADDR"),
		LogLevel:                 v.GetString("LOG_LEVEL"),
		LogFormat:                v.GetString("LOG_FORMAT"),
		DatabaseDriver:           strings.ToLower(strings.TrimSpace(v.GetString("DATABASE_DRIVER"))),
		DatabaseURL:              v.GetString("DATABASE_URL"),
		JWTIssuer:                v.GetString("JWT_ISSUER"),
		JWTAudience:              v.GetString("JWT_AUDIENCE"),
		JWTSecret:                v.GetString("JWT_SECRET"),
		RefreshTokenPepper:       v.GetString("REFRESH_TOKEN_PEPPER"),
		RefreshTokenBytes:        v.GetInt("REFRESH_TOKEN_BYTES"),
		RefreshReusePolicy:       strings.ToLower(strings.TrimSpace(v.GetString("REFRESH_REUSE_POLICY"))),
		BcryptCost:               v.GetInt("BCRYPT_COST"),
		RedisAddr:                v.GetString("REDIS_ADDR"),
		RedisPassword:            v.GetString("REDIS_PASSWORD"),
		RedisDB:                  v.GetInt("REDIS_DB"),
		OTELServiceName:          v.GetString("OTEL_SERVICE_NAME"),
		OTELEnvironment:          v.GetString("OTEL_ENVIRONMENT"),
		OTELExporterOTLPEndpoint: v.GetString("OTEL_EXPORTER_OTLP_ENDPOINT"),
		OTELExporterOTLPInsecure: v.GetBool("OTEL_EXPORTER_OTLP_INSECURE"),
		OTELMetricsEnabled:       v.GetBool("OTEL_METRICS_ENABLED"),
		OTELTracingEnabled:       v.GetBool("OTEL_TRACING_ENABLED"),
		OTELLogsEnabled:          v.GetBool("OTEL_LOGS_ENABLED"),
	}

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"JWT_ACCESS_TTL", &cfg.JWTAccessTTL},
		{"REFRESH_TTL", &cfg.RefreshTTL},
		{"NEGATIVE_CACHE_TTL", &cfg.NegativeCacheTTL},
		{"OTEL_METRICS_EXPORT_INTERVAL", &cfg.OTELMetricsExportInterval},
		{"SHUTDOWN_TIMEOUT", &cfg.ShutdownTimeout},
	}
	for _, d := range durations {
		parsed, err := time.ParseDuration(v.GetString(d.key))
		if err != nil {
			return cfg, fmt.Errorf("%w %s: %w", ErrMalformedValue, d.key, err)
		}
		*d.dst = parsed
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
	v.SetDefault("DATABASE_DRIVER", "sqlite")
	v.SetDefault("DATABASE_URL", "file:app.db?_foreign_keys=on")
	v.SetDefault("JWT_ISSUER", "device-auth-service")
	v.SetDefault("JWT_AUDIENCE", "device-api")
	v.SetDefault("JWT_SECRET", "")
	v.SetDefault("JWT_ACCESS_TTL", "15m")
	v.SetDefault("REFRESH_TTL", "720h")
	v.SetDefault("REFRESH_TOKEN_PEPPER", "")
	v.SetDefault("REFRESH_TOKEN_BYTES", 48)
	v.SetDefault("REFRESH_REUSE_POLICY", ReusePolicyLog)
	v.SetDefault("BCRYPT_COST", 12)
	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("NEGATIVE_CACHE_TTL", "5m")
	v.SetDefault("OTEL_SERVICE_NAME", "device-auth-service")
	v.SetDefault("OTEL_ENVIRONMENT", "development")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", true)
	v.SetDefault("OTEL_METRICS_ENABLED", false)
	v.SetDefault("OTEL_TRACING_ENABLED", false)
	v.SetDefault("OTEL_LOGS_ENABLED", false)
	v.SetDefault("OTEL_METRICS_EXPORT_INTERVAL", "30s")
	v.SetDefault("SHUTDOWN_TIMEOUT", "15s")
}

func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.HTTPAddr) == "" {
		errs = append(errs, errors.New("HTTP_ADDR is required"))
	}
	switch c.DatabaseDriver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Errorf("DATABASE_DRIVER must be sqlite or postgres, got %q", c.DatabaseDriver))
	}
	if strings.TrimSpace(c.DatabaseURL) == "" {
		errs = append(errs, errors.New("DATABASE_URL is required"))
	}
	if len(c.JWTSecret) < minSecretLength {
		errs = append(errs, fmt.Errorf("JWT_SECRET must be at least %d bytes", minSecretLength))
	}
	if c.JWTIssuer == "" {
		errs = append(errs, errors.New("JWT_ISSUER is required"))
	}
	if c.JWTAccessTTL <= 0 {
		errs = append(errs, errors.New("JWT_ACCESS_TTL must be positive"))
	}
	if c.RefreshTTL <= c.JWTAccessTTL {
		errs = append(errs, errors.New("REFRESH_TTL must be longer than JWT_ACCESS_TTL"))
	}
	if c.RefreshTokenBytes < 32 {
		errs = append(errs, errors.New("REFRESH_TOKEN_BYTES must be at least 32"))
	}
	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		errs = append(errs, errors.New("BCRYPT_COST must be between 4 and 31"))
	}
	switch c.RefreshReusePolicy {
	case ReusePolicyLog, ReusePolicyRevokeChain:
	default:
		errs = append(errs, fmt.Errorf("REFRESH_REUSE_POLICY must be %q or %q", ReusePolicyLog, ReusePolicyRevokeChain))
	}
	if c.Env == "production" && c.RefreshTokenPepper == "" {
		errs = append(errs, errors.New("REFRESH_TOKEN_PEPPER is required in production"))
	}
	return errors.Join(errs...)
}
