package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "suna.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// YAML file is optional; missing file is not an error.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV. The YAML file is optional.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is validated by caller
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) {
	setString(&cfg.Server.Port, "SUNA_PORT")
	setString(&cfg.Server.CORSOrigin, "SUNA_CORS_ORIGIN")
	setString(&cfg.Postgres.DSN, "DATABASE_URL")
	setInt32(&cfg.Postgres.MaxConns, "SUNA_PG_MAX_CONNS")
	setInt32(&cfg.Postgres.MinConns, "SUNA_PG_MIN_CONNS")
	setDuration(&cfg.Postgres.MaxConnLifetime, "SUNA_PG_MAX_CONN_LIFETIME")
	setDuration(&cfg.Postgres.MaxConnIdleTime, "SUNA_PG_MAX_CONN_IDLE_TIME")
	setDuration(&cfg.Postgres.HealthCheck, "SUNA_PG_HEALTH_CHECK")
	setString(&cfg.NATS.URL, "NATS_URL")
	setString(&cfg.NATS.ResponseBucket, "SUNA_NATS_RESPONSE_BUCKET")
	setString(&cfg.NATS.RegistryBucket, "SUNA_NATS_REGISTRY_BUCKET")
	setString(&cfg.Daytona.URL, "DAYTONA_URL")
	setString(&cfg.Daytona.APIKey, "DAYTONA_API_KEY")
	setString(&cfg.Logging.Level, "SUNA_LOG_LEVEL")
	setString(&cfg.Logging.Service, "SUNA_LOG_SERVICE")
	setBool(&cfg.Logging.Async, "SUNA_LOG_ASYNC")
	setInt(&cfg.Breaker.MaxFailures, "SUNA_BREAKER_MAX_FAILURES")
	setDuration(&cfg.Breaker.Timeout, "SUNA_BREAKER_TIMEOUT")
	setDuration(&cfg.Cleanup.Interval, "SUNA_CLEANUP_INTERVAL")
	setDuration(&cfg.Cleanup.RetryDelay, "SUNA_CLEANUP_RETRY_DELAY")
	setDuration(&cfg.Cleanup.MaxSandboxAge, "SUNA_CLEANUP_MAX_SANDBOX_AGE")
	setDuration(&cfg.Cleanup.FailedRunLookback, "SUNA_CLEANUP_FAILED_RUN_LOOKBACK")
	setInt64(&cfg.Cache.MaxSizeMB, "SUNA_CACHE_MAX_SIZE_MB")
	setDuration(&cfg.Cache.StatsTTL, "SUNA_CACHE_STATS_TTL")
	setString(&cfg.Otel.Endpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
}

// validate checks that required fields are set.
func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server.port is required")
	}
	if cfg.Postgres.DSN == "" {
		return errors.New("postgres.dsn is required")
	}
	if cfg.NATS.URL == "" {
		return errors.New("nats.url is required")
	}
	if cfg.Daytona.URL == "" {
		return errors.New("daytona.url is required")
	}
	if cfg.Postgres.MaxConns < 1 {
		return errors.New("postgres.max_conns must be >= 1")
	}
	if cfg.Cleanup.Interval <= 0 {
		return errors.New("cleanup.interval must be > 0")
	}
	if cfg.Cleanup.RetryDelay <= 0 {
		return errors.New("cleanup.retry_delay must be > 0")
	}
	if cfg.Cleanup.MaxSandboxAge <= 0 {
		return errors.New("cleanup.max_sandbox_age must be > 0")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt32(dst *int32, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 32); err == nil {
			*dst = int32(n)
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
