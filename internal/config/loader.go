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
const DefaultConfigFile = "steward.yaml"

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
	setString(&cfg.Server.Port, "STEWARD_PORT")
	setString(&cfg.Server.CORSOrigin, "STEWARD_CORS_ORIGIN")
	setString(&cfg.Postgres.DSN, "DATABASE_URL")
	setInt32(&cfg.Postgres.MaxConns, "STEWARD_PG_MAX_CONNS")
	setInt32(&cfg.Postgres.MinConns, "STEWARD_PG_MIN_CONNS")
	setDuration(&cfg.Postgres.MaxConnLifetime, "STEWARD_PG_MAX_CONN_LIFETIME")
	setDuration(&cfg.Postgres.MaxConnIdleTime, "STEWARD_PG_MAX_CONN_IDLE_TIME")
	setDuration(&cfg.Postgres.HealthCheck, "STEWARD_PG_HEALTH_CHECK")
	setString(&cfg.NATS.URL, "NATS_URL")
	setString(&cfg.Reasoner.URL, "STEWARD_REASONER_URL")
	setString(&cfg.Reasoner.APIKey, "STEWARD_REASONER_API_KEY")
	setString(&cfg.Reasoner.Model, "STEWARD_REASONER_MODEL")
	setDuration(&cfg.Reasoner.Timeout, "STEWARD_REASONER_TIMEOUT")
	setString(&cfg.Logging.Level, "STEWARD_LOG_LEVEL")
	setString(&cfg.Logging.Service, "STEWARD_LOG_SERVICE")
	setBool(&cfg.Logging.Async, "STEWARD_LOG_ASYNC")
	setInt(&cfg.Breaker.Threshold, "STEWARD_BREAKER_THRESHOLD")
	setDuration(&cfg.Breaker.Cooldown, "STEWARD_BREAKER_COOLDOWN")
	setDuration(&cfg.Breaker.MaxIdle, "STEWARD_BREAKER_MAX_IDLE")
	setInt(&cfg.Budget.T1, "STEWARD_BUDGET_T1")
	setInt(&cfg.Budget.T2, "STEWARD_BUDGET_T2")
	setInt(&cfg.Budget.T3, "STEWARD_BUDGET_T3")
	setDuration(&cfg.SoftConfirm.ChatWindow, "STEWARD_WINDOW_CHAT")
	setDuration(&cfg.SoftConfirm.SetupWindow, "STEWARD_WINDOW_SETUP")
	setDuration(&cfg.SoftConfirm.AdminWindow, "STEWARD_WINDOW_ADMIN")
	setDuration(&cfg.Executor.Timeout, "STEWARD_EXECUTOR_TIMEOUT")
	setInt(&cfg.Executor.RetryMaxTries, "STEWARD_EXECUTOR_RETRY_MAX_TRIES")
	setDuration(&cfg.Executor.RetryInitial, "STEWARD_EXECUTOR_RETRY_INITIAL")
	setDuration(&cfg.Executor.RetryMax, "STEWARD_EXECUTOR_RETRY_MAX")
	setDuration(&cfg.Session.TTL, "STEWARD_SESSION_TTL")
	setDuration(&cfg.Session.ReaperPeriod, "STEWARD_SESSION_REAPER_PERIOD")
	setFloat64(&cfg.Rate.RequestsPerSecond, "STEWARD_RATE_RPS")
	setInt(&cfg.Rate.Burst, "STEWARD_RATE_BURST")
	setDuration(&cfg.Rate.CleanupInterval, "STEWARD_RATE_CLEANUP_INTERVAL")
	setDuration(&cfg.Rate.MaxIdleTime, "STEWARD_RATE_MAX_IDLE_TIME")
	setInt64(&cfg.Cache.L1MaxSizeMB, "STEWARD_CACHE_L1_SIZE_MB")
	setDuration(&cfg.Cache.SessionTTL, "STEWARD_CACHE_SESSION_TTL")
	setBool(&cfg.MCP.Enabled, "STEWARD_MCP_ENABLED")
	setString(&cfg.MCP.Port, "STEWARD_MCP_PORT")
	setString(&cfg.MCP.APIKey, "STEWARD_MCP_API_KEY")
	setBool(&cfg.Otel.Enabled, "STEWARD_OTEL_ENABLED")
	setString(&cfg.Otel.Endpoint, "STEWARD_OTEL_ENDPOINT")
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
	if cfg.Postgres.MaxConns < 1 {
		return errors.New("postgres.max_conns must be >= 1")
	}
	if cfg.Breaker.Threshold < 1 {
		return errors.New("breaker.threshold must be >= 1")
	}
	if cfg.Budget.T1 < 1 || cfg.Budget.T2 < 1 || cfg.Budget.T3 < 1 {
		return errors.New("budget caps must be >= 1")
	}
	if cfg.SoftConfirm.ChatWindow <= 0 || cfg.SoftConfirm.SetupWindow <= 0 || cfg.SoftConfirm.AdminWindow <= 0 {
		return errors.New("soft_confirm windows must be positive")
	}
	if cfg.Executor.Timeout <= 0 {
		return errors.New("executor.timeout must be positive")
	}
	if cfg.Rate.Burst < 1 {
		return errors.New("rate.burst must be >= 1")
	}
	for _, t := range cfg.Tools {
		if t.Name == "" || t.Endpoint == "" {
			return errors.New("tools entries require name and endpoint")
		}
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

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
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
