package config

import (
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator"
	_ "github.com/joho/godotenv/autoload"
	"github.com/knadh/koanf"
	"github.com/knadh/koanf/providers/env"
)

type Config struct {
	Primary   Primary         `koanf:"primary"`
	Database  DatabaseConfig  `koanf:"database"`
	Providers ProvidersConfig `koanf:"providers"`
	Retry     RetryConfig     `koanf:"retry"`
	Sync      SyncConfig      `koanf:"sync"`
	Quota     QuotaConfig     `koanf:"quota"`
	Alert     AlertConfig     `koanf:"alert"`
	Logger    LoggerConfig    `koanf:"logger"`
}

type Primary struct {
	Env string `koanf:"env" validate:"required"`
}

type DatabaseConfig struct {
	Host            string        `koanf:"host" validate:"required"`
	Port            int           `koanf:"port" validate:"required"`
	User            string        `koanf:"user" validate:"required"`
	Password        string        `koanf:"password" validate:"required"`
	Name            string        `koanf:"name" validate:"required"`
	SSLMode         string        `koanf:"ssl_mode" validate:"required"`
	MaxOpenConns    int           `koanf:"max_open_conns" validate:"required"`
	MaxIdleConns    int           `koanf:"max_idle_conns" validate:"required"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime" validate:"required"`
	ConnMaxIdleTime time.Duration `koanf:"conn_max_idle_time" validate:"required"`

	// HealthCheckPeriod is optional and defaults when left unset.
	HealthCheckPeriod time.Duration `koanf:"health_check_period"`
}

// ProvidersConfig carries one block per registered adapter plus the name of
// the default routing target.
type ProvidersConfig struct {
	Default  string         `koanf:"default" validate:"required"`
	SaltEdge SaltEdgeConfig `koanf:"saltedge"`
	Nordigen NordigenConfig `koanf:"nordigen"`
}

type SaltEdgeConfig struct {
	BaseURL     string        `koanf:"base_url"`
	AppID       string        `koanf:"app_id"`
	Secret      string        `koanf:"secret"`
	ConnTimeout time.Duration `koanf:"conn_timeout"`
}

type NordigenConfig struct {
	BaseURL     string        `koanf:"base_url"`
	SecretID    string        `koanf:"secret_id"`
	SecretKey   string        `koanf:"secret_key"`
	ConnTimeout time.Duration `koanf:"conn_timeout"`
}

type RetryConfig struct {
	BaseDelayMs int32 `koanf:"base_delay_ms"`
	MaxRetries  int32 `koanf:"max_retries"`
}

// SyncConfig bounds the orchestrator's worker pool and the scheduled sweep.
type SyncConfig struct {
	Schedule       string        `koanf:"schedule" validate:"required"`
	MaxConcurrent  int64         `koanf:"max_concurrent" validate:"required"`
	CallTimeout    time.Duration `koanf:"call_timeout" validate:"required"`
	WindowDays     int           `koanf:"window_days" validate:"required"`
	BatchSize      int           `koanf:"batch_size" validate:"required"`
	LinkSessionTTL time.Duration `koanf:"link_session_ttl" validate:"required"`
	ExpiryInterval time.Duration `koanf:"expiry_interval" validate:"required"`
}

// QuotaConfig sets per-provider connection ceilings and the alert threshold
// as a fraction of the ceiling.
type QuotaConfig struct {
	Limits         map[string]int `koanf:"limits" validate:"required"`
	AlertThreshold float64        `koanf:"alert_threshold"`
}

type AlertConfig struct {
	Enabled  bool   `koanf:"enabled"`
	SMTPHost string `koanf:"smtp_host"`
	SMTPPort int    `koanf:"smtp_port"`
	From     string `koanf:"from"`
	To       string `koanf:"to"`
	Password string `koanf:"password"`
}

type LoggerConfig struct {
	Level string `koanf:"level"`
}

// NewLogger builds the process-wide slog logger from the configured level.
func (c LoggerConfig) NewLogger() *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(c.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
}

func LoadConfig() (*Config, error) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
	k := koanf.New(".")

	err := k.Load(env.Provider("BANKLINK_", ".", func(s string) string {
		return strings.ReplaceAll(
			strings.ToLower(strings.TrimPrefix(s, "BANKLINK_")),
			"__",
			".",
		)
	}), nil)
	if err != nil {
		logger.Error("failed to load environment variables", "error", err)
		return nil, err
	}

	mainConfig := &Config{}

	err = k.Unmarshal("", mainConfig)
	if err != nil {
		logger.Error("could not unmarshal main config", "error", err)
		return nil, err
	}

	validate := validator.New()

	err = validate.Struct(mainConfig)
	if err != nil {
		logger.Error("config validation failed", "error", err)
		return nil, err
	}

	return mainConfig, nil
}
