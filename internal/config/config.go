package config

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
)

// ScenarioConfig describes the health-check scenario executed by every virtual user.
type ScenarioConfig struct {
	TargetURL      string        `env:"SMOKE_TARGET_URL" envDefault:"http://localhost:8000/health"`
	Method         string        `env:"SMOKE_METHOD" envDefault:"GET"`
	ExpectedStatus int           `env:"SMOKE_EXPECTED_STATUS" envDefault:"200"`
	VUs            int           `env:"SMOKE_VUS" envDefault:"10"`
	Duration       time.Duration `env:"SMOKE_DURATION" envDefault:"30s"`
	Sleep          time.Duration `env:"SMOKE_SLEEP" envDefault:"500ms"`
	GracefulStop   time.Duration `env:"SMOKE_GRACEFUL_STOP" envDefault:"30s"`
	RequestTimeout time.Duration `env:"SMOKE_REQUEST_TIMEOUT" envDefault:"60s"`
	// MaxRPS caps the request rate across all VUs. Zero means unlimited.
	MaxRPS float64 `env:"SMOKE_MAX_RPS" envDefault:"0"`
	// CheckThreshold is the minimum check pass rate for the run to succeed. Zero disables it.
	CheckThreshold float64 `env:"SMOKE_CHECK_THRESHOLD" envDefault:"0"`
	// SummaryExport is an optional file path the JSON summary is written to.
	SummaryExport string `env:"SMOKE_SUMMARY_EXPORT"`
}

// StatusConfig holds settings for the runner's own status/metrics server.
type StatusConfig struct {
	// Addr is the listen address, e.g. ":9100". Empty disables the server.
	Addr string `env:"SMOKE_STATUS_ADDR"`
}

// TargetConfig holds settings for the demo target service.
type TargetConfig struct {
	Port string `env:"TARGET_PORT" envDefault:"8000"`
	// FailRate is the share of /health responses answered with 503.
	FailRate float64 `env:"SMOKE_TARGET_FAIL_RATE" envDefault:"0"`
}

// LogConfig controls the zap logger.
type LogConfig struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info"`
	Format string `env:"LOG_FORMAT" envDefault:"json"`
}

// DatabaseConfig holds PostgreSQL settings for run history.
type DatabaseConfig struct {
	Host               string `env:"DB_HOST"`
	Port               string `env:"DB_PORT" envDefault:"5432"`
	User               string `env:"DB_USER"`
	Password           string `env:"DB_PASSWORD"`
	Name               string `env:"DB_NAME"`
	SSLMode            string `env:"DB_SSLMODE" envDefault:"disable"`
	MaxOpenConns       int    `env:"DB_MAX_OPEN_CONNS" envDefault:"5"`
	MaxIdleConns       int    `env:"DB_MAX_IDLE_CONNS" envDefault:"2"`
	ConnMaxLifetimeSec int    `env:"DB_CONN_MAX_LIFETIME_SEC" envDefault:"300"`
}

// Enabled reports whether run history persistence is configured.
func (c DatabaseConfig) Enabled() bool {
	return c.Host != ""
}

// MinIOConfig holds object storage settings for JSON reports.
type MinIOConfig struct {
	Endpoint  string `env:"MINIO_ENDPOINT"`
	AccessKey string `env:"MINIO_ACCESS_KEY"`
	SecretKey string `env:"MINIO_SECRET_KEY"`
	Bucket    string `env:"MINIO_BUCKET" envDefault:"smoke-reports"`
	UseSSL    bool   `env:"MINIO_USE_SSL" envDefault:"false"`
}

// Enabled reports whether report upload is configured.
func (c MinIOConfig) Enabled() bool {
	return c.Endpoint != ""
}

// RedisConfig holds the notification queue settings.
type RedisConfig struct {
	URL   string `env:"REDIS_URL"`
	Queue string `env:"NOTIFY_QUEUE" envDefault:"notify_events"`
}

// Enabled reports whether run events are published.
func (c RedisConfig) Enabled() bool {
	return c.URL != ""
}

// AppConfig is the centralized configuration struct for the application.
// It is populated from environment variables. Sensitive values are not hardcoded.
type AppConfig struct {
	Scenario ScenarioConfig
	Status   StatusConfig
	Target   TargetConfig
	Log      LogConfig
	Database DatabaseConfig
	MinIO    MinIOConfig
	Redis    RedisConfig
}

// Load reads configuration from environment variables.
// A .env file can be auto-loaded by importing: _ "github.com/joho/godotenv/autoload"
func Load() (*AppConfig, error) {
	cfg := &AppConfig{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

// Validate checks the scenario for values the runner cannot execute.
func (c ScenarioConfig) Validate() error {
	u, err := url.Parse(c.TargetURL)
	if err != nil {
		return fmt.Errorf("invalid target url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid target url %q: scheme must be http or https", c.TargetURL)
	}
	if u.Host == "" {
		return fmt.Errorf("invalid target url %q: host is required", c.TargetURL)
	}
	if !validMethod(c.Method) {
		return fmt.Errorf("unsupported method %q", c.Method)
	}
	if c.ExpectedStatus < 100 || c.ExpectedStatus > 599 {
		return fmt.Errorf("expected status %d out of range", c.ExpectedStatus)
	}
	if c.VUs < 1 {
		return errors.New("vus must be at least 1")
	}
	if c.Duration <= 0 {
		return errors.New("duration must be positive")
	}
	if c.Sleep < 0 || c.GracefulStop < 0 {
		return errors.New("sleep and graceful stop must not be negative")
	}
	if c.RequestTimeout <= 0 {
		return errors.New("request timeout must be positive")
	}
	if c.MaxRPS < 0 {
		return errors.New("max rps must not be negative")
	}
	if c.CheckThreshold < 0 || c.CheckThreshold > 1 {
		return errors.New("check threshold must be between 0 and 1")
	}
	return nil
}

func validMethod(m string) bool {
	switch strings.ToUpper(m) {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	return false
}
