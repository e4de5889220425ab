package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Supported store drivers
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config holds all configuration for the application
type Config struct {
	Server         ServerConfig         `yaml:"server"`
	Database       DatabaseConfig       `yaml:"database"`
	Redis          RedisConfig          `yaml:"redis"`
	Logging        LoggingConfig        `yaml:"logging"`
	Monitoring     MonitoringConfig     `yaml:"monitoring"`
	CORS           CORSConfig           `yaml:"cors"`
	RateLimit      RateLimitConfig      `yaml:"rate_limit"`
	Generator      GeneratorConfig      `yaml:"generator"`
	Posting        PostingConfig        `yaml:"posting"`
	Automation     AutomationConfig     `yaml:"automation"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
}

type ServerConfig struct {
	Port         int           `yaml:"port"`
	Env          string        `yaml:"env"`
	Name         string        `yaml:"name"`
	URL          string        `yaml:"url"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
}

type DatabaseConfig struct {
	Driver      string `yaml:"driver"`
	URL         string `yaml:"url"`
	SQLitePath  string `yaml:"sqlite_path"`
	AutoMigrate bool   `yaml:"auto_migrate"`
	MaxConns    int32  `yaml:"max_conns"`
	MinConns    int32  `yaml:"min_conns"`
}

// RedisConfig configures the optional Redis connection. An empty URL disables it.
type RedisConfig struct {
	URL string `yaml:"url"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// RateLimitConfig limits reply drafting requests per client
type RateLimitConfig struct {
	Enabled       bool `yaml:"enabled"`
	DraftLimit    int  `yaml:"draft_limit"`
	WindowSeconds int  `yaml:"window_seconds"`
}

// GeneratorConfig points at the reply generation service
type GeneratorConfig struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

// PostingConfig points at the reply posting webhook
type PostingConfig struct {
	GoogleWebhookURL string        `yaml:"google_webhook_url"`
	Timeout          time.Duration `yaml:"timeout"`
}

// AutomationConfig bounds batch drafting
type AutomationConfig struct {
	DraftConcurrency    int `yaml:"draft_concurrency"`
	DraftPendingDefault int `yaml:"draft_pending_default"`
	DraftPendingMax     int `yaml:"draft_pending_max"`
}

type CircuitBreakerConfig struct {
	MaxRequests      uint32        `yaml:"max_requests"`
	Interval         time.Duration `yaml:"interval"`
	Timeout          time.Duration `yaml:"timeout"`
	FailureThreshold uint32        `yaml:"failure_threshold"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         8080,
			Env:          "development",
			Name:         "reviewdesk",
			URL:          "http://localhost:8080",
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 120 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Database: DatabaseConfig{
			Driver:      DriverPostgres,
			SQLitePath:  "data/reviewdesk.db",
			AutoMigrate: true,
			MaxConns:    25,
			MinConns:    5,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Monitoring: MonitoringConfig{
			PrometheusEnabled: true,
			PrometheusPort:    9090,
		},
		CORS: CORSConfig{
			AllowedOrigins: []string{"http://localhost:3000"},
		},
		RateLimit: RateLimitConfig{
			Enabled:       true,
			DraftLimit:    30,
			WindowSeconds: 60,
		},
		Generator: GeneratorConfig{
			Timeout: 60 * time.Second,
		},
		Posting: PostingConfig{
			Timeout: 30 * time.Second,
		},
		Automation: AutomationConfig{
			DraftConcurrency:    4,
			DraftPendingDefault: 10,
			DraftPendingMax:     25,
		},
		CircuitBreaker: CircuitBreakerConfig{
			MaxRequests:      5,
			Interval:         60 * time.Second,
			Timeout:          30 * time.Second,
			FailureThreshold: 5,
		},
	}
}

// Load loads configuration from an optional YAML file named by CONFIG_FILE,
// then applies environment variable overrides
func Load() (*Config, error) {
	cfg := Default()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()

	// Validate required configuration
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Server.Port = getEnvInt("API_PORT", c.Server.Port)
	c.Server.Env = getEnv("APP_ENV", c.Server.Env)
	c.Server.URL = getEnv("API_URL", c.Server.URL)

	c.Database.Driver = getEnv("DATABASE_DRIVER", c.Database.Driver)
	c.Database.URL = getEnv("DATABASE_URL", c.Database.URL)
	c.Database.SQLitePath = getEnv("SQLITE_PATH", c.Database.SQLitePath)
	c.Database.AutoMigrate = getEnvBool("DATABASE_AUTO_MIGRATE", c.Database.AutoMigrate)

	c.Redis.URL = getEnv("REDIS_URL", c.Redis.URL)

	c.Logging.Level = getEnv("LOG_LEVEL", c.Logging.Level)
	c.Logging.Format = getEnv("LOG_FORMAT", c.Logging.Format)

	c.Monitoring.PrometheusEnabled = getEnvBool("PROMETHEUS_ENABLED", c.Monitoring.PrometheusEnabled)
	c.Monitoring.PrometheusPort = getEnvInt("PROMETHEUS_PORT", c.Monitoring.PrometheusPort)

	if origins := os.Getenv("CORS_ALLOWED_ORIGINS"); origins != "" {
		c.CORS.AllowedOrigins = splitList(origins)
	}

	c.RateLimit.Enabled = getEnvBool("RATE_LIMIT_ENABLED", c.RateLimit.Enabled)
	c.RateLimit.DraftLimit = getEnvInt("RATE_LIMIT_DRAFTS", c.RateLimit.DraftLimit)
	c.RateLimit.WindowSeconds = getEnvInt("RATE_LIMIT_WINDOW", c.RateLimit.WindowSeconds)

	c.Generator.URL = getEnv("REPLY_WEBHOOK_URL", c.Generator.URL)
	c.Generator.Timeout = getEnvDuration("REPLY_WEBHOOK_TIMEOUT", c.Generator.Timeout)

	c.Posting.GoogleWebhookURL = getEnv("POST_WEBHOOK_URL", c.Posting.GoogleWebhookURL)
	c.Posting.Timeout = getEnvDuration("POST_WEBHOOK_TIMEOUT", c.Posting.Timeout)

	c.Automation.DraftConcurrency = getEnvInt("DRAFT_CONCURRENCY", c.Automation.DraftConcurrency)
}

// Validate checks that required configuration is present
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverPostgres:
		if c.Database.URL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres driver")
		}
	case DriverSQLite:
		if c.Database.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required for the sqlite driver")
		}
	default:
		return fmt.Errorf("unsupported DATABASE_DRIVER %q", c.Database.Driver)
	}

	if c.Server.Env == "production" && c.Generator.URL == "" {
		return fmt.Errorf("REPLY_WEBHOOK_URL is required in production")
	}
	if c.Automation.DraftConcurrency <= 0 {
		return fmt.Errorf("draft concurrency must be positive")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
