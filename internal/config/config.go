package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Config holds everything the service reads at startup.
type Config struct {
	Port        string `yaml:"port"`
	DatabaseURL string `yaml:"database_url"`
	Environment string `yaml:"environment"`
	LogLevel    string `yaml:"log_level"`

	AllowedOrigins []string `yaml:"allowed_origins"`

	SessionTTL        time.Duration `yaml:"session_ttl"`
	VerificationTTL   time.Duration `yaml:"verification_ttl"`
	HashSessionTokens bool          `yaml:"hash_session_tokens"`
	VerifyURLBase     string        `yaml:"verify_url_base"`

	// DevLoginEnabled turns on POST /auth/dev-login. Never allowed in production.
	DevLoginEnabled bool     `yaml:"dev_login_enabled"`
	DeveloperEmails []string `yaml:"developer_emails"`

	RedisURL        string        `yaml:"redis_url"`
	SessionCacheTTL time.Duration `yaml:"session_cache_ttl"`

	ReapSchedule string `yaml:"reap_schedule"`

	DemoRateLimit float64 `yaml:"demo_rate_limit"`
	DemoBurst     int     `yaml:"demo_burst"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Port:        "5050",
		Environment: EnvDevelopment,
		LogLevel:    "info",
		AllowedOrigins: []string{
			"http://localhost:5173",
			"http://localhost:5174",
		},
		SessionTTL:      30 * 24 * time.Hour,
		VerificationTTL: time.Hour,
		VerifyURLBase:   "http://localhost:5173/verify",
		SessionCacheTTL: time.Minute,
		ReapSchedule:    "@every 1h",
		DemoRateLimit:   0.5,
		DemoBurst:       5,
	}
}

// Load builds the configuration from defaults, then the YAML file named by
// CONFIG_FILE (if any), then environment variables.
//
// Environment variables:
//   - PORT, DATABASE_URL, APP_ENV, LOG_LEVEL
//   - ALLOWED_ORIGINS: comma separated
//   - SESSION_TTL, VERIFICATION_TTL, SESSION_CACHE_TTL: Go durations
//   - SESSION_HASH_TOKENS, DEV_LOGIN_ENABLED: booleans
//   - DEVELOPER_EMAILS: comma separated
//   - REDIS_URL, REAP_SCHEDULE, VERIFY_URL_BASE
//   - DEMO_RATE_LIMIT (requests/second), DEMO_BURST
func Load() (Config, error) {
	cfg := Default()

	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config file: %w", err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	cfg.Environment = strings.ToLower(strings.TrimSpace(cfg.Environment))
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	setString(&cfg.Port, "PORT")
	setString(&cfg.DatabaseURL, "DATABASE_URL")
	setString(&cfg.Environment, "APP_ENV")
	setString(&cfg.LogLevel, "LOG_LEVEL")
	setString(&cfg.RedisURL, "REDIS_URL")
	setString(&cfg.ReapSchedule, "REAP_SCHEDULE")
	setString(&cfg.VerifyURLBase, "VERIFY_URL_BASE")
	setList(&cfg.AllowedOrigins, "ALLOWED_ORIGINS")
	setList(&cfg.DeveloperEmails, "DEVELOPER_EMAILS")

	var errs []error
	errs = append(errs,
		setDuration(&cfg.SessionTTL, "SESSION_TTL"),
		setDuration(&cfg.VerificationTTL, "VERIFICATION_TTL"),
		setDuration(&cfg.SessionCacheTTL, "SESSION_CACHE_TTL"),
		setBool(&cfg.HashSessionTokens, "SESSION_HASH_TOKENS"),
		setBool(&cfg.DevLoginEnabled, "DEV_LOGIN_ENABLED"),
	)

	if v := strings.TrimSpace(os.Getenv("DEMO_RATE_LIMIT")); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("DEMO_RATE_LIMIT: %w", err))
		} else {
			cfg.DemoRateLimit = f
		}
	}
	if v := strings.TrimSpace(os.Getenv("DEMO_BURST")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("DEMO_BURST: %w", err))
		} else {
			cfg.DemoBurst = n
		}
	}
	return errors.Join(errs...)
}

// Validate checks the configuration before anything is started.
func (c Config) Validate() error {
	var errs []error
	if c.DatabaseURL == "" {
		errs = append(errs, ErrMissingDatabaseURL)
	}
	if c.Environment != EnvDevelopment && c.Environment != EnvProduction {
		errs = append(errs, fmt.Errorf("unknown environment %q", c.Environment))
	}
	if c.SessionTTL <= 0 || c.VerificationTTL <= 0 {
		errs = append(errs, ErrNonPositiveTTL)
	}
	if c.IsProduction() && c.DevLoginEnabled {
		errs = append(errs, ErrDevLoginInProduction)
	}
	if c.DemoRateLimit <= 0 || c.DemoBurst <= 0 {
		errs = append(errs, ErrInvalidRateLimit)
	}
	return errors.Join(errs...)
}

func (c Config) IsProduction() bool { return c.Environment == EnvProduction }

// SecureCookies reports whether cookies must carry the Secure attribute.
func (c Config) SecureCookies() bool { return c.IsProduction() }

var (
	ErrMissingDatabaseURL   = errors.New("DATABASE_URL is empty")
	ErrNonPositiveTTL       = errors.New("session and verification TTLs must be positive")
	ErrDevLoginInProduction = errors.New("dev login cannot be enabled in production")
	ErrInvalidRateLimit     = errors.New("demo rate limit and burst must be positive")
)

func setString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func setList(dst *[]string, key string) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	*dst = out
}

func setDuration(dst *time.Duration, key string) error {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = d
	return nil
}

func setBool(dst *bool, key string) error {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = b
	return nil
}
