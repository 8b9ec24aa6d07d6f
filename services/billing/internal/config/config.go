package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// ConfigPath is the default config file, overridable with CONFIG_PATH.
var ConfigPath = func() string {
	if v := strings.TrimSpace(os.Getenv("CONFIG_PATH")); v != "" {
		return v
	}
	return "config.yaml"
}()

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	Port               string   `yaml:"port"`
	LogLevel           string   `yaml:"logLevel"`
	DatabaseURL        string   `yaml:"databaseURL"`
	CORSAllowedOrigins []string `yaml:"corsAllowedOrigins"`
	TrustedProxies     []string `yaml:"trustedProxies"`

	JWTSecret   string `yaml:"jwtSecret"`
	AuthJWKSURL string `yaml:"authJwksURL"`
	JWTIssuer   string `yaml:"jwtIssuer"`
	JWTAudience string `yaml:"jwtAudience"`
	JWTLeeway   string `yaml:"jwtLeeway"`

	StripeSecretKey         string `yaml:"stripeSecretKey"`
	StripeAPIBaseURL        string `yaml:"stripeAPIBaseURL"`
	StripeWebhookSecret     string `yaml:"stripeWebhookSecret"`
	WebhookToleranceSeconds int    `yaml:"webhookToleranceSeconds"`

	// ExpirySweepSchedule is a cron expression; empty disables the sweep.
	ExpirySweepSchedule string `yaml:"expirySweepSchedule"`
}

// Load reads config from path (defaults to ConfigPath) and applies
// environment overrides.
func Load(path string) (FileConfig, error) {
	cfg := FileConfig{}
	if path == "" {
		path = ConfigPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	applyEnv(&cfg)
	applyDefaults(&cfg)
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *FileConfig) {
	setString := func(dst *string, key string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}
	setString(&cfg.Port, "BILLING_PORT")
	setString(&cfg.LogLevel, "LOG_LEVEL")
	setString(&cfg.DatabaseURL, "DATABASE_URL")
	setString(&cfg.JWTSecret, "JWT_SECRET")
	setString(&cfg.AuthJWKSURL, "AUTH_JWKS_URL")
	setString(&cfg.StripeSecretKey, "STRIPE_SECRET_KEY")
	setString(&cfg.StripeAPIBaseURL, "STRIPE_API_BASE_URL")
	setString(&cfg.StripeWebhookSecret, "STRIPE_WEBHOOK_SECRET")
	setString(&cfg.ExpirySweepSchedule, "BILLING_EXPIRY_SWEEP_SCHEDULE")
	if v := os.Getenv("CORS_ALLOWED_ORIGINS"); v != "" {
		cfg.CORSAllowedOrigins = splitCSV(v)
	}
	if v := os.Getenv("STRIPE_WEBHOOK_TOLERANCE_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.WebhookToleranceSeconds = n
		}
	}
}

func applyDefaults(cfg *FileConfig) {
	if cfg.WebhookToleranceSeconds == 0 {
		cfg.WebhookToleranceSeconds = 300
	}
}

func validateConfig(cfg FileConfig) error {
	if cfg.Port == "" {
		return errors.New("config: port is required (set in config.yaml or BILLING_PORT)")
	}
	if cfg.DatabaseURL == "" {
		return errors.New("config: databaseURL is required (set in config.yaml or DATABASE_URL)")
	}
	if cfg.JWTSecret == "" && cfg.AuthJWKSURL == "" {
		return errors.New("config: jwtSecret or authJwksURL is required (set in config.yaml or JWT_SECRET)")
	}
	if cfg.StripeWebhookSecret != "" && cfg.StripeSecretKey == "" {
		return errors.New("config: stripeSecretKey is required when stripeWebhookSecret is set (set in config.yaml or STRIPE_SECRET_KEY)")
	}
	if cfg.WebhookToleranceSeconds < 0 {
		return errors.New("config: webhookToleranceSeconds must be >= 0")
	}
	if cfg.ExpirySweepSchedule != "" {
		if _, err := cron.ParseStandard(cfg.ExpirySweepSchedule); err != nil {
			return fmt.Errorf("config: invalid expirySweepSchedule: %w", err)
		}
	}
	if _, err := ParseJWTLeeway(cfg.JWTLeeway); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// ParseJWTLeeway parses optional JWT leeway duration string.
func ParseJWTLeeway(leewayStr string) (time.Duration, error) {
	if leewayStr == "" {
		return 0, nil
	}
	dur, err := time.ParseDuration(leewayStr)
	if err != nil {
		return 0, fmt.Errorf("invalid jwtLeeway duration: %w", err)
	}
	return dur, nil
}
