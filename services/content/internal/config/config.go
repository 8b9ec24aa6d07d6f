package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

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
	RedisAddr          string   `yaml:"redisAddr"`
	RedisPassword      string   `yaml:"redisPassword"`
	CORSAllowedOrigins []string `yaml:"corsAllowedOrigins"`
	TrustedProxies     []string `yaml:"trustedProxies"`

	JWTSecret   string `yaml:"jwtSecret"`
	AuthJWKSURL string `yaml:"authJwksURL"`
	JWTIssuer   string `yaml:"jwtIssuer"`
	JWTAudience string `yaml:"jwtAudience"`
	JWTLeeway   string `yaml:"jwtLeeway"`

	LLMProvider          string  `yaml:"llmProvider"`
	LLMBaseURL           string  `yaml:"llmBaseURL"`
	LLMAPIKey            string  `yaml:"llmAPIKey"`
	LLMModel             string  `yaml:"llmModel"`
	LLMTimeoutSeconds    int     `yaml:"llmTimeoutSeconds"`
	LLMRequestsPerSecond float64 `yaml:"llmRequestsPerSecond"`
	LLMBurst             int     `yaml:"llmBurst"`
	TokenizerModel       string  `yaml:"tokenizerModel"`

	CostPerMillionTokens float64 `yaml:"costPerMillionTokens"`
	MaxTokens            int     `yaml:"maxTokens"`
	Temperature          float64 `yaml:"temperature"`
	TopicCount           int     `yaml:"topicCount"`

	GenerateRateLimitPerMinute int `yaml:"generateRateLimitPerMinute"`
	UsageCacheTTLSeconds       int `yaml:"usageCacheTTLSeconds"`
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
	setString(&cfg.Port, "CONTENT_PORT")
	setString(&cfg.LogLevel, "LOG_LEVEL")
	setString(&cfg.DatabaseURL, "DATABASE_URL")
	setString(&cfg.RedisAddr, "REDIS_ADDR")
	setString(&cfg.RedisPassword, "REDIS_PASSWORD")
	setString(&cfg.JWTSecret, "JWT_SECRET")
	setString(&cfg.AuthJWKSURL, "AUTH_JWKS_URL")
	setString(&cfg.LLMProvider, "LLM_PROVIDER")
	setString(&cfg.LLMBaseURL, "LLM_BASE_URL")
	setString(&cfg.LLMAPIKey, "LLM_API_KEY")
	setString(&cfg.LLMModel, "LLM_MODEL")
	if v := os.Getenv("CORS_ALLOWED_ORIGINS"); v != "" {
		cfg.CORSAllowedOrigins = splitCSV(v)
	}
	if v := os.Getenv("CONTENT_COST_PER_MILLION_TOKENS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.CostPerMillionTokens = f
		}
	}
	if v := os.Getenv("CONTENT_GENERATE_RATE_LIMIT_PER_MINUTE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.GenerateRateLimitPerMinute = n
		}
	}
}

func applyDefaults(cfg *FileConfig) {
	if cfg.LLMTimeoutSeconds == 0 {
		cfg.LLMTimeoutSeconds = 60
	}
	if cfg.TokenizerModel == "" {
		cfg.TokenizerModel = cfg.LLMModel
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 1024
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = 0.7
	}
	if cfg.TopicCount == 0 {
		cfg.TopicCount = 10
	}
	if cfg.UsageCacheTTLSeconds == 0 {
		cfg.UsageCacheTTLSeconds = 300
	}
}

func validateConfig(cfg FileConfig) error {
	if cfg.Port == "" {
		return errors.New("config: port is required (set in config.yaml or CONTENT_PORT)")
	}
	if cfg.DatabaseURL == "" {
		return errors.New("config: databaseURL is required (set in config.yaml or DATABASE_URL)")
	}
	if cfg.JWTSecret == "" && cfg.AuthJWKSURL == "" {
		return errors.New("config: jwtSecret or authJwksURL is required (set in config.yaml or JWT_SECRET)")
	}
	if cfg.LLMModel == "" {
		return errors.New("config: llmModel is required (set in config.yaml or LLM_MODEL)")
	}
	switch strings.ToLower(cfg.LLMProvider) {
	case "", "openai", "gemini", "ollama":
	default:
		return fmt.Errorf("config: unsupported llmProvider %q", cfg.LLMProvider)
	}
	if cfg.CostPerMillionTokens < 0 {
		return errors.New("config: costPerMillionTokens must be >= 0")
	}
	if cfg.TopicCount < 0 || cfg.MaxTokens < 0 || cfg.LLMTimeoutSeconds < 0 {
		return errors.New("config: topicCount, maxTokens and llmTimeoutSeconds must be >= 0")
	}
	if cfg.GenerateRateLimitPerMinute < 0 || cfg.LLMRequestsPerSecond < 0 {
		return errors.New("config: rate limits must be >= 0")
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
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
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
