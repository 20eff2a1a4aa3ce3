package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Port         string `yaml:"port"`
	DatabaseURL  string `yaml:"db_dsn"`
	DBMaxConns   int    `yaml:"db_max_conns"`
	AppEnv       string `yaml:"app_env"`
	AppURL       string `yaml:"app_url"`
	JWTSecret    string `yaml:"jwt_secret"`
	SignupSecret string `yaml:"initial_account_signup_secret"`

	Storage     StorageConfig `yaml:"storage"`
	MaxUploadMB int           `yaml:"max_upload_mb"`

	RateLimitPerMinute       int      `yaml:"rate_limit_per_min"`
	RateLimitBurst           int      `yaml:"rate_limit_burst"`
	LoggerRateLimitPerMinute int      `yaml:"logger_rate_limit_per_min"`
	AllowedOrigins           []string `yaml:"allowed_origins"`
	APIKeys                  []string `yaml:"valid_api_keys"`
	// TrustProxyHeaders reads caller IPs from X-Forwarded-For / X-Real-IP.
	TrustProxyHeaders bool `yaml:"trust_proxy_headers"`

	NotifyProvider     string `yaml:"notify_provider"`
	NotifyWebhookURL   string `yaml:"notify_webhook_url"`
	NotifyWebhookToken string `yaml:"notify_webhook_token"`

	OTLPEndpoint string `yaml:"otlp_endpoint"`
	OTLPInsecure bool   `yaml:"otlp_insecure"`
}

type StorageConfig struct {
	// URL is the public base of canonical object URLs; the path below it is the object key.
	URL       string `yaml:"url"`
	Endpoint  string `yaml:"endpoint"`
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	KeyID     string `yaml:"key_id"`
	KeySecret string `yaml:"key_secret"`
	PathStyle bool   `yaml:"path_style"`
}

func defaults() Config {
	return Config{
		Port:                     "3000",
		DBMaxConns:               10,
		AppEnv:                   "development",
		AppURL:                   "http://localhost:3000",
		MaxUploadMB:              50,
		RateLimitPerMinute:       300,
		RateLimitBurst:           60,
		LoggerRateLimitPerMinute: 100,
		Storage: StorageConfig{
			// Spaces ignores the region but the SDK requires a valid one.
			Region: "us-east-1",
		},
	}
}

// Load builds the configuration from defaults, then the YAML file named by
// CONFIG_FILE (if any), then environment variables.
func Load() (Config, error) {
	cfg := defaults()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := readFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	cfg.Port = readString("PORT", cfg.Port)
	cfg.DatabaseURL = readString("DB_DSN", cfg.DatabaseURL)
	cfg.DBMaxConns = readInt("DB_MAX_CONNS", cfg.DBMaxConns)
	cfg.AppEnv = readString("APP_ENV", cfg.AppEnv)
	cfg.AppURL = readString("APP_URL", cfg.AppURL)
	cfg.JWTSecret = readString("JWT_SECRET", cfg.JWTSecret)
	cfg.SignupSecret = readString("INITIAL_ACCOUNT_SIGNUP_SECRET", cfg.SignupSecret)

	cfg.Storage.URL = readString("STORAGE_URL", cfg.Storage.URL)
	cfg.Storage.Endpoint = readString("STORAGE_ENDPOINT", cfg.Storage.Endpoint)
	cfg.Storage.Bucket = readString("STORAGE_BUCKET", cfg.Storage.Bucket)
	cfg.Storage.Region = readString("STORAGE_REGION", cfg.Storage.Region)
	cfg.Storage.KeyID = readString("STORAGE_KEY_ID", cfg.Storage.KeyID)
	cfg.Storage.KeySecret = readString("STORAGE_KEY_SECRET", cfg.Storage.KeySecret)
	cfg.Storage.PathStyle = readBool("STORAGE_PATH_STYLE", cfg.Storage.PathStyle)
	if cfg.Storage.Endpoint == "" {
		cfg.Storage.Endpoint = cfg.Storage.URL
	}
	cfg.MaxUploadMB = readInt("MAX_UPLOAD_MB", cfg.MaxUploadMB)

	cfg.RateLimitPerMinute = readInt("RATE_LIMIT_PER_MIN", cfg.RateLimitPerMinute)
	cfg.RateLimitBurst = readInt("RATE_LIMIT_BURST", cfg.RateLimitBurst)
	cfg.LoggerRateLimitPerMinute = readInt("LOGGER_RATE_LIMIT_PER_MIN", cfg.LoggerRateLimitPerMinute)
	cfg.AllowedOrigins = readList("ALLOWED_ORIGINS", cfg.AllowedOrigins)
	cfg.APIKeys = readList("VALID_API_KEYS", cfg.APIKeys)
	cfg.TrustProxyHeaders = readBool("TRUST_PROXY_HEADERS", cfg.TrustProxyHeaders)

	cfg.NotifyProvider = readString("NOTIFY_PROVIDER", cfg.NotifyProvider)
	cfg.NotifyWebhookURL = readString("NOTIFY_WEBHOOK_URL", cfg.NotifyWebhookURL)
	cfg.NotifyWebhookToken = readString("NOTIFY_WEBHOOK_TOKEN", cfg.NotifyWebhookToken)

	cfg.OTLPEndpoint = readString("OTEL_EXPORTER_OTLP_ENDPOINT", cfg.OTLPEndpoint)
	cfg.OTLPInsecure = readBool("OTEL_EXPORTER_OTLP_INSECURE", cfg.OTLPInsecure)

	return cfg, nil
}

// Validate reports settings the server cannot start without.
func (c Config) Validate() error {
	var errs []error
	if c.DatabaseURL == "" {
		errs = append(errs, errors.New("DB_DSN is required"))
	}
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.Storage.URL == "" || c.Storage.Bucket == "" {
		errs = append(errs, errors.New("STORAGE_URL and STORAGE_BUCKET are required"))
	}
	return errors.Join(errs...)
}

func (c Config) Production() bool {
	return c.AppEnv == "production"
}

func (c Config) ServiceName() string {
	env := c.AppEnv
	if env == "" {
		env = "development"
	}
	return "payments-" + env
}

func (c Config) MaxUploadBytes() int64 {
	return int64(c.MaxUploadMB) << 20
}

func readFile(path string, cfg *Config) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func readString(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func readInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}

func readBool(key string, fallback bool) bool {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}
	return value
}

func readList(key string, fallback []string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	var values []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			values = append(values, part)
		}
	}
	return values
}
