package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("PORT", "")
	t.Setenv("MAX_UPLOAD_MB", "")
	t.Setenv("APP_ENV", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != "3000" {
		t.Fatalf("expected default port 3000, got %s", cfg.Port)
	}
	if cfg.MaxUploadBytes() != 50<<20 {
		t.Fatalf("unexpected upload limit %d", cfg.MaxUploadBytes())
	}
	if cfg.Production() {
		t.Fatalf("default env must not be production")
	}
}

func TestLoadFileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.yaml")
	content := []byte("port: \"9000\"\napp_env: production\nstorage:\n  url: https://files.example.com\n  bucket: docs\nallowed_origins:\n  - https://app.example.com\n")
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("PORT", "9100")
	t.Setenv("VALID_API_KEYS", "a, b,,c")
	t.Setenv("STORAGE_ENDPOINT", "")
	t.Setenv("STORAGE_URL", "")
	t.Setenv("APP_ENV", "")
	t.Setenv("ALLOWED_ORIGINS", "")
	t.Setenv("TRUST_PROXY_HEADERS", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != "9100" {
		t.Fatalf("env should override file, got port %s", cfg.Port)
	}
	if !cfg.Production() || cfg.ServiceName() != "payments-production" {
		t.Fatalf("expected production env, got %s", cfg.AppEnv)
	}
	if cfg.Storage.Endpoint != "https://files.example.com" {
		t.Fatalf("endpoint should default to storage url, got %q", cfg.Storage.Endpoint)
	}
	if len(cfg.APIKeys) != 3 || cfg.APIKeys[1] != "b" {
		t.Fatalf("unexpected api keys %v", cfg.APIKeys)
	}
	if len(cfg.AllowedOrigins) != 1 {
		t.Fatalf("expected allowed origins from file, got %v", cfg.AllowedOrigins)
	}
	if !cfg.TrustProxyHeaders {
		t.Fatalf("expected proxy headers to be trusted")
	}
}

func TestValidate(t *testing.T) {
	cfg := defaults()
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected validation error for empty config")
	}
	cfg.DatabaseURL = "postgres://localhost/test"
	cfg.JWTSecret = "secret"
	cfg.Storage.URL = "https://files.example.com"
	cfg.Storage.Bucket = "docs"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
