package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	if cfg.Port != "8080" {
		t.Errorf("expected default port 8080, got %s", cfg.Port)
	}
	if cfg.Env != "development" {
		t.Errorf("expected default env development, got %s", cfg.Env)
	}
	if cfg.OpenAIBaseURL != "https://api.openai.com/v1" {
		t.Errorf("unexpected default OpenAI base URL %s", cfg.OpenAIBaseURL)
	}
	if cfg.CompletionTimeout != 45*time.Second {
		t.Errorf("expected 45s completion timeout, got %s", cfg.CompletionTimeout)
	}
	if cfg.ClinicOrgID != "default" {
		t.Errorf("expected default clinic org id, got %s", cfg.ClinicOrgID)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("PUBLIC_BASE_URL", "https://clinic.example.com/")
	t.Setenv("COMPLETION_TIMEOUT", "10s")
	t.Setenv("CHAT_RATE_LIMIT", "2.5")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example.com, https://b.example.com")

	cfg := Load()

	if cfg.Port != "9090" {
		t.Errorf("expected port 9090, got %s", cfg.Port)
	}
	if cfg.PublicBaseURL != "https://clinic.example.com" {
		t.Errorf("expected trailing slash trimmed, got %s", cfg.PublicBaseURL)
	}
	if cfg.CompletionTimeout != 10*time.Second {
		t.Errorf("expected 10s timeout, got %s", cfg.CompletionTimeout)
	}
	if cfg.ChatRateLimit != 2.5 {
		t.Errorf("expected rate 2.5, got %f", cfg.ChatRateLimit)
	}
	if len(cfg.CORSAllowedOrigins) != 2 || cfg.CORSAllowedOrigins[1] != "https://b.example.com" {
		t.Errorf("unexpected CORS origins %v", cfg.CORSAllowedOrigins)
	}
}

func TestGetEnvAsBoolInvalid(t *testing.T) {
	t.Setenv("REDIS_TLS", "not-a-bool")
	cfg := Load()
	if cfg.RedisTLS {
		t.Error("invalid bool should fall back to default false")
	}
}
