package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"NATS_URL", "SESSION_RATE_LIMIT", "SESSION_RATE_WINDOW", "HISTORY_LIMIT", "DEFAULT_LLM", "CORS_ORIGINS"} {
		t.Setenv(key, "")
	}

	cfg := Load()
	if cfg.NATSURL != "" {
		t.Errorf("NATSURL = %q, want disabled", cfg.NATSURL)
	}
	if cfg.SessionRateLimit != 100 || cfg.SessionRateWindow != time.Hour {
		t.Errorf("session rate = %d/%v", cfg.SessionRateLimit, cfg.SessionRateWindow)
	}
	if cfg.HistoryLimit != 20 {
		t.Errorf("HistoryLimit = %d", cfg.HistoryLimit)
	}
	if cfg.DefaultLLM != "gemini" {
		t.Errorf("DefaultLLM = %q", cfg.DefaultLLM)
	}
	if len(cfg.CORSOrigins) != 2 {
		t.Errorf("CORSOrigins = %v", cfg.CORSOrigins)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("SESSION_RATE_LIMIT", "5")
	t.Setenv("SESSION_RATE_WINDOW", "90s")
	t.Setenv("HISTORY_LIMIT", "not-a-number")
	t.Setenv("TRACING_ENABLED", "true")
	t.Setenv("CORS_ORIGINS", "https://a.example, ,https://b.example")

	cfg := Load()
	if cfg.SessionRateLimit != 5 || cfg.SessionRateWindow != 90*time.Second {
		t.Errorf("session rate = %d/%v", cfg.SessionRateLimit, cfg.SessionRateWindow)
	}
	if cfg.HistoryLimit != 20 {
		t.Errorf("HistoryLimit = %d, want default on parse failure", cfg.HistoryLimit)
	}
	if !cfg.TracingEnabled {
		t.Error("TracingEnabled = false")
	}
	if len(cfg.CORSOrigins) != 2 || cfg.CORSOrigins[1] != "https://b.example" {
		t.Errorf("CORSOrigins = %v", cfg.CORSOrigins)
	}
}

func TestLLMAPIKey(t *testing.T) {
	cfg := &Config{AnthropicAPIKey: "a", OpenAIAPIKey: "o", GeminiAPIKey: "g"}
	for provider, want := range map[string]string{"anthropic": "a", "openai": "o", "gemini": "g"} {
		cfg.DefaultLLM = provider
		if got := cfg.LLMAPIKey(); got != want {
			t.Errorf("LLMAPIKey(%s) = %q, want %q", provider, got, want)
		}
	}
}
