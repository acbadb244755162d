package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("APP_BIND_ADDR", ":9090")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.BindAddr != ":9090" {
		t.Fatalf("BindAddr = %q, want %q", cfg.BindAddr, ":9090")
	}
	if cfg.SessionIdleTimeout != 10*time.Minute {
		t.Fatalf("SessionIdleTimeout = %v, want 10m", cfg.SessionIdleTimeout)
	}
	if cfg.FishAudioOutputFormat != "mp3" {
		t.Fatalf("FishAudioOutputFormat = %q, want mp3", cfg.FishAudioOutputFormat)
	}
	if len(cfg.OpenRouterModels) != 1 || cfg.OpenRouterModels[0] != cfg.OpenRouterDefaultModel {
		t.Fatalf("OpenRouterModels = %v, want default model only", cfg.OpenRouterModels)
	}
}

func TestLoadAllowedModelsList(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("OPENROUTER_ALLOWED_MODELS", "deepseek/deepseek-chat, openai/gpt-4o-mini ,")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	want := []string{"deepseek/deepseek-chat", "openai/gpt-4o-mini"}
	if len(cfg.OpenRouterModels) != len(want) {
		t.Fatalf("OpenRouterModels = %v, want %v", cfg.OpenRouterModels, want)
	}
	for i := range want {
		if cfg.OpenRouterModels[i] != want[i] {
			t.Fatalf("OpenRouterModels[%d] = %q, want %q", i, cfg.OpenRouterModels[i], want[i])
		}
	}
}

func TestLoadRejectsShortIdleTimeout(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("APP_SESSION_IDLE_TIMEOUT", "1s")

	if _, err := Load(); err == nil {
		t.Fatal("Load() expected error for short idle timeout")
	}
}

func TestLoadRejectsBadOutputFormat(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("FISHAUDIO_OUTPUT_FORMAT", "flac")

	if _, err := Load(); err == nil {
		t.Fatal("Load() expected error for unsupported output format")
	}
}

func setCoreEnvEmpty(t *testing.T) {
	t.Helper()
	keys := []string{
		"APP_BIND_ADDR",
		"APP_SHUTDOWN_TIMEOUT",
		"APP_SESSION_IDLE_TIMEOUT",
		"APP_METRICS_NAMESPACE",
		"APP_FRONTEND_ORIGIN",
		"APP_LOG_LEVEL",
		"APP_LOG_PRETTY",
		"APP_AUDIO_DIR",
		"APP_VOICE_CATALOG_TTL",
		"OPENROUTER_API_KEY",
		"OPENROUTER_BASE_URL",
		"OPENROUTER_DEFAULT_MODEL",
		"OPENROUTER_ALLOWED_MODELS",
		"FISHAUDIO_API_KEY",
		"FISHAUDIO_WS_BASE_URL",
		"FISHAUDIO_HTTP_BASE_URL",
		"FISHAUDIO_OUTPUT_FORMAT",
		"FISHAUDIO_LATENCY",
		"FISHAUDIO_DEFAULT_VOICE",
		"DATABASE_URL",
	}
	for _, key := range keys {
		t.Setenv(key, "")
	}
}
