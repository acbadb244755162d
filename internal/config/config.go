package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Config contains all runtime settings for the review streaming service.
type Config struct {
	BindAddr           string
	ShutdownTimeout    time.Duration
	SessionIdleTimeout time.Duration
	MetricsNamespace   string
	FrontendOrigin     string
	LogLevel           string
	LogPretty          bool

	OpenRouterAPIKey       string
	OpenRouterBaseURL      string
	OpenRouterDefaultModel string
	OpenRouterModels       []string

	FishAudioAPIKey       string
	FishAudioWSBaseURL    string
	FishAudioHTTPBaseURL  string
	FishAudioOutputFormat string
	FishAudioLatency      string
	FishAudioDefaultVoice string
	VoiceCatalogTTL       time.Duration

	AudioDir    string
	DatabaseURL string
	TTSSpeedMin float64
	TTSSpeedMax float64
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:               envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace:       envOrDefault("APP_METRICS_NAMESPACE", "ruiping"),
		FrontendOrigin:         envOrDefault("APP_FRONTEND_ORIGIN", "*"),
		LogLevel:               envOrDefault("APP_LOG_LEVEL", "info"),
		OpenRouterBaseURL:      envOrDefault("OPENROUTER_BASE_URL", "https://openrouter.ai/api/v1"),
		OpenRouterDefaultModel: envOrDefault("OPENROUTER_DEFAULT_MODEL", "deepseek/deepseek-chat"),
		OpenRouterAPIKey:       stringsTrimSpace("OPENROUTER_API_KEY"),
		FishAudioAPIKey:        stringsTrimSpace("FISHAUDIO_API_KEY"),
		FishAudioWSBaseURL:     envOrDefault("FISHAUDIO_WS_BASE_URL", "wss://api.fish.audio"),
		FishAudioHTTPBaseURL:   envOrDefault("FISHAUDIO_HTTP_BASE_URL", "https://api.fish.audio"),
		FishAudioOutputFormat:  envOrDefault("FISHAUDIO_OUTPUT_FORMAT", "mp3"),
		FishAudioLatency:       envOrDefault("FISHAUDIO_LATENCY", "balanced"),
		FishAudioDefaultVoice:  stringsTrimSpace("FISHAUDIO_DEFAULT_VOICE"),
		AudioDir:               envOrDefault("APP_AUDIO_DIR", "storage/audio"),
		DatabaseURL:            stringsTrimSpace("DATABASE_URL"),
		ShutdownTimeout:        15 * time.Second,
		SessionIdleTimeout:     10 * time.Minute,
		VoiceCatalogTTL:        10 * time.Minute,
		TTSSpeedMin:            0.5,
		TTSSpeedMax:            2.0,
	}

	models := stringsTrimSpace("OPENROUTER_ALLOWED_MODELS")
	if models == "" {
		cfg.OpenRouterModels = []string{cfg.OpenRouterDefaultModel}
	} else {
		for _, m := range strings.Split(models, ",") {
			if m = trimSpace(m); m != "" {
				cfg.OpenRouterModels = append(cfg.OpenRouterModels, m)
			}
		}
	}

	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.SessionIdleTimeout, err = durationFromEnv("APP_SESSION_IDLE_TIMEOUT", cfg.SessionIdleTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.VoiceCatalogTTL, err = durationFromEnv("APP_VOICE_CATALOG_TTL", cfg.VoiceCatalogTTL)
	if err != nil {
		return Config{}, err
	}
	cfg.LogPretty, err = boolFromEnv("APP_LOG_PRETTY", cfg.LogPretty)
	if err != nil {
		return Config{}, err
	}

	if cfg.SessionIdleTimeout < 5*time.Second {
		return Config{}, fmt.Errorf("APP_SESSION_IDLE_TIMEOUT must be at least 5s")
	}
	if len(cfg.OpenRouterModels) == 0 {
		return Config{}, fmt.Errorf("OPENROUTER_ALLOWED_MODELS must name at least one model")
	}
	switch cfg.FishAudioOutputFormat {
	case "mp3", "wav", "pcm", "opus":
	default:
		return Config{}, fmt.Errorf("FISHAUDIO_OUTPUT_FORMAT must be one of mp3, wav, pcm, opus")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func stringsTrimSpace(key string) string {
	return trimSpace(os.Getenv(key))
}

func trimSpace(v string) string {
	return strings.TrimSpace(v)
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(stringsTrimSpace(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
