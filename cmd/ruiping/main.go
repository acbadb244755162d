package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/ruiping-ai/ruiping/internal/casestore"
	"github.com/ruiping-ai/ruiping/internal/config"
	"github.com/ruiping-ai/ruiping/internal/httpapi"
	"github.com/ruiping-ai/ruiping/internal/llm"
	"github.com/ruiping-ai/ruiping/internal/observability"
	"github.com/ruiping-ai/ruiping/internal/session"
	"github.com/ruiping-ai/ruiping/internal/storage"
	"github.com/ruiping-ai/ruiping/internal/tts"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		lg := observability.NewLogger("info", false)
		lg.Fatal().Err(err).Msg("config error")
	}
	logger := observability.NewLogger(cfg.LogLevel, cfg.LogPretty)

	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	ctx := context.Background()
	store, err := casestore.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("case store init failed")
	}
	defer store.Close()
	if cfg.DatabaseURL == "" {
		logger.Info().Msg("case store: in-memory (DATABASE_URL not set)")
	} else {
		logger.Info().Msg("case store: postgres")
	}

	var llmClient llm.Client
	if strings.TrimSpace(cfg.OpenRouterAPIKey) == "" {
		llmClient = llm.NewMockClient()
		logger.Warn().Msg("llm backend: mock (OPENROUTER_API_KEY not set)")
	} else {
		llmClient = llm.NewOpenRouterClient(llm.OpenRouterConfig{
			APIKey:        cfg.OpenRouterAPIKey,
			BaseURL:       cfg.OpenRouterBaseURL,
			AllowedModels: cfg.OpenRouterModels,
		}, logger)
		logger.Info().Str("base_url", cfg.OpenRouterBaseURL).Msg("llm backend: openrouter")
	}

	var (
		synth   tts.Synthesizer
		catalog httpapi.VoiceCatalog
	)
	if strings.TrimSpace(cfg.FishAudioAPIKey) == "" {
		synth = tts.NewMockSynthesizer()
		logger.Warn().Msg("tts backend: mock (FISHAUDIO_API_KEY not set)")
	} else {
		synth = tts.NewFishAudioProvider(tts.FishAudioConfig{
			APIKey:       cfg.FishAudioAPIKey,
			WSBaseURL:    cfg.FishAudioWSBaseURL,
			HTTPBaseURL:  cfg.FishAudioHTTPBaseURL,
			OutputFormat: cfg.FishAudioOutputFormat,
			Latency:      cfg.FishAudioLatency,
		}, logger)
		catalog = tts.NewCatalog(cfg.FishAudioAPIKey, cfg.FishAudioHTTPBaseURL, cfg.VoiceCatalogTTL)
		logger.Info().Str("format", cfg.FishAudioOutputFormat).Msg("tts backend: fishaudio")
	}

	sink, err := storage.NewAudioWriter(cfg.AudioDir, cfg.FishAudioOutputFormat, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("audio writer init failed")
	}

	registry := session.NewRegistry(cfg.SessionIdleTimeout, metrics, logger)

	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()
	registry.StartReaper(runCtx)

	api := httpapi.New(cfg, registry, store, llmClient, synth, sink, catalog, metrics, logger)
	httpServer := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: api.Router(),
	}

	go func() {
		logger.Info().Str("addr", cfg.BindAddr).Msg("server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("listen error")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.Info().Msg("shutdown signal received")

	runCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("graceful shutdown failed")
		_ = httpServer.Close()
	}

	logger.Info().Msg("shutdown complete")
}
