package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"imagechain/internal/editor"
	"imagechain/internal/history"
	"imagechain/internal/http/handlers"
	httpapi "imagechain/internal/http/httpapi"
	"imagechain/internal/imageproc"
	"imagechain/internal/infra"
	"imagechain/internal/providers/gemini"
	"imagechain/internal/providers/openai"
	"imagechain/internal/providers/stability"
	"imagechain/internal/storage"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)
	ctx := context.Background()

	stabilityClient, err := stability.NewClient(stability.Options{
		APIKey:         cfg.StabilityAPIKey,
		BaseURL:        cfg.StabilityBaseURL,
		Logger:         &logger,
		RequestTimeout: cfg.ProviderTimeout,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("stability client")
	}
	openaiClient, err := openai.NewClient(openai.Options{
		APIKey:         cfg.OpenAIAPIKey,
		BaseURL:        cfg.OpenAIBaseURL,
		Organization:   cfg.OpenAIOrg,
		Logger:         &logger,
		RequestTimeout: cfg.ProviderTimeout,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("openai client")
	}
	geminiClient, err := gemini.NewClient(ctx, gemini.Options{
		APIKey:  cfg.GeminiAPIKey,
		BaseURL: cfg.GeminiBaseURL,
		Model:   cfg.GeminiModel,
		Logger:  &logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("gemini client")
	}
	for name, ok := range map[string]bool{
		"stability": stabilityClient.HasCredentials(),
		"openai":    openaiClient.HasCredentials(),
		"gemini":    geminiClient.HasCredentials(),
	} {
		if !ok {
			logger.Warn().Str("provider", name).Msg("provider not configured; its operations will fail")
		}
	}

	svc := editor.NewService(editor.Options{
		Stability:       stabilityClient,
		OpenAI:          openaiClient,
		Gemini:          geminiClient,
		Normalizer:      imageproc.NewNormalizer(logger),
		Converter:       imageproc.NewConverter(logger),
		TransformModel:  cfg.OpenAITransformModel,
		InpaintModel:    cfg.OpenAIInpaintModel,
		InpaintProvider: cfg.InpaintProvider,
		ResultMaxBytes:  cfg.ResultMaxBytes,
		ProviderTimeout: cfg.ProviderTimeout,
		Logger:          &logger,
	})

	var store history.Store = history.NewMemoryStoreTTL(cfg.SessionIdleTTL)
	if cfg.SessionStore == "postgres" {
		dbpool, err := infra.NewDBPool(ctx, cfg)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect database")
		}
		defer dbpool.Close()
		blobs, err := storage.NewFileStore(cfg.StoragePath)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to open image storage")
		}
		pg := history.NewPostgresStore(infra.NewSQLRunner(dbpool, logger), blobs, &logger)
		if err := pg.EnsureSchema(ctx); err != nil {
			logger.Fatal().Err(err).Msg("failed to prepare session schema")
		}
		store = pg
	}
	logger.Info().Str("session_store", cfg.SessionStore).Dur("idle_ttl", cfg.SessionIdleTTL).Msg("sessions ready")

	orchestrator := history.NewOrchestrator(store, svc, &logger)
	app := handlers.NewApp(svc, orchestrator, &logger, cfg.MaxUploadBytes)
	router := httpapi.NewRouter(app, cfg)
	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Str("addr", server.Addr()).Msg("API listening")
		if err := server.Start(); err != nil {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	// In-flight provider calls get the full provider timeout to finish.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ProviderTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("server stopped")
}
