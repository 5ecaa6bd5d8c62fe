package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"offer-parser/internal/ai"
	"offer-parser/internal/config"
	"offer-parser/internal/handler"
	"offer-parser/internal/logger"
	"offer-parser/internal/repository"
	"offer-parser/internal/repository/memory"
	"offer-parser/internal/repository/sqlstore"
	"offer-parser/internal/router"
	"offer-parser/internal/schema"
	"offer-parser/internal/service"
	"offer-parser/internal/sse"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		log.Fatal("Config validation failed:", err)
	}

	appLogger := logger.New()
	appLogger.SetLevel(cfg.LogLevel)

	ctx := context.Background()

	store := openStore(ctx, cfg, appLogger)
	defer store.Close()

	registry := schema.NewRegistry(store.Schemas)
	if cfg.SchemaFile != "" {
		loadSchemaFile(ctx, registry, cfg.SchemaFile, appLogger)
	}

	aiClient := ai.NewAIClient(ai.Options{
		Provider:  cfg.AIProvider,
		APIKey:    cfg.AIKey,
		Model:     cfg.AIModel,
		BaseURL:   cfg.AIBaseURL,
		RateLimit: cfg.AIRateLimit,
		RateBurst: cfg.AIRateBurst,
	}, appLogger)

	// SSE manager receives every record change
	sseManager := sse.NewSSEManager(appLogger)

	// Initialize services
	recordService := service.NewRecordService(store.Emails, sseManager, appLogger)
	parseService := service.NewParseService(
		store.Emails,
		recordService,
		registry,
		aiClient,
		sseManager,
		service.ParseConfig{
			Concurrency:  cfg.BatchConcurrency,
			MaxBatchSize: cfg.BatchMaxSize,
			CallTimeout:  cfg.ExtractTimeout,
			Retries:      cfg.ExtractRetries,
			RetryBackoff: cfg.ExtractRetryBackoff,
		},
		appLogger,
	)
	correctionService := service.NewCorrectionService(recordService, appLogger)
	ingestService := service.NewIngestService(store.Emails, store.Accounts, sseManager, appLogger)

	e := echo.New()
	e.HideBanner = true

	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	emailHandler := handler.NewEmailHandler(recordService, ingestService, sseManager, e.Logger)
	parsingHandler := handler.NewParsingHandler(recordService, parseService, correctionService, registry, cfg.BatchDefaultSize, e.Logger)
	accountHandler := handler.NewAccountHandler(ingestService, e.Logger)

	router.SetupRoutes(e, emailHandler, parsingHandler, accountHandler, appLogger)

	batchJob := sse.NewBatchJob(parseService, cfg.BatchDefaultSize, cfg.BatchInterval, appLogger)
	go batchJob.Start()

	go func() {
		appLogger.Info("Starting server on port", cfg.Port)
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Error("Failed to start server:", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down")

	// In-flight extractions may run up to the call timeout.
	shutdownCtx, cancel := context.WithTimeout(ctx, cfg.ExtractTimeout+10*time.Second)
	defer cancel()
	if err := batchJob.Stop(shutdownCtx); err != nil {
		appLogger.Error("Batch did not finish before shutdown:", err)
	}
	sseManager.Close()

	if err := e.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("Server shutdown failed:", err)
	}
}

// openStore uses PostgreSQL or SQLite when configured and falls back to memory.
func openStore(ctx context.Context, cfg *config.Config, appLogger *logger.Logger) *repository.Store {
	store, err := sqlstore.Open(ctx, cfg.DatabaseURL, cfg.SQLitePath)
	switch {
	case errors.Is(err, sqlstore.ErrNoDatabase):
		appLogger.Info("Using in-memory repositories")
		return memory.NewStore()
	case err != nil:
		log.Fatal("Failed to open database:", err)
	}
	if cfg.DatabaseURL != "" {
		appLogger.Info("Using PostgreSQL repositories")
	} else {
		appLogger.Info("Using SQLite repositories at", cfg.SQLitePath)
	}
	return store
}

func loadSchemaFile(ctx context.Context, registry *schema.Registry, path string, appLogger *logger.Logger) {
	doc, err := schema.LoadFile(path)
	if err != nil {
		log.Fatal("Failed to load schema file:", err)
	}
	if _, err := registry.SetActive(ctx, doc); err != nil {
		log.Fatal("Failed to activate schema file:", err)
	}
	appLogger.Info("Loaded parsing schema from", path)
}
