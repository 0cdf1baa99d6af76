package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"

	"github.com/saplens-io/saplens-engine/pkg/adapters/sapdb"
	"github.com/saplens-io/saplens-engine/pkg/config"
	"github.com/saplens-io/saplens-engine/pkg/database"
	"github.com/saplens-io/saplens-engine/pkg/handlers"
	"github.com/saplens-io/saplens-engine/pkg/llm"
	"github.com/saplens-io/saplens-engine/pkg/logging"
	"github.com/saplens-io/saplens-engine/pkg/middleware"
	"github.com/saplens-io/saplens-engine/pkg/repositories"
	"github.com/saplens-io/saplens-engine/pkg/services"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.Env)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("Configuration loaded",
		zap.String("env", cfg.Env),
		zap.String("base_url", cfg.BaseURL),
		zap.String("database", cfg.Database.Database),
		zap.String("sap_driver", cfg.SAPSource.Driver),
		zap.String("ai_provider", cfg.AI.Provider),
		zap.String("ai_model", cfg.AI.Model))

	// Application store
	db, err := database.NewConnection(ctx, &database.Config{
		URL:            cfg.Database.ConnectionString(),
		MaxConnections: cfg.Database.MaxConnections,
	})
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	migrationDB := stdlib.OpenDBFromPool(db.Pool)
	if err := database.RunMigrations(migrationDB, cfg.Database.MigrationsPath, logger); err != nil {
		logger.Fatal("Failed to run migrations", zap.Error(err))
	}

	// SAP source
	extractor, err := sapdb.New(ctx, &cfg.SAPSource, logger)
	if err != nil {
		logger.Fatal("Failed to connect to SAP source", zap.Error(err))
	}
	defer func() { _ = extractor.Close() }()

	if err := extractor.TestConnection(ctx); err != nil {
		logger.Fatal("SAP source connection test failed", zap.Error(err))
	}

	// LLM client
	llmClient, err := llm.NewClient(&llm.ProviderConfig{
		Provider:       cfg.AI.Provider,
		Endpoint:       cfg.AI.Endpoint,
		Model:          cfg.AI.Model,
		APIKey:         cfg.AI.APIKey,
		EmbeddingModel: cfg.AI.EmbeddingModel,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to create LLM client", zap.Error(err))
	}

	// Repositories
	summaryRepo := repositories.NewSchemaSummaryRepository(db)
	columnRepo := repositories.NewColumnMetadataRepository(db)
	relationshipRepo := repositories.NewRelationshipRepository(db)
	groundTruthRepo := repositories.NewGroundTruthRepository(db)
	auditRepo := repositories.NewGeneratedQueryRepository(db)

	// Services
	rules, err := services.LoadBusinessRules()
	if err != nil {
		logger.Fatal("Failed to load business rules", zap.Error(err))
	}

	workerPool := llm.NewWorkerPool(llm.WorkerPoolConfig{
		MaxConcurrent: cfg.Pipeline.MaxConcurrentLLMCalls,
	}, logger)

	summaryService := services.NewSchemaSummaryService(llmClient, summaryRepo, cfg.AI.Temperature, logger)
	columnService := services.NewColumnAnalysisService(llmClient, columnRepo, workerPool, cfg.AI.Temperature, logger)
	relationshipService := services.NewRelationshipService(llmClient, relationshipRepo, rules, cfg.Pipeline.UseLLMRelationshipPass, cfg.AI.Temperature, logger)
	groundTruthService := services.NewGroundTruthService(summaryRepo, columnRepo, relationshipRepo, groundTruthRepo, logger)
	validationService := services.NewValidationService(logger)
	queryService := services.NewQueryService(llmClient, extractor, summaryRepo, groundTruthRepo, auditRepo, validationService, cfg.Pipeline.ExecutionRowLimit, cfg.AI.Temperature, logger)
	pipelineService := services.NewPipelineService(extractor, summaryService, columnService, relationshipService, groundTruthService, cfg.SAPSource.DebugDumpPath, logger)

	// Handlers
	mux := http.NewServeMux()
	handlers.NewHealthHandler(cfg, logger).RegisterRoutes(mux)
	handlers.NewPipelineHandler(pipelineService, logger).RegisterRoutes(mux)
	handlers.NewAIHandler(extractor, summaryService, columnService, relationshipService, groundTruthService, logger).RegisterRoutes(mux)
	handlers.NewQueryHandler(queryService, validationService, groundTruthService, logger).RegisterRoutes(mux)
	handlers.NewSAPQueryHandler(extractor, cfg.Pipeline.ExecutionRowLimit, logger).RegisterRoutes(mux)

	server := &http.Server{
		Addr:              cfg.BindAddr + ":" + cfg.Port,
		Handler:           middleware.RequestLogger(logger)(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Starting saplens-engine",
			zap.String("addr", server.Addr),
			zap.String("version", cfg.Version))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown failed", zap.Error(err))
	}
}
