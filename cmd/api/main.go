package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/larrycoder123/supportmind/internal/api/handlers"
	"github.com/larrycoder123/supportmind/internal/cache/redis"
	"github.com/larrycoder123/supportmind/internal/core"
	"github.com/larrycoder123/supportmind/internal/enrich"
	"github.com/larrycoder123/supportmind/internal/gap"
	"github.com/larrycoder123/supportmind/internal/ingestion"
	"github.com/larrycoder123/supportmind/internal/learning"
	"github.com/larrycoder123/supportmind/internal/llm"
	"github.com/larrycoder123/supportmind/internal/metrics"
	"github.com/larrycoder123/supportmind/internal/middleware/ratelimit"
	"github.com/larrycoder123/supportmind/internal/middleware/security"
	"github.com/larrycoder123/supportmind/internal/middleware/validation"
	"github.com/larrycoder123/supportmind/internal/pipeline"
	"github.com/larrycoder123/supportmind/internal/review"
	"github.com/larrycoder123/supportmind/internal/storage/sqlite"
	"github.com/larrycoder123/supportmind/pkg/config"
	appLogger "github.com/larrycoder123/supportmind/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := appLogger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.OutputPath); err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer appLogger.Sync()

	appLogger.Info("starting supportmind retrieval and self-learning core")

	sqliteClient, err := sqlite.NewClient(cfg.SQLite.Path)
	if err != nil {
		appLogger.Fatal("failed to create sqlite client", zap.Error(err))
	}
	defer sqliteClient.Close()

	if err := sqliteClient.InitSchema(); err != nil {
		appLogger.Fatal("failed to initialize schema", zap.Error(err))
	}

	redisClient, err := redis.NewClient(cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		appLogger.Fatal("failed to create redis client", zap.Error(err))
	}
	defer redisClient.Close()

	llmClient := llm.NewClient(
		cfg.LLM.APIKey,
		cfg.LLM.ChatModel,
		cfg.LLM.EmbeddingModel,
		cfg.LLM.Temperature,
		cfg.LLM.MaxTokens,
		cfg.LLM.TimeoutSec,
	)
	if err := checkEmbeddingDimension(llmClient, cfg.LLM.EmbeddingDim); err != nil {
		appLogger.Fatal("embedding dimension self-check failed", zap.Error(err))
	}

	embedding := redis.NewEmbeddingCache(redisClient, llmClient, time.Hour*24*7)
	rerankPort := llm.NewEmbeddingRerankPort(llmClient)
	suggestCache := redis.NewSuggestCache(redisClient, time.Minute*10)

	corpusStore := sqlite.NewCorpusStore(sqliteClient)
	articleStore := sqlite.NewArticleStore(sqliteClient)
	caseStore := sqlite.NewCaseStore(sqliteClient)
	scriptStore := sqlite.NewScriptStore(sqliteClient)
	retrievalLogStore := sqlite.NewRetrievalLogStore(sqliteClient)
	executionStore := sqlite.NewExecutionStore(sqliteClient)
	learningEventStore := sqlite.NewLearningEventStore(sqliteClient)
	conversationStore := sqlite.NewConversationStore(sqliteClient)

	resolver := &enrich.Resolver{
		Articles: articleStore,
		Scripts:  scriptStore,
		Cases:    caseStore,
	}

	deps := pipeline.Deps{
		Store:                  corpusStore,
		Embedding:              embedding,
		Generation:             llmClient,
		Rerank:                 rerankPort,
		Enricher:               resolver,
		RerankerEnabled:        cfg.LLM.RerankerEnabled,
		GapSimilarityThreshold: cfg.Pipeline.GapSimilarityThreshold,
		MaxCandidates:          cfg.Pipeline.MaxCandidates,
		RerankBlendWeight:      cfg.Pipeline.RerankBlendWeight,
	}

	detector := &gap.Detector{
		Deps:                deps,
		Logs:                retrievalLogStore,
		Exec:                executionStore,
		ScoreWeights:        cfg.Pipeline.ScoreWeights,
		FreshnessMaxAgeDays: cfg.Pipeline.FreshnessMaxAgeDays,
		TopK:                &cfg.Pipeline.DefaultTopK,
	}

	drafter := &learning.Drafter{Generation: llmClient, Conversations: conversationStore}

	coordinator := &learning.Coordinator{
		Logs:     retrievalLogStore,
		Corpus:   corpusStore,
		Cases:    caseStore,
		Articles: articleStore,
		Events:   learningEventStore,
		Detector: detector,
		Drafter:  drafter,
		Deltas: learning.ConfidenceDeltas{
			Resolved:  cfg.Pipeline.ConfidenceDeltaResolved,
			Partial:   cfg.Pipeline.ConfidenceDeltaPartial,
			Unhelpful: cfg.Pipeline.ConfidenceDeltaUnhelpful,
			Confirmed: cfg.Pipeline.ConfidenceDeltaConfirmed,
		},
	}

	gateway := &review.Gateway{
		Events:   learningEventStore,
		Articles: articleStore,
		Corpus:   corpusStore,
		Embedder: embedding,
		Cache:    suggestCache,
	}

	service := &core.Service{
		Deps:                deps,
		Logs:                retrievalLogStore,
		Exec:                executionStore,
		Cases:               caseStore,
		Coordinator:         coordinator,
		Detector:            detector,
		Gateway:             gateway,
		Cache:               suggestCache,
		ScoreWeights:        cfg.Pipeline.ScoreWeights,
		DefaultTopK:         cfg.Pipeline.DefaultTopK,
		FreshnessMaxAgeDays: cfg.Pipeline.FreshnessMaxAgeDays,
	}

	ingester := ingestion.NewIngester(articleStore, corpusStore, embedding)
	ingester.Cache = suggestCache

	metrics.Init()

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    cfg.Server.BodyLimit,
	})

	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-User-ID",
		AllowMethods: "GET, POST, PUT, DELETE, OPTIONS",
	}))
	app.Use(security.HeadersMiddleware(security.HeadersConfig{IsDevelopment: cfg.Logging.Level == "debug"}))

	limiter := ratelimit.New(ratelimit.Config{MaxRequestsPerMinute: 120, Logger: appLogger.Log})
	app.Use(limiter.Middleware())
	app.Use(validation.Middleware(validation.Config{Logger: appLogger.Log}))

	suggestHandler := handlers.NewSuggestHandler(service)
	caseHandler := handlers.NewCaseHandler(service)
	reviewHandler := handlers.NewReviewHandler(service)
	ingestHandler := handlers.NewIngestHandler(ingester)
	wsHandler := handlers.NewWebSocketHandler(service)

	api := app.Group("/api/v1")

	api.Post("/suggest", suggestHandler.HandleSuggest)
	api.Post("/cases/close", caseHandler.HandleCloseCase)
	api.Post("/cases/:case_id/learn", caseHandler.HandleLearn)
	api.Post("/review", reviewHandler.HandleReview)
	api.Post("/ingest", ingestHandler.HandleIngest)

	app.Get("/ws", websocket.New(wsHandler.HandleConnection))

	app.Get("/metrics", metrics.MetricsHandler())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "healthy", "time": time.Now().Unix()})
	})
	app.Get("/ready", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ready"})
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	appLogger.Info("server starting", zap.String("address", addr))

	go func() {
		if err := app.Listen(addr); err != nil {
			appLogger.Fatal("server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("server shutting down gracefully...")
	app.Shutdown()
	appLogger.Info("server stopped")
}

// checkEmbeddingDimension probes the Embedding Port once at startup and
// fails fast if the provider's actual vector width doesn't match the
// configured dimension — a mismatch here would silently corrupt every
// cosine similarity computed against the Corpus Store.
func checkEmbeddingDimension(client *llm.Client, expected int) error {
	vectors, err := client.EmbedBatch(context.Background(), []string{"dimension self-check"})
	if err != nil {
		return fmt.Errorf("probe embedding port: %w", err)
	}
	if len(vectors) == 0 {
		return fmt.Errorf("probe embedding port: no vectors returned")
	}
	if got := len(vectors[0]); got != expected {
		return fmt.Errorf("embedding dimension mismatch: configured %d, provider returned %d", expected, got)
	}
	return nil
}
