package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/larrycoder123/supportmind/internal/cache/redis"
	"github.com/larrycoder123/supportmind/internal/core"
	"github.com/larrycoder123/supportmind/internal/enrich"
	"github.com/larrycoder123/supportmind/internal/evaluation"
	"github.com/larrycoder123/supportmind/internal/gap"
	"github.com/larrycoder123/supportmind/internal/learning"
	"github.com/larrycoder123/supportmind/internal/llm"
	"github.com/larrycoder123/supportmind/internal/pipeline"
	"github.com/larrycoder123/supportmind/internal/review"
	"github.com/larrycoder123/supportmind/internal/storage/sqlite"
	"github.com/larrycoder123/supportmind/pkg/config"
	appLogger "github.com/larrycoder123/supportmind/pkg/logger"
)

// evaluate runs the evaluation harness against a labeled JSON dataset and
// prints the aggregate report. It stands up the same dependency graph as
// cmd/api but never starts an HTTP listener — a one-shot batch job meant for
// CI or a release gate, not for serving traffic.
func main() {
	datasetPath := flag.String("dataset", "", "path to a JSON evaluation dataset")
	flag.Parse()

	if *datasetPath == "" {
		fmt.Println("usage: evaluate -dataset path/to/dataset.json")
		os.Exit(1)
	}

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

	raw, err := os.ReadFile(*datasetPath)
	if err != nil {
		appLogger.Fatal("failed to read dataset file", zap.Error(err))
	}

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
	embedding := redis.NewEmbeddingCache(redisClient, llmClient, time.Hour*24*7)
	rerankPort := llm.NewEmbeddingRerankPort(llmClient)

	corpusStore := sqlite.NewCorpusStore(sqliteClient)
	articleStore := sqlite.NewArticleStore(sqliteClient)
	caseStore := sqlite.NewCaseStore(sqliteClient)
	scriptStore := sqlite.NewScriptStore(sqliteClient)
	retrievalLogStore := sqlite.NewRetrievalLogStore(sqliteClient)
	executionStore := sqlite.NewExecutionStore(sqliteClient)
	learningEventStore := sqlite.NewLearningEventStore(sqliteClient)
	conversationStore := sqlite.NewConversationStore(sqliteClient)

	resolver := &enrich.Resolver{Articles: articleStore, Scripts: scriptStore, Cases: caseStore}

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

	gateway := &review.Gateway{Events: learningEventStore, Articles: articleStore, Corpus: corpusStore, Embedder: embedding}

	service := &core.Service{
		Deps:                deps,
		Logs:                retrievalLogStore,
		Exec:                executionStore,
		Cases:               caseStore,
		Coordinator:         coordinator,
		Detector:            detector,
		Gateway:             gateway,
		ScoreWeights:        cfg.Pipeline.ScoreWeights,
		DefaultTopK:         cfg.Pipeline.DefaultTopK,
		FreshnessMaxAgeDays: cfg.Pipeline.FreshnessMaxAgeDays,
	}

	evaluator := evaluation.NewEvaluator(service, embedding, llmClient)

	dataset, err := evaluator.LoadDatasetFromJSON(string(raw))
	if err != nil {
		appLogger.Fatal("failed to load dataset", zap.Error(err))
	}

	report, err := evaluator.RunDatasetEvaluation(context.Background(), dataset)
	if err != nil {
		appLogger.Fatal("evaluation run failed", zap.Error(err))
	}

	fmt.Println(evaluator.GenerateReport(report))
}
