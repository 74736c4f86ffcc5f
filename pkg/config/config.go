package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config is the flat, enumerated set of knobs the core reads at construction.
// It is never read from a package-level global — callers load it once and
// pass it into constructors.
type Config struct {
	Server   ServerConfig
	SQLite   SQLiteConfig
	Redis    RedisConfig
	LLM      LLMConfig
	Logging  LoggingConfig
	Pipeline PipelineConfig
}

type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  int
	WriteTimeout int
	BodyLimit    int
}

type SQLiteConfig struct {
	Path string
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type LLMConfig struct {
	Provider        string
	ChatModel       string
	PlanningModel   string
	EmbeddingModel  string
	RerankModel     string
	APIKey          string
	RerankerEnabled bool
	Temperature     float32
	MaxTokens       int
	TimeoutSec      int
	EmbeddingDim    int
}

type LoggingConfig struct {
	Level      string
	Format     string
	OutputPath string
}

// ScoreWeights are the five weights of the final_score blend. Must sum to 1.
type ScoreWeights struct {
	Similarity float64
	Rerank     float64
	Confidence float64
	Freshness  float64
	Learning   float64
}

// PipelineConfig carries every retrieval/gap/learning knob the pipeline needs at runtime.
type PipelineConfig struct {
	DefaultTopK              int
	MaxCandidates            int
	GapSimilarityThreshold   float64
	ConfidenceDeltaResolved  float64
	ConfidenceDeltaPartial   float64
	ConfidenceDeltaUnhelpful float64
	ConfidenceDeltaConfirmed float64
	FreshnessMaxAgeDays      int
	ScoreWeights             ScoreWeights
	RerankBlendWeight        float64
	GenerationRetryAttempts  int
}

// Load reads configuration from (in priority order) environment variables
// prefixed SUPPORTMIND_, an optional config.yaml in the working directory or
// ./config, and finally the defaults set below.
func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/supportmind")

	viper.SetEnvPrefix("SUPPORTMIND")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.readTimeout", 30)
	viper.SetDefault("server.writeTimeout", 30)
	viper.SetDefault("server.bodyLimit", 10485760)

	viper.SetDefault("sqlite.path", "./data/supportmind.db")

	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.db", 0)

	viper.SetDefault("llm.provider", "openai")
	viper.SetDefault("llm.chatModel", "gpt-4")
	viper.SetDefault("llm.planningModel", "gpt-4o-mini")
	viper.SetDefault("llm.embeddingModel", "text-embedding-3-large")
	viper.SetDefault("llm.rerankModel", "rerank-v4.0-pro")
	viper.SetDefault("llm.rerankerEnabled", true)
	viper.SetDefault("llm.temperature", 0.2)
	viper.SetDefault("llm.maxTokens", 2048)
	viper.SetDefault("llm.timeoutSec", 30)
	viper.SetDefault("llm.embeddingDim", 1536)

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.outputPath", "stdout")

	viper.SetDefault("pipeline.defaultTopK", 10)
	viper.SetDefault("pipeline.maxCandidates", 40)
	viper.SetDefault("pipeline.gapSimilarityThreshold", 0.75)
	viper.SetDefault("pipeline.confidenceDeltaResolved", 0.10)
	viper.SetDefault("pipeline.confidenceDeltaPartial", 0.02)
	viper.SetDefault("pipeline.confidenceDeltaUnhelpful", -0.05)
	viper.SetDefault("pipeline.confidenceDeltaConfirmed", 0.05)
	viper.SetDefault("pipeline.freshnessMaxAgeDays", 365)
	viper.SetDefault("pipeline.rerankBlendWeight", 0.3)
	viper.SetDefault("pipeline.generationRetryAttempts", 3)

	viper.SetDefault("pipeline.scoreWeights.similarity", 0.40)
	viper.SetDefault("pipeline.scoreWeights.rerank", 0.25)
	viper.SetDefault("pipeline.scoreWeights.confidence", 0.20)
	viper.SetDefault("pipeline.scoreWeights.freshness", 0.10)
	viper.SetDefault("pipeline.scoreWeights.learning", 0.05)
}
