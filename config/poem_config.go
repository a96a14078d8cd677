package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"poetry_server/pkg/apperr"
)

// Model backends
const (
	BackendKServe = "kserve"
	BackendOpenAI = "openai"
)

// Dataset sources
const (
	SourceCSV      = "csv"
	SourcePostgres = "postgres"
	SourceMongo    = "mongo"
)

type Config struct {
	Port        string
	Environment string
	LogLevel    string

	// Model
	ModelPath      string
	ModelBackend   string
	ModelMaxTokens int

	// Inference server (KServe v2 / Triton)
	InferenceURL        string
	InferenceModelName  string
	InferenceOutputName string
	InferenceTimeoutSec int

	// OpenAI
	OpenAIAPIKey  string
	OpenAIBaseURL string
	LLMModel      string

	// Dataset
	DatasetSource       string
	PoetryCSVPath       string
	PoetryTextColumn    string
	PoetryEmotionColumn string
	DatabaseURL         string
	PoetryTable         string
	MongoDBURL          string
	MongoDBName         string
	PoetryCollection    string

	// Cache
	RedisURL    string
	CacheTTLMin int

	// HTTP
	RateLimitPerMin int
	BodyLimitKB     int
	AllowedOrigins  []string
}

func Load() (*Config, error) {
	cfg := &Config{
		Port:        getEnv("PORT", "5000"),
		Environment: getEnv("ENV", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),

		// Model
		ModelPath:      getEnv("MODEL_PATH", "../models/arabert-emotion-final"),
		ModelBackend:   strings.ToLower(getEnv("MODEL_BACKEND", BackendKServe)),
		ModelMaxTokens: getEnvInt("MODEL_MAX_TOKENS", 128),

		// Inference server
		InferenceURL:        getEnv("INFERENCE_URL", "http://localhost:8000"),
		InferenceModelName:  getEnv("INFERENCE_MODEL_NAME", "arabert-emotion"),
		InferenceOutputName: getEnv("INFERENCE_OUTPUT_NAME", "logits"),
		InferenceTimeoutSec: getEnvInt("INFERENCE_TIMEOUT_SEC", 10),

		// OpenAI
		OpenAIAPIKey:  getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL: getEnv("OPENAI_BASE_URL", ""),
		LLMModel:      getEnv("LLM_MODEL", "gpt-4o-mini"),

		// Dataset
		DatasetSource:       strings.ToLower(getEnv("DATASET_SOURCE", SourceCSV)),
		PoetryCSVPath:       getEnv("POETRY_CSV_PATH", "../data/poems_dataset2.csv"),
		PoetryTextColumn:    getEnv("POETRY_TEXT_COLUMN", "poem"),
		PoetryEmotionColumn: getEnv("POETRY_EMOTION_COLUMN", "emotion"),
		DatabaseURL:         getEnv("DATABASE_URL", ""),
		PoetryTable:         getEnv("POETRY_TABLE", "poems"),
		MongoDBURL:          getEnv("MONGODB_URL", ""),
		MongoDBName:         getEnv("MONGODB_DATABASE", "poetry"),
		PoetryCollection:    getEnv("POETRY_COLLECTION", "poems"),

		// Cache
		RedisURL:    getEnv("REDIS_URL", ""),
		CacheTTLMin: getEnvInt("CACHE_TTL_MIN", 60),

		// HTTP
		RateLimitPerMin: getEnvInt("RATE_LIMIT_PER_MIN", 60),
		BodyLimitKB:     getEnvInt("BODY_LIMIT_KB", 64),
		AllowedOrigins:  getEnvSlice("ALLOWED_ORIGINS", []string{"*"}),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects inconsistent settings with a configuration error.
func (c *Config) Validate() error {
	if _, err := strconv.Atoi(c.Port); err != nil {
		return apperr.ConfigErrorf("PORT %q is not a number", c.Port)
	}
	if c.ModelMaxTokens < 2 {
		return apperr.ConfigErrorf("MODEL_MAX_TOKENS must be at least 2, got %d", c.ModelMaxTokens)
	}
	if c.ModelPath == "" {
		return apperr.ConfigError("MODEL_PATH is required")
	}

	switch c.ModelBackend {
	case BackendKServe:
		if c.InferenceURL == "" || c.InferenceModelName == "" {
			return apperr.ConfigError("INFERENCE_URL and INFERENCE_MODEL_NAME are required for the kserve backend")
		}
	case BackendOpenAI:
		if c.OpenAIAPIKey == "" {
			return apperr.ConfigError("OPENAI_API_KEY is required for the openai backend")
		}
	default:
		return apperr.ConfigErrorf("unknown MODEL_BACKEND %q", c.ModelBackend)
	}

	switch c.DatasetSource {
	case SourceCSV:
		if c.PoetryCSVPath == "" {
			return apperr.ConfigError("POETRY_CSV_PATH is required for the csv source")
		}
	case SourcePostgres:
		if c.DatabaseURL == "" {
			return apperr.ConfigError("DATABASE_URL is required for the postgres source")
		}
	case SourceMongo:
		if c.MongoDBURL == "" {
			return apperr.ConfigError("MONGODB_URL is required for the mongo source")
		}
	default:
		return apperr.ConfigErrorf("unknown DATASET_SOURCE %q", c.DatasetSource)
	}

	if c.PoetryTextColumn == "" || c.PoetryEmotionColumn == "" {
		return apperr.ConfigError("POETRY_TEXT_COLUMN and POETRY_EMOTION_COLUMN must not be empty")
	}
	if c.CacheTTLMin < 0 {
		return apperr.ConfigErrorf("CACHE_TTL_MIN must not be negative, got %d", c.CacheTTLMin)
	}
	return nil
}

// InferenceTimeout returns the per-call inference deadline.
func (c *Config) InferenceTimeout() time.Duration {
	return time.Duration(c.InferenceTimeoutSec) * time.Second
}

// CacheTTL returns the classification cache lifetime.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLMin) * time.Minute
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c *Config) String() string {
	return fmt.Sprintf("env=%s port=%s backend=%s dataset=%s cache=%t",
		c.Environment, c.Port, c.ModelBackend, c.DatasetSource, c.RedisURL != "")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		out := parts[:0]
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out
	}
	return defaultValue
}
