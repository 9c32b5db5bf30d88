package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the carepipe service. It is built once
// at startup and treated as immutable afterwards; components receive the
// sub-struct they need through their constructors.
type Config struct {
	Port       int
	Version    string
	LLM        LLMConfig
	Embeddings EmbeddingsConfig
	Store      StoreConfig
	Knowledge  KnowledgeConfig
	Pipeline   PipelineConfig
	Telemetry  TelemetryConfig
}

type LLMConfig struct {
	Mode   string // "mock" | "openai"
	Model  string
	APIKey string
}

type EmbeddingsConfig struct {
	Driver     string // "hash" | "openai"
	Dimensions int
	Model      string
}

type StoreConfig struct {
	Kind        string // "memory" | "sqlite" | "postgres"
	SQLitePath  string
	PostgresURL string
}

type KnowledgeConfig struct {
	Dir          string
	ChunkSize    int
	ChunkOverlap int
}

type PipelineConfig struct {
	EnableRAG          bool
	EnablePersistence  bool
	RequirePersistence bool
	TopK               int
	RetrievalTimeout   time.Duration
	GenerationTimeout  time.Duration
}

type TelemetryConfig struct {
	Enabled      bool
	OTLPEndpoint string
	ServiceName  string
}

// Load reads configuration from the environment with sensible defaults.
// A .env file in the working directory is honored when present.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Port:    envInt("CAREPIPE_PORT", 8080),
		Version: envStr("CAREPIPE_VERSION", "0.1.0"),
		LLM: LLMConfig{
			Mode:   envStr("LLM_MODE", "mock"),
			Model:  envStr("LLM_MODEL", "gpt-4o-mini"),
			APIKey: envStr("OPENAI_API_KEY", ""),
		},
		Embeddings: EmbeddingsConfig{
			Driver:     envStr("EMBEDDINGS_DRIVER", "hash"),
			Dimensions: envInt("EMBEDDINGS_DIMENSIONS", 16),
			Model:      envStr("EMBEDDINGS_MODEL", "text-embedding-3-small"),
		},
		Store: StoreConfig{
			Kind:        envStr("STORE_KIND", "memory"),
			SQLitePath:  envStr("STORE_SQLITE_PATH", ""),
			PostgresURL: envStr("DATABASE_URL", ""),
		},
		Knowledge: KnowledgeConfig{
			Dir:          envStr("KNOWLEDGE_DIR", ""),
			ChunkSize:    envInt("KNOWLEDGE_CHUNK_SIZE", 512),
			ChunkOverlap: envInt("KNOWLEDGE_CHUNK_OVERLAP", 50),
		},
		Pipeline: PipelineConfig{
			EnableRAG:          envBool("ENABLE_RAG", true),
			EnablePersistence:  envBool("ENABLE_PERSISTENCE", true),
			RequirePersistence: envBool("REQUIRE_PERSISTENCE", false),
			TopK:               envInt("RETRIEVAL_TOP_K", 3),
			RetrievalTimeout:   envDuration("RETRIEVAL_TIMEOUT", 2*time.Second),
			GenerationTimeout:  envDuration("GENERATION_TIMEOUT", 30*time.Second),
		},
		Telemetry: TelemetryConfig{
			Enabled:      envBool("OTEL_ENABLED", false),
			OTLPEndpoint: envStr("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			ServiceName:  envStr("OTEL_SERVICE_NAME", "carepipe"),
		},
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
