// Package config provides configuration management for Mnemo.
// Settings resolve in three layers: built-in defaults, an optional YAML file,
// and environment variables with the MNEMO_ prefix, each overriding the
// previous one.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration settings for the Mnemo application.
type Config struct {
	Storage      StorageConfig      `yaml:"storage"`
	LLM          LLMConfig          `yaml:"llm"`
	ShortTerm    ShortTermConfig    `yaml:"short_term"`
	Concepts     ConceptsConfig     `yaml:"concepts"`
	Episodic     EpisodicConfig     `yaml:"episodic"`
	LongTerm     LongTermConfig     `yaml:"long_term"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator"`
}

// StorageConfig selects and configures the long-term vector backend.
type StorageConfig struct {
	Engine      string `yaml:"engine"`       // Vector backend: chromem, postgres (default: chromem)
	DataPath    string `yaml:"data_path"`    // Path to data directory (default: ./data)
	PostgresDSN string `yaml:"postgres_dsn"` // DSN when engine is postgres
}

// LLMConfig contains LLM provider configuration.
type LLMConfig struct {
	Provider        string  `yaml:"provider"`           // Embedding provider: ollama, local (default: ollama)
	OllamaURL       string  `yaml:"ollama_url"`         // Ollama API URL (default: http://localhost:11434)
	EmbeddingModel  string  `yaml:"embedding_model"`    // Ollama embedding model (default: nomic-embed-text)
	CompletionModel string  `yaml:"completion_model"`   // Ollama completion model (default: qwen2.5:7b)
	TimeoutSeconds  int     `yaml:"timeout_seconds"`    // HTTP timeout per request (default: 10)
	EmbedRatePerSec float64 `yaml:"embed_rate_per_sec"` // Embedding rate limit; 0 disables
}

// ShortTermConfig tunes the recency buffer.
type ShortTermConfig struct {
	Capacity int `yaml:"capacity"` // Max interactions held (default: 50)
}

// ConceptsConfig tunes the concept graph.
type ConceptsConfig struct {
	MaxDepth       int     `yaml:"max_depth"`       // Traversal depth bound (default: 5)
	PruneThreshold float64 `yaml:"prune_threshold"` // Concepts below this strength are pruned (default: 0.3)
}

// EpisodicConfig tunes the event store.
type EpisodicConfig struct {
	RetentionDays int     `yaml:"retention_days"` // Events older than this are expired (default: 365)
	MinSimilarity float64 `yaml:"min_similarity"` // Similarity floor for event retrieval (default: 0.3)
}

// LongTermConfig tunes the durable interaction store.
type LongTermConfig struct {
	RetrievalLimit      int     `yaml:"retrieval_limit"`      // Similar interactions per query (default: 3)
	ImportanceThreshold float64 `yaml:"importance_threshold"` // Promotion cutoff, exclusive (default: 0.6)
	RetentionDays       int     `yaml:"retention_days"`       // Interactions older than this are expired (default: 730)
}

// OrchestratorConfig tunes turn processing.
type OrchestratorConfig struct {
	EpisodicThreshold       float64 `yaml:"episodic_threshold"`        // Event score cutoff, exclusive (default: 0.7)
	RetrievalTimeoutSeconds int     `yaml:"retrieval_timeout_seconds"` // Per-tier retrieval budget (default: 5)
}

// LoadConfig resolves configuration from defaults, an optional YAML file
// named by MNEMO_CONFIG_FILE, and MNEMO_* environment variables.
func LoadConfig() (*Config, error) {
	cfg := defaultConfig()

	if path := os.Getenv("MNEMO_CONFIG_FILE"); path != "" {
		if err := loadFile(cfg, path); err != nil {
			return nil, err
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks settings that would otherwise fail deep inside a tier.
func (c *Config) Validate() error {
	switch c.Storage.Engine {
	case "chromem", "postgres":
	default:
		return fmt.Errorf("config: unknown storage engine %q (expected chromem or postgres)", c.Storage.Engine)
	}
	if c.Storage.Engine == "postgres" && c.Storage.PostgresDSN == "" {
		return fmt.Errorf("config: postgres engine requires a DSN (MNEMO_POSTGRES_DSN)")
	}

	switch c.LLM.Provider {
	case "ollama", "local":
	default:
		return fmt.Errorf("config: unknown LLM provider %q (expected ollama or local)", c.LLM.Provider)
	}

	if c.LongTerm.ImportanceThreshold < 0 || c.LongTerm.ImportanceThreshold > 1 {
		return fmt.Errorf("config: importance threshold must be in [0, 1], got %v", c.LongTerm.ImportanceThreshold)
	}
	if c.Orchestrator.EpisodicThreshold < 0 || c.Orchestrator.EpisodicThreshold > 1 {
		return fmt.Errorf("config: episodic threshold must be in [0, 1], got %v", c.Orchestrator.EpisodicThreshold)
	}
	if c.Episodic.MinSimilarity < 0 || c.Episodic.MinSimilarity > 1 {
		return fmt.Errorf("config: episodic min similarity must be in [0, 1], got %v", c.Episodic.MinSimilarity)
	}
	return nil
}

func defaultConfig() *Config {
	return &Config{
		Storage: StorageConfig{
			Engine:   "chromem",
			DataPath: "./data",
		},
		LLM: LLMConfig{
			Provider:        "ollama",
			OllamaURL:       "http://localhost:11434",
			EmbeddingModel:  "nomic-embed-text",
			CompletionModel: "qwen2.5:7b",
			TimeoutSeconds:  10,
		},
		ShortTerm: ShortTermConfig{Capacity: 50},
		Concepts: ConceptsConfig{
			MaxDepth:       5,
			PruneThreshold: 0.3,
		},
		Episodic: EpisodicConfig{
			RetentionDays: 365,
			MinSimilarity: 0.3,
		},
		LongTerm: LongTermConfig{
			RetrievalLimit:      3,
			ImportanceThreshold: 0.6,
			RetentionDays:       730,
		},
		Orchestrator: OrchestratorConfig{
			EpisodicThreshold:       0.7,
			RetrievalTimeoutSeconds: 5,
		},
	}
}

func loadFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.Storage.Engine = getEnv("MNEMO_STORAGE_ENGINE", cfg.Storage.Engine)
	cfg.Storage.DataPath = getEnv("MNEMO_DATA_PATH", cfg.Storage.DataPath)
	cfg.Storage.PostgresDSN = getEnv("MNEMO_POSTGRES_DSN", cfg.Storage.PostgresDSN)

	cfg.LLM.Provider = getEnv("MNEMO_LLM_PROVIDER", cfg.LLM.Provider)
	cfg.LLM.OllamaURL = getEnv("MNEMO_OLLAMA_URL", cfg.LLM.OllamaURL)
	cfg.LLM.EmbeddingModel = getEnv("MNEMO_EMBEDDING_MODEL", cfg.LLM.EmbeddingModel)
	cfg.LLM.CompletionModel = getEnv("MNEMO_COMPLETION_MODEL", cfg.LLM.CompletionModel)
	cfg.LLM.TimeoutSeconds = getEnvInt("MNEMO_LLM_TIMEOUT_SECONDS", cfg.LLM.TimeoutSeconds)
	cfg.LLM.EmbedRatePerSec = getEnvFloat("MNEMO_EMBED_RATE_PER_SEC", cfg.LLM.EmbedRatePerSec)

	cfg.ShortTerm.Capacity = getEnvInt("MNEMO_SHORT_TERM_CAPACITY", cfg.ShortTerm.Capacity)

	cfg.Concepts.MaxDepth = getEnvInt("MNEMO_CONCEPT_MAX_DEPTH", cfg.Concepts.MaxDepth)
	cfg.Concepts.PruneThreshold = getEnvFloat("MNEMO_CONCEPT_PRUNE_THRESHOLD", cfg.Concepts.PruneThreshold)

	cfg.Episodic.RetentionDays = getEnvInt("MNEMO_EPISODIC_RETENTION_DAYS", cfg.Episodic.RetentionDays)
	cfg.Episodic.MinSimilarity = getEnvFloat("MNEMO_EPISODIC_MIN_SIMILARITY", cfg.Episodic.MinSimilarity)

	cfg.LongTerm.RetrievalLimit = getEnvInt("MNEMO_LONG_TERM_RETRIEVAL_LIMIT", cfg.LongTerm.RetrievalLimit)
	cfg.LongTerm.ImportanceThreshold = getEnvFloat("MNEMO_IMPORTANCE_THRESHOLD", cfg.LongTerm.ImportanceThreshold)
	cfg.LongTerm.RetentionDays = getEnvInt("MNEMO_LONG_TERM_RETENTION_DAYS", cfg.LongTerm.RetentionDays)

	cfg.Orchestrator.EpisodicThreshold = getEnvFloat("MNEMO_EPISODIC_THRESHOLD", cfg.Orchestrator.EpisodicThreshold)
	cfg.Orchestrator.RetrievalTimeoutSeconds = getEnvInt("MNEMO_RETRIEVAL_TIMEOUT_SECONDS", cfg.Orchestrator.RetrievalTimeoutSeconds)
}

// getEnv retrieves a string environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an integer environment variable or returns a default
// value. An unparseable value falls back to the default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvFloat retrieves a float environment variable or returns a default
// value. An unparseable value falls back to the default.
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}
