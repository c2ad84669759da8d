package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the retrieval engine and its CLI.
type Config struct {
	Store      StoreConfig      `yaml:"store"`
	Retrieve   RetrieveConfig   `yaml:"retrieve"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Rerank     RerankConfig     `yaml:"rerank"`
	Generation GenerationConfig `yaml:"generation"`
	Ingest     IngestConfig     `yaml:"ingest"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// StoreConfig holds persisted index location.
type StoreConfig struct {
	Dir string `yaml:"dir"`
}

// RetrieveConfig holds retrieval and fusion parameters.
type RetrieveConfig struct {
	TopK                int           `yaml:"top_k"`
	RRFK                int           `yaml:"rrf_k"`
	Overfetch           int           `yaml:"overfetch"`            // candidate pool = top_k * overfetch
	CandidateMultiplier int           `yaml:"candidate_multiplier"` // answer pipeline retrieves top_k * this before rerank
	K1                  float64       `yaml:"k1"`
	B                   float64       `yaml:"b"`
	Stopwords           bool          `yaml:"stopwords"`
	CacheSize           int           `yaml:"cache_size"` // 0 disables the query cache
	CacheTTL            time.Duration `yaml:"cache_ttl"`
	MMRLambda           float64       `yaml:"mmr_lambda"` // 0 disables diversification in answers
	DedupJaccard        float64       `yaml:"dedup_jaccard"`
}

// EmbeddingConfig holds embedding configuration.
type EmbeddingConfig struct {
	Provider  string `yaml:"provider"` // "openai", "ollama", "hash"
	Model     string `yaml:"model"`
	APIKeyEnv string `yaml:"api_key_env"`
	BaseURL   string `yaml:"base_url"`
	Dimension int    `yaml:"dimension"`
	BatchSize int    `yaml:"batch_size"`
}

// RerankConfig holds second-stage reranking configuration.
type RerankConfig struct {
	Provider  string `yaml:"provider"` // "none", "cohere", "overlap"
	Model     string `yaml:"model"`
	APIKeyEnv string `yaml:"api_key_env"`
	BaseURL   string `yaml:"base_url"`
}

// GenerationConfig holds answer generation configuration.
type GenerationConfig struct {
	Provider     string  `yaml:"provider"` // "openai", "none"
	Model        string  `yaml:"model"`
	APIKeyEnv    string  `yaml:"api_key_env"`
	BaseURL      string  `yaml:"base_url"`
	Temperature  float32 `yaml:"temperature"`
	ContextChars int     `yaml:"context_chars"`
}

// IngestConfig holds ingestion CLI configuration.
type IngestConfig struct {
	Includes  []string `yaml:"includes"`
	Excludes  []string `yaml:"excludes"`
	ChunkSize int      `yaml:"chunk_size"`
	Overlap   int      `yaml:"overlap"`
	Roles     []string `yaml:"roles"`
	BatchSize int      `yaml:"batch_size"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "text" or "json"
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Store: StoreConfig{
			Dir: "index",
		},
		Retrieve: RetrieveConfig{
			TopK:                5,
			RRFK:                60,
			Overfetch:           4,
			CandidateMultiplier: 2,
			K1:                  1.5,
			B:                   0.75,
			Stopwords:           false,
			CacheSize:           128,
			CacheTTL:            5 * time.Minute,
			MMRLambda:           0,
			DedupJaccard:        0.9,
		},
		Embedding: EmbeddingConfig{
			Provider:  "openai",
			Model:     "text-embedding-3-small",
			APIKeyEnv: "OPENAI_API_KEY",
			Dimension: 1536,
			BatchSize: 100,
		},
		Rerank: RerankConfig{
			Provider:  "none",
			Model:     "rerank-english-v3.0",
			APIKeyEnv: "COHERE_API_KEY",
		},
		Generation: GenerationConfig{
			Provider:     "openai",
			Model:        "gpt-4o-mini",
			APIKeyEnv:    "OPENAI_API_KEY",
			Temperature:  0.2,
			ContextChars: 12000,
		},
		Ingest: IngestConfig{
			Includes:  []string{"**/*.txt", "**/*.md", "**/*.markdown", "**/*.rst"},
			Excludes:  []string{"**/.git/**", "**/node_modules/**", "**/.hybridrag/**"},
			ChunkSize: 800,
			Overlap:   120,
			Roles:     []string{"all"},
			BatchSize: 64,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Validate checks the parameters the engine relies on.
func (c *Config) Validate() error {
	var errs []error
	if c.Retrieve.TopK <= 0 {
		errs = append(errs, fmt.Errorf("retrieve.top_k must be positive, got %d", c.Retrieve.TopK))
	}
	if c.Retrieve.RRFK <= 0 {
		errs = append(errs, fmt.Errorf("retrieve.rrf_k must be positive, got %d", c.Retrieve.RRFK))
	}
	if c.Retrieve.Overfetch <= 0 {
		errs = append(errs, fmt.Errorf("retrieve.overfetch must be positive, got %d", c.Retrieve.Overfetch))
	}
	if c.Retrieve.CandidateMultiplier <= 0 {
		errs = append(errs, fmt.Errorf("retrieve.candidate_multiplier must be positive, got %d", c.Retrieve.CandidateMultiplier))
	}
	if c.Retrieve.K1 < 0 {
		errs = append(errs, fmt.Errorf("retrieve.k1 must not be negative, got %f", c.Retrieve.K1))
	}
	if c.Retrieve.B < 0 || c.Retrieve.B > 1 {
		errs = append(errs, fmt.Errorf("retrieve.b must be within [0,1], got %f", c.Retrieve.B))
	}
	if c.Retrieve.MMRLambda < 0 || c.Retrieve.MMRLambda > 1 {
		errs = append(errs, fmt.Errorf("retrieve.mmr_lambda must be within [0,1], got %f", c.Retrieve.MMRLambda))
	}
	if c.Ingest.ChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("ingest.chunk_size must be positive, got %d", c.Ingest.ChunkSize))
	}
	if c.Ingest.Overlap < 0 || c.Ingest.Overlap >= c.Ingest.ChunkSize {
		errs = append(errs, fmt.Errorf("ingest.overlap must be within [0,chunk_size), got %d", c.Ingest.Overlap))
	}
	if c.Store.Dir == "" {
		errs = append(errs, errors.New("store.dir must be set"))
	}
	return errors.Join(errs...)
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil // Return defaults if no config file
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	return cfg, nil
}

// LoadFromDir loads configuration from a directory (looks for hybridrag.yaml).
func LoadFromDir(dir string) (*Config, error) {
	path := filepath.Join(dir, "hybridrag.yaml")
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	}

	path = filepath.Join(dir, ".hybridrag", "config.yaml")
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	}

	return DefaultConfig(), nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// StoreDir resolves the index directory against root when it is relative.
func (c *Config) StoreDir(root string) string {
	if filepath.IsAbs(c.Store.Dir) {
		return c.Store.Dir
	}
	return filepath.Join(root, c.Store.Dir)
}

// LoadEnv loads KEY=value pairs from dir/.env into the process environment.
// Variables already set win. A missing file is not an error.
func LoadEnv(dir string) error {
	path := filepath.Join(dir, ".env")
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}
