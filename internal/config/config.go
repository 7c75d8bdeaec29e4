package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig is returned by Validate for unusable configurations.
var ErrInvalidConfig = errors.New("invalid config")

// ServerConfig configures the query listener.
type ServerConfig struct {
	Host                string `yaml:"host"`
	Port                int    `yaml:"port"`
	ReadTimeoutSecs     int    `yaml:"read_timeout_secs"`
	WriteTimeoutSecs    int    `yaml:"write_timeout_secs"`
	ShutdownTimeoutSecs int    `yaml:"shutdown_timeout_secs"`
}

// AdminConfig configures the metrics and health listener. A negative port disables it.
type AdminConfig struct {
	Port int `yaml:"port"`
}

// DocumentsConfig points at the directory indexed at startup.
type DocumentsConfig struct {
	Dir        string   `yaml:"dir"`
	Recursive  *bool    `yaml:"recursive,omitempty"`
	Extensions []string `yaml:"extensions,omitempty"`
}

// IsRecursive reports whether subdirectories are loaded. Defaults to true.
func (d DocumentsConfig) IsRecursive() bool {
	return d.Recursive == nil || *d.Recursive
}

// LLMConfig selects and configures the language-model backend.
type LLMConfig struct {
	Type        string  `yaml:"type"`
	BaseURL     string  `yaml:"base_url"`
	Model       string  `yaml:"model"`
	APIKeyEnv   string  `yaml:"api_key_env"`
	TimeoutSecs int     `yaml:"timeout_secs"`
	Temperature float64 `yaml:"temperature"`
}

// OpenAIEmbedderConfig holds configuration for the OpenAI-compatible embedder.
type OpenAIEmbedderConfig struct {
	BaseURL     string `yaml:"base_url"`
	APIKeyEnv   string `yaml:"api_key_env"`
	Model       string `yaml:"model"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// OllamaEmbedderConfig holds configuration for the Ollama embedder.
type OllamaEmbedderConfig struct {
	BaseURL     string `yaml:"base_url"`
	Model       string `yaml:"model"`
	TimeoutSecs int    `yaml:"timeout_secs"`
	BatchSize   int    `yaml:"batch_size"`
}

// EmbeddingCacheConfig enables the Redis-backed embedding cache.
type EmbeddingCacheConfig struct {
	RedisURL string `yaml:"redis_url"`
	TTLSecs  int    `yaml:"ttl_secs"`
}

// EmbedderConfig selects and configures the text embedder implementation.
type EmbedderConfig struct {
	Type        string                `yaml:"type"`
	Concurrency int                   `yaml:"concurrency"`
	OpenAI      *OpenAIEmbedderConfig `yaml:"openai,omitempty"`
	Ollama      *OllamaEmbedderConfig `yaml:"ollama,omitempty"`
	Cache       *EmbeddingCacheConfig `yaml:"cache,omitempty"`
}

// ChunkerConfig configures how documents are split into chunks.
type ChunkerConfig struct {
	Type              string `yaml:"type"`
	SentencesPerChunk int    `yaml:"sentences_per_chunk"`
	OverlapSentences  *int   `yaml:"overlap_sentences,omitempty"`
	ChunkTokens       int    `yaml:"chunk_tokens"`
	OverlapTokens     *int   `yaml:"overlap_tokens,omitempty"`
	Encoding          string `yaml:"encoding"`
}

// SentenceOverlap is the sentence overlap between chunks. An explicit 0
// disables overlap; unset means 1.
func (c ChunkerConfig) SentenceOverlap() int {
	if c.OverlapSentences == nil {
		return 1
	}
	return *c.OverlapSentences
}

// TokenOverlap is the token overlap between chunks. An explicit 0
// disables overlap; unset means 20.
func (c ChunkerConfig) TokenOverlap() int {
	if c.OverlapTokens == nil {
		return 20
	}
	return *c.OverlapTokens
}

// VectorStoreConfig selects and configures the vector store implementation.
type VectorStoreConfig struct {
	Type   string        `yaml:"type"`
	Qdrant *QdrantConfig `yaml:"qdrant,omitempty"`
}

// QdrantConfig contains connection details for a Qdrant vector store.
type QdrantConfig struct {
	URL         string `yaml:"url"`
	APIKey      string `yaml:"api_key"`
	Collection  string `yaml:"collection"`
	TimeoutSecs int    `yaml:"timeout_secs"`
	BatchSize   int    `yaml:"batch_size"`
}

// QueryConfig tunes retrieval and answer synthesis.
type QueryConfig struct {
	SimilarityTopK     int    `yaml:"similarity_top_k"`
	ResponseMode       string `yaml:"response_mode"`
	ContextWindowChars int    `yaml:"context_window_chars"`
	TextQAPrompt       string `yaml:"text_qa_prompt,omitempty"`
	RefinePrompt       string `yaml:"refine_prompt,omitempty"`
	ExtractSentences   int    `yaml:"extract_sentences"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Server      ServerConfig      `yaml:"server"`
	Admin       AdminConfig       `yaml:"admin"`
	Documents   DocumentsConfig   `yaml:"documents"`
	LLM         LLMConfig         `yaml:"llm"`
	Embedder    EmbedderConfig    `yaml:"embedder"`
	Chunker     ChunkerConfig     `yaml:"chunker"`
	VectorStore VectorStoreConfig `yaml:"vector_store"`
	Query       QueryConfig       `yaml:"query"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// Load reads a config from a specified path. If the file does not exist, returns defaults.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg := defaultConfig()
			applyEnvOverrides(cfg)
			return cfg, cfg.Validate()
		}
		return nil, err
	}
	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	applyConfigDefaults(&cfg)
	applyEnvOverrides(&cfg)
	return &cfg, cfg.Validate()
}

// LoadDefault tries ./config.yaml first, then ~/.config/aiservice/config.yaml.
// If neither exists, built-in defaults are returned with an empty path.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "config.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := defaultUserConfigPath()
	if err == nil {
		if _, err := os.Stat(userPath); err == nil {
			cfg, err := Load(userPath)
			return cfg, userPath, err
		}
	}
	cfg := defaultConfig()
	applyEnvOverrides(cfg)
	return cfg, "", cfg.Validate()
}

// Validate rejects unknown component types and nonsensical sizes.
func (c *AppConfig) Validate() error {
	if err := oneOf("llm.type", c.LLM.Type, "ollama", "openai"); err != nil {
		return err
	}
	if err := oneOf("embedder.type", c.Embedder.Type, "ollama", "openai", "tfidf"); err != nil {
		return err
	}
	if err := oneOf("chunker.type", c.Chunker.Type, "sentence", "token"); err != nil {
		return err
	}
	if err := oneOf("vector_store.type", c.VectorStore.Type, "memory", "qdrant"); err != nil {
		return err
	}
	if err := oneOf("query.response_mode", c.Query.ResponseMode,
		"compact", "refine", "simple_summarize", "no_text", "extractive"); err != nil {
		return err
	}
	if c.VectorStore.Type == "qdrant" && (c.VectorStore.Qdrant == nil || c.VectorStore.Qdrant.URL == "") {
		return fmt.Errorf("%w: vector_store.qdrant.url is required", ErrInvalidConfig)
	}
	if c.Embedder.Cache != nil && c.Embedder.Cache.RedisURL != "" && c.Embedder.Type == "tfidf" {
		return fmt.Errorf("%w: embedding cache cannot be used with the tfidf embedder", ErrInvalidConfig)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("%w: server.port %d out of range", ErrInvalidConfig, c.Server.Port)
	}
	if strings.TrimSpace(c.Documents.Dir) == "" {
		return fmt.Errorf("%w: documents.dir is required", ErrInvalidConfig)
	}
	return nil
}

func oneOf(field, value string, allowed ...string) error {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return fmt.Errorf("%w: unknown %s %q (want one of %s)", ErrInvalidConfig, field, value, strings.Join(allowed, ", "))
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "aiservice", "config.yaml"), nil
}

func defaultConfig() *AppConfig {
	cfg := &AppConfig{}
	applyConfigDefaults(cfg)
	return cfg
}

func applyConfigDefaults(cfg *AppConfig) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8000
	}
	if cfg.Server.ReadTimeoutSecs == 0 {
		cfg.Server.ReadTimeoutSecs = 30
	}
	if cfg.Server.WriteTimeoutSecs == 0 {
		cfg.Server.WriteTimeoutSecs = 300
	}
	if cfg.Server.ShutdownTimeoutSecs == 0 {
		cfg.Server.ShutdownTimeoutSecs = 10
	}
	if cfg.Admin.Port == 0 {
		cfg.Admin.Port = 9090
	}
	if cfg.Documents.Dir == "" {
		cfg.Documents.Dir = "./data"
	}

	if cfg.LLM.Type == "" {
		cfg.LLM.Type = "ollama"
	}
	if cfg.LLM.TimeoutSecs == 0 {
		cfg.LLM.TimeoutSecs = 120
	}
	switch cfg.LLM.Type {
	case "ollama":
		if cfg.LLM.BaseURL == "" {
			cfg.LLM.BaseURL = "http://localhost:11434"
		}
		if cfg.LLM.Model == "" {
			cfg.LLM.Model = "qwen2:1.5b"
		}
	case "openai":
		if cfg.LLM.BaseURL == "" {
			cfg.LLM.BaseURL = "https://api.openai.com/v1"
		}
		if cfg.LLM.APIKeyEnv == "" {
			cfg.LLM.APIKeyEnv = "OPENAI_API_KEY"
		}
		if cfg.LLM.Model == "" {
			cfg.LLM.Model = "gpt-4o-mini"
		}
	}

	if cfg.Embedder.Type == "" {
		cfg.Embedder.Type = "ollama"
	}
	if cfg.Embedder.Concurrency == 0 {
		cfg.Embedder.Concurrency = 4
	}
	switch cfg.Embedder.Type {
	case "ollama":
		if cfg.Embedder.Ollama == nil {
			cfg.Embedder.Ollama = &OllamaEmbedderConfig{}
		}
		if cfg.Embedder.Ollama.BaseURL == "" {
			cfg.Embedder.Ollama.BaseURL = "http://localhost:11434"
		}
		if cfg.Embedder.Ollama.Model == "" {
			cfg.Embedder.Ollama.Model = "quentinz/bge-small-zh-v1.5"
		}
		if cfg.Embedder.Ollama.TimeoutSecs == 0 {
			cfg.Embedder.Ollama.TimeoutSecs = 60
		}
		if cfg.Embedder.Ollama.BatchSize == 0 {
			cfg.Embedder.Ollama.BatchSize = 10
		}
	case "openai":
		if cfg.Embedder.OpenAI == nil {
			cfg.Embedder.OpenAI = &OpenAIEmbedderConfig{}
		}
		if cfg.Embedder.OpenAI.BaseURL == "" {
			cfg.Embedder.OpenAI.BaseURL = "https://api.openai.com/v1"
		}
		if cfg.Embedder.OpenAI.APIKeyEnv == "" {
			cfg.Embedder.OpenAI.APIKeyEnv = "OPENAI_API_KEY"
		}
		if cfg.Embedder.OpenAI.Model == "" {
			cfg.Embedder.OpenAI.Model = "text-embedding-3-small"
		}
		if cfg.Embedder.OpenAI.TimeoutSecs == 0 {
			cfg.Embedder.OpenAI.TimeoutSecs = 30
		}
	}
	if cfg.Embedder.Cache != nil && cfg.Embedder.Cache.TTLSecs == 0 {
		cfg.Embedder.Cache.TTLSecs = 7 * 24 * 3600
	}

	if cfg.Chunker.Type == "" {
		cfg.Chunker.Type = "sentence"
	}
	if cfg.Chunker.SentencesPerChunk == 0 {
		cfg.Chunker.SentencesPerChunk = 5
	}
	if cfg.Chunker.ChunkTokens == 0 {
		cfg.Chunker.ChunkTokens = 1024
	}
	if cfg.Chunker.Encoding == "" {
		cfg.Chunker.Encoding = "cl100k_base"
	}

	if cfg.VectorStore.Type == "" {
		cfg.VectorStore.Type = "memory"
	}
	if cfg.VectorStore.Qdrant != nil {
		if cfg.VectorStore.Qdrant.Collection == "" {
			cfg.VectorStore.Qdrant.Collection = "aiservice"
		}
		if cfg.VectorStore.Qdrant.TimeoutSecs == 0 {
			cfg.VectorStore.Qdrant.TimeoutSecs = 15
		}
	}

	if cfg.Query.SimilarityTopK == 0 {
		cfg.Query.SimilarityTopK = 2
	}
	if cfg.Query.ResponseMode == "" {
		cfg.Query.ResponseMode = "compact"
	}
	if cfg.Query.ContextWindowChars == 0 {
		cfg.Query.ContextWindowChars = 8000
	}
	if cfg.Query.ExtractSentences == 0 {
		cfg.Query.ExtractSentences = 3
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
}

func applyEnvOverrides(cfg *AppConfig) {
	if v := os.Getenv("AISERVICE_DATA_DIR"); v != "" {
		cfg.Documents.Dir = v
	}
	if v := os.Getenv("AISERVICE_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("AISERVICE_LLM_MODEL"); v != "" {
		cfg.LLM.Model = v
	}
	if v := os.Getenv("AISERVICE_LLM_BASE_URL"); v != "" {
		cfg.LLM.BaseURL = v
	}
	if v := os.Getenv("AISERVICE_EMBED_MODEL"); v != "" {
		switch {
		case cfg.Embedder.Type == "ollama" && cfg.Embedder.Ollama != nil:
			cfg.Embedder.Ollama.Model = v
		case cfg.Embedder.Type == "openai" && cfg.Embedder.OpenAI != nil:
			cfg.Embedder.OpenAI.Model = v
		}
	}
	if v := os.Getenv("AISERVICE_EMBED_BASE_URL"); v != "" {
		switch {
		case cfg.Embedder.Type == "ollama" && cfg.Embedder.Ollama != nil:
			cfg.Embedder.Ollama.BaseURL = v
		case cfg.Embedder.Type == "openai" && cfg.Embedder.OpenAI != nil:
			cfg.Embedder.OpenAI.BaseURL = v
		}
	}
	if v := os.Getenv("AISERVICE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}
