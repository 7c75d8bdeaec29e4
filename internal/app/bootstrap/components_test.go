package bootstrap

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qiongqiongyuren/co2yuan3/internal/config"
	embedollama "github.com/qiongqiongyuren/co2yuan3/internal/embedding/ollama"
	"github.com/qiongqiongyuren/co2yuan3/internal/embedding/tfidf"
	"github.com/qiongqiongyuren/co2yuan3/internal/engine"
	llmollama "github.com/qiongqiongyuren/co2yuan3/internal/llm/ollama"
	"github.com/qiongqiongyuren/co2yuan3/internal/vectorstore/memory"
	"github.com/qiongqiongyuren/co2yuan3/internal/vectorstore/qdrant"
)

func defaults(t *testing.T) *config.AppConfig {
	t.Helper()
	cfg, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	return cfg
}

func TestAssembleExtractiveBuildsEngine(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "france.txt"), []byte("The capital of France is Paris. Lyon is a large city."), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.md"), []byte("# Notes\nIgnored by the extension filter."), 0o644))

	cfg := defaults(t)
	cfg.Documents.Dir = dir
	cfg.Documents.Extensions = []string{".txt"}
	cfg.Embedder.Type = "tfidf"
	cfg.Query.ResponseMode = "extractive"
	// the openai key is never read when no model is needed
	cfg.LLM.Type = "openai"
	cfg.LLM.APIKeyEnv = "AISERVICE_TEST_UNSET_KEY"

	c, err := Assemble(context.Background(), cfg)
	require.NoError(t, err)
	defer c.Close()

	assert.Nil(t, c.Options.LLM)
	assert.Nil(t, c.Cache)
	assert.IsType(t, &memory.Storage{}, c.Options.Store)
	assert.Equal(t, engine.ModeExtractive, c.Options.Mode)

	e, err := engine.Build(context.Background(), c.Options)
	require.NoError(t, err)
	assert.Equal(t, 1, e.Stats().Documents)

	resp, err := e.Query(context.Background(), "What is the capital of France?")
	require.NoError(t, err)
	assert.Contains(t, resp.Answer, "Paris")
}

func TestAssembleDefaultsUseOllama(t *testing.T) {
	cfg := defaults(t)
	c, err := Assemble(context.Background(), cfg)
	require.NoError(t, err)

	assert.IsType(t, &llmollama.Client{}, c.Options.LLM)
	assert.Equal(t, "ollama", c.Options.Embedder.Name())
	assert.Equal(t, engine.ModeCompact, c.Options.Mode)
	assert.Equal(t, 2, c.Options.SimilarityTopK)
	assert.Equal(t, 10, c.Options.BatchSize)
}

func TestEmbedderModelResolvesDefaults(t *testing.T) {
	cfg := defaults(t)
	emb, err := newEmbedder(cfg.Embedder)
	require.NoError(t, err)
	// the cache key must carry the model actually used, not the empty config value
	assert.Equal(t, embedollama.DefaultModel, embedderModel(emb))
	assert.Empty(t, embedderModel(tfidf.NewEmbedder()))
}

func TestAssembleQdrantStore(t *testing.T) {
	cfg := defaults(t)
	cfg.VectorStore.Type = "qdrant"
	cfg.VectorStore.Qdrant = &config.QdrantConfig{URL: "http://localhost:6333", Collection: "docs"}

	c, err := Assemble(context.Background(), cfg)
	require.NoError(t, err)
	assert.IsType(t, &qdrant.Storage{}, c.Options.Store)
}

func TestAssembleErrors(t *testing.T) {
	t.Run("openai llm without key", func(t *testing.T) {
		cfg := defaults(t)
		cfg.LLM.Type = "openai"
		cfg.LLM.APIKeyEnv = "AISERVICE_TEST_UNSET_KEY"
		_, err := Assemble(context.Background(), cfg)
		assert.ErrorContains(t, err, "AISERVICE_TEST_UNSET_KEY")
	})
	t.Run("bad redis url", func(t *testing.T) {
		cfg := defaults(t)
		cfg.Embedder.Cache = &config.EmbeddingCacheConfig{RedisURL: "not-a-url", TTLSecs: 60}
		_, err := Assemble(context.Background(), cfg)
		assert.ErrorContains(t, err, "embedding cache")
	})
	t.Run("unknown chunker", func(t *testing.T) {
		cfg := defaults(t)
		cfg.Chunker.Type = "paragraph"
		_, err := Assemble(context.Background(), cfg)
		assert.ErrorIs(t, err, config.ErrInvalidConfig)
	})
}
