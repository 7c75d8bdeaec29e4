// Package bootstrap turns an AppConfig into the components the query
// engine is built from.
package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/qiongqiongyuren/co2yuan3/internal/chunker"
	"github.com/qiongqiongyuren/co2yuan3/internal/config"
	"github.com/qiongqiongyuren/co2yuan3/internal/domain"
	"github.com/qiongqiongyuren/co2yuan3/internal/embedding/cache"
	embedollama "github.com/qiongqiongyuren/co2yuan3/internal/embedding/ollama"
	embedopenai "github.com/qiongqiongyuren/co2yuan3/internal/embedding/openai"
	"github.com/qiongqiongyuren/co2yuan3/internal/embedding/tfidf"
	"github.com/qiongqiongyuren/co2yuan3/internal/engine"
	llmollama "github.com/qiongqiongyuren/co2yuan3/internal/llm/ollama"
	llmopenai "github.com/qiongqiongyuren/co2yuan3/internal/llm/openai"
	"github.com/qiongqiongyuren/co2yuan3/internal/loader"
	applog "github.com/qiongqiongyuren/co2yuan3/internal/platform/log"
	"github.com/qiongqiongyuren/co2yuan3/internal/summarizer"
	"github.com/qiongqiongyuren/co2yuan3/internal/vectorstore/memory"
	"github.com/qiongqiongyuren/co2yuan3/internal/vectorstore/qdrant"
)

// Components holds the engine options plus anything that must be released
// on shutdown.
type Components struct {
	Options engine.Options
	// Cache is non-nil when the Redis embedding cache is enabled.
	Cache *cache.Embedder

	closers []func() error
}

// Close releases external connections opened by Assemble.
func (c *Components) Close() error {
	var first error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	c.closers = nil
	return first
}

// Assemble creates every component named in cfg. Nothing is contacted
// except Redis, whose connection is verified up front.
func Assemble(ctx context.Context, cfg *config.AppConfig) (*Components, error) {
	c := &Components{}

	registry := loader.NewParserRegistry()
	if len(cfg.Documents.Extensions) > 0 {
		registry.Restrict(cfg.Documents.Extensions)
	}

	ch, err := newChunker(cfg.Chunker)
	if err != nil {
		return nil, err
	}

	emb, err := newEmbedder(cfg.Embedder)
	if err != nil {
		return nil, err
	}
	model := embedderModel(emb)
	if cc := cfg.Embedder.Cache; cc != nil && cc.RedisURL != "" {
		store, err := cache.NewRedisStore(ctx, cc.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("embedding cache: %w", err)
		}
		c.closers = append(c.closers, store.Close)
		c.Cache = cache.New(emb, store, model, time.Duration(cc.TTLSecs)*time.Second)
		emb = c.Cache
		applog.Info("embedding cache enabled", "ttl_secs", cc.TTLSecs)
	}

	mode := engine.ResponseMode(cfg.Query.ResponseMode)
	var llm domain.LLM
	if mode.NeedsLLM() {
		if llm, err = newLLM(cfg.LLM); err != nil {
			_ = c.Close()
			return nil, err
		}
	}

	batchSize := 0
	if cfg.Embedder.Ollama != nil {
		batchSize = cfg.Embedder.Ollama.BatchSize
	}

	c.Options = engine.Options{
		Location:           cfg.Documents.Dir,
		Loader:             loader.NewDirectoryReader(registry, loader.WithRecursive(cfg.Documents.IsRecursive())),
		Chunker:            ch,
		Embedder:           emb,
		Store:              newVectorStore(cfg.VectorStore),
		LLM:                llm,
		Summarizer:         summarizer.NewFrequencySummarizer(),
		Concurrency:        cfg.Embedder.Concurrency,
		BatchSize:          batchSize,
		SimilarityTopK:     cfg.Query.SimilarityTopK,
		Mode:               mode,
		ContextWindowChars: cfg.Query.ContextWindowChars,
		TextQAPrompt:       cfg.Query.TextQAPrompt,
		RefinePrompt:       cfg.Query.RefinePrompt,
		ExtractSentences:   cfg.Query.ExtractSentences,
	}
	applog.Info("components assembled",
		"chunker", cfg.Chunker.Type,
		"embedder", emb.Name(),
		"embedder_model", model,
		"vector_store", cfg.VectorStore.Type,
		"llm", llmName(llm),
		"response_mode", cfg.Query.ResponseMode,
	)
	return c, nil
}

func newChunker(cfg config.ChunkerConfig) (domain.Chunker, error) {
	switch cfg.Type {
	case "token":
		tc, err := chunker.NewTokenChunker(cfg.Encoding, cfg.ChunkTokens, cfg.TokenOverlap())
		if err != nil {
			return nil, fmt.Errorf("token chunker: %w", err)
		}
		return tc, nil
	case "", "sentence":
		return chunker.NewSentenceChunker(cfg.SentencesPerChunk, cfg.SentenceOverlap()), nil
	default:
		return nil, fmt.Errorf("%w: unknown chunker %q", config.ErrInvalidConfig, cfg.Type)
	}
}

func newEmbedder(cfg config.EmbedderConfig) (domain.Embedder, error) {
	switch cfg.Type {
	case "tfidf":
		return tfidf.NewEmbedder(), nil
	case "openai":
		oc := cfg.OpenAI
		if oc == nil {
			oc = &config.OpenAIEmbedderConfig{}
		}
		client, err := embedopenai.NewClient(embedopenai.Config{
			BaseURL:   oc.BaseURL,
			APIKeyEnv: oc.APIKeyEnv,
			Model:     oc.Model,
			Timeout:   time.Duration(oc.TimeoutSecs) * time.Second,
		})
		if err != nil {
			return nil, fmt.Errorf("openai embedder: %w", err)
		}
		return client, nil
	case "", "ollama":
		oc := cfg.Ollama
		if oc == nil {
			oc = &config.OllamaEmbedderConfig{}
		}
		return embedollama.NewClient(embedollama.Config{
			BaseURL:   oc.BaseURL,
			Model:     oc.Model,
			Timeout:   time.Duration(oc.TimeoutSecs) * time.Second,
			BatchSize: oc.BatchSize,
		}), nil
	default:
		return nil, fmt.Errorf("%w: unknown embedder %q", config.ErrInvalidConfig, cfg.Type)
	}
}

// embedderModel reports the model a remote embedder resolved after its
// defaults were applied; local embedders have none.
func embedderModel(emb domain.Embedder) string {
	if m, ok := emb.(interface{ Model() string }); ok {
		return m.Model()
	}
	return ""
}

func newVectorStore(cfg config.VectorStoreConfig) domain.VectorStore {
	if cfg.Type == "qdrant" && cfg.Qdrant != nil {
		return qdrant.NewStorage(qdrant.Config{
			URL:        cfg.Qdrant.URL,
			APIKey:     cfg.Qdrant.APIKey,
			Collection: cfg.Qdrant.Collection,
			Timeout:    time.Duration(cfg.Qdrant.TimeoutSecs) * time.Second,
			BatchSize:  cfg.Qdrant.BatchSize,
		})
	}
	return memory.NewStorage()
}

func newLLM(cfg config.LLMConfig) (domain.LLM, error) {
	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	switch cfg.Type {
	case "openai":
		client, err := llmopenai.NewClient(llmopenai.Config{
			BaseURL:     cfg.BaseURL,
			APIKeyEnv:   cfg.APIKeyEnv,
			Model:       cfg.Model,
			Timeout:     timeout,
			Temperature: cfg.Temperature,
		})
		if err != nil {
			return nil, fmt.Errorf("openai llm: %w", err)
		}
		return client, nil
	case "", "ollama":
		return llmollama.NewClient(llmollama.Config{
			BaseURL:     cfg.BaseURL,
			Model:       cfg.Model,
			Timeout:     timeout,
			Temperature: cfg.Temperature,
		}), nil
	default:
		return nil, fmt.Errorf("%w: unknown llm %q", config.ErrInvalidConfig, cfg.Type)
	}
}

func llmName(llm domain.LLM) string {
	if llm == nil {
		return "none"
	}
	return llm.Name()
}
